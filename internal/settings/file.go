package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"offer-filter/internal"
)

// FileStore keeps settings in a YAML file and reports edits made to it by
// other processes (an editor, a second CLI invocation).
type FileStore struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
	last Values
	hub  hub

	watchOnce sync.Once
	watchErr  error
	closeOnce sync.Once
	closed    chan struct{}
}

// OpenFileStore reads path, creating an empty settings file when it does not exist.
func OpenFileStore(path string) (*FileStore, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create settings dir: %w", err)
		}
		if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
			return nil, fmt.Errorf("create settings file: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings file %s: %w", path, err)
	}

	s := &FileStore{v: v, path: path, closed: make(chan struct{})}
	s.last = s.snapshot()
	return s, nil
}

// snapshot must be called with mu held (or before the store is shared).
func (s *FileStore) snapshot() Values {
	out := Values{}
	for _, k := range Keys {
		if !s.v.IsSet(k) {
			continue
		}
		if n, err := Normalize(k, s.v.Get(k)); err == nil {
			out[k] = n
		}
	}
	return out
}

func (s *FileStore) Get(_ context.Context, keys ...string) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pick(s.last, keys), nil
}

func (s *FileStore) Set(_ context.Context, values Values) error {
	next := NormalizeAll(values)

	s.mu.Lock()
	if err := s.v.MergeConfigMap(map[string]interface{}(next)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("merge settings: %w", err)
	}
	if err := s.v.WriteConfig(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write settings file %s: %w", s.path, err)
	}
	snap := s.snapshot()
	changed := ChangedValues(s.last, snap)
	s.last = snap
	s.mu.Unlock()

	s.hub.publish(changed)
	return nil
}

func (s *FileStore) Subscribe(ctx context.Context) (<-chan Values, error) {
	s.watchOnce.Do(func() { s.watchErr = s.watch() })
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	return s.hub.subscribe(ctx), nil
}

// watch follows the directory rather than the file so that editors which
// replace the file on save are still noticed.
func (s *FileStore) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch settings file: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch settings dir: %w", err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-s.closed:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					s.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				internal.Log.WithError(err).Warn("settings watcher error")
			}
		}
	}()
	return nil
}

// Close stops watching the file. Subscribers receive nothing further.
func (s *FileStore) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *FileStore) reload() {
	s.mu.Lock()
	if err := s.v.ReadInConfig(); err != nil {
		s.mu.Unlock()
		// Editors may leave a half-written file behind for a moment.
		internal.Log.WithError(err).Debug("settings file not readable yet")
		return
	}
	snap := s.snapshot()
	changed := ChangedValues(s.last, snap)
	s.last = snap
	s.mu.Unlock()

	s.hub.publish(changed)
}
