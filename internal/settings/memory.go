package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data Values
	hub  hub
}

func NewMemoryStore(initial Values) *MemoryStore {
	return &MemoryStore{data: NormalizeAll(initial)}
}

func (m *MemoryStore) Get(_ context.Context, keys ...string) (Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pick(m.data, keys), nil
}

func (m *MemoryStore) Set(_ context.Context, values Values) error {
	next := NormalizeAll(values)

	m.mu.Lock()
	changed := ChangedValues(m.data, next)
	for k, v := range changed {
		m.data[k] = v
	}
	m.mu.Unlock()

	m.hub.publish(changed)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context) (<-chan Values, error) {
	return m.hub.subscribe(ctx), nil
}

func pick(data Values, keys []string) Values {
	out := Values{}
	if len(keys) == 0 {
		for k, v := range data {
			out[k] = v
		}
		return out
	}
	for _, k := range keys {
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}
	return out
}
