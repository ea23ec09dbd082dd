package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOverlay_IgnoresUnknownAndMistypedKeys(t *testing.T) {
	got := Defaults().Overlay(Values{
		KeyMinRating:   "4.5",
		KeyMinOpinions: 250.0,
		KeyEnabled:     "not-a-bool",
		"somethingNew": 42,
	})

	if got.MinRating != 4.5 {
		t.Errorf("MinRating mismatch. Expected 4.5, got %v", got.MinRating)
	}
	if got.MinOpinions != 250 {
		t.Errorf("MinOpinions mismatch. Expected 250, got %v", got.MinOpinions)
	}
	if !got.Enabled {
		t.Error("Enabled should keep its default when the stored value is mistyped")
	}
}

func TestDiff(t *testing.T) {
	a := Defaults()
	b := a
	b.MinRating = 4.0
	b.ShowSummary = false

	keys := a.Diff(b)
	if len(keys) != 2 || keys[0] != KeyMinRating || keys[1] != KeyShowSummary {
		t.Errorf("Unexpected diff: %v", keys)
	}
	if len(a.Diff(a)) != 0 {
		t.Error("Diff of identical settings should be empty")
	}
}

func TestSeed_DoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(Values{KeyMinRating: 4.5, KeyEnabled: false})

	written, err := Seed(ctx, store)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := written[KeyMinRating]; ok {
		t.Error("Seed must not overwrite an existing minRating")
	}
	if len(written) != len(Keys)-2 {
		t.Errorf("Expected %d seeded keys, got %d", len(Keys)-2, len(written))
	}

	s, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.MinRating != 4.5 || s.Enabled {
		t.Errorf("Existing values were changed: %+v", s)
	}
	if s.MaxPages != 100 || s.MinOpinions != 100 || !s.ShowSummary {
		t.Errorf("Defaults were not seeded: %+v", s)
	}

	again, err := Seed(ctx, store)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Second seed should write nothing, wrote %v", again)
	}
}

func TestMemoryStore_NotifiesOnlyChangedKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore(Defaults().Values())
	changes, err := store.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := store.Set(ctx, Values{KeyEnabled: true, KeyMinRating: 4.0}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	select {
	case got := <-changes:
		if len(got) != 1 {
			t.Fatalf("Expected exactly one changed key, got %v", got)
		}
		if got[KeyMinRating] != 4.0 {
			t.Errorf("Expected minRating 4.0, got %v", got[KeyMinRating])
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for change notification")
	}

	// Writing the same values again must stay silent.
	if err := store.Set(ctx, Values{KeyMinRating: 4.0}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	select {
	case got := <-changes:
		t.Fatalf("Unexpected notification %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := Seed(ctx, store); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.Set(ctx, Values{KeyMaxPages: 3}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	s, err := Load(ctx, reopened)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.MaxPages != 3 {
		t.Errorf("Expected maxPages 3 after reopen, got %d", s.MaxPages)
	}
	if s.MinRating != 4.9 {
		t.Errorf("Expected seeded minRating 4.9, got %v", s.MinRating)
	}
}

func TestFileStore_NoticesExternalEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	changes, err := store.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := os.WriteFile(path, []byte("enabled: false\nminrating: 4.2\n"), 0o644); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	deadline := time.After(3 * time.Second)
	seen := Values{}
	for len(seen) < 2 {
		select {
		case got := <-changes:
			for k, v := range got {
				seen[k] = v
			}
		case <-deadline:
			t.Fatalf("Timed out, saw only %v", seen)
		}
	}
	if seen[KeyEnabled] != false || seen[KeyMinRating] != 4.2 {
		t.Errorf("Unexpected changes: %v", seen)
	}
}
