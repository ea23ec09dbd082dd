package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"offer-filter/internal/settings"
	"offer-filter/pkg/models"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]models.PassReport
}

func (r *recordingSink) Save(batch []models.PassReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]models.PassReport(nil), batch...))
	return nil
}

func (r *recordingSink) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestRunBatchWorker_FlushesOnSizeAndClose(t *testing.T) {
	sink := &recordingSink{}
	in := make(chan models.PassReport)
	done := make(chan struct{})

	go func() {
		RunBatchWorker[models.PassReport](context.Background(), in, sink, 2, time.Hour)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		in <- models.PassReport{SessionID: "s", Page: i + 1}
	}
	close(in)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after the input closed")
	}

	if sink.total() != 5 {
		t.Errorf("Expected 5 saved reports, got %d", sink.total())
	}
	if len(sink.batches) != 3 {
		t.Errorf("Expected batches of 2+2+1, got %d batches", len(sink.batches))
	}
}

func TestRunBatchWorker_FlushesOnTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{}
	in := make(chan models.PassReport)
	go RunBatchWorker[models.PassReport](ctx, in, sink, 100, 20*time.Millisecond)

	in <- models.PassReport{SessionID: "s"}

	deadline := time.Now().Add(time.Second)
	for sink.total() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the ticker flush")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDecodePayload(t *testing.T) {
	got := decodePayload(`{"enabled":false,"minOpinions":250,"bogus":"x"}`)

	if got[settings.KeyEnabled] != false {
		t.Errorf("Expected enabled=false, got %v", got[settings.KeyEnabled])
	}
	if got[settings.KeyMinOpinions] != 250 {
		t.Errorf("Expected minOpinions=250 as int, got %#v", got[settings.KeyMinOpinions])
	}
	if _, ok := got["bogus"]; ok {
		t.Error("Unknown keys should be dropped")
	}
}
