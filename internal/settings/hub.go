package settings

import (
	"context"
	"sync"
)

type subscriber struct {
	ch   chan Values
	done <-chan struct{}
}

// hub fans change notifications out to subscribers.
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func (h *hub) subscribe(ctx context.Context) <-chan Values {
	sub := &subscriber{ch: make(chan Values, 16), done: ctx.Done()}

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[*subscriber]struct{})
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}()
	return sub.ch
}

func (h *hub) publish(changed Values) {
	if len(changed) == 0 {
		return
	}
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		// Each subscriber gets its own copy.
		cp := make(Values, len(changed))
		for k, v := range changed {
			cp[k] = v
		}
		select {
		case s.ch <- cp:
		case <-s.done:
		}
	}
}
