package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock provides the current time and can be replaced in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Handle identifies one scheduled callback.
type Handle struct {
	id  uint64
	key string
}

// Key returns the grouping key the callback was scheduled under.
func (h Handle) Key() string { return h.key }

type pending struct {
	key    string
	cancel context.CancelFunc
}

// Registry schedules delayed callbacks and tracks them so they can be cancelled
// one by one, per key (a session), or all at once on reset.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	nextID  uint64
	pending map[uint64]pending
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		logger:  logger,
		pending: make(map[uint64]pending),
	}
}

// Schedule runs fn after delay unless the handle is cancelled first.
// fn receives a context that is cancelled if the registry cancels it mid-flight.
func (r *Registry) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) Handle {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.pending[id] = pending{key: key, cancel: cancel}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()
		t := time.NewTimer(delay)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}

		r.mu.Lock()
		_, live := r.pending[id]
		delete(r.pending, id)
		r.mu.Unlock()
		if !live {
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("timer: callback panic", "key", key, "panic", rec)
			}
		}()
		fn(ctx)
	}()

	return Handle{id: id, key: key}
}

// Cancel stops a single callback; it reports false if it already fired or was cancelled.
func (r *Registry) Cancel(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[h.id]
	if !ok {
		return false
	}
	p.cancel()
	delete(r.pending, h.id)
	return true
}

// CancelKey stops every pending callback scheduled under key.
func (r *Registry) CancelKey(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.pending {
		if p.key == key {
			p.cancel()
			delete(r.pending, id)
			n++
		}
	}
	return n
}

// CancelAll stops every pending callback.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	for id, p := range r.pending {
		p.cancel()
		delete(r.pending, id)
	}
	if n > 0 {
		r.logger.Info("timer: cancelled all pending callbacks", "count", n)
	}
	return n
}

// Pending returns how many callbacks are still waiting to fire.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stop cancels everything and waits for in-flight callbacks to return.
func (r *Registry) Stop() {
	r.CancelAll()
	r.wg.Wait()
}
