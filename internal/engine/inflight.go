package engine

import (
	"context"
	"sync"
)

// Inflight tracks running fetches per logical resource. An explicit refresh
// (Start) cancels every fetch still running for the same resource, so two
// writers never race to fill one cache slot with stale and fresh data.
type Inflight struct {
	mu      sync.Mutex
	seq     uint64
	running map[string]map[uint64]context.CancelFunc
}

func NewInflight() *Inflight {
	return &Inflight{running: make(map[string]map[uint64]context.CancelFunc)}
}

// Start cancels the fetches registered under key and registers a new one.
// The caller must call done when the fetch finishes.
func (f *Inflight) Start(ctx context.Context, key string) (context.Context, func()) {
	return f.register(ctx, key, true)
}

// Track registers a fetch under key without disturbing others, so a later
// Start can supersede it.
func (f *Inflight) Track(ctx context.Context, key string) (context.Context, func()) {
	return f.register(ctx, key, false)
}

func (f *Inflight) register(ctx context.Context, key string, supersede bool) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if supersede {
		for _, prev := range f.running[key] {
			prev()
		}
		delete(f.running, key)
	}
	f.seq++
	id := f.seq
	if f.running[key] == nil {
		f.running[key] = make(map[uint64]context.CancelFunc)
	}
	f.running[key][id] = cancel
	f.mu.Unlock()

	return ctx, func() {
		cancel()
		f.mu.Lock()
		if set, ok := f.running[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(f.running, key)
			}
		}
		f.mu.Unlock()
	}
}

// Cancel aborts every fetch registered under key.
func (f *Inflight) Cancel(key string) {
	f.mu.Lock()
	for _, cancel := range f.running[key] {
		cancel()
	}
	delete(f.running, key)
	f.mu.Unlock()
}

// Len returns the number of running fetches.
func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, set := range f.running {
		n += len(set)
	}
	return n
}
