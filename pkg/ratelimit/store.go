package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore holds sliding-window state per identifier. TryAcquire must be
// atomic per identifier: concurrent callers may never both observe the last
// free slot.
type CounterStore interface {
	// TryAcquire prunes events older than window, and if fewer than limit
	// remain, records one event. It returns the event count after the call,
	// the oldest event still inside the window, and whether the event was
	// admitted.
	TryAcquire(ctx context.Context, identifier string, window time.Duration, limit int) (count int, oldest time.Time, allowed bool, err error)

	// Block rejects every call for identifier until the given time.
	Block(ctx context.Context, identifier string, until time.Time) error

	// BlockedUntil reports the active block expiry, zero time when none.
	BlockedUntil(ctx context.Context, identifier string) (time.Time, error)
}

type slidingWindow struct {
	mu     sync.Mutex
	events []time.Time
	// window is the longest policy window seen for this identifier; cleanup
	// must not forget events that are still inside it.
	window time.Duration
}

// MemoryCounterStore is the single-process store: one mutex-guarded event
// log per identifier, with a cleanup goroutine dropping idle windows.
type MemoryCounterStore struct {
	mu      sync.RWMutex
	windows map[string]*slidingWindow
	blocks  map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

func NewMemoryCounterStore() *MemoryCounterStore {
	s := &MemoryCounterStore{
		windows: make(map[string]*slidingWindow),
		blocks:  make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
	go s.cleanup(5 * time.Minute)
	return s
}

func (s *MemoryCounterStore) window(identifier string) *slidingWindow {
	s.mu.RLock()
	w, ok := s.windows[identifier]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[identifier]; !ok {
		w = &slidingWindow{}
		s.windows[identifier] = w
	}
	return w
}

func (s *MemoryCounterStore) TryAcquire(_ context.Context, identifier string, window time.Duration, limit int) (int, time.Time, bool, error) {
	w := s.window(identifier)
	now := time.Now()
	cutoff := now.Add(-window)

	w.mu.Lock()
	defer w.mu.Unlock()

	if window > w.window {
		w.window = window
	}

	kept := w.events[:0]
	for _, ts := range w.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.events = kept

	if len(w.events) >= limit {
		return len(w.events), w.events[0], false, nil
	}

	w.events = append(w.events, now)
	return len(w.events), w.events[0], true, nil
}

func (s *MemoryCounterStore) Block(_ context.Context, identifier string, until time.Time) error {
	s.mu.Lock()
	s.blocks[identifier] = until
	s.mu.Unlock()
	return nil
}

func (s *MemoryCounterStore) BlockedUntil(_ context.Context, identifier string) (time.Time, error) {
	s.mu.RLock()
	until, ok := s.blocks[identifier]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, nil
	}
	if time.Now().After(until) {
		s.mu.Lock()
		delete(s.blocks, identifier)
		s.mu.Unlock()
		return time.Time{}, nil
	}
	return until, nil
}

func (s *MemoryCounterStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryCounterStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now(), interval)
		}
	}
}

// sweep drops identifiers whose newest event has aged past their own policy
// window, and expired blocks. The floor keeps short-window identifiers
// resident for at least one cleanup interval.
func (s *MemoryCounterStore) sweep(now time.Time, floor time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.windows {
		w.mu.Lock()
		retention := w.window
		if retention < floor {
			retention = floor
		}
		idle := len(w.events) == 0 || now.Sub(w.events[len(w.events)-1]) > retention
		w.mu.Unlock()
		if idle {
			delete(s.windows, id)
		}
	}
	for id, until := range s.blocks {
		if now.After(until) {
			delete(s.blocks, id)
		}
	}
}
