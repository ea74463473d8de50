package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QueueFullError is the explicit overflow rejection: the gate never drops
// work silently.
type QueueFullError struct {
	Identifier string
	QueueSize  int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("throttle queue full for %q (size %d)", e.Identifier, e.QueueSize)
}

// ThrottleOptions configures a Gate.
type ThrottleOptions struct {
	// Delay is the minimum spacing between consecutive calls sharing one
	// identifier.
	Delay time.Duration
	// MaxConcurrent bounds in-flight calls across all identifiers.
	MaxConcurrent int
	// QueueSize bounds calls waiting for a concurrency slot.
	QueueSize int
}

// Gate enforces minimum inter-call spacing per identifier and bounded
// concurrency overall. Ingestion uses one gate so a polling fan-out cannot
// exceed the vendor's tolerated parallelism.
type Gate struct {
	opts  ThrottleOptions
	sem   chan struct{}
	queue chan struct{}

	mu   sync.Mutex
	next map[string]time.Time
}

func NewGate(opts ThrottleOptions) *Gate {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	return &Gate{
		opts:  opts,
		sem:   make(chan struct{}, opts.MaxConcurrent),
		queue: make(chan struct{}, opts.MaxConcurrent+opts.QueueSize),
		next:  make(map[string]time.Time),
	}
}

// Do runs fn under the gate. It returns *QueueFullError immediately when the
// waiting queue is at capacity, and the context error if ctx ends while
// queued or while waiting out the spacing delay.
func (g *Gate) Do(ctx context.Context, identifier string, fn func(context.Context) error) error {
	select {
	case g.queue <- struct{}{}:
		defer func() { <-g.queue }()
	default:
		return &QueueFullError{Identifier: identifier, QueueSize: g.opts.QueueSize}
	}

	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if wait := g.reserve(identifier); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fn(ctx)
}

// reserve claims the next allowed slot for identifier and returns how long
// the caller must wait for it.
func (g *Gate) reserve(identifier string) time.Duration {
	if g.opts.Delay <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	slot := g.next[identifier]
	if slot.Before(now) {
		slot = now
	}
	g.next[identifier] = slot.Add(g.opts.Delay)
	return slot.Sub(now)
}
