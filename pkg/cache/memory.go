package cache

import (
	"context"
	"path"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is the in-process backend: a map with per-entry expiry and a
// janitor goroutine sweeping expired keys.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	hits   atomic.Uint64
	misses atomic.Uint64

	janitorStop chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a memory cache sweeping expired entries every
// sweepInterval. Zero means the default of one minute.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	c := &MemoryCache{
		entries:     make(map[string]memoryEntry),
		janitorStop: make(chan struct{}),
	}
	go c.janitor(sweepInterval)
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		if ok {
			c.Delete(context.Background(), key)
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *MemoryCache) DeletePattern(_ context.Context, pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if matched, _ := path.Match(pattern, key); matched {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) GetMulti(ctx context.Context, keys []string) map[string][]byte {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := c.Get(ctx, key); ok {
			result[key] = value
		}
	}
	return result
}

func (c *MemoryCache) SetMulti(ctx context.Context, entries map[string][]byte, ttl time.Duration) {
	for key, value := range entries {
		c.Set(ctx, key, value, ttl)
	}
}

func (c *MemoryCache) Keys(_ context.Context, pattern string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var keys []string
	for key, entry := range c.entries {
		if entry.expired(now) {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *MemoryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.janitorStop) })
	return nil
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.janitorStop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if entry.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
