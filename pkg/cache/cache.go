package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the tiered key/value store. Values are opaque bytes; the JSON
// helpers below handle typed access. Every implementation must degrade store
// failures to cache misses, never surface them to the caller.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// DeletePattern removes all keys matching a glob pattern ("quote:*")
	// and returns how many were removed.
	DeletePattern(ctx context.Context, pattern string) int
	GetMulti(ctx context.Context, keys []string) map[string][]byte
	SetMulti(ctx context.Context, entries map[string][]byte, ttl time.Duration)
	Keys(ctx context.Context, pattern string) []string
	Stats() Stats
	Close() error
}

// Stats carries per-backend hit/miss counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// HitRate returns hits/(hits+misses), 0 when empty.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// GetJSON reads key and unmarshals it into dest. A decode failure counts as
// a miss: a corrupt entry must not fail the caller.
func GetJSON(ctx context.Context, c Cache, key string, dest any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON marshals value and stores it under key. Marshal failures are
// dropped silently; cache writes are best-effort.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Set(ctx, key, raw, ttl)
}

// GetOrSetJSON returns the cached value for key, invoking factory and
// caching its result on a miss.
//
// There is no single-flight deduplication: two goroutines missing the same
// cold key will both invoke the factory and the second write wins. Factories
// must therefore be idempotent reads.
func GetOrSetJSON[T any](ctx context.Context, c Cache, key string, ttl time.Duration, factory func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if GetJSON(ctx, c, key, &out) {
		return out, nil
	}
	out, err := factory(ctx)
	if err != nil {
		return out, err
	}
	SetJSON(ctx, c, key, out, ttl)
	return out, nil
}
