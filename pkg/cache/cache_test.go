package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "quote:AAPL", []byte(`{"price":150}`), time.Minute)

	value, ok := c.Get(ctx, "quote:AAPL")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"price":150}`), value)

	_, ok = c.Get(ctx, "quote:MSFT")
	assert.False(t, ok)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 50*time.Millisecond)

	_, ok := c.Get(ctx, "k")
	require.True(t, ok, "key must be retrievable immediately after set")

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "key must be gone after its TTL elapses")
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "cfg", []byte("x"), 0)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get(ctx, "cfg")
	assert.True(t, ok)
}

func TestMemoryCacheDeletePattern(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "quote:AAPL", []byte("1"), time.Minute)
	c.Set(ctx, "quote:MSFT", []byte("2"), time.Minute)
	c.Set(ctx, "bars:AAPL", []byte("3"), time.Minute)

	removed := c.DeletePattern(ctx, "quote:*")
	assert.Equal(t, 2, removed)

	_, ok := c.Get(ctx, "bars:AAPL")
	assert.True(t, ok)

	keys := c.Keys(ctx, "quote:*")
	assert.Empty(t, keys)
}

func TestMemoryCacheBatchOps(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.SetMulti(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}, time.Minute)

	got := c.GetMulti(ctx, []string{"a", "b", "missing"})
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("1"), got["a"])
}

func TestMemoryCacheStats(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Get(ctx, "k")
	c.Get(ctx, "k")
	c.Get(ctx, "absent")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)
}

func TestGetOrSetJSON(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	calls := 0
	factory := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	v, err := GetOrSetJSON(ctx, c, "answer", time.Minute, factory)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	v, err = GetOrSetJSON(ctx, c, "answer", time.Minute, factory)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls, "second call must be served from cache")
}

func TestGetOrSetJSONFactoryError(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	wantErr := errors.New("upstream down")
	_, err := GetOrSetJSON(context.Background(), c, "k", time.Minute, func(context.Context) (string, error) {
		return "", wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok, "failed factory result must not be cached")
}

func TestTTLForClasses(t *testing.T) {
	assert.Equal(t, 5*time.Second, TTLFor(ClassRealtime))
	assert.Equal(t, 24*time.Hour, TTLFor(ClassConfig))
	assert.Equal(t, 5*time.Second, TTLFor(Class("unknown")), "unknown classes fall back to the shortest tier")
}

func TestGetJSONCorruptEntryIsMiss(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("{not json"), time.Minute)

	var dest map[string]int
	ok := GetJSON(ctx, c, "k", &dest)
	assert.False(t, ok)

	_, present := c.Get(ctx, "k")
	assert.False(t, present, "corrupt entry must be evicted")
}
