package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T) (*Limiter, *MemoryCounterStore) {
	t.Helper()
	store := NewMemoryCounterStore()
	t.Cleanup(store.Close)
	return NewLimiter(store, zap.NewNop()), store
}

func TestCheckRateLimitWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Window: time.Second, MaxRequests: 3}

	var allowed []bool
	var last Result
	for i := 0; i < 4; i++ {
		last = limiter.CheckRateLimit(ctx, "k1", policy)
		allowed = append(allowed, last.Allowed)
	}

	assert.Equal(t, []bool{true, true, true, false}, allowed)
	assert.Greater(t, last.RetryAfter, time.Duration(0), "rejection must carry retry-after")
	assert.False(t, last.Blocked)
}

func TestCheckRateLimitRemainingCountsDown(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Window: time.Minute, MaxRequests: 5}

	for want := 4; want >= 0; want-- {
		result := limiter.CheckRateLimit(ctx, "id", policy)
		require.True(t, result.Allowed)
		assert.Equal(t, want, result.Remaining)
	}
}

func TestCheckRateLimitWindowSlides(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Window: 100 * time.Millisecond, MaxRequests: 2}

	require.True(t, limiter.CheckRateLimit(ctx, "id", policy).Allowed)
	require.True(t, limiter.CheckRateLimit(ctx, "id", policy).Allowed)
	require.False(t, limiter.CheckRateLimit(ctx, "id", policy).Allowed)

	time.Sleep(130 * time.Millisecond)

	assert.True(t, limiter.CheckRateLimit(ctx, "id", policy).Allowed,
		"window must admit again once old events slide out")
}

func TestHardBlockRejectsUntilExpiry(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Window: 100 * time.Millisecond, MaxRequests: 1, BlockDuration: 300 * time.Millisecond}

	require.True(t, limiter.CheckRateLimit(ctx, "abuser", policy).Allowed)

	result := limiter.CheckRateLimit(ctx, "abuser", policy)
	require.False(t, result.Allowed)
	assert.True(t, result.Blocked)
	assert.Equal(t, 300*time.Millisecond, result.RetryAfter)

	// Still blocked after the window itself has slid clear.
	time.Sleep(150 * time.Millisecond)
	result = limiter.CheckRateLimit(ctx, "abuser", policy)
	assert.False(t, result.Allowed)
	assert.True(t, result.Blocked)

	// Allowed again only once the block duration has fully elapsed.
	time.Sleep(200 * time.Millisecond)
	result = limiter.CheckRateLimit(ctx, "abuser", policy)
	assert.True(t, result.Allowed)
}

func TestIdentifiersAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Window: time.Minute, MaxRequests: 1}

	require.True(t, limiter.CheckRateLimit(ctx, "a", policy).Allowed)
	require.False(t, limiter.CheckRateLimit(ctx, "a", policy).Allowed)
	assert.True(t, limiter.CheckRateLimit(ctx, "b", policy).Allowed)
}

func TestConcurrentAcquireNeverOverAdmits(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Window: time.Minute, MaxRequests: 10}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.CheckRateLimit(ctx, "shared", policy).Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
}

func TestAllowReturnsTypedError(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{Window: time.Minute, MaxRequests: 1}

	require.NoError(t, limiter.Allow(ctx, "id", policy))

	err := limiter.Allow(ctx, "id", policy)
	require.Error(t, err)
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "id", rlErr.Identifier)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))
}

func TestSweepKeepsStateInsideLongWindows(t *testing.T) {
	store := NewMemoryCounterStore()
	t.Cleanup(store.Close)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, allowed, err := store.TryAcquire(ctx, "user:backfill", time.Hour, 5)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	_, _, allowed, err := store.TryAcquire(ctx, "user:backfill", time.Hour, 5)
	require.NoError(t, err)
	require.False(t, allowed)

	// Age the whole log past the cleanup floor while keeping it inside the
	// one hour window, then sweep.
	w := store.window("user:backfill")
	w.mu.Lock()
	for i := range w.events {
		w.events[i] = w.events[i].Add(-10 * time.Minute)
	}
	w.mu.Unlock()
	store.sweep(time.Now(), 5*time.Minute)

	_, _, allowed, err = store.TryAcquire(ctx, "user:backfill", time.Hour, 5)
	require.NoError(t, err)
	assert.False(t, allowed, "five events still occupy the hour window, the sixth must wait")
}

func TestSweepDropsFullyAgedWindows(t *testing.T) {
	store := NewMemoryCounterStore()
	t.Cleanup(store.Close)
	ctx := context.Background()

	_, _, _, err := store.TryAcquire(ctx, "idle", time.Minute, 5)
	require.NoError(t, err)

	w := store.window("idle")
	w.mu.Lock()
	for i := range w.events {
		w.events[i] = w.events[i].Add(-10 * time.Minute)
	}
	w.mu.Unlock()
	store.sweep(time.Now(), 5*time.Minute)

	store.mu.RLock()
	_, exists := store.windows["idle"]
	store.mu.RUnlock()
	assert.False(t, exists, "a window whose events all aged out is released")
}

func TestWindowMembersAreUniquePerAcquire(t *testing.T) {
	now := time.Now()

	assert.NotEqual(t, windowMember(now), windowMember(now),
		"same-microsecond acquires must not collapse into one zset member")
	assert.True(t, strings.HasPrefix(windowMember(now), strconv.FormatInt(now.UnixMicro(), 10)+":"))
}

func TestPolicyScaled(t *testing.T) {
	base := Policy{Window: time.Minute, MaxRequests: 100}

	assert.Equal(t, 100, base.Scaled(1.5).MaxRequests)
	assert.Equal(t, 50, base.Scaled(0.5).MaxRequests)
	assert.Equal(t, 1, base.Scaled(0).MaxRequests, "quota never drops to zero")
}

func TestPolicyPerInstance(t *testing.T) {
	base := Policy{Window: time.Minute, MaxRequests: 90}

	assert.Equal(t, 90, base.PerInstance(1).MaxRequests)
	assert.Equal(t, 30, base.PerInstance(3).MaxRequests)
	assert.Equal(t, 1, base.PerInstance(1000).MaxRequests)
}

func TestAPIKeyTierPolicies(t *testing.T) {
	assert.Greater(t, APIKeyTierPolicy("enterprise").MaxRequests, APIKeyTierPolicy("pro").MaxRequests)
	assert.Greater(t, APIKeyTierPolicy("pro").MaxRequests, APIKeyTierPolicy("free").MaxRequests)
	assert.Equal(t, APIKeyTierPolicy("free"), APIKeyTierPolicy("unknown"))
}
