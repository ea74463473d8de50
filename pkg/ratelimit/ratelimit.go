package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy configures one sliding-window limit.
type Policy struct {
	Window      time.Duration
	MaxRequests int
	// BlockDuration, when set, hard-blocks an identifier that exceeds the
	// window: every call is rejected until the block expires.
	BlockDuration time.Duration
}

// Result is the outcome of a rate-limit check. Every rejection carries
// enough metadata for the caller to schedule a retry.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	Blocked    bool
}

// RateLimitError is returned by helpers that convert a refused Result into
// an error. It always carries a positive RetryAfter.
type RateLimitError struct {
	Identifier string
	RetryAfter time.Duration
	Blocked    bool
}

func (e *RateLimitError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("identifier %q is blocked, retry after %s", e.Identifier, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %q, retry after %s", e.Identifier, e.RetryAfter)
}

// Limiter checks identifiers against sliding-window policies. Counter state
// lives in a CounterStore so single-process and cluster deployments share
// the same checking logic.
type Limiter struct {
	store  CounterStore
	logger *zap.Logger
}

func NewLimiter(store CounterStore, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// CheckRateLimit records one request for identifier and reports whether it is
// allowed. Store failures fail open: an unreachable counter store must not
// take down the caller, so the request is allowed and the incident logged.
func (l *Limiter) CheckRateLimit(ctx context.Context, identifier string, policy Policy) Result {
	now := time.Now()

	blockedUntil, err := l.store.BlockedUntil(ctx, identifier)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("identifier", identifier), zap.Error(err))
		return Result{Allowed: true, Remaining: policy.MaxRequests}
	}
	if now.Before(blockedUntil) {
		return Result{
			Allowed:    false,
			Blocked:    true,
			Remaining:  0,
			ResetTime:  blockedUntil,
			RetryAfter: blockedUntil.Sub(now),
		}
	}

	count, oldest, allowed, err := l.store.TryAcquire(ctx, identifier, policy.Window, policy.MaxRequests)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("identifier", identifier), zap.Error(err))
		return Result{Allowed: true, Remaining: policy.MaxRequests}
	}

	resetTime := now.Add(policy.Window)
	if !oldest.IsZero() {
		resetTime = oldest.Add(policy.Window)
	}

	if allowed {
		remaining := policy.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		return Result{Allowed: true, Remaining: remaining, ResetTime: resetTime}
	}

	result := Result{
		Allowed:    false,
		Remaining:  0,
		ResetTime:  resetTime,
		RetryAfter: resetTime.Sub(now),
	}
	if result.RetryAfter <= 0 {
		result.RetryAfter = time.Millisecond
	}

	if policy.BlockDuration > 0 {
		until := now.Add(policy.BlockDuration)
		if err := l.store.Block(ctx, identifier, until); err != nil {
			l.logger.Warn("failed to record hard block",
				zap.String("identifier", identifier), zap.Error(err))
		} else {
			result.Blocked = true
			result.ResetTime = until
			result.RetryAfter = policy.BlockDuration
		}
	}

	l.logger.Debug("rate limit exceeded",
		zap.String("identifier", identifier),
		zap.Int("limit", policy.MaxRequests),
		zap.Duration("retry_after", result.RetryAfter),
		zap.Bool("blocked", result.Blocked))

	return result
}

// Allow is a convenience wrapper turning a refusal into a *RateLimitError.
func (l *Limiter) Allow(ctx context.Context, identifier string, policy Policy) error {
	result := l.CheckRateLimit(ctx, identifier, policy)
	if result.Allowed {
		return nil
	}
	return &RateLimitError{
		Identifier: identifier,
		RetryAfter: result.RetryAfter,
		Blocked:    result.Blocked,
	}
}
