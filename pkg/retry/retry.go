package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds retry configuration for one-shot operations such as REST
// vendor calls. Streaming reconnect loops use cenkalti/backoff instead.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	Logger        *zap.Logger
}

// DefaultConfig returns the retry defaults used for HTTP vendor requests.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		Logger:        zap.NewNop(),
	}
}

// Do executes fn with exponential backoff, stopping early on context
// cancellation or a non-temporary error.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				config.Logger.Info("operation succeeded after retry",
					zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if !IsTemporary(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := delayFor(attempt, config)
		config.Logger.Warn("operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func delayFor(attempt int, config Config) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		delay += delay * 0.1 * (rand.Float64()*2 - 1) // ±10%
	}
	return time.Duration(delay)
}

var temporaryPatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"network is unreachable",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"server busy",
	"internal server error",
	"bad gateway",
	"gateway timeout",
}

// IsTemporary reports whether an error is likely transient and worth
// retrying.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range temporaryPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
