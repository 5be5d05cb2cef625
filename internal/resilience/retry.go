package resilience

import (
	"context"
	"math"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry calls fn until it succeeds, attempts run out or ctx is done. It
// returns the last error from fn, or ctx's error when cancelled while
// waiting.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Backoff returns the wait before retry number attempt+1.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(factor, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
