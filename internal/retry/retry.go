// Package retry implements exponential backoff with jitter for transient
// failures, grounded on the teacher's internal/cron/retry.go
// ExecuteWithRetry, generalized to a context-aware generic helper so it
// can wrap both a task's HTTP calls and the scheduler's own transient
// store/bus errors.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config controls exponential backoff retry.
type Config struct {
	MaxRetries int           // max retry attempts beyond the first try (0 = no retry)
	BaseDelay  time.Duration // initial backoff delay
	MaxDelay   time.Duration // maximum backoff delay
}

// DefaultConfig returns sensible defaults: 3 retries, 2s base, 30s cap.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Do runs fn, retrying on error with exponential backoff plus jitter.
// It returns the first successful result, or the last error once
// MaxRetries is exhausted. ctx cancellation aborts the retry loop
// immediately.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (result T, attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)):
			case <-ctx.Done():
				return result, attempt + 1, ctx.Err()
			}
		}
	}
	return result, cfg.MaxRetries + 1, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) ± 25%.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}
