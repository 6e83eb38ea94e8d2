// Package retry runs an operation under an explicit retry policy.
package retry

import (
	"context"
	"time"
)

// Policy describes how many times to try, how long to wait between tries and
// which errors are worth another attempt.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff returns the wait after failed attempt n (0-based). Nil means no wait.
	Backoff func(attempt int) time.Duration
	// IsRetryable reports whether err may succeed on retry. Nil retries everything.
	IsRetryable func(err error) bool
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Exponential returns a backoff of base * 2^attempt.
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		return base << uint(attempt)
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The last error is returned unchanged. If ctx is done
// while waiting, ctx.Err() is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if wait <= 0 {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
