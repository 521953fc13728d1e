package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds a retry loop. Zero values are replaced with defaults.
//
// Only idempotent, read-only calls should be retried; a dispatch that may
// have reached the far side must use MaxAttempts = 1 to preserve
// at-most-once delivery.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; each subsequent wait
	// doubles. Default: 200ms.
	BaseDelay time.Duration

	// MaxDelay caps the doubling. Default: 5s.
	MaxDelay time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	return p
}

// NoRetry is the policy for calls with at-most-once semantics.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// Retry runs fn up to policy.MaxAttempts times with jittered exponential
// backoff, returning nil on the first success. The last error is returned
// when all attempts fail; waiting ends early when ctx is cancelled.
func Retry(ctx context.Context, name string, policy RetryPolicy, fn func(context.Context) error) error {
	_, err := RetryValue(ctx, name, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is [Retry] for calls that produce a value.
func RetryValue[T any](ctx context.Context, name string, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	policy = policy.withDefaults()

	var zero T
	delay := policy.BaseDelay
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= policy.MaxAttempts || ctx.Err() != nil {
			return zero, err
		}

		// Full jitter keeps concurrent retriers from synchronising.
		wait := time.Duration(rand.Int64N(int64(delay)) + 1)
		slog.Debug("retrying after failure",
			"name", name,
			"attempt", attempt,
			"wait", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
