package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastPolicy keeps test backoff waits in the microsecond range.
var fastPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Microsecond, MaxDelay: 10 * time.Microsecond}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), "test", fastPolicy, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	last := errors.New("attempt 3")
	calls := 0
	err := Retry(context.Background(), "test", fastPolicy, func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errBoom
	})
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want %v", err, last)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryValueReturnsValue(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := RetryValue(context.Background(), "test", fastPolicy, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errBoom
		}
		return "transcript", nil
	})
	if err != nil {
		t.Fatalf("RetryValue: %v", err)
	}
	if v != "transcript" {
		t.Fatalf("value = %q, want %q", v, "transcript")
	}
}

func TestRetryHonoursNoRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), "dispatch", NoRetry, func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "test", RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errBoom
	})
	if err == nil {
		t.Fatal("Retry returned nil after cancellation")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
