package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerStaysClosedUnderLimit(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 3})
	fail := func(context.Context) error { return errBoom }
	ok := func(context.Context) error { return nil }

	ctx := context.Background()
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("State() = %v, want closed", got)
	}

	// The success above reset the counter; two more failures still do not
	// trip the breaker.
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("State() = %v, want closed after counter reset", got)
	}
}

func TestBreakerOpensAtLimitAndFailsFast(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 2, CoolDown: time.Hour})
	fail := func(context.Context) error { return errBoom }

	ctx := context.Background()
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	called := false
	err := b.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Do error = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Fatal("fn must not run while the breaker is open")
	}
}

func TestBreakerProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 1, CoolDown: time.Millisecond})
	ctx := context.Background()

	_ = b.Do(ctx, func(context.Context) error { return errBoom })
	time.Sleep(5 * time.Millisecond)

	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("State() = %v, want half-open after cool-down", got)
	}
	if err := b.Do(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe Do: %v", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("State() = %v, want closed after successful probe", got)
	}
}

func TestBreakerProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 1, CoolDown: time.Millisecond})
	ctx := context.Background()

	_ = b.Do(ctx, func(context.Context) error { return errBoom })
	time.Sleep(5 * time.Millisecond)

	if err := b.Do(ctx, func(context.Context) error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe Do error = %v, want errBoom", err)
	}
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("State() = %v, want open after failed probe", got)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 1, CoolDown: time.Hour})
	_ = b.Do(context.Background(), func(context.Context) error { return errBoom })
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	b.Reset()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("State() = %v, want closed after Reset", got)
	}
	if err := b.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do after Reset: %v", err)
	}
}
