// Package resilience provides the retry and circuit-breaker primitives that
// wrap calls to external collaborators.
//
// The central types are [Breaker], a classic three-state circuit breaker
// (closed → open → half-open) that shields the pipeline from a collaborator
// that is down for an extended period, and [Retry], a bounded
// exponential-backoff loop for calls that are safe to repeat.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] when the breaker is open and
// the cool-down period has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState represents the current operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed is the normal operating state — all calls go through.
	BreakerClosed BreakerState = iota

	// BreakerOpen means the breaker has tripped on consecutive failures.
	// Calls fail fast with [ErrBreakerOpen] until the cool-down elapses.
	BreakerOpen

	// BreakerHalfOpen is the probe state after the cool-down: a single call
	// is let through, and its outcome decides between closed and open.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker]. Zero values are replaced
// with defaults.
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// FailureLimit is the number of consecutive failures that trips the
	// breaker. Default: 5.
	FailureLimit int

	// CoolDown is how long the breaker stays open before it admits a single
	// probe call. Default: 30s.
	CoolDown time.Duration
}

// Breaker implements the three-state circuit breaker pattern with a
// single-probe half-open state.
type Breaker struct {
	name         string
	failureLimit int
	coolDown     time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker] with the supplied configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		failureLimit: cfg.FailureLimit,
		coolDown:     cfg.CoolDown,
	}
}

// Do runs fn if the breaker allows it, passing ctx through. In the open
// state it returns [ErrBreakerOpen] without calling fn. At most one probe
// call runs concurrently in the half-open state.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn(ctx)
	b.settle(probe, callErr)
	return callErr
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.coolDown {
			return false, ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probing = false
		slog.Info("breaker half-open, admitting probe", "name", b.name)
		fallthrough
	case BreakerHalfOpen:
		if b.probing {
			return false, ErrBreakerOpen
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if callErr == nil {
		if probe {
			slog.Info("breaker closed after successful probe", "name", b.name)
		}
		b.state = BreakerClosed
		b.failures = 0
		b.probing = false
		return
	}

	if probe {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.probing = false
		slog.Warn("breaker re-opened, probe failed", "name", b.name)
		return
	}

	b.failures++
	if b.state == BreakerClosed && b.failures >= b.failureLimit {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures)
	}
}

// State returns the current [BreakerState]. An open breaker whose cool-down
// has elapsed reports [BreakerHalfOpen]; the actual transition happens on
// the next [Breaker.Do] call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.coolDown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [BreakerClosed], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
	slog.Info("breaker manually reset", "name", b.name)
}
