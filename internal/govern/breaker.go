package govern

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// CircuitState is the state of the circuit breaker.
type CircuitState int32

// Circuit breaker states
const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name used in logs and the status snapshot.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the sliding-window evaluation and transition settings.
type BreakerConfig struct {
	// FailureRate is the failure ratio (0..1] that trips the breaker once
	// MinCalls have completed in the current window.
	FailureRate float64

	// MinCalls is the minimum completed calls in a window before the
	// failure rate is evaluated.
	MinCalls int64

	// Window is the length of the counting window.
	Window time.Duration

	// WaitDuration is how long the breaker stays open before a trial call
	// is permitted. It doubles as the idle-retry threshold.
	WaitDuration time.Duration

	// TrialCalls bounds concurrent trial calls while half-open, and is the
	// number of consecutive trial successes required to close.
	TrialCalls int32
}

// DefaultBreakerConfig returns a BreakerConfig with reasonable defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRate:  0.5,
		MinCalls:     5,
		Window:       time.Minute,
		WaitDuration: time.Minute,
		TrialCalls:   2,
	}
}

// BreakerController owns the circuit breaker state protecting the external
// LLM. It implements a count-window breaker (failure-rate threshold,
// minimum call count, bounded half-open trials) plus two forced transitions
// that automatic schedulers cannot provide, because they assume ongoing
// traffic which this system may not have:
//
//   - drain-to-close (ForceClose): once in-flight calls drain to zero while
//     open, the breaker is closed so "no traffic, no failures" is not
//     mistaken for recovery that never gets tested;
//   - idle-triggered retry (MaybeIdleRetry): open for at least WaitDuration
//     with no call admitted the whole time forces a half-open trial window.
//
// All state lives in atomics; the controller takes no locks.
type BreakerController struct {
	config BreakerConfig
	logger *slog.Logger

	state      atomic.Int32
	openedAt   atomic.Int64 // unix nanos; meaningful while open
	lastCallAt atomic.Int64 // unix nanos of the last admitted call

	windowStart atomic.Int64
	total       atomic.Int64
	failures    atomic.Int64

	trialInFlight  atomic.Int32
	trialSuccesses atomic.Int32
}

// NewBreakerController creates a BreakerController in the closed state.
func NewBreakerController(config BreakerConfig, logger *slog.Logger) *BreakerController {
	def := DefaultBreakerConfig()
	if config.FailureRate <= 0 || config.FailureRate > 1 {
		config.FailureRate = def.FailureRate
	}
	if config.MinCalls <= 0 {
		config.MinCalls = def.MinCalls
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.WaitDuration <= 0 {
		config.WaitDuration = def.WaitDuration
	}
	if config.TrialCalls <= 0 {
		config.TrialCalls = def.TrialCalls
	}

	b := &BreakerController{
		config: config,
		logger: logger,
	}
	b.windowStart.Store(time.Now().UnixNano())
	return b
}

// State returns the current circuit state.
func (b *BreakerController) State() CircuitState {
	return CircuitState(b.state.Load())
}

// OpenedAt returns when the breaker last opened. Zero time if it never has.
func (b *BreakerController) OpenedAt() time.Time {
	ns := b.openedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Allow reports whether a call may proceed right now. While open it permits
// nothing until WaitDuration has elapsed, at which point it transitions to
// half-open and admits up to TrialCalls trial calls.
// Returns ErrBreakerOpen when the call must not proceed.
func (b *BreakerController) Allow() error {
	for {
		switch CircuitState(b.state.Load()) {
		case StateClosed:
			b.maybeRotateWindow()
			b.lastCallAt.Store(time.Now().UnixNano())
			return nil

		case StateOpen:
			opened := b.openedAt.Load()
			if time.Since(time.Unix(0, opened)) < b.config.WaitDuration {
				return ErrBreakerOpen
			}
			// Wait elapsed under traffic; move to half-open and retry the
			// admission decision in that state.
			b.toHalfOpen("wait duration elapsed")

		case StateHalfOpen:
			for {
				inFlight := b.trialInFlight.Load()
				if inFlight >= b.config.TrialCalls {
					return ErrBreakerOpen
				}
				if b.trialInFlight.CompareAndSwap(inFlight, inFlight+1) {
					b.lastCallAt.Store(time.Now().UnixNano())
					return nil
				}
			}

		default:
			return ErrBreakerOpen
		}
	}
}

// RecordSuccess records a successful governed call.
func (b *BreakerController) RecordSuccess() {
	switch CircuitState(b.state.Load()) {
	case StateClosed:
		b.total.Add(1)

	case StateHalfOpen:
		b.trialInFlight.Add(-1)
		if b.trialSuccesses.Add(1) >= b.config.TrialCalls {
			if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
				b.resetWindow()
				b.logger.Info("circuit breaker closed",
					"reason", "half-open trial calls succeeded")
			}
		}
	}
}

// RecordFailure records a failed governed call (including deadline expiry).
func (b *BreakerController) RecordFailure() {
	switch CircuitState(b.state.Load()) {
	case StateClosed:
		total := b.total.Add(1)
		failures := b.failures.Add(1)
		if total >= b.config.MinCalls &&
			float64(failures)/float64(total) >= b.config.FailureRate {
			if b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
				b.openedAt.Store(time.Now().UnixNano())
				b.logger.Warn("circuit breaker opened",
					"reason", "failure rate threshold reached",
					"window_calls", total,
					"window_failures", failures)
			}
		}

	case StateHalfOpen:
		b.trialInFlight.Add(-1)
		if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
			b.openedAt.Store(time.Now().UnixNano())
			b.logger.Warn("circuit breaker reopened",
				"reason", "half-open trial call failed")
		}
	}
}

// ForceClose applies the drain-to-close policy: called by the governor when
// the last in-flight call completes while the breaker is open. A safe no-op
// in any other state.
//
// Policy note: the close is unconditional, even when the resource may still
// be failing; the very next call can reopen the breaker immediately. An open
// breaker with zero traffic would otherwise stay open forever.
func (b *BreakerController) ForceClose(reason string) {
	for {
		s := b.state.Load()
		if CircuitState(s) == StateClosed {
			return
		}
		if b.state.CompareAndSwap(s, int32(StateClosed)) {
			b.resetWindow()
			b.logger.Info("circuit breaker force-closed",
				"reason", reason,
				"previous_state", CircuitState(s).String())
			return
		}
	}
}

// MaybeIdleRetry applies the idle-triggered retry policy: if the breaker
// has been open for at least WaitDuration without admitting a single call,
// it is forced to half-open so the next caller runs a trial. Reports
// whether a transition happened; a safe no-op otherwise.
func (b *BreakerController) MaybeIdleRetry() bool {
	if CircuitState(b.state.Load()) != StateOpen {
		return false
	}

	opened := b.openedAt.Load()
	if time.Since(time.Unix(0, opened)) < b.config.WaitDuration {
		return false
	}
	if b.lastCallAt.Load() > opened {
		// Traffic happened since opening; the regular Allow path handles it.
		return false
	}

	if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
		b.trialInFlight.Store(0)
		b.trialSuccesses.Store(0)
		b.logger.Info("circuit breaker forced half-open",
			"reason", "open and idle beyond wait duration",
			"open_since", time.Unix(0, opened))
		return true
	}
	return false
}

// toHalfOpen transitions Open -> HalfOpen and resets the trial counters.
func (b *BreakerController) toHalfOpen(reason string) {
	if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
		b.trialInFlight.Store(0)
		b.trialSuccesses.Store(0)
		b.logger.Info("circuit breaker half-open", "reason", reason)
	}
}

// maybeRotateWindow starts a fresh counting window when the current one has
// aged out. Counter resets after a lost CAS race are skipped; the skew of a
// few calls does not affect safety.
func (b *BreakerController) maybeRotateWindow() {
	start := b.windowStart.Load()
	now := time.Now().UnixNano()
	if now-start < b.config.Window.Nanoseconds() {
		return
	}
	if b.windowStart.CompareAndSwap(start, now) {
		b.total.Store(0)
		b.failures.Store(0)
	}
}

// resetWindow clears all counters and stamps a fresh window.
func (b *BreakerController) resetWindow() {
	b.windowStart.Store(time.Now().UnixNano())
	b.total.Store(0)
	b.failures.Store(0)
	b.trialInFlight.Store(0)
	b.trialSuccesses.Store(0)
}
