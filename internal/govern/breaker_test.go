package govern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tripBreaker drives b open by recording failures until the threshold hits.
func tripBreaker(t *testing.T, b *BreakerController, minCalls int) {
	t.Helper()
	for i := 0; i < minCalls; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())
}

func TestBreakerController_StartsClosed(t *testing.T) {
	t.Parallel()

	b := NewBreakerController(DefaultBreakerConfig(), testLogger())
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
	assert.True(t, b.OpenedAt().IsZero())
}

func TestBreakerController_TripsOnFailureRate(t *testing.T) {
	t.Parallel()

	b := NewBreakerController(BreakerConfig{
		FailureRate:  0.5,
		MinCalls:     4,
		Window:       time.Minute,
		WaitDuration: time.Minute,
		TrialCalls:   1,
	}, testLogger())

	// Two successes, one failure: below both thresholds.
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	// Fourth call fails: 2/4 reaches the 0.5 rate with MinCalls met.
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.OpenedAt().IsZero())

	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerController_BelowMinCallsNeverTrips(t *testing.T) {
	t.Parallel()

	b := NewBreakerController(BreakerConfig{
		FailureRate:  0.1,
		MinCalls:     10,
		Window:       time.Minute,
		WaitDuration: time.Minute,
		TrialCalls:   1,
	}, testLogger())

	for i := 0; i < 9; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerController_HalfOpenAfterWait(t *testing.T) {
	t.Parallel()

	b := NewBreakerController(BreakerConfig{
		FailureRate:  1,
		MinCalls:     1,
		Window:       time.Minute,
		WaitDuration: 20 * time.Millisecond,
		TrialCalls:   2,
	}, testLogger())

	tripBreaker(t, b, 1)
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	time.Sleep(30 * time.Millisecond)

	// Wait elapsed: up to TrialCalls trial calls are admitted, no more.
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerController_HalfOpenClosesAfterTrialSuccesses(t *testing.T) {
	t.Parallel()

	b := NewBreakerController(BreakerConfig{
		FailureRate:  1,
		MinCalls:     1,
		Window:       time.Minute,
		WaitDuration: 10 * time.Millisecond,
		TrialCalls:   2,
	}, testLogger())

	tripBreaker(t, b, 1)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Allow())
	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerController_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := NewBreakerController(BreakerConfig{
		FailureRate:  1,
		MinCalls:     1,
		Window:       time.Minute,
		WaitDuration: 10 * time.Millisecond,
		TrialCalls:   2,
	}, testLogger())

	tripBreaker(t, b, 1)
	firstOpen := b.OpenedAt()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, StateOpen, b.State())
	assert.True(t, b.OpenedAt().After(firstOpen))
}

func TestBreakerController_ForceClose(t *testing.T) {
	t.Parallel()

	t.Run("closes an open breaker", func(t *testing.T) {
		t.Parallel()

		b := NewBreakerController(BreakerConfig{
			FailureRate: 1, MinCalls: 1,
			Window: time.Minute, WaitDuration: time.Minute, TrialCalls: 1,
		}, testLogger())

		tripBreaker(t, b, 1)
		b.ForceClose("in-flight calls drained to zero")
		assert.Equal(t, StateClosed, b.State())
		assert.NoError(t, b.Allow())
	})

	t.Run("no-op when already closed", func(t *testing.T) {
		t.Parallel()

		b := NewBreakerController(DefaultBreakerConfig(), testLogger())
		b.ForceClose("in-flight calls drained to zero")
		b.ForceClose("in-flight calls drained to zero")
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreakerController_MaybeIdleRetry(t *testing.T) {
	t.Parallel()

	t.Run("forces half-open after idle wait", func(t *testing.T) {
		t.Parallel()

		b := NewBreakerController(BreakerConfig{
			FailureRate: 1, MinCalls: 1,
			Window: time.Minute, WaitDuration: 20 * time.Millisecond, TrialCalls: 1,
		}, testLogger())

		tripBreaker(t, b, 1)

		assert.False(t, b.MaybeIdleRetry(), "wait duration not yet elapsed")

		time.Sleep(30 * time.Millisecond)
		assert.True(t, b.MaybeIdleRetry())
		assert.Equal(t, StateHalfOpen, b.State())

		// Idempotent once transitioned.
		assert.False(t, b.MaybeIdleRetry())
	})

	t.Run("no-op when closed", func(t *testing.T) {
		t.Parallel()

		b := NewBreakerController(DefaultBreakerConfig(), testLogger())
		assert.False(t, b.MaybeIdleRetry())
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreakerController_WindowRotationResetsCounts(t *testing.T) {
	t.Parallel()

	b := NewBreakerController(BreakerConfig{
		FailureRate:  0.5,
		MinCalls:     4,
		Window:       30 * time.Millisecond,
		WaitDuration: time.Minute,
		TrialCalls:   1,
	}, testLogger())

	// Three failures land in the first window; MinCalls is not reached.
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateClosed, b.State())

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, b.Allow()) // rotates the window

	// One more failure alone cannot trip a fresh window.
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
