package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: reset})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())

	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	allowed, err := cb.Allow()
	assert.False(t, allowed)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeUnavailable, GetErrorType(err))
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(11 * time.Second)
	allowed, err := cb.Allow()
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// a second caller is rejected while the probe is in flight
	allowed, _ = cb.Allow()
	assert.False(t, allowed)

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, now := newTestBreaker(2, time.Second)
	cb.RecordFailure()
	cb.RecordFailure()

	*now = now.Add(2 * time.Second)
	allowed, _ := cb.Allow()
	require.True(t, allowed)

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_Call(t *testing.T) {
	t.Run("records outcomes", func(t *testing.T) {
		cb, _ := newTestBreaker(2, time.Minute)
		boom := NewError(ErrorTypeEndpoint, "upstream 500", true, nil)

		assert.NoError(t, cb.Call(context.Background(), func(context.Context) error { return nil }))
		assert.ErrorIs(t, cb.Call(context.Background(), func(context.Context) error { return boom }), boom)
		assert.Equal(t, 1, cb.ConsecutiveFailures())

		_ = cb.Call(context.Background(), func(context.Context) error { return boom })
		assert.Equal(t, CircuitOpen, cb.State())

		called := false
		err := cb.Call(context.Background(), func(context.Context) error { called = true; return nil })
		assert.False(t, called, "open circuit fails fast")
		assert.Equal(t, ErrorTypeUnavailable, GetErrorType(err))
	})

	t.Run("caller cancellation is not a provider failure", func(t *testing.T) {
		cb, _ := newTestBreaker(1, time.Minute)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, CircuitClosed, cb.State())
		assert.Zero(t, cb.ConsecutiveFailures())
	})

	t.Run("abandoned probe lets the next caller probe", func(t *testing.T) {
		cb, now := newTestBreaker(1, time.Second)
		cb.RecordFailure()
		*now = now.Add(2 * time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.Equal(t, CircuitOpen, cb.State())

		allowed, err := cb.Allow()
		assert.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
