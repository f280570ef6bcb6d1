package llm

import (
	"context"
	"sync"
	"time"
)

// CircuitState is the breaker position.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // calls pass
	CircuitOpen                         // calls fail fast until the cool-down ends
	CircuitHalfOpen                     // one probe call is in flight
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults used when a breaker is built without configuration.
const (
	DefaultCircuitThreshold  = 5
	DefaultCircuitResetAfter = 30 * time.Second
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that trips the circuit.
	Threshold int
	// ResetAfter is how long the circuit stays open before a probe.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns the default thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: DefaultCircuitThreshold, ResetAfter: DefaultCircuitResetAfter}
}

// CircuitBreaker keeps the pipeline from waiting on a provider that keeps
// failing. While open, callers go straight to their deterministic fallback.
// One breaker is shared by planning and phrasing since both hit the same
// provider.
type CircuitBreaker struct {
	mu          sync.Mutex
	fails       int
	threshold   int
	resetAfter  time.Duration
	lastFailure time.Time
	state       CircuitState
	now         func() time.Time
}

// NewCircuitBreaker returns a closed breaker. Non-positive values take the
// defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultCircuitThreshold
	}
	if config.ResetAfter <= 0 {
		config.ResetAfter = DefaultCircuitResetAfter
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		now:        time.Now,
	}
}

// Allow reports whether a call may proceed. A refusal carries an *Error of
// type ErrorTypeUnavailable.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, NewError(ErrorTypeUnavailable, "circuit breaker open", false, nil)
	default:
		return false, NewError(ErrorTypeUnavailable, "circuit breaker half-open: probe in flight", false, nil)
	}
}

// Call runs fn when the circuit allows it and records the outcome. Errors
// that follow the caller's own cancellation are not held against the
// provider; an abandoned probe returns the circuit to open so the next
// caller probes again.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if ok, err := cb.Allow(); !ok {
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case ctx.Err() != nil:
		cb.abandon()
	default:
		cb.RecordFailure()
	}
	return err
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.fails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure. The threshold trips the circuit and a
// failed probe reopens it at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.fails++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.fails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the failures since the last success.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.fails
}
