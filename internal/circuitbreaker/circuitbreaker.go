// Package circuitbreaker guards the postgres store against a flapping
// backend. After enough consecutive failures calls fail fast with
// ErrCircuitOpen instead of piling up on a dead connection; after a
// cool-off period a few probe calls decide whether to close again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/vrui-vr/networkviewer/internal/metrics"
)

// ErrCircuitOpen is returned by Call while the breaker refuses traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Config tunes a breaker. Zero fields fall back to defaults.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures that trip the breaker
	SuccessThreshold int           // probe successes needed to close from half-open
	Timeout          time.Duration // cool-off before the first probe
}

type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))

	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		state:            StateClosed,
	}
}

// Call runs fn unless the breaker is open. The error from fn is passed
// through unchanged so callers can still inspect it.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

// allow reports whether a call may proceed, moving an open breaker to
// half-open once the cool-off has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) > cb.timeout {
		cb.transition(StateHalfOpen)
	}
	return cb.state != StateOpen
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		// A failed probe reopens immediately.
		cb.trip()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.transition(StateOpen)
	cb.openedAt = time.Now()
	metrics.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
}

// transition switches state, resets the counters, and mirrors the new
// state into the gauge. Callers hold cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(to))
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
