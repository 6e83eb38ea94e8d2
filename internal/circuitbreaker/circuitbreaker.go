// Package circuitbreaker stops calling a failing dependency for a cool-down
// period, then lets probe calls through to decide whether to close again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling fn while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state.
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
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters. Zero values take defaults.
type Config struct {
	FailureThreshold int           // consecutive failures that open the circuit (default 5)
	SuccessThreshold int           // half-open successes that close it (default 2)
	Timeout          time.Duration // open period before probing (default 30s)
	Component        string
	OnStateChange    func(component string, from, to State)
	// IsFailure decides which errors count against the circuit. Nil counts all.
	IsFailure func(err error) bool
	Now       func() time.Time
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	cfg             Config
}

// New creates a CircuitBreaker in the closed state.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{state: StateClosed, cfg: cfg}
}

// Call runs fn when the circuit allows it and records the outcome. While open
// it returns ErrOpen until Timeout has elapsed, then moves to half-open.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.cfg.Now().Sub(cb.lastFailureTime) < cb.cfg.Timeout {
		cb.mu.Unlock()
		return ErrOpen
	}
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.mu.Unlock()
	cb.notify(StateOpen, StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))

	cb.mu.Lock()
	from := cb.state
	to := from
	if failed {
		cb.failureCount++
		cb.lastFailureTime = cb.cfg.Now()
		if from == StateHalfOpen || cb.failureCount >= cb.cfg.FailureThreshold {
			to = StateOpen
			cb.failureCount = 0
		}
	} else {
		cb.failureCount = 0
		cb.successCount++
		if from == StateHalfOpen && cb.successCount >= cb.cfg.SuccessThreshold {
			to = StateClosed
			cb.successCount = 0
		}
	}
	cb.state = to
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Component, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
