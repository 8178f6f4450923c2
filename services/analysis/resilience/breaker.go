// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resilience provides the failure-isolation primitives of the
// analysis core: per-service circuit breakers and a bounded retry
// executor with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrCircuitOpen is returned when a breaker short-circuits a call and no
// fallback is available. The breaker manages its own retry timeline, so
// this error is not retryable at the executor layer.
var ErrCircuitOpen = errors.New("circuit breaker is open")

var breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clarity_analysis_breaker_transitions_total",
	Help: "Circuit breaker state transitions by service and target state",
}, []string{"service", "state"})

// Clock supplies current time so breaker timing can be tested without
// sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// State is the circuit breaker state.
type State int

const (
	// StateClosed passes calls through normally.
	StateClosed State = iota

	// StateOpen short-circuits calls until the timeout elapses.
	StateOpen

	// StateHalfOpen allows a single call through to probe recovery.
	StateHalfOpen
)

// String returns the human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the failure count that opens the breaker.
	// Default: 5
	FailureThreshold int

	// Timeout is how long the breaker stays open before allowing a
	// probe call through. Default: 30s
	Timeout time.Duration
}

// DefaultBreakerConfig returns the policy defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
	}
}

// Fallback produces a substitute value when the breaker is open.
type Fallback func() (string, error)

// CircuitBreaker isolates one unreliable external service.
//
// State machine:
//   - closed: calls pass through; failures increment a counter; reaching
//     the threshold opens the breaker.
//   - open: calls are short-circuited until Timeout has elapsed since the
//     last failure, then the next call is allowed through (half-open).
//   - half-open: exactly one probe call is admitted; concurrent callers
//     are short-circuited until it settles. A probe success closes the
//     breaker and zeroes the failure count; a failure re-opens it and
//     restarts the timeout window.
//
// One breaker instance exists per external-service identifier, shared by
// all concurrent callers, so health state is global to the dependency.
//
// Thread Safety: CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	service     string
	config      BreakerConfig
	clock       Clock
	state       State
	probing     bool
	failures    int
	lastFailure time.Time
}

// NewCircuitBreaker creates a breaker in the closed state. A nil clock
// defaults to the system clock.
func NewCircuitBreaker(service string, config BreakerConfig, clock Clock) *CircuitBreaker {
	if clock == nil {
		clock = SystemClock()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBreakerConfig().Timeout
	}
	return &CircuitBreaker{
		service: service,
		config:  config,
		clock:   clock,
		state:   StateClosed,
	}
}

// Execute runs fn under breaker protection.
//
// If the breaker is open and the timeout has not elapsed, fn is not
// called: the fallback result is returned when one is supplied, and
// ErrCircuitOpen otherwise. Once the timeout elapses the breaker moves to
// half-open and lets fn through as a probe.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) (string, error), fallback Fallback) (string, error) {
	if !cb.allow() {
		if fallback != nil {
			return fallback()
		}
		return "", ErrCircuitOpen
	}

	out, err := fn(ctx)
	if err != nil {
		cb.RecordFailure()
		return "", err
	}
	cb.RecordSuccess()
	return out, nil
}

// allow reports whether a call may proceed, transitioning open -> half-open
// when the timeout window has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	case StateOpen:
		if cb.clock.Now().Sub(cb.lastFailure) >= cb.config.Timeout {
			cb.transitionLocked(StateHalfOpen)
			cb.probing = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call. In half-open state this closes
// the breaker and zeroes the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// RecordFailure records a failed call. Reaching the threshold in closed
// state, or any failure in half-open state, opens the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.clock.Now()
	cb.probing = false

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset returns the breaker to the closed state with zero failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.lastFailure = time.Time{}
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// transitionLocked changes state. Must be called with the mutex held.
func (cb *CircuitBreaker) transitionLocked(next State) {
	cb.state = next
	breakerTransitions.WithLabelValues(cb.service, next.String()).Inc()
}
