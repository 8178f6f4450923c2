// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import "sync"

// Registry holds one circuit breaker per external-service identifier.
//
// Breakers are created lazily on first use and never destroyed, so health
// state is shared across every concurrent caller targeting the same
// dependency. Construct one registry at process start and inject it;
// isolated instances keep tests independent.
//
// Thread Safety: Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	config BreakerConfig
	clock  Clock
}

// NewRegistry creates an empty breaker registry. A nil clock defaults to
// the system clock.
func NewRegistry(config BreakerConfig, clock Clock) *Registry {
	if clock == nil {
		clock = SystemClock()
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		clock:    clock,
	}
}

// Get returns the breaker for a service id, creating it on first use.
func (r *Registry) Get(service string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[service]
	if !ok {
		cb = NewCircuitBreaker(service, r.config, r.clock)
		r.breakers[service] = cb
	}
	return cb
}

// Reset returns the named breaker to closed with zero failures. A no-op
// for unknown service ids.
func (r *Registry) Reset(service string) {
	r.mu.Lock()
	cb, ok := r.breakers[service]
	r.mu.Unlock()
	if ok {
		cb.Reset()
	}
}

// States returns a snapshot of every known breaker's state.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for service, cb := range r.breakers {
		out[service] = cb.State()
	}
	return out
}
