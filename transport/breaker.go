// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"sync"
	"time"

	"auditpipe/errs"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker is a per-transport CLOSED/OPEN/HALF_OPEN state machine,
// called via Execute(func() error) error the way the audit-logger example's
// hand-rolled breaker is used (l.circuitBreaker.Execute(func() error {...})).
// No pack repo ships a fetchable breaker library with usable source, so this
// is implemented in-module rather than imported.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	consecutiveSuccess  int
	openedAt            time.Time
	generation          uint64 // invalidates stale half-open probes
}

// NewCircuitBreaker constructs a breaker. Values <= 0 take the defaults:
// failureThreshold 5, resetTimeout 60s, successThreshold 2.
func NewCircuitBreaker(name string, failureThreshold int, resetTimeout time.Duration, successThreshold int) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		resetTimeout:     resetTimeout,
		state:            StateClosed,
	}
}

// State reports the breaker's current state, probing OPEN → HALF_OPEN if the
// reset timeout has elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *CircuitBreaker) stateLocked() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.resetTimeout {
		b.state = StateHalfOpen
		b.consecutiveSuccess = 0
		b.generation++
	}
	return b.state
}

// Execute runs fn if the breaker permits it, recording the outcome against
// the state machine. When the breaker rejects the call outright it returns
// a *errs.CircuitOpenError without invoking fn.
func (b *CircuitBreaker) Execute(fn func() error) error {
	b.mu.Lock()
	state := b.stateLocked()
	if state == StateOpen {
		retryAfter := b.resetTimeout - time.Since(b.openedAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		b.mu.Unlock()
		return &errs.CircuitOpenError{Transport: b.name, RetryAfterMs: retryAfter.Milliseconds()}
	}
	generation := b.generation
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	// A half-open probe that outlasted a generation bump (another goroutine
	// already resolved this probe window) no longer affects state.
	if generation != b.generation {
		return err
	}
	if err != nil {
		b.onFailureLocked()
		return err
	}
	b.onSuccessLocked()
	return nil
}

func (b *CircuitBreaker) onFailureLocked() {
	switch b.state {
	case StateHalfOpen:
		b.openLocked()
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.openLocked()
		}
	}
}

func (b *CircuitBreaker) onSuccessLocked() {
	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.consecutiveSuccess++
		if b.consecutiveSuccess >= b.successThreshold {
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccess = 0
			b.generation++
		}
	}
}

func (b *CircuitBreaker) openLocked() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.consecutiveFailures = 0
	b.consecutiveSuccess = 0
	b.generation++
}

// Name returns the transport name this breaker guards.
func (b *CircuitBreaker) Name() string { return b.name }
