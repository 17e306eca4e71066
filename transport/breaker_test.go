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
	"errors"
	"testing"
	"time"

	"auditpipe/errs"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker("t", 3, time.Minute, 1)
	for i := 0; i < 3; i++ {
		b.Execute(func() error { return errBoom })
	}
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after %d consecutive failures, got %v", 3, b.State())
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b := NewCircuitBreaker("t", 1, time.Minute, 1)
	b.Execute(func() error { return errBoom })

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if called {
		t.Fatalf("fn should not run while breaker is OPEN")
	}
	var coe *errs.CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if !errors.Is(err, errs.ErrCircuitOpen) {
		t.Fatalf("expected errors.Is to match ErrCircuitOpen")
	}
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	b := NewCircuitBreaker("t", 1, 10*time.Millisecond, 1)
	b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after reset timeout elapsed, got %v", got)
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b := NewCircuitBreaker("t", 1, 10*time.Millisecond, 2)
	b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to run in HALF_OPEN, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected to remain HALF_OPEN before reaching success threshold")
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error on second probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after reaching success threshold, got %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker("t", 1, 10*time.Millisecond, 1)
	b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("expected a HALF_OPEN failure to reopen the breaker, got %v", b.State())
	}
}

func TestBreakerClosedSuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker("t", 3, time.Minute, 1)
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED since no 3 consecutive failures occurred, got %v", b.State())
	}
}
