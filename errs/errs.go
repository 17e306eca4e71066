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

// Package errs defines the pipeline's error taxonomy as sentinel and wrapped
// error values, following the teacher's persistence-adapter convention of
// fmt.Errorf("...: %w", err) rather than bespoke panic/recover control flow.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds. Use errors.Is against these, or errors.As against the
// richer struct types below when a kind carries extra fields.
var (
	// ErrBufferFull is returned by Orchestrator.Log when Buffer.Push reports
	// the FIFO at capacity; the admission policy is drop-newest, so the
	// caller's event is rejected.
	ErrBufferFull = errors.New("buffer full")

	// ErrCircuitOpen is returned by a CircuitBreaker's Execute when the
	// breaker is OPEN and has not yet reached its reset timeout.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrDeliveryFatal indicates every transport in the chain failed and the
	// fallback queue was also full; the event is lost.
	ErrDeliveryFatal = errors.New("delivery fatal: all transports failed and fallback queue full")

	// ErrConfigInvalid marks a fatal configuration problem raised only at
	// orchestrator construction time.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ValidationError reports a schema mismatch. It is WARN-level: the event may
// still be emitted, carrying the field-qualified messages for observability.
type ValidationError struct {
	SchemaName string
	Errors     []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for schema %q: %d error(s)", e.SchemaName, len(e.Errors))
}

// RateLimitError reports that admission was refused for a key. Orchestrator.Log
// returns it at once by default; only when Config.RateLimitMaxWait > 0 does Log
// first wait up to that long for a token, returning it when the wait runs out.
type RateLimitError struct {
	Key     string
	WaitFor time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit: key %q must wait %v before admission", e.Key, e.WaitFor)
}

// TransportError wraps a per-transport delivery failure. It drives the
// owning CircuitBreaker's failure count and is retriable within the
// transport's own retry policy before the breaker opens.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %q: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CircuitOpenError is the richer form of ErrCircuitOpen, carrying the
// transport name and an estimate of how long to wait before retrying.
type CircuitOpenError struct {
	Transport    string
	RetryAfterMs int64
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for transport %q, retry after %dms", e.Transport, e.RetryAfterMs)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// ConfigError is FATAL and only ever raised during orchestrator
// construction; the process should not start with one outstanding.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: field %q: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// WrapTransport wraps err as a TransportError, following the teacher's
// persistence-adapter style of naming the backend and operation in the
// wrapped message (e.g. "redis eval key=%s commit=%s: %w").
func WrapTransport(transport string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Transport: transport, Err: err}
}

// WrapConfig wraps err as a ConfigError naming the offending field.
func WrapConfig(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Field: field, Err: err}
}
