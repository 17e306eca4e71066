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

// Package transport delivers batches to downstream sinks through an ordered
// chain, each member guarded by its own circuit breaker. Only the first
// transport to accept a batch is used; a failure records against that
// transport's breaker and the chain tries the next one.
package transport

import (
	"context"

	"auditpipe/event"
)

// Transport is the capability set every sink implements: send a batch,
// report a human-readable name for metrics/logging, and close cleanly.
// Replaces the source system's inheritance-based formatter/transport
// hierarchy with a narrow interface, per the re-architecture notes.
type Transport interface {
	Name() string
	Send(ctx context.Context, batch event.Batch) error
	Close() error
}

// Draining is an optional capability: transports that buffer internally
// (e.g. a file appender) can expose a replay/drain hook used by tests and
// by fallback-queue inspection tooling.
type Draining interface {
	Drain() ([]event.Event, error)
}
