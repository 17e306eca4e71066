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

// Package fallback holds batches a transport chain could not deliver, for
// later re-submission, with an optional durable backing store.
package fallback

import (
	"context"
	"sync"

	"auditpipe/event"
)

// DefaultMaxQueueSize matches the contract's default fallback sizing.
const DefaultMaxQueueSize = 1000

// DrainFunc resubmits a batch, returning nil on successful delivery.
type DrainFunc func(ctx context.Context, batch event.Batch) error

// Queue is a bounded in-memory store of events the transport chain could
// not deliver. It is oldest-first eviction when full, distinct from the
// main buffer's drop-newest policy: a stalled downstream should not starve
// the newest arrivals out of the one place left to hold them.
type Queue struct {
	mu       sync.Mutex
	events   []event.Event
	capacity int

	queuedCount   int64
	drainedCount  int64
	evictedCount  int64
}

// NewQueue builds a Queue bounded at capacity events. capacity <= 0 uses
// DefaultMaxQueueSize.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultMaxQueueSize
	}
	return &Queue{capacity: capacity}
}

// Offer enqueues every event in batch, evicting the oldest queued events to
// make room when the queue is over capacity. Returns false only when the
// batch itself is larger than the queue's total capacity, since no amount
// of eviction could ever make it fit; the caller should treat that as a
// fatal delivery failure rather than retry the offer.
func (q *Queue) Offer(batch event.Batch) bool {
	if batch.Size() > q.capacity {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, batch.Events...)
	q.queuedCount += int64(batch.Size())
	if over := len(q.events) - q.capacity; over > 0 {
		q.events = q.events[over:]
		q.evictedCount += int64(over)
	}
	return true
}

// Len reports the number of events currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Stats reports lifetime queued/drained/evicted counters for observability.
func (q *Queue) Stats() (queued, drained, evicted int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queuedCount, q.drainedCount, q.evictedCount
}

// Drain attempts to resubmit every queued event (rebatched as one batch)
// through fn. A successful drain empties the queue; a failed drain leaves
// the queue untouched so the next periodic drain retries the same events.
func (q *Queue) Drain(ctx context.Context, fn DrainFunc) error {
	q.mu.Lock()
	if len(q.events) == 0 {
		q.mu.Unlock()
		return nil
	}
	events := make([]event.Event, len(q.events))
	copy(events, q.events)
	q.mu.Unlock()

	batch := event.NewBatch(events)
	if err := fn(ctx, batch); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	// Only remove the events that were part of the drained snapshot; any
	// concurrent Offer that arrived mid-drain appended after them.
	if len(q.events) >= len(events) {
		q.events = q.events[len(events):]
	}
	q.drainedCount += int64(len(events))
	return nil
}
