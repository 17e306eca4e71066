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
	"context"
	"errors"
	"fmt"
	"time"

	"auditpipe/errs"
	"auditpipe/event"
)

// Fallback receives batches that every transport in a Chain rejected. The
// fallback package's Queue satisfies this with Offer; keeping it an interface
// here avoids an import cycle and lets tests use a fake.
type Fallback interface {
	Offer(batch event.Batch) bool
}

// Observer receives per-member delivery outcomes from a Chain, so a caller
// can drive metrics without this package depending on a particular metrics
// backend. All three methods are called with the transport's Name().
type Observer interface {
	OnSuccess(transport string)
	OnFailure(transport string, err error)
	OnRejected(transport string)
}

type member struct {
	transport Transport
	breaker   *CircuitBreaker
}

// Chain delivers a batch through an ordered list of transports, each guarded
// by its own circuit breaker. The first transport whose breaker is closed
// (or half-open) and whose Send succeeds wins; everything else is a
// recorded failure feeding that transport's breaker. If every member
// rejects the batch, it is diverted to Fallback.
type Chain struct {
	members  []member
	fallback Fallback
	observer Observer
}

// NewChain builds an empty Chain that diverts to fallback (which may be nil).
// Members are appended in priority order with Add, which takes each
// transport's own breaker thresholds.
func NewChain(fallback Fallback) *Chain {
	return &Chain{fallback: fallback}
}

// Add appends a transport to the end of the chain, guarded by a new breaker.
func (c *Chain) Add(t Transport, failureThreshold int, resetTimeout time.Duration, successThreshold int) {
	c.members = append(c.members, member{
		transport: t,
		breaker:   NewCircuitBreaker(t.Name(), failureThreshold, resetTimeout, successThreshold),
	})
}

// SetObserver installs the per-member success/failure/rejection callback.
// Pass nil to stop observing.
func (c *Chain) SetObserver(o Observer) {
	c.observer = o
}

// Send attempts delivery through the chain in order, returning nil on the
// first accepted batch. If every transport's breaker rejects the call or
// every Send fails, the batch is offered to the fallback queue; if that
// queue is also full, errs.ErrDeliveryFatal is returned.
func (c *Chain) Send(ctx context.Context, batch event.Batch) error {
	err := c.sendThroughMembers(ctx, batch)
	if err == nil {
		return nil
	}

	if c.fallback != nil && c.fallback.Offer(batch) {
		return nil
	}
	if errors.Is(err, errs.ErrDeliveryFatal) {
		return err
	}
	return fmt.Errorf("%w: %v", errs.ErrDeliveryFatal, err)
}

// SendDirect attempts delivery through the chain's transports only; unlike
// Send, a batch that every transport rejects is never offered to Fallback.
// This is what redelivers a batch already sitting in the fallback queue: a
// renewed failure must be reported as a failure to the caller, not silently
// re-queued behind the very events it failed to replace.
func (c *Chain) SendDirect(ctx context.Context, batch event.Batch) error {
	return c.sendThroughMembers(ctx, batch)
}

func (c *Chain) sendThroughMembers(ctx context.Context, batch event.Batch) error {
	var lastErr error
	for _, m := range c.members {
		err := m.breaker.Execute(func() error {
			return m.transport.Send(ctx, batch)
		})
		if err == nil {
			c.notifySuccess(m.transport.Name())
			return nil
		}

		var circuitErr *errs.CircuitOpenError
		if errors.As(err, &circuitErr) {
			c.notifyRejected(m.transport.Name())
		} else {
			c.notifyFailure(m.transport.Name(), err)
		}
		lastErr = errs.WrapTransport(m.transport.Name(), err)
	}

	if lastErr == nil {
		return errs.ErrDeliveryFatal
	}
	return lastErr
}

func (c *Chain) notifySuccess(name string) {
	if c.observer != nil {
		c.observer.OnSuccess(name)
	}
}

func (c *Chain) notifyFailure(name string, err error) {
	if c.observer != nil {
		c.observer.OnFailure(name, err)
	}
}

func (c *Chain) notifyRejected(name string) {
	if c.observer != nil {
		c.observer.OnRejected(name)
	}
}

// States reports the current breaker state of every chain member, keyed by
// transport name, for health reporting.
func (c *Chain) States() map[string]State {
	out := make(map[string]State, len(c.members))
	for _, m := range c.members {
		out[m.transport.Name()] = m.breaker.State()
	}
	return out
}

// Close closes every transport in the chain, returning the first error
// encountered (closing continues regardless).
func (c *Chain) Close() error {
	var first error
	for _, m := range c.members {
		if err := m.transport.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
