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
	"testing"
	"time"

	"auditpipe/event"
)

type fakeTransport struct {
	name    string
	fail    bool
	sends   int
	closed  bool
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(ctx context.Context, batch event.Batch) error {
	f.sends++
	if f.fail {
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

type fakeFallback struct {
	accepted []event.Batch
	reject   bool
}

func (f *fakeFallback) Offer(batch event.Batch) bool {
	if f.reject {
		return false
	}
	f.accepted = append(f.accepted, batch)
	return true
}

func testBatch() event.Batch {
	return event.NewBatch([]event.Event{event.New(event.LevelInfo, "m", nil)})
}

func TestChainUsesFirstHealthyTransport(t *testing.T) {
	primary := &fakeTransport{name: "primary"}
	secondary := &fakeTransport{name: "secondary"}
	c := NewChain(nil)
	c.Add(primary, 5, time.Minute, 1)
	c.Add(secondary, 5, time.Minute, 1)

	if err := c.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.sends != 1 || secondary.sends != 0 {
		t.Fatalf("expected only primary to be used, got primary=%d secondary=%d", primary.sends, secondary.sends)
	}
}

func TestChainFallsOverToSecondTransport(t *testing.T) {
	primary := &fakeTransport{name: "primary", fail: true}
	secondary := &fakeTransport{name: "secondary"}
	c := NewChain(nil)
	c.Add(primary, 5, time.Minute, 1)
	c.Add(secondary, 5, time.Minute, 1)

	if err := c.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondary.sends != 1 {
		t.Fatalf("expected fallover to secondary, got %d sends", secondary.sends)
	}
}

func TestChainDivertsToFallbackWhenAllFail(t *testing.T) {
	primary := &fakeTransport{name: "primary", fail: true}
	fb := &fakeFallback{}
	c := NewChain(fb)
	c.Add(primary, 5, time.Minute, 1)

	if err := c.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("unexpected error with fallback accepting: %v", err)
	}
	if len(fb.accepted) != 1 {
		t.Fatalf("expected batch offered to fallback, got %d", len(fb.accepted))
	}
}

func TestChainReturnsFatalWhenFallbackFull(t *testing.T) {
	primary := &fakeTransport{name: "primary", fail: true}
	fb := &fakeFallback{reject: true}
	c := NewChain(fb)
	c.Add(primary, 5, time.Minute, 1)

	if err := c.Send(context.Background(), testBatch()); err == nil {
		t.Fatalf("expected an error when fallback also rejects the batch")
	}
}

type recordingObserver struct {
	successes, failures, rejections []string
}

func (r *recordingObserver) OnSuccess(name string) { r.successes = append(r.successes, name) }
func (r *recordingObserver) OnFailure(name string, err error) {
	r.failures = append(r.failures, name)
}
func (r *recordingObserver) OnRejected(name string) { r.rejections = append(r.rejections, name) }

func TestChainObserverSeesSuccessFailureAndRejection(t *testing.T) {
	primary := &fakeTransport{name: "primary", fail: true}
	secondary := &fakeTransport{name: "secondary"}
	obs := &recordingObserver{}
	c := NewChain(nil)
	c.SetObserver(obs)
	c.Add(primary, 1, time.Minute, 1)
	c.Add(secondary, 5, time.Minute, 1)

	if err := c.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs.failures) != 1 || obs.failures[0] != "primary" {
		t.Fatalf("expected one failure for primary, got %v", obs.failures)
	}
	if len(obs.successes) != 1 || obs.successes[0] != "secondary" {
		t.Fatalf("expected one success for secondary, got %v", obs.successes)
	}

	// primary's breaker is now open; the next send should report a
	// rejection instead of another failure.
	obs.failures = nil
	obs.successes = nil
	secondary.fail = true
	c.Send(context.Background(), testBatch())
	if len(obs.rejections) != 1 || obs.rejections[0] != "primary" {
		t.Fatalf("expected primary's open breaker to be reported as rejected, got %v", obs.rejections)
	}
}

func TestChainSendDirectDoesNotDivertToFallback(t *testing.T) {
	primary := &fakeTransport{name: "primary", fail: true}
	fb := &fakeFallback{}
	c := NewChain(fb)
	c.Add(primary, 5, time.Minute, 1)

	if err := c.SendDirect(context.Background(), testBatch()); err == nil {
		t.Fatalf("expected SendDirect to report the failure instead of swallowing it")
	}
	if len(fb.accepted) != 0 {
		t.Fatalf("expected SendDirect to never offer the batch to fallback, got %d", len(fb.accepted))
	}
}

func TestChainOpenBreakerSkipsToNextTransport(t *testing.T) {
	primary := &fakeTransport{name: "primary", fail: true}
	secondary := &fakeTransport{name: "secondary"}
	c := NewChain(nil)
	c.Add(primary, 1, time.Minute, 1)
	c.Add(secondary, 5, time.Minute, 1)

	c.Send(context.Background(), testBatch()) // trips primary's breaker open
	secondary.sends = 0

	if err := c.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.sends != 1 {
		t.Fatalf("expected primary breaker to reject without calling Send again, got %d sends", primary.sends)
	}
	if secondary.sends != 1 {
		t.Fatalf("expected secondary to handle the batch, got %d sends", secondary.sends)
	}
}
