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
	"path/filepath"
	"testing"

	"auditpipe/event"
)

func TestFileTransportAppendsAndReplays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	tr, err := NewFileTransport("file", path)
	if err != nil {
		t.Fatalf("NewFileTransport: %v", err)
	}

	batch := event.NewBatch([]event.Event{
		event.New(event.LevelInfo, "first", nil),
		event.New(event.LevelWarn, "second", nil),
	})
	if err := tr.Send(context.Background(), batch); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, err := ReadAllEvents(path)
	if err != nil {
		t.Fatalf("ReadAllEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 replayed events, got %d", len(events))
	}
	if events[0].Message != "first" || events[1].Message != "second" {
		t.Fatalf("unexpected replay order: %+v", events)
	}
}

func TestFileTransportDrainTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	tr, err := NewFileTransport("file", path)
	if err != nil {
		t.Fatalf("NewFileTransport: %v", err)
	}
	defer tr.Close()

	batch := event.NewBatch([]event.Event{event.New(event.LevelInfo, "only", nil)})
	if err := tr.Send(context.Background(), batch); err != nil {
		t.Fatalf("Send: %v", err)
	}

	drained, err := tr.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 1 || drained[0].Message != "only" {
		t.Fatalf("unexpected drain result: %+v", drained)
	}

	events, err := ReadAllEvents(path)
	if err != nil {
		t.Fatalf("ReadAllEvents after drain: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected file truncated after drain, found %d events", len(events))
	}
}
