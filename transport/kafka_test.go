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
	"testing"

	"auditpipe/event"
)

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	count int
}

func (f *fakeProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	f.topic = topic
	f.key = key
	f.value = value
	f.count++
	return nil
}

func TestKafkaTransportProducesKeyedByBatchID(t *testing.T) {
	fp := &fakeProducer{}
	tr := NewKafkaTransport("kafka", fp, "audit-events")

	batch := event.NewBatch([]event.Event{event.New(event.LevelInfo, "m", nil)})
	if err := tr.Send(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.count != 1 {
		t.Fatalf("expected exactly one Produce call, got %d", fp.count)
	}
	if fp.topic != "audit-events" {
		t.Fatalf("expected topic audit-events, got %q", fp.topic)
	}
	if string(fp.key) != batch.ID.String() {
		t.Fatalf("expected message key to be the batch ID, got %q", fp.key)
	}
}

func TestKafkaTransportSkipsEmptyBatch(t *testing.T) {
	fp := &fakeProducer{}
	tr := NewKafkaTransport("kafka", fp, "audit-events")

	if err := tr.Send(context.Background(), event.NewBatch(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.count != 0 {
		t.Fatalf("expected no Produce call for an empty batch, got %d", fp.count)
	}
}
