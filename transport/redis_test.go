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
	"time"

	"auditpipe/event"
)

type fakeEvaler struct {
	evalCount int
	lastKeys  []string
	lastArgs  []interface{}
}

func (f *fakeEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	f.evalCount++
	f.lastKeys = keys
	f.lastArgs = args
	return int64(1), nil
}

func TestRedisTransportEvalsWithMarkerKey(t *testing.T) {
	fe := &fakeEvaler{}
	tr := NewRedisTransport("redis", fe, "auditpipe:events", time.Hour)

	batch := event.NewBatch([]event.Event{event.New(event.LevelInfo, "m", nil)})
	if err := tr.Send(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fe.evalCount != 1 {
		t.Fatalf("expected exactly one EVAL call, got %d", fe.evalCount)
	}
	if fe.lastKeys[0] != "auditpipe:events" {
		t.Fatalf("expected list key as KEYS[1], got %v", fe.lastKeys)
	}
	if fe.lastKeys[1] != redisMarkerKey(batch.ID.String()) {
		t.Fatalf("expected marker key as KEYS[2], got %v", fe.lastKeys)
	}
}

func TestRedisTransportSkipsEmptyBatch(t *testing.T) {
	fe := &fakeEvaler{}
	tr := NewRedisTransport("redis", fe, "auditpipe:events", time.Hour)

	if err := tr.Send(context.Background(), event.NewBatch(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fe.evalCount != 0 {
		t.Fatalf("expected no EVAL call for an empty batch, got %d", fe.evalCount)
	}
}
