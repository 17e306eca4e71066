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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"auditpipe/event"
)

func TestHTTPTransportSendsEnvelope(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport("http", srv.URL+"/logs", time.Second, nil)
	defer tr.Close()

	batch := event.NewBatch([]event.Event{event.New(event.LevelInfo, "hello", nil)})
	if err := tr.Send(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/logs" {
		t.Fatalf("expected request to /logs, got %q", gotPath)
	}
}

func TestHTTPTransportRetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport("http", srv.URL, time.Second, nil)
	defer tr.Close()

	batch := event.NewBatch([]event.Event{event.New(event.LevelInfo, "hello", nil)})
	if err := tr.Send(context.Background(), batch); err != nil {
		t.Fatalf("expected eventual success after retry, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestHTTPTransportFailsAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport("http", srv.URL, time.Second, nil)
	defer tr.Close()

	batch := event.NewBatch([]event.Event{event.New(event.LevelInfo, "hello", nil)})
	if err := tr.Send(context.Background(), batch); err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
}
