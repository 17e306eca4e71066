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
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"auditpipe/event"
)

// FileTransport is a buffered NDJSON append-only sink, one event per line.
// Modeled directly on the batch log sink: a bufio.Writer over an append-mode
// os.File, flushed on a 100ms time box rather than on every write.
type FileTransport struct {
	name string
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewFileTransport opens (or creates) the file at path in append mode.
func NewFileTransport(name, path string) (*FileTransport, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileTransport{
		name:      name,
		f:         f,
		w:         bufio.NewWriterSize(f, 1<<20),
		path:      path,
		lastFlush: time.Now(),
	}, nil
}

func (t *FileTransport) Name() string { return t.name }

// Send appends every event in the batch as an NDJSON line.
func (t *FileTransport) Send(ctx context.Context, batch event.Batch) error {
	if batch.Size() == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	enc := json.NewEncoder(t.w)
	for _, e := range batch.Events {
		if err := enc.Encode(&e); err != nil {
			// best effort: flush and retry once
			if ferr := t.w.Flush(); ferr != nil {
				return ferr
			}
			if err := enc.Encode(&e); err != nil {
				return err
			}
		}
	}
	if time.Since(t.lastFlush) > 100*time.Millisecond {
		if err := t.w.Flush(); err != nil {
			return err
		}
		t.lastFlush = time.Now()
	}
	return nil
}

// Flush forces buffered data to disk.
func (t *FileTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastFlush = time.Now()
	return t.w.Flush()
}

func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.w.Flush()
	return t.f.Close()
}

// ReadAllEvents replays the NDJSON log file in full, used by tests and
// fallback-queue inspection tooling. Lines that fail to parse are skipped.
func ReadAllEvents(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []event.Event
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var e event.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err == nil {
			out = append(out, e)
		}
	}
	return out, scanner.Err()
}

// Drain satisfies the Draining capability by replaying and truncating the
// underlying file, handing ownership of the replayed events to the caller.
func (t *FileTransport) Drain() ([]event.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.w.Flush(); err != nil {
		return nil, err
	}
	events, err := ReadAllEvents(t.path)
	if err != nil {
		return nil, err
	}
	if err := t.f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := t.f.Seek(0, 0); err != nil {
		return nil, err
	}
	return events, nil
}
