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
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"auditpipe/event"
)

// ConsoleTransport writes each event as a single JSON line to the given
// writer (typically os.Stdout). Useful as a last-resort sink and in local
// development; it takes whatever position in the chain it is added at.
type ConsoleTransport struct {
	name string
	mu   sync.Mutex
	w    io.Writer
}

// NewConsoleTransport wraps w. w is never closed by Close.
func NewConsoleTransport(name string, w io.Writer) *ConsoleTransport {
	return &ConsoleTransport{name: name, w: w}
}

func (t *ConsoleTransport) Name() string { return t.name }

func (t *ConsoleTransport) Send(ctx context.Context, batch event.Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	enc := json.NewEncoder(t.w)
	for _, e := range batch.Events {
		if err := enc.Encode(&e); err != nil {
			return fmt.Errorf("console write: %w", err)
		}
	}
	return nil
}

func (t *ConsoleTransport) Close() error { return nil }
