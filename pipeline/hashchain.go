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

package pipeline

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"auditpipe/event"
)

// hashChain assigns a monotonic sequence number and a keyed hash to every
// event in a flushed batch, chaining each hash into the next so a gap or a
// tampered event breaks the chain. Grounded on the audit-logger example's
// computeBatchHashChain: a mutex-guarded lastHash/lastSequence pair updated
// once per batch, each event's hash folding in the previous one.
type hashChain struct {
	mu       sync.Mutex
	secret   []byte
	lastHash string
	sequence int64
}

func newHashChain(secret []byte) *hashChain {
	return &hashChain{secret: secret}
}

// apply enriches events in place and records the last event's hash as the
// new chain tail.
func (h *hashChain) apply(events []event.Event) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	previous := h.lastHash
	for i := range events {
		h.sequence++
		events[i].SequenceNum = h.sequence
		events[i].PreviousHash = previous
		hash := h.computeHash(&events[i], previous)
		events[i].EventHash = hash
		previous = hash
	}
	h.lastHash = previous
}

// computeHash HMACs the event's stable fields with the chain's secret, so a
// log cannot be replayed under a forged hash without the key. An empty
// secret still produces a deterministic (unkeyed) hash, useful for tests.
func (h *hashChain) computeHash(e *event.Event, previousHash string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(previousHash))
	mac.Write([]byte(e.ID.String()))
	mac.Write([]byte(e.Message))
	mac.Write([]byte(e.Level.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
