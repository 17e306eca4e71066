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

package ratelimiter

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgryski/go-rendezvous"
)

// managedBucket wraps a Bucket with the bookkeeping the eviction loop needs:
// a lock-free last-access timestamp, touched on every hot-path Admit call.
type managedBucket struct {
	bucket       *Bucket
	lastAccessed int64 // UnixNano, atomic
}

// shard is one partition of the key space: its own sync.Map so that keys
// hashed to different shards never block on each other's map bookkeeping.
type shard struct {
	buckets sync.Map // string -> *managedBucket
}

// Store is the sharded, per-key token-bucket registry. Keys are assigned to
// shards by rendezvous hashing (highest-random-weight), which keeps the
// shard assignment stable as shards are added or removed - unlike modulo
// hashing, only a 1/N fraction of keys remap when N changes. The source
// system only ever runs with a fixed shard count, so remapping stability is
// not exercised today, but it costs nothing over a plain hash%N partition
// and documents the intent for future resizing.
type Store struct {
	shards     []*shard
	shardNames []string
	hash       *rendezvous.Rendezvous

	capacity     float64
	refillPerSec float64

	evictionAge      time.Duration
	evictionInterval time.Duration
	stopCh           chan struct{}
	doneCh           chan struct{}
	stopOnce         sync.Once
}

// hashKey is go-rendezvous's required string-hash function. fnv-ish
// multiply/xor mix, same constant family used for map key hashing; it only
// needs to be a decent distributing hash, not cryptographic.
func hashKey(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// NewStore builds a store with numShards partitions, each bucket seeded with
// the given capacity and refill rate. evictionAge/evictionInterval control
// the background reaper; pass 0 for evictionInterval to disable it (tests
// that want deterministic behavior typically do this and call EvictOnce
// directly).
func NewStore(numShards int, capacity, refillPerSec float64, evictionAge, evictionInterval time.Duration) *Store {
	if numShards < 1 {
		numShards = 1
	}
	names := make([]string, numShards)
	shards := make([]*shard, numShards)
	for i := range shards {
		shards[i] = &shard{}
		names[i] = strconv.Itoa(i)
	}
	s := &Store{
		shards:           shards,
		shardNames:       names,
		hash:             rendezvous.New(names, hashKey),
		capacity:         capacity,
		refillPerSec:     refillPerSec,
		evictionAge:      evictionAge,
		evictionInterval: evictionInterval,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	if evictionInterval > 0 {
		go s.evictionLoop()
	} else {
		close(s.doneCh)
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	name := s.hash.Lookup(key)
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 || idx >= len(s.shards) {
		// Unreachable given shardNames is exactly strconv.Itoa(0..n-1), but
		// fall back to a deterministic shard rather than panicking.
		return s.shards[0]
	}
	return s.shards[idx]
}

// GetOrCreate returns the bucket for key, creating one seeded at full
// capacity on first access. Mirrors the fast-path/slow-path split used by
// the VSA store: a Load first, an allocation only on miss.
func (s *Store) GetOrCreate(key string) *Bucket {
	sh := s.shardFor(key)
	now := time.Now().UnixNano()

	if actual, ok := sh.buckets.Load(key); ok {
		mb := actual.(*managedBucket)
		atomic.StoreInt64(&mb.lastAccessed, now)
		return mb.bucket
	}

	mb := &managedBucket{bucket: NewBucket(s.capacity, s.refillPerSec), lastAccessed: now}
	if actual, loaded := sh.buckets.LoadOrStore(key, mb); loaded {
		existing := actual.(*managedBucket)
		atomic.StoreInt64(&existing.lastAccessed, now)
		return existing.bucket
	}
	return mb.bucket
}

// Admit is the convenience entry point: look up (or create) the bucket for
// key and attempt to debit cost tokens from it.
func (s *Store) Admit(key string, cost float64) (allowed bool, waitFor time.Duration) {
	return s.GetOrCreate(key).Admit(cost)
}

// Delete removes a key's bucket outright, forgetting its accumulated state.
func (s *Store) Delete(key string) {
	s.shardFor(key).buckets.Delete(key)
}

// EvictOnce scans every shard and removes buckets untouched for longer than
// evictionAge. Exposed directly so tests can drive eviction deterministically
// instead of waiting on the background ticker.
func (s *Store) EvictOnce() (evicted int) {
	cutoff := time.Now().Add(-s.evictionAge).UnixNano()
	for _, sh := range s.shards {
		sh.buckets.Range(func(key, value any) bool {
			mb := value.(*managedBucket)
			if atomic.LoadInt64(&mb.lastAccessed) < cutoff {
				sh.buckets.Delete(key)
				evicted++
			}
			return true
		})
	}
	return evicted
}

func (s *Store) evictionLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.EvictOnce()
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the background eviction loop and waits for it to exit.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

// Len reports the total number of live buckets across all shards, for tests
// and diagnostics.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.buckets.Range(func(_, _ any) bool {
			n++
			return true
		})
	}
	return n
}

// String renders shard occupancy, useful when debugging an unbalanced key
// distribution.
func (s *Store) String() string {
	return fmt.Sprintf("ratelimiter.Store{shards=%d, keys=%d}", len(s.shards), s.Len())
}
