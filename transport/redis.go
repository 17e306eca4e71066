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
	"time"

	"auditpipe/event"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client,
// mirroring the ratelimiter persistence package's abstraction so tests can
// supply a fake without pulling in a live server.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// redisLuaScript pushes a batch onto a list exactly once per batch ID:
// 1) SETNX marker:<batchID> 1
// 2) if set, RPUSH the list with every serialized event
// 3) EXPIRE the marker for leak protection
// Returns 1 if applied, 0 if this batch ID was already delivered.
const redisLuaScript = `
local listKey = KEYS[1]
local markerKey = KEYS[2]
local ttlSeconds = tonumber(ARGV[1])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  for i = 2, #ARGV do
    redis.call('RPUSH', listKey, ARGV[i])
  end
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// RedisTransport delivers batches into a Redis list, guarding against
// duplicate delivery (e.g. a retried Send after a transient breaker trip)
// with the same SETNX-marker idempotency pattern used for rate limiter
// commits.
type RedisTransport struct {
	name      string
	client    RedisEvaler
	listKey   string
	markerTTL time.Duration
}

// NewRedisTransport builds a transport over client, appending events to
// listKey. markerTTL bounds how long delivery markers persist; it should
// comfortably exceed the chain's retry window.
func NewRedisTransport(name string, client RedisEvaler, listKey string, markerTTL time.Duration) *RedisTransport {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisTransport{name: name, client: client, listKey: listKey, markerTTL: markerTTL}
}

func (t *RedisTransport) Name() string { return t.name }

func redisMarkerKey(batchID string) string { return fmt.Sprintf("auditpipe:delivered:%s", batchID) }

func (t *RedisTransport) Send(ctx context.Context, batch event.Batch) error {
	if batch.Size() == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(batch.Events)+1)
	args = append(args, int(t.markerTTL.Seconds()))
	for _, e := range batch.Events {
		raw, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("marshal event for redis: %w", err)
		}
		args = append(args, string(raw))
	}

	keys := []string{t.listKey, redisMarkerKey(batch.ID.String())}
	if _, err := t.client.Eval(ctx, redisLuaScript, keys, args...); err != nil {
		return fmt.Errorf("redis eval batch=%s: %w", batch.ID, err)
	}
	return nil
}

func (t *RedisTransport) Close() error { return nil }
