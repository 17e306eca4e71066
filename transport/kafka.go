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

// KafkaProducer is a minimal abstraction over a Kafka client.
//
// Requirements:
//   - Idempotent producer ON (enable.idempotence=true)
//   - Use the batch ID as the message key so broker dedup and per-key
//     ordering are preserved across retries
//   - Acks=all is recommended
//
// A specific Kafka client library is intentionally not imported here; wire
// whichever client the deployment uses through this interface.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// kafkaMessage is the serialized payload sent to Kafka: the whole batch,
// keyed by its ID for broker-side dedup.
type kafkaMessage struct {
	BatchID   string        `json:"batch_id"`
	Events    []event.Event `json:"events"`
	TsUnixMs  int64         `json:"ts_unix_ms"`
}

// KafkaTransport publishes batches as single Kafka messages. It does not
// apply state locally; consumers are responsible for dedup via the
// idempotent producer and message key.
type KafkaTransport struct {
	name     string
	producer KafkaProducer
	topic    string
	timeout  time.Duration
}

// NewKafkaTransport builds a transport over producer, publishing to topic.
func NewKafkaTransport(name string, producer KafkaProducer, topic string) *KafkaTransport {
	return &KafkaTransport{name: name, producer: producer, topic: topic, timeout: 10 * time.Second}
}

func (t *KafkaTransport) Name() string { return t.name }

func (t *KafkaTransport) Send(ctx context.Context, batch event.Batch) error {
	if batch.Size() == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	msg := kafkaMessage{
		BatchID:  batch.ID.String(),
		Events:   batch.Events,
		TsUnixMs: batch.CreatedAt.UnixMilli(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal kafka message: %w", err)
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := t.producer.Produce(ctx, t.topic, []byte(batch.ID.String()), b, headers); err != nil {
		return fmt.Errorf("kafka produce batch=%s: %w", batch.ID, err)
	}
	return nil
}

func (t *KafkaTransport) Close() error { return nil }
