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

package fallback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"auditpipe/event"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS fallback_batches (
//   batch_id TEXT PRIMARY KEY,
//   payload JSONB NOT NULL,
//   queued_at TIMESTAMPTZ NOT NULL DEFAULT now()
// );
//
// Idempotent insert per offered batch:
//   INSERT INTO fallback_batches(batch_id, payload) VALUES ($1, $2)
//     ON CONFLICT DO NOTHING;

// PostgresFallbackStore durably persists batches the in-memory Queue could
// not hold across a process restart. It does not replace Queue; it mirrors
// offered batches so a crash doesn't silently lose them.
type PostgresFallbackStore struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresFallbackStore wraps db.
func NewPostgresFallbackStore(db *sql.DB) *PostgresFallbackStore {
	return &PostgresFallbackStore{db: db, defaultTimeout: 10 * time.Second}
}

// Persist inserts the batch, idempotently on batch ID: a retried offer of
// the same batch is a no-op rather than a duplicate row.
func (p *PostgresFallbackStore) Persist(ctx context.Context, batch event.Batch) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}
	payload, err := json.Marshal(batch.Events)
	if err != nil {
		return fmt.Errorf("marshal fallback batch %s: %w", batch.ID, err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO fallback_batches(batch_id, payload) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		batch.ID.String(), payload)
	if err != nil {
		return fmt.Errorf("insert fallback_batches(%s): %w", batch.ID, err)
	}
	return nil
}

// Discard removes a batch once it has been successfully drained.
func (p *PostgresFallbackStore) Discard(ctx context.Context, batchID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM fallback_batches WHERE batch_id = $1`, batchID)
	if err != nil {
		return fmt.Errorf("delete fallback_batches(%s): %w", batchID, err)
	}
	return nil
}

// LoadAll reads every persisted batch back, used to repopulate the
// in-memory Queue on startup.
func (p *PostgresFallbackStore) LoadAll(ctx context.Context) ([]event.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := p.db.QueryContext(ctx, `SELECT batch_id, payload FROM fallback_batches ORDER BY queued_at`)
	if err != nil {
		return nil, fmt.Errorf("query fallback_batches: %w", err)
	}
	defer rows.Close()

	var out []event.Batch
	for rows.Next() {
		var batchID string
		var payload []byte
		if err := rows.Scan(&batchID, &payload); err != nil {
			return nil, fmt.Errorf("scan fallback_batches row: %w", err)
		}
		var events []event.Event
		if err := json.Unmarshal(payload, &events); err != nil {
			return nil, fmt.Errorf("unmarshal fallback_batches(%s): %w", batchID, err)
		}
		out = append(out, event.NewBatch(events))
	}
	return out, rows.Err()
}
