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

package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireEvent is the JSON-facing shape of an Event. Fields are flattened to
// plain JSON values; the Value variant tree round-trips through
// Value.MarshalJSON/UnmarshalJSON.
type wireEvent struct {
	ID           string                     `json:"id"`
	Timestamp    time.Time                  `json:"timestamp"`
	Level        string                     `json:"level"`
	Message      string                     `json:"message"`
	Fields       map[string]json.RawMessage `json:"fields,omitempty"`
	TenantKey    string                     `json:"tenant_key,omitempty"`
	TraceID      string                     `json:"trace_id,omitempty"`
	SpanID       string                     `json:"span_id,omitempty"`
	ParentSpanID string                     `json:"parent_span_id,omitempty"`
	SchemaName   string                     `json:"schema_name,omitempty"`
	SequenceNum  int64                      `json:"sequence_num,omitempty"`
	EventHash    string                     `json:"event_hash,omitempty"`
	PreviousHash string                     `json:"previous_hash,omitempty"`
}

// MarshalJSON renders the event in the wire format used by every transport
// (HTTP body entries, NDJSON lines, Redis/Kafka payloads).
func (e Event) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(e.Fields))
	for k, v := range e.Fields {
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", k, err)
		}
		fields[k] = raw
	}
	w := wireEvent{
		ID:           e.ID.String(),
		Timestamp:    e.Timestamp,
		Level:        e.Level.String(),
		Message:      e.Message,
		Fields:       fields,
		TenantKey:    e.TenantKey,
		TraceID:      e.TraceID,
		SpanID:       e.SpanID,
		ParentSpanID: e.ParentSpanID,
		SchemaName:   e.SchemaName,
		SequenceNum:  e.SequenceNum,
		EventHash:    e.EventHash,
		PreviousHash: e.PreviousHash,
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire format back into an Event. Used by transport
// replay/drain helpers and by tests.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fields := make(Fields, len(w.Fields))
	for k, raw := range w.Fields {
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("unmarshal field %q: %w", k, err)
		}
		fields[k] = v
	}
	id, _ := parseUUID(w.ID)
	e.ID = id
	e.Timestamp = w.Timestamp
	e.Monotonic = w.Timestamp
	e.Level = ParseLevel(w.Level)
	e.Message = w.Message
	e.Fields = fields
	e.TenantKey = w.TenantKey
	e.TraceID = w.TraceID
	e.SpanID = w.SpanID
	e.ParentSpanID = w.ParentSpanID
	e.SchemaName = w.SchemaName
	e.SequenceNum = w.SequenceNum
	e.EventHash = w.EventHash
	e.PreviousHash = w.PreviousHash
	return nil
}

// MarshalJSON renders a Value according to its Kind.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindTimestamp:
		return json.Marshal(v.Time.Format(time.RFC3339Nano))
	case KindMapping:
		m := make(map[string]json.RawMessage, len(v.Mapping))
		for k, child := range v.Mapping {
			raw, err := child.MarshalJSON()
			if err != nil {
				return nil, err
			}
			m[k] = raw
		}
		return json.Marshal(m)
	case KindSequence:
		seq := make([]json.RawMessage, len(v.Sequence))
		for i, child := range v.Sequence {
			raw, err := child.MarshalJSON()
			if err != nil {
				return nil, err
			}
			seq[i] = raw
		}
		return json.Marshal(seq)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON infers a Kind from the raw JSON shape. Timestamps cannot be
// distinguished from plain strings on the wire, so callers that need the
// timestamp Kind preserved should carry it out-of-band (the schema validator
// re-establishes it via coercion against a field descriptor).
func (v *Value) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*v = Null()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		m := make(map[string]Value, len(raw))
		for k, r := range raw {
			var child Value
			if err := child.UnmarshalJSON(r); err != nil {
				return err
			}
			m[k] = child
		}
		*v = Mapping(m)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		seq := make([]Value, len(raw))
		for i, r := range raw {
			var child Value
			if err := child.UnmarshalJSON(r); err != nil {
				return err
			}
			seq[i] = child
		}
		*v = Sequence(seq)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unrecognized value literal: %w", err)
		}
		*v = Number(n)
		return nil
	}
}

// HTTPEnvelope is the body shape POSTed by the HTTP transport:
// { "logs": [event...], "timestamp": "<RFC3339>" }.
type HTTPEnvelope struct {
	Logs      []Event   `json:"logs"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHTTPEnvelope wraps a batch in the wire envelope.
func NewHTTPEnvelope(b Batch) HTTPEnvelope {
	return HTTPEnvelope{Logs: b.Events, Timestamp: b.CreatedAt}
}
