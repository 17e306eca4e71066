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

// Package event defines the unit of flow through the audit logging pipeline:
// a level/message/fields tuple enriched with tracing and schema metadata, and
// the immutable batches that carry groups of events to a transport.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a logged event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String renders the level the way it appears on the wire and in logs.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a wire-format level string back to a Level. Unknown strings
// map to LevelInfo, matching the default-schema open policy described for
// unrecognized fields.
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTimestamp
	KindMapping
	KindSequence
)

// Value is a tagged variant tree used for event fields. Exactly one of the
// typed accessors below is meaningful for a given Kind; the rest are zero.
// This shape replaces the dynamically-typed field maps of the source system
// with an explicit, traversable tree that the sanitizer and schema validator
// can walk without reflection.
type Value struct {
	Kind     Kind
	Str      string
	Num      float64
	Bool     bool
	Time     time.Time
	Mapping  map[string]Value
	Sequence []Value
}

// Null returns the null Value.
func Null() Value { return Value{Kind: KindNull} }

// String wraps a string leaf.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps a numeric leaf.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool wraps a boolean leaf.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Timestamp wraps a time.Time leaf.
func Timestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

// Mapping wraps a nested key/value mapping.
func Mapping(m map[string]Value) Value { return Value{Kind: KindMapping, Mapping: m} }

// Sequence wraps an ordered list of values.
func Sequence(s []Value) Value { return Value{Kind: KindSequence, Sequence: s} }

// Fields is the field bag carried by an Event: a mapping from field name to
// Value, mirroring the spec's `fields` attribute.
type Fields map[string]Value

// Clone returns a deep copy of the fields, used when the sanitizer produces a
// new event rather than mutating the caller's.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v.clone()
	}
	return out
}

func (v Value) clone() Value {
	switch v.Kind {
	case KindMapping:
		m := make(map[string]Value, len(v.Mapping))
		for k, child := range v.Mapping {
			m[k] = child.clone()
		}
		return Value{Kind: KindMapping, Mapping: m}
	case KindSequence:
		s := make([]Value, len(v.Sequence))
		for i, child := range v.Sequence {
			s[i] = child.clone()
		}
		return Value{Kind: KindSequence, Sequence: s}
	default:
		return v
	}
}

// Event is the unit of flow through the pipeline.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time // wall-clock ingest time
	Monotonic time.Time // monotonic-clock reading taken with time.Now(), kept separate for clarity
	Level     Level
	Message   string
	Fields    Fields

	TenantKey string

	TraceID      string
	SpanID       string
	ParentSpanID string

	SchemaName string

	// Populated only when hash-chain enrichment (see pipeline package) is enabled.
	SequenceNum  int64
	EventHash    string
	PreviousHash string

	// Redactions/ValidationErrors are carried for observability; they do
	// not affect delivery.
	Redactions       int
	ValidationErrors []string
}

// New constructs an Event with a generated ID and the current time, mirroring
// the orchestrator's composition step (SPEC_FULL §4.6 step 3).
func New(level Level, message string, fields Fields) Event {
	now := time.Now()
	return Event{
		ID:        uuid.New(),
		Timestamp: now,
		Monotonic: now,
		Level:     level,
		Message:   message,
		Fields:    fields,
	}
}

// Batch is an immutable ordered sequence of events handed to exactly one
// transport invocation. Once constructed, a Batch's Events slice must not be
// mutated by callers.
type Batch struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Events    []Event
}

// NewBatch packages events into a batch, stamping an ID and creation time.
func NewBatch(events []Event) Batch {
	return Batch{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		Events:    events,
	}
}

// Size returns the number of events in the batch.
func (b Batch) Size() int { return len(b.Events) }
