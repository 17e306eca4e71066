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

// Package schema validates and normalizes event field trees against named
// field descriptor sets. Unknown fields are preserved (open-schema policy)
// but counted, so a caller can tell a loose event from a tight one without
// rejecting either.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"auditpipe/event"
)

// FieldType is the declared type of a field descriptor.
type FieldType int

const (
	TypeString FieldType = iota
	TypeNumber
	TypeBoolean
	TypeTimestamp
	TypeMapping
	TypeSequence
	TypeAny
)

// Field describes a single named field's validation rule.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Default  *event.Value
	Enum     []string
	Pattern  *regexp.Regexp
	Min      *float64
	Max      *float64
	MinLen   *int
	MaxLen   *int
	Coerce   bool
}

// Schema is a named, ordered set of field descriptors.
type Schema struct {
	Name   string
	Fields []Field
}

// Registry holds named schemas, with a configured default used when an
// event names no schema of its own.
type Registry struct {
	schemas map[string]*Schema
	def     string
}

// NewRegistry builds a registry. defaultSchema names the schema used when an
// event's SchemaName is empty; it need not already be registered.
func NewRegistry(defaultSchema string) *Registry {
	return &Registry{schemas: make(map[string]*Schema), def: defaultSchema}
}

// Register adds or replaces a schema under its Name.
func (r *Registry) Register(s *Schema) {
	r.schemas[s.Name] = s
}

// Lookup resolves a schema by name, falling back to the configured default.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	if name == "" {
		name = r.def
	}
	s, ok := r.schemas[name]
	return s, ok
}

// Result is the outcome of validating one event's fields.
type Result struct {
	OK              bool
	Errors          []string
	Normalized      event.Fields
	UnknownCount    int
	ValidatedFields int
}

// Validate runs the rules of the named schema (or the registry default)
// against fields, returning a Result with a normalized copy. Normalization
// never mutates the input: the returned Fields is always a fresh map, even
// when no schema is found (in which case fields pass through unchanged and
// every field is counted unknown).
func (r *Registry) Validate(schemaName string, fields event.Fields) Result {
	s, ok := r.Lookup(schemaName)
	if !ok {
		return Result{OK: true, Normalized: fields.Clone(), UnknownCount: len(fields)}
	}
	return s.Validate(fields)
}

// Validate runs this schema's rules against fields.
func (s *Schema) Validate(fields event.Fields) Result {
	res := Result{OK: true, Normalized: make(event.Fields, len(fields))}
	seen := make(map[string]bool, len(s.Fields))

	for _, f := range s.Fields {
		seen[f.Name] = true
		v, present := fields[f.Name]

		if !present {
			if f.Required {
				res.OK = false
				res.Errors = append(res.Errors, fmt.Sprintf("%s: required field missing", f.Name))
				continue
			}
			if f.Default != nil {
				res.Normalized[f.Name] = *f.Default
				res.ValidatedFields++
			}
			continue
		}

		normalized, errs := validateField(f, v)
		res.ValidatedFields++
		if len(errs) > 0 {
			res.OK = false
			res.Errors = append(res.Errors, errs...)
			// Still surface the best-effort normalized value so downstream
			// stages have something to work with; callers gate on OK, not
			// on field presence.
		}
		res.Normalized[f.Name] = normalized
	}

	for k, v := range fields {
		if seen[k] {
			continue
		}
		res.Normalized[k] = v
		res.UnknownCount++
	}

	return res
}

// validateField applies type/coercion/range/enum/pattern rules to a single
// field value, returning the (possibly coerced) value and any errors.
func validateField(f Field, v event.Value) (event.Value, []string) {
	var errs []string

	v, typeOK := coerceOrCheckType(f, v, &errs)
	if !typeOK {
		return v, errs
	}

	if len(f.Enum) > 0 && v.Kind == event.KindString {
		if !contains(f.Enum, v.Str) {
			errs = append(errs, fmt.Sprintf("%s: value %q not in enum %v", f.Name, v.Str, f.Enum))
		}
	}

	if f.Pattern != nil && v.Kind == event.KindString {
		if !f.Pattern.MatchString(v.Str) {
			errs = append(errs, fmt.Sprintf("%s: value %q does not match pattern %s", f.Name, v.Str, f.Pattern.String()))
		}
	}

	if v.Kind == event.KindNumber {
		if f.Min != nil && v.Num < *f.Min {
			errs = append(errs, fmt.Sprintf("%s: value %v below minimum %v", f.Name, v.Num, *f.Min))
		}
		if f.Max != nil && v.Num > *f.Max {
			errs = append(errs, fmt.Sprintf("%s: value %v above maximum %v", f.Name, v.Num, *f.Max))
		}
	}

	if v.Kind == event.KindString {
		if f.MinLen != nil && len(v.Str) < *f.MinLen {
			errs = append(errs, fmt.Sprintf("%s: length %d below minimum %d", f.Name, len(v.Str), *f.MinLen))
		}
		if f.MaxLen != nil && len(v.Str) > *f.MaxLen {
			errs = append(errs, fmt.Sprintf("%s: length %d above maximum %d", f.Name, len(v.Str), *f.MaxLen))
		}
	}

	return v, errs
}

// coerceOrCheckType checks v against f.Type, attempting a lossless coercion
// when f.Coerce is set and the source/target pair is one of: string<->number
// via decimal parse, string->timestamp via RFC 3339, string->boolean on exact
// "true"/"false", or boolean->string.
func coerceOrCheckType(f Field, v event.Value, errs *[]string) (event.Value, bool) {
	if f.Type == TypeAny {
		return v, true
	}
	if kindMatches(f.Type, v.Kind) {
		return v, true
	}

	if f.Coerce && v.Kind == event.KindString {
		switch f.Type {
		case TypeNumber:
			if n, err := strconv.ParseFloat(v.Str, 64); err == nil {
				return event.Number(n), true
			}
		case TypeTimestamp:
			if t, err := time.Parse(time.RFC3339, v.Str); err == nil {
				return event.Timestamp(t), true
			}
		case TypeBoolean:
			switch v.Str {
			case "true":
				return event.Bool(true), true
			case "false":
				return event.Bool(false), true
			}
		}
	}
	if f.Coerce && f.Type == TypeString {
		switch v.Kind {
		case event.KindNumber:
			return event.String(strconv.FormatFloat(v.Num, 'g', -1, 64)), true
		case event.KindBool:
			return event.String(strconv.FormatBool(v.Bool)), true
		}
	}

	*errs = append(*errs, fmt.Sprintf("%s: expected type %s, got incompatible value", f.Name, typeName(f.Type)))
	return v, false
}

func kindMatches(t FieldType, k event.Kind) bool {
	switch t {
	case TypeString:
		return k == event.KindString
	case TypeNumber:
		return k == event.KindNumber
	case TypeBoolean:
		return k == event.KindBool
	case TypeTimestamp:
		return k == event.KindTimestamp
	case TypeMapping:
		return k == event.KindMapping
	case TypeSequence:
		return k == event.KindSequence
	default:
		return true
	}
}

func typeName(t FieldType) string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeMapping:
		return "mapping"
	case TypeSequence:
		return "sequence"
	default:
		return "any"
	}
}

func contains(set []string, s string) bool {
	for _, item := range set {
		if item == s {
			return true
		}
	}
	return false
}
