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

// Package sanitizer redacts sensitive values out of event field trees before
// they are validated or buffered. Detection runs two stages per leaf, the
// same two-stage shape as a regex-then-secondary-check anonymizer: a
// sensitive-key name check first, then (for leaves whose key did not already
// condemn them) a multi-encoding content scan against a sensitive-keyword
// pattern set.
package sanitizer

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"auditpipe/event"
)

// Redacted is the sentinel value substituted for anything the sanitizer
// condemns.
const Redacted = "«REDACTED»"

// DefaultMaxDepth bounds recursion into nested mappings/sequences.
const DefaultMaxDepth = 10

// sensitiveKeys is the case-insensitive set of field names that condemn a
// value outright, regardless of its content. "email" is deliberately absent
// here: it is gated behind WithEmailMasking so that email addresses pass
// through by default and are only redacted when a caller opts in, matching
// the masking-policy toggle implied alongside the fixed category set.
var sensitiveKeys = map[string]bool{
	"password":     true,
	"apikey":       true,
	"token":        true,
	"ssn":          true,
	"creditcard":   true,
	"phone":        true,
	"dbpassword":   true,
	"privatekey":   true,
	"accesstoken":  true,
	"refreshtoken": true,
	"awssecret":    true,
	"bearer":       true,
	"oauth":        true,
}

// keywordPattern matches a sensitive keyword occurring anywhere in decoded
// text - a looser check than the exact-key match above, used against the
// content of string leaves and their successive decodings.
var keywordPattern = regexp.MustCompile(`(?i)password|api[_-]?key|secret|token|ssn|private[_-]?key|bearer|oauth`)

// base64Pattern recognizes plausible base64/base64url payloads worth trying
// to decode: at least 8 characters of the alphabet, optional padding.
var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/_-]{8,}={0,2}$`)

// percentEncodedPattern flags the presence of at least one %HH triplet.
var percentEncodedPattern = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// htmlEntityPattern flags the presence of at least one HTML entity.
var htmlEntityPattern = regexp.MustCompile(`&[a-zA-Z#][a-zA-Z0-9]*;`)

// RedactionKind classifies why a leaf was redacted, for observability.
type RedactionKind string

const (
	KindKeyMatch    RedactionKind = "key-match"
	KindDirect      RedactionKind = "direct"
	KindEncodedB64  RedactionKind = "encoded-base64"
	KindEncodedPct  RedactionKind = "encoded-percent"
	KindEncodedHTML RedactionKind = "encoded-html"
	KindCycle       RedactionKind = "cycle"
	KindMaxDepth    RedactionKind = "max-depth"
)

// Report accumulates what a single Sanitize call did, returned alongside the
// sanitized value so callers can attach counts to the event without the
// sanitizer needing to know about the event package.
type Report struct {
	Count int
	Kinds map[RedactionKind]int
}

func newReport() *Report {
	return &Report{Kinds: make(map[RedactionKind]int)}
}

func (r *Report) record(kind RedactionKind) {
	r.Count++
	r.Kinds[kind]++
}

// Sanitizer holds no mutable state: every Sanitize call is pure given its
// inputs, matching the contract's "no shared state between calls."
type Sanitizer struct {
	maxDepth  int
	maskEmail bool
}

// Option configures a Sanitizer at construction time.
type Option func(*Sanitizer)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(s *Sanitizer) { s.maxDepth = depth }
}

// WithEmailMasking opts into treating a field named "email" as a sensitive
// key. Off by default: an event's `email` field passes through unredacted
// unless a deployment explicitly enables this policy.
func WithEmailMasking() Option {
	return func(s *Sanitizer) { s.maskEmail = true }
}

// New constructs a Sanitizer.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sanitize walks fields, returning a new Fields map with every condemned
// leaf replaced by Redacted, plus a Report describing what happened. The
// input is never mutated.
func (s *Sanitizer) Sanitize(fields event.Fields) (event.Fields, *Report) {
	report := newReport()
	if fields == nil {
		return nil, report
	}
	stack := make(map[uintptr]bool) // identity stack, see walkValue
	out := make(event.Fields, len(fields))
	for k, v := range fields {
		out[k] = s.walkValue(k, v, 0, stack, report)
	}
	return out, report
}

// walkValue sanitizes a single Value, given the key it was reached under
// (used for the sensitive-key predicate and as the parent_key for children).
// stack holds the identity of every mapping/sequence currently being
// descended into, so true re-entry (the same underlying container reachable
// via two paths) is distinguished from two merely equal-looking subtrees.
func (s *Sanitizer) walkValue(key string, v event.Value, depth int, stack map[uintptr]bool, report *Report) event.Value {
	if s.isSensitiveKey(key) {
		if v.Kind != event.KindNull {
			report.record(KindKeyMatch)
		}
		return event.String(Redacted)
	}

	if depth > s.maxDepth {
		report.record(KindMaxDepth)
		return event.String(Redacted)
	}

	switch v.Kind {
	case event.KindString:
		if kind, hit := scanString(v.Str); hit {
			report.record(kind)
			return event.String(Redacted)
		}
		return v
	case event.KindMapping:
		id := mapIdentity(v.Mapping)
		if id != 0 && stack[id] {
			report.record(KindCycle)
			return event.String(Redacted)
		}
		if id != 0 {
			stack[id] = true
		}
		out := make(map[string]event.Value, len(v.Mapping))
		for k, child := range v.Mapping {
			out[k] = s.walkValue(k, child, depth+1, stack, report)
		}
		if id != 0 {
			delete(stack, id)
		}
		return event.Mapping(out)
	case event.KindSequence:
		id := seqIdentity(v.Sequence)
		if id != 0 && stack[id] {
			report.record(KindCycle)
			return event.String(Redacted)
		}
		if id != 0 {
			stack[id] = true
		}
		out := make([]event.Value, len(v.Sequence))
		for i, child := range v.Sequence {
			out[i] = s.walkValue(key, child, depth+1, stack, report)
		}
		if id != 0 {
			delete(stack, id)
		}
		return event.Sequence(out)
	default:
		return v
	}
}

// mapIdentity/seqIdentity recover a comparable identity for the underlying
// Go map/slice header via reflect, since a nil or empty container has no
// stable identity worth tracking (0 is treated as "no identity").
func mapIdentity(m map[string]event.Value) uintptr {
	if m == nil {
		return 0
	}
	return reflect.ValueOf(m).Pointer()
}

func seqIdentity(s []event.Value) uintptr {
	if s == nil {
		return 0
	}
	return reflect.ValueOf(s).Pointer()
}

// isSensitiveKey normalizes a field name (lowercase, strip separators) and
// checks it against the fixed sensitive-key category set, plus "email" when
// WithEmailMasking is enabled.
func (s *Sanitizer) isSensitiveKey(key string) bool {
	normalized := strings.ToLower(key)
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	if normalized == "email" {
		return s.maskEmail
	}
	return sensitiveKeys[normalized]
}

// scanString runs the successive-decoding scan described in the contract:
// identity, then base64/base64url (tried twice, for double-encoded values),
// then percent-encoding, then HTML entities. The first decoding whose text
// contains a sensitive keyword wins; decoder failures are skipped silently.
func scanString(s string) (RedactionKind, bool) {
	if keywordPattern.MatchString(s) {
		return KindDirect, true
	}

	if base64Pattern.MatchString(s) {
		if decoded, ok := tryBase64(s); ok {
			if keywordPattern.MatchString(decoded) {
				return KindEncodedB64, true
			}
			// Double-decode: the first layer may itself be base64.
			if base64Pattern.MatchString(decoded) {
				if decoded2, ok := tryBase64(decoded); ok && keywordPattern.MatchString(decoded2) {
					return KindEncodedB64, true
				}
			}
		}
	}

	if percentEncodedPattern.MatchString(s) {
		if decoded, err := url.QueryUnescape(s); err == nil && keywordPattern.MatchString(decoded) {
			return KindEncodedPct, true
		}
	}

	if htmlEntityPattern.MatchString(s) {
		decoded := html.UnescapeString(s)
		if keywordPattern.MatchString(decoded) {
			return KindEncodedHTML, true
		}
	}

	return "", false
}

func tryBase64(s string) (string, bool) {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(decoded), true
	}
	if decoded, err := base64.URLEncoding.DecodeString(s); err == nil {
		return string(decoded), true
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return string(decoded), true
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return string(decoded), true
	}
	return "", false
}

// String renders a Report for logging.
func (r *Report) String() string {
	return fmt.Sprintf("sanitizer.Report{count=%d, kinds=%v}", r.Count, r.Kinds)
}
