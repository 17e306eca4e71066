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

package sanitizer

import (
	"encoding/base64"
	"testing"

	"auditpipe/event"
)

func TestSanitizeSensitiveKeyRedactsWholesale(t *testing.T) {
	cases := []string{"password", "Password", "API_KEY", "apiKey", "db_password", "accessToken", "AWS_SECRET"}
	for _, key := range cases {
		t.Run(key, func(t *testing.T) {
			s := New()
			fields := event.Fields{key: event.String("super-secret-value")}
			out, report := s.Sanitize(fields)
			if out[key].Str != Redacted {
				t.Fatalf("expected key %q to be redacted, got %q", key, out[key].Str)
			}
			if report.Count != 1 || report.Kinds[KindKeyMatch] != 1 {
				t.Fatalf("expected one key-match redaction, got %+v", report)
			}
		})
	}
}

func TestSanitizeNonSensitiveKeyPassesThrough(t *testing.T) {
	s := New()
	fields := event.Fields{"message": event.String("hello world")}
	out, report := s.Sanitize(fields)
	if out["message"].Str != "hello world" {
		t.Fatalf("expected benign value to pass through unchanged")
	}
	if report.Count != 0 {
		t.Fatalf("expected zero redactions, got %d", report.Count)
	}
}

func TestSanitizeDirectKeywordInValue(t *testing.T) {
	s := New()
	fields := event.Fields{"note": event.String("the secret is hidden in the payload")}
	out, report := s.Sanitize(fields)
	if out["note"].Str != Redacted {
		t.Fatalf("expected value-content keyword match to redact")
	}
	if report.Kinds[KindDirect] != 1 {
		t.Fatalf("expected a direct-kind redaction, got %+v", report.Kinds)
	}
}

func TestSanitizeBase64EncodedSecret(t *testing.T) {
	s := New()
	encoded := base64.StdEncoding.EncodeToString([]byte("my api_key value here"))
	fields := event.Fields{"payload": event.String(encoded)}
	out, report := s.Sanitize(fields)
	if out["payload"].Str != Redacted {
		t.Fatalf("expected base64-encoded secret to be redacted, got %q", out["payload"].Str)
	}
	if report.Kinds[KindEncodedB64] != 1 {
		t.Fatalf("expected an encoded-base64 redaction, got %+v", report.Kinds)
	}
}

func TestSanitizePercentEncodedSecret(t *testing.T) {
	s := New()
	fields := event.Fields{"payload": event.String("%74oken%3Dabc123%73ecretvalue")}
	out, report := s.Sanitize(fields)
	if out["payload"].Str != Redacted {
		t.Fatalf("expected percent-encoded secret to be redacted")
	}
	if report.Kinds[KindEncodedPct] != 1 {
		t.Fatalf("expected an encoded-percent redaction, got %+v", report.Kinds)
	}
}

func TestSanitizeHTMLEntitySecret(t *testing.T) {
	s := New()
	fields := event.Fields{"payload": event.String("the &#115;ecret value")}
	out, report := s.Sanitize(fields)
	if out["payload"].Str != Redacted {
		t.Fatalf("expected HTML-entity-encoded secret to be redacted")
	}
	if report.Kinds[KindEncodedHTML] != 1 {
		t.Fatalf("expected an encoded-html redaction, got %+v", report.Kinds)
	}
}

func TestSanitizeBenignBase64DoesNotRedact(t *testing.T) {
	s := New()
	encoded := base64.StdEncoding.EncodeToString([]byte("just a normal greeting message"))
	fields := event.Fields{"payload": event.String(encoded)}
	out, report := s.Sanitize(fields)
	if out["payload"].Str == Redacted {
		t.Fatalf("did not expect benign base64 content to be redacted")
	}
	if report.Count != 0 {
		t.Fatalf("expected zero redactions for benign base64 content, got %d", report.Count)
	}
}

func TestSanitizeNestedMapping(t *testing.T) {
	s := New()
	fields := event.Fields{
		"request": event.Mapping(map[string]event.Value{
			"headers": event.Mapping(map[string]event.Value{
				"authorization": event.String("should not match key list directly"),
				"token":         event.String("abc123"),
			}),
		}),
	}
	out, report := s.Sanitize(fields)
	headers := out["request"].Mapping["headers"].Mapping
	if headers["token"].Str != Redacted {
		t.Fatalf("expected nested sensitive key to be redacted")
	}
	if report.Count != 1 {
		t.Fatalf("expected exactly one redaction in the nested tree, got %d", report.Count)
	}
}

func TestSanitizeSequenceElementWise(t *testing.T) {
	s := New()
	fields := event.Fields{
		"tokens": event.Sequence([]event.Value{
			event.String("hello"),
			event.String("the secret here"),
		}),
	}
	out, _ := s.Sanitize(fields)
	seq := out["tokens"].Sequence
	if seq[0].Str != "hello" {
		t.Fatalf("expected first sequence element to pass through unchanged")
	}
	if seq[1].Str != Redacted {
		t.Fatalf("expected second sequence element to be redacted")
	}
}

func TestSanitizeCycleDetection(t *testing.T) {
	s := New()
	inner := map[string]event.Value{"name": event.String("leaf")}
	cyclic := event.Mapping(inner)
	// Force true re-entry: reuse the identical underlying map value as both
	// a field and as its own nested child, the way a cyclic object graph
	// would present if constructed by reference in the source representation.
	inner["self"] = cyclic
	fields := event.Fields{"root": cyclic}

	// Must terminate rather than recurse forever, and the re-entered node
	// should be replaced by the sentinel (rather than, say, a stack overflow).
	out, report := s.Sanitize(fields)
	if out["root"].Kind != event.KindMapping {
		t.Fatalf("expected root to remain a mapping")
	}
	if report.Kinds[KindCycle] == 0 {
		t.Fatalf("expected at least one cycle redaction, got %+v", report.Kinds)
	}
}

func TestSanitizeMaxDepthTruncates(t *testing.T) {
	s := New(WithMaxDepth(2))
	deep := event.String("leaf")
	for i := 0; i < 5; i++ {
		deep = event.Mapping(map[string]event.Value{"child": deep})
	}
	fields := event.Fields{"root": deep}
	_, report := s.Sanitize(fields)
	if report.Kinds[KindMaxDepth] == 0 {
		t.Fatalf("expected a max-depth redaction for a tree deeper than the configured limit, got %+v", report.Kinds)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	s := New()
	fields := event.Fields{
		"password": event.String("hunter2"),
		"note":     event.String("contains a secret value"),
		"benign":   event.String("hello world"),
	}
	once, _ := s.Sanitize(fields)
	twice, _ := s.Sanitize(once)

	for k := range once {
		if once[k].Str != twice[k].Str {
			t.Fatalf("expected sanitize to be idempotent for key %q: %q != %q", k, once[k].Str, twice[k].Str)
		}
	}
}

func TestSanitizeEmailPassesThroughByDefault(t *testing.T) {
	s := New()
	fields := event.Fields{"email": event.String("a@b")}
	out, report := s.Sanitize(fields)
	if out["email"].Str != "a@b" {
		t.Fatalf("expected email to pass through unmasked by default, got %q", out["email"].Str)
	}
	if report.Count != 0 {
		t.Fatalf("expected zero redactions with email masking disabled")
	}
}

func TestSanitizeEmailMaskedWhenEnabled(t *testing.T) {
	s := New(WithEmailMasking())
	fields := event.Fields{"email": event.String("a@b")}
	out, report := s.Sanitize(fields)
	if out["email"].Str != Redacted {
		t.Fatalf("expected email to be redacted once masking is enabled")
	}
	if report.Kinds[KindKeyMatch] != 1 {
		t.Fatalf("expected a key-match redaction, got %+v", report.Kinds)
	}
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	s := New()
	fields := event.Fields{"password": event.String("hunter2")}
	_, _ = s.Sanitize(fields)
	if fields["password"].Str != "hunter2" {
		t.Fatalf("expected Sanitize to leave the caller's map untouched")
	}
}
