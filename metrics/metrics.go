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

// Package metrics exposes the pipeline's observable counters as Prometheus
// collectors. Unlike a package-level singleton, Registry is an instance so
// more than one pipeline can run in the same process (tests, multi-tenant
// hosts) without colliding on metric registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every counter/gauge the pipeline reports, matching the
// observable-counter surface: logged, dropped, sanitized, rate_limited,
// sent, failed, fallback_queued, fallback_drained, per-transport
// successes/failures/rejections/circuit_state, buffer size/high-watermark
// hits, memory warning/critical counts.
type Registry struct {
	Logged        prometheus.Counter
	Dropped       prometheus.Counter
	Sanitized     prometheus.Counter
	RateLimited   prometheus.Counter
	Sent          prometheus.Counter
	Failed        prometheus.Counter
	FallbackQueued  prometheus.Counter
	FallbackDrained prometheus.Counter

	TransportSuccesses  *prometheus.CounterVec
	TransportFailures   *prometheus.CounterVec
	TransportRejections *prometheus.CounterVec
	CircuitState        *prometheus.GaugeVec

	BufferSize             prometheus.Gauge
	BufferHighWatermarkHits prometheus.Counter

	MemoryWarningCount  prometheus.Counter
	MemoryCriticalCount prometheus.Counter
}

// New builds a Registry and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests, multiple
// pipeline instances) or prometheus.DefaultRegisterer for process-wide
// exposition via promhttp.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Logged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_logged_total",
			Help: "Total log calls accepted by the ingest edge.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_dropped_total",
			Help: "Total events dropped because the buffer was full.",
		}),
		Sanitized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_sanitized_total",
			Help: "Total events that had at least one field redacted.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_rate_limited_total",
			Help: "Total log calls rejected by the rate limiter.",
		}),
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_sent_total",
			Help: "Total events successfully delivered through the transport chain.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_failed_total",
			Help: "Total events that reached DeliveryFatal.",
		}),
		FallbackQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_fallback_queued_total",
			Help: "Total events diverted to the fallback queue.",
		}),
		FallbackDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_fallback_drained_total",
			Help: "Total events successfully re-delivered out of the fallback queue.",
		}),
		TransportSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditpipe_transport_successes_total",
			Help: "Per-transport successful sends.",
		}, []string{"transport"}),
		TransportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditpipe_transport_failures_total",
			Help: "Per-transport failed sends.",
		}, []string{"transport"}),
		TransportRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditpipe_transport_rejections_total",
			Help: "Per-transport sends rejected outright by an open circuit breaker.",
		}, []string{"transport"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "auditpipe_transport_circuit_state",
			Help: "Per-transport circuit breaker state (0=CLOSED, 1=OPEN, 2=HALF_OPEN).",
		}, []string{"transport"}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditpipe_buffer_size",
			Help: "Current number of events held in the ingest buffer.",
		}),
		BufferHighWatermarkHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_buffer_high_watermark_hits_total",
			Help: "Total times the buffer crossed its high watermark, triggering a flush.",
		}),
		MemoryWarningCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_memory_warning_total",
			Help: "Total memory sampling ticks observed at WARNING pressure.",
		}),
		MemoryCriticalCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditpipe_memory_critical_total",
			Help: "Total memory sampling ticks observed at CRITICAL pressure.",
		}),
	}

	reg.MustRegister(
		r.Logged, r.Dropped, r.Sanitized, r.RateLimited, r.Sent, r.Failed,
		r.FallbackQueued, r.FallbackDrained,
		r.TransportSuccesses, r.TransportFailures, r.TransportRejections, r.CircuitState,
		r.BufferSize, r.BufferHighWatermarkHits,
		r.MemoryWarningCount, r.MemoryCriticalCount,
	)
	return r
}

// CircuitStateValue maps a breaker state to the gauge value recorded for it.
func CircuitStateValue(state int) float64 {
	return float64(state)
}
