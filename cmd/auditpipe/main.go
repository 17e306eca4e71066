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

// Package main runs the audit pipeline as a standalone process: an HTTP
// ingest edge in front of the orchestrator, and a Prometheus /metrics
// endpoint for the counters described in DESIGN.md.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auditpipe/buffer"
	"auditpipe/event"
	"auditpipe/pipeline"
	"auditpipe/transport"
)

func main() {
	// Buffer/admission knobs, named the way the ratelimiter-api demo names
	// its commit/eviction flags: nouns first, units in the help text.
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the ingest API")
	metricsAddr := flag.String("metrics_addr", ":9090", "HTTP listen address for the Prometheus /metrics endpoint")

	bufferCapacity := flag.Int("buffer_capacity", 10000, "Maximum events held in the ingest buffer before admission starts dropping")
	baseBatchSize := flag.Int("base_batch_size", 100, "Baseline batch size before adaptive scaling")
	memoryInterval := flag.Duration("memory_sample_interval", time.Second, "How often to sample heap pressure; 0 disables adaptive backpressure")

	rateLimitCapacity := flag.Float64("rate_limit_capacity", 1000, "Per-tenant token bucket capacity")
	rateLimitRefill := flag.Float64("rate_limit_refill_per_sec", 100, "Per-tenant token bucket refill rate")
	rateLimitShards := flag.Int("rate_limit_shards", 16, "Number of rate limiter shards")

	consoleEnabled := flag.Bool("console_transport", true, "Enable the console transport (writes NDJSON to stdout)")
	filePath := flag.String("file_transport_path", "", "If non-empty, enable the file transport appending NDJSON to this path")
	httpEndpoint := flag.String("http_transport_endpoint", "", "If non-empty, enable the HTTP transport posting batches to this URL")
	redisAddr := flag.String("redis_transport_addr", "", "If non-empty, enable the Redis transport against this address")
	redisListKey := flag.String("redis_transport_list_key", "auditpipe:events", "Redis list key the Redis transport RPUSHes batches onto")
	kafkaTopic := flag.String("kafka_transport_topic", "", "If non-empty, enable the (logging stand-in) Kafka transport for this topic")

	fallbackCapacity := flag.Int("fallback_capacity", 50000, "Maximum events held in the fallback queue")
	fallbackDrainInterval := flag.Duration("fallback_drain_interval", 30*time.Second, "How often the fallback queue retries delivery")

	hashChainEnabled := flag.Bool("hash_chain", false, "Enable per-event hash chaining")
	hashChainSecret := flag.String("hash_chain_secret", "", "HMAC key for hash chaining; must be at least 32 bytes if set")
	flag.Parse()

	var transports []pipeline.TransportSpec
	if *consoleEnabled {
		transports = append(transports, pipeline.TransportSpec{
			Transport:        transport.NewConsoleTransport("console", os.Stdout),
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			SuccessThreshold: 1,
		})
	}
	if *filePath != "" {
		ft, err := transport.NewFileTransport("file", *filePath)
		if err != nil {
			log.Fatalf("auditpipe: could not open file transport at %q: %v", *filePath, err)
		}
		transports = append(transports, pipeline.TransportSpec{
			Transport:        ft,
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			SuccessThreshold: 1,
		})
	}
	if *httpEndpoint != "" {
		transports = append(transports, pipeline.TransportSpec{
			Transport:        transport.NewHTTPTransport("http", *httpEndpoint, 5*time.Second, nil),
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			SuccessThreshold: 2,
		})
	}
	if *redisAddr != "" {
		client := transport.NewGoRedisEvaler(*redisAddr)
		transports = append(transports, pipeline.TransportSpec{
			Transport:        transport.NewRedisTransport("redis", client, *redisListKey, 24*time.Hour),
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			SuccessThreshold: 2,
		})
	}
	if *kafkaTopic != "" {
		transports = append(transports, pipeline.TransportSpec{
			Transport:        transport.NewKafkaTransport("kafka", &transport.LoggingKafkaProducer{}, *kafkaTopic),
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			SuccessThreshold: 2,
		})
	}
	if len(transports) == 0 {
		log.Fatalf("auditpipe: no transport enabled; at least one of -console_transport, -file_transport_path, -http_transport_endpoint, -redis_transport_addr, -kafka_transport_topic is required")
	}

	var hashSecret []byte
	if *hashChainSecret != "" {
		hashSecret = []byte(*hashChainSecret)
	}

	cfg := pipeline.Config{
		RateLimitShards:       *rateLimitShards,
		RateLimitCapacity:     *rateLimitCapacity,
		RateLimitRefillPerSec: *rateLimitRefill,
		RateLimitEvictionAge:  time.Hour,
		RateLimitEvictionInterval: 10 * time.Minute,
		Buffer: buffer.Config{
			Capacity:      *bufferCapacity,
			BaseBatchSize: *baseBatchSize,
		},
		MemoryInterval:        *memoryInterval,
		Transports:            transports,
		FallbackCapacity:      *fallbackCapacity,
		FallbackDrainInterval: *fallbackDrainInterval,
		HashChainEnabled:      *hashChainEnabled,
		HashSecretKey:         hashSecret,
		Metrics:               prometheus.NewRegistry(),
	}

	orch, err := pipeline.New(cfg, log.Default())
	if err != nil {
		log.Fatalf("auditpipe: invalid configuration: %v", err)
	}
	orch.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/log", ingestHandler(orch))
	mux.HandleFunc("/healthz", healthHandler(orch))
	mux.HandleFunc("/stats", statsHandler(orch))
	ingestServer := &http.Server{Addr: *httpAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux}

	go func() {
		fmt.Printf("auditpipe ingest API listening on %s\n", *httpAddr)
		if err := ingestServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("auditpipe: ingest server: %v", err)
		}
	}()
	go func() {
		fmt.Printf("auditpipe metrics listening on %s\n", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("auditpipe: metrics server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nauditpipe: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := ingestServer.Shutdown(ctx); err != nil {
		log.Printf("auditpipe: ingest server shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Printf("auditpipe: metrics server shutdown: %v", err)
	}
	if err := orch.Close(); err != nil {
		log.Printf("auditpipe: orchestrator close: %v", err)
	}

	fmt.Println("auditpipe: stopped.")
}

// ingestEvent is the wire shape accepted by POST /log.
type ingestEvent struct {
	TenantKey  string         `json:"tenant_key"`
	SchemaName string         `json:"schema_name"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields"`
}

func ingestHandler(orch *pipeline.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var in ingestEvent
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
			return
		}

		fields := make(event.Fields, len(in.Fields))
		for k, v := range in.Fields {
			fields[k] = jsonToValue(v)
		}

		accepted, err := orch.Log(in.TenantKey, in.SchemaName, event.ParseLevel(in.Level), in.Message, fields)
		if err != nil {
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		if !accepted {
			http.Error(w, "dropped", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// jsonToValue converts a decoded JSON value into an event.Value tree. JSON
// has no distinct integer/float/bool-string types beyond what encoding/json
// already gives us, so this is a direct structural mapping.
func jsonToValue(v any) event.Value {
	switch t := v.(type) {
	case nil:
		return event.Null()
	case string:
		return event.String(t)
	case float64:
		return event.Number(t)
	case bool:
		return event.Bool(t)
	case map[string]any:
		m := make(map[string]event.Value, len(t))
		for k, child := range t {
			m[k] = jsonToValue(child)
		}
		return event.Mapping(m)
	case []any:
		s := make([]event.Value, len(t))
		for i, child := range t {
			s[i] = jsonToValue(child)
		}
		return event.Sequence(s)
	default:
		return event.Null()
	}
}

func healthHandler(orch *pipeline.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.Health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func statsHandler(orch *pipeline.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Stats())
	}
}
