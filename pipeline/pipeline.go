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

// Package pipeline wires the rate limiter, sanitizer, schema registry,
// buffer, transport chain and fallback queue into a single orchestrator:
// the entry point that accepts an event, and the background machinery that
// eventually delivers it.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"auditpipe/buffer"
	"auditpipe/errs"
	"auditpipe/event"
	"auditpipe/fallback"
	"auditpipe/metrics"
	"auditpipe/ratelimiter"
	"auditpipe/sanitizer"
	"auditpipe/schema"
	"auditpipe/transport"
)

// TransportSpec describes one member to add to the delivery chain, in
// priority order.
type TransportSpec struct {
	Transport        transport.Transport
	FailureThreshold int
	ResetTimeout     time.Duration
	SuccessThreshold int
}

// Config is the full set of knobs the orchestrator needs at construction.
// Zero values for the nested Buffer config are filled in by buffer.Config's
// own defaulting; the rest is validated in New.
type Config struct {
	// Rate limiting. Shards/Capacity/RefillPerSec mirror ratelimiter.NewStore.
	RateLimitShards           int
	RateLimitCapacity         float64
	RateLimitRefillPerSec     float64
	RateLimitEvictionAge      time.Duration
	RateLimitEvictionInterval time.Duration
	// RateLimitMaxWait, when > 0, makes admission block (via Bucket.WaitAndAdmit)
	// for up to this long before giving up, rather than rejecting immediately.
	// 0 keeps the default fail-fast policy.
	RateLimitMaxWait time.Duration

	Sanitizer []sanitizer.Option

	Schemas           *schema.Registry // may be nil: open, unvalidated
	DefaultSchemaName string

	Buffer           buffer.Config
	MemoryInterval   time.Duration // 0 disables the memory monitor

	Transports            []TransportSpec
	FallbackCapacity      int
	FallbackDrainInterval time.Duration

	HashChainEnabled bool
	HashSecretKey    []byte

	Metrics *prometheus.Registry // nil -> an isolated registry is created
}

func (c *Config) validate() error {
	if c.RateLimitCapacity < 0 {
		return errs.WrapConfig("RateLimitCapacity", fmt.Errorf("must be >= 0"))
	}
	if c.Buffer.Capacity <= 0 {
		return errs.WrapConfig("Buffer.Capacity", fmt.Errorf("must be > 0"))
	}
	if len(c.Transports) == 0 {
		return errs.WrapConfig("Transports", fmt.Errorf("at least one transport is required"))
	}
	if c.HashChainEnabled && len(c.HashSecretKey) > 0 && len(c.HashSecretKey) < 32 {
		return errs.WrapConfig("HashSecretKey", fmt.Errorf("must be at least 32 bytes when set"))
	}
	if c.FallbackDrainInterval <= 0 {
		c.FallbackDrainInterval = 30 * time.Second
	}
	if c.RateLimitShards <= 0 {
		c.RateLimitShards = 16
	}
	return nil
}

// Stats is a point-in-time snapshot of the orchestrator's counters, mirroring
// the audit-logger example's LoggerStats.
type Stats struct {
	Logged         int64
	Dropped        int64
	Sanitized      int64
	RateLimited    int64
	Sent           int64
	Failed         int64
	FallbackQueued int64
	FallbackDrained int64

	BufferSize     int
	BufferCapacity int

	TransportStates map[string]transport.State

	IsRunning bool
}

// Orchestrator is the running pipeline: ingest edge plus background
// flush/drain workers. Construct with New, call Start, and Close when done.
type Orchestrator struct {
	cfg Config

	limiter    *ratelimiter.Store
	sanitize   *sanitizer.Sanitizer
	schemas    *schema.Registry
	buf        *buffer.Buffer
	monitor    *buffer.MemoryMonitor
	chain      *transport.Chain
	fallbackQ  *fallback.Queue
	metrics    *metrics.Registry
	hashChain  *hashChain

	logged, dropped, sanitized, rateLimited int64
	sent, failed                            int64

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *log.Logger
}

// fallbackAdapter increments the fallback_queued counter before delegating
// to the underlying queue, keeping the transport package itself free of a
// metrics dependency.
type fallbackAdapter struct {
	q *fallback.Queue
	o *Orchestrator
}

func (f *fallbackAdapter) Offer(batch event.Batch) bool {
	ok := f.q.Offer(batch)
	if ok {
		f.o.metrics.FallbackQueued.Add(float64(batch.Size()))
	}
	return ok
}

// OnSuccess, OnFailure and OnRejected implement transport.Observer, driving
// the per-transport counters from the chain's own delivery outcomes.
func (o *Orchestrator) OnSuccess(name string) {
	o.metrics.TransportSuccesses.WithLabelValues(name).Inc()
}

func (o *Orchestrator) OnFailure(name string, err error) {
	o.metrics.TransportFailures.WithLabelValues(name).Inc()
}

func (o *Orchestrator) OnRejected(name string) {
	o.metrics.TransportRejections.WithLabelValues(name).Inc()
}

// New validates cfg and assembles an Orchestrator. It does not start any
// background goroutine; call Start for that.
func New(cfg Config, logger *log.Logger) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	reg := cfg.Metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	o := &Orchestrator{
		cfg:     cfg,
		limiter: ratelimiter.NewStore(cfg.RateLimitShards, cfg.RateLimitCapacity, cfg.RateLimitRefillPerSec, cfg.RateLimitEvictionAge, cfg.RateLimitEvictionInterval),
		sanitize: sanitizer.New(cfg.Sanitizer...),
		schemas:  cfg.Schemas,
		metrics:  metrics.New(reg),
		logger:   logger,
	}

	if cfg.HashChainEnabled {
		o.hashChain = newHashChain(cfg.HashSecretKey)
	}

	o.fallbackQ = fallback.NewQueue(cfg.FallbackCapacity)

	o.chain = transport.NewChain(&fallbackAdapter{q: o.fallbackQ, o: o})
	o.chain.SetObserver(o)
	for _, spec := range cfg.Transports {
		o.chain.Add(spec.Transport, spec.FailureThreshold, spec.ResetTimeout, spec.SuccessThreshold)
	}

	if cfg.MemoryInterval > 0 {
		o.monitor = buffer.NewMemoryMonitor(cfg.MemoryInterval, nil)
	}
	o.buf = buffer.New(cfg.Buffer, o.monitor, o.flushBatch)
	o.buf.OnHighWatermarkHit = func() { o.metrics.BufferHighWatermarkHits.Inc() }

	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

// Start launches the buffer's flusher and the fallback-drain loop. Safe to
// call once; subsequent calls are no-ops.
func (o *Orchestrator) Start() {
	if !o.running.CompareAndSwap(false, true) {
		return
	}
	o.buf.Start()
	o.wg.Add(1)
	go o.drainFallbackLoop()
	if o.monitor != nil {
		o.wg.Add(1)
		go o.sampleMemoryMetrics()
	}
}

// Log admits, sanitizes, validates and enqueues one event. Before the push it
// sleeps for the buffer's memory-pressure Backpressure delay (none when
// pressure is OK or no monitor is configured). Buffer-full always returns
// immediately with a non-nil error, dropping the event. Rate-limit admission is fail-fast by
// default; set Config.RateLimitMaxWait > 0 to instead block the caller (via
// Bucket.WaitAndAdmit) for up to that long before giving up.
func (o *Orchestrator) Log(tenantKey, schemaName string, level event.Level, message string, fields event.Fields) (bool, error) {
	if !o.running.Load() {
		return false, fmt.Errorf("orchestrator not started")
	}

	if tenantKey != "" {
		allowed, waitFor := o.admit(tenantKey)
		if !allowed {
			atomic.AddInt64(&o.rateLimited, 1)
			o.metrics.RateLimited.Inc()
			return false, &errs.RateLimitError{Key: tenantKey, WaitFor: waitFor}
		}
	}

	atomic.AddInt64(&o.logged, 1)
	o.metrics.Logged.Inc()

	e := event.New(level, message, fields)
	e.TenantKey = tenantKey
	e.SchemaName = schemaName

	sanitizedFields, report := o.sanitize.Sanitize(e.Fields)
	e.Fields = sanitizedFields
	e.Redactions = report.Count
	if report.Count > 0 {
		atomic.AddInt64(&o.sanitized, 1)
		o.metrics.Sanitized.Inc()
	}

	if o.schemas != nil {
		result := o.schemas.Validate(schemaName, e.Fields)
		e.Fields = result.Normalized
		if !result.OK {
			e.ValidationErrors = result.Errors
			o.logger.Printf("auditpipe: event failed schema %q validation: %v", schemaName, result.Errors)
		}
	}

	if d := o.buf.Backpressure(); d > 0 {
		time.Sleep(d)
	}
	if !o.buf.Push(e) {
		atomic.AddInt64(&o.dropped, 1)
		o.metrics.Dropped.Inc()
		return false, errs.ErrBufferFull
	}
	o.metrics.BufferSize.Set(float64(o.buf.Len()))
	return true, nil
}

// admit checks the tenant's bucket, blocking up to Config.RateLimitMaxWait
// when configured rather than rejecting on the first shortfall.
func (o *Orchestrator) admit(tenantKey string) (allowed bool, waitFor time.Duration) {
	if o.cfg.RateLimitMaxWait <= 0 {
		return o.limiter.Admit(tenantKey, 1)
	}

	bucket := o.limiter.GetOrCreate(tenantKey)
	stop := make(chan struct{})
	timer := time.AfterFunc(o.cfg.RateLimitMaxWait, func() { close(stop) })
	defer timer.Stop()

	if bucket.WaitAndAdmit(1, stop) {
		return true, 0
	}
	return false, bucket.WaitFor(1)
}

// flushBatch is the buffer's FlushFunc: it enriches a drained slice of
// events with the hash chain (if enabled), batches them, and hands the
// batch to the transport chain. A batch no transport accepts is offered to
// the fallback queue and is not counted as sent.
func (o *Orchestrator) flushBatch(events []event.Event) {
	if o.hashChain != nil {
		o.hashChain.apply(events)
	}
	batch := event.NewBatch(events)
	if err := o.chain.SendDirect(o.ctx, batch); err != nil {
		if (&fallbackAdapter{q: o.fallbackQ, o: o}).Offer(batch) {
			o.recordCircuitStates()
			return
		}
		atomic.AddInt64(&o.failed, int64(batch.Size()))
		o.metrics.Failed.Add(float64(batch.Size()))
		o.logger.Printf("auditpipe: batch %s failed delivery: %v", batch.ID, err)
		o.recordCircuitStates()
		return
	}
	atomic.AddInt64(&o.sent, int64(batch.Size()))
	o.metrics.Sent.Add(float64(batch.Size()))
	o.recordCircuitStates()
}

// drainFallbackLoop periodically retries everything sitting in the
// fallback queue by re-submitting it through the transport chain.
func (o *Orchestrator) drainFallbackLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.FallbackDrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.drainFallbackOnce()
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) drainFallbackOnce() {
	_, before, _ := o.fallbackQ.Stats()
	err := o.fallbackQ.Drain(o.ctx, func(ctx context.Context, batch event.Batch) error {
		// SendDirect, not Send: a batch pulled off this queue that fails
		// again must not be re-divert back into the same queue it just
		// left, or Drain would trim events that were never delivered.
		return o.chain.SendDirect(ctx, batch)
	})
	if err != nil {
		o.logger.Printf("auditpipe: fallback drain failed: %v", err)
		return
	}
	_, after, _ := o.fallbackQ.Stats()
	if delta := after - before; delta > 0 {
		o.metrics.FallbackDrained.Add(float64(delta))
	}
}

func (o *Orchestrator) sampleMemoryMetrics() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.MemoryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			switch o.monitor.Current().Pressure {
			case buffer.PressureWarning:
				o.metrics.MemoryWarningCount.Inc()
			case buffer.PressureCritical:
				o.metrics.MemoryCriticalCount.Inc()
			}
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) recordCircuitStates() {
	for name, state := range o.chain.States() {
		o.metrics.CircuitState.WithLabelValues(name).Set(metrics.CircuitStateValue(int(state)))
	}
}

// Stats returns a point-in-time snapshot of the orchestrator's counters.
func (o *Orchestrator) Stats() Stats {
	queued, drained, _ := o.fallbackQ.Stats()
	return Stats{
		Logged:          atomic.LoadInt64(&o.logged),
		Dropped:         atomic.LoadInt64(&o.dropped),
		Sanitized:       atomic.LoadInt64(&o.sanitized),
		RateLimited:     atomic.LoadInt64(&o.rateLimited),
		Sent:            atomic.LoadInt64(&o.sent),
		Failed:          atomic.LoadInt64(&o.failed),
		FallbackQueued:  queued,
		FallbackDrained: drained,
		BufferSize:      o.buf.Len(),
		BufferCapacity:  o.cfg.Buffer.Capacity,
		TransportStates: o.chain.States(),
		IsRunning:       o.running.Load(),
	}
}

// Health reports a non-nil error when the orchestrator is degraded: every
// transport's circuit open, the buffer past 90% full, or the process under
// critical memory pressure. Mirrors the audit-logger example's Health,
// adapted to this package's own components.
func (o *Orchestrator) Health() error {
	if !o.running.Load() {
		return fmt.Errorf("orchestrator not running")
	}

	states := o.chain.States()
	allOpen := len(states) > 0
	for _, s := range states {
		if s != transport.StateOpen {
			allOpen = false
			break
		}
	}
	if allOpen {
		return fmt.Errorf("all transports circuit-open")
	}

	if o.cfg.Buffer.Capacity > 0 {
		ratio := float64(o.buf.Len()) / float64(o.cfg.Buffer.Capacity)
		if ratio > 0.9 {
			return fmt.Errorf("buffer at %.0f%% capacity", ratio*100)
		}
	}

	if o.monitor != nil && o.monitor.Current().Pressure == buffer.PressureCritical {
		return fmt.Errorf("heap pressure critical")
	}

	return nil
}

// Close stops the background workers, flushes the buffer one last time, and
// closes every transport in the chain. Events still sitting in the fallback
// queue when Close returns are left there; a durable fallback store (see
// fallback.PostgresFallbackStore) can persist them across a restart.
func (o *Orchestrator) Close() error {
	if !o.running.CompareAndSwap(true, false) {
		return nil
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		o.logger.Printf("auditpipe: timed out waiting for background workers to stop")
	}

	o.buf.FlushAll()
	o.buf.Close()
	if o.monitor != nil {
		o.monitor.Close()
	}
	o.limiter.Close()
	return o.chain.Close()
}
