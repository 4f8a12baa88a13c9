// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package exporter implements the sidecar span exporter (C15): it
// drains ring-buffer batches (see package ringbuffer), compresses the
// on-disk path through the RLE Compressor (package rle) before handing
// batches to the Columnar Store (package store), and — when a remote
// sink is configured — rate-limits and samples the same batch for an
// OTLP adapter. Rate limiting uses golang.org/x/time/rate, the same
// token-bucket library the teacher's rule sampler test exercises.
package exporter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/renacer/renacer/internal/log"
	"github.com/renacer/renacer/rle"
	"github.com/renacer/renacer/span"
	"github.com/renacer/renacer/store"
	"golang.org/x/time/rate"
)

// DefaultRateLimitPerSecond and DefaultSampleRate are spec §4.15's
// remote-sink defaults.
const (
	DefaultRateLimitPerSecond = 1000
	DefaultSampleRate         = 0.1
)

// Sink is the minimal OTLP adapter contract: actual OTLP protobuf wire
// encoding and the gRPC transport are out of scope (spec §1's explicit
// non-goals) — callers supply a Sink backed by whatever client they
// configure (e.g. one wrapping a grpc.ClientConnInterface).
type Sink interface {
	ExportSpans(ctx context.Context, spans []*span.Span) error
}

// Config holds the exporter's tunables.
type Config struct {
	RateLimitPerSecond float64
	SampleRate         float64
	RLEMinRunLength    int
}

// DefaultConfig returns spec defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitPerSecond: DefaultRateLimitPerSecond,
		SampleRate:         DefaultSampleRate,
		RLEMinRunLength:    rle.DefaultMinRunLength,
	}
}

// Exporter owns draining ring-buffer batches to the columnar store and
// (optionally) a remote OTLP sink, per spec §4.15's five-step pipeline.
type Exporter struct {
	st      *store.Store
	sink    Sink
	cfg     Config
	limiter *rate.Limiter
	statsd  statsd.ClientInterface

	mu  sync.Mutex
	rng *rand.Rand

	sentToSink      uint64
	droppedByRate   uint64
	droppedBySample uint64
}

// New constructs an Exporter. sink may be nil, disabling the remote
// path entirely (spec: "If a remote sink is configured...").
func New(st *store.Store, sink Sink, cfg Config) *Exporter {
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = DefaultRateLimitPerSecond
	}
	if cfg.RLEMinRunLength <= 0 {
		cfg.RLEMinRunLength = rle.DefaultMinRunLength
	}
	return &Exporter{
		st:      st,
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), int(cfg.RateLimitPerSecond)),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// UseStatsd attaches a statsd client the exporter reports health
// counters to (batch size, drop reasons, sink latency). A nil client
// (the default) disables health reporting entirely.
func (e *Exporter) UseStatsd(c statsd.ClientInterface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statsd = c
}

// HandleBatch implements ringbuffer.Drain: it is the function handed to
// ringbuffer.New so the sidecar goroutine calls it directly.
func (e *Exporter) HandleBatch(batch []*span.Span) {
	if len(batch) == 0 {
		return
	}
	e.gauge("renacer.exporter.batch_size", float64(len(batch)))

	encoded := rle.Compress(batch, e.cfg.RLEMinRunLength)
	if err := e.st.InsertEncoded(encoded); err != nil {
		log.Error("exporter: columnar store insert failed: %v", err)
		e.incr("renacer.exporter.store_errors")
	}

	if e.sink == nil {
		return
	}
	e.exportToSink(batch)
}

func (e *Exporter) incr(name string) {
	e.mu.Lock()
	c := e.statsd
	e.mu.Unlock()
	if c == nil {
		return
	}
	_ = c.Incr(name, nil, 1)
}

func (e *Exporter) count(name string, n int64) {
	e.mu.Lock()
	c := e.statsd
	e.mu.Unlock()
	if c == nil || n == 0 {
		return
	}
	_ = c.Count(name, n, nil, 1)
}

func (e *Exporter) gauge(name string, v float64) {
	e.mu.Lock()
	c := e.statsd
	e.mu.Unlock()
	if c == nil {
		return
	}
	_ = c.Gauge(name, v, nil, 1)
}

func (e *Exporter) exportToSink(batch []*span.Span) {
	var filtered []*span.Span
	var droppedRate, droppedSample int64
	for _, s := range batch {
		if !e.limiter.Allow() {
			e.mu.Lock()
			e.droppedByRate++
			e.mu.Unlock()
			droppedRate++
			continue
		}
		if !e.sample() {
			e.mu.Lock()
			e.droppedBySample++
			e.mu.Unlock()
			droppedSample++
			continue
		}
		filtered = append(filtered, s)
	}
	e.count("renacer.exporter.dropped_rate_limit", droppedRate)
	e.count("renacer.exporter.dropped_sample", droppedSample)
	if len(filtered) == 0 {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.sink.ExportSpans(ctx, filtered)
	e.gauge("renacer.exporter.sink_latency_ms", float64(time.Since(start).Milliseconds()))
	if err != nil {
		log.Warn("exporter: remote sink export failed: %v", err)
		e.incr("renacer.exporter.sink_errors")
		return
	}
	e.mu.Lock()
	e.sentToSink += uint64(len(filtered))
	e.mu.Unlock()
	e.count("renacer.exporter.sent_to_sink", int64(len(filtered)))
}

func (e *Exporter) sample() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64() < e.cfg.SampleRate
}

// Flush flushes the backing columnar store.
func (e *Exporter) Flush() error {
	return e.st.Flush()
}

// Stats reports exporter-side accounting, distinct from the ring
// buffer's own push/drop counters.
type Stats struct {
	SentToSink      uint64
	DroppedByRate   uint64
	DroppedBySample uint64
}

// Stats returns the exporter's remote-path accounting.
func (e *Exporter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		SentToSink:      e.sentToSink,
		DroppedByRate:   e.droppedByRate,
		DroppedBySample: e.droppedBySample,
	}
}
