// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package exporter

import (
	"context"
	"sync"
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/renacer/renacer/internal/id"
	"github.com/renacer/renacer/span"
	"github.com/renacer/renacer/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStatsd embeds the library's no-op client so only the counters
// this test cares about need overriding.
type fakeStatsd struct {
	statsd.NoOpClient
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeStatsd() *fakeStatsd {
	return &fakeStatsd{counts: map[string]int64{}}
}

func (f *fakeStatsd) Count(name string, value int64, _ []string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name] += value
	return nil
}

func (f *fakeStatsd) Incr(name string, tags []string, rate float64) error {
	return f.Count(name, 1, tags, rate)
}

func (f *fakeStatsd) get(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

func mkSpan(t *testing.T, trace id.TraceID, name string, start, end int64) *span.Span {
	t.Helper()
	s, err := span.New(span.Params{
		TraceID: trace,
		SpanID:  id.NewSpanID(),
		Name:    name,
		Start:   start,
		End:     end,
	})
	require.NoError(t, err)
	return s
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]*span.Span
	err     error
}

func (f *fakeSink) ExportSpans(_ context.Context, spans []*span.Span) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := make([]*span.Span, len(spans))
	copy(cp, spans)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeSink) totalSpans() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestHandleBatchInsertsIntoStoreWithoutSink(t *testing.T) {
	st := openTestStore(t)
	exp := New(st, nil, DefaultConfig())

	trace := id.NewTraceID()
	batch := []*span.Span{mkSpan(t, trace, "read", 0, 1), mkSpan(t, trace, "write", 1, 2)}
	exp.HandleBatch(batch)

	stats, err := st.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.SpanCount)
}

func TestHandleBatchCompressesTightLoopBeforeStoring(t *testing.T) {
	st := openTestStore(t)
	cfg := DefaultConfig()
	cfg.RLEMinRunLength = 100
	exp := New(st, nil, cfg)

	trace := id.NewTraceID()
	var loop []*span.Span
	for i := 0; i < 500; i++ {
		loop = append(loop, mkSpan(t, trace, "poll", int64(i), int64(i+1)))
	}
	exp.HandleBatch(loop)

	stats, err := st.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), stats.SpanCount)

	got, err := st.QueryByTraceID(trace)
	require.NoError(t, err)
	assert.Len(t, got, 500)
}

func TestHandleBatchRoutesToSinkWithSampleRateOne(t *testing.T) {
	st := openTestStore(t)
	sink := &fakeSink{}
	cfg := DefaultConfig()
	cfg.SampleRate = 1.0
	cfg.RateLimitPerSecond = 1_000_000
	exp := New(st, sink, cfg)

	trace := id.NewTraceID()
	batch := []*span.Span{mkSpan(t, trace, "read", 0, 1), mkSpan(t, trace, "write", 1, 2)}
	exp.HandleBatch(batch)

	assert.Equal(t, 2, sink.totalSpans())
	assert.Equal(t, uint64(2), exp.Stats().SentToSink)
}

func TestHandleBatchSampleRateZeroDropsEverything(t *testing.T) {
	st := openTestStore(t)
	sink := &fakeSink{}
	cfg := DefaultConfig()
	cfg.SampleRate = 0.0
	cfg.RateLimitPerSecond = 1_000_000
	exp := New(st, sink, cfg)

	trace := id.NewTraceID()
	batch := []*span.Span{mkSpan(t, trace, "read", 0, 1)}
	exp.HandleBatch(batch)

	assert.Equal(t, 0, sink.totalSpans())
	assert.Equal(t, uint64(1), exp.Stats().DroppedBySample)
}

func TestHandleBatchRateLimiterDropsExcess(t *testing.T) {
	st := openTestStore(t)
	sink := &fakeSink{}
	cfg := Config{RateLimitPerSecond: 1, SampleRate: 1.0, RLEMinRunLength: 1000}
	exp := New(st, sink, cfg)

	trace := id.NewTraceID()
	var batch []*span.Span
	for i := 0; i < 10; i++ {
		batch = append(batch, mkSpan(t, trace, "read", int64(i), int64(i+1)))
	}
	exp.HandleBatch(batch)

	stats := exp.Stats()
	assert.Less(t, stats.SentToSink, uint64(10))
	assert.Greater(t, stats.DroppedByRate, uint64(0))
}

func TestHandleBatchWithNilSinkSkipsRemotePath(t *testing.T) {
	st := openTestStore(t)
	exp := New(st, nil, DefaultConfig())
	trace := id.NewTraceID()
	exp.HandleBatch([]*span.Span{mkSpan(t, trace, "read", 0, 1)})
	assert.Equal(t, uint64(0), exp.Stats().SentToSink)
}

func TestUseStatsdReportsSinkHealthCounters(t *testing.T) {
	st := openTestStore(t)
	sink := &fakeSink{}
	fs := newFakeStatsd()
	cfg := DefaultConfig()
	cfg.SampleRate = 1.0
	cfg.RateLimitPerSecond = 1_000_000
	exp := New(st, sink, cfg)
	exp.UseStatsd(fs)

	trace := id.NewTraceID()
	exp.HandleBatch([]*span.Span{mkSpan(t, trace, "read", 0, 1), mkSpan(t, trace, "write", 1, 2)})

	assert.Equal(t, int64(2), fs.get("renacer.exporter.sent_to_sink"))
}

func TestUseStatsdNilClientIsSilentNoOp(t *testing.T) {
	st := openTestStore(t)
	exp := New(st, nil, DefaultConfig())
	exp.UseStatsd(nil)
	trace := id.NewTraceID()
	assert.NotPanics(t, func() {
		exp.HandleBatch([]*span.Span{mkSpan(t, trace, "read", 0, 1)})
	})
}

func TestFlushDelegatesToStore(t *testing.T) {
	st := openTestStore(t)
	exp := New(st, nil, DefaultConfig())
	assert.NoError(t, exp.Flush())
}
