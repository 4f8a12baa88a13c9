// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package store implements the columnar trace store (C6): row-group
// batched insertion plus trace-id and time-range queries, backed by a
// per-group Bloom filter over trace ids (github.com/willf/bloom) and a
// per-group statistics index (github.com/tidwall/buntdb) holding
// start-time and process-id ranges and an error flag. The index keeps
// no trace-id statistics; trace-id pruning rests on the Bloom filter
// alone. Full-span rows are additionally appended to an on-disk file via the span package's
// msgp encoding so storage accounting (Stats.FileSizeBytes) reflects a
// real, append-only backing file; the in-memory row groups remain the
// source of truth for queries — the on-disk copy is not re-read, matching
// spec's "file format is intended to be readable by an external columnar
// query engine" framing. InsertEncoded accepts an already RLE-compressed
// batch (package rle) and stores Segment blocks as single compacted
// rows alongside full-span rows — the on-disk path spec §4.15 names.
// Segment rows are held in memory only; they are not written to the
// backing file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/renacer/renacer"
	"github.com/renacer/renacer/rle"
	"github.com/renacer/renacer/span"
	"github.com/tidwall/buntdb"
	"github.com/willf/bloom"
)

// DefaultRowGroupSize is spec §4.6's default row-group granularity.
const DefaultRowGroupSize = 10_000

// Config holds the knobs spec §4.6 requires to be configurable.
type Config struct {
	RowGroupSize            int
	BloomFilterEnabled      bool
	CompositeIndexEnabled   bool
	PredicatePushdownEnabled bool
	// Path is the backing append-only file. Empty disables on-disk
	// persistence entirely (in-memory-only store, useful for tests).
	Path string
}

// DefaultConfig returns spec defaults: 10k rows/group, all pushdown
// features on.
func DefaultConfig() Config {
	return Config{
		RowGroupSize:             DefaultRowGroupSize,
		BloomFilterEnabled:       true,
		CompositeIndexEnabled:    true,
		PredicatePushdownEnabled: true,
	}
}

// groupStats is the composite-index payload persisted to buntdb per
// row group: the statistics query planning prunes on before touching
// span data.
type groupStats struct {
	Seq              int    `json:"seq"`
	RowCount         int    `json:"row_count"`
	LogicalSpanCount int    `json:"logical_span_count"`
	StartMinNS       int64  `json:"start_min_ns"`
	StartMaxNS       int64  `json:"start_max_ns"`
	HasTimeInfo      bool   `json:"has_time_info"`
	HasErrors        bool   `json:"has_errors"`
	ProcessIDLo      uint32 `json:"pid_lo"`
	ProcessIDHi      uint32 `json:"pid_hi"`
}

// rowGroup holds two kinds of rows: full spans (pass-through) and RLE
// Segments (compacted tight-loop runs, see package rle). A Segment row
// represents seg.Count logical spans at a fraction of the storage cost;
// it carries no per-span wall-clock range, so time-range queries only
// ever match against full-span rows (see Query* below).
type rowGroup struct {
	seq      int
	spans    []*span.Span
	segments []*rle.Segment
	stats    groupStats
	bloom    *bloom.BloomFilter
	sealed   bool
	// writtenN tracks how many of spans have already been appended to
	// the backing file, so Flush never re-writes bytes.
	writtenN int
}

func newRowGroup(seq int, capacity int) *rowGroup {
	return &rowGroup{
		seq:   seq,
		spans: make([]*span.Span, 0, capacity),
		stats: groupStats{Seq: seq, StartMinNS: 1<<63 - 1, StartMaxNS: -1, ProcessIDLo: ^uint32(0)},
	}
}

func (g *rowGroup) observe(s *span.Span) {
	g.spans = append(g.spans, s)
	g.stats.RowCount++
	g.stats.LogicalSpanCount++
	g.stats.HasTimeInfo = true
	if s.Start < g.stats.StartMinNS {
		g.stats.StartMinNS = s.Start
	}
	if s.Start > g.stats.StartMaxNS {
		g.stats.StartMaxNS = s.Start
	}
	if s.Status == span.Error {
		g.stats.HasErrors = true
	}
	if s.ProcessID < g.stats.ProcessIDLo {
		g.stats.ProcessIDLo = s.ProcessID
	}
	if s.ProcessID > g.stats.ProcessIDHi {
		g.stats.ProcessIDHi = s.ProcessID
	}
}

func (g *rowGroup) observeSegment(seg *rle.Segment) {
	g.segments = append(g.segments, seg)
	g.stats.RowCount++
	g.stats.LogicalSpanCount += seg.Count
	if seg.ProcessID < g.stats.ProcessIDLo {
		g.stats.ProcessIDLo = seg.ProcessID
	}
	if seg.ProcessID > g.stats.ProcessIDHi {
		g.stats.ProcessIDHi = seg.ProcessID
	}
}

// decodeSegment materializes a Segment's synthetic spans; used to
// answer trace-id/process-id queries that match it.
func decodeSegment(seg *rle.Segment) []*span.Span {
	return rle.Decode(rle.Encoded{Blocks: []rle.Block{{Segment: seg}}})
}

// Store is the columnar trace store.
type Store struct {
	mu      sync.Mutex
	cfg     Config
	groups  []*rowGroup
	current *rowGroup
	nextSeq int
	idx     *buntdb.DB
	file    *os.File
	closed  bool
	total   uint64

	// groupsPrunedByBloom counts row groups skipped by a negative Bloom
	// filter test, surfaced via Stats so pruning is observable without
	// instrumenting the query result itself.
	groupsPrunedByBloom uint64
}

// Open creates a Store. cfg.Path == "" disables on-disk persistence.
func Open(cfg Config) (*Store, error) {
	if cfg.RowGroupSize <= 0 {
		cfg.RowGroupSize = DefaultRowGroupSize
	}
	idx, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, renacer.NewStorageError("store.Open", "failed to open composite index", err)
	}
	s := &Store{cfg: cfg, idx: idx}
	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			idx.Close()
			return nil, renacer.NewStorageError("store.Open", "failed to open backing file", err)
		}
		s.file = f
	}
	s.current = newRowGroup(s.nextSeq, cfg.RowGroupSize)
	s.nextSeq++
	return s, nil
}

// InsertBatch atomically appends spans, rolling over to a fresh row
// group whenever the current one fills. It returns only an error; the
// number of row groups sealed is not reported.
func (s *Store) InsertBatch(spans []*span.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return renacer.NewStorageError("store.InsertBatch", "store is closed", nil)
	}
	for _, sp := range spans {
		s.current.observe(sp)
		s.total++
		if s.current.stats.RowCount >= s.cfg.RowGroupSize {
			if err := s.sealLocked(s.current); err != nil {
				return err
			}
			s.groups = append(s.groups, s.current)
			s.current = newRowGroup(s.nextSeq, s.cfg.RowGroupSize)
			s.nextSeq++
		}
	}
	return nil
}

// InsertEncoded inserts an already RLE-compressed batch (see package
// rle): pass-through Span blocks are stored as full rows, Segment
// blocks as a single compacted row representing many logical spans.
// This is the "on-disk path" spec §4.15 describes.
func (s *Store) InsertEncoded(e rle.Encoded) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return renacer.NewStorageError("store.InsertEncoded", "store is closed", nil)
	}
	for _, b := range e.Blocks {
		if b.Segment != nil {
			s.current.observeSegment(b.Segment)
			s.total += uint64(b.Segment.Count)
		} else {
			s.current.observe(b.Span)
			s.total++
		}
		if s.current.stats.RowCount >= s.cfg.RowGroupSize {
			if err := s.sealLocked(s.current); err != nil {
				return err
			}
			s.groups = append(s.groups, s.current)
			s.current = newRowGroup(s.nextSeq, s.cfg.RowGroupSize)
			s.nextSeq++
		}
	}
	return nil
}

// sealLocked finalizes a row group: builds its Bloom filter, writes any
// unwritten span bytes to the backing file, and persists its stats into
// the composite index. Caller holds s.mu.
func (s *Store) sealLocked(g *rowGroup) error {
	if s.cfg.BloomFilterEnabled && g.bloom == nil {
		bf := bloom.NewWithEstimates(uint(max(len(g.spans)+len(g.segments), 1)), 0.01)
		for _, sp := range g.spans {
			bf.Add(sp.TraceID[:])
		}
		for _, seg := range g.segments {
			bf.Add(seg.TraceID[:])
		}
		g.bloom = bf
	}
	if err := s.appendUnwrittenLocked(g); err != nil {
		return err
	}
	g.sealed = true
	if s.cfg.CompositeIndexEnabled {
		payload, err := json.Marshal(g.stats)
		if err != nil {
			return renacer.NewStorageError("store.seal", "failed to marshal group stats", err)
		}
		key := fmt.Sprintf("grp:%012d", g.seq)
		err = s.idx.Update(func(tx *buntdb.Tx) error {
			_, _, err := tx.Set(key, string(payload), nil)
			return err
		})
		if err != nil {
			return renacer.NewStorageError("store.seal", "failed to persist composite index entry", err)
		}
	}
	return nil
}

func (s *Store) appendUnwrittenLocked(g *rowGroup) error {
	if s.file == nil {
		g.writtenN = len(g.spans)
		return nil
	}
	for ; g.writtenN < len(g.spans); g.writtenN++ {
		b, err := g.spans[g.writtenN].MarshalMsg(nil)
		if err != nil {
			return renacer.NewStorageError("store.append", "failed to encode span", err)
		}
		if _, err := s.file.Write(b); err != nil {
			return renacer.NewStorageError("store.append", "failed to write span bytes", err)
		}
	}
	return nil
}

// Flush persists the current (unsealed) group's not-yet-written span
// bytes and fsyncs the backing file. It does not seal the group: a
// partially filled group stays open for further inserts.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendUnwrittenLocked(s.current); err != nil {
		return err
	}
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return renacer.NewStorageError("store.Flush", "fsync failed", err)
		}
	}
	return nil
}

// Close flushes and releases the backing file and index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.appendUnwrittenLocked(s.current); err != nil {
		return err
	}
	var firstErr error
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			firstErr = renacer.NewStorageError("store.Close", "failed to close backing file", err)
		}
	}
	if err := s.idx.Close(); err != nil && firstErr == nil {
		firstErr = renacer.NewStorageError("store.Close", "failed to close composite index", err)
	}
	return firstErr
}

// allGroups returns sealed groups followed by the current (open) group,
// the order queries scan in.
func (s *Store) allGroups() []*rowGroup {
	out := make([]*rowGroup, 0, len(s.groups)+1)
	out = append(out, s.groups...)
	out = append(out, s.current)
	return out
}

// candidateSeqsLocked walks the composite index in order, calling keep
// for every sealed group's stats to decide whether it might contain a
// match; it returns the set of sealed sequence numbers worth scanning.
// The unsealed current group is always a candidate (no index entry yet).
func (s *Store) candidateSeqsLocked(keep func(groupStats) bool) (map[int]bool, error) {
	result := map[int]bool{s.current.seq: true}
	if !s.cfg.CompositeIndexEnabled || !s.cfg.PredicatePushdownEnabled {
		for _, g := range s.groups {
			result[g.seq] = true
		}
		return result, nil
	}
	err := s.idx.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("grp:*", func(key, value string) bool {
			var gs groupStats
			if err := json.Unmarshal([]byte(value), &gs); err != nil {
				return true
			}
			if keep(gs) {
				result[gs.Seq] = true
			}
			return true
		})
	})
	if err != nil {
		return nil, renacer.NewStorageError("store.query", "composite index scan failed", err)
	}
	return result, nil
}

// QueryByTraceID returns every span recorded under traceID, pruning row
// groups whose Bloom filter says the id cannot be present.
func (s *Store) QueryByTraceID(traceID [16]byte) ([]*span.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs, err := s.candidateSeqsLocked(func(groupStats) bool { return true })
	if err != nil {
		return nil, err
	}
	var out []*span.Span
	for _, g := range s.allGroups() {
		if !seqs[g.seq] {
			continue
		}
		if s.cfg.BloomFilterEnabled && g.bloom != nil && !g.bloom.Test(traceID[:]) {
			s.groupsPrunedByBloom++
			continue
		}
		for _, sp := range g.spans {
			if sp.TraceID == traceID {
				out = append(out, sp)
			}
		}
		for _, seg := range g.segments {
			if seg.TraceID == traceID {
				out = append(out, decodeSegment(seg)...)
			}
		}
	}
	return out, nil
}

// QueryByTraceIDAndTime additionally prunes groups whose
// [StartMinNS, StartMaxNS] does not intersect [tLo, tHi). RLE Segment
// rows carry no genuine wall-clock range (see package rle) and are
// excluded from this query's results.
func (s *Store) QueryByTraceIDAndTime(traceID [16]byte, tLo, tHi int64) ([]*span.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs, err := s.candidateSeqsLocked(func(gs groupStats) bool {
		return gs.StartMinNS < tHi && gs.StartMaxNS >= tLo
	})
	if err != nil {
		return nil, err
	}
	var out []*span.Span
	for _, g := range s.allGroups() {
		if !seqs[g.seq] {
			continue
		}
		if s.cfg.BloomFilterEnabled && g.bloom != nil && !g.bloom.Test(traceID[:]) {
			s.groupsPrunedByBloom++
			continue
		}
		for _, sp := range g.spans {
			if sp.TraceID == traceID && sp.Start >= tLo && sp.Start < tHi {
				out = append(out, sp)
			}
		}
	}
	return out, nil
}

// QueryByProcessID prunes groups whose [ProcessIDLo, ProcessIDHi] range
// excludes processID.
func (s *Store) QueryByProcessID(processID uint32) ([]*span.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs, err := s.candidateSeqsLocked(func(gs groupStats) bool {
		return processID >= gs.ProcessIDLo && processID <= gs.ProcessIDHi
	})
	if err != nil {
		return nil, err
	}
	var out []*span.Span
	for _, g := range s.allGroups() {
		if !seqs[g.seq] {
			continue
		}
		for _, sp := range g.spans {
			if sp.ProcessID == processID {
				out = append(out, sp)
			}
		}
		for _, seg := range g.segments {
			if seg.ProcessID == processID {
				out = append(out, decodeSegment(seg)...)
			}
		}
	}
	return out, nil
}

// QueryErrors prunes groups whose stats record no error spans.
func (s *Store) QueryErrors() ([]*span.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs, err := s.candidateSeqsLocked(func(gs groupStats) bool { return gs.HasErrors })
	if err != nil {
		return nil, err
	}
	var out []*span.Span
	for _, g := range s.allGroups() {
		if !seqs[g.seq] {
			continue
		}
		for _, sp := range g.spans {
			if sp.Status == span.Error {
				out = append(out, sp)
			}
		}
	}
	return out, nil
}

// OptimizedQuery bundles every supported predicate; each supplied filter
// is converted to a row-group statistics check before any span is
// materialized, per spec §4.6's query_optimized.
type OptimizedQuery struct {
	TraceID   *[16]byte
	TLo, THi  *int64
	ProcessID *uint32
	ErrorsOnly bool
}

// QueryOptimized evaluates all supplied predicates together, pruning on
// the conjunction of their row-group statistics checks.
func (s *Store) QueryOptimized(q OptimizedQuery) ([]*span.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs, err := s.candidateSeqsLocked(func(gs groupStats) bool {
		if q.TLo != nil && q.THi != nil {
			if !(gs.StartMinNS < *q.THi && gs.StartMaxNS >= *q.TLo) {
				return false
			}
		}
		if q.ProcessID != nil {
			if !(*q.ProcessID >= gs.ProcessIDLo && *q.ProcessID <= gs.ProcessIDHi) {
				return false
			}
		}
		if q.ErrorsOnly && !gs.HasErrors {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	var out []*span.Span
	for _, g := range s.allGroups() {
		if !seqs[g.seq] {
			continue
		}
		if q.TraceID != nil && s.cfg.BloomFilterEnabled && g.bloom != nil && !g.bloom.Test(q.TraceID[:]) {
			s.groupsPrunedByBloom++
			continue
		}
		for _, sp := range g.spans {
			if q.TraceID != nil && sp.TraceID != *q.TraceID {
				continue
			}
			if q.TLo != nil && q.THi != nil && (sp.Start < *q.TLo || sp.Start >= *q.THi) {
				continue
			}
			if q.ProcessID != nil && sp.ProcessID != *q.ProcessID {
				continue
			}
			if q.ErrorsOnly && sp.Status != span.Error {
				continue
			}
			out = append(out, sp)
		}
		// Segment rows carry no wall-clock range or error status: only
		// usable when the query has no time bound and isn't errors-only.
		if q.TLo != nil || q.THi != nil || q.ErrorsOnly {
			continue
		}
		for _, seg := range g.segments {
			if q.TraceID != nil && seg.TraceID != *q.TraceID {
				continue
			}
			if q.ProcessID != nil && seg.ProcessID != *q.ProcessID {
				continue
			}
			out = append(out, decodeSegment(seg)...)
		}
	}
	return out, nil
}

// Stats reports storage accounting.
type Stats struct {
	SpanCount           uint64
	RowGroupCount       int
	FileSizeBytes       int64
	CompressionRatioEst float64
	// GroupsPrunedByBloom is the cumulative count of row groups a query
	// skipped on a negative Bloom filter test, across the Store's
	// lifetime (not reset per query).
	GroupsPrunedByBloom uint64
}

// Stats returns storage accounting; CompressionRatioEst compares the raw
// in-memory struct footprint against the msgp-encoded byte count
// actually written to the backing file.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		SpanCount:           s.total,
		RowGroupCount:       len(s.groups) + 1,
		GroupsPrunedByBloom: s.groupsPrunedByBloom,
	}
	if s.file != nil {
		info, err := s.file.Stat()
		if err != nil {
			return st, renacer.NewStorageError("store.Stats", "failed to stat backing file", err)
		}
		st.FileSizeBytes = info.Size()
	}
	const rawSpanSize = 200 // approximate in-memory footprint per span
	if st.FileSizeBytes > 0 && st.SpanCount > 0 {
		st.CompressionRatioEst = float64(st.SpanCount*rawSpanSize) / float64(st.FileSizeBytes)
	} else {
		st.CompressionRatioEst = 1.0
	}
	return st, nil
}
