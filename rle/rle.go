// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package rle implements run-length encoding of tight syscall loops
// (C7): the mechanism that gives Renacer its 10^2-10^5x storage
// reduction on hot loops like poll/futex spins. Decoding is an
// approximation by design — see spec §9 — it fabricates synthetic
// spans with a uniform duration, preserving count, total time, and
// ordering, never per-span outliers.
package rle

import (
	"github.com/renacer/renacer/internal/id"
	"github.com/renacer/renacer/span"
)

// DefaultMinRunLength is the run length below which spans pass through
// uncompressed.
const DefaultMinRunLength = 1000

// Segment summarizes a run of >= MinRunLength consecutive spans sharing
// (name, process-id, thread-id, trace-id).
type Segment struct {
	Name              string
	ProcessID         uint32
	ThreadID          uint32
	TraceID           id.TraceID
	Count             int
	TotalDurationNS   int64
	MinDurationNS     int64
	AvgDurationNS     int64
	MaxDurationNS     int64
	StartLogicalClock uint64
}

// Block is one unit of an encoded stream: either a run-length Segment
// or a single pass-through span, never both.
type Block struct {
	Segment *Segment
	Span    *span.Span
}

// Encoded is an ordered sequence of Blocks; order matches the original
// span sequence's order.
type Encoded struct {
	Blocks []Block
}

type runKey struct {
	name string
	pid  uint32
	tid  uint32
	tid2 id.TraceID
}

func keyOf(s *span.Span) runKey {
	return runKey{name: s.Name, pid: s.ProcessID, tid: s.ThreadID, tid2: s.TraceID}
}

// Compress scans spans in order and greedily collects maximal runs of
// spans sharing (name, process-id, thread-id, trace-id). Runs of length
// >= minRunLength become a single Segment; shorter runs pass through as
// individual Blocks, each wrapping one original span.
func Compress(spans []*span.Span, minRunLength int) Encoded {
	if minRunLength <= 0 {
		minRunLength = DefaultMinRunLength
	}
	var out Encoded
	i := 0
	for i < len(spans) {
		j := i + 1
		k := keyOf(spans[i])
		for j < len(spans) && keyOf(spans[j]) == k {
			j++
		}
		run := spans[i:j]
		if len(run) >= minRunLength {
			out.Blocks = append(out.Blocks, Block{Segment: summarize(run)})
		} else {
			for _, s := range run {
				out.Blocks = append(out.Blocks, Block{Span: s})
			}
		}
		i = j
	}
	return out
}

func summarize(run []*span.Span) *Segment {
	first := run[0]
	seg := &Segment{
		Name:              first.Name,
		ProcessID:         first.ProcessID,
		ThreadID:          first.ThreadID,
		TraceID:           first.TraceID,
		Count:             len(run),
		StartLogicalClock: first.LogicalClock,
	}
	var total int64
	minD, maxD := int64(1<<62), int64(-1)
	for _, s := range run {
		d := int64(s.Duration())
		total += d
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	seg.TotalDurationNS = total
	seg.MinDurationNS = minD
	seg.MaxDurationNS = maxD
	seg.AvgDurationNS = total / int64(len(run))
	return seg
}

// Decode fabricates the original-count span sequence from an Encoded
// stream. For each Segment it produces Count synthetic spans with a
// uniform duration equal to the segment's average and sequential
// logical clocks starting at StartLogicalClock — an approximation;
// callers that need per-span outliers must consult Min/MaxDurationNS
// on the Segment instead.
func Decode(e Encoded) []*span.Span {
	var out []*span.Span
	for _, b := range e.Blocks {
		if b.Segment != nil {
			seg := b.Segment
			for i := 0; i < seg.Count; i++ {
				start := int64(0)
				s, _ := span.New(span.Params{
					TraceID:      seg.TraceID,
					SpanID:       id.NewSpanID(),
					Name:         seg.Name,
					Start:        start,
					End:          start + seg.AvgDurationNS,
					LogicalClock: seg.StartLogicalClock + uint64(i),
					ProcessID:    seg.ProcessID,
					ThreadID:     seg.ThreadID,
				})
				out = append(out, s)
			}
		} else {
			out = append(out, b.Span)
		}
	}
	return out
}

// TotalSpanCount returns the number of original spans an Encoded stream
// represents, i.e. |S| before compression.
func TotalSpanCount(e Encoded) int {
	n := 0
	for _, b := range e.Blocks {
		if b.Segment != nil {
			n += b.Segment.Count
		} else {
			n++
		}
	}
	return n
}

// TotalDurationNS returns the sum of durations represented by an
// Encoded stream, preserved exactly through compression (unlike
// per-span durations, which are only preserved when a run stays
// uncompressed).
func TotalDurationNS(e Encoded) int64 {
	var total int64
	for _, b := range e.Blocks {
		if b.Segment != nil {
			total += b.Segment.TotalDurationNS
		} else {
			total += int64(b.Span.Duration())
		}
	}
	return total
}

// CompressionRatio is original_count / (segment_count + uncompressed_count).
// Empty input yields 1.0 by convention.
func CompressionRatio(e Encoded) float64 {
	if len(e.Blocks) == 0 {
		return 1.0
	}
	original := TotalSpanCount(e)
	return float64(original) / float64(len(e.Blocks))
}

// StorageSavingsPercent expresses the same reduction as a percentage,
// e.g. a 1000x ratio is 99.9% savings.
func StorageSavingsPercent(e Encoded) float64 {
	ratio := CompressionRatio(e)
	if ratio <= 0 {
		return 0
	}
	return (1 - 1/ratio) * 100
}
