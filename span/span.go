// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package span implements the canonical in-memory Span Record (C3): the
// atomic unit spans, traces, and every analyzer in this module operate
// on. Spans are exclusively owned by the producing thread until handed
// to the ring buffer (see package ringbuffer), at which point ownership
// transfers by move, not by shared reference counting.
package span

import (
	"sync"
	"time"

	"github.com/renacer/renacer/internal/id"
)

// Kind classifies the role a span plays, mirroring OpenTelemetry's span
// kinds since the exporter (C15) ultimately speaks OTLP.
type Kind int

const (
	Internal Kind = iota
	Server
	Client
	Producer
	Consumer
)

// Status is the three-valued outcome spec §3 requires.
type Status int

const (
	Unset Status = iota
	Ok
	Error
)

// ErrorReason enumerates the constructor failure modes named in spec §4.3.
type ErrorReason int

const (
	InvalidTimeRange ErrorReason = iota
	ZeroIdentifier
)

// ConstructError reports why New rejected a span.
type ConstructError struct {
	Reason ErrorReason
}

func (e *ConstructError) Error() string {
	switch e.Reason {
	case InvalidTimeRange:
		return "span: end time before start time"
	case ZeroIdentifier:
		return "span: trace id and span id must be non-zero"
	default:
		return "span: invalid"
	}
}

// attr is one ordered key/value pair. Spans keep attributes in a small
// ordered slice rather than a map: attribute sets are typically bounded
// (a handful of syscall args, a couple of resource tags), so a linear
// scan beats map overhead and preserves the "insertion order of the most
// recent write" semantics spec §4.3 requires without extra bookkeeping.
type attr struct {
	Key   string
	Value string
}

// AttrSet is an ordered, append-on-new-key/update-in-place collection of
// string attributes.
type AttrSet []attr

// Set inserts key=value, or updates value in place if key is already
// present (preserving its existing position, per spec's "most recent
// write" ordering rule — we interpret that as: the position is fixed at
// first insertion, the value reflects the latest write).
func (a *AttrSet) Set(key, value string) {
	for i := range *a {
		if (*a)[i].Key == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, attr{Key: key, Value: value})
}

// Get returns the value for key and whether it was present.
func (a AttrSet) Get(key string) (string, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Len returns the number of attributes.
func (a AttrSet) Len() int { return len(a) }

// Each calls fn for every attribute in insertion order.
func (a AttrSet) Each(fn func(key, value string)) {
	for _, kv := range a {
		fn(kv.Key, kv.Value)
	}
}

// reset clears the set while keeping the backing array, so a pooled
// span's attribute slice can be reused without reallocating.
func (a *AttrSet) reset() { *a = (*a)[:0] }

// Span is the canonical in-memory span record.
type Span struct {
	TraceID      id.TraceID
	SpanID       uint64
	ParentSpanID uint64 // 0 means root (no parent)
	Name         string
	Kind         Kind
	Start        int64 // nanoseconds since epoch
	End          int64 // nanoseconds since epoch
	LogicalClock uint64
	Status       Status
	StatusMsg    string
	Attributes   AttrSet
	Resource     AttrSet // process-scope resource attributes
	ProcessID    uint32
	ThreadID     uint32
}

// Params carries the fields New validates before constructing a Span.
type Params struct {
	TraceID      id.TraceID
	SpanID       uint64
	ParentSpanID uint64
	Name         string
	Kind         Kind
	Start        int64
	End          int64
	LogicalClock uint64
	ProcessID    uint32
	ThreadID     uint32
}

// New constructs a Span, enforcing spec §3's invariants: end >= start,
// and both trace-id and span-id must be non-zero.
func New(p Params) (*Span, error) {
	if p.End < p.Start {
		return nil, &ConstructError{Reason: InvalidTimeRange}
	}
	if p.TraceID.IsZero() || p.SpanID == 0 {
		return nil, &ConstructError{Reason: ZeroIdentifier}
	}
	s := acquire()
	s.TraceID = p.TraceID
	s.SpanID = p.SpanID
	s.ParentSpanID = p.ParentSpanID
	s.Name = p.Name
	s.Kind = p.Kind
	s.Start = p.Start
	s.End = p.End
	s.LogicalClock = p.LogicalClock
	s.ProcessID = p.ProcessID
	s.ThreadID = p.ThreadID
	return s, nil
}

// IsRoot reports whether this span has no parent.
func (s *Span) IsRoot() bool { return s.ParentSpanID == 0 }

// Duration returns the span's wall-clock duration.
func (s *Span) Duration() time.Duration {
	return time.Duration(s.End - s.Start)
}

// SetStatus sets the span's status and, for Error, an associated message.
func (s *Span) SetStatus(st Status, message string) {
	s.Status = st
	s.StatusMsg = message
}

// pool backs New (via acquire) and Release so the hot path (spec §9: "cross-thread
// ownership transfer is a move operation") can reuse span allocations
// instead of paying for one per syscall.
var pool = sync.Pool{
	New: func() interface{} { return &Span{} },
}

func acquire() *Span {
	return pool.Get().(*Span)
}

// Release returns a span to the pool after it has been durably handed
// off (e.g. the exporter has persisted or discarded it). Callers must
// not touch s after calling Release.
func Release(s *Span) {
	if s == nil {
		return
	}
	*s = Span{
		Attributes: s.Attributes,
		Resource:   s.Resource,
	}
	s.Attributes.reset()
	s.Resource.reset()
	pool.Put(s)
}

// Clone returns a deep-enough copy of s that is safe to retain
// independently (e.g. across a ring-buffer handoff boundary during
// tests). Cloning is cheap-by-intent, not zero-copy by contract.
func (s *Span) Clone() *Span {
	c := &Span{}
	*c = *s
	c.Attributes = append(AttrSet(nil), s.Attributes...)
	c.Resource = append(AttrSet(nil), s.Resource...)
	return c
}
