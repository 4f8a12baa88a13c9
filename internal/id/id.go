// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package id generates trace and span identifiers. Trace ids are the
// 128-bit identifiers the W3C traceparent format carries; span ids are
// 64-bit and must be non-zero within the process lifetime.
package id

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// TraceID is a 128-bit trace identifier.
type TraceID [16]byte

// IsZero reports whether the trace id is the all-zero value, which is
// invalid per spec (AllZeroTraceId).
func (t TraceID) IsZero() bool {
	for _, b := range t {
		if b != 0 {
			return false
		}
	}
	return true
}

// NewTraceID generates a new random, non-zero trace id.
func NewTraceID() TraceID {
	for {
		u := uuid.New()
		var t TraceID
		copy(t[:], u[:])
		if !t.IsZero() {
			return t
		}
	}
}

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(rand.Int63()))
)

// NewSpanID generates a new random, non-zero 64-bit span id. Uses a
// process-local math/rand source guarded by a mutex: span-id generation
// happens once per span on the hot path and does not need the
// stronger guarantees (or syscall cost) of crypto/rand.
func NewSpanID() uint64 {
	mu.Lock()
	defer mu.Unlock()
	for {
		if v := rng.Uint64(); v != 0 {
			return v
		}
	}
}
