// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package ringbuffer implements the lock-free MPSC span queue (C4) that
// decouples the traced application's hot path from the exporter's I/O.
// The queue itself is a bounded array implementing Dmitry Vyukov's
// single-producer/single-consumer-safe-for-multi-producer algorithm: no
// locks, a per-slot sequence number arbitrates producers via CAS, and
// the single consumer (the sidecar) never contends with them on the
// fast path.
package ringbuffer

import (
	"runtime"
	"sync"
	"time"

	"github.com/renacer/renacer/internal/log"
	"github.com/renacer/renacer/span"
	"go.uber.org/atomic"
)

// Defaults from spec §4.4.
const (
	DefaultBatchSize = 100
	DefaultSleep     = 10 * time.Millisecond
)

type cell struct {
	sequence atomic.Uint64
	data     *span.Span
}

// State is the sidecar's lifecycle, per spec §4.4: Running -> Draining
// -> Stopped, Stopped terminal.
type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	default:
		return "Stopped"
	}
}

// Drain is called by the sidecar with up to BatchSize spans at a time.
// Implementations (typically an Exporter) must not block indefinitely;
// the ring buffer's own non-blocking guarantee only covers push, not
// drain, but a slow drain only delays the next poll, never a producer.
type Drain func(batch []*span.Span)

// Options configures a Buffer's sidecar behavior.
type Options struct {
	BatchSize int
	Sleep     time.Duration
}

// Buffer is a bounded, lock-free, multi-producer/single-consumer queue
// of spans with a dedicated consumer goroutine ("sidecar") started at
// construction.
type Buffer struct {
	mask    uint64
	buf     []cell
	enqPos  atomic.Uint64
	deqPos  atomic.Uint64
	pushed  atomic.Uint64
	dropped atomic.Uint64

	drain Drain
	opts  Options

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Buffer of the given capacity (rounded up to the next
// power of two) and immediately starts its sidecar goroutine, which
// drains into fn.
func New(capacity int, fn Drain, opts Options) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	capacity = nextPowerOfTwo(capacity)
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Sleep <= 0 {
		opts.Sleep = DefaultSleep
	}
	b := &Buffer{
		mask:   uint64(capacity - 1),
		buf:    make([]cell, capacity),
		drain:  fn,
		opts:   opts,
		stopCh: make(chan struct{}),
	}
	for i := range b.buf {
		b.buf[i].sequence.Store(uint64(i))
	}
	b.wg.Add(1)
	go b.sidecar()
	return b
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push enqueues span s. It never blocks: if the buffer is full, the
// span is dropped, the drop counter is incremented, and a rate-limited
// warning is logged. The caller retains ownership of s only for
// inspecting the returned bool; on success, ownership transfers to the
// buffer (the caller must not mutate s afterwards).
func (b *Buffer) Push(s *span.Span) (dropped bool) {
	b.pushed.Inc()
	pos := b.enqPos.Load()
	for {
		c := &b.buf[pos&b.mask]
		seq := c.sequence.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if b.enqPos.CAS(pos, pos+1) {
				c.data = s
				c.sequence.Store(pos + 1)
				return false
			}
		case diff < 0:
			b.dropped.Inc()
			log.Warn("renacer: ring buffer full, dropping span %s", s.Name)
			return true
		default:
			pos = b.enqPos.Load()
		}
	}
}

// pop removes and returns the oldest span, or (nil, false) if empty.
// Single-consumer only: calling pop from more than one goroutine at a
// time is not safe and is never done outside the sidecar.
func (b *Buffer) pop() (*span.Span, bool) {
	pos := b.deqPos.Load()
	for {
		c := &b.buf[pos&b.mask]
		seq := c.sequence.Load()
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if b.deqPos.CAS(pos, pos+1) {
				v := c.data
				c.data = nil
				c.sequence.Store(pos + b.mask + 1)
				return v, true
			}
		case diff < 0:
			return nil, false
		default:
			pos = b.deqPos.Load()
		}
	}
}

// sidecar is the dedicated consumer loop described in spec §4.4. It
// locks its goroutine to an OS thread so its poll/sleep cadence is not
// at the mercy of the Go scheduler moving it between producer-heavy Ps.
func (b *Buffer) sidecar() {
	defer b.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	batch := make([]*span.Span, 0, b.opts.BatchSize)
	for {
		batch = batch[:0]
		for len(batch) < b.opts.BatchSize {
			s, ok := b.pop()
			if !ok {
				break
			}
			batch = append(batch, s)
		}
		if len(batch) > 0 {
			b.drain(batch)
		}

		select {
		case <-b.stopCh:
			b.state.Store(int32(Draining))
			b.drainRemaining()
			b.state.Store(int32(Stopped))
			return
		default:
		}
		if len(batch) == 0 {
			time.Sleep(b.opts.Sleep)
		}
	}
}

func (b *Buffer) drainRemaining() {
	batch := make([]*span.Span, 0, b.opts.BatchSize)
	for {
		batch = batch[:0]
		for len(batch) < b.opts.BatchSize {
			s, ok := b.pop()
			if !ok {
				break
			}
			batch = append(batch, s)
		}
		if len(batch) == 0 {
			return
		}
		b.drain(batch)
	}
}

// Stop signals the sidecar to drain remaining spans and exit, then
// blocks until it has done so. Safe to call more than once.
func (b *Buffer) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// State reports the sidecar's current lifecycle state.
func (b *Buffer) State() State { return State(b.state.Load()) }

// Stats is a snapshot of the buffer's counters.
type Stats struct {
	Pushed      uint64
	Dropped     uint64
	CurrentSize uint64
	Capacity    uint64
	DropRate    float64
	Utilization float64
}

// Stats returns a point-in-time snapshot. pushed = drained + dropped +
// in_flight holds across any two snapshots in this same goroutine;
// across goroutines it holds up to the usual memory-ordering caveats of
// reading three independent atomics.
func (b *Buffer) Stats() Stats {
	pushed := b.pushed.Load()
	dropped := b.dropped.Load()
	enq := b.enqPos.Load()
	deq := b.deqPos.Load()
	size := enq - deq
	cap := b.mask + 1
	st := Stats{
		Pushed:      pushed,
		Dropped:     dropped,
		CurrentSize: size,
		Capacity:    cap,
		Utilization: float64(size) / float64(cap),
	}
	if pushed > 0 {
		st.DropRate = float64(dropped) / float64(pushed)
	}
	return st
}
