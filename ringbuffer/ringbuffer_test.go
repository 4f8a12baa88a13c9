// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package ringbuffer

import (
	"sync"
	"testing"
	"time"

	"github.com/renacer/renacer/internal/id"
	"github.com/renacer/renacer/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func mkSpan(t *testing.T, name string) *span.Span {
	t.Helper()
	s, err := span.New(span.Params{
		TraceID: id.NewTraceID(),
		SpanID:  id.NewSpanID(),
		Name:    name,
		Start:   1,
		End:     2,
	})
	require.NoError(t, err)
	return s
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestBackpressure reproduces spec §8 scenario 3: capacity 2, producer
// pushes 10 spans while the sidecar makes no progress (its drain
// function blocks). Expected: pushed == 10, dropped >= 8, current_size
// <= 2.
func TestBackpressure(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	b := New(2, func(batch []*span.Span) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	}, Options{})

	var pushed, dropped int
	for i := 0; i < 10; i++ {
		if b.Push(mkSpan(t, "poll")) {
			dropped++
		} else {
			pushed++
		}
	}
	close(block)
	b.Stop()

	stats := b.Stats()
	assert.Equal(t, uint64(10), stats.Pushed)
	assert.GreaterOrEqual(t, int(stats.Dropped), 8)
	assert.LessOrEqual(t, stats.CurrentSize, uint64(2))
}

// TestNoSpanObservedTwiceAndAccounting exercises many producers and
// verifies pushed = drained + dropped + in_flight at the end.
func TestNoSpanObservedTwiceAndAccounting(t *testing.T) {
	var mu sync.Mutex
	seen := map[uint64]int{}
	var drained int

	b := New(1024, func(batch []*span.Span) {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range batch {
			seen[s.SpanID]++
			drained++
		}
	}, Options{BatchSize: 50, Sleep: time.Millisecond})

	var wg sync.WaitGroup
	producers := 8
	perProducer := 500
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Push(mkSpan(t, "read"))
			}
		}()
	}
	wg.Wait()
	b.Stop()

	for id, count := range seen {
		assert.Equal(t, 1, count, "span %d observed more than once", id)
	}

	stats := b.Stats()
	assert.Equal(t, stats.Pushed, uint64(drained)+stats.Dropped)
}

func TestSidecarStateMachine(t *testing.T) {
	b := New(16, func(batch []*span.Span) {}, Options{Sleep: time.Millisecond})
	assert.Equal(t, Running, b.State())
	b.Stop()
	assert.Equal(t, Stopped, b.State())
}

func TestStopIsIdempotent(t *testing.T) {
	b := New(16, func(batch []*span.Span) {}, Options{})
	b.Stop()
	b.Stop() // must not panic or deadlock
}

func TestCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	b := New(10, func(batch []*span.Span) {}, Options{})
	defer b.Stop()
	assert.Equal(t, uint64(16), b.Stats().Capacity)
}
