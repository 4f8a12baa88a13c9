// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package graph

import (
	"testing"

	"github.com/renacer/renacer/internal/id"
	"github.com/renacer/renacer/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkSpan(t *testing.T, trace id.TraceID, spanID, parentID uint64, name string) *span.Span {
	t.Helper()
	s, err := span.New(span.Params{
		TraceID:      trace,
		SpanID:       spanID,
		ParentSpanID: parentID,
		Name:         name,
		Start:        0,
		End:          1,
	})
	require.NoError(t, err)
	return s
}

func TestFromSpansBuildsTree(t *testing.T) {
	trace := id.NewTraceID()
	spans := []*span.Span{
		mkSpan(t, trace, 1, 0, "root"),
		mkSpan(t, trace, 2, 1, "child-a"),
		mkSpan(t, trace, 3, 1, "child-b"),
		mkSpan(t, trace, 4, 2, "grandchild"),
	}
	g := FromSpans(spans)

	assert.True(t, g.IsDAG())
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())
	require.Len(t, g.Roots(), 1)
	assert.Equal(t, 0, g.Roots()[0])
	assert.ElementsMatch(t, []int{1, 2}, g.Children(0))
	assert.Equal(t, 0, g.Parent(1))
	assert.Equal(t, -1, g.Parent(0))
}

func TestDanglingParentBecomesRoot(t *testing.T) {
	trace := id.NewTraceID()
	spans := []*span.Span{
		mkSpan(t, trace, 1, 999, "orphan"),
	}
	g := FromSpans(spans)
	assert.True(t, g.IsDAG())
	assert.Len(t, g.Roots(), 1)
}

func TestSelfReferenceBecomesRoot(t *testing.T) {
	trace := id.NewTraceID()
	spans := []*span.Span{
		mkSpan(t, trace, 1, 1, "self"),
	}
	g := FromSpans(spans)
	assert.True(t, g.IsDAG())
	assert.Equal(t, -1, g.Parent(0))
}

func TestGetNodeBySpanID(t *testing.T) {
	trace := id.NewTraceID()
	spans := []*span.Span{
		mkSpan(t, trace, 1, 0, "root"),
		mkSpan(t, trace, 2, 1, "child"),
	}
	g := FromSpans(spans)
	n, ok := g.GetNodeBySpanID(2)
	require.True(t, ok)
	assert.Equal(t, "child", g.GetSpan(n).Name)

	_, ok = g.GetNodeBySpanID(999)
	assert.False(t, ok)
}

func TestCycleDetected(t *testing.T) {
	// Two spans whose parent ids reference each other: FromSpans
	// resolves both parent links via bySpanID once both spans are in
	// the slice, which yields a two-node cycle.
	trace := id.NewTraceID()
	spans := []*span.Span{
		mkSpan(t, trace, 1, 2, "a"),
		mkSpan(t, trace, 2, 1, "b"),
	}
	g := FromSpans(spans)
	assert.False(t, g.IsDAG())
}

func TestMultipleRoots(t *testing.T) {
	trace := id.NewTraceID()
	spans := []*span.Span{
		mkSpan(t, trace, 1, 0, "root-a"),
		mkSpan(t, trace, 2, 0, "root-b"),
	}
	g := FromSpans(spans)
	assert.Len(t, g.Roots(), 2)
}
