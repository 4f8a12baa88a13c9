// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package span

import (
	"testing"

	"github.com/renacer/renacer/internal/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		TraceID: id.NewTraceID(),
		SpanID:  id.NewSpanID(),
		Name:    "read",
		Kind:    Internal,
		Start:   1000,
		End:     2000,
	}
}

func TestNewValidatesTimeRange(t *testing.T) {
	p := validParams()
	p.Start, p.End = 2000, 1000
	_, err := New(p)
	require.Error(t, err)
	ce, ok := err.(*ConstructError)
	require.True(t, ok)
	assert.Equal(t, InvalidTimeRange, ce.Reason)
}

func TestNewValidatesZeroIdentifiers(t *testing.T) {
	p := validParams()
	p.SpanID = 0
	_, err := New(p)
	require.Error(t, err)
	ce, ok := err.(*ConstructError)
	require.True(t, ok)
	assert.Equal(t, ZeroIdentifier, ce.Reason)

	p2 := validParams()
	p2.TraceID = id.TraceID{}
	_, err = New(p2)
	require.Error(t, err)
}

func TestIsRootAndDuration(t *testing.T) {
	s, err := New(validParams())
	require.NoError(t, err)
	assert.True(t, s.IsRoot())
	assert.Equal(t, int64(1000), int64(s.Duration()))

	s.ParentSpanID = 7
	assert.False(t, s.IsRoot())
}

func TestAttrSetOrderingAndOverwrite(t *testing.T) {
	var a AttrSet
	a.Set("fd", "3")
	a.Set("path", "/etc/hosts")
	a.Set("fd", "4") // overwrite, keeps position

	assert.Equal(t, 2, a.Len())
	v, ok := a.Get("fd")
	require.True(t, ok)
	assert.Equal(t, "4", v)

	var keys []string
	a.Each(func(k, v string) { keys = append(keys, k) })
	assert.Equal(t, []string{"fd", "path"}, keys)
}

func TestReleaseAndReuse(t *testing.T) {
	s, err := New(validParams())
	require.NoError(t, err)
	s.Attributes.Set("a", "b")
	Release(s)

	s2, err := New(validParams())
	require.NoError(t, err)
	assert.Equal(t, 0, s2.Attributes.Len(), "released span's attributes must not leak into a fresh one")
}

func TestMsgpRoundTrip(t *testing.T) {
	s, err := New(validParams())
	require.NoError(t, err)
	s.Attributes.Set("syscall.fd", "3")
	s.Resource.Set("service.name", "renacer-demo")
	s.SetStatus(Error, "EAGAIN")

	buf, err := s.MarshalMsg(nil)
	require.NoError(t, err)

	var out Span
	rest, err := out.UnmarshalMsg(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)

	assert.Equal(t, s.TraceID, out.TraceID)
	assert.Equal(t, s.SpanID, out.SpanID)
	assert.Equal(t, s.Name, out.Name)
	assert.Equal(t, s.Start, out.Start)
	assert.Equal(t, s.End, out.End)
	assert.Equal(t, s.Status, out.Status)
	assert.Equal(t, s.StatusMsg, out.StatusMsg)
	v, ok := out.Attributes.Get("syscall.fd")
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestCloneIndependence(t *testing.T) {
	s, err := New(validParams())
	require.NoError(t, err)
	s.Attributes.Set("k", "v1")

	c := s.Clone()
	c.Attributes.Set("k", "v2")

	v, _ := s.Attributes.Get("k")
	assert.Equal(t, "v1", v)
	v, _ = c.Attributes.Get("k")
	assert.Equal(t, "v2", v)
}
