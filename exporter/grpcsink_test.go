// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package exporter

import (
	"context"
	"testing"

	"github.com/renacer/renacer/internal/id"
	"github.com/renacer/renacer/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type fakeConn struct {
	invoked bool
	method  string
	args    interface{}
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, _ interface{}, _ ...grpc.CallOption) error {
	f.invoked = true
	f.method = method
	f.args = args
	return nil
}

func (f *fakeConn) NewStream(_ context.Context, _ *grpc.StreamDesc, _ string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, nil
}

func TestGRPCSinkInvokesConfiguredMethod(t *testing.T) {
	conn := &fakeConn{}
	sink := NewGRPCSink(conn)

	trace := id.NewTraceID()
	s := mkSpan(t, trace, "read", 0, 1)
	require.NoError(t, sink.ExportSpans(context.Background(), []*span.Span{s}))

	assert.True(t, conn.invoked)
	assert.Equal(t, OTLPExportMethod, conn.method)
}

func TestGRPCSinkCustomMethodOverride(t *testing.T) {
	conn := &fakeConn{}
	sink := &GRPCSink{Conn: conn, Method: "/custom/Export"}

	trace := id.NewTraceID()
	s := mkSpan(t, trace, "write", 0, 1)
	require.NoError(t, sink.ExportSpans(context.Background(), []*span.Span{s}))

	assert.Equal(t, "/custom/Export", conn.method)
}
