// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package exporter

import (
	"context"
	"fmt"

	"github.com/renacer/renacer/span"
	"google.golang.org/grpc"
)

// OTLPExportMethod is the gRPC method Renacer invokes on a configured
// collector. It mirrors the path shape of OpenTelemetry's collector
// trace service, which this module treats as an external collaborator
// per spec.md's non-goals: Renacer never generates or depends on the
// OTLP protobuf stubs, so the request/reply types below are msgp-coded
// span batches rather than opentelemetry-proto messages. A deployment
// wiring this sink to a real OTLP collector supplies a ClientConnInterface
// configured with a codec that speaks the collector's actual wire
// format; GRPCSink only owns the batching and the Invoke call shape.
const OTLPExportMethod = "/opentelemetry.proto.collector.trace.v1.TraceService/Export"

// GRPCSink adapts a grpc.ClientConnInterface into a Sink, the thin
// adapter spec.md's domain stack calls for — it does no protobuf wire
// encoding itself (out of scope), only message batching and the
// Invoke call.
type GRPCSink struct {
	Conn   grpc.ClientConnInterface
	Method string
}

// NewGRPCSink returns a GRPCSink invoking OTLPExportMethod on conn.
func NewGRPCSink(conn grpc.ClientConnInterface) *GRPCSink {
	return &GRPCSink{Conn: conn, Method: OTLPExportMethod}
}

// ExportSpans msgp-encodes spans as a single batch and invokes the
// configured gRPC method, satisfying the Sink interface.
func (g *GRPCSink) ExportSpans(ctx context.Context, spans []*span.Span) error {
	payload, err := encodeBatch(spans)
	if err != nil {
		return fmt.Errorf("exporter: encode span batch: %w", err)
	}
	var ack []byte
	method := g.Method
	if method == "" {
		method = OTLPExportMethod
	}
	return g.Conn.Invoke(ctx, method, payload, &ack)
}

func encodeBatch(spans []*span.Span) ([]byte, error) {
	var buf []byte
	var err error
	for _, s := range spans {
		buf, err = s.MarshalMsg(buf)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}
