// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package span

import (
	"github.com/tinylib/msgp/msgp"
)

// This file hand-implements the msgp.Marshaler/Unmarshaler contract the
// teacher generates with `go:generate msgp` for its own span type. Spans
// are encoded as a fixed-field array (not a map) to keep the encoding
// compact for the remote sink (exporter.GRPCSink) and the store's
// backing file.

var (
	_ msgp.Marshaler   = (*Span)(nil)
	_ msgp.Unmarshaler = (*Span)(nil)
)

const spanFieldCount = 14

// MarshalMsg appends the msgpack encoding of s to b.
func (s *Span) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, spanFieldCount)
	o = msgp.AppendBytes(o, s.TraceID[:])
	o = msgp.AppendUint64(o, s.SpanID)
	o = msgp.AppendUint64(o, s.ParentSpanID)
	o = msgp.AppendString(o, s.Name)
	o = msgp.AppendInt(o, int(s.Kind))
	o = msgp.AppendInt64(o, s.Start)
	o = msgp.AppendInt64(o, s.End)
	o = msgp.AppendUint64(o, s.LogicalClock)
	o = msgp.AppendInt(o, int(s.Status))
	o = msgp.AppendString(o, s.StatusMsg)
	o = appendAttrSet(o, s.Attributes)
	o = appendAttrSet(o, s.Resource)
	o = msgp.AppendUint32(o, s.ProcessID)
	o = msgp.AppendUint32(o, s.ThreadID)
	return o, nil
}

// UnmarshalMsg decodes a Span from the msgpack encoding in b, returning
// unconsumed bytes.
func (s *Span) UnmarshalMsg(b []byte) ([]byte, error) {
	n, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if n != spanFieldCount {
		return b, msgp.ArrayError{Wanted: spanFieldCount, Got: n}
	}
	var tid []byte
	tid, o, err = msgp.ReadBytesBytes(o, nil)
	if err != nil {
		return b, err
	}
	copy(s.TraceID[:], tid)

	if s.SpanID, o, err = msgp.ReadUint64Bytes(o); err != nil {
		return b, err
	}
	if s.ParentSpanID, o, err = msgp.ReadUint64Bytes(o); err != nil {
		return b, err
	}
	if s.Name, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, err
	}
	var kind int
	if kind, o, err = msgp.ReadIntBytes(o); err != nil {
		return b, err
	}
	s.Kind = Kind(kind)
	if s.Start, o, err = msgp.ReadInt64Bytes(o); err != nil {
		return b, err
	}
	if s.End, o, err = msgp.ReadInt64Bytes(o); err != nil {
		return b, err
	}
	if s.LogicalClock, o, err = msgp.ReadUint64Bytes(o); err != nil {
		return b, err
	}
	var status int
	if status, o, err = msgp.ReadIntBytes(o); err != nil {
		return b, err
	}
	s.Status = Status(status)
	if s.StatusMsg, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, err
	}
	if s.Attributes, o, err = readAttrSet(o); err != nil {
		return b, err
	}
	if s.Resource, o, err = readAttrSet(o); err != nil {
		return b, err
	}
	if s.ProcessID, o, err = msgp.ReadUint32Bytes(o); err != nil {
		return b, err
	}
	if s.ThreadID, o, err = msgp.ReadUint32Bytes(o); err != nil {
		return b, err
	}
	return o, nil
}

// Msgsize estimates the encoded size of s in bytes.
func (s *Span) Msgsize() int {
	size := 1 + 16 + 9 + 9 + len(s.Name) + 1 + 9 + 9 + 9 + 1 + len(s.StatusMsg) + 5 + 5
	for _, a := range s.Attributes {
		size += len(a.Key) + len(a.Value) + 10
	}
	for _, a := range s.Resource {
		size += len(a.Key) + len(a.Value) + 10
	}
	return size
}

func appendAttrSet(b []byte, a AttrSet) []byte {
	o := msgp.AppendMapHeader(b, uint32(len(a)))
	for _, kv := range a {
		o = msgp.AppendString(o, kv.Key)
		o = msgp.AppendString(o, kv.Value)
	}
	return o
}

func readAttrSet(b []byte) (AttrSet, []byte, error) {
	n, o, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	set := make(AttrSet, 0, n)
	for i := uint32(0); i < n; i++ {
		var k, v string
		if k, o, err = msgp.ReadStringBytes(o); err != nil {
			return nil, b, err
		}
		if v, o, err = msgp.ReadStringBytes(o); err != nil {
			return nil, b, err
		}
		set = append(set, attr{Key: k, Value: v})
	}
	return set, o, nil
}
