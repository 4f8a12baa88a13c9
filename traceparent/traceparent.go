// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package traceparent parses and emits the W3C traceparent header (C2):
// "00-<32 hex trace-id>-<16 hex parent-id>-<2 hex flags>". It carries no
// logical-clock state itself; that travels separately via the
// RENACER_LOGICAL_CLOCK environment variable (see package clock).
package traceparent

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Version is the only traceparent version this package emits or accepts.
const Version = "00"

// FlagSampled is set in the trace-flags byte when the trace is sampled.
const FlagSampled byte = 0x01

// ErrorReason enumerates the parse failure modes named in spec §4.2.
type ErrorReason int

const (
	InvalidFormat ErrorReason = iota
	InvalidVersion
	InvalidTraceID
	InvalidParentID
	InvalidTraceFlags
	AllZeroTraceID
	AllZeroParentID
)

func (r ErrorReason) String() string {
	switch r {
	case InvalidFormat:
		return "InvalidFormat"
	case InvalidVersion:
		return "InvalidVersion"
	case InvalidTraceID:
		return "InvalidTraceId"
	case InvalidParentID:
		return "InvalidParentId"
	case InvalidTraceFlags:
		return "InvalidTraceFlags"
	case AllZeroTraceID:
		return "AllZeroTraceId"
	case AllZeroParentID:
		return "AllZeroParentId"
	default:
		return "Unknown"
	}
}

// ParseError reports why a traceparent string failed to parse.
type ParseError struct {
	Reason ErrorReason
	Input  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("traceparent: %s: %q", e.Reason, e.Input)
}

// Context is a parsed W3C traceparent.
type Context struct {
	TraceID  [16]byte
	ParentID [8]byte
	Flags    byte
}

// IsSampled reports whether the sampled bit is set in the trace flags.
func (c Context) IsSampled() bool {
	return c.Flags&FlagSampled != 0
}

// String renders the canonical "00-<trace-id>-<parent-id>-<flags>" form.
func (c Context) String() string {
	return fmt.Sprintf("%s-%s-%s-%02x", Version, hex.EncodeToString(c.TraceID[:]), hex.EncodeToString(c.ParentID[:]), c.Flags)
}

// Parse parses a W3C traceparent header value.
func Parse(s string) (Context, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return Context{}, &ParseError{Reason: InvalidFormat, Input: s}
	}
	version, traceHex, parentHex, flagsHex := parts[0], parts[1], parts[2], parts[3]

	if version != Version {
		return Context{}, &ParseError{Reason: InvalidVersion, Input: s}
	}
	if len(traceHex) != 32 {
		return Context{}, &ParseError{Reason: InvalidTraceID, Input: s}
	}
	traceBytes, err := hex.DecodeString(traceHex)
	if err != nil {
		return Context{}, &ParseError{Reason: InvalidTraceID, Input: s}
	}
	if len(parentHex) != 16 {
		return Context{}, &ParseError{Reason: InvalidParentID, Input: s}
	}
	parentBytes, err := hex.DecodeString(parentHex)
	if err != nil {
		return Context{}, &ParseError{Reason: InvalidParentID, Input: s}
	}
	if len(flagsHex) != 2 {
		return Context{}, &ParseError{Reason: InvalidTraceFlags, Input: s}
	}
	flagsBytes, err := hex.DecodeString(flagsHex)
	if err != nil {
		return Context{}, &ParseError{Reason: InvalidTraceFlags, Input: s}
	}

	var ctx Context
	copy(ctx.TraceID[:], traceBytes)
	copy(ctx.ParentID[:], parentBytes)
	ctx.Flags = flagsBytes[0]

	if isAllZero(ctx.TraceID[:]) {
		return Context{}, &ParseError{Reason: AllZeroTraceID, Input: s}
	}
	if isAllZero(ctx.ParentID[:]) {
		return Context{}, &ParseError{Reason: AllZeroParentID, Input: s}
	}
	return ctx, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
