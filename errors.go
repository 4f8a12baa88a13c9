// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package renacer ties together the subsystems that turn a raw syscall
// stream into a causally ordered, queryable trace: logical clocks, span
// ingestion, columnar storage, and the post-hoc analyzers built on top
// of them.
package renacer

import "fmt"

// Kind classifies an Error so that callers can branch on failure mode
// without string-matching messages.
type Kind int

const (
	// InvalidInput covers malformed ids, bad time ranges, and other
	// caller-supplied data that fails a constructor's invariants.
	InvalidInput Kind = iota
	// ParseError covers traceparent, TOML, and source-map parsing failures.
	ParseError
	// StorageError covers columnar-store I/O and corruption.
	StorageError
	// BackpressureDrop covers ring-buffer-full and rate-limiter drops.
	// It is informational: callers observe it via counters, not propagation.
	BackpressureDrop
	// GraphError covers cycle detection and dangling-parent conditions.
	GraphError
	// AssertionFailure covers a failed declarative performance assertion.
	// Non-fatal to the core; callers decide whether to treat it as fatal.
	AssertionFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case ParseError:
		return "ParseError"
	case StorageError:
		return "StorageError"
	case BackpressureDrop:
		return "BackpressureDrop"
	case GraphError:
		return "GraphError"
	case AssertionFailure:
		return "AssertionFailure"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy described in spec §7. It wraps an underlying
// cause (when there is one) so callers can still use errors.Is/As.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "span.New", "store.Insert"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("renacer: %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("renacer: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is implements errors.Is by Kind so that callers can write
// errors.Is(err, &renacer.Error{Kind: renacer.InvalidInput}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// newErr is the internal constructor used throughout the module.
func newErr(k Kind, op, msg string, cause error) *Error {
	return &Error{Kind: k, Op: op, Message: msg, Cause: cause}
}

// NewStorageError wraps an I/O or corruption failure from the columnar
// store (C6).
func NewStorageError(op, msg string, cause error) *Error {
	return newErr(StorageError, op, msg, cause)
}

// NewGraphError wraps a causal-graph construction failure (C8).
func NewGraphError(op, msg string, cause error) *Error {
	return newErr(GraphError, op, msg, cause)
}

// NewInvalidInput wraps a caller-supplied data failure.
func NewInvalidInput(op, msg string, cause error) *Error {
	return newErr(InvalidInput, op, msg, cause)
}

// NewParseError wraps a traceparent/TOML/source parsing failure.
func NewParseError(op, msg string, cause error) *Error {
	return newErr(ParseError, op, msg, cause)
}
