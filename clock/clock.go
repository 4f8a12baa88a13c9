// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package clock implements the process-wide Lamport logical clock (C1).
// The clock is a single atomic counter behind a thin facade, not ambient
// global state sprinkled through callers: every mutation goes through
// tick, sync, or seed, and causality is enforced by the value returned
// from those calls, not by visibility of any other process state.
package clock

import (
	"os"
	"strconv"

	"go.uber.org/atomic"
)

// EnvVar is the environment variable that carries a clock seed across
// fork/exec, per spec §4.2 and §6.
const EnvVar = "RENACER_LOGICAL_CLOCK"

// Clock is a Lamport logical clock. The zero value is ready to use and
// starts at 0. Relaxed atomic ordering suffices: causality is carried by
// the returned counter value, not by memory visibility of other state.
type Clock struct {
	counter atomic.Uint64
}

// New returns a fresh Clock starting at 0.
func New() *Clock {
	return &Clock{}
}

// NewFromEnvironment seeds a Clock from RENACER_LOGICAL_CLOCK if it is
// present and parses as a decimal uint64; otherwise the clock starts at
// 0. This is the only mechanism that survives an arbitrary exec — no
// in-process state is relied upon across process boundaries.
func NewFromEnvironment() *Clock {
	c := New()
	if v, ok := SeedFromEnv(); ok {
		c.Seed(v)
	}
	return c
}

// SeedFromEnv reads and parses RENACER_LOGICAL_CLOCK. ok is false if the
// variable is absent or fails to parse as a decimal uint64, in which
// case the child should start at 0 per spec §4.2.
func SeedFromEnv() (value uint64, ok bool) {
	raw, present := os.LookupEnv(EnvVar)
	if !present {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Seed sets the counter to value. Intended to be used once at process
// start, before any concurrent access begins.
func (c *Clock) Seed(value uint64) {
	c.counter.Store(value)
}

// Tick atomically increments the counter and returns the new value.
func (c *Clock) Tick() uint64 {
	return c.counter.Inc()
}

// Now returns the current counter value without mutating it.
func (c *Clock) Now() uint64 {
	return c.counter.Load()
}

// Sync sets the counter to max(local, remote) + 1 and returns that
// value, establishing the Lamport happens-before property: any event
// that already observed `remote` is guaranteed a strictly smaller clock
// value than this call's return.
func (c *Clock) Sync(remote uint64) uint64 {
	for {
		local := c.counter.Load()
		next := remote
		if local > next {
			next = local
		}
		next++
		if c.counter.CAS(local, next) {
			return next
		}
	}
}

// EnvPair returns the (key, value) pair a caller should set on a child
// process's environment so the golden thread survives fork/exec.
func (c *Clock) EnvPair() (key, value string) {
	return EnvVar, strconv.FormatUint(c.Now(), 10)
}
