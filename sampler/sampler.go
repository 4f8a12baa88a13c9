// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package sampler implements the per-operation adaptive sampling
// decision (C5): a pure function of (operation name, estimated
// duration) evaluated before a span is ever constructed, so Renacer
// never pays allocation cost for a span it will throw away.
package sampler

import (
	"math/rand"
	"strings"
	"sync"
)

// Defaults from spec §4.5.
const (
	DefaultThresholdUS = 100
	DefaultSampleRate  = 0.01

	gpuThresholdUS  = 100
	simdThresholdUS = 50
	ioThresholdUS   = 10
)

// knownIOSyscalls are the syscalls spec §4.5 rule 4 calls out as
// "known I/O syscalls" — operations whose latency is dominated by
// waiting on the kernel or a device, not CPU work, so any non-trivial
// duration is worth keeping.
var knownIOSyscalls = map[string]bool{
	"read": true, "write": true, "pread64": true, "pwrite64": true,
	"readv": true, "writev": true, "open": true, "openat": true,
	"close": true, "fsync": true, "fdatasync": true, "sendto": true,
	"recvfrom": true, "sendmsg": true, "recvmsg": true, "connect": true,
	"accept": true, "accept4": true, "poll": true, "ppoll": true,
	"epoll_wait": true, "select": true, "pselect6": true,
}

// Sampler is the adaptive sampler. The zero value uses spec defaults.
type Sampler struct {
	TraceAll    bool
	ThresholdUS uint64
	SampleRate  float64

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Sampler configured with spec §4.5 defaults.
func New() *Sampler {
	return &Sampler{
		ThresholdUS: DefaultThresholdUS,
		SampleRate:  DefaultSampleRate,
		rng:         rand.New(rand.NewSource(1)),
	}
}

// TraceAllSampler returns a Sampler that always samples (debug mode).
func TraceAllSampler() *Sampler {
	return &Sampler{TraceAll: true}
}

func (s *Sampler) threshold() uint64 {
	if s.ThresholdUS > 0 {
		return s.ThresholdUS
	}
	return DefaultThresholdUS
}

func (s *Sampler) rate() float64 {
	if s.SampleRate > 0 {
		return s.SampleRate
	}
	return DefaultSampleRate
}

// Sample applies spec §4.5's ordered rule list to decide whether an
// operation of the given estimated duration should be sampled.
func (s *Sampler) Sample(operation string, estimatedDurationUS uint64) bool {
	if s.TraceAll {
		return true
	}
	switch {
	case strings.HasPrefix(operation, "gpu") && estimatedDurationUS >= gpuThresholdUS:
		return true
	case strings.HasPrefix(operation, "simd") && estimatedDurationUS >= simdThresholdUS:
		return true
	case knownIOSyscalls[operation] && estimatedDurationUS >= ioThresholdUS:
		return true
	case estimatedDurationUS >= s.threshold():
		return true
	}
	return s.roll()
}

func (s *Sampler) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	return s.rng.Float64() < s.rate()
}

// SeedForTest pins the internal RNG for deterministic probabilistic
// sampling assertions.
func (s *Sampler) SeedForTest(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}
