// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package antipattern detects architectural anti-patterns (C13) over a
// causal graph and its critical path: a single process dominating the
// critical path (GodProcess), a long consecutive run of one syscall
// (TightLoop), and GPU transfer time outweighing kernel time
// (PcieBottleneck).
package antipattern

import (
	"fmt"

	"github.com/renacer/renacer/critpath"
	"github.com/renacer/renacer/graph"
	"github.com/renacer/renacer/span"
)

// Kind identifies which anti-pattern rule fired.
type Kind int

const (
	GodProcess Kind = iota
	TightLoop
	PcieBottleneck
)

func (k Kind) String() string {
	switch k {
	case GodProcess:
		return "GodProcess"
	case TightLoop:
		return "TightLoop"
	case PcieBottleneck:
		return "PcieBottleneck"
	default:
		return "Unknown"
	}
}

// Severity ranks how urgently a detected pattern should be addressed.
type Severity int

const (
	SeverityHigh Severity = iota
	SeverityCritical
)

func (s Severity) String() string {
	if s == SeverityCritical {
		return "Critical"
	}
	return "High"
}

// Finding is one detected anti-pattern instance.
type Finding struct {
	Kind Kind
	Severity Severity
	ProcessID      uint32
	SyscallName    string
	// MetricValue is the raw number the rule triggered on: a percentage
	// for GodProcess, a span count for TightLoop, a ratio for
	// PcieBottleneck. The assertion engine (package assertion) compares
	// it directly against a configured threshold.
	MetricValue    float64
	Detail         string
	Recommendation string
}

// Thresholds holds the configurable cutoffs spec §4.13 names.
type Thresholds struct {
	GodProcessHighPercent     float64 // default 80
	GodProcessCriticalPercent float64 // default 90
	TightLoopHighCount        int     // default 10000
	TightLoopCriticalCount    int     // default 20000 (2x High, no fixed spec value)
	PcieHighRatio             float64 // default 0.5
	PcieCriticalRatio         float64 // default 1.0
}

// DefaultThresholds returns spec §4.13's documented cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GodProcessHighPercent:     80,
		GodProcessCriticalPercent: 90,
		TightLoopHighCount:        10_000,
		TightLoopCriticalCount:    20_000,
		PcieHighRatio:             0.5,
		PcieCriticalRatio:         1.0,
	}
}

// DetectGodProcess flags a process owning more than GodProcessHighPercent
// of the critical path's total duration.
func DetectGodProcess(g *graph.Graph, path critpath.Path, th Thresholds) []Finding {
	if path.TotalWeightNS == 0 || len(path.Nodes) == 0 {
		return nil
	}
	perProcess := map[uint32]int64{}
	for _, n := range path.Nodes {
		s := g.GetSpan(n)
		perProcess[s.ProcessID] += int64(s.Duration())
	}
	var out []Finding
	for pid, dur := range perProcess {
		pct := float64(dur) / float64(path.TotalWeightNS) * 100
		if pct <= th.GodProcessHighPercent {
			continue
		}
		sev := SeverityHigh
		if pct > th.GodProcessCriticalPercent {
			sev = SeverityCritical
		}
		out = append(out, Finding{
			Kind:        GodProcess,
			Severity:    sev,
			ProcessID:   pid,
			MetricValue: pct,
			Detail:      fmt.Sprintf("process %d owns %.1f%% of the critical path", pid, pct),
			Recommendation: "investigate parallelizing or offloading work from this process; " +
				"it dominates end-to-end latency",
		})
	}
	return out
}

// DetectTightLoop flags runs of >= TightLoopHighCount consecutive spans
// sharing a syscall name and process id, scanning spans in the order given (callers
// typically pass a single process/thread's spans in logical-clock
// order).
func DetectTightLoop(spans []*span.Span, th Thresholds) []Finding {
	var out []Finding
	i := 0
	for i < len(spans) {
		j := i + 1
		for j < len(spans) && spans[j].Name == spans[i].Name && spans[j].ProcessID == spans[i].ProcessID {
			j++
		}
		count := j - i
		if count >= th.TightLoopHighCount {
			sev := SeverityHigh
			if count >= th.TightLoopCriticalCount {
				sev = SeverityCritical
			}
			out = append(out, Finding{
				Kind:        TightLoop,
				Severity:    sev,
				ProcessID:   spans[i].ProcessID,
				SyscallName: spans[i].Name,
				MetricValue: float64(count),
				Detail:      fmt.Sprintf("%d consecutive %q calls on process %d", count, spans[i].Name, spans[i].ProcessID),
				Recommendation: fmt.Sprintf(
					"batch or back off %q calls; this loop is a strong RLE-compression candidate", spans[i].Name),
			})
		}
		i = j
	}
	return out
}

// GPUSpans separates kernel-launch spans from memory-transfer spans for
// PcieBottleneck detection; callers classify by whatever naming or
// attribute convention their tracer uses (e.g. attribution cluster).
type GPUSpans struct {
	Kernel   []*span.Span
	Transfer []*span.Span
}

// DetectPcieBottleneck flags transfer-duration / kernel-duration ratios
// above PcieHighRatio.
func DetectPcieBottleneck(g GPUSpans, th Thresholds) []Finding {
	var kernelTotal, transferTotal int64
	for _, s := range g.Kernel {
		kernelTotal += int64(s.Duration())
	}
	for _, s := range g.Transfer {
		transferTotal += int64(s.Duration())
	}
	if kernelTotal == 0 {
		return nil
	}
	ratio := float64(transferTotal) / float64(kernelTotal)
	if ratio <= th.PcieHighRatio {
		return nil
	}
	sev := SeverityHigh
	if ratio > th.PcieCriticalRatio {
		sev = SeverityCritical
	}
	return []Finding{{
		Kind:        PcieBottleneck,
		Severity:    sev,
		MetricValue: ratio,
		Detail:      fmt.Sprintf("GPU transfer/kernel duration ratio is %.2f", ratio),
		Recommendation: "reduce host<->device transfer volume or batch kernel launches; " +
			"transfer time is competing with or exceeding compute time",
	}}
}

// DetectAll runs every rule and concatenates findings.
func DetectAll(g *graph.Graph, path critpath.Path, allSpans []*span.Span, gpu GPUSpans, th Thresholds) []Finding {
	var out []Finding
	out = append(out, DetectGodProcess(g, path, th)...)
	out = append(out, DetectTightLoop(allSpans, th)...)
	out = append(out, DetectPcieBottleneck(gpu, th)...)
	return out
}
