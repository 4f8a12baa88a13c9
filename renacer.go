// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package renacer

import (
	"github.com/renacer/renacer/antipattern"
	"github.com/renacer/renacer/critpath"
	"github.com/renacer/renacer/graph"
	"github.com/renacer/renacer/sequence"
	"github.com/renacer/renacer/span"
)

// Analysis bundles the structural analyzers' output (C8-C10, C13) for
// one closed trace. Time Attribution (C11), the Regression Engine
// (C12), and the Assertion Engine (C14) are deliberately not wired in
// here: each of those packages already imports this root package for
// the Error taxonomy (renacer.NewParseError, renacer.NewStorageError),
// so folding them into this facade would create an import cycle.
// Callers compose them explicitly: see the package docs for
// attribution, regression, and assertion.
type Analysis struct {
	Graph             *graph.Graph
	CriticalPath      critpath.Path
	CriticalPathSpans []*span.Span
	SequenceAnomalies []sequence.Anomaly
	AntiPatterns      []antipattern.Finding
}

// AnalyzeOptions configures which analyzers Analyze runs; a nil
// BaselineNGrams skips sequence mining, since it requires a baseline
// frequency map a single trace cannot supply on its own.
type AnalyzeOptions struct {
	BaselineNGrams sequence.FrequencyMap
	NGramSize      int
	GPU            antipattern.GPUSpans
	Thresholds     antipattern.Thresholds
}

// Analyze runs the causal graph, critical path, sequence mining, and
// anti-pattern detectors over a closed batch of spans belonging to one
// trace. It is the synchronous counterpart to the hot-path ingestion
// pipeline (clock -> span -> ring buffer -> exporter).
//
// It returns a GraphError if spans contains a parent/child cycle: the
// causal graph is still fully built (callers needing the partial result
// anyway can reach it via graph.FromSpans directly), but every analyzer
// downstream of it assumes a DAG, so Analyze refuses to run them over
// one that isn't.
func Analyze(spans []*span.Span, opts AnalyzeOptions) (Analysis, error) {
	g := graph.FromSpans(spans)
	if !g.IsDAG() {
		return Analysis{}, NewGraphError("Analyze", "span set contains a parent/child cycle", nil)
	}
	path := critpath.Compute(g)
	pathSpans := critpath.Spans(g, path)

	th := opts.Thresholds
	if th == (antipattern.Thresholds{}) {
		th = antipattern.DefaultThresholds()
	}
	findings := antipattern.DetectAll(g, path, spans, opts.GPU, th)

	var anomalies []sequence.Anomaly
	if opts.BaselineNGrams != nil {
		n := opts.NGramSize
		if n <= 0 {
			n = sequence.DefaultN
		}
		current := sequence.ExtractNGrams(spans, n)
		anomalies = sequence.Compare(opts.BaselineNGrams, current, sequence.DefaultFrequencyThreshold)
	}

	return Analysis{
		Graph:             g,
		CriticalPath:      path,
		CriticalPathSpans: pathSpans,
		SequenceAnomalies: anomalies,
		AntiPatterns:      findings,
	}, nil
}
