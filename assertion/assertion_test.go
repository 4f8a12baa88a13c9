// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package assertion

import (
	"testing"

	"github.com/renacer/renacer/antipattern"
	"github.com/renacer/renacer/critpath"
	"github.com/renacer/renacer/internal/id"
	"github.com/renacer/renacer/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTOML = `
[[assertion]]
name = "fast-enough"
type = "critical_path"
max_duration_ms = 50.0

[[assertion]]
name = "no-god-process"
type = "anti_pattern"
kind = "god_process"
threshold = 80.0

[[assertion]]
name = "bounded-spans"
type = "span_count"
max_spans = 1000

[[assertion]]
name = "bounded-memory"
type = "memory_usage"
max_bytes = 1048576
mode = "rss"
enabled = false
`

func TestParseTOMLValid(t *testing.T) {
	assertions, err := ParseTOML([]byte(validTOML))
	require.NoError(t, err)
	require.Len(t, assertions, 4)
	assert.True(t, assertions[0].IsEnabled())
	assert.False(t, assertions[3].IsEnabled())
}

func TestParseTOMLMissingRequiredFieldFailsLoudly(t *testing.T) {
	bad := `
[[assertion]]
name = "broken"
type = "critical_path"
`
	_, err := ParseTOML([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_duration_ms")
}

func TestParseTOMLUnknownTypeRejected(t *testing.T) {
	bad := `
[[assertion]]
name = "mystery"
type = "quantum_leap"
`
	_, err := ParseTOML([]byte(bad))
	require.Error(t, err)
}

func mkSpan(t *testing.T, name string, start, end int64) *span.Span {
	t.Helper()
	s, err := span.New(span.Params{
		TraceID: id.NewTraceID(),
		SpanID:  id.NewSpanID(),
		Name:    name,
		Start:   start,
		End:     end,
	})
	require.NoError(t, err)
	return s
}

func TestEvalCriticalPathPassAndFail(t *testing.T) {
	a := Assertion{Name: "cp", Type: TypeCriticalPath, MaxDurationMS: 1.0}
	ctx := Context{CriticalPath: critpath.Path{TotalWeightNS: 500_000}} // 0.5ms
	results := Evaluate([]Assertion{a}, ctx)
	require.Len(t, results, 1)
	assert.True(t, results[0].Pass)

	ctx2 := Context{CriticalPath: critpath.Path{TotalWeightNS: 5_000_000}} // 5ms
	results2 := Evaluate([]Assertion{a}, ctx2)
	assert.False(t, results2[0].Pass)
	assert.True(t, results2[0].Fatal)
}

func TestEvalAntiPatternUsesWorstMetric(t *testing.T) {
	a := Assertion{Name: "ap", Type: TypeAntiPattern, Kind: "god_process", Threshold: 80}
	ctx := Context{AntiPatternFindings: []antipattern.Finding{
		{Kind: antipattern.GodProcess, MetricValue: 95},
		{Kind: antipattern.TightLoop, MetricValue: 99999},
	}}
	results := Evaluate([]Assertion{a}, ctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Pass)
}

func TestEvalSpanCountWithNamePattern(t *testing.T) {
	a := Assertion{Name: "sc", Type: TypeSpanCount, MaxSpans: 1, NamePattern: "poll"}
	ctx := Context{AllSpans: []*span.Span{
		mkSpan(t, "poll", 0, 1),
		mkSpan(t, "poll", 0, 1),
		mkSpan(t, "read", 0, 1),
	}}
	results := Evaluate([]Assertion{a}, ctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Pass)
	assert.Equal(t, "2", results[0].Actual)
}

func TestEvalMemoryUsageModeSelectsField(t *testing.T) {
	a := Assertion{Name: "mem", Type: TypeMemoryUsage, MaxBytes: 100, Mode: ModeRSS}
	ctx := Context{RSSBytes: 50, AllocBytes: 9999}
	results := Evaluate([]Assertion{a}, ctx)
	require.Len(t, results, 1)
	assert.True(t, results[0].Pass)
}

func TestEvalCustomUsesRegisteredEvaluator(t *testing.T) {
	a := Assertion{Name: "custom-check", Type: TypeCustom, Expression: "always_true"}
	ctx := Context{CustomEvaluators: map[string]CustomEvaluator{
		"custom-check": func(expr string) (bool, string, error) { return true, "ok", nil },
	}}
	results := Evaluate([]Assertion{a}, ctx)
	require.Len(t, results, 1)
	assert.True(t, results[0].Pass)
}

func TestEvalCustomMissingEvaluatorFails(t *testing.T) {
	a := Assertion{Name: "no-evaluator", Type: TypeCustom, Expression: "whatever"}
	results := Evaluate([]Assertion{a}, Context{})
	require.Len(t, results, 1)
	assert.False(t, results[0].Pass)
}

func TestDisabledAssertionSkipped(t *testing.T) {
	f := false
	a := Assertion{Name: "skip-me", Type: TypeSpanCount, MaxSpans: 1, Enabled: &f}
	results := Evaluate([]Assertion{a}, Context{})
	assert.Empty(t, results)
}
