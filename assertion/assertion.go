// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package assertion implements the declarative assertion engine (C14):
// loading a TOML array-of-tables of performance/behavior assertions and
// evaluating them against a trace's analysis results.
package assertion

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/renacer/renacer"
	"github.com/renacer/renacer/antipattern"
	"github.com/renacer/renacer/critpath"
	"github.com/renacer/renacer/span"
)

// Type names the assertion's kind as it appears in the TOML `type` field.
type Type string

const (
	TypeCriticalPath Type = "critical_path"
	TypeAntiPattern  Type = "anti_pattern"
	TypeSpanCount    Type = "span_count"
	TypeMemoryUsage  Type = "memory_usage"
	TypeCustom       Type = "custom"
)

// MemoryMode selects which memory figure MemoryUsage checks.
type MemoryMode string

const (
	ModeAllocations MemoryMode = "allocations"
	ModeRSS         MemoryMode = "rss"
)

// Assertion is one [[assertion]] entry. Fields not relevant to Type are
// left zero.
type Assertion struct {
	Name            string  `toml:"name"`
	Type            Type    `toml:"type"`
	Enabled         *bool   `toml:"enabled"`
	FailOnViolation *bool   `toml:"fail_on_violation"`

	MaxDurationMS float64 `toml:"max_duration_ms"`
	NamePattern   string  `toml:"name_pattern"`

	Kind      string  `toml:"kind"`
	Threshold float64 `toml:"threshold"`

	MaxSpans int `toml:"max_spans"`

	MaxBytes int64      `toml:"max_bytes"`
	Mode     MemoryMode `toml:"mode"`

	Expression string `toml:"expression"`
}

// IsEnabled reports whether the assertion should run, defaulting to true.
func (a Assertion) IsEnabled() bool { return a.Enabled == nil || *a.Enabled }

// ShouldFailOnViolation reports whether a violation should be treated
// as a failure, defaulting to true.
func (a Assertion) ShouldFailOnViolation() bool { return a.FailOnViolation == nil || *a.FailOnViolation }

type document struct {
	Assertion []Assertion `toml:"assertion"`
}

// LoadTOML reads and validates an assertion document from path. Missing
// required fields per assertion Type fail loudly with a ParseError.
func LoadTOML(path string) ([]Assertion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, renacer.NewParseError("assertion.LoadTOML", "failed to read assertion file", err)
	}
	return ParseTOML(data)
}

// ParseTOML parses and validates an assertion document from raw bytes.
func ParseTOML(data []byte) ([]Assertion, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, renacer.NewParseError("assertion.ParseTOML", "failed to parse assertion TOML", err)
	}
	for i, a := range doc.Assertion {
		if err := validate(a); err != nil {
			return nil, renacer.NewParseError("assertion.ParseTOML",
				fmt.Sprintf("assertion[%d] %q: %v", i, a.Name, err), nil)
		}
	}
	return doc.Assertion, nil
}

func validate(a Assertion) error {
	if a.Name == "" {
		return fmt.Errorf("missing required field 'name'")
	}
	switch a.Type {
	case TypeCriticalPath:
		if a.MaxDurationMS <= 0 {
			return fmt.Errorf("critical_path assertion requires positive max_duration_ms")
		}
	case TypeAntiPattern:
		if a.Kind == "" {
			return fmt.Errorf("anti_pattern assertion requires 'kind'")
		}
	case TypeSpanCount:
		if a.MaxSpans <= 0 {
			return fmt.Errorf("span_count assertion requires positive max_spans")
		}
	case TypeMemoryUsage:
		if a.MaxBytes <= 0 {
			return fmt.Errorf("memory_usage assertion requires positive max_bytes")
		}
		if a.Mode != ModeAllocations && a.Mode != ModeRSS {
			return fmt.Errorf("memory_usage assertion requires mode = \"allocations\" or \"rss\"")
		}
	case TypeCustom:
		if a.Expression == "" {
			return fmt.Errorf("custom assertion requires 'expression'")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// CustomEvaluator evaluates a Custom assertion's expression externally;
// the core assertion engine has no expression language of its own.
type CustomEvaluator func(expression string) (bool, string, error)

// Context carries the analysis results an assertion run is evaluated
// against.
type Context struct {
	CriticalPath        critpath.Path
	CriticalPathSpans    []*span.Span // materialized via critpath.Spans, same order as CriticalPath.Nodes
	AntiPatternFindings []antipattern.Finding
	AllSpans            []*span.Span
	AllocBytes          int64
	RSSBytes            int64
	CustomEvaluators    map[string]CustomEvaluator
}

// Result is the outcome of evaluating one assertion.
type Result struct {
	Name     string
	Pass     bool
	Message  string
	Actual   string
	Expected string
	Fatal    bool // true when this failing assertion should fail the caller's run
}

// Evaluate runs every enabled assertion against ctx.
func Evaluate(assertions []Assertion, ctx Context) []Result {
	var out []Result
	for _, a := range assertions {
		if !a.IsEnabled() {
			continue
		}
		out = append(out, evaluateOne(a, ctx))
	}
	return out
}

func evaluateOne(a Assertion, ctx Context) Result {
	switch a.Type {
	case TypeCriticalPath:
		return evalCriticalPath(a, ctx)
	case TypeAntiPattern:
		return evalAntiPattern(a, ctx)
	case TypeSpanCount:
		return evalSpanCount(a, ctx)
	case TypeMemoryUsage:
		return evalMemoryUsage(a, ctx)
	case TypeCustom:
		return evalCustom(a, ctx)
	default:
		return Result{Name: a.Name, Pass: false, Message: "unknown assertion type", Fatal: a.ShouldFailOnViolation()}
	}
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	return strings.Contains(name, pattern)
}

func evalCriticalPath(a Assertion, ctx Context) Result {
	var totalNS int64
	if a.NamePattern == "" {
		totalNS = ctx.CriticalPath.TotalWeightNS
	} else {
		for _, s := range ctx.CriticalPathSpans {
			if matchesPattern(s.Name, a.NamePattern) {
				totalNS += int64(s.Duration())
			}
		}
	}
	actualMS := float64(totalNS) / 1e6
	pass := actualMS <= a.MaxDurationMS
	return Result{
		Name:     a.Name,
		Pass:     pass,
		Message:  fmt.Sprintf("critical path duration %.3fms vs max %.3fms", actualMS, a.MaxDurationMS),
		Actual:   strconv.FormatFloat(actualMS, 'f', 3, 64),
		Expected: strconv.FormatFloat(a.MaxDurationMS, 'f', 3, 64),
		Fatal:    !pass && a.ShouldFailOnViolation(),
	}
}

func evalAntiPattern(a Assertion, ctx Context) Result {
	var worst float64
	var found bool
	for _, f := range ctx.AntiPatternFindings {
		if !strings.EqualFold(f.Kind.String(), strings.ReplaceAll(a.Kind, "_", "")) {
			continue
		}
		if a.NamePattern != "" && !matchesPattern(f.SyscallName, a.NamePattern) {
			continue
		}
		found = true
		if f.MetricValue > worst {
			worst = f.MetricValue
		}
	}
	pass := !found || worst <= a.Threshold
	return Result{
		Name:     a.Name,
		Pass:     pass,
		Message:  fmt.Sprintf("anti-pattern %q worst metric %.3f vs threshold %.3f", a.Kind, worst, a.Threshold),
		Actual:   strconv.FormatFloat(worst, 'f', 3, 64),
		Expected: strconv.FormatFloat(a.Threshold, 'f', 3, 64),
		Fatal:    !pass && a.ShouldFailOnViolation(),
	}
}

func evalSpanCount(a Assertion, ctx Context) Result {
	count := 0
	for _, s := range ctx.AllSpans {
		if matchesPattern(s.Name, a.NamePattern) {
			count++
		}
	}
	pass := count <= a.MaxSpans
	return Result{
		Name:     a.Name,
		Pass:     pass,
		Message:  fmt.Sprintf("span count %d vs max %d", count, a.MaxSpans),
		Actual:   strconv.Itoa(count),
		Expected: strconv.Itoa(a.MaxSpans),
		Fatal:    !pass && a.ShouldFailOnViolation(),
	}
}

func evalMemoryUsage(a Assertion, ctx Context) Result {
	var actual int64
	switch a.Mode {
	case ModeRSS:
		actual = ctx.RSSBytes
	default:
		actual = ctx.AllocBytes
	}
	pass := actual <= a.MaxBytes
	return Result{
		Name:     a.Name,
		Pass:     pass,
		Message:  fmt.Sprintf("%s usage %d bytes vs max %d", a.Mode, actual, a.MaxBytes),
		Actual:   strconv.FormatInt(actual, 10),
		Expected: strconv.FormatInt(a.MaxBytes, 10),
		Fatal:    !pass && a.ShouldFailOnViolation(),
	}
}

func evalCustom(a Assertion, ctx Context) Result {
	eval, ok := ctx.CustomEvaluators[a.Name]
	if !ok {
		return Result{
			Name:    a.Name,
			Pass:    false,
			Message: fmt.Sprintf("no evaluator registered for custom assertion %q", a.Name),
			Fatal:   a.ShouldFailOnViolation(),
		}
	}
	pass, msg, err := eval(a.Expression)
	if err != nil {
		return Result{Name: a.Name, Pass: false, Message: err.Error(), Fatal: a.ShouldFailOnViolation()}
	}
	return Result{Name: a.Name, Pass: pass, Message: msg, Fatal: !pass && a.ShouldFailOnViolation()}
}
