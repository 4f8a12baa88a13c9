// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package regression implements the statistical regression engine
// (C12): Welch's unequal-variance t-test over per-syscall baseline vs.
// current duration samples, with optional coefficient-of-variation
// noise filtering. Means are computed via
// github.com/montanaflynn/stats, mirroring the teacher's existing
// (indirect) dependency on that package; the t-distribution CDF itself
// has no counterpart anywhere in the example corpus, so it is a
// from-scratch numerical routine (see DESIGN.md).
package regression

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Config mirrors spec §4.12's RegressionConfig defaults.
type Config struct {
	SignificanceLevel    float64
	MinSampleSize        int
	EnableNoiseFiltering bool
	NoiseThreshold       float64
}

// DefaultConfig returns spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SignificanceLevel:    0.05,
		MinSampleSize:        5,
		EnableNoiseFiltering: true,
		NoiseThreshold:       0.5,
	}
}

// SyscallResult is one syscall's Welch's t-test outcome.
type SyscallResult struct {
	Name           string
	Statistic      float64
	PValue         float64
	DegreesOfFreedom float64
	BaselineMedian float64
	CurrentMedian  float64
	BaselineVariance float64
	CurrentVariance  float64
	Regressed      bool
}

// VerdictKind distinguishes the three possible outcomes of a run.
type VerdictKind int

const (
	NoRegression VerdictKind = iota
	Regression
	InsufficientData
)

// Verdict is the overall result of a regression run.
type Verdict struct {
	Kind           VerdictKind
	Regressed      []SyscallResult
	FilteredCount  int
	Filtered       []string // syscalls dropped because their baseline CV exceeded NoiseThreshold
	Reason        string // only set for InsufficientData
	Results        []SyscallResult
}

// Run executes spec §4.12's pipeline over baseline and current
// per-syscall duration samples (in nanoseconds).
func Run(baseline, current map[string][]float64, cfg Config) Verdict {
	if cfg.MinSampleSize <= 0 {
		cfg = DefaultConfig()
	}

	names := make([]string, 0, len(current))
	for name := range current {
		if _, ok := baseline[name]; ok {
			names = append(names, name)
		}
	}

	filtered := 0
	var filteredNames []string
	var results []SyscallResult
	for _, name := range names {
		base := baseline[name]
		cur := current[name]

		if cfg.EnableNoiseFiltering {
			cv, err := coefficientOfVariation(base)
			if err == nil && cv > cfg.NoiseThreshold {
				filtered++
				filteredNames = append(filteredNames, name)
				continue
			}
		}

		if len(base) < cfg.MinSampleSize || len(cur) < cfg.MinSampleSize {
			continue
		}

		r, ok := welchTTest(name, base, cur)
		if !ok {
			continue
		}
		r.Regressed = r.PValue < cfg.SignificanceLevel
		results = append(results, r)
	}

	var regressed []SyscallResult
	for _, r := range results {
		if r.Regressed {
			regressed = append(regressed, r)
		}
	}

	switch {
	case len(results) == 0:
		return Verdict{Kind: InsufficientData, FilteredCount: filtered, Filtered: filteredNames,
			Reason: "no syscall had sufficient samples on both sides after noise filtering"}
	case len(regressed) > 0:
		return Verdict{Kind: Regression, Regressed: regressed, FilteredCount: filtered, Filtered: filteredNames, Results: results}
	default:
		return Verdict{Kind: NoRegression, FilteredCount: filtered, Filtered: filteredNames, Results: results}
	}
}

func coefficientOfVariation(data []float64) (float64, error) {
	mean, err := stats.Mean(data)
	if err != nil || mean == 0 {
		return 0, err
	}
	sd := sampleStdDev(data, mean)
	return sd / mean, nil
}

func sampleVariance(data []float64, mean float64) float64 {
	if len(data) < 2 {
		return 0
	}
	var ss float64
	for _, v := range data {
		d := v - mean
		ss += d * d
	}
	return ss / float64(len(data)-1)
}

func sampleStdDev(data []float64, mean float64) float64 {
	return math.Sqrt(sampleVariance(data, mean))
}

func welchTTest(name string, base, cur []float64) (SyscallResult, bool) {
	m1, err1 := stats.Mean(base)
	m2, err2 := stats.Mean(cur)
	if err1 != nil || err2 != nil {
		return SyscallResult{}, false
	}
	v1 := sampleVariance(base, m1)
	v2 := sampleVariance(cur, m2)
	n1 := float64(len(base))
	n2 := float64(len(cur))

	se2 := v1/n1 + v2/n2
	if se2 <= 0 {
		return SyscallResult{}, false
	}
	se := math.Sqrt(se2)
	t := (m1 - m2) / se

	df := se2 * se2 / ((v1/n1)*(v1/n1)/(n1-1) + (v2/n2)*(v2/n2)/(n2-1))
	if math.IsNaN(df) || math.IsInf(df, 0) || df <= 0 {
		return SyscallResult{}, false
	}

	p := 2 * (1 - studentTCDF(math.Abs(t), df))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	med1, _ := stats.Median(base)
	med2, _ := stats.Median(cur)

	return SyscallResult{
		Name:             name,
		Statistic:        t,
		PValue:           p,
		DegreesOfFreedom: df,
		BaselineMedian:   med1,
		CurrentMedian:    med2,
		BaselineVariance: v1,
		CurrentVariance:  v2,
	}, true
}

// studentTCDF evaluates the Student's t CDF at x with ν degrees of
// freedom via the regularized incomplete beta function:
// CDF(x) = 1 - 0.5*I_{ν/(ν+x²)}(ν/2, 1/2)  for x >= 0.
func studentTCDF(x, df float64) float64 {
	if x <= 0 {
		return 0.5
	}
	xt := df / (df + x*x)
	ib := regularizedIncompleteBeta(xt, df/2, 0.5)
	return 1 - 0.5*ib
}

// regularizedIncompleteBeta computes I_x(a, b) via the continued
// fraction expansion (Numerical Recipes §6.4), the standard
// closed-form-free approach when no statistics library in the
// dependency graph exposes one.
func regularizedIncompleteBeta(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lbeta := lgamma(a+b) - lgamma(a) - lgamma(b)
	front := math.Exp(lbeta + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(x, a, b) / a
	}
	return 1 - front*betaContinuedFraction(1-x, b, a)/b
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func betaContinuedFraction(x, a, b float64) float64 {
	const maxIter = 200
	const eps = 1e-12
	const tiny = 1e-30

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		mf := float64(m)
		m2 := 2 * mf

		aa := mf * (b - mf) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + mf) * (qab + mf) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < eps {
			break
		}
	}
	return h
}
