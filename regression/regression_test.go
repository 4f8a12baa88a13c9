// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoRegressionWhenDistributionsMatch(t *testing.T) {
	baseline := map[string][]float64{
		"read": {100, 102, 98, 101, 99, 100},
	}
	current := map[string][]float64{
		"read": {101, 99, 100, 102, 98, 100},
	}
	v := Run(baseline, current, DefaultConfig())
	assert.Equal(t, NoRegression, v.Kind)
}

func TestRegressionWhenMeansDiverge(t *testing.T) {
	baseline := map[string][]float64{
		"open": {100, 101, 99, 100, 102, 98},
	}
	current := map[string][]float64{
		"open": {500, 510, 495, 505, 490, 515},
	}
	v := Run(baseline, current, DefaultConfig())
	require.Equal(t, Regression, v.Kind)
	require.Len(t, v.Regressed, 1)
	assert.Equal(t, "open", v.Regressed[0].Name)
	assert.Less(t, v.Regressed[0].PValue, DefaultConfig().SignificanceLevel)
}

func TestInsufficientDataBelowMinSampleSize(t *testing.T) {
	baseline := map[string][]float64{"close": {1, 2}}
	current := map[string][]float64{"close": {1, 2}}
	v := Run(baseline, current, DefaultConfig())
	assert.Equal(t, InsufficientData, v.Kind)
	assert.NotEmpty(t, v.Reason)
}

func TestNoiseFilteringDropsHighVarianceBaseline(t *testing.T) {
	cfg := DefaultConfig()
	baseline := map[string][]float64{
		// extremely noisy baseline: CV well above the 0.5 threshold.
		"mmap": {1, 1000, 2, 900, 3, 950},
	}
	current := map[string][]float64{
		"mmap": {5000, 5001, 4999, 5002, 4998, 5003},
	}
	v := Run(baseline, current, cfg)
	assert.Equal(t, 1, v.FilteredCount)
	assert.Equal(t, InsufficientData, v.Kind)
}

func TestOnlySyscallsPresentOnBothSidesAreTested(t *testing.T) {
	baseline := map[string][]float64{
		"read":  {100, 101, 99, 100, 102, 98},
		"write": {200, 201, 199, 200, 202, 198},
	}
	current := map[string][]float64{
		"read": {101, 99, 100, 102, 98, 100},
	}
	v := Run(baseline, current, DefaultConfig())
	for _, r := range v.Results {
		assert.NotEqual(t, "write", r.Name)
	}
}
