// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package attribution implements time attribution (C11): classifying
// spans into semantic clusters via a TOML-configured registry and
// aggregating wall time per cluster to surface hotspots.
package attribution

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/renacer/renacer"
	"github.com/renacer/renacer/span"
)

//go:embed clusters-default.toml
var defaultClusterTOML []byte

// ArgsFilter narrows a cluster match using syscall arguments or a
// resolved file-descriptor path.
type ArgsFilter struct {
	FdPathPattern string `toml:"fd_path_pattern"`
	ArgContains   string `toml:"arg_contains"`
}

// ClusterDefinition is one [[cluster]] entry in a clusters TOML document.
type ClusterDefinition struct {
	Name                  string      `toml:"name"`
	Description           string      `toml:"description"`
	Syscalls              []string    `toml:"syscalls"`
	ExpectedForTranspiler bool        `toml:"expected_for_transpiler"`
	AnomalyThreshold      float64     `toml:"anomaly_threshold"`
	Severity              string      `toml:"severity"`
	ArgsFilter            *ArgsFilter `toml:"args_filter"`
}

type clusterFile struct {
	Cluster []ClusterDefinition `toml:"cluster"`
}

// FdTable maps open file descriptors to resolved paths, used by
// ioctl-style args filters (e.g. "/dev/nvidia*").
type FdTable struct {
	table map[int32]string
}

// NewFdTable returns an empty FdTable.
func NewFdTable() *FdTable {
	return &FdTable{table: map[int32]string{}}
}

// Insert records the path a file descriptor currently refers to.
func (f *FdTable) Insert(fd int32, path string) {
	f.table[fd] = path
}

// GetPath returns the path fd currently refers to, if known.
func (f *FdTable) GetPath(fd int32) (string, bool) {
	p, ok := f.table[fd]
	return p, ok
}

// ClusterRegistry resolves syscall names to ClusterDefinitions.
type ClusterRegistry struct {
	clusters         []ClusterDefinition
	syscallToCluster map[string]string
}

func buildRegistry(definitions []ClusterDefinition, rejectDuplicates bool) (*ClusterRegistry, error) {
	idx := make(map[string]string, len(definitions))
	for _, c := range definitions {
		for _, sc := range c.Syscalls {
			if existing, ok := idx[sc]; ok && rejectDuplicates {
				return nil, renacer.NewParseError("attribution.FromTOML", fmt.Sprintf(
					"duplicate syscall %q in clusters %q and %q", sc, existing, c.Name), nil)
			}
			idx[sc] = c.Name
		}
	}
	return &ClusterRegistry{clusters: definitions, syscallToCluster: idx}, nil
}

func fromTOMLBytes(data []byte) (*ClusterRegistry, error) {
	var f clusterFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, renacer.NewParseError("attribution.FromTOML", "failed to parse cluster TOML", err)
	}
	return buildRegistry(f.Cluster, true)
}

// FromTOML loads a cluster registry from a TOML file on disk. Returns
// a ParseError on missing file, malformed TOML, or a syscall mapped to
// more than one cluster.
func FromTOML(path string) (*ClusterRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, renacer.NewParseError("attribution.FromTOML", "failed to read clusters file", err)
	}
	return fromTOMLBytes(data)
}

// DefaultTranspilerClusters loads the embedded default cluster pack
// (clusters-default.toml), used for zero-config single-shot compiler
// and transpiler workflows.
func DefaultTranspilerClusters() (*ClusterRegistry, error) {
	return fromTOMLBytes(defaultClusterTOML)
}

// Classify resolves syscall to its cluster, applying the cluster's
// ArgsFilter (if any) against args and fds. fds may be nil when no
// filter in the registry needs file-descriptor resolution.
func (r *ClusterRegistry) Classify(syscall string, args []string, fds *FdTable) (*ClusterDefinition, bool) {
	name, ok := r.syscallToCluster[syscall]
	if !ok {
		return nil, false
	}
	cluster, ok := r.GetCluster(name)
	if !ok {
		return nil, false
	}
	if cluster.ArgsFilter != nil && !matchesFilter(syscall, args, fds, cluster.ArgsFilter) {
		return nil, false
	}
	return cluster, true
}

func matchesFilter(syscall string, args []string, fds *FdTable, filter *ArgsFilter) bool {
	if filter.FdPathPattern != "" {
		if syscall != "ioctl" || len(args) == 0 || fds == nil {
			return false
		}
		var fd int32
		if _, err := fmt.Sscanf(args[0], "%d", &fd); err != nil {
			return false
		}
		path, ok := fds.GetPath(fd)
		if !ok {
			return false
		}
		return strings.Contains(path, strings.TrimSuffix(filter.FdPathPattern, "*"))
	}
	if filter.ArgContains != "" {
		for _, a := range args {
			if strings.Contains(a, filter.ArgContains) {
				return true
			}
		}
		return false
	}
	return true
}

// GetCluster looks up a cluster definition by name.
func (r *ClusterRegistry) GetCluster(name string) (*ClusterDefinition, bool) {
	for i := range r.clusters {
		if r.clusters[i].Name == name {
			return &r.clusters[i], true
		}
	}
	return nil, false
}

// Clusters returns every defined cluster.
func (r *ClusterRegistry) Clusters() []ClusterDefinition { return r.clusters }

// ClusterResult is the aggregated wall-time attribution for one
// cluster (or the "Unclassified" bucket).
type ClusterResult struct {
	Name             string
	TotalDurationNS  int64
	CallCount        int
	PercentOfTotal   float64
	AvgPerCallNS     float64
}

// UnclassifiedClusterName buckets spans that match no cluster in the
// registry.
const UnclassifiedClusterName = "Unclassified"

// Attribute classifies every span via registry and aggregates wall
// time per cluster, sorted by total duration descending.
func Attribute(spans []*span.Span, registry *ClusterRegistry) []ClusterResult {
	totals := map[string]int64{}
	counts := map[string]int{}
	var grandTotal int64

	for _, s := range spans {
		d := int64(s.Duration())
		name := UnclassifiedClusterName
		if c, ok := registry.Classify(s.Name, nil, nil); ok {
			name = c.Name
		}
		totals[name] += d
		counts[name]++
		grandTotal += d
	}

	results := make([]ClusterResult, 0, len(totals))
	for name, total := range totals {
		r := ClusterResult{
			Name:            name,
			TotalDurationNS: total,
			CallCount:       counts[name],
		}
		if counts[name] > 0 {
			r.AvgPerCallNS = float64(total) / float64(counts[name])
		}
		if grandTotal > 0 {
			r.PercentOfTotal = float64(total) / float64(grandTotal) * 100
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].TotalDurationNS != results[j].TotalDurationNS {
			return results[i].TotalDurationNS > results[j].TotalDurationNS
		}
		return results[i].Name < results[j].Name
	})
	return results
}

// HotspotThresholdPercent is spec §4.11's hotspot cutoff: clusters
// exceeding 5% of grand total.
const HotspotThresholdPercent = 5.0

// Hotspot pairs a ClusterResult with an explanation of why it is a
// hotspot and whether the registry expects it to be one.
type Hotspot struct {
	ClusterResult
	Explanation string
	IsExpected  bool
}

// Hotspots filters results to those exceeding HotspotThresholdPercent,
// annotated using registry metadata (expected_for_transpiler).
func Hotspots(results []ClusterResult, registry *ClusterRegistry) []Hotspot {
	var out []Hotspot
	for _, r := range results {
		if r.PercentOfTotal <= HotspotThresholdPercent {
			continue
		}
		expected := false
		explanation := fmt.Sprintf("%s accounts for %.1f%% of total wall time across %d calls",
			r.Name, r.PercentOfTotal, r.CallCount)
		if c, ok := registry.GetCluster(r.Name); ok {
			expected = c.ExpectedForTranspiler
			if expected {
				explanation += "; expected for this workload"
			} else {
				explanation += "; not expected for this workload"
			}
		}
		out = append(out, Hotspot{ClusterResult: r, Explanation: explanation, IsExpected: expected})
	}
	return out
}
