// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026 The Renacer Authors.

// Package critpath computes the critical path (C9) over a causal graph:
// the root-to-leaf path carrying the greatest total span duration.
package critpath

import (
	"github.com/renacer/renacer/graph"
	"github.com/renacer/renacer/span"
)

// Path is the result of a critical-path computation.
type Path struct {
	Nodes        []int
	TotalWeightNS int64
}

// Compute finds, for each root in g, the maximum-weight root-to-leaf
// path (weight = sum of each node's span duration), then returns the
// single best path across all roots. Ties break on the smaller logical
// clock at every choice (between equal-weight children of a node, and
// between equal-weight roots), so the result is deterministic
// regardless of map/slice iteration order.
func Compute(g *graph.Graph) Path {
	n := g.NodeCount()
	if n == 0 {
		return Path{}
	}
	best := make([]int64, n)   // best[v] = heaviest path weight starting at v
	next := make([]int, n)     // next[v] = chosen child, -1 if leaf
	order := topoOrder(g)

	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		dur := int64(g.GetSpan(v).Duration())
		bestChild := -1
		var bestChildWeight int64 = -1
		for _, c := range g.Children(v) {
			w := best[c]
			if w > bestChildWeight {
				bestChildWeight = w
				bestChild = c
			} else if w == bestChildWeight && bestChild != -1 {
				if g.GetSpan(c).LogicalClock < g.GetSpan(bestChild).LogicalClock {
					bestChild = c
				}
			}
		}
		next[v] = bestChild
		if bestChild == -1 {
			best[v] = dur
		} else {
			best[v] = dur + bestChildWeight
		}
	}

	bestRoot := -1
	var bestWeight int64 = -1
	for _, r := range g.Roots() {
		if best[r] > bestWeight {
			bestWeight = best[r]
			bestRoot = r
		} else if best[r] == bestWeight && bestRoot != -1 {
			if g.GetSpan(r).LogicalClock < g.GetSpan(bestRoot).LogicalClock {
				bestRoot = r
			}
		}
	}
	if bestRoot == -1 {
		return Path{}
	}

	var nodes []int
	for v := bestRoot; v != -1; v = next[v] {
		nodes = append(nodes, v)
	}
	return Path{Nodes: nodes, TotalWeightNS: bestWeight}
}

// topoOrder returns nodes in topological order (parents before
// children) via recursive DFS postorder reversal. Assumes g.IsDAG();
// callers must check that before relying on the result.
func topoOrder(g *graph.Graph) []int {
	n := g.NodeCount()
	visited := make([]bool, n)
	order := make([]int, 0, n)

	var visit func(v int)
	visit = func(v int) {
		visited[v] = true
		for _, c := range g.Children(v) {
			if !visited[c] {
				visit(c)
			}
		}
		order = append(order, v)
	}
	for v := 0; v < n; v++ {
		if !visited[v] {
			visit(v)
		}
	}
	// order is postorder (children before parents); reverse for a
	// parents-before-children topological order.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Spans materializes the Path's node indices back into spans, in
// root-to-leaf order.
func Spans(g *graph.Graph, p Path) []*span.Span {
	out := make([]*span.Span, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		out = append(out, g.GetSpan(n))
	}
	return out
}
