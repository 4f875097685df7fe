// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

// -----------------------------------------------------------------------------
// Ordering Graph
// -----------------------------------------------------------------------------

// Ordering is a single "Before happens before After" constraint between
// two step identities.
type Ordering struct {
	Before string
	After  string
}

// OrderingGraph is the partial order over the steps of a plan.
//
// Description:
//
//	Edges are kept in insertion order with a set for duplicate checks.
//	The graph is allowed to become cyclic; IsInternallyConsistent reports
//	it and the search prunes such plans.
//
// Thread Safety: Not safe for concurrent mutation.
type OrderingGraph struct {
	edges []Ordering
	set   map[Ordering]struct{}
}

// NewOrderingGraph creates an empty ordering graph.
func NewOrderingGraph() *OrderingGraph {
	return &OrderingGraph{set: make(map[Ordering]struct{})}
}

// Add records before < after. Returns false if the edge already existed.
func (o *OrderingGraph) Add(before, after string) bool {
	e := Ordering{Before: before, After: after}
	if _, ok := o.set[e]; ok {
		return false
	}
	o.set[e] = struct{}{}
	o.edges = append(o.edges, e)
	return true
}

// Has reports whether the exact edge before < after exists.
func (o *OrderingGraph) Has(before, after string) bool {
	_, ok := o.set[Ordering{Before: before, After: after}]
	return ok
}

// Edges returns a copy of the edges in insertion order.
func (o *OrderingGraph) Edges() []Ordering {
	out := make([]Ordering, len(o.edges))
	copy(out, o.edges)
	return out
}

// Len returns the number of edges.
func (o *OrderingGraph) Len() int {
	return len(o.edges)
}

// Children returns the steps directly ordered after id.
func (o *OrderingGraph) Children(id string) []string {
	var out []string
	for _, e := range o.edges {
		if e.Before == id {
			out = append(out, e.After)
		}
	}
	return out
}

// Parents returns the steps directly ordered before id.
func (o *OrderingGraph) Parents(id string) []string {
	var out []string
	for _, e := range o.edges {
		if e.After == id {
			out = append(out, e.Before)
		}
	}
	return out
}

// IsPath reports whether a path of one or more edges leads from -> to.
func (o *OrderingGraph) IsPath(from, to string) bool {
	seen := map[string]bool{}
	stack := o.Children(from)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, o.Children(cur)...)
	}
	return false
}

// IsInternallyConsistent reports whether the ordering is acyclic.
//
// Description:
//
//	Three-color depth-first search over every node. A gray node reached
//	again closes a cycle.
//
// Outputs:
//
//	bool - True if no step is reachable from itself.
func (o *OrderingGraph) IsInternallyConsistent() bool {
	return isAcyclic(o.edges, func(e Ordering) (string, string) { return e.Before, e.After })
}

// Copy returns an independent copy.
func (o *OrderingGraph) Copy() *OrderingGraph {
	c := &OrderingGraph{
		edges: make([]Ordering, len(o.edges)),
		set:   make(map[Ordering]struct{}, len(o.set)),
	}
	copy(c.edges, o.edges)
	for k := range o.set {
		c.set[k] = struct{}{}
	}
	return c
}

const (
	white = iota
	gray
	black
)

// isAcyclic runs a three-color DFS over an edge list.
func isAcyclic[E any](edges []E, ends func(E) (string, string)) bool {
	adj := make(map[string][]string)
	var nodes []string
	seenNode := make(map[string]bool)
	for _, e := range edges {
		from, to := ends(e)
		adj[from] = append(adj[from], to)
		for _, n := range []string{from, to} {
			if !seenNode[n] {
				seenNode[n] = true
				nodes = append(nodes, n)
			}
		}
	}

	color := make(map[string]int, len(nodes))
	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		for _, m := range adj[n] {
			switch color[m] {
			case gray:
				return false
			case white:
				if !visit(m) {
					return false
				}
			}
		}
		color[n] = black
		return true
	}

	for _, n := range nodes {
		if color[n] == white && !visit(n) {
			return false
		}
	}
	return true
}
