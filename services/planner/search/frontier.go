// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

// entry is one frontier slot. seq breaks ties that plan.Less leaves open.
type entry struct {
	plan *plan.Plan
	seq  uint64
}

type entries []entry

func (e entries) Len() int { return len(e) }
func (e entries) Less(i, j int) bool {
	if plan.Less(e[i].plan, e[j].plan) {
		return true
	}
	if plan.Less(e[j].plan, e[i].plan) {
		return false
	}
	return e[i].seq < e[j].seq
}
func (e entries) Swap(i, j int) { e[i], e[j] = e[j], e[i] }
func (e *entries) Push(x any)   { *e = append(*e, x.(entry)) }
func (e *entries) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	old[n-1] = entry{}
	*e = old[:n-1]
	return it
}

// Frontier is a best-first priority queue of plan snapshots.
//
// Plans are ranked by plan.Less, then by push order. A plan must not be
// mutated after it is pushed.
//
// Thread Safety: Not safe for concurrent use.
type Frontier struct {
	items entries
	seq   uint64
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{}
}

// Push adds a plan.
func (f *Frontier) Push(p *plan.Plan) {
	f.seq++
	heap.Push(&f.items, entry{plan: p, seq: f.seq})
}

// Pop removes and returns the best plan, or nil if empty.
func (f *Frontier) Pop() *plan.Plan {
	if len(f.items) == 0 {
		return nil
	}
	return heap.Pop(&f.items).(entry).plan
}

// Peek returns the best plan without removing it, or nil if empty.
func (f *Frontier) Peek() *plan.Plan {
	if len(f.items) == 0 {
		return nil
	}
	return f.items[0].plan
}

// Len returns the number of queued plans.
func (f *Frontier) Len() int {
	return len(f.items)
}

// String lists the queued plans in rank order.
func (f *Frontier) String() string {
	sorted := make(entries, len(f.items))
	copy(sorted, f.items)
	sort.Sort(sorted)

	var b strings.Builder
	fmt.Fprintf(&b, "Frontier (%d):\n", len(sorted))
	for _, e := range sorted {
		fmt.Fprintf(&b, "\t%s cost %d + h %g\n", e.plan.ID, e.plan.Cost(), e.plan.Heuristic())
	}
	return b.String()
}
