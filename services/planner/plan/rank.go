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

import (
	"fmt"
	"sort"
	"strings"
)

// -----------------------------------------------------------------------------
// Ranking
// -----------------------------------------------------------------------------

// Less orders plans for the frontier.
//
// Description:
//
//	Ascending cost+heuristic, then heuristic, then cost, then number of
//	remaining flaws, then the canonical ordering key compared as a
//	string. Plans with an infinite heuristic rank behind every finite one.
//	Two plans with the same ordering key are equal under Less; the
//	frontier breaks that tie by insertion sequence.
func Less(a, b *Plan) bool {
	ha, hb := a.Heuristic(), b.Heuristic()
	ca, cb := float64(a.Cost()), float64(b.Cost())
	if fa, fb := ca+ha, cb+hb; fa != fb {
		return fa < fb
	}
	if ha != hb {
		return ha < hb
	}
	if ca != cb {
		return ca < cb
	}
	if na, nb := a.Flaws.Len(), b.Flaws.Len(); na != nb {
		return na < nb
	}
	return a.rankKey() < b.rankKey()
}

func (p *Plan) rankKey() string {
	if p.evaluated {
		return p.orderKey
	}
	return p.OrderingKey()
}

// OrderingKey serializes the ordering graph canonically.
//
// Description:
//
//	Each step is labeled "<stepnumber>#<k>" where k counts earlier steps
//	of p with the same step number, in insertion order. Each edge
//	becomes "before<after" over those labels; the edges are sorted and
//	joined with ",". Two plans built by the same sequence of resolver
//	choices get the same key regardless of the random element identities.
func (p *Plan) OrderingKey() string {
	labels := make(map[string]string)
	seen := make(map[int]int)
	for _, s := range p.Steps() {
		labels[s.ID] = fmt.Sprintf("%d#%d", s.StepNumber, seen[s.StepNumber])
		seen[s.StepNumber]++
	}
	label := func(id string) string {
		if l, ok := labels[id]; ok {
			return l
		}
		return "?"
	}

	edges := make([]string, 0, p.Ordering.Len())
	for _, o := range p.Ordering.Edges() {
		edges = append(edges, label(o.Before)+"<"+label(o.After))
	}
	sort.Strings(edges)
	return strings.Join(edges, ",")
}

// -----------------------------------------------------------------------------
// Topological Order
// -----------------------------------------------------------------------------

// TopoSort returns the step identities of p in an order consistent with
// the ordering graph, starting from the initial dummy step.
//
// Description:
//
//	Kahn's algorithm. Among steps that become ready together, the one
//	inserted into the plan first is emitted first. Steps unreachable
//	from the initial step are omitted.
//
// Outputs:
//
//	[]string - Step identities.
//	error - ErrNoOrderingRoot if the plan has no initial step, or an
//	error wrapping ErrUnknownStep if the ordering mentions a step that
//	is not in the plan.
func TopoSort(p *Plan) ([]string, error) {
	if _, ok := p.Step(p.InitialStep); !ok {
		return nil, ErrNoOrderingRoot
	}

	position := make(map[string]int)
	for i, s := range p.Steps() {
		position[s.ID] = i
	}
	indegree := make(map[string]int)
	for _, o := range p.Ordering.Edges() {
		for _, id := range []string{o.Before, o.After} {
			if _, ok := position[id]; !ok {
				return nil, fmt.Errorf("ordering references %s: %w", id, ErrUnknownStep)
			}
		}
		indegree[o.After]++
	}

	ready := []string{p.InitialStep}
	var out []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, m := range p.Ordering.Children(n) {
			indegree[m]--
			if indegree[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	return out, nil
}

// Sequence renders TopoSort as action strings.
func Sequence(p *Plan) ([]string, error) {
	ids, err := TopoSort(p)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.Action(id).String())
	}
	return out, nil
}
