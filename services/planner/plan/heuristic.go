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
	"math"
)

// DefaultHeightPenalty is the per-level cost added to an open condition of
// a compound step that no reusable step satisfies.
const DefaultHeightPenalty = 30

// -----------------------------------------------------------------------------
// Additive Reachability Heuristic
// -----------------------------------------------------------------------------

// hadd is the memo of one open condition's cost computation.
//
// Description:
//
//	cost(literal) is 0 when a reusable step produces it, +Inf when no
//	action does, otherwise the cheapest producer. cost(action) is one
//	plus the sum of its preconditions' costs. Entries are set to +Inf
//	before recursing, so dependency cycles resolve to +Inf.
//
// Thread Safety: Owned by a single computation. Never shared.
type hadd struct {
	lib      Library
	reusable map[int]bool
	literals map[string]float64
	actions  map[int]float64
}

func newHadd(lib Library, reusable map[int]bool) *hadd {
	return &hadd{
		lib:      lib,
		reusable: reusable,
		literals: make(map[string]float64),
		actions:  make(map[int]float64),
	}
}

func (h *hadd) literal(key string) float64 {
	antecedents := h.lib.Antecedents(key)
	for _, a := range antecedents {
		if h.reusable[a] {
			return 0
		}
	}
	if len(antecedents) == 0 {
		return math.Inf(1)
	}
	for _, a := range antecedents {
		if len(h.lib.Preconditions(a)) == 0 {
			return 1
		}
	}

	least := math.Inf(1)
	for _, a := range antecedents {
		v, ok := h.actions[a]
		if !ok {
			h.actions[a] = math.Inf(1)
			v = h.action(a)
			h.actions[a] = v
		}
		if v < least {
			least = v
		}
	}
	return least
}

func (h *hadd) action(n int) float64 {
	cost := 1.0
	for _, pre := range h.lib.Preconditions(n) {
		v, ok := h.literals[pre.Key()]
		if !ok {
			h.literals[pre.Key()] = math.Inf(1)
			v = h.literal(pre.Key())
			h.literals[pre.Key()] = v
		}
		if math.IsInf(v, 1) {
			return v
		}
		cost += v
	}
	return cost
}

// reusableSteps returns the step numbers of steps that may support need:
// every step other than need that is not ordered after it. The initial
// dummy step is always included.
func (p *Plan) reusableSteps(need string) map[int]bool {
	out := make(map[int]bool)
	for _, s := range p.Steps() {
		if s.ID == need || p.Ordering.IsPath(need, s.ID) {
			continue
		}
		out[s.StepNumber] = true
	}
	return out
}

// OpenConditionCost computes the cost of one open condition flaw.
//
// Description:
//
//	Returns 0 if a reusable step already produces the condition.
//	Otherwise the additive estimate plus height(need) * penalty.
//
// Inputs:
//
//	lib - The grounded library.
//	f - An opf flaw of p.
//	penalty - Cost per decomposition level of the needing step.
//
// Outputs:
//
//	float64 - The cost, possibly +Inf.
func (p *Plan) OpenConditionCost(lib Library, f Flaw, penalty float64) float64 {
	reusable := p.reusableSteps(f.Step)
	for _, a := range lib.Antecedents(f.Condition.Key()) {
		if reusable[a] {
			return 0
		}
	}
	need, _ := p.Step(f.Step)
	c := newHadd(lib, reusable).literal(f.Condition.Key())
	return c + float64(need.Height)*penalty
}

// Evaluate computes and stores the plan heuristic and ordering key.
//
// Description:
//
//	The heuristic is the sum of open condition costs. It is +Inf as soon
//	as one open condition is static and not supplied by the initial
//	step: nothing can ever make it true. Each opf flaw is annotated with
//	its own cost for flaw selection. Call after the last mutation and
//	before the plan is ranked.
//
// Inputs:
//
//	lib - The grounded library.
//	penalty - Height penalty, normally DefaultHeightPenalty.
//
// Outputs:
//
//	float64 - The heuristic.
func (p *Plan) Evaluate(lib Library, penalty float64) float64 {
	p.orderKey = p.OrderingKey()
	p.evaluated = true

	total := 0.0
	for i, f := range p.Flaws.flaws {
		if f.Kind != FlawOpenCondition {
			continue
		}
		lit := f.Condition.Literal
		if lib.IsStatic(lit.Name, lit.Truth) && !containsInt(lib.Antecedents(f.Condition.Key()), lib.InitialIndex()) {
			p.heuristic = math.Inf(1)
			return p.heuristic
		}
		c := p.OpenConditionCost(lib, f, penalty)
		p.Flaws.setHeuristic(i, c)
		total += c
	}
	p.heuristic = total
	return total
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
