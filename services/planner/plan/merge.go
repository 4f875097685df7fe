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
	"github.com/AleutianAI/AleutianPOCL/services/planner/graph"
)

// -----------------------------------------------------------------------------
// Merge and Splice
// -----------------------------------------------------------------------------

// MergeActions unions a set of actions into one plan with empty ordering
// and causal-link graphs.
//
// Description:
//
//	Used to assemble the ground subplan of a compound action from its
//	sub-steps. At least one action must sit at the given height.
//
// Inputs:
//
//	actions - The sub-steps. They are unioned as-is; callers relabel
//	first when the same library action appears more than once.
//	height - The height at least one action must have.
//
// Outputs:
//
//	*Plan - The merged plan, or nil if no action has the required height.
//	Callers must check for nil.
func MergeActions(actions []*Action, height int) *Plan {
	found := false
	for _, a := range actions {
		if a.Height() == height {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	p := New("subplan")
	for _, a := range actions {
		p.Graph.Union(a.Graph)
	}
	return p
}

// SpliceResult describes what Splice did.
type SpliceResult struct {
	// Mapping sends every subplan element identity to its plan identity.
	Mapping map[string]string

	// NewSteps are plan identities of sub-steps that were copied in.
	NewSteps []string

	// SharedSteps are plan identities of existing steps that sub-steps
	// were unified with.
	SharedSteps []string
}

// Splice copies a ground subplan into p, re-keying through ReplacedID.
//
// Description:
//
//	Arguments are shared by identity. When share is true, a sub-step
//	whose ReplacedID matches an existing non-dummy step of p is unified
//	with that step (each existing step at most once), and the sub-step's
//	literals are matched against that step's literals by ReplacedID.
//	Everything else is copied in under a fresh identity. The subplan's
//	edges, orderings and causal links are then added under the mapping.
//	sub is not modified.
//
// Inputs:
//
//	sub - The ground subplan.
//	share - Whether existing steps may be reused.
//
// Outputs:
//
//	SpliceResult - The identity mapping and the new/shared step lists.
func (p *Plan) Splice(sub *Plan, share bool) SpliceResult {
	res := SpliceResult{Mapping: make(map[string]string)}
	used := make(map[string]bool)
	shared := make(map[string]bool)

	for _, e := range sub.Steps() {
		if share {
			ex, ok := p.FindByReplacedID(graph.KindOperator, e.ReplacedID)
			if ok && !used[ex.ID] && ex.ID != p.InitialStep && ex.ID != p.GoalStep {
				used[ex.ID] = true
				shared[e.ID] = true
				res.Mapping[e.ID] = ex.ID
				res.SharedSteps = append(res.SharedSteps, ex.ID)
				continue
			}
		}
		fresh := e
		fresh.ID = graph.NewID()
		p.Add(fresh)
		res.Mapping[e.ID] = fresh.ID
		res.NewSteps = append(res.NewSteps, fresh.ID)
	}

	for _, e := range sub.ElementsOfKind(graph.KindArgument) {
		if !p.Has(e.ID) {
			p.Add(e)
		}
		res.Mapping[e.ID] = e.ID
	}

	for _, lit := range sub.ElementsOfKind(graph.KindLiteral) {
		if target, ok := p.sharedLiteral(sub, lit, shared, res.Mapping); ok {
			res.Mapping[lit.ID] = target
			continue
		}
		fresh := lit
		fresh.ID = graph.NewID()
		p.Add(fresh)
		res.Mapping[lit.ID] = fresh.ID
	}

	for _, e := range sub.Edges() {
		src, okS := res.Mapping[e.Source]
		dst, okD := res.Mapping[e.Sink]
		if !okS || !okD {
			continue
		}
		e.Source, e.Sink = src, dst
		p.Connect(e)
	}
	for _, o := range sub.Ordering.Edges() {
		p.Ordering.Add(res.Mapping[o.Before], res.Mapping[o.After])
	}
	for _, l := range sub.Links.Links() {
		lit := res.Mapping[l.Condition.Literal.ID]
		p.Links.Add(res.Mapping[l.Producer], res.Mapping[l.Consumer], NewCondition(p.Graph, lit))
	}
	return res
}

// sharedLiteral finds the literal of a unified step that lit should map to.
func (p *Plan) sharedLiteral(sub *Plan, lit graph.Element, shared map[string]bool, mapping map[string]string) (string, bool) {
	for _, in := range sub.Incoming(lit.ID) {
		if in.Label != graph.LabelPrecondition && in.Label != graph.LabelEffect {
			continue
		}
		if !shared[in.Source] {
			continue
		}
		for _, cand := range p.Sinks(mapping[in.Source], in.Label) {
			if cand.ReplacedID == lit.ReplacedID {
				return cand.ID, true
			}
		}
	}
	return "", false
}
