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
	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

// Unifier resolves decomposition flaws.
//
// Implementations must not modify p and must return independent plans.
// Threat detection on the results is done by the caller.
type Unifier interface {
	Unify(lib plan.Library, p *plan.Plan, f plan.Flaw) []*plan.Plan
}

// SpliceUnifier unifies a ground subplan with its parent by splicing.
//
// Description:
//
//	Produces up to two plans: one where sub-steps are unified with
//	matching existing steps, and one where every sub-step is a fresh
//	copy. The first is skipped when nothing could be shared, since it
//	would equal the second. Spliced steps are bracketed by the dummy
//	steps. Preconditions of new steps that no subplan link supports
//	become open conditions, and new compound steps raise their own
//	decomposition flaws.
//
// Thread Safety: Stateless.
type SpliceUnifier struct{}

// Unify implements Unifier.
func (SpliceUnifier) Unify(lib plan.Library, p *plan.Plan, f plan.Flaw) []*plan.Plan {
	var out []*plan.Plan
	for _, share := range []bool{true, false} {
		child := p.Copy()
		res := child.Splice(f.Subplan, share)
		if share && len(res.SharedSteps) == 0 {
			continue
		}

		supported := make(map[string]bool)
		for _, l := range child.Links.Links() {
			supported[l.Consumer+"|"+l.Condition.Literal.ID] = true
		}

		for _, id := range res.NewSteps {
			child.Ordering.Add(child.InitialStep, id)
			child.Ordering.Add(id, child.GoalStep)

			for _, pre := range child.Action(id).Preconditions() {
				if !supported[id+"|"+pre.Literal.ID] {
					child.Flaws.Insert(plan.OpenCondition(id, pre))
				}
			}

			st, ok := child.Step(id)
			if !ok || !st.IsDecomp {
				continue
			}
			if a := lib.Step(st.StepNumber); a != nil && a.GroundSubplan != nil {
				child.Flaws.Insert(plan.Decomposition(id, a.GroundSubplan.Copy()))
			}
		}
		out = append(out, child)
	}
	return out
}
