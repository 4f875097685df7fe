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
	"github.com/AleutianAI/AleutianPOCL/services/planner/graph"
	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

// -----------------------------------------------------------------------------
// Open condition resolvers
// -----------------------------------------------------------------------------

// NewStep resolves an open condition by inserting a library step.
//
// Description:
//
//	For every library antecedent of the condition other than the
//	initial pseudo-step, copies p, copies the antecedent with fresh
//	identities and splices it in so that its matching effect becomes the
//	needed literal. A decomposed antecedent carries a copy of its ground
//	subplan, retargeted onto the needed arguments, and raises a dcf flaw.
//	The new step's preconditions become open conditions.
//
// Inputs:
//
//	p - The plan the flaw was taken from. Not modified.
//	f - An open condition flaw of p.
//
// Outputs:
//
//	[]*plan.Plan - One child per usable antecedent.
func (s *PlanSpacePlanner) NewStep(p *plan.Plan, f plan.Flaw) []*plan.Plan {
	var children []*plan.Plan
	for _, n := range s.lib.Antecedents(f.Condition.Key()) {
		if n == s.lib.InitialIndex() {
			continue
		}
		src := s.lib.Step(n)
		if src == nil {
			continue
		}

		child := p.Copy()
		ante := src.Copy(true)
		eff, ok := s.lib.ConsistentEffect(ante, f.Condition)
		if !ok {
			continue
		}

		if ante.IsDecomp() && ante.GroundSubplan != nil {
			sub := ante.GroundSubplan
			ante.RetargetArgs(eff.Args, f.Condition.Args)
			sub.RetargetArgs(eff.Args, f.Condition.Args)
			child.Flaws.Insert(plan.Decomposition(ante.Root, sub))
		}

		edge, ok := ante.RemoveLiteral(eff.Literal.ID)
		if !ok {
			continue
		}
		edge.Sink = f.Condition.Literal.ID
		child.Graph.Union(ante.Graph)
		child.Connect(edge)

		cond := plan.NewCondition(child.Graph, f.Condition.Literal.ID)
		s.addStep(child, ante.Operator(), f.Step, cond, true)
		children = append(children, child)
	}
	return children
}

// Reuse resolves an open condition with a step already in the plan.
//
// Description:
//
//	For every step of p that is a library antecedent of the condition
//	and is not the needing step, rebinds the needed literal onto that
//	step's matching effect and links the two. A pairing where both steps
//	are decomposed is rejected unless the needed literal and the matched
//	effect bind identical arguments. The steps' own parameter lists may
//	differ. No open conditions are added.
//
// Inputs:
//
//	p - The plan the flaw was taken from. Not modified.
//	f - An open condition flaw of p.
//
// Outputs:
//
//	[]*plan.Plan - One child per reusable step.
func (s *PlanSpacePlanner) Reuse(p *plan.Plan, f plan.Flaw) []*plan.Plan {
	antecedents := make(map[int]bool)
	for _, n := range s.lib.Antecedents(f.Condition.Key()) {
		antecedents[n] = true
	}
	need, ok := p.Step(f.Step)
	if !ok {
		return nil
	}

	var children []*plan.Plan
	for _, st := range p.Steps() {
		if st.ID == f.Step || !antecedents[st.StepNumber] {
			continue
		}

		child := p.Copy()
		old := child.Action(st.ID)
		eff, ok := s.lib.ConsistentEffect(old, f.Condition)
		if !ok {
			continue
		}
		if st.IsDecomp && need.IsDecomp && !graph.IdenticalArgs(f.Condition.Args, eff.Args) {
			continue
		}
		if _, ok := child.ReplaceLiteral(f.Condition.Literal.ID, eff.Literal.ID); !ok {
			continue
		}

		cond := plan.NewCondition(child.Graph, eff.Literal.ID)
		s.addStep(child, st, f.Step, cond, false)
		children = append(children, child)
	}
	return children
}

// addStep orders, links and threat-checks a step that now supports need.
func (s *PlanSpacePlanner) addStep(p *plan.Plan, add graph.Element, need string, cond plan.Condition, isNew bool) {
	if add.ID != p.InitialStep {
		p.Ordering.Add(p.InitialStep, add.ID)
		p.Ordering.Add(add.ID, p.GoalStep)
	}
	if need != p.GoalStep {
		p.Ordering.Add(p.InitialStep, need)
		p.Ordering.Add(need, p.GoalStep)
	}
	p.Ordering.Add(add.ID, need)

	link := p.Links.Add(add.ID, need, cond)
	threats := p.DetectThreatsForLink(s.lib, link)

	if isNew {
		for _, pre := range p.Action(add.ID).Preconditions() {
			p.Flaws.Insert(plan.OpenCondition(add.ID, pre))
		}
		threats = append(threats, p.DetectThreatsForStep(s.lib, add.ID)...)
	}
	for _, t := range threats {
		p.Flaws.Insert(t)
	}
}

// -----------------------------------------------------------------------------
// Threat resolvers
// -----------------------------------------------------------------------------

// ResolveThreat orders a threatening step outside its link.
//
// Description:
//
//	Promotion orders the link's consumer before the threat; demotion
//	orders the threat before the link's producer. Each candidate is kept
//	only if the ordering graph stays acyclic.
//
// Inputs:
//
//	p - The plan the flaw was taken from. Not modified.
//	f - A threat flaw of p.
//
// Outputs:
//
//	[]*plan.Plan - Zero, one or two children.
func (s *PlanSpacePlanner) ResolveThreat(p *plan.Plan, f plan.Flaw) []*plan.Plan {
	var children []*plan.Plan

	promoted := p.Copy()
	promoted.Ordering.Add(f.Link.Consumer, f.Step)
	if promoted.Ordering.IsInternallyConsistent() {
		children = append(children, promoted)
	}

	demoted := p.Copy()
	demoted.Ordering.Add(f.Step, f.Link.Producer)
	if demoted.Ordering.IsInternallyConsistent() {
		children = append(children, demoted)
	}
	return children
}

// -----------------------------------------------------------------------------
// Decomposition resolver
// -----------------------------------------------------------------------------

// Decompose hands a decomposition flaw to the Unifier and re-scans every
// result for threatened causal links.
func (s *PlanSpacePlanner) Decompose(p *plan.Plan, f plan.Flaw) []*plan.Plan {
	if f.Subplan == nil {
		return nil
	}
	results := s.unify.Unify(s.lib, p, f)
	for _, r := range results {
		for _, t := range r.DetectThreats(s.lib) {
			r.Flaws.Insert(t)
		}
	}
	return results
}
