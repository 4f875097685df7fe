// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan implements the partial plan of a plan-space planner.
//
// A Plan is an element arena (steps, literals, arguments) plus an ordering
// graph, a causal-link graph and a flaw set. Search branches by deep
// copying a plan and mutating the copy; a plan handed to the frontier is
// never mutated again.
//
// # Derived Views
//
// Action and Condition are projections computed from the arena on demand.
// Nothing derived is cached across a structural edit except the ranking
// fields written by Evaluate, which callers invoke once, after the last
// mutation.
//
// # Thread Safety
//
// Plans are not safe for concurrent mutation. A plan that is no longer
// mutated may be read concurrently.
package plan

import (
	"fmt"
	"math"
	"strings"

	"github.com/AleutianAI/AleutianPOCL/services/planner/graph"
)

// Plan is a partial plan.
type Plan struct {
	*graph.Graph

	// Name labels the plan in logs and persisted output.
	Name string

	Ordering *OrderingGraph
	Links    *CausalLinkGraph
	Flaws    *FlawSet

	// InitialStep and GoalStep are the identities of the dummy steps.
	InitialStep string
	GoalStep    string

	heuristic float64
	evaluated bool
	orderKey  string
}

// New creates an empty plan.
func New(name string) *Plan {
	return &Plan{
		Graph:    graph.New(),
		Name:     name,
		Ordering: NewOrderingGraph(),
		Links:    NewCausalLinkGraph(),
		Flaws:    NewFlawSet(),
	}
}

// Steps returns every operator element in insertion order.
func (p *Plan) Steps() []graph.Element {
	return p.ElementsOfKind(graph.KindOperator)
}

// Step looks up an operator by identity.
func (p *Plan) Step(id string) (graph.Element, bool) {
	e, ok := p.Element(id)
	if !ok || e.Kind != graph.KindOperator {
		return graph.Element{}, false
	}
	return e, true
}

// Action returns the detached action view of step id.
func (p *Plan) Action(id string) *Action {
	return NewAction(p.Subgraph(id))
}

// StepGraphs returns the action view of every step, recomputed.
func (p *Plan) StepGraphs() []*Action {
	steps := p.Steps()
	out := make([]*Action, 0, len(steps))
	for _, s := range steps {
		out = append(out, p.Action(s.ID))
	}
	return out
}

// Cost is the number of steps other than the two dummies.
func (p *Plan) Cost() int {
	return len(p.Steps()) - 2
}

// Heuristic returns the value computed by the last Evaluate, or +Inf if
// the plan was never evaluated.
func (p *Plan) Heuristic() float64 {
	if !p.evaluated {
		return math.Inf(1)
	}
	return p.heuristic
}

// Copy returns a deep copy with a fresh plan identity.
//
// Description:
//
//	Elements, edges, orderings, causal links, the non-threat cache and
//	the flaw set are all copied. Mutating the copy never changes p.
//
// Outputs:
//
//	*Plan - The copy. Its ranking fields are reset.
func (p *Plan) Copy() *Plan {
	g := p.Graph.Copy()
	g.ID = graph.NewID()
	return &Plan{
		Graph:       g,
		Name:        p.Name,
		Ordering:    p.Ordering.Copy(),
		Links:       p.Links.Copy(),
		Flaws:       p.Flaws.Copy(),
		InitialStep: p.InitialStep,
		GoalStep:    p.GoalStep,
	}
}

// IsInternallyConsistent reports whether the plan may still be expanded:
// the ordering is acyclic, the causal links are acyclic with no
// self-links, and no element binds an argument slot twice.
func (p *Plan) IsInternallyConsistent() bool {
	return p.Ordering.IsInternallyConsistent() &&
		p.Links.IsInternallyConsistent() &&
		p.Graph.IsInternallyConsistent()
}

// RemoveLiteral detaches literal id and returns the edge that owned it.
func (p *Plan) RemoveLiteral(id string) (graph.Edge, bool) {
	return detachLiteral(p.Graph, id)
}

// ReplaceLiteral swaps literal oldID for newID.
//
// Description:
//
//	The old literal and its argument edges are removed. The single
//	structural edge that owned it is re-pointed at newID and kept. Every
//	other edge is left alone.
//
// Inputs:
//
//	oldID - The literal being replaced. Must be in the plan.
//	newID - The literal taking its place. Must be in the plan.
//
// Outputs:
//
//	graph.Edge - The re-pointed edge.
//	bool - False if either literal is missing or oldID has no owner.
func (p *Plan) ReplaceLiteral(oldID, newID string) (graph.Edge, bool) {
	if !p.Has(newID) {
		return graph.Edge{}, false
	}
	owner, ok := detachLiteral(p.Graph, oldID)
	if !ok {
		return graph.Edge{}, false
	}
	owner.Sink = newID
	p.Connect(owner)
	return owner, true
}

// RetargetArgs rebinds arguments like graph.Graph.RetargetArgs and then
// rebuilds causal-link conditions so their frozen keys follow.
func (p *Plan) RetargetArgs(from, to []graph.Element) int {
	n := p.Graph.RetargetArgs(from, to)
	if n == 0 {
		return 0
	}
	p.Links = p.Links.remap(nil, func(l CausalLink) Condition {
		return NewCondition(p.Graph, l.Condition.Literal.ID)
	})
	return n
}

// Union adds other's elements, edges, orderings, links and flaws to p.
func (p *Plan) Union(other *Plan) {
	p.Graph.Union(other.Graph)
	for _, o := range other.Ordering.Edges() {
		p.Ordering.Add(o.Before, o.After)
	}
	for _, l := range other.Links.Links() {
		p.Links.Add(l.Producer, l.Consumer, l.Condition)
	}
	for _, f := range other.Flaws.All() {
		p.Flaws.Insert(f)
	}
}

// stepLabel renders a step for Plan.String.
func (p *Plan) stepLabel(id string) string {
	if _, ok := p.Step(id); !ok {
		return short(id)
	}
	return p.Action(id).String()
}

// String renders cost, heuristic, steps, orderings and causal links.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PLAN %s %s\ncost %d + heuristic %v\n", p.Name, short(p.ID), p.Cost(), p.Heuristic())
	b.WriteString("*Steps:\n")
	for _, a := range p.StepGraphs() {
		fmt.Fprintf(&b, "\t%s\n", a)
	}
	b.WriteString("*Orderings:\n")
	for _, o := range p.Ordering.Edges() {
		fmt.Fprintf(&b, "\t%s < %s\n", p.stepLabel(o.Before), p.stepLabel(o.After))
	}
	b.WriteString("*CausalLinks:\n")
	for _, l := range p.Links.Links() {
		fmt.Fprintf(&b, "\t%s --%s--> %s\n", p.stepLabel(l.Producer), l.Condition, p.stepLabel(l.Consumer))
	}
	return b.String()
}
