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

	"github.com/AleutianAI/AleutianPOCL/services/planner/graph"
)

// Action is a graph rooted at an operator element.
//
// Description:
//
//	Preconditions and effects are the sink literals of the root's
//	precond-of and effect-of edges. They are recomputed on every call,
//	so an Action never reports stale structure after a mutation.
//
//	An Action copied out of a plan with Plan.Action is a detached view:
//	mutating it does not change the plan.
//
// Thread Safety: Not safe for concurrent mutation. Library actions are
// never mutated and may be shared.
type Action struct {
	*graph.Graph

	// GroundSubplan is the decomposition of a compound step. Nil for
	// primitive steps.
	GroundSubplan *Plan
}

// NewAction wraps g, which must be rooted at an operator.
func NewAction(g *graph.Graph) *Action {
	return &Action{Graph: g}
}

// Operator returns the root operator element.
func (a *Action) Operator() graph.Element {
	op, _ := a.Element(a.Root)
	return op
}

// Name returns the operator name.
func (a *Action) Name() string {
	return a.Operator().Name
}

// StepNumber returns the grounded library index of the action.
func (a *Action) StepNumber() int {
	return a.Operator().StepNumber
}

// Height returns the decomposition height.
func (a *Action) Height() int {
	return a.Operator().Height
}

// IsDecomp reports whether the action carries a ground subplan.
func (a *Action) IsDecomp() bool {
	return a.Operator().IsDecomp
}

// Args returns the operator's arguments in slot order.
func (a *Action) Args() []graph.Element {
	return a.Graph.Args(a.Root)
}

// Preconditions returns the conditions the action requires.
func (a *Action) Preconditions() []Condition {
	return a.conditions(graph.LabelPrecondition)
}

// Effects returns the conditions the action makes hold.
func (a *Action) Effects() []Condition {
	return a.conditions(graph.LabelEffect)
}

func (a *Action) conditions(l graph.Label) []Condition {
	lits := a.Sinks(a.Root, l)
	out := make([]Condition, 0, len(lits))
	for _, lit := range lits {
		out = append(out, NewCondition(a.Graph, lit.ID))
	}
	return out
}

// Copy returns an independent copy of the action.
//
// Inputs:
//
//	relabel - When true, every operator and literal receives a fresh
//	identity (ReplacedID is kept) so the copy can be inserted into a
//	plan next to other instances of the same library entry.
//
// Outputs:
//
//	*Action - The copy. The ground subplan, if any, is deep-copied with
//	its identities unchanged.
func (a *Action) Copy(relabel bool) *Action {
	c := &Action{Graph: a.Graph.Copy()}
	if relabel {
		c.Relabel()
	}
	if a.GroundSubplan != nil {
		c.GroundSubplan = a.GroundSubplan.Copy()
	}
	return c
}

// RemoveLiteral detaches the literal id from the action.
//
// The literal and every edge touching it are removed. The edge that
// attached it to the operator is returned so the caller can re-point it.
func (a *Action) RemoveLiteral(id string) (graph.Edge, bool) {
	return detachLiteral(a.Graph, id)
}

// String renders the action as name-stepnumber[args].
func (a *Action) String() string {
	op := a.Operator()
	return fmt.Sprintf("%s-%d%v", op.Name, op.StepNumber, argNames(a.Args()))
}

func argNames(args []graph.Element) []string {
	names := make([]string, len(args))
	for i, arg := range args {
		names[i] = arg.Name
	}
	return names
}

// detachLiteral removes a literal and returns its first structural
// incoming edge (the precond-of or effect-of edge that owned it).
func detachLiteral(g *graph.Graph, id string) (graph.Edge, bool) {
	var owner graph.Edge
	found := false
	for _, e := range g.Incoming(id) {
		if e.Label == graph.LabelPrecondition || e.Label == graph.LabelEffect {
			owner = e
			found = true
			break
		}
	}
	if !found {
		return graph.Edge{}, false
	}
	g.RemoveElement(id)
	return owner, true
}
