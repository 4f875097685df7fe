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

// Seed builds the root plan of a search.
//
// Description:
//
//	Copies the initial-state and goal-state pseudo-actions out of lib
//	with fresh identities, orders initial before goal, and records one
//	open condition flaw per goal precondition.
//
// Inputs:
//
//	name - Plan name, usually the problem name.
//	lib - The grounded library.
//
// Outputs:
//
//	*Plan - The root plan. Not yet evaluated.
func Seed(name string, lib Library) *Plan {
	p := New(name)
	initial := lib.Step(lib.InitialIndex()).Copy(true)
	goal := lib.Step(lib.GoalIndex()).Copy(true)

	p.Graph.Union(initial.Graph)
	p.Graph.Union(goal.Graph)
	p.InitialStep = initial.Root
	p.GoalStep = goal.Root
	p.Ordering.Add(p.InitialStep, p.GoalStep)

	for _, pre := range p.Action(p.GoalStep).Preconditions() {
		p.Flaws.Insert(OpenCondition(p.GoalStep, pre))
	}
	return p
}
