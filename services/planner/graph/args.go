// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

// -----------------------------------------------------------------------------
// Argument Bindings
// -----------------------------------------------------------------------------

// RetargetArgs rebinds every argument slot pointing at from[i] to to[i].
//
// Description:
//
//	Used when a decomposed step is spliced in: the arguments of the effect
//	that supports the needed precondition are replaced by the arguments of
//	the precondition itself, everywhere in g. Target arguments missing from
//	g are added. Pairs are matched positionally; extra entries in the
//	longer slice are ignored.
//
// Inputs:
//
//	from - Arguments currently bound in g.
//	to - Replacement arguments.
//
// Outputs:
//
//	int - Number of edges rewritten.
func (g *Graph) RetargetArgs(from, to []Element) int {
	n := len(from)
	if len(to) < n {
		n = len(to)
	}
	mapping := make(map[string]Element, n)
	for i := 0; i < n; i++ {
		if from[i].ID != to[i].ID {
			mapping[from[i].ID] = to[i]
		}
	}
	if len(mapping) == 0 {
		return 0
	}

	rewritten := 0
	for i, e := range g.edges {
		if e.Label != LabelArg {
			continue
		}
		if target, ok := mapping[e.Sink]; ok {
			if !g.Has(target.ID) {
				g.Add(target)
			}
			e.Sink = target.ID
			g.edges[i] = e
			rewritten++
		}
	}
	return rewritten
}

// IdenticalArgs reports whether two argument lists bind the same elements
// in the same order.
func IdenticalArgs(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// IsInternallyConsistent checks that no element binds one argument slot to
// two different arguments and that every slot binds an argument.
//
// Description:
//
//	This is the structural half of plan consistency. Conflicting bindings
//	arise when splicing merges two copies of the same library element
//	whose slots were retargeted differently.
//
// Outputs:
//
//	bool - True if every (element, slot) pair has exactly one binding.
func (g *Graph) IsInternallyConsistent() bool {
	type slotKey struct {
		source string
		slot   int
	}
	bound := make(map[slotKey]string)
	for _, e := range g.edges {
		if e.Label != LabelArg {
			continue
		}
		sink, ok := g.elements[e.Sink]
		if !ok || sink.Kind != KindArgument {
			return false
		}
		k := slotKey{source: e.Source, slot: e.Slot}
		if prev, seen := bound[k]; seen && prev != e.Sink {
			return false
		}
		bound[k] = e.Sink
	}
	return true
}
