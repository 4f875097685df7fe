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
	"math"
	"strings"
)

// FlawKind tags the defect a flaw records.
type FlawKind string

const (
	// FlawOpenCondition is a precondition with no supporting causal link.
	FlawOpenCondition FlawKind = "opf"

	// FlawThreat is a step that could clobber a causal link.
	FlawThreat FlawKind = "tclf"

	// FlawDecomposition is a ground subplan awaiting unification.
	FlawDecomposition FlawKind = "dcf"
)

// DefaultFlawOrder resolves threats first, then decompositions, then open
// conditions.
var DefaultFlawOrder = []FlawKind{FlawThreat, FlawDecomposition, FlawOpenCondition}

// ParseFlawKind validates a flaw kind name.
func ParseFlawKind(s string) (FlawKind, error) {
	switch k := FlawKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FlawOpenCondition, FlawThreat, FlawDecomposition:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlawKind, s)
	}
}

// Flaw is an open defect of a plan.
//
// Which fields are set depends on Kind:
//   - opf: Step is the needing step, Condition its open precondition.
//   - tclf: Step is the threatening step, Link the threatened link.
//   - dcf: Step is the compound step, Subplan its ground subplan.
type Flaw struct {
	Kind      FlawKind
	Step      string
	Condition Condition
	Link      CausalLink
	Subplan   *Plan

	// Heuristic is the last per-flaw cost computed for an opf flaw.
	Heuristic float64

	seq int
}

// OpenCondition builds an opf flaw for step's precondition cond.
func OpenCondition(step string, cond Condition) Flaw {
	return Flaw{Kind: FlawOpenCondition, Step: step, Condition: cond, Heuristic: math.Inf(1)}
}

// Threat builds a tclf flaw for step threatening link.
func Threat(step string, link CausalLink) Flaw {
	return Flaw{Kind: FlawThreat, Step: step, Link: link}
}

// Decomposition builds a dcf flaw for step's ground subplan.
func Decomposition(step string, sub *Plan) Flaw {
	return Flaw{Kind: FlawDecomposition, Step: step, Subplan: sub}
}

// ID identifies the flaw within one plan. Inserting a flaw whose ID is
// already present is a no-op.
func (f Flaw) ID() string {
	switch f.Kind {
	case FlawOpenCondition:
		return string(f.Kind) + "|" + f.Step + "|" + f.Condition.Literal.ID
	case FlawThreat:
		return string(f.Kind) + "|" + f.Step + "|" + f.Link.ID()
	default:
		sub := ""
		if f.Subplan != nil {
			sub = f.Subplan.ID
		}
		return string(f.Kind) + "|" + f.Step + "|" + sub
	}
}

// String renders the flaw for logs.
func (f Flaw) String() string {
	switch f.Kind {
	case FlawOpenCondition:
		return fmt.Sprintf("opf(%s, %s)", short(f.Step), f.Condition)
	case FlawThreat:
		return fmt.Sprintf("tclf(%s, %s -%s-> %s)", short(f.Step),
			short(f.Link.Producer), f.Link.Condition, short(f.Link.Consumer))
	default:
		return fmt.Sprintf("dcf(%s)", short(f.Step))
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// -----------------------------------------------------------------------------
// Flaw Set
// -----------------------------------------------------------------------------

// FlawSet is the ordered, duplicate-free collection of a plan's flaws.
//
// Thread Safety: Not safe for concurrent mutation.
type FlawSet struct {
	flaws []Flaw
	ids   map[string]struct{}
	seq   int
}

// NewFlawSet creates an empty flaw set.
func NewFlawSet() *FlawSet {
	return &FlawSet{ids: make(map[string]struct{})}
}

// Insert adds f unless an equal flaw is present. Returns true if added.
func (s *FlawSet) Insert(f Flaw) bool {
	id := f.ID()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.seq++
	f.seq = s.seq
	s.ids[id] = struct{}{}
	s.flaws = append(s.flaws, f)
	return true
}

// Remove deletes the flaw with the given ID. Returns false if absent.
func (s *FlawSet) Remove(id string) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	for i, f := range s.flaws {
		if f.ID() == id {
			s.flaws = append(s.flaws[:i], s.flaws[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of flaws.
func (s *FlawSet) Len() int {
	return len(s.flaws)
}

// All returns a copy of the flaws in insertion order.
func (s *FlawSet) All() []Flaw {
	out := make([]Flaw, len(s.flaws))
	copy(out, s.flaws)
	return out
}

// OfKind returns the flaws of kind k in insertion order.
func (s *FlawSet) OfKind(k FlawKind) []Flaw {
	var out []Flaw
	for _, f := range s.flaws {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

// setHeuristic annotates the i-th flaw.
func (s *FlawSet) setHeuristic(i int, h float64) {
	s.flaws[i].Heuristic = h
}

// Next removes and returns the flaw to resolve next.
//
// Description:
//
//	Kinds are tried in the given priority order. Within the open
//	condition kind the flaw with the lowest annotated heuristic wins;
//	ties and every other kind fall back to insertion order. Kinds absent
//	from order are tried last in their insertion order.
//
// Inputs:
//
//	order - Kind priority, highest first. Nil means DefaultFlawOrder.
//
// Outputs:
//
//	Flaw - The selected flaw.
//	bool - False if the set is empty.
func (s *FlawSet) Next(order []FlawKind) (Flaw, bool) {
	if len(s.flaws) == 0 {
		return Flaw{}, false
	}
	if order == nil {
		order = DefaultFlawOrder
	}
	rank := make(map[FlawKind]int, len(order))
	for i, k := range order {
		if _, ok := rank[k]; !ok {
			rank[k] = i
		}
	}
	rankOf := func(k FlawKind) int {
		if r, ok := rank[k]; ok {
			return r
		}
		return len(order)
	}

	best := 0
	for i := 1; i < len(s.flaws); i++ {
		if s.better(s.flaws[i], s.flaws[best], rankOf) {
			best = i
		}
	}
	f := s.flaws[best]
	s.flaws = append(s.flaws[:best], s.flaws[best+1:]...)
	delete(s.ids, f.ID())
	return f, true
}

func (s *FlawSet) better(a, b Flaw, rankOf func(FlawKind) int) bool {
	if ra, rb := rankOf(a.Kind), rankOf(b.Kind); ra != rb {
		return ra < rb
	}
	if a.Kind == FlawOpenCondition && a.Heuristic != b.Heuristic {
		return a.Heuristic < b.Heuristic
	}
	return a.seq < b.seq
}

// Copy returns an independent copy. Ground subplans are shared; they are
// never mutated in place.
func (s *FlawSet) Copy() *FlawSet {
	c := &FlawSet{
		flaws: make([]Flaw, len(s.flaws)),
		ids:   make(map[string]struct{}, len(s.ids)),
		seq:   s.seq,
	}
	copy(c.flaws, s.flaws)
	for k := range s.ids {
		c.ids[k] = struct{}{}
	}
	return c
}

// String lists the flaws one per line.
func (s *FlawSet) String() string {
	var b strings.Builder
	for _, f := range s.flaws {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}
