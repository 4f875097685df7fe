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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPOCL/services/planner/graph"
)

var (
	objA = graph.Element{ID: "obj-a", Kind: graph.KindArgument, Name: "a"}
	objB = graph.Element{ID: "obj-b", Kind: graph.KindArgument, Name: "b"}
)

// literal adds a literal with the given args to g and returns its ID.
func literal(g *graph.Graph, name string, truth bool, args ...graph.Element) string {
	id := graph.NewID()
	g.Add(graph.Element{ID: id, Kind: graph.KindLiteral, Name: name, Truth: truth, ReplacedID: id})
	for i, a := range args {
		if !g.Has(a.ID) {
			g.Add(a)
		}
		g.Connect(graph.Edge{Source: id, Sink: a.ID, Label: graph.LabelArg, Slot: i})
	}
	return id
}

// action builds a one-operator action with the given step number.
func action(name string, n int, pres, effs []func(*graph.Graph) string) *Action {
	opID := graph.NewID()
	g := graph.NewRooted(graph.Element{ID: opID, Kind: graph.KindOperator, Name: name, StepNumber: n, ReplacedID: opID})
	for _, mk := range pres {
		g.Connect(graph.Edge{Source: opID, Sink: mk(g), Label: graph.LabelPrecondition})
	}
	for _, mk := range effs {
		g.Connect(graph.Edge{Source: opID, Sink: mk(g), Label: graph.LabelEffect})
	}
	return NewAction(g)
}

func lit(name string, truth bool, args ...graph.Element) func(*graph.Graph) string {
	return func(g *graph.Graph) string { return literal(g, name, truth, args...) }
}

func TestCondition_IsOpposite(t *testing.T) {
	g := graph.New()
	pa := NewCondition(g, literal(g, "p", true, objA))
	notPa := NewCondition(g, literal(g, "p", false, objA))
	notPb := NewCondition(g, literal(g, "p", false, objB))
	qa := NewCondition(g, literal(g, "q", false, objA))

	tests := []struct {
		name string
		a, b Condition
		want bool
	}{
		{"self", pa, pa, false},
		{"opposite", pa, notPa, true},
		{"different args", pa, notPb, false},
		{"different predicate", pa, qa, false},
		{"same polarity", notPa, notPb, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.IsOpposite(tt.b))
			assert.Equal(t, tt.a.IsOpposite(tt.b), tt.b.IsOpposite(tt.a), "symmetric")
		})
	}
}

func TestCondition_KeyAndString(t *testing.T) {
	g := graph.New()
	c := NewCondition(g, literal(g, "at", false, objA, objB))

	assert.Equal(t, "!at(a,b)", c.Key())
	assert.Equal(t, "at(a,b)", c.Negated())
	assert.Equal(t, "not-at[a b]", c.String())
	assert.Equal(t, []string{"a", "b"}, c.ArgNames())

	// The key is frozen at construction.
	g.RetargetArgs([]graph.Element{objA}, []graph.Element{objB})
	assert.Equal(t, "!at(a,b)", c.Key())
	assert.Equal(t, "!at(b,b)", NewCondition(g, c.Literal.ID).Key())
}

func TestAction_Views(t *testing.T) {
	a := action("A", 3, []func(*graph.Graph) string{lit("p", true, objA)},
		[]func(*graph.Graph) string{lit("q", true, objA), lit("p", false, objA)})
	a.Connect(graph.Edge{Source: a.Root, Sink: objA.ID, Label: graph.LabelArg, Slot: 0})

	assert.Equal(t, 3, a.StepNumber())
	assert.Equal(t, "A-3[a]", a.String())
	require.Len(t, a.Preconditions(), 1)
	require.Len(t, a.Effects(), 2)

	eff := a.Effects()[0]
	edge, ok := a.RemoveLiteral(eff.Literal.ID)
	require.True(t, ok)
	assert.Equal(t, graph.LabelEffect, edge.Label)
	assert.Equal(t, a.Root, edge.Source)
	assert.Len(t, a.Effects(), 1, "effects are recomputed after a mutation")

	_, ok = a.RemoveLiteral("missing")
	assert.False(t, ok)
}

func TestAction_CopyRelabel(t *testing.T) {
	a := action("A", 0, nil, []func(*graph.Graph) string{lit("q", true, objA)})
	c := a.Copy(true)

	assert.NotEqual(t, a.Root, c.Root)
	assert.Equal(t, a.Operator().ReplacedID, c.Operator().ReplacedID)
	assert.Equal(t, a.Effects()[0].Key(), c.Effects()[0].Key())
	assert.NotEqual(t, a.Effects()[0].Literal.ID, c.Effects()[0].Literal.ID)
}

func TestOrderingGraph(t *testing.T) {
	o := NewOrderingGraph()
	assert.True(t, o.Add("i", "x"))
	assert.False(t, o.Add("i", "x"))
	o.Add("x", "y")
	o.Add("y", "g")

	assert.True(t, o.IsPath("i", "g"))
	assert.False(t, o.IsPath("g", "i"))
	assert.False(t, o.IsPath("x", "x"), "a path needs at least one edge")
	assert.True(t, o.IsInternallyConsistent())
	assert.Equal(t, []string{"x"}, o.Parents("y"))
	assert.Equal(t, []string{"y"}, o.Children("x"))

	c := o.Copy()
	c.Add("g", "i")
	assert.False(t, c.IsInternallyConsistent())
	assert.True(t, c.IsPath("x", "x"))
	assert.True(t, o.IsInternallyConsistent(), "copy does not alias")
	assert.Equal(t, 3, o.Len())
}

func TestCausalLinkGraph(t *testing.T) {
	g := graph.New()
	cond := NewCondition(g, literal(g, "q", true))
	c := NewCausalLinkGraph()
	l := c.Add("s1", "s2", cond)
	assert.Equal(t, l, c.Add("s1", "s2", cond))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.IsInternallyConsistent())

	c.MarkNonThreat(l, "s3")
	cp := c.Copy()
	cp.MarkNonThreat(l, "s4")
	assert.True(t, c.IsNonThreat(l, "s3"))
	assert.False(t, c.IsNonThreat(l, "s4"), "cache is copied, not shared")
	assert.True(t, cp.IsNonThreat(l, "s4"))

	cp.Add("s2", "s1", cond)
	assert.False(t, cp.IsInternallyConsistent())

	self := NewCausalLinkGraph()
	self.Add("s1", "s1", cond)
	assert.False(t, self.IsInternallyConsistent())
}

func TestFlawSet_Next(t *testing.T) {
	g := graph.New()
	c1 := NewCondition(g, literal(g, "p", true))
	c2 := NewCondition(g, literal(g, "q", true))
	link := CausalLink{Producer: "a", Consumer: "b", Condition: c1}

	s := NewFlawSet()
	assert.True(t, s.Insert(OpenCondition("g", c1)))
	assert.False(t, s.Insert(OpenCondition("g", c1)), "duplicates are ignored")
	s.Insert(OpenCondition("g", c2))
	s.Insert(Threat("x", link))
	s.Insert(Decomposition("d", New("sub")))
	require.Equal(t, 4, s.Len())

	s.setHeuristic(0, 5)
	s.setHeuristic(1, 2)

	f, ok := s.Next(nil)
	require.True(t, ok)
	assert.Equal(t, FlawThreat, f.Kind)

	f, _ = s.Next(nil)
	assert.Equal(t, FlawDecomposition, f.Kind)

	f, _ = s.Next(nil)
	assert.Equal(t, "q", f.Condition.Literal.Name, "cheapest open condition first")

	f, _ = s.Next(nil)
	assert.Equal(t, "p", f.Condition.Literal.Name)

	_, ok = s.Next(nil)
	assert.False(t, ok)
}

func TestFlawSet_CustomOrderAndCopy(t *testing.T) {
	g := graph.New()
	c1 := NewCondition(g, literal(g, "p", true))
	link := CausalLink{Producer: "a", Consumer: "b", Condition: c1}

	s := NewFlawSet()
	s.Insert(Threat("x", link))
	s.Insert(OpenCondition("g", c1))

	cp := s.Copy()
	f, _ := cp.Next([]FlawKind{FlawOpenCondition, FlawThreat})
	assert.Equal(t, FlawOpenCondition, f.Kind)
	assert.Equal(t, 2, s.Len(), "original untouched")
	assert.True(t, math.IsInf(s.All()[1].Heuristic, 1))

	assert.True(t, s.Remove(s.All()[0].ID()))
	assert.False(t, s.Remove("nope"))
	assert.Len(t, s.OfKind(FlawThreat), 0)
}

func TestParseFlawKind(t *testing.T) {
	k, err := ParseFlawKind(" TCLF ")
	require.NoError(t, err)
	assert.Equal(t, FlawThreat, k)

	_, err = ParseFlawKind("bogus")
	assert.ErrorIs(t, err, ErrUnknownFlawKind)
}

func TestMergeActions(t *testing.T) {
	a := action("A", 0, nil, []func(*graph.Graph) string{lit("q", true, objA)})
	b := action("B", 1, nil, nil)

	assert.Nil(t, MergeActions([]*Action{a, b}, 1), "no action at height 1")

	p := MergeActions([]*Action{a, b}, 0)
	require.NotNil(t, p)
	assert.Len(t, p.Steps(), 2)
	assert.Equal(t, 0, p.Ordering.Len())
	assert.Equal(t, 0, p.Links.Len())
}

// twoStepPlan builds init -> s -> goal where s produces q for goal.
func twoStepPlan(t *testing.T) (*Plan, string) {
	t.Helper()
	initial := action("init", 1, nil, nil)
	goal := action("goal", 2, []func(*graph.Graph) string{lit("q", true, objA)}, nil)
	s := action("A", 0, nil, []func(*graph.Graph) string{lit("q", true, objA)})

	p := New("test")
	p.Graph.Union(initial.Graph)
	p.Graph.Union(goal.Graph)
	p.Graph.Union(s.Graph)
	p.InitialStep, p.GoalStep = initial.Root, goal.Root
	p.Ordering.Add(p.InitialStep, p.GoalStep)
	p.Ordering.Add(p.InitialStep, s.Root)
	p.Ordering.Add(s.Root, p.GoalStep)

	pre := goal.Preconditions()[0]
	eff := s.Effects()[0]
	_, ok := p.ReplaceLiteral(pre.Literal.ID, eff.Literal.ID)
	require.True(t, ok)
	p.Links.Add(s.Root, p.GoalStep, NewCondition(p.Graph, eff.Literal.ID))
	return p, s.Root
}

func TestPlan_CopyIsolation(t *testing.T) {
	p, s := twoStepPlan(t)
	p.Flaws.Insert(OpenCondition(s, NewCondition(p.Graph, p.Action(p.GoalStep).Preconditions()[0].Literal.ID)))

	elements := p.Len()
	edges := len(p.Edges())
	orderings := p.Ordering.Len()
	links := p.Links.Len()
	flaws := p.Flaws.Len()

	c := p.Copy()
	assert.NotEqual(t, p.ID, c.ID)

	c.RemoveElement(s)
	c.Ordering.Add(p.GoalStep, p.InitialStep)
	c.Links.Add("x", "y", Condition{})
	c.Flaws.Next(nil)
	c.Add(graph.Element{ID: "extra", Kind: graph.KindOperator})

	assert.Equal(t, elements, p.Len())
	assert.Equal(t, edges, len(p.Edges()))
	assert.Equal(t, orderings, p.Ordering.Len())
	assert.Equal(t, links, p.Links.Len())
	assert.Equal(t, flaws, p.Flaws.Len())
	assert.True(t, p.IsInternallyConsistent())
	assert.False(t, c.IsInternallyConsistent())
}

func TestPlan_ReplaceLiteral(t *testing.T) {
	p, s := twoStepPlan(t)

	pres := p.Action(p.GoalStep).Preconditions()
	effs := p.Action(s).Effects()
	require.Len(t, pres, 1)
	require.Len(t, effs, 1)
	assert.Equal(t, pres[0].Literal.ID, effs[0].Literal.ID, "goal now consumes the producer's literal")

	_, ok := p.ReplaceLiteral("missing", effs[0].Literal.ID)
	assert.False(t, ok)
	_, ok = p.ReplaceLiteral(effs[0].Literal.ID, "missing")
	assert.False(t, ok)
}

func TestPlan_CostStringAndSort(t *testing.T) {
	p, s := twoStepPlan(t)
	assert.Equal(t, 1, p.Cost())
	assert.True(t, math.IsInf(p.Heuristic(), 1), "not evaluated yet")

	order, err := TopoSort(p)
	require.NoError(t, err)
	assert.Equal(t, []string{p.InitialStep, s, p.GoalStep}, order)

	seq, err := Sequence(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"init-1[]", "A-0[]", "goal-2[]"}, seq)

	out := p.String()
	assert.Contains(t, out, "*Steps:")
	assert.Contains(t, out, "A-0[] --q[a]--> goal-2[]")

	empty := New("empty")
	_, err = TopoSort(empty)
	assert.ErrorIs(t, err, ErrNoOrderingRoot)
}

// rank sets the ranking fields the way Evaluate would.
func rank(p *Plan, h float64) *Plan {
	p.heuristic, p.evaluated = h, true
	p.orderKey = p.OrderingKey()
	return p
}

func TestLess(t *testing.T) {
	base, _ := twoStepPlan(t)
	cheap := rank(base.Copy(), 0)

	costly := base.Copy()
	costly.Add(graph.Element{ID: "extra", Kind: graph.KindOperator, StepNumber: 7})
	rank(costly, 0)

	unreachable := rank(base.Copy(), math.Inf(1))

	assert.True(t, Less(cheap, costly))
	assert.False(t, Less(costly, cheap))
	assert.True(t, Less(costly, unreachable), "finite beats infinite")

	// Same f, lower heuristic wins.
	a := rank(base.Copy(), 1)
	b := rank(costly.Copy(), 0)
	assert.True(t, Less(b, a))

	// Everything equal but flaw count.
	x := rank(base.Copy(), 0)
	y := base.Copy()
	y.Flaws.Insert(Threat("z", CausalLink{}))
	rank(y, 0)
	assert.True(t, Less(x, y))

	z := rank(base.Copy(), 0)
	assert.False(t, Less(x, z), "equal plans are not ordered")
	assert.False(t, Less(z, x))
}

func TestOrderingKey_IgnoresIdentities(t *testing.T) {
	p, _ := twoStepPlan(t)
	q, _ := twoStepPlan(t)
	assert.Equal(t, p.OrderingKey(), q.OrderingKey())
	assert.Equal(t, "0#0<2#0,1#0<0#0,1#0<2#0", p.OrderingKey())
}
