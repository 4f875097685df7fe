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
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPOCL/services/planner/library"
	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

// =============================================================================
// Fixtures
// =============================================================================

const tinyDomain = `
name: tiny
operators:
  - name: A
    params: [{name: x}]
    effects: [{predicate: q, args: [x]}]
`

const tinyProblem = `
name: tiny-1
objects: [{name: o}]
goal: [{predicate: q, args: [o]}]
`

const togglesDomain = `
name: toggles
operators:
  - name: make
    effects: [{predicate: q}]
  - name: use
    preconditions: [{predicate: q}]
    effects: [{predicate: r}]
  - name: clear
    effects: [{predicate: q, truth: false}]
`

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.MaxExpansions = 20000
	return cfg
}

func build(t *testing.T, domain, problem string) *library.Library {
	t.Helper()
	d, err := library.ParseDomain([]byte(domain))
	require.NoError(t, err)
	p, err := library.ParseProblem([]byte(problem))
	require.NoError(t, err)
	lib, err := library.Build(context.Background(), d, p)
	require.NoError(t, err)
	return lib
}

func rooms(t *testing.T, domainFile string) *library.Library {
	t.Helper()
	dir := filepath.Join("..", "library", "testdata")
	lib, err := library.Load(context.Background(),
		filepath.Join(dir, domainFile), filepath.Join(dir, "rooms-problem.yaml"))
	require.NoError(t, err)
	return lib
}

// nextFlaw copies p and pops its next flaw, as Expand does.
func nextFlaw(t *testing.T, p *plan.Plan, order ...plan.FlawKind) (*plan.Plan, plan.Flaw) {
	t.Helper()
	work := p.Copy()
	f, ok := work.Flaws.Next(order)
	require.True(t, ok)
	return work, f
}

func insert(p *plan.Plan, lib *library.Library, name string) string {
	n, _ := lib.Lookup(name)
	a := lib.Step(n).Copy(true)
	p.Graph.Union(a.Graph)
	p.Ordering.Add(p.InitialStep, a.Root)
	p.Ordering.Add(a.Root, p.GoalStep)
	return a.Root
}

// =============================================================================
// Open conditions
// =============================================================================

func TestSetup_Tiny(t *testing.T) {
	lib := build(t, tinyDomain, tinyProblem)
	s := NewPlanSpacePlanner(lib, quietConfig())

	root := s.Setup("tiny")
	require.Equal(t, 1, root.Flaws.Len())

	f := root.Flaws.All()[0]
	assert.Equal(t, plan.FlawOpenCondition, f.Kind)
	assert.Equal(t, root.GoalStep, f.Step)
	assert.Equal(t, "q(o)", f.Condition.Key())
	assert.Equal(t, 1.0, root.Heuristic())
	assert.Len(t, root.Steps(), 2)
}

func TestNewStep_Tiny(t *testing.T) {
	lib := build(t, tinyDomain, tinyProblem)
	s := NewPlanSpacePlanner(lib, quietConfig())
	root := s.Setup("tiny")

	work, f := nextFlaw(t, root)
	assert.Empty(t, s.Reuse(work, f), "the initial state does not provide q(o)")

	children := s.NewStep(work, f)
	require.Len(t, children, 1)
	child := children[0]

	assert.Len(t, child.Steps(), 3)
	assert.Equal(t, 0, child.Flaws.Len())
	require.Equal(t, 1, child.Links.Len())

	link := child.Links.Links()[0]
	assert.Equal(t, "A-0[o]", child.Action(link.Producer).String())
	assert.Equal(t, child.GoalStep, link.Consumer)
	assert.Equal(t, "q(o)", link.Condition.Key())
	assert.True(t, child.IsInternallyConsistent())

	assert.Equal(t, 1, root.Flaws.Len(), "the parent keeps its flaw")
	assert.Len(t, root.Steps(), 2)
}

func TestReuse_InitialState(t *testing.T) {
	lib := rooms(t, "rooms-domain.yaml")
	s := NewPlanSpacePlanner(lib, quietConfig())

	// drop(r1,box,b) needs at(r1,b) and holding(r1,box); neither is initial.
	// pick(r1,box,a) needs at(r1,a) and in(box,a); both are.
	root := s.Setup("rooms")
	pickA, _ := lib.Lookup("pick", "r1", "box", "a")
	a := lib.Step(pickA).Copy(true)
	root.Graph.Union(a.Graph)
	root.Ordering.Add(root.InitialStep, a.Root)
	root.Ordering.Add(a.Root, root.GoalStep)
	for _, pre := range root.Action(a.Root).Preconditions() {
		root.Flaws.Insert(plan.OpenCondition(a.Root, pre))
	}
	root.Evaluate(lib, plan.DefaultHeightPenalty)

	work, f := nextFlaw(t, root, plan.FlawOpenCondition)
	require.Equal(t, a.Root, f.Step, "cheapest open condition first")

	children := s.Reuse(work, f)
	require.Len(t, children, 1)
	child := children[0]
	link := child.Links.Links()[0]
	assert.Equal(t, child.InitialStep, link.Producer)
	assert.Equal(t, a.Root, link.Consumer)
	assert.Equal(t, f.Condition.Key(), link.Condition.Key())
	assert.Equal(t, work.Flaws.Len(), child.Flaws.Len(), "reuse adds no open conditions")
}

const layeredDomain = `
name: layered
operators:
  - name: make
    params: [{name: x}]
    effects: [{predicate: q, args: [x]}]
  - name: consume
    params: [{name: x}]
    preconditions: [{predicate: q, args: [x]}]
    effects: [{predicate: r, args: [x]}]
  - name: build
    height: 1
    params: [{name: x}]
    effects: [{predicate: q, args: [x]}]
    subplan:
      steps: [{id: m, operator: make, args: [x]}]
  - name: finish
    height: 1
    params: [{name: x}, {name: y}]
    preconditions: [{predicate: q, args: [x]}]
    effects: [{predicate: done, args: [x, y]}]
    subplan:
      steps: [{id: c, operator: consume, args: [x]}]
`

func TestReuse_DecomposedStepsOfDifferentArity(t *testing.T) {
	lib := build(t, layeredDomain, `
name: layered-1
objects: [{name: o}, {name: o2}]
goal: [{predicate: done, args: [o, o2]}]
`)
	s := NewPlanSpacePlanner(lib, quietConfig())
	root := s.Setup("layered")

	add := func(name string, args ...string) string {
		n, ok := lib.Lookup(name, args...)
		require.True(t, ok, "no ground step %s%v", name, args)
		a := lib.Step(n).Copy(true)
		root.Graph.Union(a.Graph)
		root.Ordering.Add(root.InitialStep, a.Root)
		root.Ordering.Add(a.Root, root.GoalStep)
		return a.Root
	}
	producer := add("build", "o")
	consumer := add("finish", "o", "o2")

	pre := root.Action(consumer).Preconditions()[0]
	require.Equal(t, "q(o)", pre.Key())

	children := s.Reuse(root, plan.OpenCondition(consumer, pre))
	require.Len(t, children, 1)
	link := children[0].Links.Links()[0]
	assert.Equal(t, producer, link.Producer)
	assert.Equal(t, consumer, link.Consumer)
	assert.Equal(t, "q(o)", link.Condition.Key())
}

func TestOpenCondition_SatisfiableNeverEmpty(t *testing.T) {
	lib := rooms(t, "rooms-domain.yaml")
	s := NewPlanSpacePlanner(lib, quietConfig())
	root := s.Setup("rooms")

	frontier := []*plan.Plan{root}
	for i := 0; i < 25 && len(frontier) > 0; i++ {
		p := frontier[0]
		frontier = frontier[1:]
		for _, f := range p.Flaws.OfKind(plan.FlawOpenCondition) {
			if len(lib.Antecedents(f.Condition.Key())) == 0 {
				continue
			}
			work := p.Copy()
			require.True(t, work.Flaws.Remove(f.ID()))
			children := append(s.Reuse(work, f), s.NewStep(work, f)...)
			assert.NotEmpty(t, children, "open condition %s", f)
			frontier = append(frontier, children...)
		}
	}
}

func TestOpenCondition_ResolutionLowersCost(t *testing.T) {
	lib := rooms(t, "rooms-domain.yaml")
	s := NewPlanSpacePlanner(lib, quietConfig())
	root := s.Setup("rooms")
	before := root.Flaws.All()[0].Heuristic

	children, kind, err := s.Expand(root)
	require.NoError(t, err)
	assert.Equal(t, plan.FlawOpenCondition, kind)
	require.NotEmpty(t, children)

	for _, c := range children {
		c.Evaluate(lib, DefaultConfig().HeightPenalty)
		for _, f := range c.Flaws.OfKind(plan.FlawOpenCondition) {
			assert.Less(t, f.Heuristic, before, "open condition %s", f)
		}
	}
}

// =============================================================================
// Threats
// =============================================================================

// threatened builds init < {make, use, clear} < goal with make --q--> use.
func threatened(t *testing.T) (*PlanSpacePlanner, *plan.Plan, plan.Flaw) {
	t.Helper()
	lib := build(t, togglesDomain, "name: toggles-1\ngoal: [{predicate: r}]\n")
	s := NewPlanSpacePlanner(lib, quietConfig())
	p := plan.Seed("toggles", lib)

	mk := insert(p, lib, "make")
	use := insert(p, lib, "use")
	insert(p, lib, "clear")
	p.Ordering.Add(mk, use)

	pre := p.Action(use).Preconditions()[0]
	eff := p.Action(mk).Effects()[0]
	_, ok := p.ReplaceLiteral(pre.Literal.ID, eff.Literal.ID)
	require.True(t, ok)
	p.Links.Add(mk, use, plan.NewCondition(p.Graph, eff.Literal.ID))

	threats := p.DetectThreats(lib)
	require.Len(t, threats, 1)
	return s, p, threats[0]
}

func TestResolveThreat_PromotionAndDemotion(t *testing.T) {
	s, p, f := threatened(t)

	children := s.ResolveThreat(p, f)
	require.Len(t, children, 2)

	promoted, demoted := children[0], children[1]
	assert.True(t, promoted.Ordering.IsPath(f.Link.Consumer, f.Step))
	assert.True(t, demoted.Ordering.IsPath(f.Step, f.Link.Producer))
	for _, c := range children {
		assert.True(t, c.IsInternallyConsistent())
		assert.Empty(t, c.DetectThreats(s.lib))
	}
	assert.False(t, p.Ordering.IsPath(f.Link.Consumer, f.Step), "parent ordering untouched")
	assert.False(t, p.Ordering.IsPath(f.Step, f.Link.Producer))
}

func TestResolveThreat_Sandwiched(t *testing.T) {
	s, p, f := threatened(t)
	p.Ordering.Add(f.Link.Producer, f.Step)
	p.Ordering.Add(f.Step, f.Link.Consumer)

	assert.Empty(t, s.ResolveThreat(p, f), "both orderings would close a cycle")
}

// =============================================================================
// Decomposition
// =============================================================================

func TestDecompose_SplicesSubplan(t *testing.T) {
	lib := rooms(t, "rooms-htn-domain.yaml")
	s := NewPlanSpacePlanner(lib, quietConfig())
	root := s.Setup("rooms")

	deliver, ok := lib.Lookup("deliver", "r1", "box", "a", "b")
	require.True(t, ok)

	work, f := nextFlaw(t, root)
	var compound *plan.Plan
	for _, c := range s.NewStep(work, f) {
		for _, df := range c.Flaws.OfKind(plan.FlawDecomposition) {
			if st, _ := c.Step(df.Step); st.StepNumber == deliver {
				compound = c
			}
		}
	}
	require.NotNil(t, compound, "inserting deliver raises a decomposition flaw")
	assert.Len(t, compound.Steps(), 3)

	work, df := nextFlaw(t, compound, plan.FlawDecomposition)
	require.Equal(t, plan.FlawDecomposition, df.Kind)

	results := s.Decompose(work, df)
	require.Len(t, results, 1, "nothing to share, so only the copying variant")
	r := results[0]

	assert.Len(t, r.Steps(), 6)
	assert.Equal(t, 3, r.Links.Len())
	assert.Empty(t, r.Flaws.OfKind(plan.FlawDecomposition))
	// deliver: at, in; pick: at, in; move: at, adjacent. drop is fully linked.
	assert.Len(t, r.Flaws.OfKind(plan.FlawOpenCondition), 6)
	assert.True(t, r.IsInternallyConsistent())
}

// =============================================================================
// Search driver
// =============================================================================

func TestSolve_Tiny(t *testing.T) {
	lib := build(t, tinyDomain, tinyProblem)
	s := NewPlanSpacePlanner(lib, quietConfig())

	res, err := s.Solve(context.Background(), "tiny")
	require.NoError(t, err)
	require.Len(t, res.Solutions, 1)

	sol := res.Solutions[0]
	assert.Equal(t, 1, sol.Cost())
	assert.Equal(t, 0, sol.Flaws.Len())
	seq, err := plan.Sequence(sol)
	require.NoError(t, err)
	assert.Equal(t, []string{"init-1[]", "A-0[o]", "goal-2[]"}, seq)

	assert.Equal(t, 1, res.Expanded)
	assert.Equal(t, 2, res.Visited)
	assert.Equal(t, 1, res.Generated)
	assert.Equal(t, 0, res.Pruned)
}

func TestSolve_Rooms(t *testing.T) {
	lib := rooms(t, "rooms-domain.yaml")
	s := NewPlanSpacePlanner(lib, quietConfig())

	res, err := s.Solve(context.Background(), "rooms")
	require.NoError(t, err)
	require.Len(t, res.Solutions, 1)

	sol := res.Solutions[0]
	assert.True(t, sol.IsInternallyConsistent())
	assert.GreaterOrEqual(t, sol.Cost(), 3)

	seq, err := plan.Sequence(sol)
	require.NoError(t, err)
	pick := indexOf(seq, "pick-4[r1 box a]")
	drop := indexOf(seq, "drop-7[r1 box b]")
	require.NotEqual(t, -1, pick, "sequence %v", seq)
	require.NotEqual(t, -1, drop, "sequence %v", seq)
	assert.Less(t, pick, drop)
	assert.Empty(t, sol.DetectThreats(lib))
}

func TestSolve_HTN(t *testing.T) {
	lib := rooms(t, "rooms-htn-domain.yaml")
	s := NewPlanSpacePlanner(lib, quietConfig())

	res, err := s.Solve(context.Background(), "rooms")
	require.NoError(t, err)
	require.NotEmpty(t, res.Solutions)
	sol := res.Solutions[0]
	assert.Equal(t, 0, sol.Flaws.Len())
	assert.True(t, sol.IsInternallyConsistent())
}

func TestSolve_UnreachableGoal(t *testing.T) {
	lib := build(t, togglesDomain, "name: toggles-2\ngoal: [{predicate: never}]\n")
	s := NewPlanSpacePlanner(lib, quietConfig())

	root := s.Setup("toggles")
	assert.True(t, math.IsInf(root.Heuristic(), 1))

	res, err := s.Solve(context.Background(), "toggles")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPlan)
	assert.Empty(t, res.Solutions)

	var pe *PlannerError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Solve", pe.Operation)
}

func TestSolve_PrefixedPredicateIsNotNegation(t *testing.T) {
	lib := build(t, `
name: doors
operators:
  - name: unlock
    params: [{name: x}]
    effects: [{predicate: locked, args: [x], truth: false}]
`, `
name: doors-1
objects: [{name: d}]
goal: [{predicate: not-locked, args: [d]}]
`)
	assert.Empty(t, lib.Antecedents("not-locked(d)"))
	assert.Equal(t, []int{0}, lib.Antecedents("!locked(d)"))

	res, err := NewPlanSpacePlanner(lib, quietConfig()).Solve(context.Background(), "doors")
	assert.ErrorIs(t, err, ErrNoPlan)
	assert.Empty(t, res.Solutions)
}

func TestSolve_Budget(t *testing.T) {
	lib := rooms(t, "rooms-domain.yaml")

	t.Run("max expansions", func(t *testing.T) {
		cfg := quietConfig()
		cfg.MaxExpansions = 1
		res, err := NewPlanSpacePlanner(lib, cfg).Solve(context.Background(), "rooms")
		assert.ErrorIs(t, err, ErrBudgetExhausted)
		assert.Equal(t, 1, res.Expanded)
	})

	t.Run("abort hook", func(t *testing.T) {
		cfg := quietConfig()
		cfg.Abort = func(st Stats) bool { return st.Visited >= 2 }
		res, err := NewPlanSpacePlanner(lib, cfg).Solve(context.Background(), "rooms")
		assert.ErrorIs(t, err, ErrBudgetExhausted)
		assert.Equal(t, 2, res.Visited)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := NewPlanSpacePlanner(lib, quietConfig()).Solve(ctx, "rooms")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, res.Visited)
	})
}

func TestSolve_InvalidConfig(t *testing.T) {
	lib := build(t, tinyDomain, tinyProblem)
	cfg := quietConfig()
	cfg.Solutions = 0
	_, err := NewPlanSpacePlanner(lib, cfg).Solve(context.Background(), "tiny")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPlanSpacePlanner(nil, nil).Solve(context.Background(), "tiny")
	assert.ErrorIs(t, err, ErrNilLibrary)
}

func TestExpand_InconsistentPlan(t *testing.T) {
	lib := build(t, tinyDomain, tinyProblem)
	s := NewPlanSpacePlanner(lib, quietConfig())
	root := s.Setup("tiny")

	bad := root.Copy()
	bad.Ordering.Add(bad.GoalStep, bad.InitialStep)

	children, _, err := s.Expand(bad)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
