// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package library grounds a typed domain and problem into the read-only
// action library the planner searches against.
//
// Every operator is instantiated over every type-compatible tuple of
// objects. Ground actions get step numbers 0..n-1 in operator order, then
// binding order; the initial-state pseudo-action is n and the goal-state
// pseudo-action is n+1. Literals are keyed by plan.LiteralKey, so the
// producer index maps a key to the sorted step numbers whose effects
// contain it.
//
// A Library is immutable once Build returns and is safe for concurrent
// reads.
package library

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianPOCL/services/planner/graph"
	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

const (
	// RootType is the implicit ancestor of every declared type.
	RootType = "object"

	// MaxGroundActions bounds the size of a grounded library.
	MaxGroundActions = 100000

	// InitialName and GoalName name the two pseudo-actions.
	InitialName = "init"
	GoalName    = "goal"
)

// Library is a grounded action library. It implements plan.Library.
type Library struct {
	name    string
	steps   []*plan.Action
	pre     [][]plan.Condition
	objects []graph.Element

	producers map[string][]int
	threats   []map[int]struct{}
	nonStatic map[string]bool
	byLabel   map[string]int

	initial int
	goal    int
}

var _ plan.Library = (*Library)(nil)

// groundAtom is an atom with its arguments resolved to objects.
type groundAtom struct {
	name  string
	truth bool
	args  []graph.Element
}

// builder holds the state of one Build call.
type builder struct {
	domain  *Domain
	problem *Problem

	parents   map[string]string
	objects   map[string]graph.Element
	objOrder  []graph.Element
	operators map[string]*Operator

	// schema[n] and bindings[n] record where ground step n came from.
	schema   []*Operator
	bindings []map[string]graph.Element

	lib *Library
}

// Build validates d and p and grounds them.
//
// Description:
//
//	Validation covers struct tags, declared types, known symbols and
//	subplan references. Grounding then enumerates operator bindings,
//	builds the two pseudo-actions, grounds decomposition subplans in
//	ascending height order, and finally computes the producer, threat and
//	static-predicate indices.
//
// Inputs:
//
//	ctx - Context for tracing.
//	d - The domain.
//	p - The problem.
//
// Outputs:
//
//	*Library - The grounded library.
//	error - Wraps ErrInvalidDomain, ErrInvalidProblem, ErrUnknownType,
//	ErrUnknownSymbol or ErrNoGoal.
func Build(ctx context.Context, d *Domain, p *Problem) (*Library, error) {
	_, span := tracer.Start(ctx, "library.Build")
	defer span.End()

	start := time.Now()
	lib, err := build(d, p)
	groundingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grounding failed")
		loadErrors.Inc()
		return nil, err
	}

	span.SetAttributes(
		attribute.String("problem", lib.name),
		attribute.Int("ground_actions", lib.Len()),
		attribute.Int("literal_keys", len(lib.producers)),
	)
	groundActions.Observe(float64(lib.Len()))
	return lib, nil
}

func build(d *Domain, p *Problem) (*Library, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.Goal) == 0 {
		return nil, fmt.Errorf("problem %s: %w", p.Name, ErrNoGoal)
	}
	if p.Domain != "" && p.Domain != d.Name {
		return nil, fmt.Errorf("%w: problem %s is for domain %s, not %s", ErrInvalidProblem, p.Name, p.Domain, d.Name)
	}

	b := &builder{
		domain:    d,
		problem:   p,
		parents:   make(map[string]string),
		objects:   make(map[string]graph.Element),
		operators: make(map[string]*Operator),
		lib: &Library{
			name:      p.Name,
			producers: make(map[string][]int),
			nonStatic: make(map[string]bool),
			byLabel:   make(map[string]int),
		},
	}
	if err := b.declare(); err != nil {
		return nil, err
	}
	if err := b.groundOperators(); err != nil {
		return nil, err
	}
	if err := b.groundDummies(); err != nil {
		return nil, err
	}
	if err := b.groundSubplans(); err != nil {
		return nil, err
	}
	b.index()
	return b.lib, nil
}

// -----------------------------------------------------------------------------
// Declarations
// -----------------------------------------------------------------------------

func (b *builder) declare() error {
	for _, t := range b.domain.Types {
		if t.Name == RootType {
			continue
		}
		if _, dup := b.parents[t.Name]; dup {
			return fmt.Errorf("%w: type %s declared twice", ErrInvalidDomain, t.Name)
		}
		parent := t.Parent
		if parent == "" {
			parent = RootType
		}
		b.parents[t.Name] = parent
	}
	for name, parent := range b.parents {
		if err := b.checkType(parent); err != nil {
			return fmt.Errorf("type %s: %w", name, err)
		}
		if b.depth(name) < 0 {
			return fmt.Errorf("%w: type %s is its own ancestor", ErrInvalidDomain, name)
		}
	}

	for _, o := range b.problem.Objects {
		if _, dup := b.objects[o.Name]; dup {
			return fmt.Errorf("%w: object %s declared twice", ErrInvalidProblem, o.Name)
		}
		typ := o.Type
		if typ == "" {
			typ = RootType
		}
		if err := b.checkType(typ); err != nil {
			return fmt.Errorf("object %s: %w", o.Name, err)
		}
		e := graph.Element{ID: graph.NewID(), Kind: graph.KindArgument, Name: o.Name, Type: typ}
		b.objects[o.Name] = e
		b.objOrder = append(b.objOrder, e)
	}
	b.lib.objects = b.objOrder

	for i := range b.domain.Operators {
		op := &b.domain.Operators[i]
		if op.Name == InitialName || op.Name == GoalName {
			return fmt.Errorf("%w: operator name %s is reserved", ErrInvalidDomain, op.Name)
		}
		if _, dup := b.operators[op.Name]; dup {
			return fmt.Errorf("%w: operator %s declared twice", ErrInvalidDomain, op.Name)
		}
		b.operators[op.Name] = op
		if err := b.checkOperator(op); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) checkType(t string) error {
	if t == RootType {
		return nil
	}
	if _, ok := b.parents[t]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return nil
}

// depth returns the number of ancestors of t, or -1 on a cycle.
func (b *builder) depth(t string) int {
	n := 0
	for t != RootType {
		t = b.parents[t]
		n++
		if n > len(b.parents)+1 {
			return -1
		}
	}
	return n
}

// isA reports whether t equals want or descends from it.
func (b *builder) isA(t, want string) bool {
	if want == "" || want == RootType {
		return true
	}
	for steps := 0; steps <= len(b.parents); steps++ {
		if t == want {
			return true
		}
		if t == RootType {
			return false
		}
		t = b.parents[t]
	}
	return false
}

func (b *builder) checkOperator(op *Operator) error {
	params := make(map[string]bool, len(op.Params))
	for _, prm := range op.Params {
		if params[prm.Name] {
			return fmt.Errorf("%w: operator %s repeats parameter %s", ErrInvalidDomain, op.Name, prm.Name)
		}
		params[prm.Name] = true
		if prm.Type != "" {
			if err := b.checkType(prm.Type); err != nil {
				return fmt.Errorf("operator %s parameter %s: %w", op.Name, prm.Name, err)
			}
		}
	}
	check := func(args []string) error {
		for _, a := range args {
			if params[a] {
				continue
			}
			if _, ok := b.objects[a]; ok {
				continue
			}
			return fmt.Errorf("operator %s: %w: %s", op.Name, ErrUnknownSymbol, a)
		}
		return nil
	}
	for _, at := range append(append([]Atom{}, op.Preconditions...), op.Effects...) {
		if err := check(at.Args); err != nil {
			return err
		}
	}

	if op.Subplan == nil {
		return nil
	}
	if op.Height == 0 {
		return fmt.Errorf("%w: operator %s has a subplan but height 0", ErrInvalidDomain, op.Name)
	}
	ids := make(map[string]bool)
	for _, s := range op.Subplan.Steps {
		if ids[s.ID] {
			return fmt.Errorf("%w: operator %s repeats sub-step %s", ErrInvalidDomain, op.Name, s.ID)
		}
		ids[s.ID] = true
		if !b.declared(s.Operator) {
			return fmt.Errorf("%w: operator %s uses undeclared operator %s", ErrInvalidDomain, op.Name, s.Operator)
		}
		if err := check(s.Args); err != nil {
			return err
		}
	}
	for _, o := range op.Subplan.Orderings {
		if !ids[o.Before] || !ids[o.After] {
			return fmt.Errorf("%w: operator %s orders unknown sub-step", ErrInvalidDomain, op.Name)
		}
	}
	for _, l := range op.Subplan.Links {
		if !ids[l.Producer] || !ids[l.Consumer] {
			return fmt.Errorf("%w: operator %s links unknown sub-step", ErrInvalidDomain, op.Name)
		}
		if err := check(l.Condition.Args); err != nil {
			return err
		}
	}
	return nil
}

// declared looks at the whole domain so subplans may reference
// operators listed after them.
func (b *builder) declared(name string) bool {
	for _, op := range b.domain.Operators {
		if op.Name == name {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Grounding
// -----------------------------------------------------------------------------

func (b *builder) groundOperators() error {
	for i := range b.domain.Operators {
		op := &b.domain.Operators[i]
		candidates := make([][]graph.Element, len(op.Params))
		for j, prm := range op.Params {
			for _, o := range b.objOrder {
				if b.isA(o.Type, prm.Type) {
					candidates[j] = append(candidates[j], o)
				}
			}
		}

		var err error
		product(candidates, func(tuple []graph.Element) bool {
			if len(b.lib.steps) >= MaxGroundActions {
				err = fmt.Errorf("%w: more than %d ground actions", ErrInvalidDomain, MaxGroundActions)
				return false
			}
			binding := make(map[string]graph.Element, len(tuple))
			for j, prm := range op.Params {
				binding[prm.Name] = tuple[j]
			}
			b.addStep(op, binding, tuple)
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// product calls yield for every tuple of the cartesian product, in
// lexicographic order of the candidate lists. Stops when yield returns false.
func product(candidates [][]graph.Element, yield func([]graph.Element) bool) {
	tuple := make([]graph.Element, len(candidates))
	var rec func(i int) bool
	rec = func(i int) bool {
		if i == len(candidates) {
			out := make([]graph.Element, len(tuple))
			copy(out, tuple)
			return yield(out)
		}
		for _, c := range candidates[i] {
			tuple[i] = c
			if !rec(i + 1) {
				return false
			}
		}
		return true
	}
	rec(0)
}

func (b *builder) addStep(op *Operator, binding map[string]graph.Element, args []graph.Element) {
	n := len(b.lib.steps)
	a := newGroundAction(op.Name, n, op.Height, op.Subplan != nil, args,
		b.resolveAll(op.Preconditions, binding), b.resolveAll(op.Effects, binding))
	b.lib.steps = append(b.lib.steps, a)
	b.schema = append(b.schema, op)
	b.bindings = append(b.bindings, binding)
	b.lib.byLabel[stepLabel(op.Name, args)] = n
}

func (b *builder) groundDummies() error {
	for _, at := range append(append([]Atom{}, b.problem.Init...), b.problem.Goal...) {
		for _, a := range at.Args {
			if _, ok := b.objects[a]; !ok {
				return fmt.Errorf("problem %s: %w: %s", b.problem.Name, ErrUnknownSymbol, a)
			}
		}
	}

	b.lib.initial = len(b.lib.steps)
	b.lib.steps = append(b.lib.steps,
		newGroundAction(InitialName, b.lib.initial, 0, false, nil, nil, b.resolveAll(b.problem.Init, nil)))
	b.lib.goal = len(b.lib.steps)
	b.lib.steps = append(b.lib.steps,
		newGroundAction(GoalName, b.lib.goal, 0, false, nil, b.resolveAll(b.problem.Goal, nil), nil))
	return nil
}

// groundSubplans attaches ground subplans to compound steps, lowest
// height first, so a sub-step copied into a parent already carries its
// own subplan.
func (b *builder) groundSubplans() error {
	var compound []int
	for n, op := range b.schema {
		if op.Subplan != nil {
			compound = append(compound, n)
		}
	}
	sort.SliceStable(compound, func(i, j int) bool {
		return b.schema[compound[i]].Height < b.schema[compound[j]].Height
	})

	for _, n := range compound {
		sub, err := b.groundSubplan(n)
		if err != nil {
			return err
		}
		b.lib.steps[n].GroundSubplan = sub
	}
	return nil
}

func (b *builder) groundSubplan(n int) (*plan.Plan, error) {
	op := b.schema[n]
	binding := b.bindings[n]
	label := b.lib.steps[n].String()

	ids := make(map[string]string, len(op.Subplan.Steps))
	actions := make([]*plan.Action, 0, len(op.Subplan.Steps))
	for _, s := range op.Subplan.Steps {
		args := make([]graph.Element, len(s.Args))
		for i, a := range s.Args {
			args[i] = b.resolve(a, binding)
		}
		m, ok := b.lib.byLabel[stepLabel(s.Operator, args)]
		if !ok {
			return nil, fmt.Errorf("%w: sub-step %s of %s has no ground instance", ErrInvalidDomain, s.ID, label)
		}
		c := b.lib.steps[m].Copy(true)
		ids[s.ID] = c.Root
		actions = append(actions, c)
	}

	sub := plan.MergeActions(actions, op.Height-1)
	if sub == nil {
		return nil, fmt.Errorf("%w: subplan of %s has no step at height %d", ErrInvalidDomain, label, op.Height-1)
	}
	sub.Name = label

	for _, o := range op.Subplan.Orderings {
		sub.Ordering.Add(ids[o.Before], ids[o.After])
	}
	for _, l := range op.Subplan.Links {
		cond := b.resolveAtom(l.Condition, binding)
		key := plan.LiteralKey(cond.name, cond.truth, argNames(cond.args))
		prod, cons := ids[l.Producer], ids[l.Consumer]

		eff, ok := findCondition(sub.Action(prod).Effects(), key)
		if !ok {
			return nil, fmt.Errorf("%w: %s: %s is not an effect of sub-step %s", ErrInvalidDomain, label, key, l.Producer)
		}
		pre, ok := findCondition(sub.Action(cons).Preconditions(), key)
		if !ok {
			return nil, fmt.Errorf("%w: %s: %s is not a precondition of sub-step %s", ErrInvalidDomain, label, key, l.Consumer)
		}
		if _, ok := sub.ReplaceLiteral(pre.Literal.ID, eff.Literal.ID); !ok {
			return nil, fmt.Errorf("%w: %s: cannot link %s", ErrInvalidDomain, label, key)
		}
		sub.Ordering.Add(prod, cons)
		sub.Links.Add(prod, cons, plan.NewCondition(sub.Graph, eff.Literal.ID))
	}
	return sub, nil
}

func findCondition(cs []plan.Condition, key string) (plan.Condition, bool) {
	for _, c := range cs {
		if c.Key() == key {
			return c, true
		}
	}
	return plan.Condition{}, false
}

func (b *builder) resolve(arg string, binding map[string]graph.Element) graph.Element {
	if e, ok := binding[arg]; ok {
		return e
	}
	return b.objects[arg]
}

func (b *builder) resolveAtom(at Atom, binding map[string]graph.Element) groundAtom {
	g := groundAtom{name: at.Predicate, truth: at.Polarity(), args: make([]graph.Element, len(at.Args))}
	for i, a := range at.Args {
		g.args[i] = b.resolve(a, binding)
	}
	return g
}

func (b *builder) resolveAll(atoms []Atom, binding map[string]graph.Element) []groundAtom {
	out := make([]groundAtom, 0, len(atoms))
	for _, at := range atoms {
		out = append(out, b.resolveAtom(at, binding))
	}
	return out
}

// newGroundAction builds the graph of one ground action. Every operator
// and literal records its own identity as ReplacedID, so plan-local
// copies trace back to it.
func newGroundAction(name string, n, height int, decomp bool, args []graph.Element, pres, effs []groundAtom) *plan.Action {
	opID := graph.NewID()
	g := graph.NewRooted(graph.Element{
		ID:         opID,
		Kind:       graph.KindOperator,
		Name:       name,
		ReplacedID: opID,
		StepNumber: n,
		Height:     height,
		IsDecomp:   decomp,
	})
	bind := func(source string, args []graph.Element) {
		for i, a := range args {
			if !g.Has(a.ID) {
				g.Add(a)
			}
			g.Connect(graph.Edge{Source: source, Sink: a.ID, Label: graph.LabelArg, Slot: i})
		}
	}
	bind(opID, args)

	attach := func(atoms []groundAtom, label graph.Label) {
		for _, at := range atoms {
			id := graph.NewID()
			g.Add(graph.Element{ID: id, Kind: graph.KindLiteral, Name: at.name, Truth: at.truth, ReplacedID: id})
			g.Connect(graph.Edge{Source: opID, Sink: id, Label: label})
			bind(id, at.args)
		}
	}
	attach(pres, graph.LabelPrecondition)
	attach(effs, graph.LabelEffect)
	return plan.NewAction(g)
}

func stepLabel(name string, args []graph.Element) string {
	return name + "(" + strings.Join(argNames(args), ",") + ")"
}

func argNames(args []graph.Element) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.Name
	}
	return out
}

// -----------------------------------------------------------------------------
// Indices
// -----------------------------------------------------------------------------

func (b *builder) index() {
	l := b.lib
	l.pre = make([][]plan.Condition, len(l.steps))
	for n, a := range l.steps {
		l.pre[n] = a.Preconditions()
		if n == l.goal {
			continue
		}
		seen := make(map[string]bool)
		for _, eff := range a.Effects() {
			if seen[eff.Key()] {
				continue
			}
			seen[eff.Key()] = true
			l.producers[eff.Key()] = append(l.producers[eff.Key()], n)
			if n != l.initial {
				l.nonStatic[staticKey(eff.Literal.Name, eff.Literal.Truth)] = true
			}
		}
	}

	l.threats = make([]map[int]struct{}, len(l.steps))
	for c := range l.steps {
		set := make(map[int]struct{})
		for _, pre := range l.pre[c] {
			for _, n := range l.producers[pre.Negated()] {
				set[n] = struct{}{}
			}
		}
		l.threats[c] = set
	}
}

func staticKey(name string, truth bool) string {
	return name + "|" + strconv.FormatBool(truth)
}

// -----------------------------------------------------------------------------
// plan.Library
// -----------------------------------------------------------------------------

// Name returns the problem name.
func (l *Library) Name() string {
	return l.name
}

// Step returns ground action n, or nil if out of range.
func (l *Library) Step(n int) *plan.Action {
	if n < 0 || n >= len(l.steps) {
		return nil
	}
	return l.steps[n]
}

// Len returns the number of ground actions including the pseudo-actions.
func (l *Library) Len() int {
	return len(l.steps)
}

// Preconditions returns the precomputed preconditions of step n.
func (l *Library) Preconditions(n int) []plan.Condition {
	if n < 0 || n >= len(l.pre) {
		return nil
	}
	return l.pre[n]
}

// Antecedents returns the step numbers producing key.
func (l *Library) Antecedents(key string) []int {
	return l.producers[key]
}

// ThreatensConsumer reports whether candidate can undo a precondition of
// consumer.
func (l *Library) ThreatensConsumer(consumer, candidate int) bool {
	if consumer < 0 || consumer >= len(l.threats) {
		return false
	}
	_, ok := l.threats[consumer][candidate]
	return ok
}

// ConsistentEffect returns the effect of a whose key matches pre.
func (l *Library) ConsistentEffect(a *plan.Action, pre plan.Condition) (plan.Condition, bool) {
	return findCondition(a.Effects(), pre.Key())
}

// IsStatic reports that no ground operator produces the predicate with
// the given polarity.
func (l *Library) IsStatic(name string, truth bool) bool {
	return !l.nonStatic[staticKey(name, truth)]
}

// InitialIndex returns the step number of the initial-state pseudo-action.
func (l *Library) InitialIndex() int {
	return l.initial
}

// GoalIndex returns the step number of the goal-state pseudo-action.
func (l *Library) GoalIndex() int {
	return l.goal
}

// Objects returns the problem objects in declaration order.
func (l *Library) Objects() []graph.Element {
	out := make([]graph.Element, len(l.objects))
	copy(out, l.objects)
	return out
}

// Lookup returns the step number of the ground action name(args...).
func (l *Library) Lookup(name string, args ...string) (int, bool) {
	n, ok := l.byLabel[name+"("+strings.Join(args, ",")+")"]
	return n, ok
}
