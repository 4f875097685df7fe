// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the element arena that plans and actions are built on.
//
// A Graph is a set of Elements keyed by stable identifiers plus a list of
// directed, labeled Edges stored as (source, sink, label, slot) tuples. There
// are no back-pointers: every view (an action rooted at an operator, a
// condition rooted at a literal) is a read-only projection computed from the
// arena on demand.
//
// # Ownership Model
//
// Elements are stored by value. Reading an element returns a copy; changing
// it requires Set(). Copy() therefore produces a fully independent graph with
// no shared mutable state, which is what lets search branch by copying.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent mutation. A graph that is no longer
// mutated may be read from multiple goroutines.
package graph

import (
	"sort"

	"github.com/google/uuid"
)

// Kind discriminates element subtypes.
type Kind int

const (
	// KindOperator is a step instance.
	KindOperator Kind = iota

	// KindLiteral is a predicate with an ordered argument list and a polarity.
	KindLiteral

	// KindArgument is a typed constant bound into operator and literal slots.
	KindArgument
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOperator:
		return "operator"
	case KindLiteral:
		return "literal"
	case KindArgument:
		return "argument"
	default:
		return "unknown"
	}
}

// Label names the relation an edge expresses.
type Label string

const (
	// LabelPrecondition links an operator to a literal it requires.
	LabelPrecondition Label = "precond-of"

	// LabelEffect links an operator to a literal it makes hold.
	LabelEffect Label = "effect-of"

	// LabelArg binds an argument into slot Edge.Slot of an operator or literal.
	LabelArg Label = "arg"
)

// Element is an identity-bearing node.
//
// Operator fields (StepNumber, Height, IsDecomp) are meaningful only for
// KindOperator; Truth only for KindLiteral; Type only for KindArgument.
type Element struct {
	// ID is unique within a plan. Arguments keep their ID across copies.
	ID string

	Kind Kind

	// Name is the operator name, predicate name, or object name.
	Name string

	// Type is the object type of an argument.
	Type string

	// ReplacedID links a plan-local copy back to the library element it
	// was copied from. Empty for elements with no library origin.
	ReplacedID string

	// StepNumber keys the grounded library entry of an operator.
	StepNumber int

	// Height is the decomposition height of an operator (0 = primitive).
	Height int

	// IsDecomp marks an operator that carries a ground subplan.
	IsDecomp bool

	// Truth is the polarity of a literal.
	Truth bool
}

// Edge is a directed labeled arc between two elements.
type Edge struct {
	Source string
	Sink   string
	Label  Label

	// Slot is the argument position for LabelArg edges, 0 otherwise.
	Slot int
}

// NewID returns a fresh element identity.
func NewID() string {
	return uuid.NewString()
}

// Graph is an arena of elements and edges with a designated root.
type Graph struct {
	// ID identifies the graph itself.
	ID string

	// Root is the element the graph is rooted at. May be empty for plans.
	Root string

	elements map[string]Element
	order    []string
	edges    []Edge
}

// New creates an empty graph with a fresh ID.
func New() *Graph {
	return &Graph{
		ID:       NewID(),
		elements: make(map[string]Element),
	}
}

// NewRooted creates a graph containing root as its root element.
func NewRooted(root Element) *Graph {
	g := New()
	g.Add(root)
	g.Root = root.ID
	return g
}

// Add inserts e, or overwrites the stored value when e.ID already exists.
// Insertion order is kept and drives every deterministic iteration.
func (g *Graph) Add(e Element) {
	if _, ok := g.elements[e.ID]; !ok {
		g.order = append(g.order, e.ID)
	}
	g.elements[e.ID] = e
}

// Set overwrites an existing element. Returns false if e.ID is unknown.
func (g *Graph) Set(e Element) bool {
	if _, ok := g.elements[e.ID]; !ok {
		return false
	}
	g.elements[e.ID] = e
	return true
}

// Element looks up an element by identity.
func (g *Graph) Element(id string) (Element, bool) {
	e, ok := g.elements[id]
	return e, ok
}

// Has reports whether id is in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.elements[id]
	return ok
}

// Len returns the number of elements.
func (g *Graph) Len() int {
	return len(g.order)
}

// Elements returns all elements in insertion order.
func (g *Graph) Elements() []Element {
	out := make([]Element, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.elements[id])
	}
	return out
}

// ElementsOfKind returns the elements of kind k in insertion order.
func (g *Graph) ElementsOfKind(k Kind) []Element {
	var out []Element
	for _, id := range g.order {
		if e := g.elements[id]; e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// FindByReplacedID returns the first element of kind k whose ReplacedID is rid.
func (g *Graph) FindByReplacedID(k Kind, rid string) (Element, bool) {
	if rid == "" {
		return Element{}, false
	}
	for _, id := range g.order {
		if e := g.elements[id]; e.Kind == k && e.ReplacedID == rid {
			return e, true
		}
	}
	return Element{}, false
}

// Connect adds an edge. Exact duplicates are ignored.
func (g *Graph) Connect(e Edge) {
	if g.HasEdge(e) {
		return
	}
	g.edges = append(g.edges, e)
}

// HasEdge reports whether an identical edge exists.
func (g *Graph) HasEdge(e Edge) bool {
	for _, x := range g.edges {
		if x == e {
			return true
		}
	}
	return false
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Outgoing returns edges whose source is id.
func (g *Graph) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns edges whose sink is id.
func (g *Graph) Incoming(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Sink == id {
			out = append(out, e)
		}
	}
	return out
}

// Sinks returns the sink elements of id's outgoing edges labeled l, in edge order.
func (g *Graph) Sinks(id string, l Label) []Element {
	var out []Element
	for _, e := range g.edges {
		if e.Source == id && e.Label == l {
			if el, ok := g.elements[e.Sink]; ok {
				out = append(out, el)
			}
		}
	}
	return out
}

// RemoveEdge deletes e. Returns false if it was not present.
func (g *Graph) RemoveEdge(e Edge) bool {
	for i, x := range g.edges {
		if x == e {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveElement deletes an element and every edge touching it.
func (g *Graph) RemoveElement(id string) {
	if _, ok := g.elements[id]; !ok {
		return
	}
	delete(g.elements, id)
	for i, x := range g.order {
		if x == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Source != id && e.Sink != id {
			kept = append(kept, e)
		}
	}
	g.edges = kept
}

// Args returns the arguments bound into id's slots, ordered by slot.
func (g *Graph) Args(id string) []Element {
	var bound []Edge
	for _, e := range g.edges {
		if e.Source == id && e.Label == LabelArg {
			bound = append(bound, e)
		}
	}
	sort.SliceStable(bound, func(i, j int) bool { return bound[i].Slot < bound[j].Slot })
	out := make([]Element, 0, len(bound))
	for _, e := range bound {
		out = append(out, g.elements[e.Sink])
	}
	return out
}

// Subgraph extracts everything reachable from root along outgoing edges.
//
// The result is an independent copy rooted at root; mutating it never
// affects g. Returns an empty rooted graph if root is unknown.
func (g *Graph) Subgraph(root string) *Graph {
	sub := New()
	sub.Root = root
	if _, ok := g.elements[root]; !ok {
		return sub
	}

	reached := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.edges {
			if e.Source == cur && !reached[e.Sink] {
				if _, ok := g.elements[e.Sink]; ok {
					reached[e.Sink] = true
					queue = append(queue, e.Sink)
				}
			}
		}
	}

	for _, id := range g.order {
		if reached[id] {
			sub.Add(g.elements[id])
		}
	}
	for _, e := range g.edges {
		if reached[e.Source] && reached[e.Sink] {
			sub.edges = append(sub.edges, e)
		}
	}
	return sub
}

// Copy returns a deep copy with the same identities.
func (g *Graph) Copy() *Graph {
	c := &Graph{
		ID:       g.ID,
		Root:     g.Root,
		elements: make(map[string]Element, len(g.elements)),
		order:    make([]string, len(g.order)),
		edges:    make([]Edge, len(g.edges)),
	}
	for k, v := range g.elements {
		c.elements[k] = v
	}
	copy(c.order, g.order)
	copy(c.edges, g.edges)
	return c
}

// Relabel gives every non-argument element a fresh identity.
//
// ReplacedID is left untouched so heuristic and library lookups still
// resolve. Edges and Root are rewritten. Returns the old->new mapping.
func (g *Graph) Relabel() map[string]string {
	mapping := make(map[string]string)
	elements := make(map[string]Element, len(g.elements))
	for i, id := range g.order {
		e := g.elements[id]
		if e.Kind != KindArgument {
			e.ID = NewID()
			mapping[id] = e.ID
		}
		elements[e.ID] = e
		g.order[i] = e.ID
	}
	g.elements = elements
	for i, e := range g.edges {
		if n, ok := mapping[e.Source]; ok {
			e.Source = n
		}
		if n, ok := mapping[e.Sink]; ok {
			e.Sink = n
		}
		g.edges[i] = e
	}
	if n, ok := mapping[g.Root]; ok {
		g.Root = n
	}
	g.ID = NewID()
	return mapping
}

// Union adds all of other's elements and edges to g.
func (g *Graph) Union(other *Graph) {
	for _, e := range other.Elements() {
		g.Add(e)
	}
	for _, e := range other.edges {
		g.Connect(e)
	}
}
