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

// -----------------------------------------------------------------------------
// Causal Links
// -----------------------------------------------------------------------------

// CausalLink asserts that Producer's effect Condition currently satisfies
// the matching precondition of Consumer.
type CausalLink struct {
	Producer  string
	Consumer  string
	Condition Condition
}

// ID is the identity of the link within one plan.
func (l CausalLink) ID() string {
	return l.Producer + "|" + l.Consumer + "|" + l.Condition.Key()
}

// CausalLinkGraph holds the causal links of a plan together with a cache
// of steps already proven not to threaten each link.
//
// Description:
//
//	The non-threat cache only ever holds negative results. Orderings and
//	step effects only grow within a plan lineage, so a step that once
//	could not threaten a link never can. The cache is copied with the
//	plan, never shared between plans.
//
// Thread Safety: Not safe for concurrent mutation.
type CausalLinkGraph struct {
	links      []CausalLink
	index      map[string]int
	nonThreats map[string]map[string]struct{}
}

// NewCausalLinkGraph creates an empty causal-link graph.
func NewCausalLinkGraph() *CausalLinkGraph {
	return &CausalLinkGraph{
		index:      make(map[string]int),
		nonThreats: make(map[string]map[string]struct{}),
	}
}

// Add inserts the link producer -> consumer carrying cond and returns it.
// Adding an existing link returns the stored one.
func (c *CausalLinkGraph) Add(producer, consumer string, cond Condition) CausalLink {
	l := CausalLink{Producer: producer, Consumer: consumer, Condition: cond}
	if i, ok := c.index[l.ID()]; ok {
		return c.links[i]
	}
	c.index[l.ID()] = len(c.links)
	c.links = append(c.links, l)
	return l
}

// Links returns a copy of the links in insertion order.
func (c *CausalLinkGraph) Links() []CausalLink {
	out := make([]CausalLink, len(c.links))
	copy(out, c.links)
	return out
}

// Len returns the number of links.
func (c *CausalLinkGraph) Len() int {
	return len(c.links)
}

// IsNonThreat reports whether step was already cleared for link.
func (c *CausalLinkGraph) IsNonThreat(link CausalLink, step string) bool {
	_, ok := c.nonThreats[link.ID()][step]
	return ok
}

// MarkNonThreat records that step can never threaten link.
func (c *CausalLinkGraph) MarkNonThreat(link CausalLink, step string) {
	id := link.ID()
	set, ok := c.nonThreats[id]
	if !ok {
		set = make(map[string]struct{})
		c.nonThreats[id] = set
	}
	set[step] = struct{}{}
}

// IsInternallyConsistent reports that no link is a self-loop and that the
// producer -> consumer relation is acyclic.
func (c *CausalLinkGraph) IsInternallyConsistent() bool {
	for _, l := range c.links {
		if l.Producer == l.Consumer {
			return false
		}
	}
	return isAcyclic(c.links, func(l CausalLink) (string, string) { return l.Producer, l.Consumer })
}

// Copy returns an independent copy, including the non-threat cache.
func (c *CausalLinkGraph) Copy() *CausalLinkGraph {
	n := &CausalLinkGraph{
		links:      make([]CausalLink, len(c.links)),
		index:      make(map[string]int, len(c.index)),
		nonThreats: make(map[string]map[string]struct{}, len(c.nonThreats)),
	}
	copy(n.links, c.links)
	for k, v := range c.index {
		n.index[k] = v
	}
	for k, set := range c.nonThreats {
		cp := make(map[string]struct{}, len(set))
		for s := range set {
			cp[s] = struct{}{}
		}
		n.nonThreats[k] = cp
	}
	return n
}

// remap rewrites step identities and rebuilds conditions through cond.
func (c *CausalLinkGraph) remap(steps map[string]string, cond func(CausalLink) Condition) *CausalLinkGraph {
	n := NewCausalLinkGraph()
	for _, l := range c.links {
		p, q := l.Producer, l.Consumer
		if m, ok := steps[p]; ok {
			p = m
		}
		if m, ok := steps[q]; ok {
			q = m
		}
		n.Add(p, q, cond(l))
	}
	return n
}
