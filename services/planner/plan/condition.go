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
	"strings"

	"github.com/AleutianAI/AleutianPOCL/services/planner/graph"
)

// LiteralKey builds the canonical identity of a ground literal:
// polarity, predicate name and argument names, e.g. "!at(robot,room1)".
//
// The library's producer index is keyed by this string. Negation is
// marked with '!', which symbols may not contain, so a predicate named
// "not-at" cannot collide with a negated "at".
func LiteralKey(name string, truth bool, args []string) string {
	var b strings.Builder
	if !truth {
		b.WriteByte('!')
	}
	b.WriteString(name)
	b.WriteByte('(')
	b.WriteString(strings.Join(args, ","))
	b.WriteByte(')')
	return b.String()
}

// Condition is a literal together with its bound arguments, as used for
// preconditions, effects and causal-link payloads.
//
// The key is frozen when the Condition is built. Later changes to the
// backing graph do not change it; build a new Condition instead.
type Condition struct {
	Literal graph.Element
	Args    []graph.Element

	key string
}

// NewCondition projects the literal literalID out of g.
func NewCondition(g *graph.Graph, literalID string) Condition {
	lit, _ := g.Element(literalID)
	args := g.Args(literalID)
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.Name
	}
	return Condition{
		Literal: lit,
		Args:    args,
		key:     LiteralKey(lit.Name, lit.Truth, names),
	}
}

// Key returns the canonical literal identity.
func (c Condition) Key() string {
	return c.key
}

// ArgNames returns the argument names in slot order.
func (c Condition) ArgNames() []string {
	names := make([]string, len(c.Args))
	for i, a := range c.Args {
		names[i] = a.Name
	}
	return names
}

// Negated returns the key of the literal with the opposite polarity.
func (c Condition) Negated() string {
	return LiteralKey(c.Literal.Name, !c.Literal.Truth, c.ArgNames())
}

// IsOpposite reports whether c and other are the same ground predicate
// with different truth values. It is symmetric and never true for c itself.
func (c Condition) IsOpposite(other Condition) bool {
	if c.Literal.Name != other.Literal.Name || c.Literal.Truth == other.Literal.Truth {
		return false
	}
	if len(c.Args) != len(other.Args) {
		return false
	}
	for i := range c.Args {
		if c.Args[i].Name != other.Args[i].Name {
			return false
		}
	}
	return true
}

// Equal reports whether two conditions denote the same ground literal.
func (c Condition) Equal(other Condition) bool {
	return c.key == other.key
}

// String renders the condition as [not-]pred[args].
func (c Condition) String() string {
	prefix := ""
	if !c.Literal.Truth {
		prefix = "not-"
	}
	return fmt.Sprintf("%s%s%v", prefix, c.Literal.Name, c.ArgNames())
}
