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

// Library is the grounded action library a plan is built against.
//
// Description:
//
//	Every ground action has a step number. The initial-state and
//	goal-state pseudo-actions sit at InitialIndex and GoalIndex.
//	Implementations are read-only for the duration of a planning run and
//	therefore safe to share between goroutines.
type Library interface {
	// Step returns the ground action with step number n. Callers must
	// Copy it before mutating.
	Step(n int) *Action

	// Len returns the number of ground actions including both dummies.
	Len() int

	// Preconditions returns the cached preconditions of step n.
	Preconditions(n int) []Condition

	// Antecedents returns the sorted step numbers whose effects contain
	// the literal with the given key.
	Antecedents(key string) []int

	// ThreatensConsumer reports whether step candidate has an effect
	// opposite to some precondition of step consumer.
	ThreatensConsumer(consumer, candidate int) bool

	// ConsistentEffect returns the effect of a that matches pre.
	ConsistentEffect(a *Action, pre Condition) (Condition, bool)

	// IsStatic reports that no non-dummy action produces the predicate
	// with the given polarity.
	IsStatic(name string, truth bool) bool

	InitialIndex() int
	GoalIndex() int
}
