// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

func loadRooms(t *testing.T, domainFile string) *Library {
	t.Helper()
	lib, err := Load(context.Background(),
		filepath.Join("testdata", domainFile),
		filepath.Join("testdata", "rooms-problem.yaml"))
	require.NoError(t, err)
	return lib
}

func TestLoad_Rooms(t *testing.T) {
	lib := loadRooms(t, "rooms-domain.yaml")

	// move: 1 robot x 2 rooms x 2 rooms, pick: 2, drop: 2, plus init and goal.
	assert.Equal(t, 10, lib.Len())
	assert.Equal(t, 8, lib.InitialIndex())
	assert.Equal(t, 9, lib.GoalIndex())
	assert.Equal(t, "rooms-1", lib.Name())

	n, ok := lib.Lookup("move", "r1", "a", "b")
	require.True(t, ok)
	a := lib.Step(n)
	assert.Equal(t, "move-1[r1 a b]", a.String())
	assert.Len(t, a.Preconditions(), 2)
	assert.Len(t, a.Effects(), 2)

	goal := lib.Step(lib.GoalIndex())
	require.Len(t, goal.Preconditions(), 1)
	assert.Equal(t, "in(box,b)", goal.Preconditions()[0].Key())
	assert.Empty(t, goal.Effects())

	assert.Len(t, lib.Step(lib.InitialIndex()).Effects(), 4)
	assert.Nil(t, lib.Step(-1))
	assert.Nil(t, lib.Step(lib.Len()))
}

func TestLibrary_Antecedents(t *testing.T) {
	lib := loadRooms(t, "rooms-domain.yaml")

	dropB, _ := lib.Lookup("drop", "r1", "box", "b")
	assert.Equal(t, []int{dropB}, lib.Antecedents("in(box,b)"))

	pickA, _ := lib.Lookup("pick", "r1", "box", "a")
	dropA, _ := lib.Lookup("drop", "r1", "box", "a")
	assert.Equal(t, []int{dropA, lib.InitialIndex()}, lib.Antecedents("in(box,a)"))

	notIn := lib.Antecedents("!in(box,a)")
	assert.Equal(t, []int{pickA}, notIn)

	assert.Empty(t, lib.Antecedents("at(box,a)"))
}

func TestLibrary_ThreatIndex(t *testing.T) {
	lib := loadRooms(t, "rooms-domain.yaml")

	pickA, _ := lib.Lookup("pick", "r1", "box", "a")
	moveAB, _ := lib.Lookup("move", "r1", "a", "b")
	moveBA, _ := lib.Lookup("move", "r1", "b", "a")

	// move(r1,a,b) deletes at(r1,a), which pick(r1,box,a) needs.
	assert.True(t, lib.ThreatensConsumer(pickA, moveAB))
	assert.False(t, lib.ThreatensConsumer(pickA, moveBA))
	assert.False(t, lib.ThreatensConsumer(-1, moveAB))
}

func TestLibrary_IsStatic(t *testing.T) {
	lib := loadRooms(t, "rooms-domain.yaml")

	assert.True(t, lib.IsStatic("adjacent", true))
	assert.False(t, lib.IsStatic("at", true))
	assert.False(t, lib.IsStatic("at", false))
	assert.True(t, lib.IsStatic("adjacent", false))
}

func TestLibrary_ConsistentEffect(t *testing.T) {
	lib := loadRooms(t, "rooms-domain.yaml")
	goal := lib.Step(lib.GoalIndex())
	dropB, _ := lib.Lookup("drop", "r1", "box", "b")

	eff, ok := lib.ConsistentEffect(lib.Step(dropB), goal.Preconditions()[0])
	require.True(t, ok)
	assert.Equal(t, "in(box,b)", eff.Key())

	pickA, _ := lib.Lookup("pick", "r1", "box", "a")
	_, ok = lib.ConsistentEffect(lib.Step(pickA), goal.Preconditions()[0])
	assert.False(t, ok)
}

func TestLibrary_SharedObjects(t *testing.T) {
	lib := loadRooms(t, "rooms-domain.yaml")
	pickA, _ := lib.Lookup("pick", "r1", "box", "a")
	dropA, _ := lib.Lookup("drop", "r1", "box", "a")

	objs := lib.Objects()
	require.Len(t, objs, 4)
	assert.Equal(t, lib.Step(pickA).Args()[0].ID, lib.Step(dropA).Args()[0].ID,
		"objects keep one identity across ground actions")
	assert.Equal(t, objs[0].ID, lib.Step(pickA).Args()[0].ID)
}

func TestLibrary_GroundSubplan(t *testing.T) {
	lib := loadRooms(t, "rooms-htn-domain.yaml")

	n, ok := lib.Lookup("deliver", "r1", "box", "a", "b")
	require.True(t, ok)
	deliver := lib.Step(n)
	assert.True(t, deliver.IsDecomp())
	assert.Equal(t, 1, deliver.Height())
	require.NotNil(t, deliver.GroundSubplan)

	sub := deliver.GroundSubplan
	assert.Len(t, sub.Steps(), 3)
	assert.Equal(t, 2, sub.Links.Len())
	assert.True(t, sub.IsInternallyConsistent())

	for _, l := range sub.Links.Links() {
		prod := sub.Action(l.Producer)
		cons := sub.Action(l.Consumer)
		_, isEff := findCondition(prod.Effects(), l.Condition.Key())
		_, isPre := findCondition(cons.Preconditions(), l.Condition.Key())
		assert.True(t, isEff, "link condition is an effect of its producer")
		assert.True(t, isPre, "link condition is a precondition of its consumer")
		assert.True(t, sub.Ordering.IsPath(l.Producer, l.Consumer))
	}

	for _, s := range sub.Steps() {
		orig := lib.Step(s.StepNumber)
		assert.Equal(t, orig.Operator().ReplacedID, s.ReplacedID)
		assert.NotEqual(t, orig.Operator().ID, s.ID)
	}

	primitive, _ := lib.Lookup("pick", "r1", "box", "a")
	assert.False(t, lib.Step(primitive).IsDecomp())
	assert.Nil(t, lib.Step(primitive).GroundSubplan)
}

const tinyDomain = `
name: tiny
operators:
  - name: A
    params: [{name: x}]
    effects:
      - {predicate: q, args: [x]}
      - {predicate: p, args: [x], truth: false}
`

const tinyProblem = `
name: tiny-1
objects: [{name: o}]
goal:
  - {predicate: q, args: [o]}
`

func TestParse_Tiny(t *testing.T) {
	d, err := ParseDomain([]byte(tinyDomain))
	require.NoError(t, err)
	p, err := ParseProblem([]byte(tinyProblem))
	require.NoError(t, err)

	assert.False(t, d.Operators[0].Effects[1].Polarity())
	assert.Equal(t, "not-p(x)", d.Operators[0].Effects[1].String())

	lib, err := Build(context.Background(), d, p)
	require.NoError(t, err)
	assert.Equal(t, 3, lib.Len())
	assert.Equal(t, []int{0}, lib.Antecedents("q(o)"))
	assert.Equal(t, []int{0}, lib.Antecedents("!p(o)"))
	assert.Empty(t, lib.Preconditions(0))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		problem string
		want    error
	}{
		{
			name:    "no goal",
			domain:  tinyDomain,
			problem: "name: p\nobjects: [{name: o}]\n",
			want:    ErrNoGoal,
		},
		{
			name:    "unknown parameter type",
			domain:  "name: d\noperators:\n  - name: A\n    params: [{name: x, type: ghost}]\n",
			problem: tinyProblem,
			want:    ErrUnknownType,
		},
		{
			name:    "unknown symbol in effect",
			domain:  "name: d\noperators:\n  - name: A\n    effects: [{predicate: q, args: [y]}]\n",
			problem: tinyProblem,
			want:    ErrUnknownSymbol,
		},
		{
			name: "subplan without lower step",
			domain: `
name: d
operators:
  - name: big
    height: 2
    effects: [{predicate: q, args: [o]}]
    subplan:
      steps: [{id: s, operator: small}]
  - name: small
    effects: [{predicate: q, args: [o]}]
`,
			problem: tinyProblem,
			want:    ErrInvalidDomain,
		},
		{
			name:    "wrong domain",
			domain:  tinyDomain,
			problem: "name: p\ndomain: other\nobjects: [{name: o}]\ngoal: [{predicate: q, args: [o]}]\n",
			want:    ErrInvalidProblem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDomain([]byte(tt.domain))
			require.NoError(t, err)
			p, err := ParseProblem([]byte(tt.problem))
			require.NoError(t, err)

			_, err = Build(context.Background(), d, p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseDomain_Validation(t *testing.T) {
	t.Run("symbol with separator", func(t *testing.T) {
		_, err := ParseDomain([]byte("name: d\noperators:\n  - name: \"bad name\"\n"))
		assert.ErrorIs(t, err, ErrInvalidDomain)
	})

	t.Run("negation marker in predicate", func(t *testing.T) {
		_, err := ParseDomain([]byte("name: d\noperators:\n  - name: a\n    effects: [{predicate: \"!p\"}]\n"))
		assert.ErrorIs(t, err, ErrInvalidDomain)
	})

	t.Run("no operators", func(t *testing.T) {
		_, err := ParseDomain([]byte("name: d\n"))
		assert.ErrorIs(t, err, ErrInvalidDomain)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseDomain([]byte("name: [\n"))
		assert.ErrorIs(t, err, ErrInvalidDomain)
	})
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("#", MaxYAMLFileSize+1)), 0o600))

	_, err := LoadDomain(context.Background(), path)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestLibrary_ImplementsPlanLibrary(t *testing.T) {
	var l plan.Library = loadRooms(t, "rooms-domain.yaml")
	assert.Equal(t, l.GoalIndex(), l.Len()-1)
}
