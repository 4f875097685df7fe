// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search implements best-first plan-space search over partial plans.
//
// The driver pops the best plan from a Frontier, prunes it if it is
// internally inconsistent, records it as a solution if it has no flaws,
// and otherwise resolves one flaw and pushes every successor. Successors
// are always independent deep copies of their parent.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Stats counts the work done by one Solve call.
type Stats struct {
	// Expanded is the number of plans whose flaw was resolved.
	Expanded int

	// Visited is the number of plans popped from the frontier.
	Visited int

	// Pruned is the number of popped plans discarded as inconsistent.
	Pruned int

	// Generated is the number of successor plans pushed.
	Generated int

	// Frontier is the frontier size after the last pop.
	Frontier int
}

// Config configures a PlanSpacePlanner.
type Config struct {
	// Solutions is the number of complete plans to find before stopping.
	Solutions int

	// MaxExpansions bounds the number of expansions. Zero means unbounded.
	MaxExpansions int

	// HeightPenalty is added per decomposition level of the needing step
	// to open conditions no reusable step satisfies.
	HeightPenalty float64

	// FlawOrder is the kind priority used to pick the next flaw.
	// Nil means plan.DefaultFlawOrder.
	FlawOrder []plan.FlawKind

	// Abort is checked between pops. Returning true stops the search.
	Abort func(Stats) bool

	// Unifier resolves decomposition flaws. Nil means SpliceUnifier.
	Unifier Unifier

	// Logger receives search progress. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Solutions:     1,
		HeightPenalty: plan.DefaultHeightPenalty,
		FlawOrder:     plan.DefaultFlawOrder,
	}
}

// Result is the outcome of a Solve call.
type Result struct {
	// Solutions are the complete plans, in the order they were found.
	Solutions []*plan.Plan

	Stats
}

// -----------------------------------------------------------------------------
// Planner
// -----------------------------------------------------------------------------

// PlanSpacePlanner searches for complete plans over a grounded library.
//
// Description:
//
//	Implements partial-order causal-link planning. The root plan holds
//	the initial and goal pseudo-steps and one open condition per goal
//	literal. Each expansion picks one flaw and produces every successor
//	that resolves it:
//
//	- opf: reuse an existing step's effect, or insert a new library step
//	- tclf: promote or demote the threatening step
//	- dcf: splice the compound step's ground subplan via the Unifier
//
//	Plans are ranked by cost plus the additive reuse heuristic.
//
// Thread Safety: A PlanSpacePlanner holds no per-search state and may be
// shared. The library is only read.
type PlanSpacePlanner struct {
	lib    plan.Library
	config *Config
	logger *slog.Logger
	unify  Unifier
}

// NewPlanSpacePlanner creates a planner over lib.
//
// Inputs:
//
//	lib - The grounded library. Must not be nil.
//	config - Search configuration. Nil uses DefaultConfig().
//
// Outputs:
//
//	*PlanSpacePlanner - The planner.
func NewPlanSpacePlanner(lib plan.Library, config *Config) *PlanSpacePlanner {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	unify := config.Unifier
	if unify == nil {
		unify = SpliceUnifier{}
	}
	return &PlanSpacePlanner{lib: lib, config: config, logger: logger, unify: unify}
}

// Setup builds and evaluates the root plan.
func (s *PlanSpacePlanner) Setup(name string) *plan.Plan {
	root := plan.Seed(name, s.lib)
	root.Evaluate(s.lib, s.config.HeightPenalty)
	return root
}

// Solve runs best-first search until enough solutions are found.
//
// Description:
//
//	Loops: check cancellation, budget and the abort hook; pop the best
//	plan; discard it if inconsistent; record it if it has no flaws;
//	otherwise resolve its next flaw and push the evaluated children.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	name - Problem name, used for the root plan and telemetry.
//
// Outputs:
//
//	*Result - Solutions found and search statistics. Always non-nil.
//	error - ErrNoPlan if the frontier drained with no solution,
//	ErrBudgetExhausted if the budget or abort hook stopped the search
//	with no solution, or the context error. Solutions found before the
//	budget ran out are returned with a nil error; solutions found before
//	cancellation are returned alongside the context error.
func (s *PlanSpacePlanner) Solve(ctx context.Context, name string) (*Result, error) {
	res := &Result{}
	if s.lib == nil {
		return res, newPlannerError("Solve", ErrNilLibrary)
	}
	if s.config.Solutions < 1 {
		return res, newPlannerError("Solve", fmt.Errorf("%w: solutions must be >= 1, got %d", ErrInvalidConfig, s.config.Solutions))
	}

	ctx, span := startSolveSpan(ctx, name, s.config.Solutions)
	defer span.End()
	start := time.Now()

	err := s.run(ctx, name, res)

	setSolveSpanResult(span, res)
	outcome := "solved"
	switch {
	case err != nil:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case len(res.Solutions) < s.config.Solutions:
		outcome = "partial"
	}
	recordSolve(ctx, outcome, time.Since(start), len(res.Solutions))
	return res, err
}

func (s *PlanSpacePlanner) run(ctx context.Context, name string, res *Result) error {
	frontier := NewFrontier()
	frontier.Push(s.Setup(name))

	for frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return newPlannerError("Solve", err)
		}
		if s.config.MaxExpansions > 0 && res.Expanded >= s.config.MaxExpansions {
			s.logger.Warn("expansion budget exhausted",
				"problem", name, "expanded", res.Expanded, "solutions", len(res.Solutions))
			return s.stopped(res, newPlannerError("Solve", ErrBudgetExhausted))
		}
		if s.config.Abort != nil && s.config.Abort(res.Stats) {
			s.logger.Warn("search aborted", "problem", name, "expanded", res.Expanded)
			return s.stopped(res, newPlannerError("Solve", fmt.Errorf("%w: aborted", ErrBudgetExhausted)))
		}

		p := frontier.Pop()
		res.Visited++
		res.Frontier = frontier.Len()
		frontierSize.Set(float64(res.Frontier))

		if !p.IsInternallyConsistent() {
			res.Pruned++
			recordPruned(ctx)
			continue
		}

		if p.Flaws.Len() == 0 {
			res.Solutions = append(res.Solutions, p)
			s.logger.Info("solution found",
				"problem", name,
				"cost", p.Cost(),
				"expanded", res.Expanded,
				"visited", res.Visited)
			if len(res.Solutions) >= s.config.Solutions {
				return nil
			}
			continue
		}

		children, kind, err := s.Expand(p)
		if err != nil {
			return newPlannerError("Expand", err)
		}
		res.Expanded++
		recordExpansion(ctx, string(kind), len(children))
		s.logger.Debug("expanded plan",
			"plan", p.ID,
			"flaw", kind,
			"cost", p.Cost(),
			"heuristic", p.Heuristic(),
			"children", len(children))

		for _, c := range children {
			c.Evaluate(s.lib, s.config.HeightPenalty)
			frontier.Push(c)
			res.Generated++
		}
	}

	if len(res.Solutions) == 0 {
		return newPlannerError("Solve", ErrNoPlan)
	}
	return nil
}

// stopped returns err unless some solution was already found.
func (s *PlanSpacePlanner) stopped(res *Result, err error) error {
	if len(res.Solutions) > 0 {
		return nil
	}
	return err
}

// Expand resolves the next flaw of p.
//
// Description:
//
//	p is not modified: the flaw is selected on a copy and every child is
//	derived from that copy. Inconsistent plans produce no children.
//
// Outputs:
//
//	[]*plan.Plan - Successor plans, not yet evaluated.
//	plan.FlawKind - The kind of flaw that was resolved.
//	error - ErrUnknownFlaw for a flaw kind with no resolver.
func (s *PlanSpacePlanner) Expand(p *plan.Plan) ([]*plan.Plan, plan.FlawKind, error) {
	if !p.IsInternallyConsistent() {
		return nil, "", nil
	}
	work := p.Copy()
	flaw, ok := work.Flaws.Next(s.config.FlawOrder)
	if !ok {
		return nil, "", nil
	}

	switch flaw.Kind {
	case plan.FlawOpenCondition:
		children := s.Reuse(work, flaw)
		return append(children, s.NewStep(work, flaw)...), flaw.Kind, nil
	case plan.FlawThreat:
		return s.ResolveThreat(work, flaw), flaw.Kind, nil
	case plan.FlawDecomposition:
		return s.Decompose(work, flaw), flaw.Kind, nil
	default:
		return nil, flaw.Kind, fmt.Errorf("%w: %q", ErrUnknownFlaw, flaw.Kind)
	}
}
