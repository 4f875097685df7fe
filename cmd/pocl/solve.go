// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPOCL/services/planner/library"
	"github.com/AleutianAI/AleutianPOCL/services/planner/search"
	"github.com/AleutianAI/AleutianPOCL/services/planner/store"
	"github.com/AleutianAI/AleutianPOCL/services/planner/telemetry"
)

// searchFlags are the per-run overrides shared by solve and batch.
type searchFlags struct {
	solutions     int
	maxExpansions int
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.solutions, "solutions", "n", 1, "number of solutions to find")
	cmd.Flags().IntVar(&f.maxExpansions, "max-expansions", 0, "expansion budget per problem (0 = unbounded)")
}

// apply copies explicitly set flags into the loaded config.
func (f *searchFlags) apply(cmd *cobra.Command, a *app) error {
	if cmd.Flags().Changed("solutions") {
		a.cfg.Solutions = f.solutions
	}
	if cmd.Flags().Changed("max-expansions") {
		a.cfg.MaxExpansions = f.maxExpansions
	}
	return a.cfg.Validate()
}

func newSolveCmd(a *app) *cobra.Command {
	var (
		domain, problem string
		sf              searchFlags
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve one planning problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if err := sf.apply(cmd, a); err != nil {
					return err
				}
				rep, err := a.solve(ctx, domain, problem)
				if rep != nil {
					if werr := rep.write(cmd.OutOrStdout()); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain YAML file")
	cmd.Flags().StringVarP(&problem, "problem", "p", "", "problem YAML file")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("problem")
	sf.register(cmd)
	return cmd
}

// report is the printable outcome of one problem.
type report struct {
	Problem string
	Stats   search.Stats
	Records []store.Record
	Stored  bool
}

// solve loads, solves and optionally stores one problem. A non-nil
// report is returned whenever the problem was loaded, even on error.
func (a *app) solve(ctx context.Context, domainPath, problemPath string) (*report, error) {
	lib, err := library.Load(ctx, domainPath, problemPath)
	if err != nil {
		return nil, err
	}

	logger := telemetry.LoggerWithTrace(ctx, a.logger.Slog()).With("problem", lib.Name())
	sc, err := a.cfg.SearchConfig(logger)
	if err != nil {
		return nil, err
	}

	solveCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	res, solveErr := search.NewPlanSpacePlanner(lib, sc).Solve(solveCtx, lib.Name())

	rep := &report{Problem: lib.Name(), Stats: res.Stats, Stored: a.store != nil}
	for _, p := range res.Solutions {
		var rec store.Record
		if a.store != nil {
			rec, err = a.store.Save(ctx, lib.Name(), p)
		} else {
			rec, err = store.NewRecord(lib.Name(), p)
		}
		if err != nil {
			return rep, err
		}
		rep.Records = append(rep.Records, rec)
	}
	return rep, solveErr
}

func (r *report) write(w io.Writer) error {
	s := r.Stats
	if _, err := fmt.Fprintf(w, "%s: %d solution(s) [expanded %d, visited %d, generated %d, pruned %d]\n",
		r.Problem, len(r.Records), s.Expanded, s.Visited, s.Generated, s.Pruned); err != nil {
		return err
	}
	for i, rec := range r.Records {
		header := fmt.Sprintf("solution %d (cost %d)", i+1, rec.Cost)
		if r.Stored {
			header += fmt.Sprintf(" stored as #%d", rec.Index)
		}
		if _, err := fmt.Fprintln(w, header); err != nil {
			return err
		}
		for _, step := range rec.Steps {
			if _, err := fmt.Fprintf(w, "  %s\n", step); err != nil {
				return err
			}
		}
	}
	return nil
}
