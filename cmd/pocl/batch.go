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
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		domain   string
		parallel int
		failFast bool
		sf       searchFlags
	)
	cmd := &cobra.Command{
		Use:   "batch [problem files...]",
		Short: "Solve many problems over one domain concurrently",
		Long:  `Each problem file is loaded and solved by an independent planner run. Results are printed in argument order once every run has finished.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, problems []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if err := sf.apply(cmd, a); err != nil {
					return err
				}
				if parallel < 1 {
					return fmt.Errorf("--parallel must be >= 1, got %d", parallel)
				}
				return a.batch(ctx, cmd, domain, problems, parallel, failFast)
			})
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain YAML file")
	cmd.Flags().IntVarP(&parallel, "parallel", "j", runtime.GOMAXPROCS(0), "maximum concurrent runs")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining runs after the first failure")
	_ = cmd.MarkFlagRequired("domain")
	sf.register(cmd)
	return cmd
}

func (a *app) batch(ctx context.Context, cmd *cobra.Command, domain string, problems []string, parallel int, failFast bool) error {
	reports := make([]*report, len(problems))
	errs := make([]error, len(problems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range problems {
		g.Go(func() error {
			reports[i], errs[i] = a.solve(gctx, domain, path)
			if errs[i] != nil {
				a.logger.Warn("problem failed", "file", path, "error", errs[i])
				if failFast {
					return errs[i]
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := cmd.OutOrStdout()
	failed := 0
	for i, path := range problems {
		if reports[i] != nil {
			if err := reports[i].write(out); err != nil {
				return err
			}
		}
		if errs[i] != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, errs[i])
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d problems failed", failed, len(problems))
	}
	return nil
}
