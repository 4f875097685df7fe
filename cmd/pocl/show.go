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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPOCL/services/planner/store"
)

var errNoStore = errors.New("no solution store configured (use --store or store.path)")

func newShowCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "show [problem]",
		Short: "List stored solutions",
		Long:  `Lists solutions saved by solve and batch. Without a problem name every stored solution is listed.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if a.store == nil {
					return errNoStore
				}
				problem := ""
				if len(args) == 1 {
					problem = args[0]
				}
				records, err := a.store.List(ctx, problem)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				return writeRecords(cmd.OutOrStdout(), records, verbose)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per solution")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include orderings and causal links")
	return cmd
}

func writeJSON(w io.Writer, records []store.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func writeRecords(w io.Writer, records []store.Record, verbose bool) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no stored solutions")
		return err
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s #%d cost %d saved %s\n", r.Problem, r.Index, r.Cost, r.SavedAt.Format(time.RFC3339))
		for _, s := range r.Steps {
			fmt.Fprintf(w, "  %s\n", s)
		}
		if !verbose {
			continue
		}
		for _, o := range r.Orderings {
			fmt.Fprintf(w, "  order: %s\n", o)
		}
		for _, l := range r.Links {
			if _, err := fmt.Fprintf(w, "  link: %s\n", l); err != nil {
				return err
			}
		}
	}
	return nil
}
