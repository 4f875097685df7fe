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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPOCL/pkg/logging"
	"github.com/AleutianAI/AleutianPOCL/services/planner/config"
	"github.com/AleutianAI/AleutianPOCL/services/planner/store"
	"github.com/AleutianAI/AleutianPOCL/services/planner/telemetry"
)

// app holds the state shared by every subcommand for one invocation.
type app struct {
	configPath string
	logLevel   string
	storePath  string
	inMemory   bool

	cfg      config.Config
	logger   *logging.Logger
	store    *store.SolutionStore
	shutdown func(context.Context) error

	stopMetrics context.CancelFunc
	metricsDone chan error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pocl",
		Short:         "Partial-order causal-link planner",
		Long:          `pocl searches plan space for partially ordered plans that achieve a problem's goal from its initial state, using typed domain operators and optional hierarchical decompositions.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.storePath, "store", "", "solution store directory")
	flags.BoolVar(&a.inMemory, "in-memory", false, "keep the solution store in memory")

	root.AddCommand(newSolveCmd(a), newBatchCmd(a), newShowCmd(a))
	return root
}

// run starts the app, calls fn, and always stops the app afterwards.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		err = errors.Join(err, a.stop())
	}()
	if err := a.start(ctx, cmd); err != nil {
		return err
	}
	return fn(ctx)
}

// start loads config and brings up logging, telemetry and the store.
// Flags override config file and environment values.
func (a *app) start(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	if a.inMemory {
		cfg.Store.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lc, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()
	a.logger = logging.New(lc)

	tc := cfg.TelemetryConfig(version)
	tc.Writer = cmd.ErrOrStderr()
	a.shutdown, err = telemetry.Init(ctx, tc)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		mctx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		a.metricsDone = make(chan error, 1)
		go func() { a.metricsDone <- telemetry.ServeMetrics(mctx, addr) }()
		a.logger.Info("serving metrics", "addr", addr)
	}

	if sc, ok := cfg.StoreConfig(a.logger.Slog()); ok {
		a.store, err = store.Open(sc)
		if err != nil {
			return err
		}
	}
	return nil
}

// stop releases everything start acquired, in reverse order.
func (a *app) stop() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		errs = append(errs, <-a.metricsDone)
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// withTimeout applies the configured per-problem timeout.
func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}
