// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for search operations.
var (
	tracer = otel.Tracer("pocl.planner.search")
	meter  = otel.Meter("pocl.planner.search")
)

// OpenTelemetry instruments, created lazily.
var (
	solveLatency  metric.Float64Histogram
	expandedTotal metric.Int64Counter
	prunedTotal   metric.Int64Counter
	childrenHist  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// Prometheus collectors.
var (
	solveOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pocl",
		Subsystem: "search",
		Name:      "solve_total",
		Help:      "Total Solve calls by outcome",
	}, []string{"outcome"})

	frontierSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pocl",
		Subsystem: "search",
		Name:      "frontier_size",
		Help:      "Frontier size at the last expansion",
	})

	solutionsFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pocl",
		Subsystem: "search",
		Name:      "solutions_total",
		Help:      "Total complete plans found",
	})
)

// initMetrics initializes the otel instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		solveLatency, err = meter.Float64Histogram(
			"pocl_solve_duration_seconds",
			metric.WithDescription("Duration of Solve calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		expandedTotal, err = meter.Int64Counter(
			"pocl_plans_expanded_total",
			metric.WithDescription("Plans expanded by the search driver"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		prunedTotal, err = meter.Int64Counter(
			"pocl_plans_pruned_total",
			metric.WithDescription("Inconsistent plans discarded without expansion"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		childrenHist, err = meter.Int64Histogram(
			"pocl_children_per_expansion",
			metric.WithDescription("Successor plans produced per flaw resolution"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordExpansion records one flaw resolution.
func recordExpansion(ctx context.Context, kind string, children int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("flaw", kind))
	expandedTotal.Add(ctx, 1, attrs)
	childrenHist.Record(ctx, int64(children), attrs)
}

// recordPruned records one discarded plan.
func recordPruned(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	prunedTotal.Add(ctx, 1)
}

// recordSolve records the outcome of a Solve call.
func recordSolve(ctx context.Context, outcome string, duration time.Duration, solutions int) {
	solveOutcomes.WithLabelValues(outcome).Inc()
	solutionsFound.Add(float64(solutions))
	if err := initMetrics(); err != nil {
		return
	}
	solveLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// startSolveSpan creates a span for a Solve call.
func startSolveSpan(ctx context.Context, problem string, want int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "PlanSpacePlanner.Solve",
		trace.WithAttributes(
			attribute.String("pocl.problem", problem),
			attribute.Int("pocl.solutions_wanted", want),
		),
	)
}

// setSolveSpanResult sets the result attributes on a Solve span.
func setSolveSpanResult(span trace.Span, r *Result) {
	span.SetAttributes(
		attribute.Int("pocl.solutions", len(r.Solutions)),
		attribute.Int("pocl.expanded", r.Expanded),
		attribute.Int("pocl.visited", r.Visited),
		attribute.Int("pocl.pruned", r.Pruned),
		attribute.Int("pocl.generated", r.Generated),
	)
}
