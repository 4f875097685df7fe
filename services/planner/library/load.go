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
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize is the maximum allowed domain or problem file size (4MB).
const MaxYAMLFileSize = 4 * 1024 * 1024

// =============================================================================
// Metrics
// =============================================================================

var tracer = otel.Tracer("pocl.planner.library")

var (
	loadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pocl",
		Subsystem: "library",
		Name:      "load_errors_total",
		Help:      "Total domain/problem load or grounding failures",
	})

	groundingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pocl",
		Subsystem: "library",
		Name:      "grounding_duration_seconds",
		Help:      "Duration of library grounding",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	groundActions = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pocl",
		Subsystem: "library",
		Name:      "ground_actions",
		Help:      "Number of ground actions per library",
		Buckets:   prometheus.ExponentialBuckets(4, 4, 8),
	})
)

// =============================================================================
// Loading
// =============================================================================

// Load reads, validates and grounds a domain and problem file pair.
//
// Inputs:
//
//	ctx - Context for tracing.
//	domainPath - Path to the domain YAML.
//	problemPath - Path to the problem YAML.
//
// Outputs:
//
//	*Library - The grounded library.
//	error - Non-nil on read, parse, validation or grounding failure.
func Load(ctx context.Context, domainPath, problemPath string) (*Library, error) {
	ctx, span := tracer.Start(ctx, "library.Load")
	defer span.End()

	d, err := LoadDomain(ctx, domainPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "domain load failed")
		return nil, err
	}
	p, err := LoadProblem(ctx, problemPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "problem load failed")
		return nil, err
	}
	return Build(ctx, d, p)
}

// LoadDomain reads and validates a domain file.
func LoadDomain(ctx context.Context, path string) (*Domain, error) {
	data, err := readYAML(ctx, path)
	if err != nil {
		return nil, err
	}
	d, err := ParseDomain(data)
	if err != nil {
		return nil, fmt.Errorf("domain %s: %w", path, err)
	}
	return d, nil
}

// LoadProblem reads and validates a problem file.
func LoadProblem(ctx context.Context, path string) (*Problem, error) {
	data, err := readYAML(ctx, path)
	if err != nil {
		return nil, err
	}
	p, err := ParseProblem(data)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", path, err)
	}
	return p, nil
}

// ParseDomain unmarshals and validates domain YAML.
func ParseDomain(data []byte) (*Domain, error) {
	var d Domain
	if err := yaml.Unmarshal(data, &d); err != nil {
		loadErrors.Inc()
		return nil, fmt.Errorf("%w: unmarshaling YAML: %v", ErrInvalidDomain, err)
	}
	if err := d.Validate(); err != nil {
		loadErrors.Inc()
		return nil, err
	}
	return &d, nil
}

// ParseProblem unmarshals and validates problem YAML.
func ParseProblem(data []byte) (*Problem, error) {
	var p Problem
	if err := yaml.Unmarshal(data, &p); err != nil {
		loadErrors.Inc()
		return nil, fmt.Errorf("%w: unmarshaling YAML: %v", ErrInvalidProblem, err)
	}
	if err := p.Validate(); err != nil {
		loadErrors.Inc()
		return nil, err
	}
	return &p, nil
}

// readYAML reads a file after checking its size.
func readYAML(ctx context.Context, path string) ([]byte, error) {
	_, span := tracer.Start(ctx, "library.ReadFile",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		loadErrors.Inc()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		loadErrors.Inc()
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, path, info.Size(), MaxYAMLFileSize)
	}
	span.SetAttributes(attribute.Int64("file_size", info.Size()))

	data, err := os.ReadFile(absPath)
	if err != nil {
		loadErrors.Inc()
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}
