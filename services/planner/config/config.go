// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads planner configuration.
//
// Values are resolved in priority order: environment > file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianPOCL/pkg/logging"
	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
	"github.com/AleutianAI/AleutianPOCL/services/planner/search"
	"github.com/AleutianAI/AleutianPOCL/services/planner/store"
	"github.com/AleutianAI/AleutianPOCL/services/planner/telemetry"
)

// MaxConfigFileSize bounds the size of a config file.
const MaxConfigFileSize = 1024 * 1024

// Environment variables that override file values.
const (
	EnvSolutions     = "POCL_SOLUTIONS"
	EnvMaxExpansions = "POCL_MAX_EXPANSIONS"
	EnvStorePath     = "POCL_STORE_PATH"
	EnvLogLevel      = "POCL_LOG_LEVEL"
	EnvTimeout       = "POCL_TIMEOUT"
)

var (
	// ErrInvalidConfig is returned when a config fails validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrFileTooLarge is returned when a config file exceeds MaxConfigFileSize.
	ErrFileTooLarge = errors.New("config file too large")
)

var configValidate = validator.New()

// Config is the top-level planner configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Solutions is the number of complete plans to find per problem.
	Solutions int `yaml:"solutions" validate:"gte=1"`

	// MaxExpansions bounds search work per problem. 0 is unbounded.
	MaxExpansions int `yaml:"max_expansions" validate:"gte=0"`

	// HeightPenalty is the per-level open-condition penalty.
	HeightPenalty float64 `yaml:"height_penalty" validate:"gte=0"`

	// FlawOrder is the flaw kind priority, highest first.
	FlawOrder []string `yaml:"flaw_order" validate:"min=1,unique,dive,oneof=opf tclf dcf"`

	// Timeout bounds one Solve call. 0 means no timeout.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Store     StoreConfig     `yaml:"store"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" validate:"oneof=none stdout prometheus"`
	MetricsAddr  string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// StoreConfig configures the solution store. An empty Path with
// InMemory false disables persistence.
type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// Default returns the default configuration.
func Default() Config {
	order := make([]string, len(plan.DefaultFlawOrder))
	for i, k := range plan.DefaultFlawOrder {
		order[i] = string(k)
	}
	return Config{
		Solutions:     1,
		HeightPenalty: plan.DefaultHeightPenalty,
		FlawOrder:     order,
		Log:           LogConfig{Level: "info"},
		Telemetry:     TelemetryConfig{Traces: "none", Metrics: "none"},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//
//	path - Path to a YAML config file. Empty means defaults only. A
//	missing file is an error, unlike an empty path.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Non-nil if the file is unreadable, too large, has unknown
//	keys, or the merged result fails validation.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > MaxConfigFileSize {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, path, info.Size(), MaxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv(EnvSolutions); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvSolutions, v)
		}
		cfg.Solutions = i
	}
	if v := os.Getenv(EnvMaxExpansions); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvMaxExpansions, v)
		}
		cfg.MaxExpansions = i
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvTimeout, v)
		}
		cfg.Timeout = d
	}
	return nil
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SearchConfig converts c to a search configuration.
func (c Config) SearchConfig(logger *slog.Logger) (*search.Config, error) {
	order := make([]plan.FlawKind, 0, len(c.FlawOrder))
	for _, s := range c.FlawOrder {
		k, err := plan.ParseFlawKind(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		order = append(order, k)
	}
	sc := search.DefaultConfig()
	sc.Solutions = c.Solutions
	sc.MaxExpansions = c.MaxExpansions
	sc.HeightPenalty = c.HeightPenalty
	sc.FlawOrder = order
	sc.Logger = logger
	return sc, nil
}

// StoreConfig converts c to a store configuration. ok is false when
// persistence is disabled.
func (c Config) StoreConfig(logger *slog.Logger) (store.Config, bool) {
	switch {
	case c.Store.InMemory:
		sc := store.InMemoryConfig()
		sc.Logger = logger
		return sc, true
	case c.Store.Path != "":
		sc := store.DefaultConfig(c.Store.Path)
		sc.Logger = logger
		return sc, true
	default:
		return store.Config{}, false
	}
}

// TelemetryConfig converts c to a telemetry configuration.
func (c Config) TelemetryConfig(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.TraceExporter = c.Telemetry.Traces
	tc.MetricExporter = c.Telemetry.Metrics
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	return tc
}

// LoggingConfig converts c to a logger configuration.
func (c Config) LoggingConfig() (logging.Config, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return logging.Config{
		Level:   level,
		JSON:    c.Log.JSON,
		LogDir:  c.Log.Dir,
		Service: "pocl",
	}, nil
}
