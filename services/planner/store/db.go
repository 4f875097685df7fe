// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists solved plans in an embedded BadgerDB.
//
// Solutions are written as JSON records keyed by problem name and a
// per-problem sequence number, so `pocl show` can list them after the
// planning run has exited.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// ErrNoPath is returned when an on-disk store has no directory.
var ErrNoPath = errors.New("store path is required unless in-memory")

// Config configures the solution database.
type Config struct {
	// Path is the database directory, created with 0750 if missing.
	Path string

	// InMemory keeps the database in RAM and ignores Path.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's own log lines, tagged component=badger.
	// Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns an on-disk configuration at path with synced writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns an in-memory configuration.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Solution records are a few KB each; smaller tables keep a CLI
// invocation's footprint low.
const (
	memTableSize     = 8 << 20
	valueLogFileSize = 64 << 20
)

// slogAdapter forwards Badger's printf-style logging to slog. Badger's
// Info level is chatty at startup and is demoted to Debug.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) logf(level slog.Level, format string, args []interface{}) {
	if a.logger.Enabled(context.Background(), level) {
		a.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
	}
}

func (a slogAdapter) Errorf(f string, v ...interface{})   { a.logf(slog.LevelError, f, v) }
func (a slogAdapter) Warningf(f string, v ...interface{}) { a.logf(slog.LevelWarn, f, v) }
func (a slogAdapter) Infof(f string, v ...interface{})    { a.logf(slog.LevelDebug, f, v) }
func (a slogAdapter) Debugf(f string, v ...interface{})   { a.logf(slog.LevelDebug, f, v) }

func badgerOptions(cfg Config) (badger.Options, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return opts, ErrNoPath
	default:
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return opts, fmt.Errorf("creating store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithValueLogFileSize(valueLogFileSize)
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithLogger(nil)
	if cfg.Logger != nil {
		opts = opts.WithLogger(slogAdapter{logger: cfg.Logger.With("component", "badger")})
	}
	return opts, nil
}

func open(cfg Config) (*badger.DB, error) {
	opts, err := badgerOptions(cfg)
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", cfg.Path, err)
	}
	return db, nil
}
