// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianPOCL/services/planner/plan"
)

// Package-level error definitions.
var (
	ErrClosed       = errors.New("solution store is closed")
	ErrEmptyProblem = errors.New("problem name must not be empty")
	ErrNilPlan      = errors.New("plan must not be nil")
)

var tracer = otel.Tracer("pocl.planner.store")

const (
	keyPrefix = "solution/"

	// maxSaveAttempts bounds transaction retries on write conflicts.
	maxSaveAttempts = 16
)

// Record is the stored form of one solution.
type Record struct {
	Problem   string    `json:"problem"`
	Index     int       `json:"index"`
	PlanID    string    `json:"plan_id"`
	Cost      int       `json:"cost"`
	Steps     []string  `json:"steps"`
	Orderings []string  `json:"orderings"`
	Links     []string  `json:"links"`
	SavedAt   time.Time `json:"saved_at"`
}

// NewRecord renders a solved plan.
//
// Steps are listed in topological order from the initial step.
func NewRecord(problem string, p *plan.Plan) (Record, error) {
	if p == nil {
		return Record{}, ErrNilPlan
	}
	steps, err := plan.Sequence(p)
	if err != nil {
		return Record{}, fmt.Errorf("ordering steps: %w", err)
	}

	label := func(id string) string { return p.Action(id).String() }
	r := Record{
		Problem: problem,
		PlanID:  p.ID,
		Cost:    p.Cost(),
		Steps:   steps,
	}
	for _, o := range p.Ordering.Edges() {
		r.Orderings = append(r.Orderings, label(o.Before)+" < "+label(o.After))
	}
	for _, l := range p.Links.Links() {
		r.Links = append(r.Links, fmt.Sprintf("%s --%s--> %s", label(l.Producer), l.Condition, label(l.Consumer)))
	}
	return r, nil
}

// SolutionStore persists solved plans.
//
// Thread Safety: Safe for concurrent use. Index assignment happens inside
// a badger transaction; conflicting writers are retried.
type SolutionStore struct {
	db     *badger.DB
	closed atomic.Bool
}

// Open opens a solution store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*SolutionStore - The store. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*SolutionStore, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &SolutionStore{db: db}, nil
}

// Save appends a solution for problem and returns the stored record.
//
// Description:
//
//	The record index is one past the highest index already stored for
//	the problem. The whole read-then-write runs in one transaction and
//	is retried on conflict, up to maxSaveAttempts times or until ctx is
//	done.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	problem - Problem name. Must not be empty.
//	p - A solved plan.
//
// Outputs:
//
//	Record - The stored record, with Index and SavedAt set.
//	error - Non-nil if the store is closed or the write fails.
func (s *SolutionStore) Save(ctx context.Context, problem string, p *plan.Plan) (Record, error) {
	if s.closed.Load() {
		return Record{}, ErrClosed
	}
	if problem == "" {
		return Record{}, ErrEmptyProblem
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	_, span := tracer.Start(ctx, "SolutionStore.Save",
		trace.WithAttributes(attribute.String("pocl.problem", problem)),
	)
	defer span.End()

	rec, err := NewRecord(problem, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return Record{}, err
	}

	for attempt := 1; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			next, err := nextIndex(txn, problem)
			if err != nil {
				return err
			}
			rec.Index = next
			rec.SavedAt = time.Now().UTC()
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			return txn.Set(recordKey(problem, next), data)
		})
		if !errors.Is(err, badger.ErrConflict) || attempt == maxSaveAttempts {
			break
		}
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			break
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return Record{}, fmt.Errorf("save solution: %w", err)
	}
	span.SetAttributes(attribute.Int("pocl.index", rec.Index))
	return rec, nil
}

// List returns the stored solutions for problem in index order.
// An empty problem lists every stored solution.
func (s *SolutionStore) List(ctx context.Context, problem string) ([]Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	_, span := tracer.Start(ctx, "SolutionStore.List",
		trace.WithAttributes(attribute.String("pocl.problem", problem)),
	)
	defer span.End()

	prefix := []byte(keyPrefix)
	if problem != "" {
		prefix = problemPrefix(problem)
	}

	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("pocl.records", len(out)))
	return out, nil
}

// Close closes the store. Safe to call multiple times.
func (s *SolutionStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// problemPrefix escapes the problem name so that a "/" inside it cannot
// make one problem's keys fall under another's prefix.
func problemPrefix(problem string) []byte {
	return []byte(keyPrefix + url.PathEscape(problem) + "/")
}

func recordKey(problem string, index int) []byte {
	return append(problemPrefix(problem), fmt.Sprintf("%06d", index)...)
}

// nextIndex scans the problem's keys in reverse for the highest index.
// Keys whose suffix is not a plain index are skipped.
func nextIndex(txn *badger.Txn, problem string) (int, error) {
	prefix := problemPrefix(problem)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		last, ok := parseIndex(it.Item().Key()[len(prefix):])
		if ok {
			return last + 1, nil
		}
	}
	return 0, nil
}

func parseIndex(suffix []byte) (int, bool) {
	if len(suffix) == 0 {
		return 0, false
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(string(suffix))
	return n, err == nil
}
