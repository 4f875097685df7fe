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

import "errors"

// Package-level error definitions.
var (
	ErrNoPlan          = errors.New("frontier exhausted without a solution")
	ErrBudgetExhausted = errors.New("search budget exhausted")
	ErrUnknownFlaw     = errors.New("unknown flaw kind")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrNilLibrary      = errors.New("library must not be nil")
)

// PlannerError wraps search errors with the failing operation.
type PlannerError struct {
	Operation string
	Err       error
}

func (e *PlannerError) Error() string {
	return "pocl." + e.Operation + ": " + e.Err.Error()
}

func (e *PlannerError) Unwrap() error {
	return e.Err
}

func newPlannerError(op string, err error) *PlannerError {
	return &PlannerError{Operation: op, Err: err}
}
