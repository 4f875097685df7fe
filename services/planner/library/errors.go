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

import "errors"

// Sentinel errors for library construction.
var (
	// ErrInvalidDomain is returned when a domain fails validation or
	// references something it does not declare.
	ErrInvalidDomain = errors.New("invalid domain")

	// ErrInvalidProblem is returned when a problem fails validation.
	ErrInvalidProblem = errors.New("invalid problem")

	// ErrUnknownType is returned when a parameter or object names an
	// undeclared type.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownSymbol is returned when an atom argument is neither a
	// parameter nor an object.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrNoGoal is returned when a problem has an empty goal.
	ErrNoGoal = errors.New("problem has no goal")

	// ErrFileTooLarge is returned when an input file exceeds MaxYAMLFileSize.
	ErrFileTooLarge = errors.New("file too large")
)
