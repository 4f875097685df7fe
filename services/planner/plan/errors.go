// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import "errors"

// Sentinel errors for plan operations.
var (
	// ErrUnknownFlawKind is returned when a flaw kind name is not recognized.
	ErrUnknownFlawKind = errors.New("unknown flaw kind")

	// ErrUnknownStep is returned when a step identity is not in the plan.
	ErrUnknownStep = errors.New("unknown step")

	// ErrNoOrderingRoot is returned when a topological sort has no initial step.
	ErrNoOrderingRoot = errors.New("plan has no initial step")
)
