// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ctw

import "errors"

var (
	// ErrInvalidSymbol is returned when a symbol outside {0, 1} is offered
	// to the model.
	ErrInvalidSymbol = errors.New("ctw: symbol outside binary alphabet")

	// ErrRevertBeyondHistory is returned when more symbols are reverted than
	// the history holds. The model is left untouched; callers must treat it
	// as a defect rather than clamp.
	ErrRevertBeyondHistory = errors.New("ctw: revert beyond recorded history")

	// ErrInvalidDepth is returned for a negative context depth.
	ErrInvalidDepth = errors.New("ctw: context depth must be non-negative")

	// ErrInvalidCount is returned for negative counts and bit widths.
	ErrInvalidCount = errors.New("ctw: count must be non-negative")

	// ErrValueOverflow is returned when a value does not fit its bit width.
	ErrValueOverflow = errors.New("ctw: value does not fit bit width")
)
