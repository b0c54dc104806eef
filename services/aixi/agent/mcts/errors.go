// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import "errors"

var (
	// ErrNilModel is returned when SelectAction is called without a model.
	ErrNilModel = errors.New("mcts: nil context model")

	// ErrNilRand is returned when SelectAction is called without a random
	// source.
	ErrNilRand = errors.New("mcts: nil random source")

	// ErrModelNotReverted means a search left the model in a different
	// state than it found it. Always a defect.
	ErrModelNotReverted = errors.New("mcts: context model not restored after search")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("mcts: invalid config")

	// ErrIllegalAction is returned when a legal action is not in the
	// environment's declared action set.
	ErrIllegalAction = errors.New("mcts: action not declared by environment")

	// ErrTimeLimitExceeded and ErrNodeLimitExceeded report which limit
	// ended a search early. See Result.Limit.
	ErrTimeLimitExceeded = errors.New("mcts: time limit exceeded")
	ErrNodeLimitExceeded = errors.New("mcts: node limit exceeded")
)
