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

import (
	"fmt"
	"math"
	"time"
)

// Config controls a search.
type Config struct {
	// Horizon is the number of action/percept steps per rollout.
	Horizon int `json:"horizon" yaml:"horizon"`

	// Simulations is the number of rollouts per decision.
	Simulations int `json:"simulations" yaml:"simulations"`

	// ExplorationConstant is C in mean + C·sqrt(ln N / n). Values are
	// normalized to [0, 1], so √2 is the classic UCB1 setting.
	ExplorationConstant float64 `json:"exploration_constant" yaml:"exploration_constant"`

	// Discount is the per-step reward discount γ in (0, 1].
	Discount float64 `json:"discount" yaml:"discount"`

	// MaxTreeDepth bounds how many decision levels the search tree keeps.
	// Below it rollouts continue with the playout policy. 0 means the
	// horizon is the only bound.
	MaxTreeDepth int `json:"max_tree_depth" yaml:"max_tree_depth"`

	// MaxNodes caps search tree size per worker. 0 means unlimited.
	MaxNodes int `json:"max_nodes" yaml:"max_nodes"`

	// TimeLimit caps wall-clock time per decision. 0 means unlimited.
	TimeLimit time.Duration `json:"time_limit" yaml:"time_limit"`

	// Workers is the number of root-parallel searchers, each on its own
	// clone of the model. 1 searches on the caller's model.
	Workers int `json:"workers" yaml:"workers"`

	// VerifyRevert hashes the model before and after each search and
	// fails with ErrModelNotReverted on any difference.
	VerifyRevert bool `json:"verify_revert" yaml:"verify_revert"`
}

// DefaultConfig mirrors the classic MC-AIXI-CTW settings.
func DefaultConfig() Config {
	return Config{
		Horizon:             5,
		Simulations:         300,
		ExplorationConstant: math.Sqrt2,
		Discount:            1.0,
		Workers:             1,
	}
}

// Validate checks ranges. Zero Horizon and Simulations are valid: they
// select a uniformly random action and flag the result as degenerate.
func (c Config) Validate() error {
	if c.Horizon < 0 {
		return fmt.Errorf("%w: horizon must be >= 0, got %d", ErrInvalidConfig, c.Horizon)
	}
	if c.Simulations < 0 {
		return fmt.Errorf("%w: simulations must be >= 0, got %d", ErrInvalidConfig, c.Simulations)
	}
	if c.ExplorationConstant < 0 || math.IsNaN(c.ExplorationConstant) {
		return fmt.Errorf("%w: exploration_constant must be >= 0, got %v", ErrInvalidConfig, c.ExplorationConstant)
	}
	if !(c.Discount > 0 && c.Discount <= 1) {
		return fmt.Errorf("%w: discount must be in (0, 1], got %v", ErrInvalidConfig, c.Discount)
	}
	if c.MaxTreeDepth < 0 {
		return fmt.Errorf("%w: max_tree_depth must be >= 0, got %d", ErrInvalidConfig, c.MaxTreeDepth)
	}
	if c.MaxNodes < 0 {
		return fmt.Errorf("%w: max_nodes must be >= 0, got %d", ErrInvalidConfig, c.MaxNodes)
	}
	if c.TimeLimit < 0 {
		return fmt.Errorf("%w: time_limit must be >= 0, got %v", ErrInvalidConfig, c.TimeLimit)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// Degenerate reports whether the config cannot produce an informed choice.
func (c Config) Degenerate() bool {
	return c.Horizon == 0 || c.Simulations == 0
}
