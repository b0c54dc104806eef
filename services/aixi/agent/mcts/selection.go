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

import "math"

// ArmStats is what a selection policy sees of one action.
type ArmStats struct {
	Visits uint32
	Mean   float64
}

// SelectionPolicy picks which action a rollout takes at a decision node.
type SelectionPolicy interface {
	// Select returns an index into arms.
	//
	// Inputs:
	//   - parentVisits: Visits of the decision node
	//   - arms: Stats per action, in the node's fixed action order
	Select(parentVisits uint32, arms []ArmStats) int

	// Name identifies the policy in traces.
	Name() string
}

// UCB1Policy implements Upper Confidence Bound selection.
//
// UCB1 = mean + C * sqrt(ln(parentVisits) / visits)
//
// Unvisited arms are tried first, in order. Ties go to the earliest arm.
type UCB1Policy struct {
	ExplorationConstant float64
}

func (p *UCB1Policy) Select(parentVisits uint32, arms []ArmStats) int {
	for i, a := range arms {
		if a.Visits == 0 {
			return i
		}
	}

	logN := math.Log(float64(max(parentVisits, 1)))
	best, bestScore := 0, math.Inf(-1)
	for i, a := range arms {
		score := a.Mean + p.ExplorationConstant*math.Sqrt(logN/float64(a.Visits))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (p *UCB1Policy) Name() string { return "ucb1" }
