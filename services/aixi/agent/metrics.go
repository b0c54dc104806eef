// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cyclesTotal counts real interaction cycles by how the action was
	// chosen.
	//
	// Labels:
	//   - mode: "explore", "plan", or "degenerate"
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcaixi",
			Subsystem: "agent",
			Name:      "cycles_total",
			Help:      "Total real interaction cycles by action selection mode",
		},
		[]string{"mode"},
	)

	rewardTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mcaixi",
			Subsystem: "agent",
			Name:      "reward_total",
			Help:      "Cumulative positive reward received from the environment",
		},
	)

	averageReward = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcaixi",
			Subsystem: "agent",
			Name:      "average_reward",
			Help:      "Average reward per cycle so far",
		},
	)

	explorationRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcaixi",
			Subsystem: "agent",
			Name:      "exploration_rate",
			Help:      "Current probability of a uniformly random action",
		},
	)

	modelSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mcaixi",
			Subsystem: "agent",
			Name:      "model_nodes",
			Help:      "Context tree node count",
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mcaixi",
			Subsystem: "agent",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock time per interaction cycle",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
	)
)

// mode returns the cycles_total label for a choice.
func mode(c Choice) string {
	switch {
	case c.Explored:
		return "explore"
	case c.Degenerate:
		return "degenerate"
	default:
		return "plan"
	}
}
