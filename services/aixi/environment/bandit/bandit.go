// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bandit is a two-armed Bernoulli bandit.
//
// Pulling arm i pays 1 with probability p_i. The observation is constant,
// so the only signal is the reward.
package bandit

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/mcaixi/services/aixi/environment"
)

const (
	Name = "bandit"

	OptionArm0 = "bandit-p0"
	OptionArm1 = "bandit-p1"

	DefaultArm0 = 0.2
	DefaultArm1 = 0.8
)

func init() {
	environment.Register(Name, func(opts environment.Options, rng *rand.Rand) (environment.Environment, error) {
		p0, err := opts.Float(OptionArm0, DefaultArm0)
		if err != nil {
			return nil, err
		}
		p1, err := opts.Float(OptionArm1, DefaultArm1)
		if err != nil {
			return nil, err
		}
		return New([2]float64{p0, p1}, rng)
	})
}

// Bandit is a two-armed Bernoulli bandit.
type Bandit struct {
	arms    [2]float64
	rng     *rand.Rand
	percept environment.Percept
}

// New creates a bandit with the given payout probabilities.
func New(arms [2]float64, rng *rand.Rand) (*Bandit, error) {
	for i, p := range arms {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: arm %d probability %v not in [0, 1]", environment.ErrInvalidOption, i, p)
		}
	}
	return &Bandit{arms: arms, rng: rng}, nil
}

// Best returns the arm with the higher payout probability.
func (b *Bandit) Best() int {
	if b.arms[1] > b.arms[0] {
		return 1
	}
	return 0
}

func (b *Bandit) Spec() environment.Spec {
	return environment.Spec{
		Actions:         []int{0, 1},
		ActionBits:      1,
		ObservationBits: 1,
		RewardBits:      1,
		MinReward:       0,
		MaxReward:       1,
	}
}

func (b *Bandit) Legal() []int { return []int{0, 1} }

func (b *Bandit) Act(_ context.Context, action int) (environment.Percept, error) {
	if action != 0 && action != 1 {
		return environment.Percept{}, fmt.Errorf("%w: %d", environment.ErrIllegalAction, action)
	}
	reward := 0
	if b.rng.Float64() < b.arms[action] {
		reward = 1
	}
	b.percept = environment.Percept{Observation: 0, Reward: reward}
	return b.percept, nil
}

func (b *Bandit) Percept() environment.Percept { return b.percept }

func (b *Bandit) Terminated() bool { return false }
