// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coinflip is a biased coin the agent must predict.
//
// Each action is a guess (0 tails, 1 heads). The coin is then flipped; the
// observation is the side it landed on and the reward is 1 for a correct
// guess, 0 otherwise. The episode never terminates.
package coinflip

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/mcaixi/services/aixi/environment"
)

const (
	Name = "coin_flip"

	// OptionProbability is the probability of heads.
	OptionProbability = "coin-flip-p"

	DefaultProbability = 0.7
)

const (
	Tails = 0
	Heads = 1
)

func init() {
	environment.Register(Name, func(opts environment.Options, rng *rand.Rand) (environment.Environment, error) {
		p, err := opts.Float(OptionProbability, DefaultProbability)
		if err != nil {
			return nil, err
		}
		return New(p, rng)
	})
}

// CoinFlip is the biased coin environment.
type CoinFlip struct {
	p       float64
	rng     *rand.Rand
	percept environment.Percept
}

// New creates a coin that lands heads with probability p.
func New(p float64, rng *rand.Rand) (*CoinFlip, error) {
	if p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: %s=%v not in [0, 1]", environment.ErrInvalidOption, OptionProbability, p)
	}
	c := &CoinFlip{p: p, rng: rng}
	c.percept = environment.Percept{Observation: c.flip()}
	return c, nil
}

func (c *CoinFlip) Spec() environment.Spec {
	return environment.Spec{
		Actions:         []int{Tails, Heads},
		ActionBits:      1,
		ObservationBits: 1,
		RewardBits:      1,
		MinReward:       0,
		MaxReward:       1,
	}
}

func (c *CoinFlip) Legal() []int { return []int{Tails, Heads} }

func (c *CoinFlip) Act(_ context.Context, action int) (environment.Percept, error) {
	side := c.flip()
	reward := 0
	if action == side {
		reward = 1
	}
	c.percept = environment.Percept{Observation: side, Reward: reward}
	return c.percept, nil
}

func (c *CoinFlip) Percept() environment.Percept { return c.percept }

func (c *CoinFlip) Terminated() bool { return false }

func (c *CoinFlip) flip() int {
	if c.rng.Float64() < c.p {
		return Heads
	}
	return Tails
}
