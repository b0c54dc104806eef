// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tiger is the classic partially observable tiger problem.
//
// A tiger waits behind one of two doors and gold behind the other. The agent
// may listen (reward -1), which reports the tiger's door correctly with
// the configured accuracy, or open a door: +10 for the gold, -100 for the
// tiger. Opening a door ends the episode; the tiger is placed again at
// random and the next episode begins. By default there is no last episode.
package tiger

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/mcaixi/services/aixi/environment"
)

const (
	Name = "tiger"

	// OptionListenAccuracy is the probability that listening reports the
	// tiger's door.
	OptionListenAccuracy = "tiger-listen-accuracy"

	// OptionEpisodes ends the environment after that many doors have been
	// opened. 0 never ends.
	OptionEpisodes = "tiger-episodes"

	DefaultListenAccuracy = 0.85
)

// Actions.
const (
	Listen    = 0
	OpenLeft  = 1
	OpenRight = 2
)

// Observations.
const (
	Nothing    = 0
	HeardLeft  = 1
	HeardRight = 2
)

// Rewards.
const (
	RewardEaten  = -100
	RewardListen = -1
	RewardGold   = 10
)

func init() {
	environment.Register(Name, func(opts environment.Options, rng *rand.Rand) (environment.Environment, error) {
		accuracy, err := opts.Float(OptionListenAccuracy, DefaultListenAccuracy)
		if err != nil {
			return nil, err
		}
		episodes, err := opts.Int(OptionEpisodes, 0)
		if err != nil {
			return nil, err
		}
		return New(accuracy, episodes, rng)
	})
}

// Tiger is the tiger environment.
type Tiger struct {
	accuracy float64
	episodes int
	rng      *rand.Rand

	tigerLeft bool
	opened    int
	percept   environment.Percept
}

// New creates a tiger environment. episodes of 0 never terminates.
func New(accuracy float64, episodes int, rng *rand.Rand) (*Tiger, error) {
	if accuracy < 0 || accuracy > 1 {
		return nil, fmt.Errorf("%w: %s=%v not in [0, 1]", environment.ErrInvalidOption, OptionListenAccuracy, accuracy)
	}
	if episodes < 0 {
		return nil, fmt.Errorf("%w: %s=%d must be >= 0", environment.ErrInvalidOption, OptionEpisodes, episodes)
	}
	t := &Tiger{accuracy: accuracy, episodes: episodes, rng: rng}
	t.place()
	t.percept = environment.Percept{Observation: Nothing}
	return t, nil
}

func (t *Tiger) Spec() environment.Spec {
	return environment.Spec{
		Actions:         []int{Listen, OpenLeft, OpenRight},
		ActionBits:      2,
		ObservationBits: 2,
		RewardBits:      7,
		MinReward:       RewardEaten,
		MaxReward:       RewardGold,
	}
}

func (t *Tiger) Legal() []int { return []int{Listen, OpenLeft, OpenRight} }

func (t *Tiger) Act(_ context.Context, action int) (environment.Percept, error) {
	switch action {
	case Listen:
		heard := t.tigerLeft
		if t.rng.Float64() >= t.accuracy {
			heard = !heard
		}
		obs := HeardRight
		if heard {
			obs = HeardLeft
		}
		t.percept = environment.Percept{Observation: obs, Reward: RewardListen}
	case OpenLeft, OpenRight:
		reward := RewardGold
		if (action == OpenLeft) == t.tigerLeft {
			reward = RewardEaten
		}
		t.percept = environment.Percept{Observation: Nothing, Reward: reward}
		t.opened++
		t.place()
	default:
		return environment.Percept{}, fmt.Errorf("%w: %d", environment.ErrIllegalAction, action)
	}
	return t.percept, nil
}

func (t *Tiger) Percept() environment.Percept { return t.percept }

// Terminated reports whether the configured number of episodes is done.
func (t *Tiger) Terminated() bool {
	return t.episodes > 0 && t.opened >= t.episodes
}

// Episodes returns the number of doors opened so far.
func (t *Tiger) Episodes() int { return t.opened }

func (t *Tiger) place() {
	t.tigerLeft = t.rng.IntN(2) == 0
}
