// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rockpaperscissors plays repeated rock-paper-scissors against a
// biased opponent.
//
// The opponent plays uniformly at random, except that after winning a round
// with rock it plays rock again. The observation is the opponent's move and
// the reward is -1, 0 or 1 for a loss, draw or win. The game never ends.
package rockpaperscissors

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/mcaixi/services/aixi/environment"
)

const Name = "rock_paper_scissors"

// Moves, used both as actions and as observations.
const (
	Rock     = 0
	Paper    = 1
	Scissors = 2
)

const (
	RewardLose = -1
	RewardDraw = 0
	RewardWin  = 1
)

func init() {
	environment.Register(Name, func(_ environment.Options, rng *rand.Rand) (environment.Environment, error) {
		return New(rng), nil
	})
}

// Game is the rock-paper-scissors environment.
type Game struct {
	rng     *rand.Rand
	percept environment.Percept
}

// New creates a game. The opponent's last move starts as paper.
func New(rng *rand.Rand) *Game {
	return &Game{rng: rng, percept: environment.Percept{Observation: Paper, Reward: RewardDraw}}
}

func (g *Game) Spec() environment.Spec {
	return environment.Spec{
		Actions:         []int{Rock, Paper, Scissors},
		ActionBits:      2,
		ObservationBits: 2,
		RewardBits:      2,
		MinReward:       RewardLose,
		MaxReward:       RewardWin,
	}
}

func (g *Game) Legal() []int { return []int{Rock, Paper, Scissors} }

func (g *Game) Act(_ context.Context, action int) (environment.Percept, error) {
	if action < Rock || action > Scissors {
		return environment.Percept{}, fmt.Errorf("%w: %d", environment.ErrIllegalAction, action)
	}
	opponent := g.rng.IntN(3)
	if g.percept.Observation == Rock && g.percept.Reward == RewardLose {
		opponent = Rock
	}
	g.percept = environment.Percept{Observation: opponent, Reward: Score(action, opponent)}
	return g.percept, nil
}

func (g *Game) Percept() environment.Percept { return g.percept }

func (g *Game) Terminated() bool { return false }

// Score returns the reward for playing move against opponent.
func Score(move, opponent int) int {
	switch (move - opponent + 3) % 3 {
	case 0:
		return RewardDraw
	case 1:
		return RewardWin
	default:
		return RewardLose
	}
}
