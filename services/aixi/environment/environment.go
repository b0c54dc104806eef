// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package environment defines the contract between the agent and the world
// it acts in.
//
// An Environment declares its action set, the bit widths of actions,
// observations and rewards, and its reward bounds. Validate wraps any
// Environment and enforces those declarations at the boundary, so the agent
// never sees a reward it cannot encode or normalize.
package environment

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/mcaixi/services/aixi/ctw"
)

var validate = validator.New()

// Spec is the fixed shape of an environment's interface.
type Spec struct {
	// Actions is every action the environment can ever accept.
	Actions []int `json:"actions" yaml:"actions" validate:"required,min=1,dive,min=0"`

	ActionBits      int `json:"action_bits" yaml:"action_bits" validate:"min=1,max=31"`
	ObservationBits int `json:"observation_bits" yaml:"observation_bits" validate:"min=0,max=31"`
	RewardBits      int `json:"reward_bits" yaml:"reward_bits" validate:"min=0,max=31"`

	// MinReward and MaxReward bound every reward the environment emits.
	// Rewards are encoded as reward-MinReward in RewardBits bits.
	MinReward int `json:"min_reward" yaml:"min_reward"`
	MaxReward int `json:"max_reward" yaml:"max_reward" validate:"gtefield=MinReward"`
}

// PerceptBits is the number of symbols in one encoded percept.
func (s Spec) PerceptBits() int {
	return s.ObservationBits + s.RewardBits
}

// RewardRange returns MaxReward-MinReward.
func (s Spec) RewardRange() int {
	return s.MaxReward - s.MinReward
}

// MaxObservation returns the largest observation that fits ObservationBits.
func (s Spec) MaxObservation() int {
	return 1<<s.ObservationBits - 1
}

// Validate checks struct constraints and that every declared value fits its
// bit width.
func (s Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	for _, a := range s.Actions {
		if a>>s.ActionBits != 0 {
			return fmt.Errorf("%w: action %d does not fit %d bits", ErrInvalidSpec, a, s.ActionBits)
		}
	}
	if s.RewardRange()>>s.RewardBits != 0 {
		return fmt.Errorf("%w: reward range %d does not fit %d bits", ErrInvalidSpec, s.RewardRange(), s.RewardBits)
	}
	return nil
}

// IsAction reports whether a is in the declared action set.
func (s Spec) IsAction(a int) bool {
	return slices.Contains(s.Actions, a)
}

// Percept is one observation and reward pair.
type Percept struct {
	Observation int `json:"observation"`
	Reward      int `json:"reward"`
}

// EncodeAction returns the action's symbols.
func (s Spec) EncodeAction(action int) ([]ctw.Symbol, error) {
	if !s.IsAction(action) {
		return nil, fmt.Errorf("%w: %d", ErrIllegalAction, action)
	}
	return ctw.Encode(action, s.ActionBits)
}

// EncodePercept returns the reward bits followed by the observation bits.
func (s Spec) EncodePercept(p Percept) ([]ctw.Symbol, error) {
	if err := s.CheckPercept(p); err != nil {
		return nil, err
	}
	out := make([]ctw.Symbol, 0, s.PerceptBits())
	out, err := ctw.AppendEncoded(out, p.Reward-s.MinReward, s.RewardBits)
	if err != nil {
		return nil, err
	}
	return ctw.AppendEncoded(out, p.Observation, s.ObservationBits)
}

// DecodePercept is the inverse of EncodePercept.
func (s Spec) DecodePercept(symbols []ctw.Symbol) (Percept, error) {
	if len(symbols) != s.PerceptBits() {
		return Percept{}, fmt.Errorf("%w: got %d symbols, want %d", ErrMalformedPercept, len(symbols), s.PerceptBits())
	}
	r, err := ctw.Decode(symbols[:s.RewardBits])
	if err != nil {
		return Percept{}, err
	}
	o, err := ctw.Decode(symbols[s.RewardBits:])
	if err != nil {
		return Percept{}, err
	}
	return Percept{Observation: o, Reward: r + s.MinReward}, nil
}

// CheckPercept verifies p against the declared bounds.
func (s Spec) CheckPercept(p Percept) error {
	if p.Reward < s.MinReward || p.Reward > s.MaxReward {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrRewardOutOfRange, p.Reward, s.MinReward, s.MaxReward)
	}
	if p.Observation < 0 || p.Observation > s.MaxObservation() {
		return fmt.Errorf("%w: %d does not fit %d bits", ErrObservationOutOfRange, p.Observation, s.ObservationBits)
	}
	return nil
}

// Environment is the world the agent interacts with.
//
// Implementations are used from a single goroutine.
type Environment interface {
	// Spec returns the environment's fixed interface shape.
	Spec() Spec

	// Legal returns the actions accepted in the current state.
	Legal() []int

	// Act performs action and returns the resulting percept.
	Act(ctx context.Context, action int) (Percept, error)

	// Percept returns the most recent percept. Before the first Act it is
	// the initial observation with zero reward offset.
	Percept() Percept

	// Terminated reports whether the episode is over.
	Terminated() bool
}
