// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent is the MC-AIXI-CTW agent: a context tree model of the
// environment, a planner that searches with it, and the bookkeeping that
// keeps the two in step with real experience.
//
// # Lifecycle
//
// An Agent is built once per run and never reset. Each cycle the caller
// asks NextAction for an action, performs it in the environment, and hands
// the action and percept to Update. Run does exactly that in a loop.
//
// # Exploration
//
// The exploration rate is recomputed from the agent's age on every call:
// Exploration·ExploreDecay^age, floored at MinExploration, and exactly zero
// once the learning period is over. While learning with a nonzero
// Exploration the rate never reaches zero, even when the decay underflows.
// There is no stored mode flag.
//
// # Policies
//
// PolicyPlanner is the MC-AIXI-CTW agent. PolicyRandom acts uniformly over
// the legal actions on every cycle and never consults the planner. Its
// model is still trained.
//
// # Thread Safety
//
// An Agent is not safe for concurrent use.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/AleutianAI/mcaixi/services/aixi/agent/mcts"
	"github.com/AleutianAI/mcaixi/services/aixi/ctw"
	"github.com/AleutianAI/mcaixi/services/aixi/environment"
)

// Action selection policies.
const (
	PolicyPlanner = "mc-aixi-ctw"
	PolicyRandom  = "random"
)

// minExplorationRate is the smallest rate reported while learning with a
// nonzero Exploration.
const minExplorationRate = 1e-12

// Config holds the agent's settings.
type Config struct {
	// Policy selects how actions are chosen. Empty means PolicyPlanner.
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Depth is the context tree depth D.
	Depth int `json:"ct_depth" yaml:"ct_depth"`

	// Exploration is the initial probability of a random action.
	Exploration float64 `json:"exploration" yaml:"exploration"`

	// ExploreDecay multiplies the exploration rate once per real cycle.
	ExploreDecay float64 `json:"explore_decay" yaml:"explore_decay"`

	// MinExploration floors the decayed rate inside the learning period.
	MinExploration float64 `json:"min_exploration" yaml:"min_exploration"`

	// LearningPeriod is the number of cycles during which the agent
	// explores and learns. After it, the model is frozen and actions come
	// from the planner only. 0 means learn forever.
	LearningPeriod int `json:"learning_period" yaml:"learning_period"`

	// Search configures the planner.
	Search mcts.Config `json:"search" yaml:"search"`
}

// DefaultConfig returns the classic MC-AIXI-CTW defaults.
func DefaultConfig() Config {
	return Config{
		Depth:        30,
		Exploration:  0,
		ExploreDecay: 1,
		Search:       mcts.DefaultConfig(),
	}
}

// Validate checks the agent settings and the search settings.
func (c Config) Validate() error {
	switch c.Policy {
	case "", PolicyPlanner, PolicyRandom:
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, c.Policy)
	}
	if c.Depth < 0 {
		return fmt.Errorf("%w: ct_depth must be >= 0, got %d", ErrInvalidConfig, c.Depth)
	}
	if c.Exploration < 0 || c.Exploration > 1 {
		return fmt.Errorf("%w: exploration must be in [0, 1], got %v", ErrInvalidConfig, c.Exploration)
	}
	if c.ExploreDecay < 0 || c.ExploreDecay > 1 {
		return fmt.Errorf("%w: explore_decay must be in [0, 1], got %v", ErrInvalidConfig, c.ExploreDecay)
	}
	if c.MinExploration < 0 || c.MinExploration > c.Exploration {
		return fmt.Errorf("%w: min_exploration must be in [0, exploration], got %v", ErrInvalidConfig, c.MinExploration)
	}
	if c.LearningPeriod < 0 {
		return fmt.Errorf("%w: learning_period must be >= 0, got %d", ErrInvalidConfig, c.LearningPeriod)
	}
	return c.Search.Validate()
}

// Choice is the outcome of NextAction.
type Choice struct {
	Action int

	// Explored is set when the action was drawn uniformly for exploration.
	Explored bool

	// Degenerate is set when the action was drawn uniformly because
	// there was nothing better to do: no legal actions were offered, or
	// the planner had no budget.
	Degenerate bool

	// Rate is the exploration rate in force for this choice.
	Rate float64

	// Plan holds the planner's result when the planner was consulted.
	Plan *mcts.Result
}

// Agent is an MC-AIXI-CTW agent.
type Agent struct {
	spec    environment.Spec
	config  Config
	history *ctw.History
	model   *ctw.Tree
	planner *mcts.Planner
	rng     *rand.Rand
	logger  *slog.Logger

	age         int
	totalReward float64
}

// Option configures an Agent.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	tracing bool
}

// WithLogger sets the agent's logger. The planner logs through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracing enables planner spans.
func WithTracing(enabled bool) Option {
	return func(o *options) { o.tracing = enabled }
}

// New creates an agent for an environment with the given spec.
//
// Inputs:
//   - spec: The environment's interface shape
//   - config: Agent and search settings
//   - rng: The agent's random source, used for exploration and planning
//   - opts: Optional configuration
//
// Outputs:
//   - *Agent: A fresh agent with an empty model
//   - error: Validation failure
func New(spec environment.Spec, config Config, rng *rand.Rand, opts ...Option) (*Agent, error) {
	if rng == nil {
		return nil, ErrNilRand
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	history := ctw.NewHistory()
	model, err := ctw.New(config.Depth, ctw.WithHistory(history))
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	planner, err := mcts.New(spec, config.Search,
		mcts.WithLogger(o.logger),
		mcts.WithTracing(o.tracing),
	)
	if err != nil {
		return nil, fmt.Errorf("create planner: %w", err)
	}

	return &Agent{
		spec:    spec,
		config:  config,
		history: history,
		model:   model,
		planner: planner,
		rng:     rng,
		logger:  o.logger,
	}, nil
}

// Age returns the number of real cycles completed.
func (a *Agent) Age() int { return a.age }

// TotalReward returns the sum of real rewards received.
func (a *Agent) TotalReward() float64 { return a.totalReward }

// AverageReward returns TotalReward/Age, 0 before the first cycle.
func (a *Agent) AverageReward() float64 {
	if a.age == 0 {
		return 0
	}
	return a.totalReward / float64(a.age)
}

// ModelSize returns the context tree's node count.
func (a *Agent) ModelSize() int { return a.model.Size() }

// HistoryLen returns the number of symbols in the agent's history.
func (a *Agent) HistoryLen() int { return a.history.Len() }

// ModelDigest returns a hash of the model's observable state.
func (a *Agent) ModelDigest() [32]byte { return a.model.Digest() }

// Spec returns the environment spec the agent was built for.
func (a *Agent) Spec() environment.Spec { return a.spec }

// Learning reports whether real percepts still update the model.
func (a *Agent) Learning() bool {
	return a.config.LearningPeriod == 0 || a.age < a.config.LearningPeriod
}

// ExplorationRate returns the probability that the next action is drawn
// uniformly at random. It is 1 under PolicyRandom.
func (a *Agent) ExplorationRate() float64 {
	if a.config.Policy == PolicyRandom {
		return 1
	}
	if !a.Learning() || a.config.Exploration == 0 {
		return 0
	}
	rate := a.config.Exploration * math.Pow(a.config.ExploreDecay, float64(a.age))
	return max(rate, a.config.MinExploration, minExplorationRate)
}

// NextAction chooses the next real action.
//
// With probability ExplorationRate the action is uniform over legal.
// Otherwise the planner searches the live model, which it restores before
// returning. An empty legal set falls back to every declared action and
// marks the choice degenerate. Every offered action must be declared by the
// Spec, whichever way the action ends up being chosen.
//
// Inputs:
//   - ctx: Cancellation for the search
//   - legal: Actions available in the environment's current state
//
// Outputs:
//   - Choice: The action and how it was chosen
//   - error: environment.ErrIllegalAction, planner contract violations and
//     cancellation
func (a *Agent) NextAction(ctx context.Context, legal []int) (Choice, error) {
	for _, action := range legal {
		if !a.spec.IsAction(action) {
			return Choice{}, fmt.Errorf("%w: %d", environment.ErrIllegalAction, action)
		}
	}
	degenerate := false
	if len(legal) == 0 {
		a.logger.Warn("no legal actions offered, choosing among all declared actions",
			slog.Int("cycle", a.age+1))
		legal = a.spec.Actions
		degenerate = true
	}

	rate := a.ExplorationRate()
	if rate > 0 && a.rng.Float64() < rate {
		return Choice{
			Action:     legal[a.rng.IntN(len(legal))],
			Explored:   true,
			Degenerate: degenerate,
			Rate:       rate,
		}, nil
	}

	res, err := a.planner.SelectAction(ctx, a.model, a.rng, legal)
	if err != nil {
		return Choice{}, fmt.Errorf("select action: %w", err)
	}
	if res.Degenerate {
		a.logger.Warn("planner had no budget, action chosen uniformly",
			slog.Int("cycle", a.age+1),
			slog.Int("horizon", a.config.Search.Horizon),
			slog.Int("simulations", a.config.Search.Simulations),
			slog.String("exhausted_by", res.ExhaustedBy),
		)
	}
	return Choice{
		Action:     res.Action,
		Degenerate: degenerate || res.Degenerate,
		Rate:       rate,
		Plan:       &res,
	}, nil
}

// Update commits one real cycle to the model.
//
// The action is appended as context. The percept, reward bits first, is
// learned while the agent is in its learning period and appended as
// context afterwards. Nothing is changed if the action or percept does not
// fit the environment's Spec.
//
// Inputs:
//   - action: The action that was performed
//   - observation: The observation received
//   - reward: The reward received
//
// Outputs:
//   - error: environment.ErrIllegalAction, ErrRewardOutOfRange or
//     ErrObservationOutOfRange
func (a *Agent) Update(action, observation, reward int) error {
	actionSyms, err := a.spec.EncodeAction(action)
	if err != nil {
		return err
	}
	perceptSyms, err := a.spec.EncodePercept(environment.Percept{Observation: observation, Reward: reward})
	if err != nil {
		return err
	}

	learning := a.Learning()
	if err := a.model.AppendContext(actionSyms); err != nil {
		return err
	}
	if learning {
		err = a.model.UpdateHistory(perceptSyms)
	} else {
		err = a.model.AppendContext(perceptSyms)
	}
	if err != nil {
		return err
	}

	a.age++
	a.totalReward += float64(reward)
	return nil
}
