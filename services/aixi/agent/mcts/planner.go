// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcts implements rhoUCT, Monte Carlo tree search over an
// action-conditional context model.
//
// # Search Tree
//
// Decision nodes choose actions by UCB1; chance nodes sample percepts from
// the context model. The tree is rebuilt for every SelectAction call and
// discarded afterwards.
//
// # The Revert Contract
//
// Rollouts write hypothetical actions and percepts into the live model.
// Every rollout records the model's history length before it starts and
// reverts to it on the way out, including when the context is cancelled
// mid-rollout. When SelectAction returns, the model is observationally
// identical to what it was on entry. Config.VerifyRevert checks this with
// a digest of the model.
//
// # Values
//
// Rewards are normalized to [0, 1] with the environment's declared bounds
// and discounted per step. A node's mean is its discounted return divided
// by the sum of discount weights over its remaining horizon, so every mean
// lies in [0, 1] and one exploration constant fits every environment.
//
// # Parallelism
//
// With Workers > 1 each worker searches a private clone of the model with
// its own random source and share of the simulation budget. Root
// statistics are merged by visit-weighted mean.
package mcts

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/AleutianAI/mcaixi/services/aixi/ctw"
	"github.com/AleutianAI/mcaixi/services/aixi/environment"
)

// ChildStat is one root action's search statistics.
type ChildStat struct {
	Action int     `json:"action"`
	Visits uint32  `json:"visits"`
	Mean   float64 `json:"mean"`
}

// Result is the outcome of SelectAction.
type Result struct {
	Action int `json:"action"`

	// Value is the chosen action's normalized mean return.
	Value float64 `json:"value"`

	// Simulations is the number of completed rollouts.
	Simulations int `json:"simulations"`

	// Nodes is the number of search tree nodes, summed over workers.
	Nodes int `json:"nodes"`

	// Degenerate is set when the action was drawn uniformly because the
	// search had nothing to go on: zero horizon, zero simulations, or a
	// budget that expired before any rollout finished.
	Degenerate bool `json:"degenerate"`

	// ExhaustedBy names the limit that ended the search.
	ExhaustedBy string `json:"exhausted_by,omitempty"`

	// Limit is ErrTimeLimitExceeded or ErrNodeLimitExceeded when one of
	// those cut the search short, nil otherwise. It is not a failure: the
	// action is still the best found.
	Limit error `json:"-"`

	Elapsed  time.Duration `json:"elapsed"`
	Children []ChildStat   `json:"children,omitempty"`
}

// Planner selects actions by simulation.
//
// Thread Safety: A Planner holds no per-search state and may be shared.
// The model passed to SelectAction must not be used concurrently.
type Planner struct {
	spec       environment.Spec
	config     Config
	policy     SelectionPolicy
	logger     *slog.Logger
	tracer     *tracer
	tracing    bool
	actionSyms map[int][]ctw.Symbol
	weights    []float64
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger for search diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracing enables an OpenTelemetry span per SelectAction call.
func WithTracing(enabled bool) Option {
	return func(p *Planner) {
		p.tracing = enabled
	}
}

// WithSelectionPolicy replaces UCB1 at decision nodes.
func WithSelectionPolicy(policy SelectionPolicy) Option {
	return func(p *Planner) {
		if policy != nil {
			p.policy = policy
		}
	}
}

// New creates a planner for environments with the given spec.
//
// Inputs:
//   - spec: Environment interface shape. Must validate.
//   - config: Search configuration. Must validate.
//   - opts: Optional configuration
//
// Outputs:
//   - *Planner: Ready to search
//   - error: Validation failure
func New(spec environment.Spec, config Config, opts ...Option) (*Planner, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Planner{
		spec:       spec,
		config:     config,
		policy:     &UCB1Policy{ExplorationConstant: config.ExplorationConstant},
		logger:     slog.Default(),
		actionSyms: make(map[int][]ctw.Symbol, len(spec.Actions)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tracer = newTracer(p.logger, p.tracing)

	for _, a := range spec.Actions {
		syms, err := spec.EncodeAction(a)
		if err != nil {
			return nil, err
		}
		p.actionSyms[a] = syms
	}

	// weights[h] = 1 + γ + ... + γ^(h-1)
	p.weights = make([]float64, config.Horizon+1)
	g := 1.0
	for h := 1; h <= config.Horizon; h++ {
		p.weights[h] = p.weights[h-1] + g
		g *= config.Discount
	}
	return p, nil
}

// Config returns the planner's configuration.
func (p *Planner) Config() Config { return p.config }

// SelectAction searches from the model's current history and returns the
// root action with the highest mean return.
//
// Ties go to the action listed first in legal. An empty legal set means
// every action in Spec.Actions.
//
// Inputs:
//   - ctx: Cancellation. A cancelled search still reverts the model.
//   - model: The live context model. Restored before returning.
//   - rng: Random source for percept sampling, playouts and fallbacks
//   - legal: Actions available at the root
//
// Outputs:
//   - Result: The chosen action and search statistics
//   - error: ErrNilModel, ErrNilRand, ErrIllegalAction, ErrModelNotReverted,
//     a context error, or a wrapped model error
func (p *Planner) SelectAction(ctx context.Context, model *ctw.Tree, rng *rand.Rand, legal []int) (Result, error) {
	if model == nil {
		return Result{}, ErrNilModel
	}
	if rng == nil {
		return Result{}, ErrNilRand
	}
	legal, err := p.rootActions(legal)
	if err != nil {
		return Result{}, err
	}

	ctx, span := p.tracer.startSearch(ctx, p.config, p.policy.Name(), len(legal))
	start := time.Now()

	var res Result
	if p.config.Degenerate() {
		res = Result{Action: legal[rng.IntN(len(legal))], Degenerate: true}
		res.Elapsed = time.Since(start)
		p.tracer.endSearch(ctx, span, res, nil)
		return res, nil
	}

	var before [32]byte
	if p.config.VerifyRevert {
		before = model.Digest()
	}

	if p.config.Workers > 1 {
		res, err = p.searchParallel(ctx, model, rng, legal)
	} else {
		res, err = p.searchSerial(ctx, model, rng, legal)
	}

	if p.config.VerifyRevert && model.Digest() != before {
		p.tracer.revertFailed(ctx)
		err = ErrModelNotReverted
	}
	res.Elapsed = time.Since(start)
	p.tracer.endSearch(ctx, span, res, err)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (p *Planner) rootActions(legal []int) ([]int, error) {
	if len(legal) == 0 {
		return p.spec.Actions, nil
	}
	for _, a := range legal {
		if !p.spec.IsAction(a) {
			return nil, fmt.Errorf("%w: %d", ErrIllegalAction, a)
		}
	}
	return legal, nil
}

func (p *Planner) searchSerial(ctx context.Context, model *ctw.Tree, rng *rand.Rand, legal []int) (Result, error) {
	s := p.newSearch(ctx, model, rng, legal, p.config.Simulations)
	if err := s.run(); err != nil {
		return Result{}, err
	}
	return p.choose(rng, legal, s.rootStats(), s.completed, s.tree.size(), s.budget.ExhaustedBy()), nil
}

// choose picks the visited root child with the highest mean, first-seen on
// ties. With nothing visited it falls back to a uniform choice.
func (p *Planner) choose(rng *rand.Rand, legal []int, children []ChildStat, sims, nodes int, exhaustedBy string) Result {
	res := Result{
		Simulations: sims,
		Nodes:       nodes,
		ExhaustedBy: exhaustedBy,
		Limit:       limitErr(exhaustedBy),
		Children:    children,
	}
	best := -1
	for i, c := range children {
		if c.Visits == 0 {
			continue
		}
		if best < 0 || c.Mean > children[best].Mean {
			best = i
		}
	}
	if best < 0 {
		res.Action = legal[rng.IntN(len(legal))]
		res.Degenerate = true
		return res
	}
	res.Action = children[best].Action
	res.Value = children[best].Mean
	return res
}

// search is the state of one searcher on one model.
type search struct {
	p         *Planner
	ctx       context.Context
	model     *ctw.Tree
	rng       *rand.Rand
	tree      *searchTree
	budget    *Budget
	root      []int
	arms      []ArmStats
	completed int
}

func (p *Planner) newSearch(ctx context.Context, model *ctw.Tree, rng *rand.Rand, legal []int, sims int) *search {
	return &search{
		p:     p,
		ctx:   ctx,
		model: model,
		rng:   rng,
		tree:  newSearchTree(),
		budget: NewBudget(BudgetConfig{
			Simulations: sims,
			MaxNodes:    p.config.MaxNodes,
			TimeLimit:   p.config.TimeLimit,
		}),
		root: legal,
		arms: make([]ArmStats, 0, max(len(legal), len(p.spec.Actions))),
	}
}

func (s *search) run() error {
	for s.budget.Acquire() {
		if err := s.rollout(); err != nil {
			s.budget.Release()
			return err
		}
		s.completed++
	}
	if err := s.budget.Err(); err != nil {
		s.p.logger.DebugContext(s.ctx, "search cut short",
			slog.String("limit", err.Error()),
			slog.String("budget", s.budget.String()),
		)
	}
	return nil
}

// rollout runs one simulation and always restores the model.
func (s *search) rollout() (err error) {
	mark := s.model.HistoryLen()
	defer func() {
		if rerr := s.model.RevertTo(mark); rerr != nil && err == nil {
			err = fmt.Errorf("revert rollout: %w", rerr)
		}
	}()
	_, err = s.decision(0, s.p.config.Horizon, 0)
	return err
}

// decision samples from a decision node with h steps left and returns the
// discounted return from this node onward.
func (s *search) decision(id int32, h, depth int) (float64, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}

	actions := s.p.spec.Actions
	if id == 0 {
		actions = s.root
	}

	var (
		ret float64
		err error
	)
	if id != 0 && !s.expandable(id, depth) {
		ret, err = s.playout(h)
	} else {
		a := actions[s.selectArm(id, actions)]
		child := s.tree.child(id, a)
		if child < 0 {
			child = s.tree.link(id, a, ChanceNode)
			s.budget.RecordNode()
		}
		if err = s.model.AppendContext(s.p.actionSyms[a]); err != nil {
			return 0, err
		}
		ret, err = s.chance(child, h, depth)
	}
	if err != nil {
		return 0, err
	}

	s.tree.node(id).backup(ret / s.p.weights[h])
	return ret, nil
}

// expandable reports whether a non-root decision node grows the tree
// rather than handing over to the playout policy.
func (s *search) expandable(id int32, depth int) bool {
	if s.tree.node(id).visits == 0 {
		return false
	}
	if limit := s.p.config.MaxTreeDepth; limit > 0 && depth >= limit {
		return false
	}
	return s.budget.CanExpand()
}

// chance samples a percept from the model and continues one step deeper.
func (s *search) chance(id int32, h, depth int) (float64, error) {
	syms, err := s.model.GenerateSymbolsAndUpdate(s.rng, s.p.spec.PerceptBits())
	if err != nil {
		return 0, err
	}
	ret, key := s.p.reward(syms)

	if h > 1 {
		child := s.tree.child(id, key)
		if child < 0 && s.budget.CanExpand() {
			child = s.tree.link(id, key, DecisionNode)
			s.budget.RecordNode()
		}

		var future float64
		if child < 0 {
			future, err = s.playout(h - 1)
		} else {
			future, err = s.decision(child, h-1, depth+1)
		}
		if err != nil {
			return 0, err
		}
		ret += s.p.config.Discount * future
	}

	s.tree.node(id).backup(ret / s.p.weights[h])
	return ret, nil
}

// playout follows the uniform random policy for h steps.
func (s *search) playout(h int) (float64, error) {
	var ret float64
	g := 1.0
	actions := s.p.spec.Actions
	for k := 0; k < h; k++ {
		if err := s.ctx.Err(); err != nil {
			return 0, err
		}
		a := actions[s.rng.IntN(len(actions))]
		if err := s.model.AppendContext(s.p.actionSyms[a]); err != nil {
			return 0, err
		}
		syms, err := s.model.GenerateSymbolsAndUpdate(s.rng, s.p.spec.PerceptBits())
		if err != nil {
			return 0, err
		}
		r, _ := s.p.reward(syms)
		ret += g * r
		g *= s.p.config.Discount
	}
	return ret, nil
}

func (s *search) selectArm(id int32, actions []int) int {
	s.arms = s.arms[:0]
	for _, a := range actions {
		var st ArmStats
		if c := s.tree.child(id, a); c >= 0 {
			n := s.tree.node(c)
			st = ArmStats{Visits: n.visits, Mean: n.mean}
		}
		s.arms = append(s.arms, st)
	}
	return s.policy().Select(s.tree.node(id).visits, s.arms)
}

func (s *search) policy() SelectionPolicy { return s.p.policy }

// rootStats returns one entry per root action, in root order.
func (s *search) rootStats() []ChildStat {
	out := make([]ChildStat, 0, len(s.root))
	for _, a := range s.root {
		st := ChildStat{Action: a}
		if c := s.tree.child(0, a); c >= 0 {
			n := s.tree.node(c)
			st.Visits, st.Mean = n.visits, n.mean
		}
		out = append(out, st)
	}
	return out
}

// reward decodes a sampled percept into its normalized reward and the key
// of its chance-node edge. Sampled rewards outside the declared range are
// clamped.
func (p *Planner) reward(percept []ctw.Symbol) (float64, int) {
	key, _ := ctw.Decode(percept)
	span := p.spec.RewardRange()
	if span == 0 {
		return 0, key
	}
	offset, _ := ctw.Decode(percept[:p.spec.RewardBits])
	return min(float64(offset)/float64(span), 1), key
}
