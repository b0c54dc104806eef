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
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mcaixi/services/aixi/ctw"
	"github.com/AleutianAI/mcaixi/services/aixi/environment"
	"github.com/AleutianAI/mcaixi/services/aixi/environment/bandit"
	"github.com/AleutianAI/mcaixi/services/aixi/environment/tiger"
)

func banditSpec() environment.Spec {
	return environment.Spec{
		Actions:         []int{0, 1},
		ActionBits:      1,
		ObservationBits: 1,
		RewardBits:      1,
		MinReward:       0,
		MaxReward:       1,
	}
}

// train feeds steps of uniformly random play against a bandit into tree.
func train(t *testing.T, tree *ctw.Tree, steps int, seed uint64) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 1))
	env, err := bandit.New([2]float64{0.1, 0.9}, rand.New(rand.NewPCG(seed, 2)))
	require.NoError(t, err)
	spec := env.Spec()

	for i := 0; i < steps; i++ {
		a := rng.IntN(2)
		syms, err := spec.EncodeAction(a)
		require.NoError(t, err)
		require.NoError(t, tree.AppendContext(syms))
		p, err := env.Act(context.Background(), a)
		require.NoError(t, err)
		ps, err := spec.EncodePercept(p)
		require.NoError(t, err)
		require.NoError(t, tree.UpdateHistory(ps))
	}
}

func newTrainedTree(t *testing.T, depth, steps int) *ctw.Tree {
	t.Helper()
	tree, err := ctw.New(depth)
	require.NoError(t, err)
	train(t, tree, steps, 17)
	return tree
}

func newPlanner(t *testing.T, mutate func(*Config)) *Planner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Horizon = 2
	cfg.Simulations = 60
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(banditSpec(), cfg)
	require.NoError(t, err)
	return p
}

func TestSelectAction_RestoresModel(t *testing.T) {
	tree := newTrainedTree(t, 4, 200)
	before := tree.Snapshot()
	digest := tree.Digest()

	p := newPlanner(t, func(c *Config) {
		c.Horizon = 4
		c.Simulations = 150
		c.VerifyRevert = true
	})
	res, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(1, 1)), nil)
	require.NoError(t, err)

	assert.Equal(t, 150, res.Simulations)
	assert.NoError(t, res.Limit)
	assert.Greater(t, res.Nodes, 1)
	assert.Contains(t, []int{0, 1}, res.Action)
	assert.Equal(t, digest, tree.Digest())
	assert.Equal(t, before.Size, tree.Size())
	assert.Equal(t, before.History, tree.History().Symbols())
}

func TestSelectAction_PrefersDominantArmWithExperience(t *testing.T) {
	fraction := func(steps int) float64 {
		tree := newTrainedTree(t, 3, steps)
		p := newPlanner(t, func(c *Config) {
			c.Horizon = 1
			c.Simulations = 60
		})
		const trials = 40
		best := 0
		for i := 0; i < trials; i++ {
			res, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(uint64(i), 5)), nil)
			require.NoError(t, err)
			if res.Action == 1 {
				best++
			}
		}
		return float64(best) / trials
	}

	none := fraction(0)
	some := fraction(40)
	lots := fraction(400)

	assert.LessOrEqual(t, none, lots)
	assert.LessOrEqual(t, some-0.15, lots)
	assert.GreaterOrEqual(t, lots, 0.9)
}

func TestSelectAction_Degenerate(t *testing.T) {
	tree := newTrainedTree(t, 2, 10)
	digest := tree.Digest()

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Horizon = 0 },
		func(c *Config) { c.Simulations = 0 },
	} {
		p := newPlanner(t, mutate)
		res, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(2, 2)), []int{1})
		require.NoError(t, err)
		assert.True(t, res.Degenerate)
		assert.Equal(t, 1, res.Action)
		assert.Zero(t, res.Simulations)
	}
	assert.Equal(t, digest, tree.Digest())
}

func TestSelectAction_Errors(t *testing.T) {
	tree := newTrainedTree(t, 2, 5)
	p := newPlanner(t, nil)
	rng := rand.New(rand.NewPCG(3, 3))

	_, err := p.SelectAction(context.Background(), nil, rng, nil)
	assert.ErrorIs(t, err, ErrNilModel)
	_, err = p.SelectAction(context.Background(), tree, nil, nil)
	assert.ErrorIs(t, err, ErrNilRand)
	_, err = p.SelectAction(context.Background(), tree, rng, []int{0, 5})
	assert.ErrorIs(t, err, ErrIllegalAction)
}

func TestSelectAction_CancelledContextStillReverts(t *testing.T) {
	tree := newTrainedTree(t, 4, 100)
	digest := tree.Digest()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPlanner(t, func(c *Config) { c.Simulations = 1000 })
	_, err := p.SelectAction(ctx, tree, rand.New(rand.NewPCG(4, 4)), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, digest, tree.Digest())
}

// expiringCtx reports cancellation from its (after+1)th Err call onward.
type expiringCtx struct {
	context.Context
	after int
	calls int
}

func (c *expiringCtx) Err() error {
	c.calls++
	if c.calls > c.after {
		return context.Canceled
	}
	return nil
}

func TestSelectAction_CancelledMidRolloutReverts(t *testing.T) {
	for _, after := range []int{1, 2, 3, 5, 8, 20, 101, 997} {
		tree := newTrainedTree(t, 4, 100)
		digest := tree.Digest()
		size := tree.Size()
		history := tree.HistoryLen()

		ctx := &expiringCtx{Context: context.Background(), after: after}
		p := newPlanner(t, func(c *Config) {
			c.Horizon = 6
			c.Simulations = 1000
		})
		_, err := p.SelectAction(ctx, tree, rand.New(rand.NewPCG(uint64(after), 4)), nil)
		require.ErrorIs(t, err, context.Canceled, "after %d", after)
		assert.Greater(t, ctx.calls, after)
		assert.Equal(t, digest, tree.Digest(), "after %d", after)
		assert.Equal(t, size, tree.Size(), "after %d", after)
		assert.Equal(t, history, tree.HistoryLen(), "after %d", after)
	}
}

func TestSelectAction_TimeLimit(t *testing.T) {
	tree := newTrainedTree(t, 8, 100)
	digest := tree.Digest()

	p := newPlanner(t, func(c *Config) {
		c.Horizon = 6
		c.Simulations = 1 << 30
		c.TimeLimit = 20 * time.Millisecond
	})
	res, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(5, 5)), nil)
	require.NoError(t, err)
	assert.Equal(t, "time", res.ExhaustedBy)
	assert.ErrorIs(t, res.Limit, ErrTimeLimitExceeded)
	assert.Less(t, res.Simulations, 1<<30)
	assert.Equal(t, digest, tree.Digest())
}

func TestSelectAction_NodeLimit(t *testing.T) {
	tree := newTrainedTree(t, 4, 100)
	p := newPlanner(t, func(c *Config) {
		c.Horizon = 5
		c.Simulations = 300
		c.MaxNodes = 20
	})
	res, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(6, 6)), nil)
	require.NoError(t, err)
	assert.Equal(t, 300, res.Simulations)
	assert.LessOrEqual(t, res.Nodes, 21+2, "root plus at most one overshoot per level")
	assert.Equal(t, "nodes", res.ExhaustedBy)
	assert.ErrorIs(t, res.Limit, ErrNodeLimitExceeded)
}

func TestSelectAction_MaxTreeDepth(t *testing.T) {
	tree := newTrainedTree(t, 4, 100)
	shallow := newPlanner(t, func(c *Config) {
		c.Horizon = 5
		c.Simulations = 200
		c.MaxTreeDepth = 1
	})
	deep := newPlanner(t, func(c *Config) {
		c.Horizon = 5
		c.Simulations = 200
	})
	a, err := shallow.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(7, 7)), nil)
	require.NoError(t, err)
	b, err := deep.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(7, 7)), nil)
	require.NoError(t, err)
	assert.Less(t, a.Nodes, b.Nodes)
}

func TestSelectAction_Parallel(t *testing.T) {
	tree := newTrainedTree(t, 4, 300)
	digest := tree.Digest()

	p := newPlanner(t, func(c *Config) {
		c.Horizon = 3
		c.Simulations = 203
		c.Workers = 4
		c.VerifyRevert = true
	})
	first, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(8, 8)), nil)
	require.NoError(t, err)
	second, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(8, 8)), nil)
	require.NoError(t, err)

	assert.Equal(t, digest, tree.Digest())
	assert.Equal(t, 203, first.Simulations)
	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, first.Children, second.Children)

	var visits uint32
	for _, c := range first.Children {
		visits += c.Visits
	}
	assert.Equal(t, uint32(203), visits)
}

func TestSelectAction_DeterministicWithSeed(t *testing.T) {
	tree := newTrainedTree(t, 4, 150)
	p := newPlanner(t, nil)
	a, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(9, 9)), nil)
	require.NoError(t, err)
	b, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(9, 9)), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Children, b.Children)
}

func TestNew_Validation(t *testing.T) {
	bad := DefaultConfig()
	bad.Discount = 0
	_, err := New(banditSpec(), bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	spec := banditSpec()
	spec.ActionBits = 0
	_, err = New(spec, DefaultConfig())
	assert.ErrorIs(t, err, environment.ErrInvalidSpec)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative horizon", func(c *Config) { c.Horizon = -1 }},
		{"negative simulations", func(c *Config) { c.Simulations = -1 }},
		{"negative exploration", func(c *Config) { c.ExplorationConstant = -0.1 }},
		{"discount above one", func(c *Config) { c.Discount = 1.5 }},
		{"negative tree depth", func(c *Config) { c.MaxTreeDepth = -2 }},
		{"negative nodes", func(c *Config) { c.MaxNodes = -1 }},
		{"negative time", func(c *Config) { c.TimeLimit = -time.Second }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestReward_NormalizesAndClamps(t *testing.T) {
	spec := environment.Spec{
		Actions:         []int{0},
		ActionBits:      1,
		ObservationBits: 1,
		RewardBits:      2,
		MinReward:       0,
		MaxReward:       2,
	}
	p, err := New(spec, DefaultConfig())
	require.NoError(t, err)

	r, key := p.reward([]ctw.Symbol{1, 0, 1})
	assert.InDelta(t, 0.5, r, 1e-12)
	assert.Equal(t, 5, key)

	r, _ = p.reward([]ctw.Symbol{1, 1, 0})
	assert.Equal(t, 1.0, r, "reward offset 3 exceeds the declared range of 2")
}

// lastArm always takes the last action offered.
type lastArm struct{}

func (lastArm) Select(_ uint32, arms []ArmStats) int { return len(arms) - 1 }
func (lastArm) Name() string                         { return "last" }

func TestWithSelectionPolicy(t *testing.T) {
	tree := newTrainedTree(t, 4, 300)
	cfg := DefaultConfig()
	cfg.Horizon = 3
	cfg.Simulations = 50
	p, err := New(banditSpec(), cfg, WithSelectionPolicy(lastArm{}), WithSelectionPolicy(nil))
	require.NoError(t, err)

	res, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(10, 10)), []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Action, "only the last root action is ever tried")
	require.Len(t, res.Children, 2)
	assert.Equal(t, ChildStat{Action: 1}, res.Children[0])
	assert.Equal(t, uint32(50), res.Children[1].Visits)

	ucb := newPlanner(t, func(c *Config) {
		c.Horizon = 3
		c.Simulations = 50
	})
	res, err = ucb.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(10, 10)), []int{1, 0})
	require.NoError(t, err)
	assert.Positive(t, res.Children[0].Visits)
	assert.Positive(t, res.Children[1].Visits)
}

func TestReward_NegativeMinimum(t *testing.T) {
	env, err := tiger.New(tiger.DefaultListenAccuracy, 0, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	spec := env.Spec()
	p, err := New(spec, DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		percept environment.Percept
		want    float64
	}{
		{environment.Percept{Observation: tiger.Nothing, Reward: tiger.RewardEaten}, 0},
		{environment.Percept{Observation: tiger.HeardLeft, Reward: tiger.RewardListen}, 99.0 / 110},
		{environment.Percept{Observation: tiger.HeardRight, Reward: tiger.RewardListen}, 99.0 / 110},
		{environment.Percept{Observation: tiger.Nothing, Reward: tiger.RewardGold}, 1},
	}
	keys := map[int]bool{}
	for _, tt := range tests {
		syms, err := spec.EncodePercept(tt.percept)
		require.NoError(t, err)
		r, key := p.reward(syms)
		assert.InDelta(t, tt.want, r, 1e-12, "%+v", tt.percept)
		assert.Equal(t, tt.percept.Reward-spec.MinReward+tt.percept.Observation<<spec.RewardBits, key)
		keys[key] = true
	}
	assert.Len(t, keys, 4, "observations share a reward but not a chance edge")

	r, _ := p.reward([]ctw.Symbol{1, 1, 1, 1, 1, 1, 1, 0, 0})
	assert.Equal(t, 1.0, r, "offset 127 exceeds the declared range of 110")
}

func TestSelectAction_MultiBitObservations(t *testing.T) {
	env, err := tiger.New(tiger.DefaultListenAccuracy, 0, rand.New(rand.NewPCG(2, 2)))
	require.NoError(t, err)
	spec := env.Spec()
	tree, err := ctw.New(6)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(3, 3))
	for i := 0; i < 300; i++ {
		a := spec.Actions[rng.IntN(len(spec.Actions))]
		syms, err := spec.EncodeAction(a)
		require.NoError(t, err)
		require.NoError(t, tree.AppendContext(syms))
		pc, err := env.Act(context.Background(), a)
		require.NoError(t, err)
		ps, err := spec.EncodePercept(pc)
		require.NoError(t, err)
		require.NoError(t, tree.UpdateHistory(ps))
	}
	digest := tree.Digest()

	cfg := DefaultConfig()
	cfg.Horizon = 3
	cfg.Simulations = 200
	cfg.VerifyRevert = true
	p, err := New(spec, cfg)
	require.NoError(t, err)
	res, err := p.SelectAction(context.Background(), tree, rand.New(rand.NewPCG(4, 4)), nil)
	require.NoError(t, err)

	assert.Equal(t, digest, tree.Digest())
	assert.Contains(t, spec.Actions, res.Action)
	assert.Len(t, res.Children, 3)
	assert.GreaterOrEqual(t, res.Value, 0.0)
	assert.LessOrEqual(t, res.Value, 1.0)
	// More than one percept edge per action chance node.
	assert.Greater(t, res.Nodes, 1+3+3)
}

func TestMergeWorkers(t *testing.T) {
	legal := []int{3, 7}
	merged, completed, nodes, by := mergeWorkers(legal, []workerResult{
		{children: []ChildStat{{3, 2, 0.5}, {7, 0, 0}}, completed: 2, nodes: 5, exhaustedBy: "simulations"},
		{children: []ChildStat{{3, 2, 1.0}, {7, 4, 0.25}}, completed: 6, nodes: 9, exhaustedBy: "time"},
	})
	assert.Equal(t, []ChildStat{{3, 4, 0.75}, {7, 4, 0.25}}, merged)
	assert.Equal(t, 8, completed)
	assert.Equal(t, 14, nodes)
	assert.Equal(t, "time", by)
}
