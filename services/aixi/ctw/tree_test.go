// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ctw

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, depth int) *Tree {
	t.Helper()
	tree, err := New(depth)
	require.NoError(t, err)
	return tree
}

func randomSymbols(rng *rand.Rand, n int) []Symbol {
	out := make([]Symbol, n)
	for i := range out {
		out[i] = Symbol(rng.IntN(2))
	}
	return out
}

func TestNew(t *testing.T) {
	tree := newTestTree(t, 3)
	assert.Equal(t, 3, tree.Depth())
	assert.Equal(t, 1, tree.Size())
	assert.Equal(t, 0, tree.HistoryLen())
	assert.Equal(t, 0.0, tree.LogBlockProbability())

	_, err := New(-1)
	assert.ErrorIs(t, err, ErrInvalidDepth)
}

func TestUpdate_InvalidSymbol(t *testing.T) {
	tree := newTestTree(t, 2)
	before := tree.Digest()

	assert.ErrorIs(t, tree.Update(Symbol(2)), ErrInvalidSymbol)
	assert.ErrorIs(t, tree.UpdateHistory([]Symbol{1, 0, 7}), ErrInvalidSymbol)
	assert.ErrorIs(t, tree.AppendContext([]Symbol{3}), ErrInvalidSymbol)

	assert.Equal(t, before, tree.Digest(), "rejected input must not mutate the tree")
}

func TestUpdate_InsufficientContextOnlyExtendsHistory(t *testing.T) {
	tree := newTestTree(t, 3)
	require.NoError(t, tree.UpdateHistory([]Symbol{1, 0, 1}))

	assert.Equal(t, 3, tree.HistoryLen())
	assert.Equal(t, 1, tree.Size())
	assert.False(t, tree.History().Learned(2))

	require.NoError(t, tree.Update(One))
	assert.Equal(t, 4, tree.Size(), "root plus one node per depth level")
	assert.True(t, tree.History().Learned(3))
}

func TestUpdate_KTEstimateAtDepthZero(t *testing.T) {
	tree := newTestTree(t, 0)
	require.NoError(t, tree.UpdateHistory([]Symbol{1, 1, 0}))

	// KT sequence probability of 1,1,0: 1/2 * 3/4 * 1/6.
	want := math.Log(0.5 * 0.75 * (1.0 / 6.0))
	assert.InDelta(t, want, tree.LogBlockProbability(), 1e-12)
}

func TestUpdate_ProbabilitiesStayValid(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tree := newTestTree(t, 6)
	require.NoError(t, tree.UpdateHistory(randomSymbols(rng, 2000)))

	for _, n := range tree.Snapshot().Nodes {
		assert.LessOrEqual(t, n.LogProb, 0.0)
		assert.False(t, math.IsNaN(n.LogProb))
	}
	p0, err := tree.PredictSymbol(Zero)
	require.NoError(t, err)
	p1, err := tree.PredictSymbol(One)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p0+p1, 1e-9)
}

func TestRevert_SingleUpdateIsBitExact(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	tree := newTestTree(t, 5)
	require.NoError(t, tree.UpdateHistory(randomSymbols(rng, 200)))

	for _, sym := range []Symbol{Zero, One} {
		before := tree.Snapshot()
		require.NoError(t, tree.Update(sym))
		require.NoError(t, tree.Revert(1))
		if diff := cmp.Diff(before, tree.Snapshot()); diff != "" {
			t.Fatalf("update(%d)+revert(1) changed the tree (-want +got):\n%s", sym, diff)
		}
	}
}

func TestRevert_RemovesNodesCreatedByUpdate(t *testing.T) {
	tree := newTestTree(t, 4)
	require.NoError(t, tree.UpdateHistory([]Symbol{0, 0, 0, 0, 0}))
	size := tree.Size()

	require.NoError(t, tree.Update(One))
	require.NoError(t, tree.Update(One))
	assert.Greater(t, tree.Size(), size)

	require.NoError(t, tree.Revert(2))
	assert.Equal(t, size, tree.Size())
}

func TestRevert_ContextOnlyEntries(t *testing.T) {
	tree := newTestTree(t, 2)
	require.NoError(t, tree.UpdateHistory([]Symbol{1, 0, 1, 1}))
	before := tree.Digest()

	require.NoError(t, tree.AppendContext([]Symbol{0, 1}))
	require.NoError(t, tree.UpdateHistory([]Symbol{1, 0, 0}))
	require.NoError(t, tree.Revert(5))

	assert.Equal(t, before, tree.Digest())
}

func TestRevert_BeyondHistory(t *testing.T) {
	tree := newTestTree(t, 2)
	require.NoError(t, tree.UpdateHistory([]Symbol{1, 0, 1}))
	before := tree.Snapshot()

	err := tree.Revert(4)
	assert.ErrorIs(t, err, ErrRevertBeyondHistory)
	assert.ErrorIs(t, tree.Revert(-1), ErrInvalidCount)
	assert.ErrorIs(t, tree.RevertTo(-1), ErrRevertBeyondHistory)
	assert.ErrorIs(t, tree.RevertTo(9), ErrInvalidCount)

	if diff := cmp.Diff(before, tree.Snapshot()); diff != "" {
		t.Fatalf("failed revert mutated the tree:\n%s", diff)
	}
}

func TestRevert_ToEmpty(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	tree := newTestTree(t, 4)
	empty := tree.Snapshot()

	require.NoError(t, tree.UpdateHistory(randomSymbols(rng, 300)))
	require.NoError(t, tree.RevertTo(0))

	if diff := cmp.Diff(empty, tree.Snapshot()); diff != "" {
		t.Fatalf("revert to empty (-want +got):\n%s", diff)
	}
}

func TestGenerateSymbolsAndUpdate_RevertRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	tree := newTestTree(t, 8)
	require.NoError(t, tree.UpdateHistory(randomSymbols(rng, 500)))

	probe := randomSymbols(rng, 12)
	wantProb, err := tree.PredictProbability(probe)
	require.NoError(t, err)
	wantDigest := tree.Digest()
	wantSize := tree.Size()

	for _, n := range []int{1, 7, 64, 250} {
		mark := tree.HistoryLen()
		syms, err := tree.GenerateSymbolsAndUpdate(rng, n)
		require.NoError(t, err)
		require.Len(t, syms, n)
		require.NoError(t, tree.RevertTo(mark))

		assert.Equal(t, wantDigest, tree.Digest(), "rollout of %d", n)
		assert.Equal(t, wantSize, tree.Size())
		got, err := tree.PredictProbability(probe)
		require.NoError(t, err)
		assert.Equal(t, wantProb, got)
	}

	_, err = tree.GenerateSymbolsAndUpdate(rng, -1)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestGenerateSymbolsAndUpdate_FollowsModel(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	tree := newTestTree(t, 1)
	seq := make([]Symbol, 400)
	for i := range seq {
		seq[i] = One
	}
	require.NoError(t, tree.UpdateHistory(seq))

	ones := 0
	for i := 0; i < 200; i++ {
		mark := tree.HistoryLen()
		syms, err := tree.GenerateSymbolsAndUpdate(rng, 1)
		require.NoError(t, err)
		ones += int(syms[0])
		require.NoError(t, tree.RevertTo(mark))
	}
	assert.Greater(t, ones, 190)
}

func TestClone_Independent(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	tree := newTestTree(t, 3)
	require.NoError(t, tree.UpdateHistory(randomSymbols(rng, 50)))

	clone := tree.Clone()
	assert.Equal(t, tree.Digest(), clone.Digest())

	require.NoError(t, clone.UpdateHistory(randomSymbols(rng, 20)))
	assert.NotEqual(t, tree.Digest(), clone.Digest())
	assert.Equal(t, 50, tree.HistoryLen())
}

func TestDigest_IndependentOfArenaLayout(t *testing.T) {
	a := newTestTree(t, 3)
	b := newTestTree(t, 3)
	base := []Symbol{0, 1, 1, 0, 1}
	require.NoError(t, a.UpdateHistory(base))
	require.NoError(t, b.UpdateHistory(base))

	// Grow and shrink b so its free list reorders the arena.
	require.NoError(t, b.UpdateHistory([]Symbol{0, 0, 0, 1, 1, 1}))
	require.NoError(t, b.Revert(6))
	require.NoError(t, b.UpdateHistory([]Symbol{1, 0}))
	require.NoError(t, a.UpdateHistory([]Symbol{1, 0}))

	assert.Equal(t, a.Digest(), b.Digest())
}

func TestClear(t *testing.T) {
	tree := newTestTree(t, 2)
	require.NoError(t, tree.UpdateHistory([]Symbol{1, 1, 0, 1}))
	tree.Clear()
	assert.Equal(t, 1, tree.Size())
	assert.Equal(t, 0, tree.HistoryLen())
	assert.Equal(t, 0.0, tree.LogBlockProbability())
}

func TestWithHistory_SharesCallerHistory(t *testing.T) {
	h := NewHistory()
	tree, err := New(2, WithHistory(h))
	require.NoError(t, err)
	require.NoError(t, tree.AppendContext([]Symbol{1}))
	require.NoError(t, tree.Update(Zero))
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, []Symbol{1, 0}, h.Suffix(5))
}

func BenchmarkUpdateRevert(b *testing.B) {
	rng := rand.New(rand.NewPCG(1, 1))
	tree, _ := New(30)
	_ = tree.UpdateHistory(randomSymbols(rng, 5000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mark := tree.HistoryLen()
		_, _ = tree.GenerateSymbolsAndUpdate(rng, 8)
		_ = tree.RevertTo(mark)
	}
}
