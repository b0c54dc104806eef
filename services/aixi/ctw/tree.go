// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ctw implements an action-conditional Context Tree Weighting model
// over binary symbols.
//
// The tree mixes every variable-order Markov model up to depth D. Each node
// holds a Krichevsky-Trofimov estimate of the symbols seen in its context
// and a weighted probability that is half "predict here" and half "defer to
// the two longer contexts". Deep contexts only dominate once they have
// earned the evidence.
//
// # Real and Hypothetical Updates
//
// The same tree serves real experience and planning rollouts. Rollouts call
// GenerateSymbolsAndUpdate and later Revert; a revert restores counts and
// probabilities bit for bit and deletes nodes created by the reverted
// updates, in time proportional to count × D.
//
// # Action Conditioning
//
// Actions are appended with AppendContext. They condition later
// predictions but are never predicted themselves.
//
// # Storage
//
// Nodes live in an arena indexed by int32 with a free list. No pointers,
// no per-node allocations once the arena has grown.
//
// # Thread Safety
//
// A Tree is not safe for concurrent use. Parallel search uses Clone.
package ctw

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Tree is a Context Tree Weighting model of depth D.
type Tree struct {
	depth   int
	history *History
	nodes   []node
	free    []nodeID
	size    int

	// path is scratch space for root-to-leaf walks.
	path []nodeID
}

// Option configures a Tree.
type Option func(*Tree)

// WithHistory makes the tree operate on a history owned by the caller.
//
// The history must be empty or have been produced by this tree's updates;
// a tree cannot learn from symbols it did not see.
func WithHistory(h *History) Option {
	return func(t *Tree) {
		if h != nil {
			t.history = h
		}
	}
}

// New creates an empty tree with context depth D.
//
// Inputs:
//   - depth: Maximum context length D, >= 0
//   - opts: Optional configuration
//
// Outputs:
//   - *Tree: Tree holding only the root node
//   - error: ErrInvalidDepth for a negative depth
func New(depth int, opts ...Option) (*Tree, error) {
	if depth < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	t := &Tree{
		depth:   depth,
		history: NewHistory(),
		nodes:   make([]node, 1, 1024),
		size:    1,
		path:    make([]nodeID, depth+1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Depth returns D.
func (t *Tree) Depth() int { return t.depth }

// Size returns the number of live nodes, root included.
func (t *Tree) Size() int { return t.size }

// History returns the history the tree operates on.
func (t *Tree) History() *History { return t.history }

// HistoryLen returns the number of symbols recorded so far. It is the mark
// accepted by RevertTo.
func (t *Tree) HistoryLen() int { return t.history.Len() }

// LogBlockProbability returns the log weighted probability of every learned
// symbol so far.
func (t *Tree) LogBlockProbability() float64 {
	return t.nodes[rootID].logProb
}

// Update learns one symbol: it updates every node on the path from the root
// to the depth-D context and appends the symbol to the history.
//
// While the history is shorter than D there is not enough context to place
// the symbol; it is appended to the history without touching the tree.
//
// Outputs:
//   - error: ErrInvalidSymbol if sym is not binary
func (t *Tree) Update(sym Symbol) error {
	if !sym.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSymbol, sym)
	}
	t.update(sym)
	return nil
}

// UpdateHistory learns seq symbol by symbol. Nothing is applied unless every
// symbol is valid.
func (t *Tree) UpdateHistory(seq []Symbol) error {
	if err := validate(seq); err != nil {
		return err
	}
	for _, s := range seq {
		t.update(s)
	}
	return nil
}

// AppendContext appends seq to the history without learning it. Used for
// action symbols, which condition predictions but are never predicted.
func (t *Tree) AppendContext(seq []Symbol) error {
	if err := validate(seq); err != nil {
		return err
	}
	for _, s := range seq {
		t.history.push(s, false)
	}
	return nil
}

func (t *Tree) update(sym Symbol) {
	if t.history.Len() < t.depth {
		t.history.push(sym, false)
		return
	}

	cur := rootID
	t.path[0] = cur
	for i := 0; i < t.depth; i++ {
		c := t.history.Back(i)
		child := t.nodes[cur].children[c]
		if child == noNode {
			child = t.alloc()
			t.nodes[cur].children[c] = child
		}
		cur = child
		t.path[i+1] = cur
	}

	for i := t.depth; i >= 0; i-- {
		id := t.path[i]
		t.nodes[id].counts[sym]++
		t.refresh(id, i == t.depth)
	}
	t.history.push(sym, true)
}

// Revert undoes the last count history entries, learned or context-only.
//
// Counts are decremented along each symbol's path, probabilities are
// recomputed, and nodes left with no counts are deleted. Cost is O(count·D).
//
// Outputs:
//   - error: ErrInvalidCount for a negative count, ErrRevertBeyondHistory if
//     count exceeds the history. The tree is unchanged on error.
func (t *Tree) Revert(count int) error {
	if count < 0 {
		return fmt.Errorf("%w: revert %d", ErrInvalidCount, count)
	}
	if count > t.history.Len() {
		return fmt.Errorf("%w: revert %d of %d", ErrRevertBeyondHistory, count, t.history.Len())
	}
	for ; count > 0; count-- {
		t.revertOne()
	}
	return nil
}

// RevertTo reverts until HistoryLen() == mark.
func (t *Tree) RevertTo(mark int) error {
	if mark < 0 {
		return fmt.Errorf("%w: mark %d", ErrRevertBeyondHistory, mark)
	}
	if mark > t.history.Len() {
		return fmt.Errorf("%w: mark %d ahead of history %d", ErrInvalidCount, mark, t.history.Len())
	}
	return t.Revert(t.history.Len() - mark)
}

func (t *Tree) revertOne() {
	sym, learned := t.history.pop()
	if !learned {
		return
	}

	// The history now ends exactly where it did before sym was learned, so
	// the same path is found. Every node on it exists.
	cur := rootID
	t.path[0] = cur
	for i := 0; i < t.depth; i++ {
		cur = t.nodes[cur].children[t.history.Back(i)]
		t.path[i+1] = cur
	}

	for i := t.depth; i >= 0; i-- {
		id := t.path[i]
		n := &t.nodes[id]
		n.counts[sym]--
		if id != rootID && n.visits() == 0 {
			parent := t.path[i-1]
			t.nodes[parent].children[t.history.Back(i-1)] = noNode
			t.release(id)
			continue
		}
		t.refresh(id, i == t.depth)
	}
}

// PredictSymbol returns P(sym | history) without modifying the tree.
func (t *Tree) PredictSymbol(sym Symbol) (float64, error) {
	if !sym.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSymbol, sym)
	}
	return t.predictOne(sym), nil
}

// predictOne walks the path read-only and recomputes the weighted
// probabilities the path would have after learning sym.
func (t *Tree) predictOne(sym Symbol) float64 {
	if t.history.Len() < t.depth {
		return 0.5
	}

	cur := rootID
	t.path[0] = cur
	for i := 0; i < t.depth; i++ {
		if cur != noNode || i == 0 {
			cur = t.nodes[cur].children[t.history.Back(i)]
		}
		t.path[i+1] = cur
	}

	var below float64
	for i := t.depth; i >= 0; i-- {
		var n node
		id := t.path[i]
		if i == 0 || id != noNode {
			n = t.nodes[id]
		}
		n.counts[sym]++
		if i == t.depth {
			n.refresh(true, 0, 0)
		} else {
			c := t.history.Back(i)
			var sibling float64
			if s := n.children[1-c]; s != noNode {
				sibling = t.nodes[s].logProb
			}
			children := [2]float64{}
			children[c] = below
			children[1-c] = sibling
			n.refresh(false, children[0], children[1])
		}
		below = n.logProb
	}
	p := math.Exp(below - t.nodes[rootID].logProb)
	return min(max(p, 0), 1)
}

// GenerateSymbolsAndUpdate samples count symbols from the model's own
// predictive distribution, learning each one before sampling the next.
// The caller owns reverting them.
//
// Inputs:
//   - rng: Random source for sampling
//   - count: Number of symbols to generate
//
// Outputs:
//   - []Symbol: The sampled symbols in order
//   - error: ErrInvalidCount for a negative count
func (t *Tree) GenerateSymbolsAndUpdate(rng *rand.Rand, count int) ([]Symbol, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: generate %d", ErrInvalidCount, count)
	}
	out := make([]Symbol, count)
	for i := range out {
		sym := Zero
		if rng.Float64() < t.predictOne(One) {
			sym = One
		}
		t.update(sym)
		out[i] = sym
	}
	return out, nil
}

// Clone returns a deep copy that shares no mutable state with t, including
// the history.
func (t *Tree) Clone() *Tree {
	return &Tree{
		depth:   t.depth,
		history: t.history.clone(),
		nodes:   append(make([]node, 0, cap(t.nodes)), t.nodes...),
		free:    append([]nodeID(nil), t.free...),
		size:    t.size,
		path:    make([]nodeID, t.depth+1),
	}
}

// Clear drops all nodes and history.
func (t *Tree) Clear() {
	t.nodes = t.nodes[:1]
	t.nodes[rootID] = node{}
	t.free = t.free[:0]
	t.size = 1
	t.history.symbols = t.history.symbols[:0]
	t.history.learned = t.history.learned[:0]
}

func (t *Tree) refresh(id nodeID, leaf bool) {
	n := &t.nodes[id]
	var c0, c1 float64
	if !leaf {
		if ch := n.children[0]; ch != noNode {
			c0 = t.nodes[ch].logProb
		}
		if ch := n.children[1]; ch != noNode {
			c1 = t.nodes[ch].logProb
		}
	}
	n.refresh(leaf, c0, c1)
}

func (t *Tree) alloc() nodeID {
	t.size++
	if k := len(t.free); k > 0 {
		id := t.free[k-1]
		t.free = t.free[:k-1]
		return id
	}
	t.nodes = append(t.nodes, node{})
	return nodeID(len(t.nodes) - 1)
}

func (t *Tree) release(id nodeID) {
	t.nodes[id] = node{}
	t.free = append(t.free, id)
	t.size--
}
