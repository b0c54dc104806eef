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

import "math"

// PredictProbability returns the probability that seq comes next.
//
// The walk mirrors UpdateHistory but writes into a scratch overlay, so the
// tree, its size and its history are left exactly as they were. Symbols
// that arrive before the history holds D symbols have no context and
// contribute ½ each, matching Update.
//
// Inputs:
//   - seq: Candidate continuation
//
// Outputs:
//   - float64: P(seq | history), in [0, 1]
//   - error: ErrInvalidSymbol if seq is not binary
func (t *Tree) PredictProbability(seq []Symbol) (float64, error) {
	lp, err := t.LogPredictProbability(seq)
	if err != nil {
		return 0, err
	}
	return math.Exp(lp), nil
}

// LogPredictProbability is PredictProbability in the log domain. Prefer it
// for long sequences, whose probability underflows float64.
func (t *Tree) LogPredictProbability(seq []Symbol) (float64, error) {
	if err := validate(seq); err != nil {
		return 0, err
	}
	if len(seq) == 1 {
		return math.Log(t.predictOne(seq[0])), nil
	}

	o := newOverlay(t)
	before := t.nodes[rootID].logProb
	var unplaced float64
	for _, s := range seq {
		if !o.update(s) {
			unplaced += logHalf
		}
	}
	lp := o.logProbOf(rootID) - before + unplaced
	return min(lp, 0), nil
}

// overlay is a copy-on-write view of a tree. Real nodes are copied on first
// touch; new nodes get negative ids that never collide with the arena.
type overlay struct {
	t     *Tree
	index map[nodeID]int
	nodes []node
	extra []Symbol
	next  nodeID
	path  []nodeID
}

func newOverlay(t *Tree) *overlay {
	return &overlay{
		t:     t,
		index: make(map[nodeID]int),
		path:  make([]nodeID, t.depth+1),
	}
}

func (o *overlay) historyLen() int {
	return o.t.history.Len() + len(o.extra)
}

func (o *overlay) back(i int) Symbol {
	if i < len(o.extra) {
		return o.extra[len(o.extra)-1-i]
	}
	return o.t.history.Back(i - len(o.extra))
}

// load returns the scratch slot of id, copying the real node on first use.
func (o *overlay) load(id nodeID) int {
	if slot, ok := o.index[id]; ok {
		return slot
	}
	var n node
	if id >= 0 {
		n = o.t.nodes[id]
	}
	o.nodes = append(o.nodes, n)
	o.index[id] = len(o.nodes) - 1
	return len(o.nodes) - 1
}

func (o *overlay) logProbOf(id nodeID) float64 {
	if slot, ok := o.index[id]; ok {
		return o.nodes[slot].logProb
	}
	return o.t.nodes[id].logProb
}

func (o *overlay) childLogProb(id nodeID) float64 {
	if id == noNode {
		return 0
	}
	return o.logProbOf(id)
}

// update learns s in the overlay. It reports false when s had no context.
func (o *overlay) update(s Symbol) bool {
	depth := o.t.depth
	if o.historyLen() < depth {
		o.extra = append(o.extra, s)
		return false
	}

	cur := rootID
	o.path[0] = cur
	for i := 0; i < depth; i++ {
		c := o.back(i)
		slot := o.load(cur)
		child := o.nodes[slot].children[c]
		if child == noNode {
			o.next--
			child = o.next
			o.load(child)
			o.nodes[slot].children[c] = child
		}
		cur = child
		o.path[i+1] = cur
	}

	for i := depth; i >= 0; i-- {
		n := &o.nodes[o.load(o.path[i])]
		n.counts[s]++
		if i == depth {
			n.refresh(true, 0, 0)
			continue
		}
		n.refresh(false, o.childLogProb(n.children[0]), o.childLogProb(n.children[1]))
	}
	o.extra = append(o.extra, s)
	return true
}
