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

// NodeKind discriminates search tree nodes.
type NodeKind uint8

const (
	// DecisionNode is where the agent chooses an action. Children are keyed
	// by action.
	DecisionNode NodeKind = iota

	// ChanceNode is where the model samples a percept. Children are keyed
	// by the encoded percept.
	ChanceNode
)

// String returns "decision" or "chance".
func (k NodeKind) String() string {
	switch k {
	case DecisionNode:
		return "decision"
	case ChanceNode:
		return "chance"
	default:
		return "unknown"
	}
}

type edge struct {
	key   int
	child int32
}

// searchNode is one node of the arena. Decision and chance nodes share the
// layout; kind selects the behavior in the rollout switch.
type searchNode struct {
	kind   NodeKind
	visits uint32
	mean   float64

	// edges keep insertion order, which is the tie-break order.
	edges []edge
}

// backup folds ret into the running mean.
func (n *searchNode) backup(ret float64) {
	n.visits++
	n.mean += (ret - n.mean) / float64(n.visits)
}

// searchTree is an arena of nodes. Index 0 is the root decision node.
type searchTree struct {
	nodes []searchNode
}

func newSearchTree() *searchTree {
	t := &searchTree{nodes: make([]searchNode, 0, 256)}
	t.add(DecisionNode)
	return t
}

func (t *searchTree) add(kind NodeKind) int32 {
	t.nodes = append(t.nodes, searchNode{kind: kind})
	return int32(len(t.nodes) - 1)
}

func (t *searchTree) node(id int32) *searchNode {
	return &t.nodes[id]
}

// child returns the child of id under key, or -1.
func (t *searchTree) child(id int32, key int) int32 {
	for _, e := range t.nodes[id].edges {
		if e.key == key {
			return e.child
		}
	}
	return -1
}

// link creates a child of the given kind under key. The caller has checked
// that none exists.
func (t *searchTree) link(id int32, key int, kind NodeKind) int32 {
	c := t.add(kind)
	t.nodes[id].edges = append(t.nodes[id].edges, edge{key: key, child: c})
	return c
}

func (t *searchTree) size() int {
	return len(t.nodes)
}
