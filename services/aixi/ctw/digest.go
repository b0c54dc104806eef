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
	"encoding/binary"
	"math"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest returns a BLAKE3 hash of the tree's observable state: history,
// learned flags, and every node's counts and log-probabilities in
// depth-first order.
//
// Arena indices are not hashed, so two trees that differ only in where
// nodes happen to live produce the same digest.
func (t *Tree) Digest() [32]byte {
	h := blake3.New()
	buf := make([]byte, 0, 64)

	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.depth))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.history.Len()))
	_, _ = h.Write(buf)

	hist := make([]byte, 0, t.history.Len())
	for i, s := range t.history.symbols {
		b := byte(s)
		if t.history.learned[i] {
			b |= 0x80
		}
		hist = append(hist, b)
	}
	_, _ = h.Write(hist)

	var walk func(id nodeID)
	walk = func(id nodeID) {
		n := &t.nodes[id]
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint32(buf, n.counts[0])
		buf = binary.LittleEndian.AppendUint32(buf, n.counts[1])
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(n.logKT))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(n.logProb))
		var mask byte
		if n.children[0] != noNode {
			mask |= 1
		}
		if n.children[1] != noNode {
			mask |= 2
		}
		buf = append(buf, mask)
		_, _ = h.Write(buf)
		for _, c := range n.children {
			if c != noNode {
				walk(c)
			}
		}
	}
	walk(rootID)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NodeSnapshot is the observable state of one context.
type NodeSnapshot struct {
	// Context is the path from the root, most recent symbol first.
	Context string
	Counts  [2]uint32
	LogKT   float64
	LogProb float64
}

// Snapshot is a comparable, index-free copy of a tree.
type Snapshot struct {
	Depth   int
	Size    int
	History []Symbol
	Learned []bool
	Nodes   []NodeSnapshot
}

// Snapshot returns the tree's state in depth-first order.
func (t *Tree) Snapshot() Snapshot {
	s := Snapshot{
		Depth:   t.depth,
		Size:    t.size,
		History: t.history.Symbols(),
		Learned: append([]bool{}, t.history.learned...),
	}
	var ctx strings.Builder
	var walk func(id nodeID)
	walk = func(id nodeID) {
		n := &t.nodes[id]
		s.Nodes = append(s.Nodes, NodeSnapshot{
			Context: ctx.String(),
			Counts:  n.counts,
			LogKT:   n.logKT,
			LogProb: n.logProb,
		})
		for c, child := range n.children {
			if child == noNode {
				continue
			}
			prefix := ctx.String()
			ctx.WriteByte(byte('0' + c))
			walk(child)
			ctx.Reset()
			ctx.WriteString(prefix)
		}
	}
	walk(rootID)
	return s
}
