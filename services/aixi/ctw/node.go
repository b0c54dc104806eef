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

// nodeID addresses a node in the arena. The root is 0 and is never anyone's
// child, so 0 in a child slot means "no child".
type nodeID = int32

const (
	rootID nodeID = 0
	noNode nodeID = 0
)

var (
	logHalf = math.Log(0.5)
	logPi   = math.Log(math.Pi)
)

// node is one binary context.
type node struct {
	children [2]nodeID
	counts   [2]uint32

	// logKT is the log Krichevsky-Trofimov estimate of the symbols seen in
	// this context.
	logKT float64

	// logProb is the log weighted probability of the subtree.
	logProb float64
}

func (n *node) visits() uint32 {
	return n.counts[0] + n.counts[1]
}

// refresh recomputes logKT and logProb from the counts and the children's
// weighted probabilities.
//
// Both values are pure functions of the subtree's counts. Re-running refresh
// after a decrement reproduces the pre-increment bits exactly, which is what
// makes Revert bit-exact without an undo log of floats.
func (n *node) refresh(leaf bool, child0, child1 float64) {
	a, b := n.counts[0], n.counts[1]
	if a == 0 && b == 0 {
		n.logKT = 0
		n.logProb = 0
		return
	}
	n.logKT = logKT(a, b)
	if leaf {
		n.logProb = n.logKT
		return
	}
	n.logProb = mixHalf(n.logKT, child0+child1)
}

// logKT is log(KT(a, b)) in closed form:
// Γ(a+½)Γ(b+½) / (π Γ(a+b+1)).
func logKT(a, b uint32) float64 {
	fa, fb := float64(a), float64(b)
	ga, _ := math.Lgamma(fa + 0.5)
	gb, _ := math.Lgamma(fb + 0.5)
	gn, _ := math.Lgamma(fa + fb + 1)
	return ga + gb - gn - logPi
}

// mixHalf returns log(½·e^x + ½·e^y), clamped to at most 0.
func mixHalf(x, y float64) float64 {
	hi, lo := x, y
	if lo > hi {
		hi, lo = lo, hi
	}
	v := logHalf + hi + math.Log1p(math.Exp(lo-hi))
	if v > 0 {
		return 0
	}
	return v
}
