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
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// BudgetConfig limits one searcher.
type BudgetConfig struct {
	Simulations int
	MaxNodes    int
	TimeLimit   time.Duration
}

// Budget tracks simulations and nodes against their limits.
//
// Thread Safety: Safe for concurrent use. Counters are atomic.
type Budget struct {
	config    BudgetConfig
	startTime time.Time

	simulations atomic.Int64
	nodes       atomic.Int64

	mu          sync.RWMutex
	exhaustedBy string
}

// NewBudget starts the clock on a new budget.
func NewBudget(config BudgetConfig) *Budget {
	return &Budget{config: config, startTime: time.Now()}
}

// Acquire claims one simulation. It returns false once any limit is hit;
// ExhaustedBy then names the limit.
func (b *Budget) Acquire() bool {
	if b.config.TimeLimit > 0 && time.Since(b.startTime) >= b.config.TimeLimit {
		b.markExhausted("time")
		return false
	}
	for {
		n := b.simulations.Load()
		if n >= int64(b.config.Simulations) {
			b.markExhausted("simulations")
			return false
		}
		if b.simulations.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release returns a simulation that was claimed but abandoned.
func (b *Budget) Release() {
	b.simulations.Add(-1)
}

// RecordNode counts a new search tree node.
func (b *Budget) RecordNode() {
	b.nodes.Add(1)
}

// CanExpand reports whether another node fits the node limit.
func (b *Budget) CanExpand() bool {
	if b.config.MaxNodes <= 0 {
		return true
	}
	if b.nodes.Load() >= int64(b.config.MaxNodes) {
		b.markExhausted("nodes")
		return false
	}
	return true
}

// Simulations returns the number of simulations claimed.
func (b *Budget) Simulations() int64 { return b.simulations.Load() }

// Nodes returns the number of nodes recorded.
func (b *Budget) Nodes() int64 { return b.nodes.Load() }

// Elapsed returns time since the budget was created.
func (b *Budget) Elapsed() time.Duration { return time.Since(b.startTime) }

// ExhaustedBy returns the first limit that was hit, or "".
func (b *Budget) ExhaustedBy() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exhaustedBy
}

// Err maps ExhaustedBy to a sentinel error, nil when nothing was hit or
// the simulation count simply ran out.
func (b *Budget) Err() error {
	return limitErr(b.ExhaustedBy())
}

func limitErr(exhaustedBy string) error {
	switch exhaustedBy {
	case "time":
		return ErrTimeLimitExceeded
	case "nodes":
		return ErrNodeLimitExceeded
	default:
		return nil
	}
}

func (b *Budget) markExhausted(by string) {
	b.mu.Lock()
	if b.exhaustedBy == "" {
		b.exhaustedBy = by
	}
	b.mu.Unlock()
}

// String returns a human-readable budget status.
func (b *Budget) String() string {
	status := ""
	if by := b.ExhaustedBy(); by != "" {
		status = " [EXHAUSTED by " + by + "]"
	}
	return fmt.Sprintf("Budget{sims=%d/%d, nodes=%d/%d, time=%v/%v}%s",
		b.Simulations(), b.config.Simulations,
		b.Nodes(), b.config.MaxNodes,
		b.Elapsed().Round(time.Millisecond), b.config.TimeLimit,
		status,
	)
}
