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

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mcaixi/services/aixi/ctw"
)

type workerResult struct {
	children    []ChildStat
	completed   int
	nodes       int
	exhaustedBy string
}

// searchParallel runs root-parallel search. The caller's model is only read
// (to clone it) and is never modified.
//
// Simulations are split evenly and every worker's seed is drawn from rng up
// front, so results are reproducible when no time limit applies.
func (p *Planner) searchParallel(ctx context.Context, model *ctw.Tree, rng *rand.Rand, legal []int) (Result, error) {
	workers := min(p.config.Workers, p.config.Simulations)
	seeds := make([][2]uint64, workers)
	for i := range seeds {
		seeds[i] = [2]uint64{rng.Uint64(), rng.Uint64()}
	}

	results := make([]workerResult, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		sims := p.config.Simulations / workers
		if i < p.config.Simulations%workers {
			sims++
		}
		g.Go(func() error {
			wrng := rand.New(rand.NewPCG(seeds[i][0], seeds[i][1]))
			s := p.newSearch(gctx, model.Clone(), wrng, legal, sims)
			if err := s.run(); err != nil {
				return err
			}
			results[i] = workerResult{
				children:    s.rootStats(),
				completed:   s.completed,
				nodes:       s.tree.size(),
				exhaustedBy: s.budget.ExhaustedBy(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	merged, completed, nodes, exhaustedBy := mergeWorkers(legal, results)
	return p.choose(rng, legal, merged, completed, nodes, exhaustedBy), nil
}

// mergeWorkers combines root statistics by visit-weighted mean.
func mergeWorkers(legal []int, results []workerResult) ([]ChildStat, int, int, string) {
	merged := make([]ChildStat, len(legal))
	sums := make([]float64, len(legal))
	completed, nodes := 0, 0
	exhaustedBy := ""
	for i, a := range legal {
		merged[i].Action = a
	}
	for _, r := range results {
		completed += r.completed
		nodes += r.nodes
		if exhaustedBy == "" || r.exhaustedBy != "simulations" {
			exhaustedBy = r.exhaustedBy
		}
		for i, c := range r.children {
			merged[i].Visits += c.Visits
			sums[i] += float64(c.Visits) * c.Mean
		}
	}
	for i := range merged {
		if merged[i].Visits > 0 {
			merged[i].Mean = sums[i] / float64(merged[i].Visits)
		}
	}
	return merged, completed, nodes, exhaustedBy
}
