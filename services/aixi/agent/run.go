// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/mcaixi/services/aixi/environment"
	"github.com/AleutianAI/mcaixi/services/aixi/telemetry"
)

// CycleRecord describes one completed interaction cycle.
type CycleRecord struct {
	Cycle           int           `json:"cycle" cbor:"1,keyasint"`
	Action          int           `json:"action" cbor:"2,keyasint"`
	Observation     int           `json:"observation" cbor:"3,keyasint"`
	Reward          int           `json:"reward" cbor:"4,keyasint"`
	Explored        bool          `json:"explored" cbor:"5,keyasint"`
	Degenerate      bool          `json:"degenerate" cbor:"6,keyasint"`
	ExplorationRate float64       `json:"exploration_rate" cbor:"7,keyasint"`
	TotalReward     float64       `json:"total_reward" cbor:"8,keyasint"`
	AverageReward   float64       `json:"average_reward" cbor:"9,keyasint"`
	ModelSize       int           `json:"model_size" cbor:"10,keyasint"`
	SearchValue     float64       `json:"search_value" cbor:"11,keyasint"`
	Simulations     int           `json:"simulations" cbor:"12,keyasint"`
	Elapsed         time.Duration `json:"elapsed" cbor:"13,keyasint"`
}

// Recorder receives every completed cycle. A Recorder error stops Run.
type Recorder interface {
	Record(ctx context.Context, rec CycleRecord) error
}

// RunOptions bounds and observes a Run.
type RunOptions struct {
	// TerminateAge stops the run once the agent reaches this age.
	// 0 runs until the environment terminates or ctx is done.
	TerminateAge int

	// Recorder, when set, receives every cycle.
	Recorder Recorder

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Summary is the outcome of a Run.
type Summary struct {
	Cycles        int           `json:"cycles"`
	TotalReward   float64       `json:"total_reward"`
	AverageReward float64       `json:"average_reward"`
	ModelSize     int           `json:"model_size"`
	Explored      int           `json:"explored"`
	Degenerate    int           `json:"degenerate"`
	Elapsed       time.Duration `json:"elapsed"`
	StopReason    string        `json:"stop_reason"`
}

// Run drives the agent against env until TerminateAge is reached, the
// environment terminates, or ctx is done.
//
// A progress line is logged at cycles 1, 2, 4, 8 and so on. Cancellation
// is not an error: the summary so far is returned with StopReason
// "cancelled".
//
// Inputs:
//   - ctx: Cancellation for the whole run
//   - a: The agent
//   - env: The environment, wrapped with environment.Validate if needed
//   - opts: Termination and recording options
//
// Outputs:
//   - Summary: Totals for the cycles completed by this call
//   - error: Environment, planner, model or recorder failures
func Run(ctx context.Context, a *Agent, env environment.Environment, opts RunOptions) (Summary, error) {
	if env == nil {
		return Summary{}, ErrNilEnvironment
	}
	logger := opts.Logger
	if logger == nil {
		logger = a.logger
	}
	venv, err := environment.Validate(env)
	if err != nil {
		return Summary{}, err
	}

	ctx, span := otel.Tracer("mcaixi.agent").Start(ctx, "agent.Run")
	defer span.End()
	logger = telemetry.LoggerWithTrace(ctx, logger)
	span.SetAttributes(
		attribute.Int("agent.start_age", a.Age()),
		attribute.Int("agent.terminate_age", opts.TerminateAge),
	)

	start := time.Now()
	var sum Summary
	finish := func(reason string) Summary {
		sum.TotalReward = a.TotalReward()
		sum.AverageReward = a.AverageReward()
		sum.ModelSize = a.ModelSize()
		sum.Elapsed = time.Since(start)
		sum.StopReason = reason
		span.SetAttributes(
			attribute.String("agent.stop_reason", reason),
			attribute.Int("agent.cycles", sum.Cycles),
			attribute.Float64("agent.average_reward", sum.AverageReward),
		)
		if reason == "error" {
			span.SetStatus(codes.Error, "run failed")
		}
		logger.Info("run finished",
			slog.String("reason", reason),
			slog.Int("cycles", sum.Cycles),
			slog.Float64("total_reward", sum.TotalReward),
			slog.Float64("average_reward", sum.AverageReward),
			slog.Int("model_size", sum.ModelSize),
			slog.Duration("elapsed", sum.Elapsed),
		)
		return sum
	}

	for {
		switch {
		case opts.TerminateAge > 0 && a.Age() >= opts.TerminateAge:
			return finish("terminate_age"), nil
		case venv.Terminated():
			return finish("environment_terminated"), nil
		case ctx.Err() != nil:
			return finish("cancelled"), nil
		}

		cycleStart := time.Now()
		choice, err := a.NextAction(ctx, venv.Legal())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return finish("cancelled"), nil
			}
			return finish("error"), err
		}
		percept, err := venv.Act(ctx, choice.Action)
		if err != nil {
			return finish("error"), fmt.Errorf("cycle %d: act: %w", a.Age()+1, err)
		}
		if err := a.Update(choice.Action, percept.Observation, percept.Reward); err != nil {
			return finish("error"), fmt.Errorf("cycle %d: update: %w", a.Age()+1, err)
		}
		elapsed := time.Since(cycleStart)

		sum.Cycles++
		if choice.Explored {
			sum.Explored++
		}
		if choice.Degenerate {
			sum.Degenerate++
		}
		observe(a, choice, percept, elapsed)

		rec := CycleRecord{
			Cycle:           a.Age(),
			Action:          choice.Action,
			Observation:     percept.Observation,
			Reward:          percept.Reward,
			Explored:        choice.Explored,
			Degenerate:      choice.Degenerate,
			ExplorationRate: choice.Rate,
			TotalReward:     a.TotalReward(),
			AverageReward:   a.AverageReward(),
			ModelSize:       a.ModelSize(),
			Elapsed:         elapsed,
		}
		if choice.Plan != nil {
			rec.SearchValue = choice.Plan.Value
			rec.Simulations = choice.Plan.Simulations
		}
		if opts.Recorder != nil {
			if err := opts.Recorder.Record(ctx, rec); err != nil {
				return finish("error"), fmt.Errorf("cycle %d: record: %w", rec.Cycle, err)
			}
		}

		if isPowerOfTwo(rec.Cycle) {
			logger.Info("cycle",
				slog.Int("cycle", rec.Cycle),
				slog.Int("action", rec.Action),
				slog.Int("observation", rec.Observation),
				slog.Int("reward", rec.Reward),
				slog.Bool("explored", rec.Explored),
				slog.Float64("exploration_rate", rec.ExplorationRate),
				slog.Float64("average_reward", rec.AverageReward),
				slog.Int("model_size", rec.ModelSize),
			)
		}
	}
}

func observe(a *Agent, c Choice, p environment.Percept, elapsed time.Duration) {
	cyclesTotal.WithLabelValues(mode(c)).Inc()
	if p.Reward > 0 {
		rewardTotal.Add(float64(p.Reward))
	}
	averageReward.Set(a.AverageReward())
	explorationRate.Set(a.ExplorationRate())
	modelSize.Set(float64(a.ModelSize()))
	cycleDuration.Observe(elapsed.Seconds())
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
