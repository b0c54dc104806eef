// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/mcaixi/pkg/ux"
	"github.com/AleutianAI/mcaixi/services/aixi/agent"
	"github.com/AleutianAI/mcaixi/services/aixi/config"
	"github.com/AleutianAI/mcaixi/services/aixi/environment"
	"github.com/AleutianAI/mcaixi/services/aixi/journal"
	storage "github.com/AleutianAI/mcaixi/services/aixi/storage/badger"
	"github.com/AleutianAI/mcaixi/services/aixi/telemetry"
)

// Distinct PCG streams keep the agent's and the environment's draws apart
// under one seed.
const (
	agentStream = 0x61676e74
	envStream   = 0x656e7672
)

func newRunCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent against an environment",
		Long: `Run the agent until --terminate-age cycles, the environment terminates,
or the process is interrupted. Flags override the config file and AIXI_*
environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, g)
		},
	}
	f := cmd.Flags()
	f.String("agent", "", `action policy: "mc-aixi-ctw" or "random"`)
	f.Int("ct-depth", 0, "context tree depth")
	f.Int("horizon", 0, "planning horizon in cycles")
	f.Int("simulations", 0, "simulations per decision")
	f.Int("workers", 0, "parallel search workers")
	f.Duration("time-limit", 0, "wall-clock limit per decision")
	f.Float64("exploration", 0, "initial exploration rate")
	f.Float64("explore-decay", 0, "exploration decay per cycle")
	f.Int("learning-period", 0, "cycles to learn before freezing the model (0 learns forever)")
	f.Int("terminate-age", 0, "stop after this many cycles (0 runs until interrupted)")
	f.Uint64("seed", 0, "random seed (0 picks one)")
	f.StringP("environment", "e", "", "environment name")
	f.StringToString("env-opt", nil, "environment option key=value (repeatable)")
	f.Bool("journal", false, "record the run to the journal")
	f.String("journal-path", "", "journal directory")
	f.String("metrics-addr", "", "serve /metrics on this address")
	return cmd
}

// applyRunFlags copies every explicitly set run flag into cfg.
func applyRunFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var errs []error
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, err := fs.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, err := fs.GetFloat64(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	setString := func(name string, dst *string) {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	setInt("ct-depth", &cfg.Model.Depth)
	setInt("horizon", &cfg.Search.Horizon)
	setInt("simulations", &cfg.Search.Simulations)
	setInt("workers", &cfg.Search.Workers)
	setFloat("exploration", &cfg.Agent.Exploration)
	setFloat("explore-decay", &cfg.Agent.ExploreDecay)
	setInt("learning-period", &cfg.Agent.LearningPeriod)
	setInt("terminate-age", &cfg.Agent.TerminateAge)
	setString("agent", &cfg.Agent.Policy)
	setString("environment", &cfg.Environment.Name)
	setString("journal-path", &cfg.Journal.Path)
	setString("metrics-addr", &cfg.Telemetry.MetricsAddr)

	if fs.Changed("time-limit") {
		v, err := fs.GetDuration("time-limit")
		errs = append(errs, err)
		cfg.Search.TimeLimit = v
	}
	if fs.Changed("seed") {
		v, err := fs.GetUint64("seed")
		errs = append(errs, err)
		cfg.Agent.Seed = v
	}
	if fs.Changed("journal") {
		v, err := fs.GetBool("journal")
		errs = append(errs, err)
		cfg.Journal.Enabled = v
	}
	if fs.Changed("env-opt") {
		v, err := fs.GetStringToString("env-opt")
		errs = append(errs, err)
		if cfg.Environment.Options == nil {
			cfg.Environment.Options = make(map[string]string, len(v))
		}
		for k, val := range v {
			cfg.Environment.Options[k] = val
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return cfg.Validate()
}

func runAgent(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := g.load(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd.Flags(), &cfg); err != nil {
		return err
	}
	out, err := g.printer(cmd)
	if err != nil {
		return err
	}

	logs := newLogger(cfg)
	defer logs.Close()
	logger := logs.Slog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Telemetry.ServiceVersion = version
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()
	if srv := serveMetrics(cfg.Telemetry.MetricsAddr, logger); srv != nil {
		defer srv.Close()
	}

	seed := cfg.Agent.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	env, err := environment.New(
		cfg.Environment.Name,
		environment.Options(cfg.Environment.Options),
		rand.New(rand.NewPCG(seed, envStream)),
	)
	if err != nil {
		return err
	}
	ag, err := agent.New(env.Spec(), cfg.AgentSettings(),
		rand.New(rand.NewPCG(seed, agentStream)),
		agent.WithLogger(logger),
		agent.WithTracing(cfg.Telemetry.TraceExporter != "none"),
	)
	if err != nil {
		return err
	}

	opts := agent.RunOptions{TerminateAge: cfg.Agent.TerminateAge, Logger: logger}
	var run *journal.Run
	if cfg.Journal.Enabled {
		st := cfg.StorageSettings()
		st.Logger = logger
		db, err := storage.Open(st)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		j, err := journal.New(db, journal.WithLogger(logger))
		if err != nil {
			return err
		}
		run, err = j.Start(ctx, journal.RunInfo{
			Environment: cfg.Environment.Name,
			Options:     cfg.Environment.Options,
			Seed:        seed,
			Config:      cfg.AgentSettings(),
		})
		if err != nil {
			return err
		}
		opts.Recorder = run
	}

	logger.Info("run starting",
		slog.String("environment", cfg.Environment.Name),
		slog.String("policy", cfg.AgentSettings().Policy),
		slog.Uint64("seed", seed),
		slog.Int("ct_depth", cfg.Model.Depth),
		slog.Int("horizon", cfg.Search.Horizon),
		slog.Int("simulations", cfg.Search.Simulations),
	)
	sum, runErr := agent.Run(ctx, ag, env, opts)
	if run != nil {
		// The run context may be cancelled by now.
		if err := run.Finish(context.WithoutCancel(ctx), sum); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	out.Fields("Run summary", summaryFields(sum, seed, run))
	return runErr
}

func summaryFields(sum agent.Summary, seed uint64, run *journal.Run) []ux.KV {
	fields := []ux.KV{
		{Key: "cycles", Value: strconv.Itoa(sum.Cycles)},
		{Key: "total_reward", Value: strconv.FormatFloat(sum.TotalReward, 'f', -1, 64)},
		{Key: "average_reward", Value: strconv.FormatFloat(sum.AverageReward, 'f', 4, 64)},
		{Key: "explored", Value: strconv.Itoa(sum.Explored)},
		{Key: "degenerate", Value: strconv.Itoa(sum.Degenerate)},
		{Key: "model_size", Value: strconv.Itoa(sum.ModelSize)},
		{Key: "elapsed", Value: sum.Elapsed.Round(time.Millisecond).String()},
		{Key: "stop_reason", Value: sum.StopReason},
		{Key: "seed", Value: strconv.FormatUint(seed, 10)},
	}
	if run != nil {
		fields = append(fields, ux.KV{Key: "run_id", Value: run.ID()})
	}
	return fields
}

// serveMetrics exposes the prometheus handler on addr. It returns nil when
// addr is empty or the prometheus exporter is off.
func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	handler := telemetry.MetricsHandler()
	if addr == "" || handler == nil {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Warn("metrics listener", slog.String("addr", addr), slog.String("error", err.Error()))
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return srv
}
