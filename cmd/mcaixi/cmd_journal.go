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
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcaixi/pkg/ux"
	"github.com/AleutianAI/mcaixi/services/aixi/agent"
	"github.com/AleutianAI/mcaixi/services/aixi/journal"
	storage "github.com/AleutianAI/mcaixi/services/aixi/storage/badger"
)

var errStopReplay = errors.New("stop replay")

func newJournalCmd(g *globalFlags) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded runs",
	}
	cmd.PersistentFlags().StringVar(&path, "journal-path", "", "journal directory")

	open := func(c *cobra.Command) (*journal.Journal, func() error, error) {
		cfg, err := g.load(c)
		if err != nil {
			return nil, nil, err
		}
		if c.Flags().Changed("journal-path") {
			cfg.Journal.Path = path
		}
		logs := newLogger(cfg)
		st := cfg.StorageSettings()
		st.InMemory = false
		st.GCInterval = 0
		st.Logger = logs.Slog()
		db, err := storage.Open(st)
		if err != nil {
			logs.Close()
			return nil, nil, err
		}
		j, err := journal.New(db, journal.WithLogger(logs.Slog()))
		if err != nil {
			db.Close()
			logs.Close()
			return nil, nil, err
		}
		return j, func() error { return errors.Join(db.Close(), logs.Close()) }, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			out, err := g.printer(c)
			if err != nil {
				return err
			}
			j, closeDB, err := open(c)
			if err != nil {
				return err
			}
			defer closeDB()

			runs, err := j.Runs(c.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				out.Warning("no runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				status := r.StopReason
				if !r.Finished() {
					status = "unfinished"
				}
				rows = append(rows, []string{
					r.ID[:8],
					r.Environment,
					r.StartedAt.Local().Format(time.DateTime),
					strconv.Itoa(r.Cycles),
					strconv.FormatFloat(r.TotalReward, 'f', -1, 64),
					status,
				})
			}
			out.Table([]string{"ID", "ENVIRONMENT", "STARTED", "CYCLES", "REWARD", "STATUS"}, rows)
			return nil
		},
	}

	var from, limit int
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its cycles",
		Long:  "Show a run's metadata and cycles. The run ID may be abbreviated to any unambiguous prefix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			out, err := g.printer(c)
			if err != nil {
				return err
			}
			j, closeDB, err := open(c)
			if err != nil {
				return err
			}
			defer closeDB()

			meta, err := j.Run(c.Context(), args[0])
			if err != nil {
				return err
			}
			out.Fields("Run "+meta.ID, metaFields(meta))

			var rows [][]string
			err = j.Cycles(c.Context(), meta.ID, from, func(rec agent.CycleRecord) error {
				if limit > 0 && len(rows) == limit {
					return errStopReplay
				}
				rows = append(rows, cycleRow(rec))
				return nil
			})
			if err != nil && !errors.Is(err, errStopReplay) {
				return err
			}
			if len(rows) > 0 {
				out.Table([]string{"CYCLE", "ACTION", "OBS", "REWARD", "MODE", "AVG", "NODES", "SIMS"}, rows)
			}
			return nil
		},
	}
	show.Flags().IntVar(&from, "from", 1, "first cycle to show")
	show.Flags().IntVar(&limit, "limit", 20, "cycles to show (0 for all)")

	cmd.AddCommand(list, show)
	return cmd
}

func metaFields(m journal.RunMeta) []ux.KV {
	status := m.StopReason
	if !m.Finished() {
		status = "unfinished"
	}
	opts := make([]string, 0, len(m.Options))
	for k, v := range m.Options {
		opts = append(opts, k+"="+v)
	}
	slices.Sort(opts)
	return []ux.KV{
		{Key: "environment", Value: m.Environment},
		{Key: "options", Value: strings.Join(opts, ",")},
		{Key: "seed", Value: strconv.FormatUint(m.Seed, 10)},
		{Key: "config", Value: m.Fingerprint},
		{Key: "started", Value: m.StartedAt.Local().Format(time.DateTime)},
		{Key: "cycles", Value: strconv.Itoa(m.Cycles)},
		{Key: "total_reward", Value: strconv.FormatFloat(m.TotalReward, 'f', -1, 64)},
		{Key: "status", Value: status},
	}
}

func cycleRow(rec agent.CycleRecord) []string {
	mode := "plan"
	switch {
	case rec.Explored:
		mode = "explore"
	case rec.Degenerate:
		mode = "degenerate"
	}
	return []string{
		strconv.Itoa(rec.Cycle),
		strconv.Itoa(rec.Action),
		strconv.Itoa(rec.Observation),
		strconv.Itoa(rec.Reward),
		mode,
		strconv.FormatFloat(rec.AverageReward, 'f', 4, 64),
		strconv.Itoa(rec.ModelSize),
		strconv.Itoa(rec.Simulations),
	}
}
