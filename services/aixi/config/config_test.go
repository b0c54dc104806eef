// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mcaixi/pkg/logging"
	"github.com/AleutianAI/mcaixi/services/aixi/agent"
	"github.com/AleutianAI/mcaixi/services/aixi/agent/mcts"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Model.Depth)
	assert.Equal(t, 5, cfg.Search.Horizon)
	assert.Equal(t, 300, cfg.Search.Simulations)
	assert.Equal(t, "coin_flip", cfg.Environment.Name)
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("AIXI_HORIZON", "7")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.Horizon)
	assert.Equal(t, 300, cfg.Search.Simulations)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "aixi.yaml", `
model:
  ct_depth: 8
search:
  horizon: 3
  simulations: 64
  time_limit: 50ms
agent:
  exploration: 0.5
  explore_decay: 0.99
  learning_period: 1000
  terminate_age: 5000
  seed: 42
environment:
  name: bandit
  options:
    bandit-p0: "0.1"
`)
	t.Setenv("AIXI_CT_DEPTH", "12")
	t.Setenv("AIXI_SEED", "")
	t.Setenv("AIXI_AGENT_POLICY", "random")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Model.Depth, "environment beats file")
	assert.Equal(t, 3, cfg.Search.Horizon)
	assert.Equal(t, 64, cfg.Search.Simulations)
	assert.Equal(t, 50*time.Millisecond, cfg.Search.TimeLimit)
	assert.Equal(t, 1, cfg.Search.Workers, "unset keys keep defaults")
	assert.Equal(t, uint64(42), cfg.Agent.Seed, "empty variables are ignored")
	assert.Equal(t, "bandit", cfg.Environment.Name)
	assert.Equal(t, "0.1", cfg.Environment.Options["bandit-p0"])

	a := cfg.AgentSettings()
	assert.Equal(t, 12, a.Depth)
	assert.Equal(t, agent.PolicyRandom, a.Policy)
	assert.Equal(t, 0.5, a.Exploration)
	assert.Equal(t, 1000, a.LearningPeriod)
	assert.Equal(t, cfg.Search, a.Search)
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "aixi.jsonc", `{
  // tree depth
  "model": {"ct_depth": 6},
  "search": {"horizon": 2, "workers": 4,},
  /* journal on disk */
  "journal": {"enabled": true, "path": "/tmp/aixi", "gc_interval": "1m"},
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Model.Depth)
	assert.Equal(t, 2, cfg.Search.Horizon)
	assert.Equal(t, 4, cfg.Search.Workers)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, time.Minute, cfg.Journal.GCInterval)

	st := cfg.StorageSettings()
	assert.Equal(t, "/tmp/aixi", st.Path)
	assert.Equal(t, time.Minute, st.GCInterval)
	assert.True(t, st.SyncWrites)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "typo.yaml", "model:\n  ct_dpeth: 3\n"))
	assert.ErrorContains(t, err, "ct_dpeth")

	t.Setenv("AIXI_SIMULATIONS", "lots")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorContains(t, err, "AIXI_SIMULATIONS")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Search, cfg.Search)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"exploration above one", func(c *Config) { c.Agent.Exploration = 2 }},
		{"floor above exploration", func(c *Config) { c.Agent.Exploration = 0.1; c.Agent.MinExploration = 0.3 }},
		{"unknown policy", func(c *Config) { c.Agent.Policy = "greedy" }},
		{"negative depth", func(c *Config) { c.Model.Depth = -1 }},
		{"no environment", func(c *Config) { c.Environment.Name = "" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"journal without path", func(c *Config) { c.Journal.Enabled = true; c.Journal.Path = "" }},
		{"unknown exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }},
		{"bad discount", func(c *Config) { c.Search.Discount = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	cfg := Default()
	cfg.Search.Workers = 0
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, mcts.ErrInvalidConfig)

	cfg = Default()
	cfg.Journal.Enabled = true
	cfg.Journal.Path = ""
	cfg.Journal.InMemory = true
	assert.NoError(t, cfg.Validate(), "in-memory journal needs no path")
}

func TestLoggerSettings(t *testing.T) {
	cfg := Default()
	cfg.Logging = LoggingConfig{Level: "debug", Dir: "/var/log/aixi", JSON: true}
	lc := cfg.LoggerSettings("mcaixi")
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "mcaixi", lc.Service)
	assert.Equal(t, "/var/log/aixi", lc.LogDir)
	assert.True(t, lc.JSON)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".mcaixi/journal"), expandHome("~/.mcaixi/journal"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "rel/~", expandHome("rel/~"))
}
