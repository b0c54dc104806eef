// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the settings for an agent run.
//
// Precedence is environment > file > defaults. Files are YAML; files named
// *.json or *.jsonc may carry comments and trailing commas and are read
// through the same decoder once normalized.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/mcaixi/pkg/logging"
	"github.com/AleutianAI/mcaixi/services/aixi/agent"
	"github.com/AleutianAI/mcaixi/services/aixi/agent/mcts"
	storage "github.com/AleutianAI/mcaixi/services/aixi/storage/badger"
	"github.com/AleutianAI/mcaixi/services/aixi/telemetry"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

var validate = validator.New()

// Config is the full run configuration.
type Config struct {
	Model       ModelConfig       `yaml:"model" json:"model"`
	Agent       AgentConfig       `yaml:"agent" json:"agent"`
	Search      mcts.Config       `yaml:"search" json:"search"`
	Environment EnvironmentConfig `yaml:"environment" json:"environment"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Telemetry   telemetry.Config  `yaml:"telemetry" json:"telemetry"`
	Journal     JournalConfig     `yaml:"journal" json:"journal"`
}

type ModelConfig struct {
	// Depth is the context tree depth.
	Depth int `yaml:"ct_depth" json:"ct_depth" validate:"gte=0,lte=256"`
}

type AgentConfig struct {
	// Policy is "mc-aixi-ctw" (the default) or "random".
	Policy string `yaml:"policy" json:"policy,omitempty" validate:"omitempty,oneof=mc-aixi-ctw random"`

	Exploration    float64 `yaml:"exploration" json:"exploration" validate:"gte=0,lte=1"`
	ExploreDecay   float64 `yaml:"explore_decay" json:"explore_decay" validate:"gte=0,lte=1"`
	MinExploration float64 `yaml:"min_exploration" json:"min_exploration" validate:"gte=0,ltefield=Exploration"`
	LearningPeriod int     `yaml:"learning_period" json:"learning_period" validate:"gte=0"`

	// TerminateAge ends the run at this many cycles. 0 runs until the
	// environment terminates or the process is interrupted.
	TerminateAge int `yaml:"terminate_age" json:"terminate_age" validate:"gte=0"`

	// Seed seeds the agent and environment. 0 picks one at startup.
	Seed uint64 `yaml:"seed" json:"seed"`
}

type EnvironmentConfig struct {
	Name    string            `yaml:"name" json:"name" validate:"required"`
	Options map[string]string `yaml:"options" json:"options"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir" json:"dir"`
	JSON  bool   `yaml:"json" json:"json"`
	Quiet bool   `yaml:"quiet" json:"quiet"`
}

type JournalConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	Path           string        `yaml:"path" json:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory       bool          `yaml:"in_memory" json:"in_memory"`
	SyncWrites     bool          `yaml:"sync_writes" json:"sync_writes"`
	GCInterval     time.Duration `yaml:"gc_interval" json:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" json:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// Default returns the built-in defaults.
func Default() Config {
	a := agent.DefaultConfig()
	st := storage.DefaultConfig()
	return Config{
		Model: ModelConfig{Depth: a.Depth},
		Agent: AgentConfig{
			Exploration:    a.Exploration,
			ExploreDecay:   a.ExploreDecay,
			MinExploration: a.MinExploration,
			LearningPeriod: a.LearningPeriod,
		},
		Search:      a.Search,
		Environment: EnvironmentConfig{Name: "coin_flip"},
		Logging:     LoggingConfig{Level: "info"},
		Telemetry:   telemetry.DefaultConfig(),
		Journal: JournalConfig{
			Path:           "~/.mcaixi/journal",
			SyncWrites:     st.SyncWrites,
			GCInterval:     st.GCInterval,
			GCDiscardRatio: st.GCDiscardRatio,
		},
	}
}

// Load reads path over the defaults, applies AIXI_* environment overrides,
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(data, filepath.Ext(path)); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays data onto c. Keys the struct does not know are errors.
func (c *Config) decode(data []byte, ext string) error {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate runs struct tag checks and then the agent's and planner's own
// range checks.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.AgentSettings().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// AgentSettings returns the agent and search settings.
func (c Config) AgentSettings() agent.Config {
	return agent.Config{
		Policy:         c.Agent.Policy,
		Depth:          c.Model.Depth,
		Exploration:    c.Agent.Exploration,
		ExploreDecay:   c.Agent.ExploreDecay,
		MinExploration: c.Agent.MinExploration,
		LearningPeriod: c.Agent.LearningPeriod,
		Search:         c.Search,
	}
}

// LoggerSettings returns the logger settings for service.
func (c Config) LoggerSettings(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
		Quiet:   c.Logging.Quiet,
	}
}

// StorageSettings returns the journal database settings with ~ expanded.
func (c Config) StorageSettings() storage.Config {
	return storage.Config{
		Path:           expandHome(c.Journal.Path),
		InMemory:       c.Journal.InMemory,
		SyncWrites:     c.Journal.SyncWrites,
		GCInterval:     c.Journal.GCInterval,
		GCDiscardRatio: c.Journal.GCDiscardRatio,
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
