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
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AIXI_"

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

func intVar(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func floatVar(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func boolVar(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func stringVar(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

var envBindings = []envBinding{
	{"CT_DEPTH", intVar(func(c *Config) *int { return &c.Model.Depth })},
	{"HORIZON", intVar(func(c *Config) *int { return &c.Search.Horizon })},
	{"SIMULATIONS", intVar(func(c *Config) *int { return &c.Search.Simulations })},
	{"WORKERS", intVar(func(c *Config) *int { return &c.Search.Workers })},
	{"EXPLORATION_CONSTANT", floatVar(func(c *Config) *float64 { return &c.Search.ExplorationConstant })},
	{"DISCOUNT", floatVar(func(c *Config) *float64 { return &c.Search.Discount })},
	{"TIME_LIMIT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Search.TimeLimit = d
		return nil
	}},
	{"AGENT_POLICY", stringVar(func(c *Config) *string { return &c.Agent.Policy })},
	{"EXPLORATION", floatVar(func(c *Config) *float64 { return &c.Agent.Exploration })},
	{"EXPLORE_DECAY", floatVar(func(c *Config) *float64 { return &c.Agent.ExploreDecay })},
	{"MIN_EXPLORATION", floatVar(func(c *Config) *float64 { return &c.Agent.MinExploration })},
	{"LEARNING_PERIOD", intVar(func(c *Config) *int { return &c.Agent.LearningPeriod })},
	{"TERMINATE_AGE", intVar(func(c *Config) *int { return &c.Agent.TerminateAge })},
	{"SEED", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		c.Agent.Seed = n
		return nil
	}},
	{"ENVIRONMENT", stringVar(func(c *Config) *string { return &c.Environment.Name })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_DIR", stringVar(func(c *Config) *string { return &c.Logging.Dir })},
	{"LOG_JSON", boolVar(func(c *Config) *bool { return &c.Logging.JSON })},
	{"JOURNAL", boolVar(func(c *Config) *bool { return &c.Journal.Enabled })},
	{"JOURNAL_PATH", stringVar(func(c *Config) *string { return &c.Journal.Path })},
	{"METRICS_ADDR", stringVar(func(c *Config) *string { return &c.Telemetry.MetricsAddr })},
}

// applyEnv applies every AIXI_* variable that lookup finds.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, EnvPrefix, b.name, v, err)
		}
	}
	return nil
}
