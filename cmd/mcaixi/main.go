// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mcaixi runs an MC-AIXI-CTW agent against a built-in environment
// and inspects the journals of past runs.
//
// Usage:
//
//	mcaixi run --environment coin_flip --terminate-age 5000
//	mcaixi journal list
//	mcaixi journal show <run-id>
//	mcaixi version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcaixi/pkg/logging"
	"github.com/AleutianAI/mcaixi/pkg/ux"
	"github.com/AleutianAI/mcaixi/services/aixi/config"

	// Built-in environments register themselves.
	_ "github.com/AleutianAI/mcaixi/services/aixi/environment/bandit"
	_ "github.com/AleutianAI/mcaixi/services/aixi/environment/coinflip"
	_ "github.com/AleutianAI/mcaixi/services/aixi/environment/rockpaperscissors"
	_ "github.com/AleutianAI/mcaixi/services/aixi/environment/tiger"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// globalFlags are the persistent root flags.
type globalFlags struct {
	configPath string
	logLevel   string
	logJSON    bool
	output     string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "mcaixi",
		Short: "A Monte Carlo AIXI agent with a context tree weighting model",
		Long: `mcaixi learns a Bayesian mixture over variable-order Markov models of its
environment and plans with Monte Carlo tree search over that model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", os.Getenv("AIXI_CONFIG"), "config file (.yaml, .json or .jsonc)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&g.logJSON, "log-json", false, "log JSON to stderr")
	pf.StringVarP(&g.output, "output", "o", "auto", "output style: auto, styled, plain")

	root.AddCommand(newRunCmd(g), newJournalCmd(g), newVersionCmd())
	return root
}

// load reads the config and applies the persistent flags.
func (g *globalFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Logging.JSON = g.logJSON
	}
	return cfg, nil
}

func (g *globalFlags) printer(cmd *cobra.Command) (*ux.Printer, error) {
	mode, err := ux.ParseMode(g.output)
	if err != nil {
		return nil, err
	}
	return ux.NewPrinter(cmd.OutOrStdout(), mode), nil
}

func newLogger(cfg config.Config) *logging.Logger {
	return logging.New(cfg.LoggerSettings("mcaixi"))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcaixi %s (%s)\n", version, commit)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
