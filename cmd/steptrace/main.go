// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command steptrace records line-by-line execution traces of numeric
// Python scripts.
//
// Usage:
//
//	steptrace serve --config steptrace.yaml
//	steptrace run script.py
//	steptrace run script.py --format json --out trace.msgpack
//	steptrace replay trace.msgpack
//	steptrace formulas script.py
//	steptrace topology model.py
//
// Example requests against a running server:
//
//	# Health check
//	curl http://localhost:8000/v1/steptrace/health
//
//	# Trace a script
//	curl -X POST http://localhost:8000/v1/steptrace/execute \
//	  -H "Content-Type: application/json" \
//	  -d '{"code": "x = 1\ny = x + 2\n"}'
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/steptrace/pkg/logging"
	"github.com/AleutianAI/steptrace/services/steptrace/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	color      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errScriptFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "steptrace",
		Short: "Line-by-line execution tracer for numeric Python scripts",
		Long: `steptrace runs small numeric Python programs in a sandboxed evaluator and
records a snapshot of the variables around every executed line, together
with the algebraic formula each assignment computes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setColor(opts.color)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Config file (.yaml, .yml or .toml); defaults are embedded")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides the config)")
	root.PersistentFlags().StringVar(&opts.color, "color", "auto",
		"Colorize output: auto, on or off")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newReplayCmd(opts),
		newFormulasCmd(opts),
		newTopologyCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setColor applies the --color flag to fatih/color. In auto mode color is
// used only when stdout is a terminal.
func setColor(mode string) error {
	switch mode {
	case "auto":
		fd := os.Stdout.Fd()
		color.NoColor = os.Getenv("NO_COLOR") != "" ||
			!(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color %q: want auto, on or off", mode)
	}
	return nil
}

// loadConfig loads the --config file, or the embedded defaults.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. fallback is the level used when
// neither --log-level nor the config sets one.
func (o *rootOptions) newLogger(cmd *cobra.Command, cfg *config.Config, fallback logging.Level) (*logging.Logger, error) {
	level := fallback
	name := o.logLevel
	if name == "" && cmd.Name() == "serve" {
		name = cfg.Logging.Level
	}
	if name != "" {
		parsed, err := logging.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	lc := logging.Config{
		Level:   level,
		Service: "steptrace",
		Output:  cmd.ErrOrStderr(),
	}
	if cmd.Name() == "serve" {
		lc.LogDir = cfg.Logging.Dir
		lc.JSON = cfg.Logging.Format == "json"
	}
	return logging.New(lc), nil
}
