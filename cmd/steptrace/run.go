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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/steptrace/pkg/logging"
	"github.com/AleutianAI/steptrace/services/steptrace"
	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
	"github.com/AleutianAI/steptrace/services/steptrace/config"
	"github.com/AleutianAI/steptrace/services/steptrace/tracefile"
)

// errScriptFailed is returned after a failed trace has been reported, so
// main exits non-zero without printing it again.
var errScriptFailed = errors.New("script failed")

const formatText = "text"

var (
	enterColor   = color.New(color.FgGreen)
	lineColor    = color.New(color.FgCyan)
	exitColor    = color.New(color.FgYellow)
	nameColor    = color.New(color.Bold)
	formulaColor = color.New(color.FgMagenta)
	dimColor     = color.New(color.FgHiBlack)
	errColor     = color.New(color.FgRed, color.Bold)
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "run <file.py>",
		Short: "Trace a script and print the steps",
		Long: `Traces a script with the configured execution limits and prints the
recorded steps. Text output lists the variables each step changed.

Examples:
  steptrace run script.py
  steptrace run script.py --format json
  steptrace run script.py --out trace.msgpack   # save for steptrace replay`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			res, err := traceFile(cmd, opts, cfg, args[0])
			if err != nil {
				return err
			}
			if out != "" {
				if err := tracefile.WriteFile(out, res); err != nil {
					return err
				}
			}
			if err := writeResult(cmd.OutOrStdout(), res, format); err != nil {
				return err
			}
			if !res.Success {
				return errScriptFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or msgpack")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Also write the trace to this file (.json, .msgpack or .mp)")
	return cmd
}

// traceFile reads and traces a script with the limits from cfg.
func traceFile(cmd *cobra.Command, opts *rootOptions, cfg *config.Config, path string) (*assembler.Result, error) {
	source, err := readSource(path, cfg.Execution.MaxSourceBytes)
	if err != nil {
		return nil, err
	}
	appLog, err := opts.newLogger(cmd, cfg, logging.LevelWarn)
	if err != nil {
		return nil, err
	}
	defer appLog.Close()

	asm := assembler.New(cfg.AssemblerSettings(), appLog.Slog())
	return asm.Trace(cmd.Context(), source), nil
}

func readSource(path string, maxBytes int) ([]byte, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case len(source) == 0:
		return nil, fmt.Errorf("%s: %w", path, steptrace.ErrEmptySource)
	case len(source) > maxBytes:
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", path, steptrace.ErrSourceTooLarge, len(source), maxBytes)
	}
	return source, nil
}

func writeResult(w io.Writer, res *assembler.Result, format string) error {
	if format == formatText {
		writeText(w, res)
		return nil
	}
	f, err := tracefile.ParseFormat(format)
	if err != nil {
		return fmt.Errorf("invalid --format %q: %w", format, err)
	}
	return tracefile.Write(w, res, f)
}

func writeText(w io.Writer, res *assembler.Result) {
	for i, step := range res.Steps {
		code := ""
		if step.Code != nil {
			code = strings.TrimSpace(*step.Code)
		}
		fmt.Fprintf(w, "%4d %s %s  %s\n",
			i+1,
			eventColor(step.Event).Sprintf("%-5s", step.Event),
			dimColor.Sprintf("%s:%d", step.Func, step.Line),
			code,
		)
		for _, name := range step.ChangedNames() {
			fmt.Fprintf(w, "       %s = %s\n", nameColor.Sprint(name), compact(step.After[name]))
		}
		if step.Formula != nil {
			fmt.Fprintf(w, "       %s %s\n", dimColor.Sprint("formula"), formulaColor.Sprint(step.Formula.Expr))
		}
		if step.ReturnValue != nil {
			fmt.Fprintf(w, "       %s %s\n", dimColor.Sprint("return"), compact(step.ReturnValue.V))
		}
	}

	if res.Stdout != "" {
		fmt.Fprintln(w, dimColor.Sprint("--- stdout"))
		fmt.Fprint(w, res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(w)
		}
	}

	if !res.Success {
		fmt.Fprintln(w, errColor.Sprintf("%s error: %s", res.ErrorKind, res.Error))
		if res.Traceback != "" {
			fmt.Fprintln(w, strings.TrimRight(res.Traceback, "\n"))
		}
		return
	}
	fmt.Fprintln(w, dimColor.Sprintf("%d steps in %dms", len(res.Steps), res.DurationMS))
}

func eventColor(event string) *color.Color {
	switch event {
	case "enter":
		return enterColor
	case "exit":
		return exitColor
	default:
		return lineColor
	}
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// isSource reports whether path names a script rather than a trace file.
func isSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".py")
}
