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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/steptrace/pkg/logging"
	"github.com/AleutianAI/steptrace/services/steptrace"
	"github.com/AleutianAI/steptrace/services/steptrace/formula"
	"github.com/AleutianAI/steptrace/services/steptrace/topology"
)

func newFormulasCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "formulas <file.py>",
		Short: "Print the formula extracted for each line",
		Long: `Prints a JSON object mapping line numbers to the formula computed on that
line. The script is parsed, not run. Sources that do not parse give {}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			source, err := readSource(args[0], cfg.Execution.MaxSourceBytes)
			if err != nil {
				return err
			}
			appLog, err := opts.newLogger(cmd, cfg, logging.LevelWarn)
			if err != nil {
				return err
			}
			defer appLog.Close()

			formulas := formula.NewExtractor(appLog.Slog()).Extract(cmd.Context(), source)
			return writeJSON(cmd.OutOrStdout(), steptrace.FormulasResponse{Formulas: formulas})
		},
	}
}

func newTopologyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "topology <file.py>",
		Short: "Print the layers of Sequential models defined in a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			source, err := readSource(args[0], cfg.Execution.MaxSourceBytes)
			if err != nil {
				return err
			}
			models, err := topology.Extract(cmd.Context(), source)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), steptrace.TopologyResponse{Models: models})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "steptrace %s\n", nameColor.Sprint(steptrace.ServiceVersion))
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
