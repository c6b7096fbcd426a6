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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
	"github.com/AleutianAI/steptrace/services/steptrace/tracefile"
	"github.com/AleutianAI/steptrace/services/steptrace/tui"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <trace|file.py>",
		Short: "Step through a trace in the terminal",
		Long: `Opens the interactive replay viewer. The argument is either a trace file
written by "steptrace run --out" or a .py script, which is traced first.

Keys: ←/→ or h/l step, g/G first and last, ? help, q quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, source, err := loadReplay(cmd, opts, args[0])
			if err != nil {
				return err
			}
			return tui.Run(tui.NewModel(res, source, filepath.Base(args[0])))
		},
	}
}

// loadReplay returns the trace to replay and, for scripts, the source.
func loadReplay(cmd *cobra.Command, opts *rootOptions, path string) (*assembler.Result, []byte, error) {
	if !isSource(path) {
		res, err := tracefile.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return res, nil, nil
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	res, err := traceFile(cmd, opts, cfg, path)
	if err != nil {
		return nil, nil, err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read source: %w", err)
	}
	return res, source, nil
}
