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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steptrace/services/steptrace"
	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
	"github.com/AleutianAI/steptrace/services/steptrace/topology"
	"github.com/AleutianAI/steptrace/services/steptrace/tracefile"
)

func writeScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--color", "off"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "steptrace "+steptrace.ServiceVersion+"\n", out)
}

func TestRun_Text(t *testing.T) {
	path := writeScript(t, "demo.py", "x = 1\ny = x + 2\nprint(y)\n")

	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "y = x + 2")
	assert.Contains(t, out, "y = 3")
	assert.Contains(t, out, "formula x + 2")
	assert.Contains(t, out, "--- stdout\n3\n")
	assert.Contains(t, out, "5 steps in")
}

func TestRun_JSON(t *testing.T) {
	path := writeScript(t, "demo.py", "x = 1\ny = x + 2\n")

	out, err := execute(t, "run", path, "--format", "json")
	require.NoError(t, err)

	var res assembler.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Len(t, res.Steps, 4)
	assert.Equal(t, "exit", res.Steps[3].Event)
}

func TestRun_ScriptFailure(t *testing.T) {
	path := writeScript(t, "bad.py", "a = 1\nb = a / 0\n")

	out, err := execute(t, "run", path)
	require.ErrorIs(t, err, errScriptFailed)
	assert.Contains(t, out, "runtime error: ZeroDivisionError")
	assert.Contains(t, out, "Traceback")
}

func TestRun_Rejections(t *testing.T) {
	empty := writeScript(t, "empty.py", "")
	_, err := execute(t, "run", empty)
	assert.ErrorIs(t, err, steptrace.ErrEmptySource)

	ok := writeScript(t, "ok.py", "x = 1\n")
	_, err = execute(t, "run", ok, "--format", "yaml")
	assert.ErrorIs(t, err, tracefile.ErrUnknownFormat)

	_, err = execute(t, "run", filepath.Join(t.TempDir(), "missing.py"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = execute(t, "--color", "sometimes", "version")
	assert.Error(t, err)
}

func TestRun_SourceLimitFromConfig(t *testing.T) {
	cfgPath := writeScript(t, "steptrace.yaml", "execution:\n  max_source_bytes: 8\n")
	path := writeScript(t, "long.py", "value = 12345\n")

	_, err := execute(t, "--config", cfgPath, "run", path)
	assert.ErrorIs(t, err, steptrace.ErrSourceTooLarge)
}

func TestRun_OutThenReplay(t *testing.T) {
	path := writeScript(t, "demo.py", "def sq(v):\n    return v * v\n\nr = sq(3)\n")
	tracePath := filepath.Join(t.TempDir(), "demo.msgpack")

	_, err := execute(t, "run", path, "--format", "json", "--out", tracePath)
	require.NoError(t, err)

	cmd := newRootCmd()
	cmd.SetContext(context.Background())
	opts := &rootOptions{color: "off"}

	fromFile, source, err := loadReplay(cmd, opts, tracePath)
	require.NoError(t, err)
	assert.Nil(t, source)
	require.True(t, fromFile.Success)

	fromScript, source, err := loadReplay(cmd, opts, path)
	require.NoError(t, err)
	assert.Equal(t, "def sq(v):\n    return v * v\n\nr = sq(3)\n", string(source))
	require.Equal(t, len(fromScript.Steps), len(fromFile.Steps))
	for i := range fromScript.Steps {
		assert.Equal(t, fromScript.Steps[i].Event, fromFile.Steps[i].Event, "step %d", i)
		assert.Equal(t, fromScript.Steps[i].Line, fromFile.Steps[i].Line, "step %d", i)
	}
}

func TestFormulas(t *testing.T) {
	path := writeScript(t, "f.py", "r = 2\narea = 3.14 * r**2\n")

	out, err := execute(t, "formulas", path)
	require.NoError(t, err)

	var got steptrace.FormulasResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Contains(t, got.Formulas, 2)
	assert.Equal(t, "3.14 * r ** 2", got.Formulas[2].Expr)
}

func TestTopology(t *testing.T) {
	path := writeScript(t, "m.py", "import torch.nn as nn\nnet = nn.Sequential(\n    nn.Linear(784, 128),\n    nn.ReLU(),\n)\n")

	out, err := execute(t, "topology", path)
	require.NoError(t, err)

	var got steptrace.TopologyResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Models, 1)
	assert.Equal(t, "net", got.Models[0].Name)
	require.Len(t, got.Models[0].Layers, 2)
	assert.Equal(t, 784, *got.Models[0].Layers[0].In)

	bad := writeScript(t, "bad.py", "net = nn.Sequential(\n")
	_, err = execute(t, "topology", bad)
	assert.ErrorIs(t, err, topology.ErrSyntax)
}
