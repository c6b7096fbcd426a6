// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
	"github.com/AleutianAI/steptrace/services/steptrace/formula"
)

func strPtr(s string) *string { return &s }

func createTestResult() *assembler.Result {
	return &assembler.Result{
		Success: true,
		Stdout:  "3\n",
		Steps: []assembler.Step{
			{Event: "enter", Func: "<module>", Line: 1, Code: strPtr("x = 1"),
				Before: map[string]any{}, After: map[string]any{}},
			{Event: "line", Func: "<module>", Line: 1, Code: strPtr("x = 1"),
				Before: map[string]any{}, After: map[string]any{"x": 1.0}},
			{Event: "line", Func: "<module>", Line: 2, Code: strPtr("y = x + 2"),
				Before: map[string]any{"x": 1.0}, After: map[string]any{"x": 1.0, "y": 3.0},
				Formula: &formula.Formula{Expr: "x + 2", Latex: strPtr("x + 2")}},
			{Event: "exit", Func: "<module>", Line: 3, Code: strPtr("print(y)"),
				Before: map[string]any{"x": 1.0, "y": 3.0}, After: map[string]any{"x": 1.0, "y": 3.0},
				ReturnValue: &assembler.Value{V: nil}},
		},
	}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "home":
			msg = tea.KeyMsg{Type: tea.KeyHome}
		case "end":
			msg = tea.KeyMsg{Type: tea.KeyEnd}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestNavigation(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want int
	}{
		{"starts at first step", nil, 0},
		{"right advances", []string{"right"}, 1},
		{"l advances", []string{"l", "l"}, 2},
		{"clamped at end", []string{"right", "right", "right", "right", "right"}, 3},
		{"left clamped at start", []string{"left", "h"}, 0},
		{"G jumps to last", []string{"G"}, 3},
		{"end jumps to last", []string{"end"}, 3},
		{"g jumps to first", []string{"G", "g"}, 0},
		{"home jumps to first", []string{"end", "home"}, 0},
		{"back one", []string{"end", "h"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := press(NewModel(createTestResult(), nil, "demo.py"), tt.keys...)
			assert.Equal(t, tt.want, m.Step())
		})
	}
}

func TestQuit(t *testing.T) {
	m := NewModel(createTestResult(), nil, "")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.(Model).View())
}

func TestView_ShowsStepDetail(t *testing.T) {
	m := NewModel(createTestResult(), []byte("x = 1\ny = x + 2\nprint(y)\n"), "demo.py")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = press(next.(Model), "right", "right")

	view := m.View()
	assert.Contains(t, view, "demo.py")
	assert.Contains(t, view, "step 3/4")
	assert.Contains(t, view, "y = x + 2")
	assert.Contains(t, view, "▶")
	assert.Contains(t, view, "formula")
	assert.Contains(t, view, "x + 2")
	assert.Contains(t, view, "* y")
	assert.NotContains(t, view, "* x")
	assert.NotContains(t, view, "return")
}

func TestView_ExitShowsReturnAndStdout(t *testing.T) {
	m := press(NewModel(createTestResult(), nil, ""), "G")
	view := m.View()
	assert.Contains(t, view, "return")
	assert.Contains(t, view, "null")
	assert.Contains(t, view, "stdout")
}

func TestView_FailedTraceWithoutSteps(t *testing.T) {
	res := &assembler.Result{
		Success:   false,
		Error:     "SyntaxError: invalid syntax",
		Traceback: "  File \"<string>\", line 1\n    x = (\n        ^\nSyntaxError: invalid syntax",
		ErrorKind: assembler.ErrorKindCompile,
	}
	m := press(NewModel(res, nil, "bad.py"), "right", "G")
	assert.Equal(t, 0, m.Step())

	view := m.View()
	assert.Contains(t, view, "compile error: SyntaxError: invalid syntax")
	assert.Contains(t, view, "x = (")
}

func TestSourceFromSteps(t *testing.T) {
	steps := []assembler.Step{
		{Line: 1, Code: strPtr("def f():")},
		{Line: 4, Code: strPtr("f()")},
		{Line: 9},
	}
	got := sourceFromSteps(steps)
	if diff := cmp.Diff([]string{"def f():", "", "", "f()"}, got); diff != "" {
		t.Errorf("sourceFromSteps mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderSource_WindowAroundLine(t *testing.T) {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "stmt"
	}
	m := NewModel(&assembler.Result{}, []byte(strings.Join(lines, "\n")), "")

	out := m.renderSource(20)
	rows := strings.Split(out, "\n")
	assert.Len(t, rows, defaultSourceRows)
	assert.Contains(t, out, "  20")
	assert.NotContains(t, out, "  30")

	out = m.renderSource(30)
	assert.Len(t, strings.Split(out, "\n"), defaultSourceRows)
	assert.Contains(t, out, "  30")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "…", truncate("abcd", 0))
}
