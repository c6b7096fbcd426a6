// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steptrace/services/steptrace/serialize"
)

func traceSource(t *testing.T, src string) *Result {
	t.Helper()
	return New(DefaultSettings(), nil).Trace(context.Background(), []byte(src))
}

func outline(steps []Step) []string {
	out := make([]string, len(steps))
	for i, st := range steps {
		out[i] = fmt.Sprintf("%s %s %d", st.Event, st.Func, st.Line)
	}
	return out
}

func TestTrace_TwoLines(t *testing.T) {
	res := traceSource(t, "x = 1\ny = x + 2\n")
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.ErrorKind)
	assert.NotEmpty(t, res.TraceID)

	want := []string{"enter <module> 1", "line <module> 1", "line <module> 2", "exit <module> 2"}
	if diff := cmp.Diff(want, outline(res.Steps)); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}

	line2 := res.Steps[2]
	require.NotNil(t, line2.Code)
	assert.Equal(t, "y = x + 2", *line2.Code)
	assert.Equal(t, map[string]any{"x": int64(1)}, line2.Before)
	assert.Equal(t, map[string]any{"x": int64(1), "y": int64(3)}, line2.After)

	require.NotNil(t, line2.Formula)
	assert.Equal(t, "x + 2", line2.Formula.Expr)
	require.NotNil(t, line2.Formula.Latex)
	assert.Equal(t, "x + 2", *line2.Formula.Latex)

	assert.Nil(t, res.Steps[1].Formula, "constant assignment is not a formula")
}

func TestTrace_DivisionByZero(t *testing.T) {
	res := traceSource(t, "a = 1\nb = a / 0\n")
	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindRuntime, res.ErrorKind)
	assert.Contains(t, res.Error, "ZeroDivisionError")
	assert.Contains(t, res.Error, "division by zero")
	assert.Contains(t, res.Traceback, "line 2")
	assert.Empty(t, res.Steps, "partial steps are discarded")
}

func TestTrace_LargeArraySummarized(t *testing.T) {
	res := traceSource(t, "import numpy as np\na = np.arange(10000)\n")
	require.True(t, res.Success, res.Error)

	var line *Step
	for i := range res.Steps {
		if res.Steps[i].Event == "line" && res.Steps[i].Line == 2 {
			line = &res.Steps[i]
		}
	}
	require.NotNil(t, line)

	arr, ok := line.After["a"].(*serialize.Array)
	require.True(t, ok, "got %T", line.After["a"])
	assert.Equal(t, "ndarray", arr.Type)
	assert.Equal(t, []int{10000}, arr.Shape)
	assert.Nil(t, arr.Values)
	require.NotNil(t, arr.Summary)
	assert.Equal(t, 10000, arr.Summary.Count)
	assert.Equal(t, 0.0, arr.Summary.Min)
	assert.Equal(t, 9999.0, arr.Summary.Max)
	assert.Equal(t, 4999.5, arr.Summary.Mean)
	assert.Len(t, arr.Summary.Sample, 6)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Less(t, len(b), 4096, "trace size must not grow with the array")
}

func TestTrace_FunctionCall(t *testing.T) {
	res := traceSource(t, "def f(a): return a*2\ny = f(3)\n")
	require.True(t, res.Success, res.Error)

	want := []string{
		"enter <module> 1",
		"line <module> 1",
		"line <module> 2",
		"enter f 1",
		"line f 1",
		"exit f 1",
		"exit <module> 2",
	}
	if diff := cmp.Diff(want, outline(res.Steps)); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}

	exit := res.Steps[5]
	require.NotNil(t, exit.ReturnValue)
	assert.Equal(t, int64(6), exit.ReturnValue.V)
	assert.Equal(t, map[string]any{"y": int64(6)}, res.Steps[2].After)

	// The caller's line and the callee's return share line 1 formulas only
	// on line steps.
	assert.Nil(t, exit.Formula)
	require.NotNil(t, res.Steps[4].Formula)
	assert.Equal(t, "a * 2", res.Steps[4].Formula.Expr)

	for _, st := range res.Steps {
		if st.Event != "exit" {
			assert.Nil(t, st.ReturnValue, "%s %s %d", st.Event, st.Func, st.Line)
		}
	}
}

func TestTrace_CompileError(t *testing.T) {
	res := traceSource(t, "x = (1 +\n")
	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindCompile, res.ErrorKind)
	assert.Contains(t, res.Error, "SyntaxError")
	assert.Empty(t, res.Steps)
}

func TestTrace_UnsupportedConstruct(t *testing.T) {
	res := traceSource(t, "class A:\n    pass\n")
	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindCompile, res.ErrorKind)
}

func TestTrace_Limits(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		adjust func(*Settings)
	}{
		{
			name:   "instructions",
			src:    "while True:\n    pass\n",
			adjust: func(s *Settings) { s.Limits.MaxInstructions = 1000 },
		},
		{
			name: "timeout",
			src:  "while True:\n    pass\n",
			adjust: func(s *Settings) {
				s.Limits.MaxInstructions = 0
				s.Timeout = 50 * time.Millisecond
			},
		},
		{
			name:   "steps",
			src:    "for i in range(100):\n    x = i\n",
			adjust: func(s *Settings) { s.MaxSteps = 10 },
		},
		{
			name:   "recursion",
			src:    "def f(n):\n    return f(n + 1)\nf(0)\n",
			adjust: func(s *Settings) { s.Limits.MaxCallDepth = 20 },
		},
		{
			name:   "allocation",
			src:    "x = [0] * 5000\n",
			adjust: func(s *Settings) { s.Limits.MaxAllocElements = 1000 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.adjust(&s)
			res := New(s, nil).Trace(context.Background(), []byte(tt.src))
			assert.False(t, res.Success)
			assert.Equal(t, ErrorKindLimit, res.ErrorKind, res.Error)
			assert.Empty(t, res.Steps)
		})
	}
}

func TestTrace_Stdout(t *testing.T) {
	res := traceSource(t, "print('hi')\nraise ValueError('bad')\n")
	assert.False(t, res.Success)
	assert.Equal(t, "hi\n", res.Stdout, "output survives a failure")
	assert.Equal(t, "ValueError: bad", res.Error)
}

func TestTrace_StepsBalanced(t *testing.T) {
	src := `def g(n):
    if n < 2:
        return n
    return g(n - 1) + g(n - 2)

total = 0
for i in range(4):
    total = total + g(i)
`
	res := traceSource(t, src)
	require.True(t, res.Success, res.Error)

	depth := 0
	for _, st := range res.Steps {
		switch st.Event {
		case "enter":
			depth++
		case "exit":
			depth--
		case "line":
			assert.NotNil(t, st.After, "line %d has no after", st.Line)
			assert.NotNil(t, st.Code)
		}
		assert.GreaterOrEqual(t, depth, 0)
	}
	assert.Zero(t, depth)

	last := res.Steps[len(res.Steps)-2]
	assert.Equal(t, int64(4), last.After["total"])
}

func TestTrace_JSONShape(t *testing.T) {
	res := traceSource(t, "def f():\n    pass\nf()\n")
	require.True(t, res.Success, res.Error)

	b, err := json.Marshal(res.Steps)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, st := range raw {
		_, has := st["return_value"]
		assert.Equal(t, st["event"] == "exit", has, "%v", st)
		assert.Contains(t, st, "lineno")
		assert.Contains(t, st, "formula")
	}
}

func TestAssembler_UpdateSettings(t *testing.T) {
	a := New(DefaultSettings(), nil)
	s := a.Settings()
	s.MaxSteps = 3
	a.UpdateSettings(s)

	res := a.Trace(context.Background(), []byte("a = 1\nb = 2\nc = 3\n"))
	assert.False(t, res.Success)
	assert.Equal(t, ErrorKindLimit, res.ErrorKind)
	assert.Equal(t, 3, a.Settings().MaxSteps)
}

func TestTrace_Concurrent(t *testing.T) {
	a := New(DefaultSettings(), nil)
	done := make(chan *Result)
	for i := 0; i < 8; i++ {
		go func(i int) {
			done <- a.Trace(context.Background(), []byte(fmt.Sprintf("x = %d\ny = x * 2\n", i)))
		}(i)
	}
	seen := map[int64]bool{}
	for i := 0; i < 8; i++ {
		res := <-done
		require.True(t, res.Success, res.Error)
		y := res.Steps[2].After["y"].(int64)
		assert.Equal(t, y, res.Steps[2].After["x"].(int64)*2)
		seen[y] = true
	}
	assert.Len(t, seen, 8)
}

func TestStep_ChangedNames(t *testing.T) {
	step := Step{
		Before: map[string]any{"a": int64(1), "b": []any{int64(1)}, "gone": true},
		After:  map[string]any{"a": int64(1), "b": []any{int64(1), int64(2)}, "c": "new"},
	}
	assert.Equal(t, []string{"b", "c"}, step.ChangedNames())
	assert.Empty(t, Step{After: map[string]any{"a": 1.5}, Before: map[string]any{"a": 1.5}}.ChangedNames())
}
