// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steptrace/services/steptrace/interp"
	"github.com/AleutianAI/steptrace/services/steptrace/snapshot"
)

func trace(t *testing.T, src string, opts ...Option) (*Session, error) {
	t.Helper()
	unit, err := interp.Compile(context.Background(), []byte(src))
	require.NoError(t, err)
	defer unit.Close()

	session := NewSession()
	rec := New(session, opts...)
	err = interp.New(interp.WithObserver(rec)).Run(context.Background(), unit)
	session.Finalize()
	return session, err
}

// outline renders steps as "event func line" for structural comparison.
func outline(steps []*Step) []string {
	out := make([]string, len(steps))
	for i, st := range steps {
		out[i] = fmt.Sprintf("%s %s %d", st.Event, st.Func, st.Line)
	}
	return out
}

func vars(s *snapshot.Snapshot) map[string]string {
	if s == nil {
		return nil
	}
	out := make(map[string]string, len(s.Vars))
	for k, v := range s.Vars {
		out[k] = interp.Repr(v)
	}
	return out
}

func TestRecorder_TwoLines(t *testing.T) {
	session, err := trace(t, "x = 1\ny = x + 2\n")
	require.NoError(t, err)

	steps := session.Steps()
	want := []string{"enter <module> 1", "line <module> 1", "line <module> 2", "exit <module> 2"}
	if diff := cmp.Diff(want, outline(steps)); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}

	line2 := steps[2]
	assert.Equal(t, map[string]string{"x": "1"}, vars(line2.Before))
	assert.Equal(t, map[string]string{"x": "1", "y": "3"}, vars(line2.After))
	assert.Equal(t, map[string]string{}, vars(steps[1].Before))
	assert.Equal(t, map[string]string{"x": "1"}, vars(steps[1].After))
}

func TestRecorder_SemicolonStatementsShareOneStep(t *testing.T) {
	session, err := trace(t, "x = 1; y = x + 2\nz = y\n")
	require.NoError(t, err)

	steps := session.Steps()
	want := []string{"enter <module> 1", "line <module> 1", "line <module> 2", "exit <module> 2"}
	if diff := cmp.Diff(want, outline(steps)); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]string{"x": "1", "y": "3"}, vars(steps[1].After))
	assert.Equal(t, map[string]string{"x": "1", "y": "3"}, vars(steps[2].Before))
}

func TestRecorder_InlineBodies(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		want map[string]string
	}{
		{"for", "x = 0\nfor i in range(3): x = x + i\n", 2, map[string]string{"i": "0", "x": "0"}},
		{"if", "c = 1\nif c: y = 5\n", 2, map[string]string{"c": "1", "y": "5"}},
		{"while", "n = 0\nwhile n < 1: n += 1\n", 2, map[string]string{"n": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := trace(t, tt.src)
			require.NoError(t, err)
			var first *Step
			for _, st := range session.Steps() {
				if st.Event == EventLine && st.Line == tt.line {
					first = st
					break
				}
			}
			require.NotNil(t, first)
			assert.Equal(t, tt.want, vars(first.After), "header step includes its inline body")
		})
	}
}

func TestRecorder_FunctionCall(t *testing.T) {
	src := `def f(a): return a*2
y = f(3)
`
	session, err := trace(t, src)
	require.NoError(t, err)

	steps := session.Steps()
	want := []string{
		"enter <module> 1",
		"line <module> 1",
		"line <module> 2",
		"enter f 1",
		"line f 1",
		"exit f 1",
		"exit <module> 2",
	}
	if diff := cmp.Diff(want, outline(steps)); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, interp.Int(6), steps[5].ReturnValue)
	assert.Equal(t, map[string]string{"a": "3"}, vars(steps[3].Before))
	assert.Equal(t, map[string]string{"a": "3"}, vars(steps[4].After))

	caller := steps[2]
	assert.Equal(t, map[string]string{}, vars(caller.Before))
	assert.Equal(t, map[string]string{"y": "6"}, vars(caller.After), "caller line reflects the call's result")
}

func TestRecorder_EnterExitBalanced(t *testing.T) {
	src := `def fact(n):
    if n <= 1:
        return 1
    return n * fact(n - 1)

def safe():
    try:
        raise ValueError("x")
    except ValueError:
        return -1

total = fact(4) + safe()
`
	session, err := trace(t, src)
	require.NoError(t, err)

	enters := map[string]int{}
	exits := map[string]int{}
	for _, st := range session.Steps() {
		switch st.Event {
		case EventEnter:
			enters[st.Func]++
		case EventExit:
			exits[st.Func]++
		}
	}
	assert.Equal(t, enters, exits)
	assert.Equal(t, 4, enters["fact"])
}

func TestRecorder_UnwoundActivationExits(t *testing.T) {
	src := `def boom():
    raise ValueError("bad")

try:
    boom()
except ValueError:
    handled = True
`
	session, err := trace(t, src)
	require.NoError(t, err)

	var exit *Step
	for _, st := range session.Steps() {
		if st.Event == EventExit && st.Func == "boom" {
			exit = st
		}
	}
	require.NotNil(t, exit)
	assert.Equal(t, interp.None, exit.ReturnValue)
}

func TestRecorder_EveryLineHasAfter(t *testing.T) {
	src := `xs = []
for i in range(3):
    if i % 2 == 0:
        xs.append(i)
n = len(xs)
`
	session, err := trace(t, src)
	require.NoError(t, err)
	for i, st := range session.Steps() {
		if st.Event == EventLine {
			assert.NotNil(t, st.After, "step %d (line %d) has no after", i, st.Line)
		}
	}
}

func TestRecorder_InPlaceMutationIsDecoupled(t *testing.T) {
	session, err := trace(t, "xs = [1]\nxs.append(2)\n")
	require.NoError(t, err)

	steps := session.Steps()
	assert.Equal(t, "[1]", vars(steps[1].After)["xs"])
	assert.Equal(t, "[1]", vars(steps[2].Before)["xs"])
	assert.Equal(t, "[1, 2]", vars(steps[2].After)["xs"])
}

func TestRecorder_PreludeIsSilent(t *testing.T) {
	session, err := trace(t, "import statistics\ny = statistics.median([3, 1, 2])\nz = statistics.stdev([1, 3])\n")
	require.NoError(t, err)
	for _, st := range session.Steps() {
		assert.Equal(t, "<module>", st.Func)
	}
}

func TestRecorder_StepLimit(t *testing.T) {
	session, err := trace(t, "n = 0\nwhile True:\n    n += 1\n", WithMaxSteps(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepLimit))
	assert.True(t, errors.Is(err, interp.ErrBudgetExceeded))
	assert.Equal(t, 10, session.Len())
}

func TestRecorder_Deterministic(t *testing.T) {
	src := `def sq(v):
    return v * v

acc = 0
for k in range(4):
    acc += sq(k)
`
	first, err := trace(t, src)
	require.NoError(t, err)
	second, err := trace(t, src)
	require.NoError(t, err)
	if diff := cmp.Diff(outline(first.Steps()), outline(second.Steps())); diff != "" {
		t.Errorf("repeated traces differ (-first +second):\n%s", diff)
	}
}

func TestSession_Finalize(t *testing.T) {
	before := &snapshot.Snapshot{Vars: map[string]interp.Value{"a": interp.Int(0)}}
	filled := &snapshot.Snapshot{Vars: map[string]interp.Value{"a": interp.Int(1)}}
	s := NewSession()
	s.steps = []*Step{
		{Event: EventEnter, Func: "<module>", Line: 1, Before: before},
		{Event: EventLine, Func: "<module>", Line: 1, Before: before},
		{Event: EventLine, Func: "<module>", Line: 2, Before: before, After: filled},
		{Event: EventLine, Func: "<module>", Line: 3, Before: before},
	}
	s.Finalize()

	assert.Same(t, before, s.steps[1].After, "no earlier after: falls back to own before")
	assert.Same(t, filled, s.steps[3].After, "uses nearest preceding after")
	assert.Nil(t, s.steps[0].After)
}
