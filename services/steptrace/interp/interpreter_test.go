// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package interp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog records main-unit events as compact strings.
type eventLog struct {
	events []string
	limit  error
}

func (l *eventLog) OnEnter(ev Event) { l.add("enter", ev) }

func (l *eventLog) OnLine(ev Event) { l.add("line", ev) }

func (l *eventLog) OnSubStep(ev Event) { l.add("sub", ev) }

func (l *eventLog) OnExit(ev Event, ret Value) {
	if ev.Unit == MainUnit {
		l.events = append(l.events, fmt.Sprintf("exit %s %d %s", ev.Func, ev.Line, Repr(ret)))
	}
}

func (l *eventLog) add(kind string, ev Event) {
	if ev.Unit == MainUnit {
		l.events = append(l.events, fmt.Sprintf("%s %s %d", kind, ev.Func, ev.Line))
	}
}

func (l *eventLog) LimitErr() error { return l.limit }

func run(t *testing.T, src string, opts ...Option) (string, error) {
	t.Helper()
	unit, err := Compile(context.Background(), []byte(src))
	if err != nil {
		return "", err
	}
	defer unit.Close()
	in := New(opts...)
	err = in.Run(context.Background(), unit)
	return in.Stdout(), err
}

func TestRun_Events(t *testing.T) {
	src := `def add(a, b):
    c = a + b
    return c

x = add(1, 2)
`
	log := &eventLog{}
	_, err := run(t, src, WithObserver(log))
	require.NoError(t, err)

	want := []string{
		"enter <module> 1",
		"line <module> 1",
		"sub <module> 1",
		"line <module> 5",
		"enter add 1",
		"line add 2",
		"sub add 2",
		"line add 3",
		"exit add 3 3",
		"sub <module> 5",
		"exit <module> 5 None",
	}
	if diff := cmp.Diff(want, log.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_LoopHeadersFireEachIteration(t *testing.T) {
	src := `total = 0
for i in range(2):
    total += i
`
	log := &eventLog{}
	_, err := run(t, src, WithObserver(log))
	require.NoError(t, err)

	want := []string{
		"enter <module> 1",
		"line <module> 1", "sub <module> 1",
		"line <module> 2", "sub <module> 2",
		"line <module> 3", "sub <module> 3",
		"line <module> 2", "sub <module> 2",
		"line <module> 3", "sub <module> 3",
		"line <module> 2",
		"exit <module> 2 None",
	}
	if diff := cmp.Diff(want, log.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_WhileFinalTestFires(t *testing.T) {
	src := `n = 0
while n < 1:
    n += 1
`
	log := &eventLog{}
	_, err := run(t, src, WithObserver(log))
	require.NoError(t, err)

	var headers int
	for _, e := range log.events {
		if e == "line <module> 2" {
			headers++
		}
	}
	assert.Equal(t, 2, headers, "header should fire for the passing and the failing test")
}

func TestRun_ExitOnHandledException(t *testing.T) {
	src := `def boom():
    raise ValueError("bad")

try:
    boom()
except ValueError:
    pass
`
	log := &eventLog{}
	_, err := run(t, src, WithObserver(log))
	require.NoError(t, err)
	assert.Contains(t, log.events, "exit boom 2 None")
	assert.Equal(t, "exit <module> 7 None", log.events[len(log.events)-1])
}

func TestRun_PreludeEventsCarryPreludeUnit(t *testing.T) {
	var units []string
	obs := &unitObserver{seen: &units}
	_, err := run(t, "import statistics\ny = statistics.mean([1, 2])\n", WithObserver(obs))
	require.NoError(t, err)
	assert.Contains(t, units, PreludeUnit)
	assert.Contains(t, units, MainUnit)
}

type unitObserver struct {
	seen *[]string
}

func (o *unitObserver) OnEnter(ev Event)          { *o.seen = append(*o.seen, ev.Unit) }
func (o *unitObserver) OnLine(ev Event)           {}
func (o *unitObserver) OnSubStep(ev Event)        {}
func (o *unitObserver) OnExit(ev Event, _ Value) {}

func TestEvent_Bindings(t *testing.T) {
	var seen map[string]Value
	obs := &bindingsObserver{at: 3, out: &seen}
	_, err := run(t, "a = 1\nb = [a, 2]\nc = 3\n", WithObserver(obs))
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, Int(1), seen["a"])
	assert.Equal(t, "[1, 2]", Repr(seen["b"]))
	_, hasC := seen["c"]
	assert.False(t, hasC, "c is bound after line 3 begins")
}

type bindingsObserver struct {
	at  int
	out *map[string]Value
}

func (o *bindingsObserver) OnEnter(Event) {}
func (o *bindingsObserver) OnLine(ev Event) {
	if ev.Unit == MainUnit && ev.Line == o.at {
		b := map[string]Value{}
		for k, v := range ev.Bindings() {
			b[k] = v
		}
		*o.out = b
	}
}
func (o *bindingsObserver) OnSubStep(Event)     {}
func (o *bindingsObserver) OnExit(Event, Value) {}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile(context.Background(), []byte("x = 1\ny = (2 +\n"))
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.GreaterOrEqual(t, se.Line, 2)
	assert.True(t, strings.HasPrefix(se.Error(), "SyntaxError: "))
}

func TestCompile_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"class", "class A:\n    pass\n", "class definitions are not supported"},
		{"with", "with open('f') as f:\n    pass\n", "with statements are not supported"},
		{"return outside", "return 1\n", "'return' outside function"},
		{"break outside", "break\n", "'break' outside loop"},
		{"yield", "def g():\n    yield 1\n", "generators are not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(context.Background(), []byte(tt.src))
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.msg, se.Msg)
		})
	}
}

func TestRun_RuntimeError(t *testing.T) {
	src := `def f(a):
    return a / 0

f(3)
`
	_, err := run(t, src)
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "ZeroDivisionError: division by zero", exc.Error())

	tb := exc.Traceback()
	assert.True(t, strings.HasPrefix(tb, "Traceback (most recent call last):"))
	assert.Contains(t, tb, `File "<user_code>", line 4, in <module>`)
	assert.Contains(t, tb, `File "<user_code>", line 2, in f`)
	assert.Contains(t, tb, "    return a / 0")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(tb), "ZeroDivisionError: division by zero"))
}

func TestRun_NameError(t *testing.T) {
	_, err := run(t, "print(undefined_name)\n")
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "NameError: name 'undefined_name' is not defined", exc.Error())
}

func TestRun_UncaughtInsideHandler(t *testing.T) {
	src := `try:
    [][1]
except KeyError:
    pass
`
	_, err := run(t, src)
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "IndexError", exc.Class.Name)
}

func TestRun_InstructionBudget(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxInstructions = 1000
	_, err := run(t, "while True:\n    pass\n", WithLimits(limits))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Reason, "instruction budget")
}

func TestRun_LimitNotCatchable(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxInstructions = 500
	src := `try:
    while True:
        pass
except Exception:
    print("caught")
`
	out, err := run(t, src, WithLimits(limits))
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.Empty(t, out)
}

func TestRun_Timeout(t *testing.T) {
	unit, err := Compile(context.Background(), []byte("while True:\n    pass\n"))
	require.NoError(t, err)
	defer unit.Close()

	limits := DefaultLimits()
	limits.MaxInstructions = 0
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = New(WithLimits(limits)).Run(ctx, unit)
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "execution timed out", le.Reason)
}

func TestRun_RecursionLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxCallDepth = 50
	src := `def down(n):
    return down(n + 1)

down(0)
`
	_, err := run(t, src, WithLimits(limits))
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "RecursionError", exc.Class.Name)
}

func TestRun_AllocationLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxAllocElements = 1000
	_, err := run(t, "x = [0] * 5000\n", WithLimits(limits))
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "MemoryError", exc.Class.Name)

	_, err = run(t, "a = np.zeros((100, 100))\n", WithLimits(limits))
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "MemoryError", exc.Class.Name)
}

func TestRun_OutputTruncated(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOutputBytes = 16
	out, err := run(t, "for i in range(100):\n    print(i)\n", WithLimits(limits))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, truncationNotice))
	assert.LessOrEqual(t, len(out), 16+len(truncationNotice))
}

func TestRun_ObserverLimit(t *testing.T) {
	stop := errors.New("too many steps")
	log := &eventLog{limit: stop}
	_, err := run(t, "x = 1\n", WithObserver(log))
	require.ErrorIs(t, err, stop)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestRun_Deterministic(t *testing.T) {
	src := "xs = np.random.rand(3)\nprint(xs.tolist())\n"
	first, err := run(t, src)
	require.NoError(t, err)
	second, err := run(t, src)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	third, err := run(t, src, WithSeed(7))
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestRun_NilUnit(t *testing.T) {
	err := New().Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilUnit)
}
