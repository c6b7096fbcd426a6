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
	"log/slog"
	"math/rand"
	"strings"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// =============================================================================
// Limits
// =============================================================================

// Limits bounds the resources a single Run may consume. Zero disables a
// limit.
type Limits struct {
	// MaxInstructions caps statement and expression evaluations.
	MaxInstructions int64

	// MaxCallDepth caps nested activations; exceeding it raises
	// RecursionError.
	MaxCallDepth int

	// MaxAllocElements caps elements created by one repetition or array
	// constructor; exceeding it raises MemoryError.
	MaxAllocElements int

	// MaxOutputBytes caps captured print output. Excess output is dropped.
	MaxOutputBytes int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxInstructions:  10_000_000,
		MaxCallDepth:     200,
		MaxAllocElements: 10_000_000,
		MaxOutputBytes:   1 << 20,
	}
}

// =============================================================================
// Interpreter
// =============================================================================

// Interpreter evaluates compiled units.
//
// Thread Safety: An Interpreter is not safe for concurrent use. Create one
// per execution; separate interpreters share no state.
type Interpreter struct {
	limits   Limits
	observer StepObserver
	logger   *slog.Logger
	seed     int64

	ctx      context.Context
	frame    *Frame
	depth    int
	ticks    int64
	stdout   outputBuffer
	builtins map[string]Value
	modules  map[string]*Module
	rng      *rand.Rand
	handling *Exception
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithObserver installs a step observer at construction.
func WithObserver(o StepObserver) Option {
	return func(in *Interpreter) { in.observer = o }
}

// WithLimits sets resource limits.
func WithLimits(l Limits) Option {
	return func(in *Interpreter) { in.limits = l }
}

// WithLogger sets the logger for evaluator diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithSeed seeds np.random and torch random constructors.
func WithSeed(seed int64) Option {
	return func(in *Interpreter) { in.seed = seed }
}

// New creates an Interpreter.
//
// Example:
//
//	in := interp.New(interp.WithLimits(interp.DefaultLimits()))
//	in.SetObserver(rec)
//	defer in.SetObserver(nil)
//	err := in.Run(ctx, unit)
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		limits: DefaultLimits(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.stdout.limit = in.limits.MaxOutputBytes
	in.rng = rand.New(rand.NewSource(in.seed))
	in.modules = newModules()
	in.builtins = newBuiltins()
	return in
}

// SetObserver installs o as the step observer. Passing nil uninstalls it.
func (in *Interpreter) SetObserver(o StepObserver) {
	in.observer = o
}

// Stdout returns the output captured from print so far.
func (in *Interpreter) Stdout() string {
	return in.stdout.String()
}

// Run executes unit as the top-level module.
//
// Description:
//
//	Binds the pre-bound environment (np, torch, sp and math), registers the
//	prelude's statistics module for import, then runs the unit body. Events
//	for the <module> activation and every function activation go to the
//	installed observer.
//
// Outputs:
//
//	error - nil on success; *Exception for an uncaught script error;
//	        *LimitError when a budget stopped execution.
func (in *Interpreter) Run(ctx context.Context, unit *Unit) error {
	if unit == nil {
		return ErrNilUnit
	}
	in.ctx = ctx
	defer func() { in.ctx = nil }()

	release, err := in.loadPrelude(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, err = in.runModule(unit, in.newGlobals())
	return err
}

// newGlobals returns the module namespace with pre-bound modules.
func (in *Interpreter) newGlobals() map[string]Value {
	return map[string]Value{
		"__name__": Str(MainUnit),
		"np":       in.modules["numpy"],
		"torch":    in.modules["torch"],
		"sp":       in.modules["sympy"],
		"math":     in.modules["math"],
	}
}

// runModule executes the body of unit as a <module> activation.
func (in *Interpreter) runModule(unit *Unit, globals map[string]Value) (Value, error) {
	fr := &Frame{Func: "<module>", Unit: unit, locals: globals, globals: globals}
	stmts := ast.NamedChildren(unit.tree.Root())
	enterLine := 1
	if len(stmts) > 0 {
		enterLine = ast.Line(stmts[0])
	}
	return in.activate(fr, enterLine, func() (Value, error) {
		_, err := in.execBlock(fr, stmts)
		return None, err
	})
}

// activate runs body as a new activation with enter and exit events.
func (in *Interpreter) activate(fr *Frame, enterLine int, body func() (Value, error)) (Value, error) {
	if in.limits.MaxCallDepth > 0 && in.depth >= in.limits.MaxCallDepth {
		return nil, newError(excRecursionError, "maximum recursion depth exceeded")
	}
	in.depth++
	fr.parent = in.frame
	in.frame = fr
	defer func() {
		in.frame = fr.parent
		in.depth--
	}()

	fr.line = enterLine
	if err := in.emit(eventEnter, fr, nil); err != nil {
		return nil, err
	}
	ret, err := body()
	if err != nil {
		var exc *Exception
		if errors.As(err, &exc) {
			in.attachTraceback(exc)
			if eerr := in.emit(eventExit, fr, None); eerr != nil {
				return nil, eerr
			}
		}
		return nil, err
	}
	if err := in.emit(eventExit, fr, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

type eventKind int

const (
	eventEnter eventKind = iota
	eventLine
	eventSubStep
	eventExit
)

// emit delivers one event to the observer and polls the observer's limit.
func (in *Interpreter) emit(kind eventKind, fr *Frame, ret Value) error {
	obs := in.observer
	if obs == nil {
		return nil
	}
	ev := Event{Func: fr.Func, Line: fr.line, Unit: fr.Unit.Name, frame: fr}
	switch kind {
	case eventEnter:
		obs.OnEnter(ev)
	case eventLine:
		obs.OnLine(ev)
	case eventSubStep:
		obs.OnSubStep(ev)
	case eventExit:
		obs.OnExit(ev, ret)
	}
	if lr, ok := obs.(LimitReporter); ok {
		if err := lr.LimitErr(); err != nil {
			return &LimitError{Reason: err.Error(), Cause: err}
		}
	}
	return nil
}

// lineEvent marks the start of a statement at line. Repeated statements on
// one physical line only fire once unless force is set (loop headers).
func (in *Interpreter) lineEvent(fr *Frame, line int, force bool) error {
	fr.line = line
	if !force && fr.lastEvent == line {
		return nil
	}
	fr.lastEvent = line
	if err := in.checkContext(); err != nil {
		return err
	}
	return in.emit(eventLine, fr, nil)
}

// subStep reports that a simple statement completed.
func (in *Interpreter) subStep(fr *Frame) error {
	return in.emit(eventSubStep, fr, nil)
}

// =============================================================================
// Budgets
// =============================================================================

// tick counts one evaluation against the instruction budget.
func (in *Interpreter) tick() error {
	in.ticks++
	if max := in.limits.MaxInstructions; max > 0 && in.ticks > max {
		return &LimitError{Reason: fmt.Sprintf("instruction budget of %d exceeded", max)}
	}
	if in.ticks&1023 == 0 {
		return in.checkContext()
	}
	return nil
}

// checkContext converts context cancellation into a LimitError.
func (in *Interpreter) checkContext() error {
	if in.ctx == nil {
		return nil
	}
	if err := in.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &LimitError{Reason: "execution timed out", Cause: err}
		}
		return &LimitError{Reason: "execution canceled", Cause: err}
	}
	return nil
}

// checkAlloc raises MemoryError when n elements exceed the allocation cap.
func (in *Interpreter) checkAlloc(n int) error {
	if n < 0 {
		return newError(excValueError, "negative dimensions are not allowed")
	}
	if max := in.limits.MaxAllocElements; max > 0 && n > max {
		return newError(excMemoryError, "cannot allocate %d elements (limit %d)", n, max)
	}
	return nil
}

// attachTraceback records the current stack on exc once, at the innermost
// frame that sees it.
func (in *Interpreter) attachTraceback(exc *Exception) {
	if exc.traced {
		return
	}
	exc.traced = true
	var frames []TraceFrame
	for f := in.frame; f != nil; f = f.parent {
		frames = append(frames, TraceFrame{
			File: f.Unit.File,
			Func: f.Func,
			Line: f.line,
			Text: f.Unit.LineText(f.line),
		})
	}
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	exc.Frames = frames
}

// =============================================================================
// Output capture
// =============================================================================

const truncationNotice = "\n... output truncated\n"

// outputBuffer accumulates print output up to a byte limit.
type outputBuffer struct {
	b         strings.Builder
	limit     int
	truncated bool
}

func (o *outputBuffer) WriteString(s string) {
	if o.truncated {
		return
	}
	if o.limit > 0 && o.b.Len()+len(s) > o.limit {
		room := o.limit - o.b.Len()
		if room > 0 {
			o.b.WriteString(s[:room])
		}
		o.b.WriteString(truncationNotice)
		o.truncated = true
		return
	}
	o.b.WriteString(s)
}

func (o *outputBuffer) String() string { return o.b.String() }
