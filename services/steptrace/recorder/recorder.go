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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/steptrace/services/steptrace/interp"
	"github.com/AleutianAI/steptrace/services/steptrace/snapshot"
)

// DefaultMaxSteps bounds a trace when no limit is configured.
const DefaultMaxSteps = 100_000

// Recorder is the interp.StepObserver that fills a Session.
//
// Description:
//
//	Only events of the main unit are recorded. Each activation keeps its
//	own pending line, so a callee's events never close a caller's line: the
//	caller's line is filled by its own sub-step once the call returns.
//
// Thread Safety: Not safe for concurrent use. Callbacks arrive on the
// evaluator's goroutine.
type Recorder struct {
	session   *Session
	sanitizer *snapshot.Sanitizer
	unit      string
	maxSteps  int
	logger    *slog.Logger
	limitErr  error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSanitizer sets the snapshot sanitizer.
func WithSanitizer(s *snapshot.Sanitizer) Option {
	return func(r *Recorder) {
		if s != nil {
			r.sanitizer = s
		}
	}
}

// WithMaxSteps caps the recorded steps. Zero or less disables the cap.
func WithMaxSteps(n int) Option {
	return func(r *Recorder) { r.maxSteps = n }
}

// WithUnit records the named unit instead of interp.MainUnit.
func WithUnit(name string) Option {
	return func(r *Recorder) { r.unit = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Recorder writing into session.
func New(session *Session, opts ...Option) *Recorder {
	r := &Recorder{
		session:   session,
		sanitizer: &snapshot.Sanitizer{},
		unit:      interp.MainUnit,
		maxSteps:  DefaultMaxSteps,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the session being filled.
func (r *Recorder) Session() *Session {
	return r.session
}

// LimitErr implements interp.LimitReporter. It wraps ErrStepLimit once the
// step budget is spent.
func (r *Recorder) LimitErr() error {
	return r.limitErr
}

// OnEnter records an enter step and opens an activation.
func (r *Recorder) OnEnter(ev interp.Event) {
	if !r.traced(ev) {
		return
	}
	r.append(&Step{
		Event:  EventEnter,
		Func:   ev.Func,
		Line:   ev.Line,
		Before: r.sanitizer.Take(ev.Bindings()),
	})
	r.session.stack = append(r.session.stack, &activation{fn: ev.Func})
}

// OnLine closes the activation's pending line and opens a new one.
func (r *Recorder) OnLine(ev interp.Event) {
	if !r.traced(ev) {
		return
	}
	act := r.activation(ev)
	r.fill(act, ev)
	st := &Step{
		Event:  EventLine,
		Func:   ev.Func,
		Line:   ev.Line,
		Before: r.sanitizer.Take(ev.Bindings()),
	}
	if r.append(st) {
		act.pending = st
	}
}

// OnSubStep fills the pending line if it is still open.
func (r *Recorder) OnSubStep(ev interp.Event) {
	if !r.traced(ev) {
		return
	}
	r.fill(r.activation(ev), ev)
}

// OnExit fills the pending line, records the exit step and closes the
// activation.
func (r *Recorder) OnExit(ev interp.Event, ret interp.Value) {
	if !r.traced(ev) {
		return
	}
	r.fill(r.activation(ev), ev)
	r.append(&Step{
		Event:       EventExit,
		Func:        ev.Func,
		Line:        ev.Line,
		ReturnValue: r.sanitizer.Clone(ret),
	})
	if n := len(r.session.stack); n > 0 {
		r.session.stack = r.session.stack[:n-1]
	}
}

func (r *Recorder) traced(ev interp.Event) bool {
	return ev.Unit == r.unit
}

// activation returns the innermost open activation, opening one when the
// event arrived without a matching enter.
func (r *Recorder) activation(ev interp.Event) *activation {
	if act := r.session.top(); act != nil {
		return act
	}
	r.logger.Debug("event without enter", slog.String("func", ev.Func), slog.Int("line", ev.Line))
	act := &activation{fn: ev.Func}
	r.session.stack = append(r.session.stack, act)
	return act
}

// fill writes the pending line's after-snapshot once.
func (r *Recorder) fill(act *activation, ev interp.Event) {
	if act.pending == nil {
		return
	}
	if act.pending.After == nil {
		act.pending.After = r.sanitizer.Take(ev.Bindings())
	}
	act.pending = nil
}

// append adds st unless the step budget is spent.
func (r *Recorder) append(st *Step) bool {
	if r.maxSteps > 0 && len(r.session.steps) >= r.maxSteps {
		if r.limitErr == nil {
			r.limitErr = fmt.Errorf("%w: trace exceeded %d steps", ErrStepLimit, r.maxSteps)
		}
		return false
	}
	r.session.steps = append(r.session.steps, st)
	return true
}
