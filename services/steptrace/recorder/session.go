// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recorder turns evaluator step events into an ordered list of
// before/after steps.
package recorder

import (
	"errors"

	"github.com/AleutianAI/steptrace/services/steptrace/formula"
	"github.com/AleutianAI/steptrace/services/steptrace/interp"
	"github.com/AleutianAI/steptrace/services/steptrace/snapshot"
)

// ErrStepLimit indicates the trace reached its step budget.
var ErrStepLimit = errors.New("step limit reached")

// EventKind classifies a Step.
type EventKind string

const (
	EventEnter EventKind = "enter"
	EventLine  EventKind = "line"
	EventExit  EventKind = "exit"
)

// Step is one recorded instrumentation point.
type Step struct {
	Event EventKind
	Func  string
	Line  int

	// Code is the literal source line, filled by the assembler.
	Code string

	// Before is set on enter and line steps.
	Before *snapshot.Snapshot

	// After is set on line steps once the line has run.
	After *snapshot.Snapshot

	// ReturnValue is set on exit steps.
	ReturnValue interp.Value

	// Formula is the detected formula of a line step, filled by the
	// assembler.
	Formula *formula.Formula
}

// activation is one open enter step and its pending line.
type activation struct {
	fn      string
	pending *Step
}

// Session is the state of one trace. It is created per invocation and
// discarded after conversion; nothing is shared between sessions.
//
// Thread Safety: Not safe for concurrent use. A session is filled by one
// synchronous execution.
type Session struct {
	steps []*Step
	stack []*activation
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Steps returns the recorded steps in emission order.
func (s *Session) Steps() []*Step {
	return s.steps
}

// Len returns the number of recorded steps.
func (s *Session) Len() int {
	return len(s.steps)
}

// Finalize backfills every line step lacking an after-snapshot with the
// nearest preceding filled after-snapshot, or its own before-snapshot when
// none precedes it. Open activations are dropped.
func (s *Session) Finalize() {
	var last *snapshot.Snapshot
	for _, st := range s.steps {
		if st.Event != EventLine {
			continue
		}
		if st.After == nil {
			st.After = last
			if st.After == nil {
				st.After = st.Before
			}
			continue
		}
		last = st.After
	}
	s.stack = nil
}

func (s *Session) top() *activation {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}
