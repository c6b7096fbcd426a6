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

// =============================================================================
// Step observation
// =============================================================================

// Event describes one instrumentation point.
type Event struct {
	// Func is the activation's function name, "<module>" at top level.
	Func string

	// Line is the 1-indexed source line.
	Line int

	// Unit is the name of the compiled unit the activation belongs to
	// (MainUnit for the submitted script).
	Unit string

	frame *Frame
}

// Bindings returns the activation's local variable bindings.
//
// The map is live; observers must copy what they keep and must not modify
// it.
func (e Event) Bindings() map[string]Value {
	if e.frame == nil {
		return nil
	}
	return e.frame.locals
}

// StepObserver receives execution events synchronously on the evaluator's
// goroutine.
//
// Event order for one activation is OnEnter, then any number of OnLine and
// OnSubStep events (interleaved with nested activations), then OnExit.
// OnExit also fires when the activation is unwound by an exception; ret is
// None in that case.
type StepObserver interface {
	OnEnter(ev Event)
	OnLine(ev Event)
	OnSubStep(ev Event)
	OnExit(ev Event, ret Value)
}

// LimitReporter is implemented by observers that can stop execution. After
// every event the evaluator calls LimitErr; a non-nil result aborts the run
// with a LimitError wrapping it.
type LimitReporter interface {
	LimitErr() error
}
