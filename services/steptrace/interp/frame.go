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

// Frame is one activation: the module body or a function call.
type Frame struct {
	// Func is "<module>", "<lambda>" or the function name.
	Func string

	// Unit is the compiled unit the code belongs to.
	Unit *Unit

	locals    map[string]Value
	globals   map[string]Value
	declGlob  map[string]bool
	declNonlo map[string]bool
	closure   *Frame
	parent    *Frame

	// scopes holds comprehension variables, innermost last.
	scopes []map[string]Value

	// line is the line currently executing.
	line int

	// lastEvent is the line of the most recent line event, 0 before any.
	lastEvent int

	// holdSub is set while the statement about to run shares its line with
	// the statement after it; that statement's sub-step is skipped.
	holdSub bool
}

// lookup resolves name through comprehension scopes, locals, enclosing
// function frames and globals.
func (f *Frame) lookup(name string) (Value, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if v, ok := f.scopes[i][name]; ok {
			return v, true
		}
	}
	if !f.declGlob[name] {
		if v, ok := f.locals[name]; ok {
			return v, true
		}
	}
	for c := f.closure; c != nil; c = c.closure {
		if v, ok := c.locals[name]; ok {
			return v, true
		}
	}
	v, ok := f.globals[name]
	return v, ok
}

// assign binds name in the scope a plain assignment targets.
func (f *Frame) assign(name string, v Value) {
	if n := len(f.scopes); n > 0 {
		f.scopes[n-1][name] = v
		return
	}
	if f.declGlob[name] {
		f.globals[name] = v
		return
	}
	if f.declNonlo[name] {
		for c := f.closure; c != nil; c = c.closure {
			if _, ok := c.locals[name]; ok {
				c.locals[name] = v
				return
			}
		}
	}
	f.locals[name] = v
}

// unbind removes name and reports whether it was bound.
func (f *Frame) unbind(name string) bool {
	target := f.locals
	if f.declGlob[name] {
		target = f.globals
	}
	if _, ok := target[name]; !ok {
		return false
	}
	delete(target, name)
	return true
}

// pushScope opens a comprehension scope.
func (f *Frame) pushScope() {
	f.scopes = append(f.scopes, map[string]Value{})
}

// popScope closes the innermost comprehension scope.
func (f *Frame) popScope() {
	f.scopes = f.scopes[:len(f.scopes)-1]
}
