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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrBudgetExceeded is matched by every LimitError.
	ErrBudgetExceeded = errors.New("execution budget exceeded")

	// ErrNilUnit indicates Run was called without a compiled unit.
	ErrNilUnit = errors.New("nil unit")
)

// =============================================================================
// Exception classes
// =============================================================================

// ExceptionClass is a script exception type. Classes form a single
// inheritance tree rooted at BaseException.
type ExceptionClass struct {
	Name string
	Base *ExceptionClass
}

func (*ExceptionClass) TypeName() string { return "type" }

// IsSubclass reports whether c is other or derives from it.
func (c *ExceptionClass) IsSubclass(other *ExceptionClass) bool {
	for k := c; k != nil; k = k.Base {
		if k == other {
			return true
		}
	}
	return false
}

var (
	excBaseException       = &ExceptionClass{Name: "BaseException"}
	excException           = &ExceptionClass{Name: "Exception", Base: excBaseException}
	excArithmeticError     = &ExceptionClass{Name: "ArithmeticError", Base: excException}
	excZeroDivisionError   = &ExceptionClass{Name: "ZeroDivisionError", Base: excArithmeticError}
	excOverflowError       = &ExceptionClass{Name: "OverflowError", Base: excArithmeticError}
	excLookupError         = &ExceptionClass{Name: "LookupError", Base: excException}
	excIndexError          = &ExceptionClass{Name: "IndexError", Base: excLookupError}
	excKeyError            = &ExceptionClass{Name: "KeyError", Base: excLookupError}
	excValueError          = &ExceptionClass{Name: "ValueError", Base: excException}
	excTypeError           = &ExceptionClass{Name: "TypeError", Base: excException}
	excNameError           = &ExceptionClass{Name: "NameError", Base: excException}
	excUnboundLocalError   = &ExceptionClass{Name: "UnboundLocalError", Base: excNameError}
	excAttributeError      = &ExceptionClass{Name: "AttributeError", Base: excException}
	excRuntimeError        = &ExceptionClass{Name: "RuntimeError", Base: excException}
	excRecursionError      = &ExceptionClass{Name: "RecursionError", Base: excRuntimeError}
	excNotImplementedError = &ExceptionClass{Name: "NotImplementedError", Base: excRuntimeError}
	excAssertionError      = &ExceptionClass{Name: "AssertionError", Base: excException}
	excMemoryError         = &ExceptionClass{Name: "MemoryError", Base: excException}
	excImportError         = &ExceptionClass{Name: "ImportError", Base: excException}
	excModuleNotFoundError = &ExceptionClass{Name: "ModuleNotFoundError", Base: excImportError}
	excStopIteration       = &ExceptionClass{Name: "StopIteration", Base: excException}
	excInternalError       = &ExceptionClass{Name: "InternalError", Base: excException}
)

// exceptionClasses lists the classes bound as builtins.
var exceptionClasses = []*ExceptionClass{
	excBaseException, excException, excArithmeticError, excZeroDivisionError,
	excOverflowError, excLookupError, excIndexError, excKeyError,
	excValueError, excTypeError, excNameError, excUnboundLocalError,
	excAttributeError, excRuntimeError, excRecursionError,
	excNotImplementedError, excAssertionError, excMemoryError,
	excImportError, excModuleNotFoundError, excStopIteration,
}

// =============================================================================
// Exception
// =============================================================================

// TraceFrame is one entry of a script traceback, outermost first.
type TraceFrame struct {
	File string
	Func string
	Line int
	Text string
}

// Exception is a raised script exception. It is both a Value (bound by
// "except E as e") and a Go error.
type Exception struct {
	Class  *ExceptionClass
	Msg    string
	Args   []Value
	Frames []TraceFrame

	traced bool
}

func (e *Exception) TypeName() string { return e.Class.Name }

// Error returns "Kind: message", or just "Kind" when there is no message.
func (e *Exception) Error() string {
	if e.Msg == "" {
		return e.Class.Name
	}
	return e.Class.Name + ": " + e.Msg
}

// Traceback renders the exception the way the reference interpreter
// prints an uncaught error.
func (e *Exception) Traceback() string {
	var b strings.Builder
	if len(e.Frames) > 0 {
		b.WriteString("Traceback (most recent call last):\n")
		for _, f := range e.Frames {
			fmt.Fprintf(&b, "  File \"%s\", line %d, in %s\n", f.File, f.Line, f.Func)
			if t := strings.TrimSpace(f.Text); t != "" {
				fmt.Fprintf(&b, "    %s\n", t)
			}
		}
	}
	b.WriteString(e.Error())
	b.WriteByte('\n')
	return b.String()
}

// newError builds an exception of class c with a formatted message.
func newError(c *ExceptionClass, format string, args ...any) *Exception {
	msg := fmt.Sprintf(format, args...)
	return &Exception{Class: c, Msg: msg, Args: []Value{Str(msg)}}
}

// NewInternalError wraps a Go failure (e.g. a recovered panic) as a script
// exception of kind InternalError.
func NewInternalError(format string, args ...any) *Exception {
	return newError(excInternalError, format, args...)
}

// instantiate builds an exception the way calling an exception class does.
func instantiate(c *ExceptionClass, args []Value) *Exception {
	e := &Exception{Class: c, Args: args}
	switch len(args) {
	case 0:
	case 1:
		e.Msg = StrOf(args[0])
	default:
		e.Msg = Repr(&Tuple{Elems: args})
	}
	return e
}

// =============================================================================
// SyntaxError
// =============================================================================

// SyntaxError is a compile failure. No code runs when Compile returns one.
type SyntaxError struct {
	File string
	Line int
	// Column is 1-indexed.
	Column int
	Msg    string
	Text   string
}

// Error returns "SyntaxError: invalid syntax (line 2)".
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: %s (line %d)", e.Msg, e.Line)
}

// Traceback renders the error with a caret under the failing column.
func (e *SyntaxError) Traceback() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  File \"%s\", line %d\n", e.File, e.Line)
	if e.Text != "" {
		trimmed := strings.TrimLeft(e.Text, " \t")
		indent := len(e.Text) - len(trimmed)
		fmt.Fprintf(&b, "    %s\n", trimmed)
		col := e.Column - 1 - indent
		if col < 0 {
			col = 0
		}
		fmt.Fprintf(&b, "    %s^\n", strings.Repeat(" ", col))
	}
	fmt.Fprintf(&b, "SyntaxError: %s\n", e.Msg)
	return b.String()
}

// =============================================================================
// LimitError
// =============================================================================

// LimitError reports that a resource budget stopped execution. It cannot be
// caught by script code. errors.Is(err, ErrBudgetExceeded) holds for every
// LimitError; Cause carries the specific reason where one exists.
type LimitError struct {
	Reason string
	Cause  error
}

func (e *LimitError) Error() string {
	return "LimitExceeded: " + e.Reason
}

func (e *LimitError) Unwrap() error { return e.Cause }

func (e *LimitError) Is(target error) bool { return target == ErrBudgetExceeded }
