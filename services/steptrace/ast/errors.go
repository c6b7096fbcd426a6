// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors for parse failures.
var (
	// ErrInvalidContent indicates the source is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrSourceTooLarge indicates the source exceeds MaxSourceSize.
	ErrSourceTooLarge = errors.New("source too large")

	// ErrParseFailed indicates tree-sitter produced no tree.
	ErrParseFailed = errors.New("parse failed")

	// ErrContextCanceled indicates parsing was canceled via context.
	ErrContextCanceled = errors.New("parse canceled")

	// ErrNotExpression indicates ParseExpression was given something other
	// than a single expression.
	ErrNotExpression = errors.New("not a single expression")
)

// ParseError locates the first syntax problem in a source text.
type ParseError struct {
	// Line is 1-indexed.
	Line int

	// Column is 1-indexed.
	Column int

	// Message describes the problem, e.g. "invalid syntax".
	Message string
}

// Error returns "line 3, column 5: invalid syntax".
func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}
