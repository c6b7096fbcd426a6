// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package formula detects expression-bearing lines in a script and renders
// them as canonical text and LaTeX.
//
// A line qualifies when an assignment or return statement on it produces a
// compound value: an arithmetic, unary, boolean or comparison operation, or
// a call. Detection is static; the script is never executed.
package formula

import (
	"context"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// Formula is the detected expression on one line.
type Formula struct {
	// Expr is the canonical expression text, e.g. "x + 2".
	Expr string `json:"expr" msgpack:"expr"`

	// Latex is the typeset rendering, nil when the expression is not
	// algebraic.
	Latex *string `json:"latex" msgpack:"latex"`
}

// qualifying lists the value node types that make a statement a formula.
var qualifying = map[string]bool{
	nodeBinaryOperator:     true,
	nodeUnaryOperator:      true,
	nodeNotOperator:        true,
	nodeCall:               true,
	nodeBooleanOperator:    true,
	nodeComparisonOperator: true,
}

// Extractor finds formulas in source text.
//
// Thread Safety: Safe for concurrent use.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger uses slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract maps 1-indexed line numbers to the formula found on that line.
//
// Description:
//
//	Walks assignment (plain, chained, annotated) and return statements in
//	source order. When two qualifying statements share a line, the later one
//	wins.
//
// Inputs:
//
//	ctx - Context for parse cancellation.
//	source - Script source.
//
// Outputs:
//
//	map[int]Formula - Never nil. Empty when the source does not parse.
func (e *Extractor) Extract(ctx context.Context, source []byte) map[int]Formula {
	out := make(map[int]Formula)

	tree, err := ast.Parse(ctx, source)
	if err != nil {
		e.logger.Debug("formula extraction skipped", slog.String("error", err.Error()))
		return out
	}
	defer tree.Close()
	if pe := tree.SyntaxError(); pe != nil {
		e.logger.Debug("formula extraction skipped", slog.String("error", pe.Error()))
		return out
	}

	u := unparser{src: tree.Source()}
	ast.Walk(tree.Root(), func(n *sitter.Node) bool {
		value := statementValue(n)
		if value == nil || !qualifying[value.Type()] {
			return true
		}
		expr := u.unparse(value)
		f := Formula{Expr: expr}
		if tex, ok := LaTeX(ctx, expr); ok {
			f.Latex = &tex
		}
		out[ast.Line(n)] = f
		return true
	})
	return out
}

// statementValue returns the unparenthesized value of an assignment or
// return statement, or nil for any other node.
func statementValue(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case nodeAssignment:
		right := n.ChildByFieldName("right")
		// a = b = expr nests the remaining targets on the right.
		for right != nil && right.Type() == nodeAssignment {
			right = right.ChildByFieldName("right")
		}
		return ast.Unparen(right)
	case nodeReturnStatement:
		values := ast.NamedChildren(n)
		if len(values) != 1 {
			return nil
		}
		return ast.Unparen(values[0])
	}
	return nil
}
