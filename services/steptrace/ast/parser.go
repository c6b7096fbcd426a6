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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

const (
	// MaxSourceSize is the largest source accepted by Parse (1 MiB).
	MaxSourceSize = 1 << 20

	// WarnSourceSize triggers a warning log when exceeded.
	WarnSourceSize = 256 << 10
)

// Tree is a parsed Python source.
//
// Thread Safety: A Tree is read-only after Parse returns and may be shared
// between goroutines until Close is called.
type Tree struct {
	tree *sitter.Tree
	root *sitter.Node
	src  []byte
}

// Parse parses Python source text.
//
// Description:
//
//	Validates size and encoding, then runs tree-sitter. A tree with syntax
//	errors is still returned; use SyntaxError to inspect it.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	src - Source bytes. Must be valid UTF-8.
//
// Outputs:
//
//	*Tree - The parsed tree. Caller must call Close.
//	error - ErrSourceTooLarge, ErrInvalidContent, ErrContextCanceled or
//	        ErrParseFailed.
//
// Thread Safety: Safe for concurrent use. A new parser is created per call.
func Parse(ctx context.Context, src []byte) (*Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextCanceled, err)
	}
	if len(src) > MaxSourceSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrSourceTooLarge, len(src), MaxSourceSize)
	}
	if len(src) > WarnSourceSize {
		slog.Warn("parsing large source", slog.Int("size_bytes", len(src)))
	}
	if !utf8.Valid(src) {
		return nil, fmt.Errorf("%w: source is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCanceled, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, fmt.Errorf("%w: nil root node", ErrParseFailed)
	}
	return &Tree{tree: tree, root: root, src: src}, nil
}

// ParseExpression parses text that must consist of exactly one expression.
//
// Outputs:
//
//	*Tree - The parsed tree. Caller must call Close.
//	*sitter.Node - The expression node.
//	error - ErrNotExpression when the text is not a lone expression.
func ParseExpression(ctx context.Context, text string) (*Tree, *sitter.Node, error) {
	t, err := Parse(ctx, []byte(text))
	if err != nil {
		return nil, nil, err
	}
	if t.root.HasError() {
		t.Close()
		return nil, nil, fmt.Errorf("%w: syntax error", ErrNotExpression)
	}
	stmts := NamedChildren(t.root)
	if len(stmts) != 1 || stmts[0].Type() != "expression_statement" {
		t.Close()
		return nil, nil, ErrNotExpression
	}
	exprs := NamedChildren(stmts[0])
	if len(exprs) != 1 {
		t.Close()
		return nil, nil, ErrNotExpression
	}
	switch exprs[0].Type() {
	case "assignment", "augmented_assignment":
		t.Close()
		return nil, nil, ErrNotExpression
	}
	return t, exprs[0], nil
}

// Root returns the module node.
func (t *Tree) Root() *sitter.Node { return t.root }

// Source returns the parsed bytes.
func (t *Tree) Source() []byte { return t.src }

// Close releases the tree-sitter tree. Safe to call more than once.
func (t *Tree) Close() {
	if t == nil || t.tree == nil {
		return
	}
	t.tree.Close()
	t.tree = nil
}

// Text returns the source text covered by n.
func (t *Tree) Text(n *sitter.Node) string {
	return Text(t.src, n)
}

// SyntaxError returns the first syntax problem in the tree, or nil.
func (t *Tree) SyntaxError() *ParseError {
	if !t.root.HasError() {
		return nil
	}
	if pe := firstError(t.root); pe != nil {
		return pe
	}
	return &ParseError{Line: 1, Column: 1, Message: "invalid syntax"}
}

// firstError finds the earliest ERROR or MISSING node in document order.
func firstError(n *sitter.Node) *ParseError {
	if n.IsMissing() {
		return &ParseError{
			Line:    Line(n),
			Column:  Column(n),
			Message: fmt.Sprintf("expected '%s'", strings.TrimSpace(n.Type())),
		}
	}
	if n.Type() == "ERROR" {
		return &ParseError{Line: Line(n), Column: Column(n), Message: "invalid syntax"}
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if pe := firstError(n.Child(i)); pe != nil {
			return pe
		}
	}
	return nil
}

// Text returns src[n.StartByte():n.EndByte()], or "" for a nil node.
func Text(src []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

// Line returns the 1-indexed start line of n.
func Line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// EndLine returns the 1-indexed end line of n.
func EndLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

// Column returns the 1-indexed start column of n.
func Column(n *sitter.Node) int {
	return int(n.StartPoint().Column) + 1
}

// LineText returns the 1-indexed line of src without its newline, or "" when
// the line does not exist.
func LineText(src []byte, line int) string {
	if line < 1 {
		return ""
	}
	cur := 1
	start := 0
	for i, b := range src {
		if b != '\n' {
			continue
		}
		if cur == line {
			return strings.TrimRight(string(src[start:i]), "\r")
		}
		cur++
		start = i + 1
	}
	if cur == line {
		return strings.TrimRight(string(src[start:]), "\r")
	}
	return ""
}
