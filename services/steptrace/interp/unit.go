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

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

const (
	// MainUnit identifies the submitted script. Only its events are traced.
	MainUnit = "__main__"

	// PreludeUnit identifies the embedded helper library.
	PreludeUnit = "prelude"

	// UserFile is the file name shown in tracebacks of the submitted script.
	UserFile = "<user_code>"
)

// Unit is a compiled script.
type Unit struct {
	// Name is the unit identity carried on every Event.
	Name string

	// File is the name used in tracebacks.
	File string

	tree *ast.Tree
}

// Compile parses src as the main unit.
//
// Description:
//
//	Parses with tree-sitter and rejects syntax errors and constructs the
//	evaluator does not support, before any code runs.
//
// Outputs:
//
//	*Unit - The compiled unit. Caller must call Close.
//	error - *SyntaxError for invalid source, or a wrapped ast error when the
//	        source could not be parsed at all.
func Compile(ctx context.Context, src []byte) (*Unit, error) {
	return compileUnit(ctx, MainUnit, UserFile, src)
}

func compileUnit(ctx context.Context, name, file string, src []byte) (*Unit, error) {
	tree, err := ast.Parse(ctx, src)
	if err != nil {
		if errors.Is(err, ast.ErrInvalidContent) {
			return nil, &SyntaxError{File: file, Line: 1, Column: 1, Msg: "source is not valid UTF-8"}
		}
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if pe := tree.SyntaxError(); pe != nil {
		tree.Close()
		return nil, &SyntaxError{
			File:   file,
			Line:   pe.Line,
			Column: pe.Column,
			Msg:    pe.Message,
			Text:   ast.LineText(src, pe.Line),
		}
	}
	if se := checkSupported(tree, file); se != nil {
		tree.Close()
		return nil, se
	}
	return &Unit{Name: name, File: file, tree: tree}, nil
}

// Source returns the unit's source bytes.
func (u *Unit) Source() []byte { return u.tree.Source() }

// LineText returns the 1-indexed source line.
func (u *Unit) LineText(line int) string { return ast.LineText(u.tree.Source(), line) }

// Close releases the syntax tree.
func (u *Unit) Close() {
	if u != nil {
		u.tree.Close()
	}
}

func (u *Unit) text(n *sitter.Node) string { return u.tree.Text(n) }

// unsupported maps node types the evaluator rejects at compile time to the
// message reported.
var unsupported = map[string]string{
	"class_definition":     "class definitions are not supported",
	"decorated_definition": "decorators are not supported",
	"with_statement":       "with statements are not supported",
	"match_statement":      "match statements are not supported",
	"yield":                "generators are not supported",
	"await":                "async code is not supported",
	"print_statement":      "print statements are not supported; use print()",
	"exec_statement":       "exec statements are not supported",
}

// checkSupported rejects unsupported constructs and misplaced return,
// break and continue statements.
func checkSupported(tree *ast.Tree, file string) *SyntaxError {
	var found *SyntaxError
	report := func(n *sitter.Node, msg string) {
		if found == nil {
			found = &SyntaxError{
				File:   file,
				Line:   ast.Line(n),
				Column: ast.Column(n),
				Msg:    msg,
				Text:   ast.LineText(tree.Source(), ast.Line(n)),
			}
		}
	}

	var visit func(n *sitter.Node, inFunc, inLoop bool)
	visit = func(n *sitter.Node, inFunc, inLoop bool) {
		if found != nil {
			return
		}
		if msg, ok := unsupported[n.Type()]; ok {
			report(n, msg)
			return
		}
		switch n.Type() {
		case "function_definition":
			if ast.Text(tree.Source(), n.Child(0)) == "async" {
				report(n, unsupported["await"])
				return
			}
			inFunc, inLoop = true, false
		case "lambda":
			inFunc, inLoop = true, false
		case "return_statement":
			if !inFunc {
				report(n, "'return' outside function")
				return
			}
		case "break_statement":
			if !inLoop {
				report(n, "'break' outside loop")
				return
			}
		case "continue_statement":
			if !inLoop {
				report(n, "'continue' not properly in loop")
				return
			}
		case "for_statement", "while_statement":
			for _, c := range ast.Children(n) {
				body := sameNode(c, n.ChildByFieldName("body"))
				visit(c, inFunc, inLoop || body)
			}
			return
		}
		for _, c := range ast.Children(n) {
			visit(c, inFunc, inLoop)
		}
	}
	visit(tree.Root(), false, false)
	return found
}
