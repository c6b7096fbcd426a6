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
	"errors"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func TestParse_ValidSource(t *testing.T) {
	src := []byte("x = 1\ny = x + 2\n")
	tree, err := Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defer tree.Close()

	if pe := tree.SyntaxError(); pe != nil {
		t.Fatalf("SyntaxError() = %v, want nil", pe)
	}
	stmts := NamedChildren(tree.Root())
	if len(stmts) != 2 {
		t.Fatalf("statements = %d, want 2", len(stmts))
	}
	if got := Line(stmts[1]); got != 2 {
		t.Errorf("Line(stmt[1]) = %d, want 2", got)
	}
	if got := tree.Text(stmts[1]); got != "y = x + 2" {
		t.Errorf("Text(stmt[1]) = %q, want %q", got, "y = x + 2")
	}
}

func TestParse_SyntaxError(t *testing.T) {
	tree, err := Parse(context.Background(), []byte("x = 1\ny = (2 +\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defer tree.Close()

	pe := tree.SyntaxError()
	if pe == nil {
		t.Fatal("SyntaxError() = nil, want error")
	}
	if pe.Line < 2 {
		t.Errorf("Line = %d, want >= 2", pe.Line)
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := Parse(context.Background(), []byte{0xff, 0xfe, 'x'})
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("Parse() error = %v, want ErrInvalidContent", err)
	}
}

func TestParse_TooLarge(t *testing.T) {
	src := []byte(strings.Repeat("x", MaxSourceSize+1))
	_, err := Parse(context.Background(), src)
	if !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("Parse() error = %v, want ErrSourceTooLarge", err)
	}
}

func TestParse_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, []byte("x = 1"))
	if !errors.Is(err, ErrContextCanceled) {
		t.Errorf("Parse() error = %v, want ErrContextCanceled", err)
	}
}

func TestParseExpression(t *testing.T) {
	tests := []struct {
		text    string
		typ     string
		wantErr bool
	}{
		{text: "x + 2", typ: "binary_operator"},
		{text: "f(x)", typ: "call"},
		{text: "x = 1", wantErr: true},
		{text: "x + ", wantErr: true},
		{text: "a\nb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tree, node, err := ParseExpression(context.Background(), tt.text)
			if tt.wantErr {
				if err == nil {
					tree.Close()
					t.Fatalf("ParseExpression(%q) error = nil, want error", tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExpression(%q) error = %v", tt.text, err)
			}
			defer tree.Close()
			if node.Type() != tt.typ {
				t.Errorf("type = %q, want %q", node.Type(), tt.typ)
			}
		})
	}
}

func TestLineText(t *testing.T) {
	src := []byte("a = 1\r\nb = 2\nc = 3")
	tests := []struct {
		line int
		want string
	}{
		{0, ""},
		{1, "a = 1"},
		{2, "b = 2"},
		{3, "c = 3"},
		{4, ""},
	}
	for _, tt := range tests {
		if got := LineText(src, tt.line); got != tt.want {
			t.Errorf("LineText(%d) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestUnparen(t *testing.T) {
	tree, node, err := ParseExpression(context.Background(), "((x + 1))")
	if err != nil {
		t.Fatalf("ParseExpression() error = %v", err)
	}
	defer tree.Close()

	if got := Unparen(node).Type(); got != "binary_operator" {
		t.Errorf("Unparen().Type() = %q, want binary_operator", got)
	}
}

func TestWalk_SkipsChildren(t *testing.T) {
	tree, err := Parse(context.Background(), []byte("def f():\n    y = 2\nx = 1\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defer tree.Close()

	var assigns int
	Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() == "function_definition" {
			return false
		}
		if n.Type() == "assignment" {
			assigns++
		}
		return true
	})
	if assigns != 1 {
		t.Errorf("assignments outside functions = %d, want 1", assigns)
	}
}
