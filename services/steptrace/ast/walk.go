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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// NamedChildren returns the named children of n, skipping comments.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Children returns every child of n, named or not, skipping comments.
func Children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		c := n.Child(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ChildrenOfType returns the direct children of n with the given type.
func ChildrenOfType(n *sitter.Node, typ string) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range Children(n) {
		if c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the children of the visited node.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		Walk(n.Child(i), fn)
	}
}

// Unparen strips any number of enclosing parenthesized_expression nodes.
func Unparen(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		inner := NamedChildren(n)
		if len(inner) != 1 {
			return n
		}
		n = inner[0]
	}
	return n
}

// Comparison splits a comparison_operator node into its operands and the
// operator tokens between them. Multi-word operators such as "not in" and
// "is not" are returned as one space-separated token. ok is false when the
// node is malformed.
func Comparison(src []byte, n *sitter.Node) (operands []*sitter.Node, ops []string, ok bool) {
	pending := ""
	for _, c := range Children(n) {
		if c.IsNamed() {
			if pending != "" {
				ops = append(ops, pending)
				pending = ""
			}
			operands = append(operands, c)
			continue
		}
		tok := strings.Join(strings.Fields(Text(src, c)), " ")
		if pending != "" {
			pending += " " + tok
		} else {
			pending = tok
		}
	}
	return operands, ops, len(operands) == len(ops)+1 && len(ops) > 0
}
