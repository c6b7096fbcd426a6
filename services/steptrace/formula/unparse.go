// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// placeholder is the text of a node that cannot be rendered.
const placeholder = "<expr>"

// Python operator precedence, loosest first.
const (
	precTuple = iota + 1
	precTest
	precOr
	precAnd
	precNot
	precCmp
	precBor
	precBxor
	precBand
	precShift
	precArith
	precTerm
	precFactor
	precPower
	precAtom
)

var binaryPrec = map[string]int{
	"|": precBor, "^": precBxor, "&": precBand,
	"<<": precShift, ">>": precShift,
	"+": precArith, "-": precArith,
	"*": precTerm, "/": precTerm, "//": precTerm, "%": precTerm, "@": precTerm,
	"**": precPower,
}

// unparser renders expression nodes as canonical text: single spaces around
// binary operators, no redundant parentheses, single-quoted plain strings.
type unparser struct {
	src []byte
}

func (u unparser) unparse(n *sitter.Node) string {
	s, _ := u.expr(n)
	if s == "" {
		return placeholder
	}
	return s
}

// expr returns the text of n and the precedence of its outermost operator.
func (u unparser) expr(n *sitter.Node) (string, int) {
	if n == nil {
		return placeholder, precAtom
	}
	switch n.Type() {
	case nodeParenthesizedExpression:
		inner := ast.Unparen(n)
		if inner == n {
			return u.fallback(n), precAtom
		}
		return u.expr(inner)

	case nodeBinaryOperator:
		op := u.operator(n)
		p, ok := binaryPrec[op]
		if !ok {
			return u.fallback(n), precAtom
		}
		// ** is right associative; everything else groups left.
		left := u.operand(n.ChildByFieldName("left"), p, op == "**")
		right := u.operand(n.ChildByFieldName("right"), p, op != "**")
		return left + " " + op + " " + right, p

	case nodeUnaryOperator:
		return u.operator(n) + u.operand(n.ChildByFieldName("argument"), precFactor, false), precFactor

	case nodeNotOperator:
		return "not " + u.operand(n.ChildByFieldName("argument"), precNot, false), precNot

	case nodeBooleanOperator:
		op := u.operator(n)
		p := precOr
		if op == "and" {
			p = precAnd
		}
		left := u.operand(n.ChildByFieldName("left"), p, false)
		right := u.operand(n.ChildByFieldName("right"), p, true)
		return left + " " + op + " " + right, p

	case nodeComparisonOperator:
		operands, ops, ok := ast.Comparison(u.src, n)
		if !ok {
			return u.fallback(n), precAtom
		}
		var b strings.Builder
		b.WriteString(u.operand(operands[0], precCmp, true))
		for i, op := range ops {
			b.WriteString(" " + op + " ")
			b.WriteString(u.operand(operands[i+1], precCmp, true))
		}
		return b.String(), precCmp

	case nodeConditionalExpression:
		parts := ast.NamedChildren(n)
		if len(parts) != 3 {
			return u.fallback(n), precAtom
		}
		return u.operand(parts[0], precTest, true) + " if " +
			u.operand(parts[1], precTest, true) + " else " +
			u.operand(parts[2], precTest, false), precTest

	case nodeCall:
		fn := u.operand(n.ChildByFieldName("function"), precAtom, false)
		args := n.ChildByFieldName("arguments")
		if args == nil || args.Type() != nodeArgumentList {
			return fn + u.fallback(args), precAtom
		}
		return fn + "(" + u.list(ast.NamedChildren(args)) + ")", precAtom

	case nodeAttribute:
		obj := u.operand(n.ChildByFieldName("object"), precAtom, false)
		return obj + "." + ast.Text(u.src, n.ChildByFieldName("attribute")), precAtom

	case nodeSubscript:
		parts := ast.NamedChildren(n)
		if len(parts) < 2 {
			return u.fallback(n), precAtom
		}
		value := u.operand(parts[0], precAtom, false)
		return value + "[" + u.list(parts[1:]) + "]", precAtom

	case nodeKeywordArgument:
		name := ast.Text(u.src, n.ChildByFieldName("name"))
		value, _ := u.expr(n.ChildByFieldName("value"))
		return name + "=" + value, precAtom

	case nodeListSplat:
		return "*" + u.operand(firstNamed(n), precAtom, false), precAtom

	case nodeDictionarySplat:
		return "**" + u.operand(firstNamed(n), precAtom, false), precAtom

	case nodeList:
		return "[" + u.list(ast.NamedChildren(n)) + "]", precAtom

	case nodeSet:
		return "{" + u.list(ast.NamedChildren(n)) + "}", precAtom

	case nodeTuple:
		items := ast.NamedChildren(n)
		if len(items) == 1 {
			return "(" + u.list(items) + ",)", precAtom
		}
		return "(" + u.list(items) + ")", precAtom

	case nodeDictionary:
		var parts []string
		for _, c := range ast.NamedChildren(n) {
			if c.Type() != nodePair {
				parts = append(parts, u.unparse(c))
				continue
			}
			k, _ := u.expr(c.ChildByFieldName("key"))
			v, _ := u.expr(c.ChildByFieldName("value"))
			parts = append(parts, k+": "+v)
		}
		return "{" + strings.Join(parts, ", ") + "}", precAtom

	case nodeString:
		return u.str(n), precAtom

	case nodeIdentifier, nodeInteger, nodeFloat, nodeTrue, nodeFalse, nodeNone:
		return ast.Text(u.src, n), precAtom
	}
	return u.fallback(n), precAtom
}

// operand renders n, parenthesized when it binds looser than p (or equally
// loose, when strict).
func (u unparser) operand(n *sitter.Node, p int, strict bool) string {
	s, q := u.expr(n)
	if q < p || (strict && q == p) {
		return "(" + s + ")"
	}
	return s
}

func (u unparser) operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	return ""
}

func (u unparser) list(items []*sitter.Node) string {
	parts := make([]string, 0, len(items))
	for _, c := range items {
		s, _ := u.expr(c)
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// str normalizes a plain double-quoted string literal to single quotes.
// Prefixed, triple-quoted and escaped strings are kept as written.
func (u unparser) str(n *sitter.Node) string {
	text := ast.Text(u.src, n)
	if len(text) < 2 || text[0] != '"' || strings.HasPrefix(text, `"""`) {
		return text
	}
	body := text[1 : len(text)-1]
	if strings.ContainsAny(body, `'\`) {
		return text
	}
	return "'" + body + "'"
}

// fallback is the whitespace-normalized source text of n.
func (u unparser) fallback(n *sitter.Node) string {
	text := strings.Join(strings.Fields(ast.Text(u.src, n)), " ")
	if text == "" {
		return placeholder
	}
	return text
}

func firstNamed(n *sitter.Node) *sitter.Node {
	children := ast.NamedChildren(n)
	if len(children) == 0 {
		return nil
	}
	return children[0]
}
