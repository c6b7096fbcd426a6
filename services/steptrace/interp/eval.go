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
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// =============================================================================
// Expressions
// =============================================================================

// eval evaluates one expression node.
func (in *Interpreter) eval(fr *Frame, n *sitter.Node) (Value, error) {
	if n == nil {
		return nil, newError(excInternalError, "missing expression")
	}
	if err := in.tick(); err != nil {
		return nil, err
	}
	u := fr.Unit

	switch n.Type() {
	case "identifier":
		name := u.text(n)
		if v, ok := fr.lookup(name); ok {
			return v, nil
		}
		if v, ok := in.builtins[name]; ok {
			return v, nil
		}
		return nil, nameError(name)

	case "integer":
		return parseIntLiteral(u.text(n))

	case "float":
		text := strings.ReplaceAll(u.text(n), "_", "")
		if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
			return nil, newError(excNotImplementedError, "complex numbers are not supported")
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, newError(excValueError, "invalid float literal: %s", text)
		}
		return Float(f), nil

	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "none", "ellipsis":
		return None, nil

	case "string", "concatenated_string":
		return in.evalString(fr, n)

	case "parenthesized_expression":
		inner := ast.NamedChildren(n)
		if len(inner) != 1 {
			return nil, newError(excNotImplementedError, "unsupported expression: %s", u.text(n))
		}
		return in.eval(fr, inner[0])

	case "list", "set":
		elems, err := in.evalElems(fr, ast.NamedChildren(n))
		if err != nil {
			return nil, err
		}
		if n.Type() == "set" {
			elems = uniqueValues(elems)
		}
		return &List{Elems: elems}, nil

	case "tuple", "expression_list", "pattern_list":
		elems, err := in.evalElems(fr, ast.NamedChildren(n))
		if err != nil {
			return nil, err
		}
		return &Tuple{Elems: elems}, nil

	case "dictionary":
		return in.evalDict(fr, n)

	case "list_comprehension", "set_comprehension", "generator_expression":
		var out []Value
		err := in.comprehend(fr, n, func() error {
			v, err := in.eval(fr, n.ChildByFieldName("body"))
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if n.Type() == "set_comprehension" {
			out = uniqueValues(out)
		}
		return &List{Elems: out}, nil

	case "dictionary_comprehension":
		d := NewDict()
		pair := n.ChildByFieldName("body")
		err := in.comprehend(fr, n, func() error {
			k, err := in.eval(fr, pair.ChildByFieldName("key"))
			if err != nil {
				return err
			}
			v, err := in.eval(fr, pair.ChildByFieldName("value"))
			if err != nil {
				return err
			}
			return d.Set(k, v)
		})
		if err != nil {
			return nil, err
		}
		return d, nil

	case "binary_operator":
		left, err := in.eval(fr, n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		right, err := in.eval(fr, n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		return in.binary(n.ChildByFieldName("operator").Type(), left, right)

	case "unary_operator":
		v, err := in.eval(fr, n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return unary(n.ChildByFieldName("operator").Type(), v)

	case "not_operator":
		v, err := in.eval(fr, n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		t, err := Truthy(v)
		if err != nil {
			return nil, err
		}
		return Bool(!t), nil

	case "boolean_operator":
		left, err := in.eval(fr, n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		t, err := Truthy(left)
		if err != nil {
			return nil, err
		}
		op := n.ChildByFieldName("operator").Type()
		if (op == "and" && !t) || (op == "or" && t) {
			return left, nil
		}
		return in.eval(fr, n.ChildByFieldName("right"))

	case "comparison_operator":
		return in.evalComparison(fr, n)

	case "conditional_expression":
		parts := ast.NamedChildren(n)
		if len(parts) != 3 {
			return nil, newError(excNotImplementedError, "unsupported expression: %s", u.text(n))
		}
		c, err := in.eval(fr, parts[1])
		if err != nil {
			return nil, err
		}
		t, err := Truthy(c)
		if err != nil {
			return nil, err
		}
		if t {
			return in.eval(fr, parts[0])
		}
		return in.eval(fr, parts[2])

	case "named_expression":
		v, err := in.eval(fr, n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		fr.assign(u.text(n.ChildByFieldName("name")), v)
		return v, nil

	case "call":
		callee, err := in.eval(fr, n.ChildByFieldName("function"))
		if err != nil {
			return nil, err
		}
		args, kwargs, err := in.evalArgs(fr, n.ChildByFieldName("arguments"))
		if err != nil {
			return nil, err
		}
		return in.Call(callee, args, kwargs)

	case "attribute":
		obj, err := in.eval(fr, n.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		return in.getAttr(obj, u.text(n.ChildByFieldName("attribute")))

	case "subscript":
		obj, err := in.eval(fr, n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		idx, err := in.evalIndex(fr, n)
		if err != nil {
			return nil, err
		}
		return in.getItem(obj, idx)

	case "slice":
		return in.evalSlice(fr, n)

	case "lambda":
		return in.makeFunction(fr, "<lambda>", n.ChildByFieldName("parameters"), n.ChildByFieldName("body"), true, ast.Line(n))

	case "keyword_argument", "list_splat", "dictionary_splat":
		return nil, newError(excNotImplementedError, "unexpected %s", n.Type())
	}
	return nil, newError(excNotImplementedError, "unsupported expression: %s", n.Type())
}

// parseIntLiteral parses decimal, hex, octal and binary literals.
func parseIntLiteral(text string) (Value, error) {
	clean := strings.ToLower(strings.ReplaceAll(text, "_", ""))
	if strings.HasSuffix(clean, "j") {
		return nil, newError(excNotImplementedError, "complex numbers are not supported")
	}
	base := 10
	switch {
	case strings.HasPrefix(clean, "0x"):
		base, clean = 16, clean[2:]
	case strings.HasPrefix(clean, "0o"):
		base, clean = 8, clean[2:]
	case strings.HasPrefix(clean, "0b"):
		base, clean = 2, clean[2:]
	}
	n, err := strconv.ParseInt(clean, base, 64)
	if err != nil {
		return nil, newError(excOverflowError, "integer literal too large: %s", text)
	}
	return Int(n), nil
}

// evalElems evaluates display elements, expanding *iterable entries.
func (in *Interpreter) evalElems(fr *Frame, nodes []*sitter.Node) ([]Value, error) {
	out := make([]Value, 0, len(nodes))
	for _, e := range nodes {
		if e.Type() == "list_splat" {
			v, err := in.eval(fr, ast.NamedChildren(e)[0])
			if err != nil {
				return nil, err
			}
			elems, err := in.collect(v)
			if err != nil {
				return nil, err
			}
			out = append(out, elems...)
			continue
		}
		v, err := in.eval(fr, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// evalDict evaluates a dict display.
func (in *Interpreter) evalDict(fr *Frame, n *sitter.Node) (Value, error) {
	d := NewDict()
	for _, c := range ast.NamedChildren(n) {
		switch c.Type() {
		case "pair":
			k, err := in.eval(fr, c.ChildByFieldName("key"))
			if err != nil {
				return nil, err
			}
			v, err := in.eval(fr, c.ChildByFieldName("value"))
			if err != nil {
				return nil, err
			}
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		case "dictionary_splat":
			v, err := in.eval(fr, ast.NamedChildren(c)[0])
			if err != nil {
				return nil, err
			}
			src, ok := v.(*Dict)
			if !ok {
				return nil, newError(excTypeError, "'%s' object is not a mapping", v.TypeName())
			}
			for _, e := range src.Entries() {
				if err := d.Set(e.Key, e.Value); err != nil {
					return nil, err
				}
			}
		}
	}
	return d, nil
}

// comprehend drives the for/if clauses of a comprehension in a private
// scope, calling emit for every produced element.
func (in *Interpreter) comprehend(fr *Frame, n *sitter.Node, emit func() error) error {
	bodyNode := n.ChildByFieldName("body")
	var clauses []*sitter.Node
	for _, c := range ast.NamedChildren(n) {
		if sameNode(c, bodyNode) {
			continue
		}
		if c.Type() == "for_in_clause" || c.Type() == "if_clause" {
			clauses = append(clauses, c)
		}
	}

	fr.pushScope()
	defer fr.popScope()

	var run func(i int) error
	run = func(i int) error {
		if i == len(clauses) {
			return emit()
		}
		c := clauses[i]
		if c.Type() == "if_clause" {
			v, err := in.eval(fr, ast.NamedChildren(c)[0])
			if err != nil {
				return err
			}
			ok, err := Truthy(v)
			if err != nil || !ok {
				return err
			}
			return run(i + 1)
		}
		iterable, err := in.eval(fr, c.ChildByFieldName("right"))
		if err != nil {
			return err
		}
		next, err := in.iterate(iterable)
		if err != nil {
			return err
		}
		target := c.ChildByFieldName("left")
		for {
			item, ok, err := next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := in.assignTarget(fr, target, item); err != nil {
				return err
			}
			if err := run(i + 1); err != nil {
				return err
			}
		}
	}
	return run(0)
}

// evalComparison evaluates a possibly chained comparison. Operands are
// named children; operators are the unnamed tokens between them.
func (in *Interpreter) evalComparison(fr *Frame, n *sitter.Node) (Value, error) {
	operands, ops, ok := ast.Comparison(fr.Unit.Source(), n)
	if !ok {
		return nil, newError(excNotImplementedError, "malformed comparison: %s", fr.Unit.text(n))
	}

	left, err := in.eval(fr, operands[0])
	if err != nil {
		return nil, err
	}
	var result Value = Bool(true)
	for i, op := range ops {
		right, err := in.eval(fr, operands[i+1])
		if err != nil {
			return nil, err
		}
		result, err = in.compare(op, left, right)
		if err != nil {
			return nil, err
		}
		if len(ops) > 1 {
			t, err := Truthy(result)
			if err != nil {
				return nil, err
			}
			if !t {
				return result, nil
			}
		}
		left = right
	}
	return result, nil
}

// evalIndex evaluates the index of a subscript node. Several comma
// separated subscripts form a tuple index.
func (in *Interpreter) evalIndex(fr *Frame, n *sitter.Node) (Value, error) {
	valueNode := n.ChildByFieldName("value")
	var parts []*sitter.Node
	for _, c := range ast.NamedChildren(n) {
		if !sameNode(c, valueNode) {
			parts = append(parts, c)
		}
	}
	if len(parts) == 1 {
		return in.eval(fr, parts[0])
	}
	elems := make([]Value, 0, len(parts))
	for _, p := range parts {
		v, err := in.eval(fr, p)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return &Tuple{Elems: elems}, nil
}

// evalSlice evaluates start:stop:step. Children are scanned in order;
// colons separate the three positions.
func (in *Interpreter) evalSlice(fr *Frame, n *sitter.Node) (Value, error) {
	s := &Slice{Start: None, Stop: None, Step: None}
	pos := 0
	for _, c := range ast.Children(n) {
		if !c.IsNamed() {
			if fr.Unit.text(c) == ":" {
				pos++
			}
			continue
		}
		v, err := in.eval(fr, c)
		if err != nil {
			return nil, err
		}
		switch pos {
		case 0:
			s.Start = v
		case 1:
			s.Stop = v
		default:
			s.Step = v
		}
	}
	return s, nil
}

// uniqueValues removes duplicates, keeping first occurrences.
func uniqueValues(elems []Value) []Value {
	out := make([]Value, 0, len(elems))
	for _, e := range elems {
		dup := false
		for _, o := range out {
			if Equal(e, o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}
