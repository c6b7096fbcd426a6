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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// =============================================================================
// Statements
// =============================================================================

type flowKind int

const (
	flowNormal flowKind = iota
	flowReturn
	flowBreak
	flowContinue
)

// flow is the non-local control outcome of a statement.
type flow struct {
	kind  flowKind
	value Value
}

var normal = flow{}

// execBlock runs statements in order until one transfers control.
func (in *Interpreter) execBlock(fr *Frame, stmts []*sitter.Node) (flow, error) {
	for i, s := range stmts {
		fr.holdSub = i+1 < len(stmts) && ast.Line(stmts[i+1]) == ast.Line(s)
		fl, err := in.exec(fr, s)
		if err != nil {
			return normal, err
		}
		if fl.kind != flowNormal {
			return fl, nil
		}
	}
	return normal, nil
}

// opensOnLine reports whether the first of stmts starts on line.
func opensOnLine(stmts []*sitter.Node, line int) bool {
	return len(stmts) > 0 && ast.Line(stmts[0]) == line
}

// settle reports the sub-step of a finished simple statement unless the
// next statement continues on the same line.
func (in *Interpreter) settle(fr *Frame, hold bool) error {
	if hold {
		return nil
	}
	return in.subStep(fr)
}

// body returns the statements of a block-valued field.
func body(n *sitter.Node, field string) []*sitter.Node {
	return ast.NamedChildren(n.ChildByFieldName(field))
}

// exec runs one statement.
func (in *Interpreter) exec(fr *Frame, n *sitter.Node) (fl flow, err error) {
	if err := in.tick(); err != nil {
		return normal, err
	}
	defer func() {
		var exc *Exception
		if err != nil && errors.As(err, &exc) {
			in.attachTraceback(exc)
		}
	}()

	hold := fr.holdSub
	fr.holdSub = false
	line := ast.Line(n)
	switch n.Type() {
	case "expression_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		if err := in.execExpressionStatement(fr, n); err != nil {
			return normal, err
		}
		return normal, in.settle(fr, hold)

	case "if_statement":
		return in.execIf(fr, n)

	case "for_statement":
		return in.execFor(fr, n)

	case "while_statement":
		return in.execWhile(fr, n)

	case "try_statement":
		return in.execTry(fr, n)

	case "function_definition":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		name := fr.Unit.text(n.ChildByFieldName("name"))
		fn, err := in.makeFunction(fr, name, n.ChildByFieldName("parameters"), n.ChildByFieldName("body"), false, line)
		if err != nil {
			return normal, err
		}
		fr.assign(name, fn)
		return normal, in.settle(fr, hold)

	case "return_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		var v Value = None
		if vals := ast.NamedChildren(n); len(vals) > 0 {
			if v, err = in.eval(fr, vals[0]); err != nil {
				return normal, err
			}
		}
		return flow{kind: flowReturn, value: v}, nil

	case "pass_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		return normal, in.settle(fr, hold)

	case "break_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		return flow{kind: flowBreak}, nil

	case "continue_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		return flow{kind: flowContinue}, nil

	case "raise_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		return normal, in.execRaise(fr, n)

	case "assert_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		if err := in.execAssert(fr, n); err != nil {
			return normal, err
		}
		return normal, in.settle(fr, hold)

	case "global_statement":
		if fr.declGlob == nil {
			fr.declGlob = map[string]bool{}
		}
		for _, id := range ast.NamedChildren(n) {
			fr.declGlob[fr.Unit.text(id)] = true
		}
		return normal, nil

	case "nonlocal_statement":
		if fr.declNonlo == nil {
			fr.declNonlo = map[string]bool{}
		}
		for _, id := range ast.NamedChildren(n) {
			fr.declNonlo[fr.Unit.text(id)] = true
		}
		return normal, nil

	case "delete_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		for _, target := range ast.NamedChildren(n) {
			if err := in.deleteTarget(fr, target); err != nil {
				return normal, err
			}
		}
		return normal, in.settle(fr, hold)

	case "import_statement", "import_from_statement":
		if err := in.lineEvent(fr, line, false); err != nil {
			return normal, err
		}
		if err := in.execImport(fr, n); err != nil {
			return normal, err
		}
		return normal, in.settle(fr, hold)

	case "future_import_statement":
		return normal, nil
	}
	return normal, newError(excNotImplementedError, "unsupported statement: %s", n.Type())
}

// execExpressionStatement evaluates the body of an expression statement,
// which may be an assignment.
func (in *Interpreter) execExpressionStatement(fr *Frame, n *sitter.Node) error {
	parts := ast.NamedChildren(n)
	if len(parts) == 1 {
		e := parts[0]
		switch e.Type() {
		case "assignment":
			_, err := in.execAssignment(fr, e)
			return err
		case "augmented_assignment":
			return in.execAugmented(fr, e)
		}
	}
	for _, e := range parts {
		if _, err := in.eval(fr, e); err != nil {
			return err
		}
	}
	return nil
}

// execAssignment performs a (possibly chained) assignment and returns the
// assigned value. The value is evaluated once, then bound to the targets
// from left to right.
func (in *Interpreter) execAssignment(fr *Frame, n *sitter.Node) (Value, error) {
	targets := []*sitter.Node{n.ChildByFieldName("left")}
	right := n.ChildByFieldName("right")
	for right != nil && right.Type() == "assignment" {
		targets = append(targets, right.ChildByFieldName("left"))
		right = right.ChildByFieldName("right")
	}
	if right == nil {
		// Annotation without a value.
		return None, nil
	}
	v, err := in.eval(fr, right)
	if err != nil {
		return nil, err
	}
	for _, target := range targets {
		if err := in.assignTarget(fr, target, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// assignTarget binds v to an assignment target.
func (in *Interpreter) assignTarget(fr *Frame, target *sitter.Node, v Value) error {
	switch target.Type() {
	case "identifier":
		fr.assign(fr.Unit.text(target), v)
		return nil
	case "parenthesized_expression":
		return in.assignTarget(fr, ast.Unparen(target), v)
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list", "tuple", "list":
		return in.unpack(fr, ast.NamedChildren(target), v)
	case "subscript":
		obj, err := in.eval(fr, target.ChildByFieldName("value"))
		if err != nil {
			return err
		}
		idx, err := in.evalIndex(fr, target)
		if err != nil {
			return err
		}
		return in.setItem(obj, idx, v)
	case "attribute":
		obj, err := in.eval(fr, target.ChildByFieldName("object"))
		if err != nil {
			return err
		}
		return setAttr(obj, fr.Unit.text(target.ChildByFieldName("attribute")), v)
	}
	return newError(excNotImplementedError, "cannot assign to %s", target.Type())
}

// unpack distributes the elements of v over targets, honoring one starred
// target.
func (in *Interpreter) unpack(fr *Frame, targets []*sitter.Node, v Value) error {
	elems, err := in.collect(v)
	if err != nil {
		if exc, ok := err.(*Exception); ok && exc.Class == excTypeError {
			return newError(excTypeError, "cannot unpack non-iterable %s object", v.TypeName())
		}
		return err
	}
	star := -1
	for i, t := range targets {
		if t.Type() == "list_splat_pattern" || t.Type() == "list_splat" {
			star = i
		}
	}
	if star < 0 {
		if len(elems) > len(targets) {
			return newError(excValueError, "too many values to unpack (expected %d)", len(targets))
		}
		if len(elems) < len(targets) {
			return newError(excValueError, "not enough values to unpack (expected %d, got %d)", len(targets), len(elems))
		}
		for i, t := range targets {
			if err := in.assignTarget(fr, t, elems[i]); err != nil {
				return err
			}
		}
		return nil
	}
	after := len(targets) - star - 1
	if len(elems) < len(targets)-1 {
		return newError(excValueError, "not enough values to unpack (expected at least %d, got %d)", len(targets)-1, len(elems))
	}
	for i := 0; i < star; i++ {
		if err := in.assignTarget(fr, targets[i], elems[i]); err != nil {
			return err
		}
	}
	mid := append([]Value(nil), elems[star:len(elems)-after]...)
	if err := in.assignTarget(fr, ast.NamedChildren(targets[star])[0], &List{Elems: mid}); err != nil {
		return err
	}
	for i := 0; i < after; i++ {
		if err := in.assignTarget(fr, targets[star+1+i], elems[len(elems)-after+i]); err != nil {
			return err
		}
	}
	return nil
}

// execAugmented performs x op= y. Lists extend and arrays update in place.
func (in *Interpreter) execAugmented(fr *Frame, n *sitter.Node) error {
	target := n.ChildByFieldName("left")
	op := strings.TrimSuffix(fr.Unit.text(n.ChildByFieldName("operator")), "=")
	rhs, err := in.eval(fr, n.ChildByFieldName("right"))
	if err != nil {
		return err
	}

	switch target.Type() {
	case "identifier":
		name := fr.Unit.text(target)
		cur, ok := fr.lookup(name)
		if !ok {
			return nameError(name)
		}
		res, err := in.inplace(op, cur, rhs)
		if err != nil {
			return err
		}
		fr.assign(name, res)
		return nil
	case "subscript":
		obj, err := in.eval(fr, target.ChildByFieldName("value"))
		if err != nil {
			return err
		}
		idx, err := in.evalIndex(fr, target)
		if err != nil {
			return err
		}
		cur, err := in.getItem(obj, idx)
		if err != nil {
			return err
		}
		res, err := in.inplace(op, cur, rhs)
		if err != nil {
			return err
		}
		return in.setItem(obj, idx, res)
	case "attribute":
		obj, err := in.eval(fr, target.ChildByFieldName("object"))
		if err != nil {
			return err
		}
		name := fr.Unit.text(target.ChildByFieldName("attribute"))
		cur, err := in.getAttr(obj, name)
		if err != nil {
			return err
		}
		res, err := in.inplace(op, cur, rhs)
		if err != nil {
			return err
		}
		return setAttr(obj, name, res)
	}
	return newError(excNotImplementedError, "cannot assign to %s", target.Type())
}

// inplace applies an augmented operator, mutating lists and arrays.
func (in *Interpreter) inplace(op string, cur, rhs Value) (Value, error) {
	switch c := cur.(type) {
	case *List:
		if op == "+" {
			elems, err := in.collect(rhs)
			if err != nil {
				return nil, err
			}
			c.Elems = append(c.Elems, elems...)
			return c, nil
		}
	case *NDArray:
		res, err := in.binary(op, cur, rhs)
		if err != nil {
			return nil, err
		}
		if r, ok := res.(*NDArray); ok && sameShape(r.Shape, c.Shape) {
			copy(c.Data, r.Data)
			if c.DType == DTypeInt64 && r.DType == DTypeFloat64 {
				for i := range c.Data {
					c.Data[i] = truncInt(c.Data[i])
				}
			}
			return c, nil
		}
		return res, nil
	}
	return in.binary(op, cur, rhs)
}

// execIf runs an if/elif/else chain. Each tested header fires a line event.
func (in *Interpreter) execIf(fr *Frame, n *sitter.Node) (flow, error) {
	ok, err := in.testHeader(fr, n, n.ChildByFieldName("condition"), body(n, "consequence"), false)
	if err != nil {
		return normal, err
	}
	if ok {
		return in.execBlock(fr, body(n, "consequence"))
	}
	for _, alt := range ast.Children(n) {
		switch alt.Type() {
		case "elif_clause":
			ok, err := in.testHeader(fr, alt, alt.ChildByFieldName("condition"), body(alt, "consequence"), false)
			if err != nil {
				return normal, err
			}
			if ok {
				return in.execBlock(fr, body(alt, "consequence"))
			}
		case "else_clause":
			return in.execBlock(fr, body(alt, "body"))
		}
	}
	return normal, nil
}

// testHeader fires the header's line event, evaluates cond, and reports a
// sub-step once the test is done. The sub-step is held when the test passes
// and stmts open on the header line.
func (in *Interpreter) testHeader(fr *Frame, header, cond *sitter.Node, stmts []*sitter.Node, force bool) (bool, error) {
	line := ast.Line(header)
	if err := in.lineEvent(fr, line, force); err != nil {
		return false, err
	}
	v, err := in.eval(fr, cond)
	if err != nil {
		return false, err
	}
	ok, err := Truthy(v)
	if err != nil {
		return false, err
	}
	return ok, in.settle(fr, ok && opensOnLine(stmts, line))
}

// execWhile runs a while loop. The header fires on every test, including the
// final failing one.
func (in *Interpreter) execWhile(fr *Frame, n *sitter.Node) (flow, error) {
	cond := n.ChildByFieldName("condition")
	stmts := body(n, "body")
	for {
		ok, err := in.testHeader(fr, n, cond, stmts, true)
		if err != nil {
			return normal, err
		}
		if !ok {
			break
		}
		fl, err := in.execBlock(fr, stmts)
		if err != nil {
			return normal, err
		}
		if fl.kind == flowBreak {
			return normal, nil
		}
		if fl.kind == flowReturn {
			return fl, nil
		}
	}
	return in.loopElse(fr, n)
}

// execFor runs a for loop. The header fires once per iteration and once
// more when the iterable is exhausted.
func (in *Interpreter) execFor(fr *Frame, n *sitter.Node) (flow, error) {
	line := ast.Line(n)
	if err := in.lineEvent(fr, line, true); err != nil {
		return normal, err
	}
	iterable, err := in.eval(fr, n.ChildByFieldName("right"))
	if err != nil {
		return normal, err
	}
	next, err := in.iterate(iterable)
	if err != nil {
		return normal, err
	}
	target := n.ChildByFieldName("left")
	stmts := body(n, "body")
	inline := opensOnLine(stmts, line)
	first := true
	for {
		if !first {
			if err := in.lineEvent(fr, line, true); err != nil {
				return normal, err
			}
		}
		first = false
		item, ok, err := next()
		if err != nil {
			return normal, err
		}
		if !ok {
			break
		}
		if err := in.assignTarget(fr, target, item); err != nil {
			return normal, err
		}
		if err := in.settle(fr, inline); err != nil {
			return normal, err
		}
		fl, err := in.execBlock(fr, stmts)
		if err != nil {
			return normal, err
		}
		if fl.kind == flowBreak {
			return normal, nil
		}
		if fl.kind == flowReturn {
			return fl, nil
		}
	}
	return in.loopElse(fr, n)
}

// loopElse runs a loop's else clause after normal exhaustion.
func (in *Interpreter) loopElse(fr *Frame, n *sitter.Node) (flow, error) {
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		return in.execBlock(fr, body(alt, "body"))
	}
	return normal, nil
}

// execTry runs try/except/else/finally. Limit errors are not catchable and
// skip finally blocks.
func (in *Interpreter) execTry(fr *Frame, n *sitter.Node) (flow, error) {
	fl, err := in.execBlock(fr, body(n, "body"))

	var elseClause, finallyClause *sitter.Node
	var handlers []*sitter.Node
	for _, c := range ast.Children(n) {
		switch c.Type() {
		case "except_clause", "except_group_clause":
			handlers = append(handlers, c)
		case "else_clause":
			elseClause = c
		case "finally_clause":
			finallyClause = c
		}
	}

	var exc *Exception
	if err != nil && errors.As(err, &exc) {
		for _, h := range handlers {
			matched, herr := in.matchHandler(fr, h, exc)
			if herr != nil {
				err = herr
				break
			}
			if !matched {
				continue
			}
			prev := in.handling
			in.handling = exc
			fl, err = in.execBlock(fr, handlerBody(h))
			in.handling = prev
			break
		}
	} else if err == nil && fl.kind == flowNormal && elseClause != nil {
		fl, err = in.execBlock(fr, body(elseClause, "body"))
	}

	if finallyClause != nil {
		var limit *LimitError
		if errors.As(err, &limit) {
			return normal, err
		}
		ffl, ferr := in.execBlock(fr, ast.NamedChildren(lastBlock(finallyClause)))
		if ferr != nil {
			return normal, ferr
		}
		if ffl.kind != flowNormal {
			return ffl, nil
		}
	}
	return fl, err
}

// matchHandler fires the clause's line event, tests exc against the
// clause's types and binds the "as" name on a match.
func (in *Interpreter) matchHandler(fr *Frame, h *sitter.Node, exc *Exception) (bool, error) {
	if err := in.lineEvent(fr, ast.Line(h), false); err != nil {
		return false, err
	}
	typeNode, nameNode := handlerParts(h)
	if typeNode == nil {
		return true, nil
	}
	tv, err := in.eval(fr, typeNode)
	if err != nil {
		return false, err
	}
	ok, err := exceptionMatches(exc, tv)
	if err != nil || !ok {
		return false, err
	}
	if nameNode != nil {
		fr.assign(fr.Unit.text(nameNode), exc)
	}
	return true, nil
}

// handlerParts extracts the type expression and alias identifier of an
// except clause. Both the "as_pattern" and the flat field layouts of the
// grammar are handled.
func handlerParts(h *sitter.Node) (typeNode, nameNode *sitter.Node) {
	var parts []*sitter.Node
	for _, c := range ast.NamedChildren(h) {
		if c.Type() != "block" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	if parts[0].Type() == "as_pattern" {
		inner := ast.NamedChildren(parts[0])
		if len(inner) == 0 {
			return nil, nil
		}
		typeNode = inner[0]
		if alias := parts[0].ChildByFieldName("alias"); alias != nil {
			nameNode = identifierIn(alias)
		} else if len(inner) > 1 {
			nameNode = identifierIn(inner[len(inner)-1])
		}
		return typeNode, nameNode
	}
	typeNode = parts[0]
	if len(parts) > 1 {
		nameNode = identifierIn(parts[1])
	}
	return typeNode, nameNode
}

func identifierIn(n *sitter.Node) *sitter.Node {
	if n.Type() == "identifier" {
		return n
	}
	for _, c := range ast.NamedChildren(n) {
		if id := identifierIn(c); id != nil {
			return id
		}
	}
	return nil
}

func handlerBody(h *sitter.Node) []*sitter.Node {
	return ast.NamedChildren(lastBlock(h))
}

func lastBlock(n *sitter.Node) *sitter.Node {
	blocks := ast.ChildrenOfType(n, "block")
	if len(blocks) == 0 {
		return nil
	}
	return blocks[len(blocks)-1]
}

// exceptionMatches tests exc against a class or a tuple of classes.
func exceptionMatches(exc *Exception, spec Value) (bool, error) {
	switch s := spec.(type) {
	case *ExceptionClass:
		return exc.Class.IsSubclass(s), nil
	case *Tuple:
		for _, e := range s.Elems {
			ok, err := exceptionMatches(exc, e)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, newError(excTypeError, "catching classes that do not inherit from BaseException is not allowed")
}

// execRaise raises an exception instance or class, or re-raises the one
// being handled.
func (in *Interpreter) execRaise(fr *Frame, n *sitter.Node) error {
	args := ast.NamedChildren(n)
	if len(args) == 0 {
		if in.handling == nil {
			return newError(excRuntimeError, "No active exception to reraise")
		}
		return in.handling
	}
	v, err := in.eval(fr, args[0])
	if err != nil {
		return err
	}
	switch e := v.(type) {
	case *Exception:
		return e
	case *ExceptionClass:
		return instantiate(e, nil)
	}
	return newError(excTypeError, "exceptions must derive from BaseException")
}

// execAssert raises AssertionError when the test is false.
func (in *Interpreter) execAssert(fr *Frame, n *sitter.Node) error {
	parts := ast.NamedChildren(n)
	v, err := in.eval(fr, parts[0])
	if err != nil {
		return err
	}
	ok, err := Truthy(v)
	if err != nil || ok {
		return err
	}
	if len(parts) > 1 {
		msg, err := in.eval(fr, parts[1])
		if err != nil {
			return err
		}
		return instantiate(excAssertionError, []Value{msg})
	}
	return instantiate(excAssertionError, nil)
}

// deleteTarget implements del for names, subscripts and target lists.
func (in *Interpreter) deleteTarget(fr *Frame, t *sitter.Node) error {
	switch t.Type() {
	case "identifier":
		name := fr.Unit.text(t)
		if !fr.unbind(name) {
			return nameError(name)
		}
		return nil
	case "expression_list", "tuple", "pattern_list":
		for _, c := range ast.NamedChildren(t) {
			if err := in.deleteTarget(fr, c); err != nil {
				return err
			}
		}
		return nil
	case "subscript":
		obj, err := in.eval(fr, t.ChildByFieldName("value"))
		if err != nil {
			return err
		}
		idx, err := in.evalIndex(fr, t)
		if err != nil {
			return err
		}
		return in.delItem(obj, idx)
	}
	return newError(excNotImplementedError, "cannot delete %s", t.Type())
}

// execImport binds pre-bound modules by name. Only the modules the
// evaluator provides can be imported.
func (in *Interpreter) execImport(fr *Frame, n *sitter.Node) error {
	u := fr.Unit
	if n.Type() == "import_statement" {
		for _, c := range ast.NamedChildren(n) {
			switch c.Type() {
			case "dotted_name":
				path := u.text(c)
				if _, err := in.importModule(path); err != nil {
					return err
				}
				top := strings.SplitN(path, ".", 2)[0]
				m, _ := in.importModule(top)
				fr.assign(top, m)
			case "aliased_import":
				path := u.text(c.ChildByFieldName("name"))
				m, err := in.importModule(path)
				if err != nil {
					return err
				}
				fr.assign(u.text(c.ChildByFieldName("alias")), m)
			}
		}
		return nil
	}

	modNode := n.ChildByFieldName("module_name")
	path := u.text(modNode)
	m, err := in.importModule(path)
	if err != nil {
		return err
	}
	for _, c := range ast.NamedChildren(n) {
		if sameNode(c, modNode) {
			continue
		}
		switch c.Type() {
		case "wildcard_import":
			for _, k := range sortedKeys(m.Attrs) {
				if !strings.HasPrefix(k, "_") {
					fr.assign(k, m.Attrs[k])
				}
			}
		case "dotted_name":
			name := u.text(c)
			v, err := importName(m, path, name)
			if err != nil {
				return err
			}
			fr.assign(name, v)
		case "aliased_import":
			name := u.text(c.ChildByFieldName("name"))
			v, err := importName(m, path, name)
			if err != nil {
				return err
			}
			fr.assign(u.text(c.ChildByFieldName("alias")), v)
		}
	}
	return nil
}

func importName(m *Module, path, name string) (Value, error) {
	v, ok := m.Attrs[name]
	if !ok {
		return nil, newError(excImportError, "cannot import name '%s' from '%s'", name, path)
	}
	return v, nil
}

// importModule resolves a dotted module path.
func (in *Interpreter) importModule(path string) (*Module, error) {
	parts := strings.Split(path, ".")
	m, ok := in.modules[parts[0]]
	if !ok {
		return nil, newError(excModuleNotFoundError, "No module named '%s'", path)
	}
	for _, p := range parts[1:] {
		sub, ok := m.Attrs[p].(*Module)
		if !ok {
			return nil, newError(excModuleNotFoundError, "No module named '%s'", path)
		}
		m = sub
	}
	return m, nil
}

// nameError raises NameError for an unbound name.
func nameError(name string) error {
	return newError(excNameError, "name '%s' is not defined", name)
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
