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
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// Call invokes callee with positional and keyword arguments.
func (in *Interpreter) Call(callee Value, args []Value, kwargs []Kwarg) (Value, error) {
	switch fn := callee.(type) {
	case *Function:
		return in.callFunction(fn, args, kwargs)
	case *Builtin:
		return fn.Fn(in, args, kwargs)
	case *BoundMethod:
		return fn.Fn(in, args, kwargs)
	case *TypeObject:
		if fn.Call == nil {
			return nil, newError(excTypeError, "cannot create '%s' instances", fn.Name)
		}
		return fn.Call(in, args, kwargs)
	case *ExceptionClass:
		if len(kwargs) > 0 {
			return nil, newError(excTypeError, "%s() takes no keyword arguments", fn.Name)
		}
		return instantiate(fn, args), nil
	case *Layer:
		return fn.forward(in, args)
	}
	return nil, newError(excTypeError, "'%s' object is not callable", callee.TypeName())
}

// callFunction binds arguments and runs fn as a new activation.
func (in *Interpreter) callFunction(fn *Function, args []Value, kwargs []Kwarg) (Value, error) {
	locals, err := bindArgs(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	fr := &Frame{
		Func:    fn.Name,
		Unit:    fn.Unit,
		locals:  locals,
		globals: fn.Globals,
		closure: fn.Closure,
	}
	return in.activate(fr, fn.Line, func() (Value, error) {
		if fn.IsLambda {
			if err := in.lineEvent(fr, ast.Line(fn.Body), false); err != nil {
				return nil, err
			}
			return in.eval(fr, fn.Body)
		}
		fl, err := in.execBlock(fr, ast.NamedChildren(fn.Body))
		if err != nil {
			return nil, err
		}
		if fl.kind == flowReturn {
			return fl.value, nil
		}
		return None, nil
	})
}

// bindArgs maps call arguments onto fn's parameters.
func bindArgs(fn *Function, args []Value, kwargs []Kwarg) (map[string]Value, error) {
	locals := make(map[string]Value, len(fn.Params))
	bound := make(map[string]bool, len(fn.Params))
	var varKw *Dict
	positional := 0
	for _, p := range fn.Params {
		if p.Kind == ParamPositional {
			positional++
		}
	}

	i := 0
	for _, p := range fn.Params {
		switch p.Kind {
		case ParamPositional:
			if i < len(args) {
				locals[p.Name] = args[i]
				bound[p.Name] = true
				i++
			}
		case ParamVarArgs:
			rest := []Value{}
			if i < len(args) {
				rest = append(rest, args[i:]...)
			}
			locals[p.Name] = &Tuple{Elems: rest}
			bound[p.Name] = true
			i = len(args)
		case ParamVarKeywords:
			varKw = NewDict()
			locals[p.Name] = varKw
			bound[p.Name] = true
		}
	}
	if i < len(args) {
		return nil, newError(excTypeError, "%s() takes %d positional argument%s but %d %s given",
			fn.Name, positional, plural(positional), len(args), wasWere(len(args)))
	}

	for _, kw := range kwargs {
		matched := false
		for _, p := range fn.Params {
			if p.Name != kw.Name || (p.Kind != ParamPositional && p.Kind != ParamKeywordOnly) {
				continue
			}
			if bound[p.Name] {
				return nil, newError(excTypeError, "%s() got multiple values for argument '%s'", fn.Name, kw.Name)
			}
			locals[p.Name] = kw.Value
			bound[p.Name] = true
			matched = true
			break
		}
		if matched {
			continue
		}
		if varKw == nil {
			return nil, newError(excTypeError, "%s() got an unexpected keyword argument '%s'", fn.Name, kw.Name)
		}
		if err := varKw.Set(Str(kw.Name), kw.Value); err != nil {
			return nil, err
		}
	}

	var missing []string
	for _, p := range fn.Params {
		if bound[p.Name] || (p.Kind != ParamPositional && p.Kind != ParamKeywordOnly) {
			continue
		}
		if p.HasDefault {
			locals[p.Name] = p.Default
			continue
		}
		missing = append(missing, "'"+p.Name+"'")
	}
	if len(missing) > 0 {
		return nil, newError(excTypeError, "%s() missing %d required argument%s: %s",
			fn.Name, len(missing), plural(len(missing)), strings.Join(missing, ", "))
	}
	return locals, nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}

// makeFunction builds a Function from a def or lambda node, evaluating
// defaults in fr.
func (in *Interpreter) makeFunction(fr *Frame, name string, params, body *sitter.Node, lambda bool, line int) (*Function, error) {
	fn := &Function{
		Name:     name,
		Body:     body,
		IsLambda: lambda,
		Unit:     fr.Unit,
		Globals:  fr.globals,
		Line:     line,
	}
	if fr.Func != "<module>" {
		fn.Closure = fr
	}
	if params == nil {
		return fn, nil
	}
	kwOnly := false
	for _, p := range ast.NamedChildren(params) {
		u := fr.Unit
		switch p.Type() {
		case "identifier":
			fn.Params = append(fn.Params, Param{Name: u.text(p), Kind: kindFor(kwOnly)})
		case "typed_parameter":
			inner := ast.NamedChildren(p)
			if len(inner) == 0 {
				continue
			}
			switch inner[0].Type() {
			case "list_splat_pattern":
				fn.Params = append(fn.Params, Param{Name: splatName(u, inner[0]), Kind: ParamVarArgs})
				kwOnly = true
			case "dictionary_splat_pattern":
				fn.Params = append(fn.Params, Param{Name: splatName(u, inner[0]), Kind: ParamVarKeywords})
			default:
				fn.Params = append(fn.Params, Param{Name: u.text(inner[0]), Kind: kindFor(kwOnly)})
			}
		case "default_parameter", "typed_default_parameter":
			nameNode := p.ChildByFieldName("name")
			valueNode := p.ChildByFieldName("value")
			if nameNode == nil || valueNode == nil {
				return nil, newError(excNotImplementedError, "unsupported parameter: %s", u.text(p))
			}
			def, err := in.eval(fr, valueNode)
			if err != nil {
				return nil, err
			}
			fn.Params = append(fn.Params, Param{Name: u.text(nameNode), Kind: kindFor(kwOnly), Default: def, HasDefault: true})
		case "list_splat_pattern":
			fn.Params = append(fn.Params, Param{Name: splatName(u, p), Kind: ParamVarArgs})
			kwOnly = true
		case "dictionary_splat_pattern":
			fn.Params = append(fn.Params, Param{Name: splatName(u, p), Kind: ParamVarKeywords})
		case "keyword_separator":
			kwOnly = true
		case "positional_separator":
		default:
			return nil, newError(excNotImplementedError, "unsupported parameter: %s", u.text(p))
		}
	}
	return fn, nil
}

func kindFor(kwOnly bool) ParamKind {
	if kwOnly {
		return ParamKeywordOnly
	}
	return ParamPositional
}

func splatName(u *Unit, n *sitter.Node) string {
	return strings.TrimLeft(u.text(n), "*")
}

// evalArgs evaluates an argument_list (or a bare generator argument).
func (in *Interpreter) evalArgs(fr *Frame, n *sitter.Node) ([]Value, []Kwarg, error) {
	if n == nil {
		return nil, nil, nil
	}
	if n.Type() == "generator_expression" {
		v, err := in.eval(fr, n)
		if err != nil {
			return nil, nil, err
		}
		return []Value{v}, nil, nil
	}
	var args []Value
	var kwargs []Kwarg
	for _, a := range ast.NamedChildren(n) {
		switch a.Type() {
		case "keyword_argument":
			v, err := in.eval(fr, a.ChildByFieldName("value"))
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, Kwarg{Name: fr.Unit.text(a.ChildByFieldName("name")), Value: v})
		case "list_splat":
			v, err := in.eval(fr, ast.NamedChildren(a)[0])
			if err != nil {
				return nil, nil, err
			}
			elems, err := in.collect(v)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, elems...)
		case "dictionary_splat":
			v, err := in.eval(fr, ast.NamedChildren(a)[0])
			if err != nil {
				return nil, nil, err
			}
			d, ok := v.(*Dict)
			if !ok {
				return nil, nil, newError(excTypeError, "argument after ** must be a mapping, not %s", v.TypeName())
			}
			for _, e := range d.Entries() {
				k, ok := e.Key.(Str)
				if !ok {
					return nil, nil, newError(excTypeError, "keywords must be strings")
				}
				kwargs = append(kwargs, Kwarg{Name: string(k), Value: e.Value})
			}
		default:
			v, err := in.eval(fr, a)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)
		}
	}
	return args, kwargs, nil
}

// =============================================================================
// Native argument helpers
// =============================================================================

// argSpec unpacks native call arguments by name and position.
type argSpec struct {
	fn     string
	names  []string
	values []Value
}

// parseArgs matches args and kwargs against names. Names ending in "?" are
// optional and default to nil.
func parseArgs(fn string, args []Value, kwargs []Kwarg, names ...string) (*argSpec, error) {
	spec := &argSpec{fn: fn, names: make([]string, len(names)), values: make([]Value, len(names))}
	required := 0
	for i, n := range names {
		spec.names[i] = strings.TrimSuffix(n, "?")
		if !strings.HasSuffix(n, "?") {
			required = i + 1
		}
	}
	if len(args) > len(names) {
		return nil, newError(excTypeError, "%s() takes at most %d argument%s (%d given)", fn, len(names), plural(len(names)), len(args))
	}
	copy(spec.values, args)
	for _, kw := range kwargs {
		idx := -1
		for i, n := range spec.names {
			if n == kw.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, newError(excTypeError, "%s() got an unexpected keyword argument '%s'", fn, kw.Name)
		}
		if spec.values[idx] != nil {
			return nil, newError(excTypeError, "%s() got multiple values for argument '%s'", fn, kw.Name)
		}
		spec.values[idx] = kw.Value
	}
	for i := 0; i < required; i++ {
		if spec.values[i] == nil {
			return nil, newError(excTypeError, "%s() missing required argument '%s'", fn, spec.names[i])
		}
	}
	return spec, nil
}

// get returns the i-th argument or nil when absent.
func (s *argSpec) get(i int) Value {
	return s.values[i]
}

// has reports whether the i-th argument was supplied and is not None.
func (s *argSpec) has(i int) bool {
	v := s.values[i]
	if v == nil {
		return false
	}
	_, isNone := v.(NoneType)
	return !isNone
}

// int returns the i-th argument as an int, or def when absent.
func (s *argSpec) int(i int, def int64) (int64, error) {
	if !s.has(i) {
		return def, nil
	}
	n, ok := asInt(s.values[i])
	if !ok {
		return 0, newError(excTypeError, "%s() argument '%s' must be int, not %s", s.fn, s.names[i], s.values[i].TypeName())
	}
	return n, nil
}

// float returns the i-th argument as a float, or def when absent.
func (s *argSpec) float(i int, def float64) (float64, error) {
	if !s.has(i) {
		return def, nil
	}
	f, ok := asFloat(s.values[i])
	if !ok {
		return 0, newError(excTypeError, "%s() argument '%s' must be a real number, not %s", s.fn, s.names[i], s.values[i].TypeName())
	}
	return f, nil
}

// bool returns the truth value of the i-th argument, or def when absent.
func (s *argSpec) bool(i int, def bool) (bool, error) {
	if !s.has(i) {
		return def, nil
	}
	return Truthy(s.values[i])
}

// str returns the i-th argument as a string, or def when absent.
func (s *argSpec) str(i int, def string) (string, error) {
	if !s.has(i) {
		return def, nil
	}
	v, ok := s.values[i].(Str)
	if !ok {
		return "", newError(excTypeError, "%s() argument '%s' must be str, not %s", s.fn, s.names[i], s.values[i].TypeName())
	}
	return string(v), nil
}

// noKwargs rejects keyword arguments for natives that take none.
func noKwargs(fn string, kwargs []Kwarg) error {
	if len(kwargs) > 0 {
		return newError(excTypeError, "%s() takes no keyword arguments", fn)
	}
	return nil
}

// exactArgs checks the positional argument count.
func exactArgs(fn string, args []Value, n int) error {
	if len(args) != n {
		return newError(excTypeError, "%s() takes exactly %d argument%s (%d given)", fn, n, plural(n), len(args))
	}
	return nil
}

func describe(v Value) string {
	return fmt.Sprintf("'%s'", v.TypeName())
}
