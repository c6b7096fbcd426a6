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
	"math"
	"strings"
	"unicode"

	"github.com/AleutianAI/steptrace/services/steptrace/formula"
)

// Symbol is a symbolic expression kept as normalized source text. Prec is
// the binding strength of its outermost operator, used to parenthesize it
// when it is embedded in a larger expression.
type Symbol struct {
	Expr string
	Prec int
}

func (*Symbol) TypeName() string { return "Symbol" }

// Operator binding strengths, loosest first.
const (
	precCompare = 6
	precAdd     = 12
	precMul     = 13
	precUnary   = 14
	precPow     = 16
	precAtom    = 100
)

var binaryPrec = map[string]int{
	"+": precAdd, "-": precAdd,
	"*": precMul, "/": precMul, "//": precMul, "%": precMul,
	"**": precPow,
}

func newSymbol(name string) *Symbol {
	return &Symbol{Expr: name, Prec: precAtom}
}

// symOperand renders v as an operand, or reports false for values that
// cannot take part in a symbolic expression.
func symOperand(v Value) (string, int, bool) {
	switch x := v.(type) {
	case *Symbol:
		return x.Expr, x.Prec, true
	case Bool, Int:
		n, _ := asInt(x)
		if n < 0 {
			return Repr(Int(n)), precUnary, true
		}
		return Repr(Int(n)), precAtom, true
	case Float:
		if x < 0 {
			return FormatFloat(float64(x)), precUnary, true
		}
		return FormatFloat(float64(x)), precAtom, true
	}
	return "", 0, false
}

func wrapParen(s string, need bool) string {
	if need {
		return "(" + s + ")"
	}
	return s
}

func symbolBinary(op string, a, b Value) (Value, error) {
	p, ok := binaryPrec[op]
	if !ok {
		return nil, unsupportedOperand(op, a, b)
	}
	ls, lp, ok1 := symOperand(a)
	rs, rp, ok2 := symOperand(b)
	if !ok1 || !ok2 {
		return nil, unsupportedOperand(op, a, b)
	}
	var left, right string
	if op == "**" {
		left = wrapParen(ls, lp <= p)
		right = wrapParen(rs, rp < p)
	} else {
		left = wrapParen(ls, lp < p)
		right = wrapParen(rs, rp < p || (rp == p && op != "+" && op != "*"))
	}
	switch op {
	case "+", "-":
		return &Symbol{Expr: left + " " + op + " " + right, Prec: p}, nil
	}
	return &Symbol{Expr: left + op + right, Prec: p}, nil
}

func symbolUnary(op string, x *Symbol) (Value, error) {
	switch op {
	case "-":
		return &Symbol{Expr: "-" + wrapParen(x.Expr, x.Prec < precUnary), Prec: precUnary}, nil
	case "+":
		return x, nil
	}
	return nil, newError(excTypeError, "bad operand type for unary %s: 'Symbol'", op)
}

func symbolCompare(op string, a, b Value) (Value, error) {
	switch op {
	case "==":
		return Bool(Equal(a, b)), nil
	case "!=":
		return Bool(!Equal(a, b)), nil
	case "<", "<=", ">", ">=":
		ls, lp, ok1 := symOperand(a)
		rs, rp, ok2 := symOperand(b)
		if !ok1 || !ok2 {
			return nil, newError(excTypeError, "'%s' not supported between instances of '%s' and '%s'", op, a.TypeName(), b.TypeName())
		}
		return &Symbol{Expr: wrapParen(ls, lp <= precCompare) + " " + op + " " + wrapParen(rs, rp <= precCompare), Prec: precCompare}, nil
	}
	return nil, newError(excTypeError, "'%s' not supported between instances of '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

// symbolCall renders name(args...) as an atom.
func symbolCall(name string, args ...Value) *Symbol {
	parts := make([]string, len(args))
	for i, a := range args {
		if s, _, ok := symOperand(a); ok {
			parts[i] = s
		} else {
			parts[i] = Repr(a)
		}
	}
	return &Symbol{Expr: name + "(" + strings.Join(parts, ", ") + ")", Prec: precAtom}
}

// sympyName maps numpy ufunc names to their sympy spelling.
func sympyName(name string) string {
	switch name {
	case "arcsin", "arccos", "arctan":
		return "a" + strings.TrimPrefix(name, "arc")
	case "abs":
		return "Abs"
	case "ceil":
		return "ceiling"
	}
	return name
}

func symbolAttr(x *Symbol, name string) (Value, bool) {
	switch name {
	case "name":
		if x.Prec == precAtom && isIdentifier(x.Expr) {
			return Str(x.Expr), true
		}
	case "is_Symbol":
		return Bool(x.Prec == precAtom && isIdentifier(x.Expr)), true
	case "simplify", "expand", "factor", "doit":
		return &BoundMethod{Recv: x, Name: name, Fn: func(*Interpreter, []Value, []Kwarg) (Value, error) {
			return x, nil
		}}, true
	}
	return nil, false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// =============================================================================
// sympy module
// =============================================================================

func newSympyModule() *Module {
	m := &Module{Name: "sympy", Attrs: map[string]Value{
		"pi": newSymbol("pi"),
		"E":  newSymbol("E"),
		"oo": newSymbol("oo"),
		"I":  newSymbol("I"),
	}}
	add := func(name string, fn BuiltinFunc) {
		m.Attrs[name] = &Builtin{Name: name, Fn: fn}
	}
	add("symbols", sympySymbols)
	add("Symbol", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("Symbol", args, kwargs, "name")
		if err != nil {
			return nil, err
		}
		name, err := spec.str(0, "")
		if err != nil {
			return nil, err
		}
		return newSymbol(name), nil
	})
	for _, name := range []string{"sin", "cos", "tan", "asin", "acos", "atan", "sinh", "cosh", "tanh", "exp", "log", "Abs", "floor", "ceiling"} {
		name := name
		add(name, func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := noKwargs(name, kwargs); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return nil, newError(excTypeError, "%s() takes at least 1 argument (0 given)", name)
			}
			return symbolCall(name, args...), nil
		})
	}
	add("sqrt", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("sqrt", args, 1); err != nil {
			return nil, err
		}
		if n, ok := asInt(args[0]); ok && n >= 0 {
			r := int64(math.Sqrt(float64(n)))
			if r*r == n {
				return Int(r), nil
			}
		}
		return symbolCall("sqrt", args[0]), nil
	})
	add("Rational", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("Rational", args, kwargs, "p", "q?")
		if err != nil {
			return nil, err
		}
		p, err := spec.int(0, 0)
		if err != nil {
			return nil, err
		}
		q, err := spec.int(1, 1)
		if err != nil {
			return nil, err
		}
		if q == 0 {
			return newSymbol("zoo"), nil
		}
		if q < 0 {
			p, q = -p, -q
		}
		g := gcd(absInt(p), q)
		p, q = p/g, q/g
		if q == 1 {
			return Int(p), nil
		}
		return symbolBinary("/", Int(p), Int(q))
	})
	add("Integer", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("Integer", args, 1); err != nil {
			return nil, err
		}
		n, ok := asInt(args[0])
		if !ok {
			return nil, newError(excTypeError, "Integer() argument must be an int")
		}
		return Int(n), nil
	})
	add("Eq", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("Eq", args, 2); err != nil {
			return nil, err
		}
		return symbolCall("Eq", args...), nil
	})
	for _, name := range []string{"simplify", "expand", "factor", "sympify", "nsimplify"} {
		name := name
		add(name, func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) < 1 {
				return nil, newError(excTypeError, "%s() missing 1 required positional argument: 'expr'", name)
			}
			return args[0], nil
		})
	}
	add("latex", sympyLatex)
	return m
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

// sympySymbols splits names on commas and whitespace. One name yields a
// Symbol, several yield a tuple.
func sympySymbols(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("symbols", args, kwargs, "names", "real?", "positive?", "integer?")
	if err != nil {
		return nil, err
	}
	names, err := spec.str(0, "")
	if err != nil {
		return nil, err
	}
	fields := strings.FieldsFunc(names, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(fields) == 0 {
		return nil, newError(excValueError, "no symbols given")
	}
	if len(fields) == 1 && !strings.Contains(names, ",") {
		return newSymbol(fields[0]), nil
	}
	out := make([]Value, len(fields))
	for i, f := range fields {
		out[i] = newSymbol(f)
	}
	return &Tuple{Elems: out}, nil
}

func sympyLatex(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("latex", args, 1); err != nil {
		return nil, err
	}
	text, _, ok := symOperand(args[0])
	if !ok {
		return Str(StrOf(args[0])), nil
	}
	ctx := in.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if tex, ok := formula.LaTeX(ctx, text); ok {
		return Str(tex), nil
	}
	return Str(text), nil
}
