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
	"context"
	"math"
	"strconv"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// Binding levels of rendered LaTeX terms, loosest first.
const (
	texRel = iota + 1
	texAdd
	texMul
	texNeg
	texPow
	texAtom
)

// term is one rendered subexpression.
type term struct {
	s    string
	prec int

	// num is set for bare numerals, which need \cdot between them.
	num bool

	// fn and arg are set for named function applications so a power can
	// be typeset as \sin^{2}{\left(x \right)}.
	fn, arg string
}

var greek = map[string]bool{
	"alpha": true, "beta": true, "gamma": true, "delta": true, "epsilon": true,
	"zeta": true, "eta": true, "theta": true, "iota": true, "kappa": true,
	"mu": true, "nu": true, "xi": true, "pi": true, "rho": true, "sigma": true,
	"tau": true, "upsilon": true, "phi": true, "chi": true, "psi": true,
	"omega": true, "Gamma": true, "Delta": true, "Theta": true, "Lambda": true,
	"Xi": true, "Pi": true, "Sigma": true, "Upsilon": true, "Phi": true,
	"Psi": true, "Omega": true,
}

// specialNames are identifiers a computer algebra system reads as
// constants.
var specialNames = map[string]string{
	"oo":    `\infty`,
	"E":     "e",
	"I":     "i",
	"lamda": `\lambda`,
}

// operatorNames render as \name{\left(x \right)}.
var operatorNames = map[string]string{
	"sin": `\sin`, "cos": `\cos`, "tan": `\tan`, "cot": `\cot`, "sec": `\sec`,
	"csc": `\csc`, "sinh": `\sinh`, "cosh": `\cosh`, "tanh": `\tanh`,
	"log": `\log`, "ln": `\log`,
	"asin": `\operatorname{asin}`, "acos": `\operatorname{acos}`,
	"atan": `\operatorname{atan}`,
}

// notAlgebraic are builtins that fail on symbolic arguments.
var notAlgebraic = map[string]bool{
	"len": true, "int": true, "float": true, "str": true, "bool": true,
	"list": true, "dict": true, "tuple": true, "set": true, "range": true,
	"print": true, "sum": true, "round": true, "sorted": true, "reversed": true,
	"enumerate": true, "zip": true, "map": true, "filter": true, "type": true,
	"isinstance": true, "any": true, "all": true, "repr": true, "input": true,
	"open": true,
}

// LaTeX renders an algebraic expression the way a computer algebra system
// typesets it: fractions, powers, \sqrt, named functions, Greek letters and
// subscripts.
//
// Description:
//
//	text is parsed as a single expression. Attribute access, subscripts,
//	strings, boolean operators, chained comparisons and calls to
//	non-mathematical builtins are not algebraic.
//
// Outputs:
//
//	string - The LaTeX source, e.g. "\frac{a}{b}".
//	bool - False when text is not an algebraic expression.
func LaTeX(ctx context.Context, text string) (string, bool) {
	tree, root, err := ast.ParseExpression(ctx, text)
	if err != nil {
		return "", false
	}
	defer tree.Close()
	r := texRenderer{src: tree.Source()}
	t, ok := r.render(root)
	if !ok {
		return "", false
	}
	return t.s, true
}

type texRenderer struct {
	src []byte
}

func (r texRenderer) render(n *sitter.Node) (term, bool) {
	if n == nil {
		return term{}, false
	}
	switch n.Type() {
	case nodeParenthesizedExpression:
		inner := ast.Unparen(n)
		if inner == n {
			return term{}, false
		}
		return r.render(inner)

	case nodeInteger:
		v, err := strconv.ParseInt(strings.ReplaceAll(ast.Text(r.src, n), "_", ""), 0, 64)
		if err != nil {
			return term{}, false
		}
		return term{s: strconv.FormatInt(v, 10), prec: texAtom, num: true}, true

	case nodeFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(ast.Text(r.src, n), "_", ""), 64)
		if err != nil {
			return term{}, false
		}
		return floatTerm(f), true

	case nodeIdentifier:
		return term{s: symbolName(ast.Text(r.src, n)), prec: texAtom}, true

	case nodeUnaryOperator:
		arg, ok := r.render(n.ChildByFieldName("argument"))
		if !ok {
			return term{}, false
		}
		switch ast.Text(r.src, n.ChildByFieldName("operator")) {
		case "-":
			if arg.num {
				return term{s: "-" + arg.s, prec: texNeg, num: true}, true
			}
			return term{s: "- " + factor(arg), prec: texNeg}, true
		case "+":
			return arg, true
		}
		return term{}, false

	case nodeBinaryOperator:
		return r.binary(n)

	case nodeComparisonOperator:
		operands, ops, ok := ast.Comparison(r.src, n)
		if !ok || len(ops) != 1 {
			return term{}, false
		}
		rel, ok := relations[ops[0]]
		if !ok {
			return term{}, false
		}
		left, ok := r.render(operands[0])
		if !ok {
			return term{}, false
		}
		right, ok := r.render(operands[1])
		if !ok {
			return term{}, false
		}
		return term{s: left.s + " " + rel + " " + right.s, prec: texRel}, true

	case nodeCall:
		return r.call(n)
	}
	return term{}, false
}

var relations = map[string]string{
	"<": "<", ">": ">", "<=": `\leq`, ">=": `\geq`, "==": "=", "!=": `\neq`,
}

func (r texRenderer) binary(n *sitter.Node) (term, bool) {
	left, ok := r.render(n.ChildByFieldName("left"))
	if !ok {
		return term{}, false
	}
	right, ok := r.render(n.ChildByFieldName("right"))
	if !ok {
		return term{}, false
	}
	switch ast.Text(r.src, n.ChildByFieldName("operator")) {
	case "+":
		if right.prec == texNeg {
			return term{s: wrap(left, texAdd) + " - " + strings.TrimLeft(strings.TrimPrefix(right.s, "-"), " "), prec: texAdd}, true
		}
		return term{s: left.s + " + " + right.s, prec: texAdd}, true
	case "-":
		return term{s: left.s + " - " + factor(right), prec: texAdd}, true
	case "*":
		// Numeric coefficients lead, as in 2 a.
		if right.num && !left.num && left.prec >= texMul && left.prec != texNeg {
			left, right = right, left
		}
		sep := " "
		if left.num && (right.num || startsWithDigit(right.s)) {
			sep = ` \cdot `
		}
		return term{s: wrap(left, texMul) + sep + factor(right), prec: texMul}, true
	case "/":
		return term{s: `\frac{` + left.s + "}{" + right.s + "}", prec: texMul}, true
	case "//":
		return term{s: `\left\lfloor{\frac{` + left.s + "}{" + right.s + `}}\right\rfloor`, prec: texAtom}, true
	case "%":
		return term{s: wrap(left, texMul) + ` \bmod ` + factor(right), prec: texMul}, true
	case "**":
		if r.isHalf(n.ChildByFieldName("right")) {
			return term{s: `\sqrt{` + left.s + "}", prec: texAtom}, true
		}
		if left.fn != "" {
			return term{s: left.fn + "^{" + right.s + "}" + left.arg, prec: texPow}, true
		}
		return term{s: wrap(left, texAtom) + "^{" + right.s + "}", prec: texPow}, true
	}
	return term{}, false
}

// isHalf reports whether n is the literal 1/2 or 0.5.
func (r texRenderer) isHalf(n *sitter.Node) bool {
	n = ast.Unparen(n)
	if n == nil {
		return false
	}
	switch n.Type() {
	case nodeFloat:
		return ast.Text(r.src, n) == "0.5"
	case nodeBinaryOperator:
		l := ast.Unparen(n.ChildByFieldName("left"))
		rt := ast.Unparen(n.ChildByFieldName("right"))
		return ast.Text(r.src, n.ChildByFieldName("operator")) == "/" &&
			l != nil && l.Type() == nodeInteger && ast.Text(r.src, l) == "1" &&
			rt != nil && rt.Type() == nodeInteger && ast.Text(r.src, rt) == "2"
	}
	return false
}

func (r texRenderer) call(n *sitter.Node) (term, bool) {
	fnNode := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	if fnNode == nil || fnNode.Type() != nodeIdentifier || argsNode == nil || argsNode.Type() != nodeArgumentList {
		return term{}, false
	}
	name := ast.Text(r.src, fnNode)
	if notAlgebraic[name] {
		return term{}, false
	}
	var args []string
	for _, a := range ast.NamedChildren(argsNode) {
		t, ok := r.render(a)
		if !ok {
			return term{}, false
		}
		args = append(args, t.s)
	}
	if len(args) == 0 {
		return term{}, false
	}
	joined := strings.Join(args, ", ")
	one := len(args) == 1

	switch {
	case name == "sqrt" && one:
		return term{s: `\sqrt{` + joined + "}", prec: texAtom}, true
	case name == "exp" && one:
		return term{s: "e^{" + joined + "}", prec: texPow}, true
	case (name == "abs" || name == "Abs") && one:
		return term{s: `\left|{` + joined + `}\right|`, prec: texAtom}, true
	case name == "floor" && one:
		return term{s: `\left\lfloor{` + joined + `}\right\rfloor`, prec: texAtom}, true
	case (name == "ceil" || name == "ceiling") && one:
		return term{s: `\left\lceil{` + joined + `}\right\rceil`, prec: texAtom}, true
	case name == "factorial" && one:
		return term{s: joined + "!", prec: texAtom}, true
	case name == "log" && len(args) == 2:
		return term{s: `\frac{\log{\left(` + args[0] + ` \right)}}{\log{\left(` + args[1] + ` \right)}}`, prec: texMul}, true
	case name == "min" || name == "Min":
		return term{s: `\min\left(` + joined + `\right)`, prec: texAtom}, true
	case name == "max" || name == "Max":
		return term{s: `\max\left(` + joined + `\right)`, prec: texAtom}, true
	}

	arg := `{\left(` + joined + ` \right)}`
	head, ok := operatorNames[name]
	if !ok || !one {
		head = symbolName(name)
		if len([]rune(name)) > 1 && !greek[name] {
			head = `\operatorname{` + escapeName(name) + "}"
		}
	}
	return term{s: head + arg, prec: texAtom, fn: head, arg: arg}, true
}

// symbolName typesets an identifier: Greek letters become commands and a
// trailing digit run or underscore part becomes a subscript.
func symbolName(name string) string {
	if s, ok := specialNames[name]; ok {
		return s
	}
	parts := strings.Split(name, "_")
	if len(parts) > 1 && parts[0] != "" {
		subs := make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			if p != "" {
				subs = append(subs, letter(p))
			}
		}
		if len(subs) == 0 {
			return letter(parts[0])
		}
		return letter(parts[0]) + "_{" + strings.Join(subs, " ") + "}"
	}
	base := strings.TrimRightFunc(name, unicode.IsDigit)
	if base != "" && base != name {
		return letter(base) + "_{" + name[len(base):] + "}"
	}
	return letter(name)
}

func letter(s string) string {
	if greek[s] {
		return `\` + s
	}
	return escapeName(s)
}

func escapeName(s string) string {
	return strings.ReplaceAll(s, "_", `\_`)
}

func floatTerm(f float64) term {
	if math.IsInf(f, 0) {
		return term{s: `\infty`, prec: texAtom}
	}
	a := math.Abs(f)
	if a == 0 || (a >= 1e-4 && a < 1e16) {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return term{s: s, prec: texAtom, num: true}
	}
	exp := int(math.Floor(math.Log10(a)))
	mant := strconv.FormatFloat(f/math.Pow(10, float64(exp)), 'f', -1, 64)
	return term{s: mant + ` \cdot 10^{` + strconv.Itoa(exp) + "}", prec: texMul, num: true}
}

// wrap parenthesizes t when it binds looser than p.
func wrap(t term, p int) string {
	if t.prec < p {
		return `\left(` + t.s + `\right)`
	}
	return t.s
}

// factor renders t as the right operand of a product or difference, where
// sums and negations need parentheses.
func factor(t term) string {
	if t.prec < texMul || t.prec == texNeg {
		return `\left(` + t.s + `\right)`
	}
	return t.s
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
