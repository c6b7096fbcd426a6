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
	"math"
	"math/bits"
	"strings"
)

// =============================================================================
// Binary operators
// =============================================================================

// binary applies an arithmetic or bitwise operator.
func (in *Interpreter) binary(op string, a, b Value) (Value, error) {
	// Arrays, tensors and symbols take precedence over scalars on either side.
	switch a.(type) {
	case *Tensor:
		return tensorBinary(op, a, b)
	case *NDArray:
		if _, ok := b.(*Tensor); ok {
			return tensorBinary(op, a, b)
		}
		return in.arrayBinary(op, a, b)
	case *Symbol:
		return symbolBinary(op, a, b)
	}
	switch b.(type) {
	case *Tensor:
		return tensorBinary(op, a, b)
	case *NDArray:
		return in.arrayBinary(op, a, b)
	case *Symbol:
		return symbolBinary(op, a, b)
	}

	if x, ok := asInt(a); ok {
		if y, ok := asInt(b); ok {
			if _, isBool := a.(Bool); isBool && (op == "&" || op == "|" || op == "^") {
				if _, isBool := b.(Bool); isBool {
					return boolBitwise(op, x, y), nil
				}
			}
			return intBinary(op, x, y)
		}
	}
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			return floatBinary(op, x, y)
		}
	}

	switch op {
	case "+":
		switch x := a.(type) {
		case Str:
			if y, ok := b.(Str); ok {
				return x + y, nil
			}
		case *List:
			if y, ok := b.(*List); ok {
				out := make([]Value, 0, len(x.Elems)+len(y.Elems))
				return &List{Elems: append(append(out, x.Elems...), y.Elems...)}, nil
			}
		case *Tuple:
			if y, ok := b.(*Tuple); ok {
				out := make([]Value, 0, len(x.Elems)+len(y.Elems))
				return &Tuple{Elems: append(append(out, x.Elems...), y.Elems...)}, nil
			}
		}
	case "*":
		if n, ok := asInt(b); ok {
			return in.repeat(a, n)
		}
		if n, ok := asInt(a); ok {
			return in.repeat(b, n)
		}
	case "%":
		if s, ok := a.(Str); ok {
			out, err := percentFormat(string(s), b)
			if err != nil {
				return nil, err
			}
			return Str(out), nil
		}
	}
	return nil, newError(excTypeError, "unsupported operand type(s) for %s: '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

// repeat implements sequence * n, bounded by the allocation budget.
func (in *Interpreter) repeat(seq Value, n int64) (Value, error) {
	if n < 0 {
		n = 0
	}
	switch s := seq.(type) {
	case Str:
		if err := in.checkAlloc(int(n) * len(s)); err != nil {
			return nil, err
		}
		return Str(strings.Repeat(string(s), int(n))), nil
	case *List:
		if err := in.checkAlloc(int(n) * len(s.Elems)); err != nil {
			return nil, err
		}
		out := make([]Value, 0, int(n)*len(s.Elems))
		for i := int64(0); i < n; i++ {
			out = append(out, s.Elems...)
		}
		return &List{Elems: out}, nil
	case *Tuple:
		if err := in.checkAlloc(int(n) * len(s.Elems)); err != nil {
			return nil, err
		}
		out := make([]Value, 0, int(n)*len(s.Elems))
		for i := int64(0); i < n; i++ {
			out = append(out, s.Elems...)
		}
		return &Tuple{Elems: out}, nil
	}
	return nil, newError(excTypeError, "can't multiply sequence by non-int of type '%s'", seq.TypeName())
}

func boolBitwise(op string, x, y int64) Value {
	switch op {
	case "&":
		return Bool(x&y != 0)
	case "|":
		return Bool(x|y != 0)
	}
	return Bool(x^y != 0)
}

var errIntOverflow = func() *Exception {
	return newError(excOverflowError, "integer overflow (values are limited to 64 bits)")
}

// intBinary applies op to two ints with overflow detection.
func intBinary(op string, x, y int64) (Value, error) {
	switch op {
	case "+":
		s := x + y
		if (s > x) != (y > 0) {
			return nil, errIntOverflow()
		}
		return Int(s), nil
	case "-":
		s := x - y
		if (s < x) != (y > 0) {
			return nil, errIntOverflow()
		}
		return Int(s), nil
	case "*":
		if x == 0 || y == 0 {
			return Int(0), nil
		}
		hi, lo := bits.Mul64(uint64(absInt(x)), uint64(absInt(y)))
		if hi != 0 || lo > math.MaxInt64 || x == math.MinInt64 || y == math.MinInt64 {
			return nil, errIntOverflow()
		}
		r := int64(lo)
		if (x < 0) != (y < 0) {
			r = -r
		}
		return Int(r), nil
	case "/":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "division by zero")
		}
		return Float(float64(x) / float64(y)), nil
	case "//":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "integer division or modulo by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return nil, errIntOverflow()
		}
		return Int(floorDiv(x, y)), nil
	case "%":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "integer modulo by zero")
		}
		return Int(x - floorDiv(x, y)*y), nil
	case "**":
		if y < 0 {
			if x == 0 {
				return nil, newError(excZeroDivisionError, "0.0 cannot be raised to a negative power")
			}
			return Float(math.Pow(float64(x), float64(y))), nil
		}
		return intPow(x, y)
	case "&":
		return Int(x & y), nil
	case "|":
		return Int(x | y), nil
	case "^":
		return Int(x ^ y), nil
	case "<<":
		if y < 0 {
			return nil, newError(excValueError, "negative shift count")
		}
		if y >= 63 || (x != 0 && bits.Len64(uint64(absInt(x)))+int(y) > 63) {
			return nil, errIntOverflow()
		}
		return Int(x << uint(y)), nil
	case ">>":
		if y < 0 {
			return nil, newError(excValueError, "negative shift count")
		}
		if y >= 63 {
			if x < 0 {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		return Int(x >> uint(y)), nil
	case "@":
		return nil, newError(excTypeError, "unsupported operand type(s) for @: 'int' and 'int'")
	}
	return nil, newError(excTypeError, "unsupported operator %s", op)
}

func absInt(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func intPow(base, exp int64) (Value, error) {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			r, err := intBinary("*", result, base)
			if err != nil {
				return nil, err
			}
			result = int64(r.(Int))
		}
		exp >>= 1
		if exp > 0 {
			b, err := intBinary("*", base, base)
			if err != nil {
				return nil, err
			}
			base = int64(b.(Int))
		}
	}
	return Int(result), nil
}

// floatBinary applies op to two floats.
func floatBinary(op string, x, y float64) (Value, error) {
	switch op {
	case "+":
		return Float(x + y), nil
	case "-":
		return Float(x - y), nil
	case "*":
		return Float(x * y), nil
	case "/":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "float division by zero")
		}
		return Float(x / y), nil
	case "//":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "float floor division by zero")
		}
		return Float(math.Floor(x / y)), nil
	case "%":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "float modulo")
		}
		return Float(pyMod(x, y)), nil
	case "**":
		if x == 0 && y < 0 {
			return nil, newError(excZeroDivisionError, "0.0 cannot be raised to a negative power")
		}
		r := math.Pow(x, y)
		if math.IsNaN(r) && x < 0 {
			return nil, newError(excValueError, "math domain error")
		}
		if math.IsInf(r, 0) && !math.IsInf(x, 0) {
			return nil, newError(excOverflowError, "(34, 'Numerical result out of range')")
		}
		return Float(r), nil
	}
	return nil, newError(excTypeError, "unsupported operand type(s) for %s: 'float' and 'float'", op)
}

// pyMod is modulo with the sign of the divisor.
func pyMod(x, y float64) float64 {
	m := math.Mod(x, y)
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m
}

// =============================================================================
// Unary operators
// =============================================================================

func unary(op string, v Value) (Value, error) {
	switch x := v.(type) {
	case *NDArray:
		return x.unary(op)
	case *Tensor:
		arr, err := x.Array.unary(op)
		if err != nil {
			return nil, err
		}
		return x.wrap(arr), nil
	case *Symbol:
		return symbolUnary(op, x)
	}
	switch op {
	case "-":
		if n, ok := asInt(v); ok {
			if n == math.MinInt64 {
				return nil, errIntOverflow()
			}
			return Int(-n), nil
		}
		if f, ok := v.(Float); ok {
			return -f, nil
		}
	case "+":
		if n, ok := asInt(v); ok {
			return Int(n), nil
		}
		if f, ok := v.(Float); ok {
			return f, nil
		}
	case "~":
		if n, ok := asInt(v); ok {
			return Int(^n), nil
		}
	}
	return nil, newError(excTypeError, "bad operand type for unary %s: '%s'", op, v.TypeName())
}

// =============================================================================
// Comparisons
// =============================================================================

// compare applies one comparison operator.
func (in *Interpreter) compare(op string, a, b Value) (Value, error) {
	switch op {
	case "in", "not in":
		ok, err := in.contains(b, a)
		if err != nil {
			return nil, err
		}
		if op == "not in" {
			ok = !ok
		}
		return Bool(ok), nil
	case "is":
		return Bool(identical(a, b)), nil
	case "is not":
		return Bool(!identical(a, b)), nil
	}

	_, aArr := a.(*NDArray)
	_, bArr := b.(*NDArray)
	_, aTen := a.(*Tensor)
	_, bTen := b.(*Tensor)
	if aArr || bArr || aTen || bTen {
		return arrayCompare(op, a, b)
	}
	if _, ok := a.(*Symbol); ok {
		return symbolCompare(op, a, b)
	}
	if _, ok := b.(*Symbol); ok {
		return symbolCompare(op, a, b)
	}

	switch op {
	case "==":
		return Bool(Equal(a, b)), nil
	case "!=", "<>":
		return Bool(!Equal(a, b)), nil
	}
	c, err := order(op, a, b)
	if err != nil {
		return nil, err
	}
	switch op {
	case "<":
		return Bool(c < 0), nil
	case "<=":
		return Bool(c <= 0), nil
	case ">":
		return Bool(c > 0), nil
	case ">=":
		return Bool(c >= 0), nil
	}
	return nil, newError(excTypeError, "unsupported comparison %s", op)
}

// identical implements "is": value identity for immutable scalars,
// reference identity for everything else.
func identical(a, b Value) bool {
	switch x := a.(type) {
	case NoneType:
		_, ok := b.(NoneType)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && x == y
	case Str:
		y, ok := b.(Str)
		return ok && x == y
	}
	return a == b
}

// Equal implements == for non-array values.
func Equal(a, b Value) bool {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			if xi, ok := asInt(a); ok {
				if yi, ok := asInt(b); ok {
					return xi == yi
				}
			}
			return x == y
		}
		return false
	}
	switch x := a.(type) {
	case NoneType:
		_, ok := b.(NoneType)
		return ok
	case Str:
		y, ok := b.(Str)
		return ok && x == y
	case *List:
		y, ok := b.(*List)
		return ok && (x == y || elemsEqual(x.Elems, y.Elems))
	case *Tuple:
		y, ok := b.(*Tuple)
		return ok && (x == y || elemsEqual(x.Elems, y.Elems))
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false
		}
		if x == y {
			return true
		}
		for _, e := range x.Entries() {
			v, found, err := y.Get(e.Key)
			if err != nil || !found || !Equal(e.Value, v) {
				return false
			}
		}
		return true
	case *Range:
		y, ok := b.(*Range)
		return ok && x.Len() == y.Len() && (x.Len() == 0 || (x.Start == y.Start && (x.Len() == 1 || x.Step == y.Step)))
	case *Symbol:
		y, ok := b.(*Symbol)
		return ok && x.Expr == y.Expr
	}
	return identical(a, b)
}

func elemsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// order returns -1, 0 or 1, or TypeError for unorderable operands.
func order(op string, a, b Value) (int, error) {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			if xi, ok := asInt(a); ok {
				if yi, ok := asInt(b); ok {
					return cmp3(xi < yi, xi > yi), nil
				}
			}
			return cmp3(x < y, x > y), nil
		}
	}
	switch x := a.(type) {
	case Str:
		if y, ok := b.(Str); ok {
			return strings.Compare(string(x), string(y)), nil
		}
	case *List:
		if y, ok := b.(*List); ok {
			return orderElems(op, x.Elems, y.Elems)
		}
	case *Tuple:
		if y, ok := b.(*Tuple); ok {
			return orderElems(op, x.Elems, y.Elems)
		}
	}
	return 0, newError(excTypeError, "'%s' not supported between instances of '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

func orderElems(op string, a, b []Value) (int, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if Equal(a[i], b[i]) {
			continue
		}
		return order(op, a[i], b[i])
	}
	return cmp3(len(a) < len(b), len(a) > len(b)), nil
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// contains implements "needle in haystack".
func (in *Interpreter) contains(haystack, needle Value) (bool, error) {
	switch h := haystack.(type) {
	case Str:
		n, ok := needle.(Str)
		if !ok {
			return false, newError(excTypeError, "'in <string>' requires string as left operand, not %s", needle.TypeName())
		}
		return strings.Contains(string(h), string(n)), nil
	case *Dict:
		_, found, err := h.Get(needle)
		return found, err
	case *Range:
		n, ok := asInt(needle)
		if !ok {
			return false, nil
		}
		if h.Len() == 0 {
			return false, nil
		}
		if h.Step > 0 && (n < h.Start || n >= h.Stop) {
			return false, nil
		}
		if h.Step < 0 && (n > h.Start || n <= h.Stop) {
			return false, nil
		}
		return (n-h.Start)%h.Step == 0, nil
	case *NDArray:
		f, ok := asFloat(needle)
		if !ok {
			return false, nil
		}
		for _, x := range h.Data {
			if x == f {
				return true, nil
			}
		}
		return false, nil
	}
	elems, err := in.collect(haystack)
	if err != nil {
		return false, newError(excTypeError, "argument of type '%s' is not iterable", haystack.TypeName())
	}
	for _, e := range elems {
		if Equal(e, needle) {
			return true, nil
		}
	}
	return false, nil
}
