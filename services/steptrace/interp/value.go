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
	"math"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// Value model
// =============================================================================

// Value is any script-level value.
//
// The set of implementations is closed: every concrete type lives in this
// package. Consumers such as the snapshot sanitizer and the serializer
// switch over the concrete types.
type Value interface {
	// TypeName returns the script-visible type name, e.g. "int" or "list".
	TypeName() string
}

// NoneType is the type of None.
type NoneType struct{}

// None is the single None value.
var None Value = NoneType{}

// Bool is a script boolean.
type Bool bool

// Int is a script integer. Arithmetic that leaves the int64 range raises
// OverflowError.
type Int int64

// Float is a script float.
type Float float64

// Str is a script string.
type Str string

// List is a mutable sequence.
type List struct {
	Elems []Value
}

// Tuple is an immutable sequence.
type Tuple struct {
	Elems []Value
}

// Range is a lazy arithmetic progression.
type Range struct {
	Start, Stop, Step int64
}

// Slice is the value of a slice expression such as a[1:3].
type Slice struct {
	Start, Stop, Step Value
}

// Function is a user-defined function or lambda.
type Function struct {
	Name     string
	Params   []Param
	Body     *sitter.Node
	IsLambda bool
	Unit     *Unit
	Globals  map[string]Value
	Closure  *Frame
	Line     int
}

// ParamKind distinguishes positional, variadic and keyword-only parameters.
type ParamKind int

const (
	ParamPositional ParamKind = iota
	ParamVarArgs
	ParamKeywordOnly
	ParamVarKeywords
)

// Param is one formal parameter of a Function.
type Param struct {
	Name       string
	Kind       ParamKind
	Default    Value
	HasDefault bool
}

// Kwarg is one keyword argument at a call site.
type Kwarg struct {
	Name  string
	Value Value
}

// BuiltinFunc is the Go signature of every native callable.
type BuiltinFunc func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error)

// Builtin is a native function such as len or np.zeros.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
}

// BoundMethod is a native method bound to its receiver.
type BoundMethod struct {
	Recv Value
	Name string
	Fn   BuiltinFunc
}

// Module is a namespace such as np or math.
type Module struct {
	Name  string
	Attrs map[string]Value
}

// TypeObject is a callable type such as int or list.
type TypeObject struct {
	Name string
	Call BuiltinFunc
}

func (NoneType) TypeName() string     { return "NoneType" }
func (Bool) TypeName() string         { return "bool" }
func (Int) TypeName() string          { return "int" }
func (Float) TypeName() string        { return "float" }
func (Str) TypeName() string          { return "str" }
func (*List) TypeName() string        { return "list" }
func (*Tuple) TypeName() string       { return "tuple" }
func (*Range) TypeName() string       { return "range" }
func (*Slice) TypeName() string       { return "slice" }
func (*Function) TypeName() string    { return "function" }
func (*Builtin) TypeName() string     { return "builtin_function_or_method" }
func (*BoundMethod) TypeName() string { return "builtin_function_or_method" }
func (*Module) TypeName() string      { return "module" }
func (*TypeObject) TypeName() string  { return "type" }

// Len returns the number of elements in r.
func (r *Range) Len() int64 {
	if r.Step > 0 && r.Start < r.Stop {
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Step < 0 && r.Start > r.Stop {
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

// At returns the i-th element of r. i must be in range.
func (r *Range) At(i int64) int64 {
	return r.Start + i*r.Step
}

// =============================================================================
// Dict
// =============================================================================

// Dict is an insertion-ordered mapping.
type Dict struct {
	keys  []Value
	vals  []Value
	index map[string]int
}

// DictEntry is one key/value pair of a Dict.
type DictEntry struct {
	Key   Value
	Value Value
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{index: make(map[string]int)}
}

func (*Dict) TypeName() string { return "dict" }

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// Get looks up k. The error is a TypeError for unhashable keys.
func (d *Dict) Get(k Value) (Value, bool, error) {
	hk, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[hk]
	if !ok {
		return nil, false, nil
	}
	return d.vals[i], true, nil
}

// Set inserts or replaces k.
func (d *Dict) Set(k, v Value) error {
	hk, err := hashKey(k)
	if err != nil {
		return err
	}
	if i, ok := d.index[hk]; ok {
		d.vals[i] = v
		return nil
	}
	d.index[hk] = len(d.keys)
	d.keys = append(d.keys, k)
	d.vals = append(d.vals, v)
	return nil
}

// Delete removes k and reports whether it was present.
func (d *Dict) Delete(k Value) (bool, error) {
	hk, err := hashKey(k)
	if err != nil {
		return false, err
	}
	i, ok := d.index[hk]
	if !ok {
		return false, nil
	}
	d.keys = append(d.keys[:i], d.keys[i+1:]...)
	d.vals = append(d.vals[:i], d.vals[i+1:]...)
	delete(d.index, hk)
	for j := i; j < len(d.keys); j++ {
		jk, _ := hashKey(d.keys[j])
		d.index[jk] = j
	}
	return true, nil
}

// Clear removes all entries.
func (d *Dict) Clear() {
	d.keys = nil
	d.vals = nil
	d.index = make(map[string]int)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []Value {
	return append([]Value(nil), d.keys...)
}

// Values returns the values in insertion order.
func (d *Dict) Values() []Value {
	return append([]Value(nil), d.vals...)
}

// Entries returns the entries in insertion order.
func (d *Dict) Entries() []DictEntry {
	out := make([]DictEntry, len(d.keys))
	for i := range d.keys {
		out[i] = DictEntry{Key: d.keys[i], Value: d.vals[i]}
	}
	return out
}

// hashKey maps a hashable value to a string so that values equal under
// script semantics (1, 1.0, True) share a key.
func hashKey(v Value) (string, error) {
	switch x := v.(type) {
	case NoneType:
		return "n", nil
	case Bool:
		if x {
			return "i1", nil
		}
		return "i0", nil
	case Int:
		return "i" + strconv.FormatInt(int64(x), 10), nil
	case Float:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return "i" + strconv.FormatInt(int64(f), 10), nil
		}
		return "f" + strconv.FormatFloat(f, 'g', -1, 64), nil
	case Str:
		return "s" + strconv.Itoa(len(x)) + ":" + string(x), nil
	case *Tuple:
		var b strings.Builder
		b.WriteString("t(")
		for _, e := range x.Elems {
			k, err := hashKey(e)
			if err != nil {
				return "", err
			}
			b.WriteString(strconv.Itoa(len(k)))
			b.WriteByte(':')
			b.WriteString(k)
		}
		b.WriteByte(')')
		return b.String(), nil
	case *Symbol:
		return "y" + x.Expr, nil
	case *ExceptionClass, *TypeObject, *Function, *Builtin, *Module:
		return fmt.Sprintf("p%p", x), nil
	}
	return "", newError(excTypeError, "unhashable type: '%s'", v.TypeName())
}

// =============================================================================
// Predicates
// =============================================================================

// IsCallable reports whether v can be called.
func IsCallable(v Value) bool {
	switch v.(type) {
	case *Function, *Builtin, *BoundMethod, *TypeObject, *ExceptionClass, *Layer:
		return true
	}
	return false
}

// IsModule reports whether v is a module.
func IsModule(v Value) bool {
	_, ok := v.(*Module)
	return ok
}

// Truthy returns the truth value of v.
func Truthy(v Value) (bool, error) {
	switch x := v.(type) {
	case NoneType:
		return false, nil
	case Bool:
		return bool(x), nil
	case Int:
		return x != 0, nil
	case Float:
		return x != 0, nil
	case Str:
		return x != "", nil
	case *List:
		return len(x.Elems) > 0, nil
	case *Tuple:
		return len(x.Elems) > 0, nil
	case *Dict:
		return x.Len() > 0, nil
	case *Range:
		return x.Len() > 0, nil
	case *NDArray:
		return x.truth()
	case *Tensor:
		return x.Array.truth()
	}
	return true, nil
}

// asFloat converts int-like and float values.
func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	case Int:
		return float64(x), true
	case Float:
		return float64(x), true
	}
	return 0, false
}

// asInt converts bool and int values.
func asInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	case Int:
		return int64(x), true
	}
	return 0, false
}

// =============================================================================
// Repr / Str
// =============================================================================

// Repr returns the script repr of v. Self-referencing containers print as
// [...] like the reference language does.
func Repr(v Value) string {
	var b strings.Builder
	writeRepr(&b, v, map[any]bool{})
	return b.String()
}

// StrOf returns str(v).
func StrOf(v Value) string {
	switch x := v.(type) {
	case Str:
		return string(x)
	case *Exception:
		return x.Msg
	case *NDArray:
		return x.str()
	}
	return Repr(v)
}

func writeRepr(b *strings.Builder, v Value, seen map[any]bool) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case NoneType:
		b.WriteString("None")
	case Bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case Int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		b.WriteString(FormatFloat(float64(x)))
	case Str:
		b.WriteString(quoteStr(string(x)))
	case *List:
		if seen[x] {
			b.WriteString("[...]")
			return
		}
		seen[x] = true
		b.WriteByte('[')
		writeElems(b, x.Elems, seen)
		b.WriteByte(']')
		delete(seen, x)
	case *Tuple:
		if seen[x] {
			b.WriteString("(...)")
			return
		}
		seen[x] = true
		b.WriteByte('(')
		writeElems(b, x.Elems, seen)
		if len(x.Elems) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
		delete(seen, x)
	case *Dict:
		if seen[x] {
			b.WriteString("{...}")
			return
		}
		seen[x] = true
		b.WriteByte('{')
		for i := range x.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, x.keys[i], seen)
			b.WriteString(": ")
			writeRepr(b, x.vals[i], seen)
		}
		b.WriteByte('}')
		delete(seen, x)
	case *Range:
		if x.Step == 1 {
			fmt.Fprintf(b, "range(%d, %d)", x.Start, x.Stop)
		} else {
			fmt.Fprintf(b, "range(%d, %d, %d)", x.Start, x.Stop, x.Step)
		}
	case *Slice:
		fmt.Fprintf(b, "slice(%s, %s, %s)", Repr(x.Start), Repr(x.Stop), Repr(x.Step))
	case *Function:
		fmt.Fprintf(b, "<function %s>", x.Name)
	case *Builtin:
		fmt.Fprintf(b, "<built-in function %s>", x.Name)
	case *BoundMethod:
		fmt.Fprintf(b, "<built-in method %s of %s object>", x.Name, x.Recv.TypeName())
	case *Module:
		fmt.Fprintf(b, "<module '%s'>", x.Name)
	case *TypeObject:
		fmt.Fprintf(b, "<class '%s'>", x.Name)
	case *ExceptionClass:
		fmt.Fprintf(b, "<class '%s'>", x.Name)
	case *Exception:
		b.WriteString(x.Class.Name)
		b.WriteByte('(')
		writeElems(b, x.Args, seen)
		b.WriteByte(')')
	case *NDArray:
		b.WriteString(x.repr())
	case *Tensor:
		b.WriteString(x.repr())
	case *Symbol:
		b.WriteString(x.Expr)
	case *Layer:
		b.WriteString(x.repr())
	default:
		fmt.Fprintf(b, "<%s object>", v.TypeName())
	}
}

func writeElems(b *strings.Builder, elems []Value, seen map[any]bool) {
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		writeRepr(b, e, seen)
	}
}

// FormatFloat formats f the way the reference language's repr does:
// shortest round-trip digits, a trailing ".0" for integral values, and
// scientific notation outside [1e-4, 1e16).
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	abs := math.Abs(f)
	if abs >= 1e16 || abs < 1e-4 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		digits := strings.TrimLeft(exp[1:], "0")
		if len(digits) < 2 {
			digits = strings.Repeat("0", 2-len(digits)) + digits
		}
		return mant + "e" + string(sign) + digits
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// quoteStr renders s with the reference language's quoting rules: single
// quotes unless s contains a single quote and no double quote.
func quoteStr(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}

// sortedKeys returns the keys of m in order. Used for deterministic output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
