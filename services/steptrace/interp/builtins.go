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
	"strconv"
	"strings"
	"unicode/utf8"
)

// typeObjects holds the builtin type singletons so type(x) == int works by
// identity. Populated in init to keep constructor references out of the
// package initialization graph.
var typeObjects map[string]*TypeObject

func init() {
	typeObjects = map[string]*TypeObject{
		"int":      {Name: "int", Call: builtinInt},
		"float":    {Name: "float", Call: builtinFloat},
		"str":      {Name: "str", Call: builtinStr},
		"bool":     {Name: "bool", Call: builtinBool},
		"list":     {Name: "list", Call: builtinList},
		"tuple":    {Name: "tuple", Call: builtinTuple},
		"dict":     {Name: "dict", Call: builtinDict},
		"set":      {Name: "set", Call: builtinSet},
		"range":    {Name: "range", Call: builtinRange},
		"NoneType": {Name: "NoneType"},
		"function": {Name: "function"},
		"module":   {Name: "module"},
		"ndarray":  {Name: "ndarray"},
		"Tensor":   {Name: "Tensor"},
		"Symbol":   {Name: "Symbol"},
	}
}

// typeOf returns the type object for v.
func typeOf(v Value) Value {
	if e, ok := v.(*Exception); ok {
		return e.Class
	}
	if t, ok := typeObjects[v.TypeName()]; ok {
		return t
	}
	return &TypeObject{Name: v.TypeName()}
}

// newBuiltins returns the builtin namespace for one interpreter.
func newBuiltins() map[string]Value {
	b := map[string]Value{}
	add := func(name string, fn BuiltinFunc) {
		b[name] = &Builtin{Name: name, Fn: fn}
	}
	for name, t := range typeObjects {
		switch name {
		case "int", "float", "str", "bool", "list", "tuple", "dict", "set", "range":
			b[name] = t
		}
	}
	for _, c := range exceptionClasses {
		b[c.Name] = c
	}
	add("print", builtinPrint)
	add("len", builtinLen)
	add("abs", builtinAbs)
	add("round", builtinRound)
	add("sum", builtinSum)
	add("min", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		return in.extremum("min", -1, args, kwargs)
	})
	add("max", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		return in.extremum("max", 1, args, kwargs)
	})
	add("sorted", builtinSorted)
	add("reversed", builtinReversed)
	add("enumerate", builtinEnumerate)
	add("zip", builtinZip)
	add("map", builtinMap)
	add("filter", builtinFilter)
	add("any", builtinAny)
	add("all", builtinAll)
	add("pow", builtinPow)
	add("divmod", builtinDivmod)
	add("isinstance", builtinIsinstance)
	add("type", builtinType)
	add("repr", builtinRepr)
	add("format", builtinFormat)
	add("chr", builtinChr)
	add("ord", builtinOrd)
	add("callable", builtinCallable)
	add("hasattr", builtinHasattr)
	add("getattr", builtinGetattr)
	add("hash", builtinHash)
	add("input", func(*Interpreter, []Value, []Kwarg) (Value, error) {
		return nil, newError(excNotImplementedError, "input() is not available")
	})
	add("open", func(*Interpreter, []Value, []Kwarg) (Value, error) {
		return nil, newError(excNotImplementedError, "file access is not available")
	})
	return b
}

func builtinPrint(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	sep, end := " ", "\n"
	for _, kw := range kwargs {
		switch kw.Name {
		case "sep", "end":
			s := ""
			if v, ok := kw.Value.(Str); ok {
				s = string(v)
			} else if _, none := kw.Value.(NoneType); !none {
				return nil, newError(excTypeError, "%s must be None or a string, not %s", kw.Name, kw.Value.TypeName())
			} else if kw.Name == "sep" {
				s = " "
			} else {
				s = "\n"
			}
			if kw.Name == "sep" {
				sep = s
			} else {
				end = s
			}
		case "flush", "file":
		default:
			return nil, newError(excTypeError, "'%s' is an invalid keyword argument for print()", kw.Name)
		}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = StrOf(a)
	}
	in.stdout.WriteString(strings.Join(parts, sep) + end)
	return None, nil
}

func builtinLen(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("len", args, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case Str:
		return Int(utf8.RuneCountInString(string(x))), nil
	case *List:
		return Int(len(x.Elems)), nil
	case *Tuple:
		return Int(len(x.Elems)), nil
	case *Dict:
		return Int(x.Len()), nil
	case *Range:
		return Int(x.Len()), nil
	case *NDArray:
		if len(x.Shape) == 0 {
			return nil, newError(excTypeError, "len() of unsized object")
		}
		return Int(x.Shape[0]), nil
	case *Tensor:
		if len(x.Array.Shape) == 0 {
			return nil, newError(excTypeError, "len() of a 0-d tensor")
		}
		return Int(x.Array.Shape[0]), nil
	case *Layer:
		return Int(len(x.Children)), nil
	}
	return nil, newError(excTypeError, "object of type '%s' has no len()", args[0].TypeName())
}

func builtinAbs(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("abs", args, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case Bool, Int:
		n, _ := asInt(x)
		if n == math.MinInt64 {
			return nil, errIntOverflow()
		}
		return Int(absInt(n)), nil
	case Float:
		return Float(math.Abs(float64(x))), nil
	case *NDArray:
		return x.unary("abs")
	case *Tensor:
		a, err := x.Array.unary("abs")
		if err != nil {
			return nil, err
		}
		return x.wrap(a), nil
	case *Symbol:
		return symbolCall("Abs", x), nil
	}
	return nil, newError(excTypeError, "bad operand type for abs(): '%s'", args[0].TypeName())
}

func builtinRound(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("round", args, kwargs, "number", "ndigits?")
	if err != nil {
		return nil, err
	}
	v := spec.get(0)
	if a, ok := v.(*NDArray); ok {
		nd, err := spec.int(1, 0)
		if err != nil {
			return nil, err
		}
		return a.round(int(nd)), nil
	}
	if !spec.has(1) {
		if n, ok := asInt(v); ok {
			return Int(n), nil
		}
		f, ok := asFloat(v)
		if !ok {
			return nil, newError(excTypeError, "type %s doesn't define __round__ method", v.TypeName())
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, newError(excOverflowError, "cannot convert float infinity to integer")
		}
		return Int(int64(math.RoundToEven(f))), nil
	}
	nd, err := spec.int(1, 0)
	if err != nil {
		return nil, err
	}
	if n, ok := asInt(v); ok {
		if nd >= 0 {
			return Int(n), nil
		}
		p := math.Pow(10, float64(-nd))
		return Int(int64(math.RoundToEven(float64(n)/p) * p)), nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil, newError(excTypeError, "type %s doesn't define __round__ method", v.TypeName())
	}
	return Float(roundDigits(f, int(nd))), nil
}

// roundDigits rounds half to even at nd decimal digits.
func roundDigits(f float64, nd int) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if _, frac, ok := strings.Cut(s, "."); !ok || len(frac) <= nd {
		return f
	}
	p := math.Pow(10, float64(nd))
	r := math.RoundToEven(f*p) / p
	if parsed, err := strconv.ParseFloat(strconv.FormatFloat(r, 'f', nd, 64), 64); err == nil {
		return parsed
	}
	return r
}

func builtinSum(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("sum", args, kwargs, "iterable", "start?")
	if err != nil {
		return nil, err
	}
	if a, ok := spec.get(0).(*NDArray); ok && !spec.has(1) {
		return a.reduce("sum", nil)
	}
	elems, err := in.collect(spec.get(0))
	if err != nil {
		return nil, err
	}
	var acc Value = Int(0)
	if spec.has(1) {
		acc = spec.get(1)
	}
	if _, ok := acc.(Str); ok {
		return nil, newError(excTypeError, "sum() can't sum strings [use ''.join(seq) instead]")
	}
	for _, e := range elems {
		if acc, err = in.binary("+", acc, e); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// extremum implements min and max. sign is -1 for min, 1 for max.
func (in *Interpreter) extremum(name string, sign int, args []Value, kwargs []Kwarg) (Value, error) {
	var key, def Value
	for _, kw := range kwargs {
		switch kw.Name {
		case "key":
			key = kw.Value
		case "default":
			def = kw.Value
		default:
			return nil, newError(excTypeError, "'%s' is an invalid keyword argument for %s()", kw.Name, name)
		}
	}
	var elems []Value
	switch len(args) {
	case 0:
		return nil, newError(excTypeError, "%s expected at least 1 argument, got 0", name)
	case 1:
		if a, ok := args[0].(*NDArray); ok && key == nil {
			return a.reduce(name, nil)
		}
		var err error
		if elems, err = in.collect(args[0]); err != nil {
			return nil, err
		}
	default:
		elems = args
	}
	if len(elems) == 0 {
		if def != nil {
			return def, nil
		}
		return nil, newError(excValueError, "%s() arg is an empty sequence", name)
	}
	best := elems[0]
	bestKey := best
	if key != nil {
		k, err := in.Call(key, []Value{best}, nil)
		if err != nil {
			return nil, err
		}
		bestKey = k
	}
	for _, e := range elems[1:] {
		k := e
		if key != nil {
			var err error
			if k, err = in.Call(key, []Value{e}, nil); err != nil {
				return nil, err
			}
		}
		c, err := order("<", k, bestKey)
		if err != nil {
			return nil, err
		}
		if c*sign > 0 {
			best, bestKey = e, k
		}
	}
	return best, nil
}

func builtinSorted(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("sorted", args, kwargs, "iterable", "key?", "reverse?")
	if err != nil {
		return nil, err
	}
	elems, err := in.collect(spec.get(0))
	if err != nil {
		return nil, err
	}
	out, err := in.sortValues(elems, spec.get(1), spec.get(2))
	if err != nil {
		return nil, err
	}
	return &List{Elems: out}, nil
}

func builtinReversed(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("reversed", args, 1); err != nil {
		return nil, err
	}
	elems, err := in.collect(args[0])
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(elems)-1; i < j; i, j = i+1, j-1 {
		elems[i], elems[j] = elems[j], elems[i]
	}
	return &List{Elems: elems}, nil
}

func builtinEnumerate(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("enumerate", args, kwargs, "iterable", "start?")
	if err != nil {
		return nil, err
	}
	start, err := spec.int(1, 0)
	if err != nil {
		return nil, err
	}
	elems, err := in.collect(spec.get(0))
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = &Tuple{Elems: []Value{Int(start + int64(i)), e}}
	}
	return &List{Elems: out}, nil
}

func builtinZip(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := noKwargs("zip", kwargs); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return &List{}, nil
	}
	cols := make([][]Value, len(args))
	n := -1
	for i, a := range args {
		elems, err := in.collect(a)
		if err != nil {
			return nil, err
		}
		cols[i] = elems
		if n < 0 || len(elems) < n {
			n = len(elems)
		}
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		row := make([]Value, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		out[i] = &Tuple{Elems: row}
	}
	return &List{Elems: out}, nil
}

func builtinMap(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if len(args) < 2 {
		return nil, newError(excTypeError, "map() must have at least two arguments.")
	}
	zipped, err := builtinZip(in, args[1:], nil)
	if err != nil {
		return nil, err
	}
	rows := zipped.(*List).Elems
	out := make([]Value, len(rows))
	for i, r := range rows {
		v, err := in.Call(args[0], r.(*Tuple).Elems, nil)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return &List{Elems: out}, nil
}

func builtinFilter(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("filter", args, 2); err != nil {
		return nil, err
	}
	elems, err := in.collect(args[1])
	if err != nil {
		return nil, err
	}
	_, identity := args[0].(NoneType)
	var out []Value
	for _, e := range elems {
		test := e
		if !identity {
			if test, err = in.Call(args[0], []Value{e}, nil); err != nil {
				return nil, err
			}
		}
		ok, err := Truthy(test)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return &List{Elems: out}, nil
}

func builtinAny(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	return in.quantify("any", args, true)
}

func builtinAll(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	return in.quantify("all", args, false)
}

// quantify implements any (stopOn=true) and all (stopOn=false).
func (in *Interpreter) quantify(name string, args []Value, stopOn bool) (Value, error) {
	if err := exactArgs(name, args, 1); err != nil {
		return nil, err
	}
	elems, err := in.collect(args[0])
	if err != nil {
		return nil, err
	}
	for _, e := range elems {
		t, err := Truthy(e)
		if err != nil {
			return nil, err
		}
		if t == stopOn {
			return Bool(stopOn), nil
		}
	}
	return Bool(!stopOn), nil
}

func builtinPow(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("pow", args, kwargs, "base", "exp", "mod?")
	if err != nil {
		return nil, err
	}
	if !spec.has(2) {
		return in.binary("**", spec.get(0), spec.get(1))
	}
	b, ok1 := asInt(spec.get(0))
	e, ok2 := asInt(spec.get(1))
	m, ok3 := asInt(spec.get(2))
	if !ok1 || !ok2 || !ok3 {
		return nil, newError(excTypeError, "pow() 3rd argument not allowed unless all arguments are integers")
	}
	if m == 0 {
		return nil, newError(excValueError, "pow() 3rd argument cannot be 0")
	}
	if e < 0 {
		return nil, newError(excValueError, "base is not invertible for the given modulus")
	}
	result := int64(1) % m
	b = ((b % m) + m) % m
	for e > 0 {
		if e&1 == 1 {
			result = mulMod(result, b, m)
		}
		b = mulMod(b, b, m)
		e >>= 1
	}
	if result != 0 && (result < 0) != (m < 0) {
		result += m
	}
	return Int(result), nil
}

func mulMod(a, b, m int64) int64 {
	var r int64
	a %= m
	for b > 0 {
		if b&1 == 1 {
			r = (r + a) % m
		}
		a = (a * 2) % m
		b >>= 1
	}
	return r
}

func builtinDivmod(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("divmod", args, 2); err != nil {
		return nil, err
	}
	q, err := in.binary("//", args[0], args[1])
	if err != nil {
		return nil, err
	}
	r, err := in.binary("%", args[0], args[1])
	if err != nil {
		return nil, err
	}
	return &Tuple{Elems: []Value{q, r}}, nil
}

func builtinIsinstance(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("isinstance", args, 2); err != nil {
		return nil, err
	}
	return Bool(isInstance(args[0], args[1])), nil
}

func isInstance(v, spec Value) bool {
	switch t := spec.(type) {
	case *Tuple:
		for _, e := range t.Elems {
			if isInstance(v, e) {
				return true
			}
		}
		return false
	case *ExceptionClass:
		e, ok := v.(*Exception)
		return ok && e.Class.IsSubclass(t)
	case *TypeObject:
		name := v.TypeName()
		if name == t.Name {
			return true
		}
		return t.Name == "int" && name == "bool"
	}
	return false
}

func builtinType(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("type", args, 1); err != nil {
		return nil, err
	}
	return typeOf(args[0]), nil
}

func builtinRepr(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("repr", args, 1); err != nil {
		return nil, err
	}
	return Str(Repr(args[0])), nil
}

func builtinFormat(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("format", args, kwargs, "value", "format_spec?")
	if err != nil {
		return nil, err
	}
	fs, err := spec.str(1, "")
	if err != nil {
		return nil, err
	}
	out, err := formatValue(spec.get(0), fs)
	if err != nil {
		return nil, err
	}
	return Str(out), nil
}

func builtinChr(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("chr", args, 1); err != nil {
		return nil, err
	}
	n, ok := asInt(args[0])
	if !ok {
		return nil, newError(excTypeError, "an integer is required (got type %s)", args[0].TypeName())
	}
	if n < 0 || n > 0x10ffff {
		return nil, newError(excValueError, "chr() arg not in range(0x110000)")
	}
	return Str(string(rune(n))), nil
}

func builtinOrd(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("ord", args, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(Str)
	if !ok || utf8.RuneCountInString(string(s)) != 1 {
		return nil, newError(excTypeError, "ord() expected a character")
	}
	r, _ := utf8.DecodeRuneInString(string(s))
	return Int(r), nil
}

func builtinCallable(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("callable", args, 1); err != nil {
		return nil, err
	}
	return Bool(IsCallable(args[0])), nil
}

func builtinHasattr(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("hasattr", args, 2); err != nil {
		return nil, err
	}
	name, ok := args[1].(Str)
	if !ok {
		return nil, newError(excTypeError, "attribute name must be string")
	}
	_, err := in.getAttr(args[0], string(name))
	return Bool(err == nil), nil
}

func builtinGetattr(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, newError(excTypeError, "getattr expected 2 or 3 arguments, got %d", len(args))
	}
	name, ok := args[1].(Str)
	if !ok {
		return nil, newError(excTypeError, "attribute name must be string")
	}
	v, err := in.getAttr(args[0], string(name))
	if err != nil && len(args) == 3 {
		return args[2], nil
	}
	return v, err
}

func builtinHash(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("hash", args, 1); err != nil {
		return nil, err
	}
	k, err := hashKey(args[0])
	if err != nil {
		return nil, err
	}
	var h int64 = 1469598103934665603
	for i := 0; i < len(k); i++ {
		h ^= int64(k[i])
		h *= 1099511628211
	}
	return Int(h), nil
}

// =============================================================================
// Type constructors
// =============================================================================

func builtinInt(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("int", args, kwargs, "x?", "base?")
	if err != nil {
		return nil, err
	}
	if !spec.has(0) {
		return Int(0), nil
	}
	switch x := spec.get(0).(type) {
	case Bool, Int:
		n, _ := asInt(x)
		return Int(n), nil
	case Float:
		f := float64(x)
		if math.IsInf(f, 0) {
			return nil, newError(excOverflowError, "cannot convert float infinity to integer")
		}
		if math.IsNaN(f) {
			return nil, newError(excValueError, "cannot convert float NaN to integer")
		}
		if math.Abs(f) >= 1<<63 {
			return nil, errIntOverflow()
		}
		return Int(int64(f)), nil
	case Str:
		base, err := spec.int(1, 10)
		if err != nil {
			return nil, err
		}
		text := strings.ReplaceAll(strings.TrimSpace(string(x)), "_", "")
		n, perr := strconv.ParseInt(text, int(base), 64)
		if perr != nil {
			return nil, newError(excValueError, "invalid literal for int() with base %d: %s", base, quoteStr(string(x)))
		}
		return Int(n), nil
	case *NDArray:
		if x.Size() == 1 {
			return Int(int64(x.Data[0])), nil
		}
	case *Tensor:
		if x.Array.Size() == 1 {
			return Int(int64(x.Array.Data[0])), nil
		}
	}
	return nil, newError(excTypeError, "int() argument must be a string, a bytes-like object or a real number, not '%s'", spec.get(0).TypeName())
}

func builtinFloat(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("float", args, kwargs, "x?")
	if err != nil {
		return nil, err
	}
	if !spec.has(0) {
		return Float(0), nil
	}
	switch x := spec.get(0).(type) {
	case Str:
		text := strings.ToLower(strings.TrimSpace(string(x)))
		switch text {
		case "inf", "+inf", "infinity", "+infinity":
			return Float(math.Inf(1)), nil
		case "-inf", "-infinity":
			return Float(math.Inf(-1)), nil
		case "nan", "+nan", "-nan":
			return Float(math.NaN()), nil
		}
		f, perr := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
		if perr != nil {
			return nil, newError(excValueError, "could not convert string to float: %s", quoteStr(string(x)))
		}
		return Float(f), nil
	case *NDArray:
		if x.Size() == 1 {
			return Float(x.Data[0]), nil
		}
	case *Tensor:
		if x.Array.Size() == 1 {
			return Float(x.Array.Data[0]), nil
		}
	}
	if f, ok := asFloat(spec.get(0)); ok {
		return Float(f), nil
	}
	return nil, newError(excTypeError, "float() argument must be a string or a real number, not '%s'", spec.get(0).TypeName())
}

func builtinStr(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if len(args) == 0 {
		return Str(""), nil
	}
	if err := exactArgs("str", args, 1); err != nil {
		return nil, err
	}
	return Str(StrOf(args[0])), nil
}

func builtinBool(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if len(args) == 0 {
		return Bool(false), nil
	}
	if err := exactArgs("bool", args, 1); err != nil {
		return nil, err
	}
	t, err := Truthy(args[0])
	return Bool(t), err
}

func builtinList(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if len(args) == 0 {
		return &List{}, nil
	}
	if err := exactArgs("list", args, 1); err != nil {
		return nil, err
	}
	elems, err := in.collect(args[0])
	if err != nil {
		return nil, err
	}
	return &List{Elems: elems}, nil
}

func builtinTuple(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if len(args) == 0 {
		return &Tuple{}, nil
	}
	if err := exactArgs("tuple", args, 1); err != nil {
		return nil, err
	}
	elems, err := in.collect(args[0])
	if err != nil {
		return nil, err
	}
	return &Tuple{Elems: elems}, nil
}

func builtinSet(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	l, err := builtinList(in, args, kwargs)
	if err != nil {
		return nil, err
	}
	return &List{Elems: uniqueValues(l.(*List).Elems)}, nil
}

func builtinDict(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	d := NewDict()
	if len(args) > 1 {
		return nil, newError(excTypeError, "dict expected at most 1 argument, got %d", len(args))
	}
	if len(args) == 1 {
		if err := in.mergeInto(d, args[0]); err != nil {
			return nil, err
		}
	}
	for _, kw := range kwargs {
		if err := d.Set(Str(kw.Name), kw.Value); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func builtinRange(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := noKwargs("range", kwargs); err != nil {
		return nil, err
	}
	ints := make([]int64, len(args))
	for i, a := range args {
		n, ok := asInt(a)
		if !ok {
			return nil, newError(excTypeError, "'%s' object cannot be interpreted as an integer", a.TypeName())
		}
		ints[i] = n
	}
	switch len(ints) {
	case 1:
		return &Range{Start: 0, Stop: ints[0], Step: 1}, nil
	case 2:
		return &Range{Start: ints[0], Stop: ints[1], Step: 1}, nil
	case 3:
		if ints[2] == 0 {
			return nil, newError(excValueError, "range() arg 3 must not be zero")
		}
		return &Range{Start: ints[0], Stop: ints[1], Step: ints[2]}, nil
	}
	return nil, newError(excTypeError, "range expected at most 3 arguments, got %d", len(args))
}
