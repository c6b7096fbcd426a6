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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// =============================================================================
// Reductions
// =============================================================================

type reducer struct {
	fn       func([]float64) float64
	dtype    func(DType) DType
	needsOne bool
}

func sameDType(d DType) DType { return d }

func sumDType(d DType) DType {
	if d == DTypeBool {
		return DTypeInt64
	}
	return d
}

func meanDType(d DType) DType {
	if d == DTypeFloat32 {
		return d
	}
	return DTypeFloat64
}

func fixedDType(d DType) func(DType) DType {
	return func(DType) DType { return d }
}

var reducers map[string]reducer

func init() {
	reducers = map[string]reducer{
		"sum":  {fn: floats.Sum, dtype: sumDType},
		"prod": {fn: floats.Prod, dtype: sumDType},
		"mean": {fn: func(x []float64) float64 { return stat.Mean(x, nil) }, dtype: meanDType},
		"std": {fn: func(x []float64) float64 {
			return math.Sqrt(stat.PopVariance(x, nil))
		}, dtype: meanDType},
		"var":    {fn: func(x []float64) float64 { return stat.PopVariance(x, nil) }, dtype: meanDType},
		"max":    {fn: floats.Max, dtype: sameDType, needsOne: true},
		"min":    {fn: floats.Min, dtype: sameDType, needsOne: true},
		"argmax": {fn: func(x []float64) float64 { return float64(floats.MaxIdx(x)) }, dtype: fixedDType(DTypeInt64), needsOne: true},
		"argmin": {fn: func(x []float64) float64 { return float64(floats.MinIdx(x)) }, dtype: fixedDType(DTypeInt64), needsOne: true},
		"any": {fn: func(x []float64) float64 {
			for _, f := range x {
				if f != 0 {
					return 1
				}
			}
			return 0
		}, dtype: fixedDType(DTypeBool)},
		"all": {fn: func(x []float64) float64 {
			for _, f := range x {
				if f == 0 {
					return 0
				}
			}
			return 1
		}, dtype: fixedDType(DTypeBool)},
	}
}

var reductionNames = map[string]string{"max": "maximum", "min": "minimum", "argmax": "argmax", "argmin": "argmin"}

// reduce applies a named reduction over all elements (axis nil or None) or
// along one axis.
func (a *NDArray) reduce(name string, axis Value) (Value, error) {
	r, ok := reducers[name]
	if !ok {
		return nil, newError(excAttributeError, "'ndarray' object has no attribute '%s'", name)
	}
	dtype := r.dtype(a.DType)
	if axis == nil {
		axis = None
	}
	if _, none := axis.(NoneType); none {
		if r.needsOne && len(a.Data) == 0 {
			return nil, newError(excValueError, "zero-size array to reduction operation %s which has no identity", reductionNames[name])
		}
		if len(a.Data) == 0 && (name == "mean" || name == "std" || name == "var") {
			return Float(math.NaN()), nil
		}
		return scalarOf(coerce(r.fn(a.Data), dtype), dtype), nil
	}
	ax64, ok := asInt(axis)
	if !ok {
		return nil, newError(excTypeError, "'%s' object cannot be interpreted as an integer", axis.TypeName())
	}
	ax := int(ax64)
	if ax < 0 {
		ax += len(a.Shape)
	}
	if ax < 0 || ax >= len(a.Shape) {
		return nil, newError(excValueError, "axis %d is out of bounds for array of dimension %d", ax64, len(a.Shape))
	}
	n := a.Shape[ax]
	if r.needsOne && n == 0 {
		return nil, newError(excValueError, "zero-size array to reduction operation %s which has no identity", reductionNames[name])
	}
	outer := shapeSize(a.Shape[:ax])
	inner := shapeSize(a.Shape[ax+1:])
	shape := append(append([]int{}, a.Shape[:ax]...), a.Shape[ax+1:]...)
	out := &NDArray{Shape: shape, Data: make([]float64, outer*inner), DType: dtype}
	buf := make([]float64, n)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			for k := 0; k < n; k++ {
				buf[k] = a.Data[o*n*inner+k*inner+i]
			}
			out.Data[o*inner+i] = coerce(r.fn(buf), dtype)
		}
	}
	return out, nil
}

func (a *NDArray) cumulative(name string) *NDArray {
	out := &NDArray{Shape: []int{len(a.Data)}, Data: make([]float64, len(a.Data)), DType: sumDType(a.DType)}
	if name == "cumprod" {
		acc := 1.0
		for i, f := range a.Data {
			acc *= f
			out.Data[i] = acc
		}
		return out
	}
	floats.CumSum(out.Data, a.Data)
	return out
}

// =============================================================================
// Shape manipulation
// =============================================================================

// shapeArg parses an int or a sequence of ints as a shape.
func shapeArg(v Value) ([]int, error) {
	if n, ok := asInt(v); ok {
		return []int{int(n)}, nil
	}
	var elems []Value
	switch x := v.(type) {
	case *Tuple:
		elems = x.Elems
	case *List:
		elems = x.Elems
	default:
		return nil, newError(excTypeError, "'%s' object cannot be interpreted as an integer", v.TypeName())
	}
	shape := make([]int, len(elems))
	for i, e := range elems {
		n, ok := asInt(e)
		if !ok {
			return nil, newError(excTypeError, "'%s' object cannot be interpreted as an integer", e.TypeName())
		}
		if n < 0 && n != -1 {
			return nil, newError(excValueError, "negative dimensions are not allowed")
		}
		shape[i] = int(n)
	}
	return shape, nil
}

// shapeArgs accepts reshape(2, 3) as well as reshape((2, 3)).
func shapeArgs(args []Value) ([]int, error) {
	if len(args) == 1 {
		return shapeArg(args[0])
	}
	return shapeArg(&Tuple{Elems: args})
}

func (a *NDArray) reshape(shape []int) (*NDArray, error) {
	shape = append([]int(nil), shape...)
	unknown := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if unknown >= 0 {
				return nil, newError(excValueError, "can only specify one unknown dimension")
			}
			unknown = i
			continue
		}
		known *= d
	}
	if unknown >= 0 && known > 0 && len(a.Data)%known == 0 {
		shape[unknown] = len(a.Data) / known
	}
	if shapeSize(shape) != len(a.Data) || (unknown >= 0 && known == 0) {
		return nil, newError(excValueError, "cannot reshape array of size %d into shape %s", len(a.Data), shapeRepr(shape))
	}
	return &NDArray{Shape: shape, Data: append([]float64(nil), a.Data...), DType: a.DType}, nil
}

func (a *NDArray) transpose() *NDArray {
	n := len(a.Shape)
	shape := make([]int, n)
	for i := range shape {
		shape[i] = a.Shape[n-1-i]
	}
	out := &NDArray{Shape: shape, Data: make([]float64, len(a.Data)), DType: a.DType}
	if n < 2 {
		copy(out.Data, a.Data)
		return out
	}
	src := strides(a.Shape)
	idx := make([]int, n)
	for k := range out.Data {
		off := 0
		for i := 0; i < n; i++ {
			off += idx[i] * src[n-1-i]
		}
		out.Data[k] = a.Data[off]
		for i := n - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// matmul implements @ and np.dot for 1-d and 2-d operands with gonum/mat.
func matmul(a, b *NDArray) (Value, error) {
	dtype := promote(a.DType, b.DType)
	if dtype == DTypeBool {
		dtype = DTypeInt64
	}
	switch {
	case len(a.Shape) == 0 || len(b.Shape) == 0:
		return nil, newError(excValueError, "matmul: Input operand does not have enough dimensions")
	case len(a.Shape) == 1 && len(b.Shape) == 1:
		if a.Shape[0] != b.Shape[0] {
			return nil, mismatch(a, b)
		}
		return scalarOf(coerce(floats.Dot(a.Data, b.Data), dtype), dtype), nil
	case len(a.Shape) > 2 || len(b.Shape) > 2:
		return nil, newError(excValueError, "matmul: only 1-d and 2-d operands are supported")
	}
	ar, ac := a.Shape[0], 1
	if len(a.Shape) == 2 {
		ac = a.Shape[1]
	} else {
		ar, ac = 1, a.Shape[0]
	}
	br, bc := b.Shape[0], 1
	if len(b.Shape) == 2 {
		bc = b.Shape[1]
	}
	if ac != br {
		return nil, mismatch(a, b)
	}
	if ar == 0 || ac == 0 || bc == 0 {
		return nil, newError(excValueError, "matmul: zero-size operands are not supported")
	}
	var prod mat.Dense
	prod.Mul(mat.NewDense(ar, ac, append([]float64(nil), a.Data...)), mat.NewDense(br, bc, append([]float64(nil), b.Data...)))
	out := &NDArray{Data: make([]float64, ar*bc), DType: dtype}
	for i := 0; i < ar; i++ {
		for j := 0; j < bc; j++ {
			out.Data[i*bc+j] = coerce(prod.At(i, j), dtype)
		}
	}
	switch {
	case len(a.Shape) == 1:
		out.Shape = []int{bc}
	case len(b.Shape) == 1:
		out.Shape = []int{ar}
	default:
		out.Shape = []int{ar, bc}
	}
	return out, nil
}

func mismatch(a, b *NDArray) *Exception {
	return newError(excValueError, "matmul: Input operand 1 has a mismatch in its core dimension 0 (size %d is different from %d)",
		b.Shape[0], a.Shape[len(a.Shape)-1])
}

// =============================================================================
// Array attributes and methods
// =============================================================================

func (in *Interpreter) arrayAttr(a *NDArray, name string) (Value, bool, error) {
	switch name {
	case "shape":
		elems := make([]Value, len(a.Shape))
		for i, d := range a.Shape {
			elems[i] = Int(d)
		}
		return &Tuple{Elems: elems}, true, nil
	case "ndim":
		return Int(len(a.Shape)), true, nil
	case "size":
		return Int(len(a.Data)), true, nil
	case "dtype":
		return dtypeObject(a.DType), true, nil
	case "T":
		return a.transpose(), true, nil
	}
	fn := arrayMethod(a, name)
	if fn == nil {
		return nil, false, nil
	}
	return &BoundMethod{Recv: a, Name: name, Fn: fn}, true, nil
}

func arrayMethod(a *NDArray, name string) BuiltinFunc {
	switch name {
	case "sum", "mean", "max", "min", "prod", "std", "var", "argmax", "argmin", "any", "all":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "axis?")
			if err != nil {
				return nil, err
			}
			return a.reduce(name, spec.get(0))
		}
	case "cumsum", "cumprod":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return a.cumulative(name), nil
		}
	case "reshape":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			shape, err := shapeArgs(args)
			if err != nil {
				return nil, err
			}
			return a.reshape(shape)
		}
	case "flatten", "ravel":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return a.reshape([]int{len(a.Data)})
		}
	case "transpose":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return a.transpose(), nil
		}
	case "tolist":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return a.ToList(), nil
		}
	case "copy":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return a.copyArray(), nil
		}
	case "astype":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs("astype", args, 1); err != nil {
				return nil, err
			}
			dt, err := parseDType(args[0])
			if err != nil {
				return nil, err
			}
			return a.astype(dt), nil
		}
	case "item":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(a.Data) != 1 {
				return nil, newError(excValueError, "can only convert an array of size 1 to a Python scalar")
			}
			return a.Elem(0), nil
		}
	case "dot":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs("dot", args, 1); err != nil {
				return nil, err
			}
			b, _, err := toArray(args[0])
			if err != nil {
				return nil, err
			}
			return matmul(a, b)
		}
	case "round":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs("round", args, kwargs, "decimals?")
			if err != nil {
				return nil, err
			}
			d, err := spec.int(0, 0)
			if err != nil {
				return nil, err
			}
			return a.round(int(d)), nil
		}
	case "clip":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return npClip(in, append([]Value{a}, args...), kwargs)
		}
	case "fill":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs("fill", args, 1); err != nil {
				return nil, err
			}
			f, ok := asFloat(args[0])
			if !ok {
				return nil, newError(excTypeError, "fill value must be a number")
			}
			for i := range a.Data {
				a.Data[i] = coerce(f, a.DType)
			}
			return None, nil
		}
	}
	return nil
}

// =============================================================================
// dtypes
// =============================================================================

func dtypeObject(d DType) Value {
	if t, ok := dtypeObjects[d]; ok {
		return t
	}
	return Str(d)
}

var dtypeObjects map[DType]*TypeObject

func init() {
	dtypeObjects = map[DType]*TypeObject{}
	for _, d := range []DType{DTypeFloat64, DTypeFloat32, DTypeInt64, DTypeBool} {
		d := d
		dtypeObjects[d] = &TypeObject{Name: string(d), Call: func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) == 0 {
				return scalarOf(0, d), nil
			}
			if err := exactArgs(string(d), args, 1); err != nil {
				return nil, err
			}
			if arr, _, err := toArray(args[0]); err == nil && len(arr.Shape) > 0 {
				return arr.astype(d), nil
			}
			f, ok := asFloat(args[0])
			if !ok {
				return nil, newError(excTypeError, "%s() argument must be a number", d)
			}
			return scalarOf(coerce(f, d), d), nil
		}}
	}
}

// parseDType accepts np dtype objects, builtin types and dtype names.
func parseDType(v Value) (DType, error) {
	switch x := v.(type) {
	case *TypeObject:
		switch x.Name {
		case "float", "float64", "double":
			return DTypeFloat64, nil
		case "float32":
			return DTypeFloat32, nil
		case "int", "int64", "int32", "long":
			return DTypeInt64, nil
		case "bool":
			return DTypeBool, nil
		}
	case Str:
		return parseDType(&TypeObject{Name: string(x)})
	case *TorchDType:
		return x.DType, nil
	}
	return "", newError(excTypeError, "data type '%s' not understood", StrOf(v))
}

// dtypeKwarg extracts dtype= from kwargs, returning the remaining kwargs.
func dtypeKwarg(kwargs []Kwarg) (DType, bool, []Kwarg, error) {
	rest := kwargs[:0:0]
	var dt DType
	found := false
	for _, kw := range kwargs {
		if kw.Name != "dtype" {
			rest = append(rest, kw)
			continue
		}
		if _, none := kw.Value.(NoneType); none {
			continue
		}
		d, err := parseDType(kw.Value)
		if err != nil {
			return "", false, nil, err
		}
		dt, found = d, true
	}
	return dt, found, rest, nil
}

// =============================================================================
// numpy module
// =============================================================================

func newNumpyModule() *Module {
	m := &Module{Name: "numpy", Attrs: map[string]Value{
		"pi":      Float(math.Pi),
		"e":       Float(math.E),
		"inf":     Float(math.Inf(1)),
		"nan":     Float(math.NaN()),
		"float64": dtypeObjects[DTypeFloat64],
		"float32": dtypeObjects[DTypeFloat32],
		"int64":   dtypeObjects[DTypeInt64],
		"bool_":   dtypeObjects[DTypeBool],
		"ndarray": typeObjects["ndarray"],
	}}
	add := func(name string, fn BuiltinFunc) {
		m.Attrs[name] = &Builtin{Name: name, Fn: fn}
	}
	add("array", npArray)
	add("asarray", npArray)
	add("zeros", npFilled(0))
	add("ones", npFilled(1))
	add("full", npFull)
	add("zeros_like", npLike(0))
	add("ones_like", npLike(1))
	add("empty", npFilled(0))
	add("arange", npArange)
	add("linspace", npLinspace)
	add("eye", npEye)
	add("identity", npEye)
	for name := range reducers {
		name := name
		add(name, func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "a", "axis?")
			if err != nil {
				return nil, err
			}
			a, _, err := toArray(spec.get(0))
			if err != nil {
				return nil, err
			}
			return a.reduce(name, spec.get(1))
		})
	}
	m.Attrs["amax"] = m.Attrs["max"]
	m.Attrs["amin"] = m.Attrs["min"]
	for name, fn := range ufuncs {
		add(name, npUfunc(name, fn))
	}
	m.Attrs["absolute"] = m.Attrs["abs"]
	add("round", npRound)
	add("around", npRound)
	add("clip", npClip)
	add("maximum", npBinaryFunc("maximum", math.Max))
	add("minimum", npBinaryFunc("minimum", math.Min))
	add("power", npBinaryFunc("power", math.Pow))
	add("add", npOperator("+"))
	add("subtract", npOperator("-"))
	add("multiply", npOperator("*"))
	add("divide", npOperator("/"))
	add("dot", npDot)
	add("matmul", npDot)
	add("outer", npOuter)
	add("where", npWhere)
	add("reshape", npReshape)
	add("transpose", npTranspose)
	add("concatenate", npConcatenate)
	add("stack", npStack)
	add("vstack", npVstack)
	add("hstack", npHstack)
	add("cumsum", npCumulative("cumsum"))
	add("cumprod", npCumulative("cumprod"))
	add("allclose", npAllclose)
	add("array_equal", npArrayEqual)
	add("isnan", npPredicate("isnan", math.IsNaN))
	add("isinf", npPredicate("isinf", func(f float64) bool { return math.IsInf(f, 0) }))
	add("shape", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("shape", args, 1); err != nil {
			return nil, err
		}
		a, _, err := toArray(args[0])
		if err != nil {
			return nil, err
		}
		v, _, err := in.arrayAttr(a, "shape")
		return v, err
	})
	m.Attrs["random"] = newNumpyRandom()
	m.Attrs["linalg"] = newNumpyLinalg()
	return m
}

func npArray(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
	if err != nil {
		return nil, err
	}
	spec, err := parseArgs("array", args, kwargs, "object", "copy?")
	if err != nil {
		return nil, err
	}
	a, _, err := toArray(spec.get(0))
	if err != nil {
		return nil, err
	}
	if err := in.checkAlloc(a.Size()); err != nil {
		return nil, err
	}
	if hasDT {
		return a.astype(dt), nil
	}
	return a.copyArray(), nil
}

func npFilled(fill float64) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
		if err != nil {
			return nil, err
		}
		if !hasDT {
			dt = DTypeFloat64
		}
		spec, err := parseArgs("zeros", args, kwargs, "shape")
		if err != nil {
			return nil, err
		}
		shape, err := shapeArg(spec.get(0))
		if err != nil {
			return nil, err
		}
		return in.filledArray(shape, fill, dt)
	}
}

func (in *Interpreter) filledArray(shape []int, fill float64, dt DType) (*NDArray, error) {
	for _, d := range shape {
		if d < 0 {
			return nil, newError(excValueError, "negative dimensions are not allowed")
		}
	}
	if err := in.checkAlloc(shapeSize(shape)); err != nil {
		return nil, err
	}
	a := newArray(shape, dt)
	if fill != 0 {
		for i := range a.Data {
			a.Data[i] = coerce(fill, dt)
		}
	}
	return a, nil
}

func npFull(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
	if err != nil {
		return nil, err
	}
	spec, err := parseArgs("full", args, kwargs, "shape", "fill_value")
	if err != nil {
		return nil, err
	}
	shape, err := shapeArg(spec.get(0))
	if err != nil {
		return nil, err
	}
	f, ok := asFloat(spec.get(1))
	if !ok {
		return nil, newError(excTypeError, "fill_value must be a number")
	}
	if !hasDT {
		_, weakDT := scalarDType(spec.get(1))
		dt = weakDT
	}
	return in.filledArray(shape, f, dt)
}

func scalarDType(v Value) (float64, DType) {
	f, _ := asFloat(v)
	switch v.(type) {
	case Bool:
		return f, DTypeBool
	case Int:
		return f, DTypeInt64
	}
	return f, DTypeFloat64
}

func npLike(fill float64) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
		if err != nil {
			return nil, err
		}
		spec, err := parseArgs("zeros_like", args, kwargs, "a")
		if err != nil {
			return nil, err
		}
		a, _, err := toArray(spec.get(0))
		if err != nil {
			return nil, err
		}
		if !hasDT {
			dt = a.DType
		}
		return in.filledArray(a.Shape, fill, dt)
	}
}

func npArange(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
	if err != nil {
		return nil, err
	}
	spec, err := parseArgs("arange", args, kwargs, "start", "stop?", "step?")
	if err != nil {
		return nil, err
	}
	start, stop, step := 0.0, 0.0, 1.0
	isFloat := false
	for i := 0; i < 3; i++ {
		if _, ok := spec.get(i).(Float); ok {
			isFloat = true
		}
	}
	if spec.has(1) {
		if start, err = spec.float(0, 0); err != nil {
			return nil, err
		}
		if stop, err = spec.float(1, 0); err != nil {
			return nil, err
		}
	} else if stop, err = spec.float(0, 0); err != nil {
		return nil, err
	}
	if step, err = spec.float(2, 1); err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, newError(excZeroDivisionError, "division by zero")
	}
	n := int(math.Ceil((stop - start) / step))
	if n < 0 {
		n = 0
	}
	if err := in.checkAlloc(n); err != nil {
		return nil, err
	}
	if !hasDT {
		dt = DTypeInt64
		if isFloat {
			dt = DTypeFloat64
		}
	}
	a := newArray([]int{n}, dt)
	for i := range a.Data {
		a.Data[i] = coerce(start+float64(i)*step, dt)
	}
	return a, nil
}

func npLinspace(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("linspace", args, kwargs, "start", "stop", "num?", "endpoint?")
	if err != nil {
		return nil, err
	}
	start, err := spec.float(0, 0)
	if err != nil {
		return nil, err
	}
	stop, err := spec.float(1, 0)
	if err != nil {
		return nil, err
	}
	num, err := spec.int(2, 50)
	if err != nil {
		return nil, err
	}
	endpoint, err := spec.bool(3, true)
	if err != nil {
		return nil, err
	}
	if num < 0 {
		return nil, newError(excValueError, "Number of samples, %d, must be non-negative.", num)
	}
	if err := in.checkAlloc(int(num)); err != nil {
		return nil, err
	}
	a := newArray([]int{int(num)}, DTypeFloat64)
	if num == 0 {
		return a, nil
	}
	if num == 1 {
		a.Data[0] = start
		return a, nil
	}
	if !endpoint {
		stop = start + (stop-start)*float64(num-1)/float64(num)
	}
	floats.Span(a.Data, start, stop)
	return a, nil
}

func npEye(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
	if err != nil {
		return nil, err
	}
	if !hasDT {
		dt = DTypeFloat64
	}
	spec, err := parseArgs("eye", args, kwargs, "N", "M?")
	if err != nil {
		return nil, err
	}
	n, err := spec.int(0, 0)
	if err != nil {
		return nil, err
	}
	mcols, err := spec.int(1, n)
	if err != nil {
		return nil, err
	}
	a, err := in.filledArray([]int{int(n), int(mcols)}, 0, dt)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(n) && i < int(mcols); i++ {
		a.Data[i*int(mcols)+i] = 1
	}
	return a, nil
}

// ufuncs are element-wise functions returning float arrays.
var ufuncs = map[string]func(float64) float64{
	"sqrt":   math.Sqrt,
	"exp":    math.Exp,
	"log":    math.Log,
	"log2":   math.Log2,
	"log10":  math.Log10,
	"log1p":  math.Log1p,
	"sin":    math.Sin,
	"cos":    math.Cos,
	"tan":    math.Tan,
	"arcsin": math.Asin,
	"arccos": math.Acos,
	"arctan": math.Atan,
	"sinh":   math.Sinh,
	"cosh":   math.Cosh,
	"tanh":   math.Tanh,
	"abs":    math.Abs,
	"floor":  math.Floor,
	"ceil":   math.Ceil,
	"square": func(x float64) float64 { return x * x },
	"sign": func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return x
	},
}

// keepsDType lists ufuncs whose output keeps integer input dtype.
var keepsDType = map[string]bool{"abs": true, "square": true, "sign": true}

func npUfunc(name string, fn func(float64) float64) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs(name, args, 1); err != nil {
			return nil, err
		}
		if t, ok := args[0].(*Tensor); ok {
			return t.wrap(mapArray(t.Array, name, fn)), nil
		}
		if s, ok := args[0].(*Symbol); ok {
			return symbolCall(sympyName(name), s), nil
		}
		a, weak, err := toArray(args[0])
		if err != nil {
			return nil, err
		}
		out := mapArray(a, name, fn)
		if weak {
			return out.Elem(0), nil
		}
		return out, nil
	}
}

func mapArray(a *NDArray, name string, fn func(float64) float64) *NDArray {
	dt := a.DType
	if !keepsDType[name] && !dt.isFloat() {
		dt = DTypeFloat64
	}
	if dt == DTypeBool {
		dt = DTypeInt64
	}
	out := &NDArray{Shape: append([]int(nil), a.Shape...), Data: make([]float64, len(a.Data)), DType: dt}
	for i, f := range a.Data {
		out.Data[i] = coerce(fn(f), dt)
	}
	return out
}

func npPredicate(name string, fn func(float64) bool) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs(name, args, 1); err != nil {
			return nil, err
		}
		a, weak, err := toArray(args[0])
		if err != nil {
			return nil, err
		}
		out := &NDArray{Shape: append([]int(nil), a.Shape...), Data: make([]float64, len(a.Data)), DType: DTypeBool}
		for i, f := range a.Data {
			if fn(f) {
				out.Data[i] = 1
			}
		}
		if weak {
			return out.Elem(0), nil
		}
		return out, nil
	}
}

func npBinaryFunc(name string, fn func(x, y float64) float64) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs(name, args, 2); err != nil {
			return nil, err
		}
		a, aWeak, err := toArray(args[0])
		if err != nil {
			return nil, err
		}
		b, bWeak, err := toArray(args[1])
		if err != nil {
			return nil, err
		}
		out, err := elementwise(a, b, resultDType(a, aWeak, b, bWeak), fn)
		if err != nil {
			return nil, err
		}
		if aWeak && bWeak {
			return out.Elem(0), nil
		}
		return out, nil
	}
}

func npOperator(op string) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs(op, args, 2); err != nil {
			return nil, err
		}
		a, _, err := toArray(args[0])
		if err != nil {
			return nil, err
		}
		return in.arrayBinary(op, a, args[1])
	}
}

func npRound(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("round", args, kwargs, "a", "decimals?")
	if err != nil {
		return nil, err
	}
	d, err := spec.int(1, 0)
	if err != nil {
		return nil, err
	}
	a, weak, err := toArray(spec.get(0))
	if err != nil {
		return nil, err
	}
	out := a.round(int(d))
	if weak {
		return out.Elem(0), nil
	}
	return out, nil
}

func npClip(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("clip", args, kwargs, "a", "a_min", "a_max")
	if err != nil {
		return nil, err
	}
	a, weak, err := toArray(spec.get(0))
	if err != nil {
		return nil, err
	}
	lo, err := spec.float(1, math.Inf(-1))
	if err != nil {
		return nil, err
	}
	hi, err := spec.float(2, math.Inf(1))
	if err != nil {
		return nil, err
	}
	dt := a.DType
	if _, ok := spec.get(1).(Float); ok && !dt.isFloat() {
		dt = DTypeFloat64
	}
	out := a.astype(dt)
	for i, f := range out.Data {
		out.Data[i] = coerce(math.Min(math.Max(f, lo), hi), dt)
	}
	if weak {
		return out.Elem(0), nil
	}
	return out, nil
}

func npDot(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("dot", args, 2); err != nil {
		return nil, err
	}
	a, aWeak, err := toArray(args[0])
	if err != nil {
		return nil, err
	}
	b, bWeak, err := toArray(args[1])
	if err != nil {
		return nil, err
	}
	if aWeak || bWeak {
		return in.arrayBinary("*", args[0], args[1])
	}
	return matmul(a, b)
}

func npOuter(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("outer", args, 2); err != nil {
		return nil, err
	}
	a, _, err := toArray(args[0])
	if err != nil {
		return nil, err
	}
	b, _, err := toArray(args[1])
	if err != nil {
		return nil, err
	}
	if err := in.checkAlloc(len(a.Data) * len(b.Data)); err != nil {
		return nil, err
	}
	dt := promote(a.DType, b.DType)
	out := newArray([]int{len(a.Data), len(b.Data)}, dt)
	for i, x := range a.Data {
		for j, y := range b.Data {
			out.Data[i*len(b.Data)+j] = coerce(x*y, dt)
		}
	}
	return out, nil
}

func npWhere(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("where", args, 3); err != nil {
		return nil, err
	}
	c, _, err := toArray(args[0])
	if err != nil {
		return nil, err
	}
	x, xWeak, err := toArray(args[1])
	if err != nil {
		return nil, err
	}
	y, yWeak, err := toArray(args[2])
	if err != nil {
		return nil, err
	}
	shape, ok := broadcastShape(c.Shape, x.Shape)
	if ok {
		shape, ok = broadcastShape(shape, y.Shape)
	}
	if !ok {
		return nil, newError(excValueError, "operands could not be broadcast together")
	}
	dt := resultDType(x, xWeak, y, yWeak)
	out := newArray(shape, dt)
	oc, ox, oy := offsetsFor(c.Shape, shape), offsetsFor(x.Shape, shape), offsetsFor(y.Shape, shape)
	for i := range out.Data {
		if c.Data[oc[i]] != 0 {
			out.Data[i] = coerce(x.Data[ox[i]], dt)
		} else {
			out.Data[i] = coerce(y.Data[oy[i]], dt)
		}
	}
	return out, nil
}

func npReshape(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if len(args) < 2 {
		return nil, newError(excTypeError, "reshape() missing required argument 'shape'")
	}
	a, _, err := toArray(args[0])
	if err != nil {
		return nil, err
	}
	shape, err := shapeArgs(args[1:])
	if err != nil {
		return nil, err
	}
	return a.reshape(shape)
}

func npTranspose(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("transpose", args, 1); err != nil {
		return nil, err
	}
	a, _, err := toArray(args[0])
	if err != nil {
		return nil, err
	}
	return a.transpose(), nil
}

func arraysArg(in *Interpreter, v Value) ([]*NDArray, error) {
	elems, err := in.collect(v)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, newError(excValueError, "need at least one array to concatenate")
	}
	out := make([]*NDArray, len(elems))
	for i, e := range elems {
		a, _, err := toArray(e)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// concat joins arrays along axis 0 after checking trailing dimensions.
func concat(arrs []*NDArray) (*NDArray, error) {
	first := arrs[0]
	if len(first.Shape) == 0 {
		return nil, newError(excValueError, "zero-dimensional arrays cannot be concatenated")
	}
	dt := first.DType
	rows := 0
	for _, a := range arrs {
		if len(a.Shape) != len(first.Shape) || !sameShape(a.Shape[1:], first.Shape[1:]) {
			return nil, newError(excValueError, "all the input array dimensions except for the concatenation axis must match exactly")
		}
		rows += a.Shape[0]
		dt = promote(dt, a.DType)
	}
	shape := append([]int{rows}, first.Shape[1:]...)
	out := &NDArray{Shape: shape, DType: dt}
	for _, a := range arrs {
		out.Data = append(out.Data, a.Data...)
	}
	return out, nil
}

func npConcatenate(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("concatenate", args, 1); err != nil {
		return nil, err
	}
	arrs, err := arraysArg(in, args[0])
	if err != nil {
		return nil, err
	}
	return concat(arrs)
}

func npStack(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("stack", args, 1); err != nil {
		return nil, err
	}
	arrs, err := arraysArg(in, args[0])
	if err != nil {
		return nil, err
	}
	lifted := make([]*NDArray, len(arrs))
	for i, a := range arrs {
		if !sameShape(a.Shape, arrs[0].Shape) {
			return nil, newError(excValueError, "all input arrays must have the same shape")
		}
		lifted[i] = &NDArray{Shape: append([]int{1}, a.Shape...), Data: a.Data, DType: a.DType}
	}
	return concat(lifted)
}

func npVstack(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("vstack", args, 1); err != nil {
		return nil, err
	}
	arrs, err := arraysArg(in, args[0])
	if err != nil {
		return nil, err
	}
	for i, a := range arrs {
		if len(a.Shape) == 1 {
			arrs[i] = &NDArray{Shape: []int{1, a.Shape[0]}, Data: a.Data, DType: a.DType}
		}
	}
	return concat(arrs)
}

func npHstack(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("hstack", args, 1); err != nil {
		return nil, err
	}
	arrs, err := arraysArg(in, args[0])
	if err != nil {
		return nil, err
	}
	if len(arrs[0].Shape) == 1 {
		return concat(arrs)
	}
	ts := make([]*NDArray, len(arrs))
	for i, a := range arrs {
		ts[i] = a.transpose()
	}
	out, err := concat(ts)
	if err != nil {
		return nil, err
	}
	return out.transpose(), nil
}

func npCumulative(name string) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs(name, args, 1); err != nil {
			return nil, err
		}
		a, _, err := toArray(args[0])
		if err != nil {
			return nil, err
		}
		return a.cumulative(name), nil
	}
}

func npAllclose(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("allclose", args, kwargs, "a", "b", "rtol?", "atol?")
	if err != nil {
		return nil, err
	}
	a, _, err := toArray(spec.get(0))
	if err != nil {
		return nil, err
	}
	b, _, err := toArray(spec.get(1))
	if err != nil {
		return nil, err
	}
	rtol, err := spec.float(2, 1e-5)
	if err != nil {
		return nil, err
	}
	atol, err := spec.float(3, 1e-8)
	if err != nil {
		return nil, err
	}
	near, err := elementwise(a, b, DTypeBool, func(x, y float64) float64 {
		if math.Abs(x-y) <= atol+rtol*math.Abs(y) {
			return 1
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return Bool(floats.Min(append(near.Data, 1)) == 1), nil
}

func npArrayEqual(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	if err := exactArgs("array_equal", args, 2); err != nil {
		return nil, err
	}
	a, _, err := toArray(args[0])
	if err != nil {
		return nil, err
	}
	b, _, err := toArray(args[1])
	if err != nil {
		return nil, err
	}
	return Bool(sameShape(a.Shape, b.Shape) && floats.Equal(a.Data, b.Data)), nil
}

// =============================================================================
// numpy.random
// =============================================================================

func newNumpyRandom() *Module {
	m := &Module{Name: "numpy.random", Attrs: map[string]Value{}}
	add := func(name string, fn BuiltinFunc) {
		m.Attrs[name] = &Builtin{Name: name, Fn: fn}
	}
	add("seed", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("seed", args, kwargs, "seed?")
		if err != nil {
			return nil, err
		}
		s, err := spec.int(0, 0)
		if err != nil {
			return nil, err
		}
		in.rng.Seed(s)
		return None, nil
	})
	add("rand", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		return in.randomArray(args, in.rng.Float64)
	})
	add("randn", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		return in.randomArray(args, in.rng.NormFloat64)
	})
	add("random", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("random", args, kwargs, "size?")
		if err != nil {
			return nil, err
		}
		if !spec.has(0) {
			return Float(in.rng.Float64()), nil
		}
		return in.randomArray([]Value{spec.get(0)}, in.rng.Float64)
	})
	add("uniform", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		return in.randomDist("uniform", args, kwargs, 0, 1, func(lo, hi float64) float64 {
			return lo + (hi-lo)*in.rng.Float64()
		})
	})
	add("normal", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		return in.randomDist("normal", args, kwargs, 0, 1, func(loc, scale float64) float64 {
			return loc + scale*in.rng.NormFloat64()
		})
	})
	add("randint", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("randint", args, kwargs, "low", "high?", "size?")
		if err != nil {
			return nil, err
		}
		lo, err := spec.int(0, 0)
		if err != nil {
			return nil, err
		}
		hi, err := spec.int(1, 0)
		if err != nil {
			return nil, err
		}
		if !spec.has(1) {
			lo, hi = 0, lo
		}
		if hi <= lo {
			return nil, newError(excValueError, "low >= high")
		}
		draw := func() float64 { return float64(lo + in.rng.Int63n(hi-lo)) }
		if !spec.has(2) {
			return Int(int64(draw())), nil
		}
		a, err := in.randomArray([]Value{spec.get(2)}, draw)
		if err != nil {
			return nil, err
		}
		a.DType = DTypeInt64
		return a, nil
	})
	add("choice", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("choice", args, kwargs, "a", "size?")
		if err != nil {
			return nil, err
		}
		var pool []Value
		if n, ok := asInt(spec.get(0)); ok {
			for i := int64(0); i < n; i++ {
				pool = append(pool, Int(i))
			}
		} else if pool, err = in.collect(spec.get(0)); err != nil {
			return nil, err
		}
		if len(pool) == 0 {
			return nil, newError(excValueError, "a cannot be empty unless no samples are taken")
		}
		if !spec.has(1) {
			return pool[in.rng.Intn(len(pool))], nil
		}
		size, err := spec.int(1, 1)
		if err != nil {
			return nil, err
		}
		if err := in.checkAlloc(int(size)); err != nil {
			return nil, err
		}
		out := make([]Value, size)
		for i := range out {
			out[i] = pool[in.rng.Intn(len(pool))]
		}
		a, _, err := toArray(&List{Elems: out})
		return a, err
	})
	add("shuffle", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("shuffle", args, 1); err != nil {
			return nil, err
		}
		switch x := args[0].(type) {
		case *List:
			in.rng.Shuffle(len(x.Elems), func(i, j int) { x.Elems[i], x.Elems[j] = x.Elems[j], x.Elems[i] })
		case *NDArray:
			rows := x.rows()
			in.rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
			inner := shapeSize(x.Shape[1:])
			for i, r := range rows {
				if sub, ok := r.(*NDArray); ok {
					copy(x.Data[i*inner:], sub.Data)
				} else {
					f, _ := asFloat(r)
					x.Data[i] = f
				}
			}
		default:
			return nil, newError(excTypeError, "shuffle() argument must be a list or array")
		}
		return None, nil
	})
	return m
}

func (in *Interpreter) randomArray(args []Value, draw func() float64) (*NDArray, error) {
	shape, err := shapeArgs(args)
	if len(args) == 0 {
		shape, err = []int{}, nil
	}
	if err != nil {
		return nil, err
	}
	a, err := in.filledArray(shape, 0, DTypeFloat64)
	if err != nil {
		return nil, err
	}
	for i := range a.Data {
		a.Data[i] = draw()
	}
	return a, nil
}

func (in *Interpreter) randomDist(name string, args []Value, kwargs []Kwarg, p0, p1 float64, draw func(a, b float64) float64) (Value, error) {
	spec, err := parseArgs(name, args, kwargs, "a", "b", "size?")
	if len(args) < 2 {
		names := map[string][2]string{"uniform": {"low", "high"}, "normal": {"loc", "scale"}}[name]
		spec, err = parseArgs(name, args, kwargs, names[0]+"?", names[1]+"?", "size?")
	}
	if err != nil {
		return nil, err
	}
	a, err := spec.float(0, p0)
	if err != nil {
		return nil, err
	}
	b, err := spec.float(1, p1)
	if err != nil {
		return nil, err
	}
	if !spec.has(2) {
		return Float(draw(a, b)), nil
	}
	return in.randomArray([]Value{spec.get(2)}, func() float64 { return draw(a, b) })
}

// =============================================================================
// numpy.linalg
// =============================================================================

func newNumpyLinalg() *Module {
	m := &Module{Name: "numpy.linalg", Attrs: map[string]Value{}}
	m.Attrs["norm"] = &Builtin{Name: "norm", Fn: func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("norm", args, 1); err != nil {
			return nil, err
		}
		a, _, err := toArray(args[0])
		if err != nil {
			return nil, err
		}
		return Float(floats.Norm(a.Data, 2)), nil
	}}
	m.Attrs["det"] = &Builtin{Name: "det", Fn: func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		d, err := squareMatrix("det", args)
		if err != nil {
			return nil, err
		}
		return Float(mat.Det(d)), nil
	}}
	m.Attrs["inv"] = &Builtin{Name: "inv", Fn: func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		d, err := squareMatrix("inv", args)
		if err != nil {
			return nil, err
		}
		var inv mat.Dense
		if err := inv.Inverse(d); err != nil {
			return nil, &Exception{Class: linAlgError, Msg: "Singular matrix"}
		}
		return denseArray(&inv), nil
	}}
	m.Attrs["solve"] = &Builtin{Name: "solve", Fn: func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if len(args) != 2 {
			return nil, newError(excTypeError, "solve() takes exactly 2 arguments (%d given)", len(args))
		}
		d, err := squareMatrix("solve", args[:1])
		if err != nil {
			return nil, err
		}
		b, _, err := toArray(args[1])
		if err != nil {
			return nil, err
		}
		r, _ := d.Dims()
		if len(b.Shape) == 0 || b.Shape[0] != r {
			return nil, newError(excValueError, "solve: Input operand 1 has a mismatch in its core dimension 0")
		}
		cols := 1
		if len(b.Shape) == 2 {
			cols = b.Shape[1]
		}
		var x mat.Dense
		if err := x.Solve(d, mat.NewDense(r, cols, append([]float64(nil), b.Data...))); err != nil {
			return nil, &Exception{Class: linAlgError, Msg: "Singular matrix"}
		}
		out := denseArray(&x)
		if len(b.Shape) == 1 {
			out.Shape = []int{r}
		}
		return out, nil
	}}
	m.Attrs["LinAlgError"] = linAlgError
	return m
}

var linAlgError = &ExceptionClass{Name: "LinAlgError", Base: excValueError}

func squareMatrix(name string, args []Value) (*mat.Dense, error) {
	if err := exactArgs(name, args, 1); err != nil {
		return nil, err
	}
	a, _, err := toArray(args[0])
	if err != nil {
		return nil, err
	}
	if len(a.Shape) != 2 || a.Shape[0] != a.Shape[1] || a.Shape[0] == 0 {
		return nil, &Exception{Class: linAlgError, Msg: "Last 2 dimensions of the array must be square"}
	}
	return mat.NewDense(a.Shape[0], a.Shape[1], append([]float64(nil), a.Data...)), nil
}

func denseArray(d *mat.Dense) *NDArray {
	r, c := d.Dims()
	out := newArray([]int{r, c}, DTypeFloat64)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Data[i*c+j] = d.At(i, j)
		}
	}
	return out
}
