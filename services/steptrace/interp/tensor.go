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
	"strconv"
	"strings"
)

// =============================================================================
// Tensor
// =============================================================================

// Tensor is a torch-style tensor: an NDArray plus the requires_grad flag.
// Gradients are not tracked.
type Tensor struct {
	Array        *NDArray
	RequiresGrad bool
}

func (*Tensor) TypeName() string { return "Tensor" }

// DTypeName returns the torch dtype name, e.g. "torch.float32".
func (t *Tensor) DTypeName() string {
	return "torch." + string(t.Array.DType)
}

// wrap returns a tensor around a carrying t's requires_grad flag.
func (t *Tensor) wrap(a *NDArray) *Tensor {
	return &Tensor{Array: a, RequiresGrad: t.RequiresGrad}
}

func (t *Tensor) repr() string {
	const prefix = "tensor("
	a := t.Array
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(layout(a.Shape, torchCells(a), ", ", ",\n", len(prefix)))
	if a.DType == DTypeFloat64 || (len(a.Data) == 0 && a.DType != DTypeFloat32) {
		b.WriteString(", dtype=" + t.DTypeName())
	}
	if t.RequiresGrad {
		b.WriteString(", requires_grad=True")
	}
	b.WriteByte(')')
	return b.String()
}

// torchCells renders elements the way torch prints them: integral floats as
// "1.", others with four decimals.
func torchCells(a *NDArray) []string {
	if !a.DType.isFloat() {
		return a.cells()
	}
	integral := true
	for _, f := range a.Data {
		if f != math.Trunc(f) && !math.IsNaN(f) && !math.IsInf(f, 0) {
			integral = false
			break
		}
	}
	out := make([]string, len(a.Data))
	width := 0
	for i, f := range a.Data {
		switch {
		case math.IsNaN(f):
			out[i] = "nan"
		case math.IsInf(f, 1):
			out[i] = "inf"
		case math.IsInf(f, -1):
			out[i] = "-inf"
		case integral:
			out[i] = strconv.FormatFloat(f, 'f', 0, 64) + "."
		default:
			out[i] = strconv.FormatFloat(f, 'f', 4, 64)
		}
		width = max(width, len(out[i]))
	}
	if len(a.Shape) > 0 {
		for i, c := range out {
			out[i] = strings.Repeat(" ", width-len(c)) + c
		}
	}
	return out
}

// tensorDType adjusts a numpy-promoted dtype to torch defaults: float
// results stay float32 unless an operand is float64.
func tensorDType(dt DType, operands ...*NDArray) DType {
	if dt != DTypeFloat64 {
		return dt
	}
	for _, a := range operands {
		if a.DType == DTypeFloat64 && len(a.Shape) > 0 {
			return dt
		}
	}
	return DTypeFloat32
}

// tensorBinary applies an operator where at least one operand is a tensor.
func tensorBinary(op string, x, y Value) (Value, error) {
	a, aWeak, err := toArray(x)
	if err != nil {
		return nil, unsupportedOperand(op, x, y)
	}
	b, bWeak, err := toArray(y)
	if err != nil {
		return nil, unsupportedOperand(op, x, y)
	}
	grad := false
	if t, ok := x.(*Tensor); ok {
		grad = grad || t.RequiresGrad
	}
	if t, ok := y.(*Tensor); ok {
		grad = grad || t.RequiresGrad
	}
	var out *NDArray
	if op == "@" {
		r, err := matmul(a, b)
		if err != nil {
			return nil, err
		}
		if arr, ok := r.(*NDArray); ok {
			out = arr
		} else {
			out = scalarArray(r, promote(a.DType, b.DType))
		}
	} else {
		dt := resultDType(a, aWeak, b, bWeak)
		if op == "/" && !dt.isFloat() {
			dt = DTypeFloat32
		}
		if out, err = arrayArith(op, a, b, tensorDType(dt, a, b), x, y); err != nil {
			return nil, err
		}
	}
	return &Tensor{Array: out, RequiresGrad: grad}, nil
}

// TorchDType is a torch dtype object such as torch.float32.
type TorchDType struct {
	DType DType
}

func (*TorchDType) TypeName() string { return "dtype" }

var torchDTypes map[DType]*TorchDType

func init() {
	torchDTypes = map[DType]*TorchDType{}
	for _, d := range []DType{DTypeFloat64, DTypeFloat32, DTypeInt64, DTypeBool} {
		torchDTypes[d] = &TorchDType{DType: d}
	}
}

// =============================================================================
// Tensor attributes and methods
// =============================================================================

func (in *Interpreter) tensorAttr(t *Tensor, name string) (Value, bool, error) {
	a := t.Array
	switch name {
	case "shape":
		v, _, err := in.arrayAttr(a, "shape")
		return v, true, err
	case "dtype":
		return torchDTypes[a.DType], true, nil
	case "requires_grad":
		return Bool(t.RequiresGrad), true, nil
	case "grad", "grad_fn":
		return None, true, nil
	case "ndim":
		return Int(len(a.Shape)), true, nil
	case "T":
		return t.wrap(a.transpose()), true, nil
	case "data":
		return &Tensor{Array: a}, true, nil
	}
	fn := tensorMethod(t, name)
	if fn == nil {
		return nil, false, nil
	}
	return &BoundMethod{Recv: t, Name: name, Fn: fn}, true, nil
}

func tensorMethod(t *Tensor, name string) BuiltinFunc {
	a := t.Array
	switch name {
	case "size":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) == 1 {
				d, ok := asInt(args[0])
				if !ok {
					return nil, newError(excTypeError, "size(): argument 'dim' must be int")
				}
				i, err := arrayIndex(d, len(a.Shape), 0)
				if err != nil {
					return nil, newError(excIndexError, "Dimension out of range (expected to be in range of [%d, %d], but got %d)", -len(a.Shape), len(a.Shape)-1, d)
				}
				return Int(a.Shape[i]), nil
			}
			v, _, err := in.arrayAttr(a, "shape")
			return v, err
		}
	case "dim":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) { return Int(len(a.Shape)), nil }
	case "numel":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) { return Int(len(a.Data)), nil }
	case "item":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) {
			if len(a.Data) != 1 {
				return nil, newError(excRuntimeError, "a Tensor with %d elements cannot be converted to Scalar", len(a.Data))
			}
			return a.Elem(0), nil
		}
	case "tolist":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) { return a.ToList(), nil }
	case "numpy":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) {
			if t.RequiresGrad {
				return nil, newError(excRuntimeError, "Can't call numpy() on Tensor that requires grad. Use tensor.detach().numpy() instead.")
			}
			return a.copyArray(), nil
		}
	case "detach":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) { return &Tensor{Array: a}, nil }
	case "clone":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) { return t.wrap(a.copyArray()), nil }
	case "sum", "mean", "max", "min", "argmax", "argmin", "std", "var", "prod":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return t.reduce(name, args, kwargs)
		}
	case "reshape", "view":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			shape, err := shapeArgs(args)
			if err != nil {
				return nil, err
			}
			r, err := a.reshape(shape)
			if err != nil {
				return nil, newError(excRuntimeError, "shape '%s' is invalid for input of size %d", listRepr(shape), len(a.Data))
			}
			return t.wrap(r), nil
		}
	case "flatten":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) {
			r, err := a.reshape([]int{len(a.Data)})
			if err != nil {
				return nil, err
			}
			return t.wrap(r), nil
		}
	case "t":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) {
			if len(a.Shape) > 2 {
				return nil, newError(excRuntimeError, "t() expects a tensor with <= 2 dimensions, but self is %dD", len(a.Shape))
			}
			return t.wrap(a.transpose()), nil
		}
	case "float", "double", "long", "int", "bool":
		dt := map[string]DType{"float": DTypeFloat32, "double": DTypeFloat64, "long": DTypeInt64, "int": DTypeInt64, "bool": DTypeBool}[name]
		return func(*Interpreter, []Value, []Kwarg) (Value, error) { return t.wrap(a.astype(dt)), nil }
	case "to":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			for _, v := range args {
				if d, ok := v.(*TorchDType); ok {
					return t.wrap(a.astype(d.DType)), nil
				}
			}
			return t, nil
		}
	case "relu", "sigmoid", "tanh", "exp", "log", "sqrt", "abs", "sin", "cos":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) {
			return t.wrap(torchMap(a, name)), nil
		}
	case "unsqueeze":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs("unsqueeze", args, 1); err != nil {
				return nil, err
			}
			d, _ := asInt(args[0])
			if d < 0 {
				d += int64(len(a.Shape)) + 1
			}
			if d < 0 || d > int64(len(a.Shape)) {
				return nil, newError(excIndexError, "Dimension out of range")
			}
			shape := append(append(append([]int{}, a.Shape[:d]...), 1), a.Shape[d:]...)
			return t.wrap(&NDArray{Shape: shape, Data: append([]float64(nil), a.Data...), DType: a.DType}), nil
		}
	case "squeeze":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) {
			var shape []int
			for _, d := range a.Shape {
				if d != 1 {
					shape = append(shape, d)
				}
			}
			if shape == nil {
				shape = []int{}
			}
			return t.wrap(&NDArray{Shape: shape, Data: append([]float64(nil), a.Data...), DType: a.DType}), nil
		}
	case "requires_grad_":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs("requires_grad_", args, kwargs, "requires_grad?")
			if err != nil {
				return nil, err
			}
			if t.RequiresGrad, err = spec.bool(0, true); err != nil {
				return nil, err
			}
			return t, nil
		}
	case "backward":
		return func(*Interpreter, []Value, []Kwarg) (Value, error) {
			return nil, newError(excNotImplementedError, "autograd is not supported")
		}
	}
	return nil
}

func listRepr(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// reduce implements sum/mean/max/... with an optional dim. max and min
// along a dim return a (values, indices) pair.
func (t *Tensor) reduce(name string, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs(name, args, kwargs, "dim?", "keepdim?")
	if err != nil {
		return nil, err
	}
	a := t.Array
	if (name == "mean" || name == "std" || name == "var") && !a.DType.isFloat() {
		return nil, newError(excRuntimeError, "%s(): could not infer output dtype. Input dtype must be either a floating point or complex dtype. Got: %s", name, torchScalarNames[a.DType])
	}
	r, err := a.reduce(name, spec.get(0))
	if err != nil {
		return nil, err
	}
	if name == "std" || name == "var" {
		r, err = t.sampleCorrection(name, r, spec.get(0))
		if err != nil {
			return nil, err
		}
	}
	var out *NDArray
	if arr, ok := r.(*NDArray); ok {
		out = arr
	} else {
		out = scalarArray(r, reducers[name].dtype(a.DType))
	}
	res := t.wrap(out)
	if spec.has(0) && (name == "max" || name == "min") {
		idx, err := a.reduce("arg"+name, spec.get(0))
		if err != nil {
			return nil, err
		}
		return &Tuple{Elems: []Value{res, &Tensor{Array: idx.(*NDArray)}}}, nil
	}
	return res, nil
}

var torchScalarNames = map[DType]string{
	DTypeFloat64: "Double",
	DTypeFloat32: "Float",
	DTypeInt64:   "Long",
	DTypeBool:    "Bool",
}

// sampleCorrection rescales population std/var to torch's unbiased default.
func (t *Tensor) sampleCorrection(name string, r Value, dim Value) (Value, error) {
	n := len(t.Array.Data)
	if d, ok := asInt(dim); ok {
		i, err := arrayIndex(d, len(t.Array.Shape), 0)
		if err != nil {
			return nil, err
		}
		n = t.Array.Shape[i]
	}
	factor := float64(n) / float64(n-1)
	if name == "std" {
		factor = math.Sqrt(factor)
	}
	switch x := r.(type) {
	case *NDArray:
		for i := range x.Data {
			x.Data[i] *= factor
		}
		return x, nil
	case Float:
		return Float(float64(x) * factor), nil
	}
	return r, nil
}

var torchFuncs = map[string]func(float64) float64{
	"relu":    func(x float64) float64 { return math.Max(x, 0) },
	"sigmoid": func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	"tanh":    math.Tanh,
	"exp":     math.Exp,
	"log":     math.Log,
	"sqrt":    math.Sqrt,
	"abs":     math.Abs,
	"sin":     math.Sin,
	"cos":     math.Cos,
}

func torchMap(a *NDArray, name string) *NDArray {
	out := mapArray(a, name, torchFuncs[name])
	if name == "relu" || name == "abs" {
		out = out.astype(a.DType)
	} else if out.DType == DTypeFloat64 && a.DType != DTypeFloat64 {
		out = out.astype(DTypeFloat32)
	}
	return out
}

// =============================================================================
// torch module
// =============================================================================

func newTorchModule() *Module {
	m := &Module{Name: "torch", Attrs: map[string]Value{
		"float32": torchDTypes[DTypeFloat32],
		"float":   torchDTypes[DTypeFloat32],
		"float64": torchDTypes[DTypeFloat64],
		"double":  torchDTypes[DTypeFloat64],
		"int64":   torchDTypes[DTypeInt64],
		"long":    torchDTypes[DTypeInt64],
		"bool":    torchDTypes[DTypeBool],
		"Tensor":  typeObjects["Tensor"],
		"pi":      Float(math.Pi),
	}}
	add := func(name string, fn BuiltinFunc) {
		m.Attrs[name] = &Builtin{Name: name, Fn: fn}
	}
	add("tensor", torchTensor)
	add("from_numpy", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("from_numpy", args, 1); err != nil {
			return nil, err
		}
		a, ok := args[0].(*NDArray)
		if !ok {
			return nil, newError(excTypeError, "expected np.ndarray (got %s)", args[0].TypeName())
		}
		return &Tensor{Array: a}, nil
	})
	add("zeros", torchFactory(func(in *Interpreter, shape []int, dt DType) (*NDArray, error) {
		return in.filledArray(shape, 0, dt)
	}))
	add("ones", torchFactory(func(in *Interpreter, shape []int, dt DType) (*NDArray, error) {
		return in.filledArray(shape, 1, dt)
	}))
	add("rand", torchFactory(func(in *Interpreter, shape []int, dt DType) (*NDArray, error) {
		a, err := in.randomArray(shapeValues(shape), in.rng.Float64)
		if err != nil {
			return nil, err
		}
		return a.astype(dt), nil
	}))
	add("randn", torchFactory(func(in *Interpreter, shape []int, dt DType) (*NDArray, error) {
		a, err := in.randomArray(shapeValues(shape), in.rng.NormFloat64)
		if err != nil {
			return nil, err
		}
		return a.astype(dt), nil
	}))
	add("zeros_like", torchLike(0))
	add("ones_like", torchLike(1))
	add("full", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		v, err := npFull(in, args, kwargs)
		if err != nil {
			return nil, err
		}
		a := v.(*NDArray)
		return &Tensor{Array: a.astype(tensorDType(a.DType))}, nil
	})
	add("arange", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		v, err := npArange(in, args, kwargs)
		if err != nil {
			return nil, err
		}
		a := v.(*NDArray)
		return &Tensor{Array: a.astype(tensorDType(a.DType))}, nil
	})
	add("linspace", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		rest := kwargs[:0:0]
		for _, kw := range kwargs {
			if kw.Name == "steps" {
				kw.Name = "num"
			}
			rest = append(rest, kw)
		}
		v, err := npLinspace(in, args, rest)
		if err != nil {
			return nil, err
		}
		return &Tensor{Array: v.(*NDArray).astype(DTypeFloat32)}, nil
	})
	add("eye", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		v, err := npEye(in, args, kwargs)
		if err != nil {
			return nil, err
		}
		a := v.(*NDArray)
		return &Tensor{Array: a.astype(tensorDType(a.DType))}, nil
	})
	for _, name := range []string{"sum", "mean", "max", "min", "argmax", "argmin", "std", "var", "prod"} {
		name := name
		add(name, func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) == 0 {
				return nil, newError(excTypeError, "%s() missing required argument 'input'", name)
			}
			t, err := asTensor(args[0])
			if err != nil {
				return nil, err
			}
			return t.reduce(name, args[1:], kwargs)
		})
	}
	for name := range torchFuncs {
		name := name
		add(name, func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			t, err := asTensor(args[0])
			if err != nil {
				return nil, err
			}
			return t.wrap(torchMap(t.Array, name)), nil
		})
	}
	matmulFn := func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("matmul", args, 2); err != nil {
			return nil, err
		}
		return tensorBinary("@", args[0], args[1])
	}
	add("matmul", matmulFn)
	add("mm", matmulFn)
	add("dot", matmulFn)
	add("cat", torchJoin("cat", npConcatenate))
	add("stack", torchJoin("stack", npStack))
	add("manual_seed", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("manual_seed", args, 1); err != nil {
			return nil, err
		}
		s, ok := asInt(args[0])
		if !ok {
			return nil, newError(excTypeError, "manual_seed expected an int")
		}
		in.rng.Seed(s)
		return None, nil
	})
	add("is_tensor", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("is_tensor", args, 1); err != nil {
			return nil, err
		}
		_, ok := args[0].(*Tensor)
		return Bool(ok), nil
	})
	nn := newNNModule()
	m.Attrs["nn"] = nn
	return m
}

func shapeValues(shape []int) []Value {
	out := make([]Value, len(shape))
	for i, d := range shape {
		out[i] = Int(d)
	}
	return []Value{&Tuple{Elems: out}}
}

func asTensor(v Value) (*Tensor, error) {
	if t, ok := v.(*Tensor); ok {
		return t, nil
	}
	return nil, newError(excTypeError, "expected Tensor as argument, but got %s", v.TypeName())
}

func torchTensor(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
	if err != nil {
		return nil, err
	}
	spec, err := parseArgs("tensor", args, kwargs, "data", "requires_grad?")
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
	if !hasDT {
		dt = a.DType
		if _, isArr := spec.get(0).(*NDArray); !isArr {
			dt = tensorDType(a.DType)
		}
	}
	grad, err := spec.bool(1, false)
	if err != nil {
		return nil, err
	}
	if grad && !dt.isFloat() {
		return nil, newError(excRuntimeError, "Only Tensors of floating point and complex dtype can require gradients")
	}
	return &Tensor{Array: a.astype(dt), RequiresGrad: grad}, nil
}

// torchFactory builds constructors taking a shape as varargs or a tuple.
func torchFactory(build func(in *Interpreter, shape []int, dt DType) (*NDArray, error)) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		dt, hasDT, kwargs, err := dtypeKwarg(kwargs)
		if err != nil {
			return nil, err
		}
		if !hasDT {
			dt = DTypeFloat32
		}
		grad := false
		for _, kw := range kwargs {
			if kw.Name != "requires_grad" {
				return nil, newError(excTypeError, "got an unexpected keyword argument '%s'", kw.Name)
			}
			if grad, err = Truthy(kw.Value); err != nil {
				return nil, err
			}
		}
		shape, err := shapeArgs(args)
		if err != nil {
			return nil, err
		}
		a, err := build(in, shape, dt)
		if err != nil {
			return nil, err
		}
		return &Tensor{Array: a, RequiresGrad: grad}, nil
	}
}

func torchLike(fill float64) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("zeros_like", args, 1); err != nil {
			return nil, err
		}
		t, err := asTensor(args[0])
		if err != nil {
			return nil, err
		}
		a, err := in.filledArray(t.Array.Shape, fill, t.Array.DType)
		if err != nil {
			return nil, err
		}
		return &Tensor{Array: a}, nil
	}
}

func torchJoin(name string, join BuiltinFunc) BuiltinFunc {
	return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if len(args) == 0 {
			return nil, newError(excTypeError, "%s() missing required argument 'tensors'", name)
		}
		elems, err := in.collect(args[0])
		if err != nil {
			return nil, err
		}
		grad := false
		for _, e := range elems {
			t, err := asTensor(e)
			if err != nil {
				return nil, err
			}
			grad = grad || t.RequiresGrad
		}
		v, err := join(in, args[:1], nil)
		if err != nil {
			return nil, err
		}
		return &Tensor{Array: v.(*NDArray), RequiresGrad: grad}, nil
	}
}

// =============================================================================
// torch.nn
// =============================================================================

// Layer is a torch.nn module: Linear, an activation, or a Sequential
// container.
type Layer struct {
	Kind     string
	In, Out  int
	Weight   *Tensor
	Bias     *Tensor
	Children []*Layer
}

func (l *Layer) TypeName() string { return l.Kind }

func (l *Layer) repr() string {
	switch l.Kind {
	case "Linear":
		return fmt.Sprintf("Linear(in_features=%d, out_features=%d, bias=%s)", l.In, l.Out, boolRepr(l.Bias != nil))
	case "Sequential":
		var b strings.Builder
		b.WriteString("Sequential(\n")
		for i, c := range l.Children {
			fmt.Fprintf(&b, "  (%d): %s\n", i, strings.ReplaceAll(c.repr(), "\n", "\n  "))
		}
		b.WriteString(")")
		return b.String()
	}
	return l.Kind + "()"
}

func boolRepr(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func (l *Layer) forward(in *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, newError(excTypeError, "forward() takes 1 positional argument but %d were given", len(args))
	}
	x := args[0]
	switch l.Kind {
	case "Sequential":
		for _, c := range l.Children {
			var err error
			if x, err = c.forward(in, []Value{x}); err != nil {
				return nil, err
			}
		}
		return x, nil
	case "Linear":
		t, err := asTensor(x)
		if err != nil {
			return nil, newError(excTypeError, "linear(): argument 'input' must be Tensor, not %s", x.TypeName())
		}
		last := 0
		if n := len(t.Array.Shape); n > 0 {
			last = t.Array.Shape[n-1]
		}
		if last != l.In {
			return nil, newError(excRuntimeError, "mat1 and mat2 shapes cannot be multiplied (%s and %dx%d)", matShape(t.Array.Shape), l.In, l.Out)
		}
		y, err := tensorBinary("@", t, l.Weight.wrap(l.Weight.Array.transpose()))
		if err != nil {
			return nil, err
		}
		if l.Bias != nil {
			return tensorBinary("+", y, l.Bias)
		}
		return y, nil
	}
	t, err := asTensor(x)
	if err != nil {
		return nil, err
	}
	return t.wrap(torchMap(t.Array, strings.ToLower(l.Kind))), nil
}

func matShape(shape []int) string {
	switch len(shape) {
	case 0:
		return "0x0"
	case 1:
		return fmt.Sprintf("1x%d", shape[0])
	}
	return fmt.Sprintf("%dx%d", shapeSize(shape[:len(shape)-1]), shape[len(shape)-1])
}

func (l *Layer) attr(name string) (Value, bool) {
	switch name {
	case "weight":
		if l.Weight != nil {
			return l.Weight, true
		}
	case "bias":
		if l.Kind == "Linear" {
			if l.Bias == nil {
				return None, true
			}
			return l.Bias, true
		}
	case "in_features":
		if l.Kind == "Linear" {
			return Int(l.In), true
		}
	case "out_features":
		if l.Kind == "Linear" {
			return Int(l.Out), true
		}
	case "forward":
		return &BoundMethod{Recv: l, Name: name, Fn: func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return l.forward(in, args)
		}}, true
	case "parameters":
		return &BoundMethod{Recv: l, Name: name, Fn: func(*Interpreter, []Value, []Kwarg) (Value, error) {
			var out []Value
			for _, p := range l.parameters() {
				out = append(out, p)
			}
			return &List{Elems: out}, nil
		}}, true
	case "children":
		return &BoundMethod{Recv: l, Name: name, Fn: func(*Interpreter, []Value, []Kwarg) (Value, error) {
			out := make([]Value, len(l.Children))
			for i, c := range l.Children {
				out[i] = c
			}
			return &List{Elems: out}, nil
		}}, true
	}
	return nil, false
}

func (l *Layer) parameters() []*Tensor {
	var out []*Tensor
	if l.Weight != nil {
		out = append(out, l.Weight)
	}
	if l.Bias != nil {
		out = append(out, l.Bias)
	}
	for _, c := range l.Children {
		out = append(out, c.parameters()...)
	}
	return out
}

func newNNModule() *Module {
	m := &Module{Name: "torch.nn", Attrs: map[string]Value{}}
	m.Attrs["Linear"] = &TypeObject{Name: "Linear", Call: newLinear}
	for _, kind := range []string{"ReLU", "Sigmoid", "Tanh"} {
		kind := kind
		m.Attrs[kind] = &TypeObject{Name: kind, Call: func(*Interpreter, []Value, []Kwarg) (Value, error) {
			return &Layer{Kind: kind}, nil
		}}
	}
	m.Attrs["Sequential"] = &TypeObject{Name: "Sequential", Call: func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := noKwargs("Sequential", kwargs); err != nil {
			return nil, err
		}
		seq := &Layer{Kind: "Sequential"}
		for _, a := range args {
			l, ok := a.(*Layer)
			if !ok {
				return nil, newError(excTypeError, "%s is not a Module subclass", a.TypeName())
			}
			seq.Children = append(seq.Children, l)
		}
		return seq, nil
	}}
	fn := &Module{Name: "torch.nn.functional", Attrs: map[string]Value{}}
	for _, name := range []string{"relu", "sigmoid", "tanh"} {
		name := name
		fn.Attrs[name] = &Builtin{Name: name, Fn: func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			t, err := asTensor(args[0])
			if err != nil {
				return nil, err
			}
			return t.wrap(torchMap(t.Array, name)), nil
		}}
	}
	m.Attrs["functional"] = fn
	return m
}

func newLinear(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
	spec, err := parseArgs("Linear", args, kwargs, "in_features", "out_features", "bias?")
	if err != nil {
		return nil, err
	}
	nIn, err := spec.int(0, 0)
	if err != nil {
		return nil, err
	}
	nOut, err := spec.int(1, 0)
	if err != nil {
		return nil, err
	}
	bias, err := spec.bool(2, true)
	if err != nil {
		return nil, err
	}
	if nIn < 0 || nOut < 0 {
		return nil, newError(excRuntimeError, "Trying to create tensor with negative dimension")
	}
	if err := in.checkAlloc(int(nIn * nOut)); err != nil {
		return nil, err
	}
	bound := 0.0
	if nIn > 0 {
		bound = 1 / math.Sqrt(float64(nIn))
	}
	uniform := func(n int) *Tensor {
		a := newArray([]int{n}, DTypeFloat32)
		for i := range a.Data {
			a.Data[i] = coerce(-bound+2*bound*in.rng.Float64(), DTypeFloat32)
		}
		return &Tensor{Array: a, RequiresGrad: true}
	}
	l := &Layer{Kind: "Linear", In: int(nIn), Out: int(nOut)}
	l.Weight = uniform(int(nIn * nOut))
	l.Weight.Array.Shape = []int{int(nOut), int(nIn)}
	if bias {
		l.Bias = uniform(int(nOut))
	}
	return l, nil
}
