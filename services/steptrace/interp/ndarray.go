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

	"gonum.org/v1/gonum/floats"
)

// =============================================================================
// NDArray
// =============================================================================

// DType is the element type of an NDArray.
type DType string

const (
	DTypeFloat64 DType = "float64"
	DTypeFloat32 DType = "float32"
	DTypeInt64   DType = "int64"
	DTypeBool    DType = "bool"
)

// kind orders dtypes for promotion.
func (d DType) kind() int {
	switch d {
	case DTypeBool:
		return 0
	case DTypeInt64:
		return 1
	case DTypeFloat32:
		return 2
	}
	return 3
}

func (d DType) isFloat() bool { return d == DTypeFloat64 || d == DTypeFloat32 }

// promote returns the result dtype of combining a and b.
func promote(a, b DType) DType {
	if a.kind() >= b.kind() {
		return a
	}
	return b
}

// NDArray is a dense row-major numeric array. Every dtype is stored as
// float64; integer and bool arrays keep integral values.
type NDArray struct {
	Shape []int
	Data  []float64
	DType DType
}

func (*NDArray) TypeName() string { return "ndarray" }

// Size returns the element count.
func (a *NDArray) Size() int { return len(a.Data) }

// NDim returns the number of axes.
func (a *NDArray) NDim() int { return len(a.Shape) }

// Elem returns the i-th flat element as a scalar value of the array dtype.
func (a *NDArray) Elem(i int) Value {
	return scalarOf(a.Data[i], a.DType)
}

func newArray(shape []int, dtype DType) *NDArray {
	return &NDArray{Shape: append([]int(nil), shape...), Data: make([]float64, shapeSize(shape)), DType: dtype}
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// truncInt truncates toward zero, the int cast numpy applies on assignment.
func truncInt(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return math.MinInt64
	}
	return math.Trunc(f)
}

// coerce normalizes a raw float to the storage rules of dtype.
func coerce(f float64, dtype DType) float64 {
	switch dtype {
	case DTypeBool:
		if f != 0 {
			return 1
		}
		return 0
	case DTypeInt64:
		return truncInt(f)
	case DTypeFloat32:
		return float64(float32(f))
	}
	return f
}

func scalarOf(f float64, dtype DType) Value {
	switch dtype {
	case DTypeBool:
		return Bool(f != 0)
	case DTypeInt64:
		return Int(int64(f))
	}
	return Float(f)
}

// scalarArray wraps a scalar as a 0-d array.
func scalarArray(v Value, dtype DType) *NDArray {
	f, _ := asFloat(v)
	return &NDArray{Shape: []int{}, Data: []float64{coerce(f, dtype)}, DType: dtype}
}

func (a *NDArray) copyArray() *NDArray {
	return &NDArray{Shape: append([]int(nil), a.Shape...), Data: append([]float64(nil), a.Data...), DType: a.DType}
}

func (a *NDArray) astype(dtype DType) *NDArray {
	out := &NDArray{Shape: append([]int(nil), a.Shape...), Data: make([]float64, len(a.Data)), DType: dtype}
	for i, f := range a.Data {
		out.Data[i] = coerce(f, dtype)
	}
	return out
}

func (a *NDArray) truth() (bool, error) {
	switch len(a.Data) {
	case 0:
		return false, nil
	case 1:
		return a.Data[0] != 0, nil
	}
	return false, newError(excValueError, "The truth value of an array with more than one element is ambiguous. Use a.any() or a.all()")
}

// rows iterates the first axis: scalars for 1-d arrays, sub-arrays otherwise.
func (a *NDArray) rows() []Value {
	if len(a.Shape) == 0 {
		return []Value{a.Elem(0)}
	}
	n := a.Shape[0]
	out := make([]Value, n)
	if len(a.Shape) == 1 {
		for i := 0; i < n; i++ {
			out[i] = a.Elem(i)
		}
		return out
	}
	inner := shapeSize(a.Shape[1:])
	for i := 0; i < n; i++ {
		out[i] = &NDArray{
			Shape: append([]int(nil), a.Shape[1:]...),
			Data:  append([]float64(nil), a.Data[i*inner:(i+1)*inner]...),
			DType: a.DType,
		}
	}
	return out
}

// ToList converts the array to nested lists of scalars.
func (a *NDArray) ToList() Value {
	if len(a.Shape) == 0 {
		return a.Elem(0)
	}
	rows := a.rows()
	for i, r := range rows {
		if sub, ok := r.(*NDArray); ok {
			rows[i] = sub.ToList()
		}
	}
	return &List{Elems: rows}
}

// =============================================================================
// Construction from script values
// =============================================================================

// toArray converts lists, tuples, ranges and scalars to an array. weak
// reports a bare scalar operand, whose kind only matters when it outranks
// the other operand.
func toArray(v Value) (arr *NDArray, weak bool, err error) {
	switch x := v.(type) {
	case *NDArray:
		return x, false, nil
	case *Tensor:
		return x.Array, false, nil
	case Bool:
		return scalarArray(x, DTypeBool), true, nil
	case Int:
		return scalarArray(x, DTypeInt64), true, nil
	case Float:
		return scalarArray(x, DTypeFloat64), true, nil
	}
	a, err := arrayFromNested(v)
	return a, false, err
}

func arrayFromNested(v Value) (*NDArray, error) {
	var shape []int
	var data []float64
	dtype := DTypeBool
	first := true
	var walk func(v Value, depth int) error
	walk = func(v Value, depth int) error {
		var elems []Value
		switch x := v.(type) {
		case *List:
			elems = x.Elems
		case *Tuple:
			elems = x.Elems
		case *Range:
			n := x.Len()
			elems = make([]Value, n)
			for i := int64(0); i < n; i++ {
				elems[i] = Int(x.At(i))
			}
		case *NDArray:
			elems = x.rows()
		case *Tensor:
			elems = x.Array.rows()
		default:
			if depth != len(shape) && !first {
				return errInhomogeneous()
			}
			if first {
				first = false
			}
			f, ok := asFloat(v)
			if !ok {
				return newError(excTypeError, "could not convert '%s' to a numeric array element", v.TypeName())
			}
			switch v.(type) {
			case Float:
				dtype = promote(dtype, DTypeFloat64)
			case Int:
				dtype = promote(dtype, DTypeInt64)
			}
			data = append(data, f)
			return nil
		}
		if first {
			shape = append(shape, len(elems))
		} else if depth >= len(shape) || shape[depth] != len(elems) {
			return errInhomogeneous()
		}
		if len(elems) == 0 && first {
			first = false
			dtype = DTypeFloat64
		}
		for _, e := range elems {
			if err := walk(e, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(v, 0); err != nil {
		return nil, err
	}
	if shapeSize(shape) != len(data) {
		return nil, errInhomogeneous()
	}
	if shape == nil {
		shape = []int{}
	}
	return &NDArray{Shape: shape, Data: data, DType: dtype}, nil
}

func errInhomogeneous() *Exception {
	return newError(excValueError, "setting an array element with a sequence. The requested array has an inhomogeneous shape")
}

// =============================================================================
// Formatting
// =============================================================================

func (a *NDArray) repr() string {
	const prefix = "array("
	body := a.format(", ", ",\n", len(prefix))
	if a.DType == DTypeFloat32 || (len(a.Data) == 0 && a.DType != DTypeFloat64) {
		return prefix + body + ", dtype=" + string(a.DType) + ")"
	}
	return prefix + body + ")"
}

func (a *NDArray) str() string {
	return a.format(" ", "\n", 0)
}

// format renders nested brackets. indent is the column of the outermost
// bracket, used to align continuation rows.
func (a *NDArray) format(sep, rowSep string, indent int) string {
	return layout(a.Shape, a.cells(), sep, rowSep, indent)
}

func layout(shape []int, cells []string, sep, rowSep string, indent int) string {
	if len(shape) == 0 {
		return cells[0]
	}
	var b strings.Builder
	var rec func(axis, offset, depth int)
	st := strides(shape)
	rec = func(axis, offset, depth int) {
		b.WriteByte('[')
		n := shape[axis]
		for i := 0; i < n; i++ {
			if i > 0 {
				if axis == len(shape)-1 {
					b.WriteString(sep)
				} else {
					b.WriteString(rowSep)
					if axis < len(shape)-2 {
						b.WriteString("\n")
					}
					b.WriteString(strings.Repeat(" ", indent+depth+1))
				}
			}
			if axis == len(shape)-1 {
				b.WriteString(cells[offset+i])
			} else {
				rec(axis+1, offset+i*st[axis], depth+1)
			}
		}
		b.WriteByte(']')
	}
	rec(0, 0, 0)
	return b.String()
}

// cells renders every element with a shared width the way numpy aligns
// columns.
func (a *NDArray) cells() []string {
	out := make([]string, len(a.Data))
	switch a.DType {
	case DTypeBool:
		for i, f := range a.Data {
			if f != 0 {
				out[i] = "True"
			} else {
				out[i] = "False"
			}
		}
	case DTypeInt64:
		for i, f := range a.Data {
			out[i] = strconv.FormatInt(int64(f), 10)
		}
	default:
		prec := 0
		for _, f := range a.Data {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			s := strconv.FormatFloat(roundDigits(f, 8), 'f', -1, 64)
			if _, frac, ok := strings.Cut(s, "."); ok && len(frac) > prec {
				prec = len(frac)
			}
		}
		for i, f := range a.Data {
			switch {
			case math.IsNaN(f):
				out[i] = "nan"
			case math.IsInf(f, 1):
				out[i] = "inf"
			case math.IsInf(f, -1):
				out[i] = "-inf"
			default:
				c := strconv.FormatFloat(f, 'f', prec, 64)
				if prec > 0 {
					c = strings.TrimRight(c, "0")
				} else {
					c += "."
				}
				frac := len(c) - strings.IndexByte(c, '.') - 1
				out[i] = c + strings.Repeat(" ", prec-frac)
			}
		}
	}
	if len(a.Shape) > 0 {
		width := 0
		for _, c := range out {
			if len(c) > width {
				width = len(c)
			}
		}
		for i, c := range out {
			out[i] = strings.Repeat(" ", width-len(c)) + c
		}
	}
	return out
}

// =============================================================================
// Indexing
// =============================================================================

// selector picks along one axis: a single index drops the axis, a list of
// indices keeps it.
type selector struct {
	index int
	list  []int
	drop  bool
}

func (a *NDArray) selectors(idx Value) ([]selector, error) {
	var parts []Value
	if t, ok := idx.(*Tuple); ok {
		parts = t.Elems
	} else {
		parts = []Value{idx}
	}
	if len(parts) > len(a.Shape) {
		return nil, newError(excIndexError, "too many indices for array: array is %d-dimensional, but %d were indexed", len(a.Shape), len(parts))
	}
	sels := make([]selector, len(a.Shape))
	for axis := range a.Shape {
		n := a.Shape[axis]
		if axis >= len(parts) {
			sels[axis] = selector{list: rangeList(0, n, 1)}
			continue
		}
		switch p := parts[axis].(type) {
		case *Slice:
			list, err := p.indices(n)
			if err != nil {
				return nil, err
			}
			sels[axis] = selector{list: list}
		case *List, *NDArray:
			elems, err := indexList(p)
			if err != nil {
				return nil, err
			}
			list := make([]int, len(elems))
			for i, e := range elems {
				j, err := arrayIndex(e, n, axis)
				if err != nil {
					return nil, err
				}
				list[i] = j
			}
			sels[axis] = selector{list: list}
		default:
			i, ok := asInt(p)
			if !ok {
				return nil, newError(excIndexError, "only integers, slices (`:`), ellipsis (`...`), numpy.newaxis (`None`) and integer or boolean arrays are valid indices")
			}
			j, err := arrayIndex(i, n, axis)
			if err != nil {
				return nil, err
			}
			sels[axis] = selector{index: j, drop: true}
		}
	}
	return sels, nil
}

func indexList(v Value) ([]int64, error) {
	var elems []Value
	switch x := v.(type) {
	case *List:
		elems = x.Elems
	case *NDArray:
		if x.DType.isFloat() {
			return nil, newError(excIndexError, "arrays used as indices must be of integer (or boolean) type")
		}
		elems = x.rows()
	}
	out := make([]int64, len(elems))
	for i, e := range elems {
		n, ok := asInt(e)
		if !ok {
			return nil, newError(excIndexError, "arrays used as indices must be of integer (or boolean) type")
		}
		out[i] = n
	}
	return out, nil
}

func arrayIndex(i int64, n, axis int) (int, error) {
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		orig := i
		if orig < 0 {
			orig -= int64(n)
		}
		return 0, newError(excIndexError, "index %d is out of bounds for axis %d with size %d", orig, axis, n)
	}
	return int(i), nil
}

func rangeList(start, stop, step int) []int {
	out := make([]int, 0, (stop-start)/step)
	for i := start; i < stop; i += step {
		out = append(out, i)
	}
	return out
}

// gather resolves selectors to the result shape and source offsets.
func (a *NDArray) gather(sels []selector) (shape []int, offsets []int) {
	st := strides(a.Shape)
	offsets = []int{0}
	shape = []int{}
	for axis, s := range sels {
		if s.drop {
			for i := range offsets {
				offsets[i] += s.index * st[axis]
			}
			continue
		}
		shape = append(shape, len(s.list))
		next := make([]int, 0, len(offsets)*len(s.list))
		for _, o := range offsets {
			for _, j := range s.list {
				next = append(next, o+j*st[axis])
			}
		}
		offsets = next
	}
	return shape, offsets
}

// boolMask reports whether idx is a boolean mask with a's shape.
func (a *NDArray) boolMask(idx Value) ([]int, bool, error) {
	m, ok := idx.(*NDArray)
	if !ok || m.DType != DTypeBool {
		return nil, false, nil
	}
	if !sameShape(m.Shape, a.Shape) {
		return nil, true, newError(excIndexError, "boolean index did not match indexed array")
	}
	var offsets []int
	for i, f := range m.Data {
		if f != 0 {
			offsets = append(offsets, i)
		}
	}
	return offsets, true, nil
}

func (a *NDArray) getItem(idx Value) (Value, error) {
	if offsets, ok, err := a.boolMask(idx); ok || err != nil {
		if err != nil {
			return nil, err
		}
		out := &NDArray{Shape: []int{len(offsets)}, Data: make([]float64, len(offsets)), DType: a.DType}
		for i, o := range offsets {
			out.Data[i] = a.Data[o]
		}
		return out, nil
	}
	if len(a.Shape) == 0 {
		return nil, newError(excIndexError, "too many indices for array: array is 0-dimensional, but 1 were indexed")
	}
	sels, err := a.selectors(idx)
	if err != nil {
		return nil, err
	}
	shape, offsets := a.gather(sels)
	if len(shape) == 0 {
		return a.Elem(offsets[0]), nil
	}
	out := &NDArray{Shape: shape, Data: make([]float64, len(offsets)), DType: a.DType}
	for i, o := range offsets {
		out.Data[i] = a.Data[o]
	}
	return out, nil
}

func (a *NDArray) setItem(idx, v Value) error {
	var shape, offsets []int
	if off, ok, err := a.boolMask(idx); ok || err != nil {
		if err != nil {
			return err
		}
		shape, offsets = []int{len(off)}, off
	} else {
		if len(a.Shape) == 0 {
			return newError(excIndexError, "too many indices for array")
		}
		sels, err := a.selectors(idx)
		if err != nil {
			return err
		}
		shape, offsets = a.gather(sels)
	}
	src, _, err := toArray(v)
	if err != nil {
		return err
	}
	b, err := broadcastTo(src, shape)
	if err != nil {
		return err
	}
	for i, o := range offsets {
		a.Data[o] = coerce(b.Data[i], a.DType)
	}
	return nil
}

// =============================================================================
// Broadcasting
// =============================================================================

func broadcastShape(a, b []int) ([]int, bool) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if j := len(a) - n + i; j >= 0 {
			da = a[j]
		}
		if j := len(b) - n + i; j >= 0 {
			db = b[j]
		}
		switch {
		case da == db, db == 1:
			out[i] = da
		case da == 1:
			out[i] = db
		default:
			return nil, false
		}
	}
	return out, true
}

// offsetsFor maps every index of shape to a flat offset into src, whose
// shape broadcasts to shape.
func offsetsFor(src, shape []int) []int {
	st := strides(src)
	total := shapeSize(shape)
	out := make([]int, total)
	idx := make([]int, len(shape))
	for k := 0; k < total; k++ {
		off := 0
		for i := range shape {
			j := len(src) - len(shape) + i
			if j >= 0 && src[j] != 1 {
				off += idx[i] * st[j]
			}
		}
		out[k] = off
		for i := len(shape) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func broadcastTo(a *NDArray, shape []int) (*NDArray, error) {
	if sameShape(a.Shape, shape) {
		return a, nil
	}
	if got, ok := broadcastShape(a.Shape, shape); !ok || !sameShape(got, shape) {
		return nil, newError(excValueError, "could not broadcast input array from shape %s into shape %s", shapeRepr(a.Shape), shapeRepr(shape))
	}
	out := &NDArray{Shape: append([]int(nil), shape...), Data: make([]float64, shapeSize(shape)), DType: a.DType}
	for i, o := range offsetsFor(a.Shape, shape) {
		out.Data[i] = a.Data[o]
	}
	return out, nil
}

func shapeRepr(shape []int) string {
	elems := make([]Value, len(shape))
	for i, d := range shape {
		elems[i] = Int(d)
	}
	return Repr(&Tuple{Elems: elems})
}

// elementwise applies fn over the broadcast of a and b.
func elementwise(a, b *NDArray, dtype DType, fn func(x, y float64) float64) (*NDArray, error) {
	shape, ok := broadcastShape(a.Shape, b.Shape)
	if !ok {
		return nil, newError(excValueError, "operands could not be broadcast together with shapes %s %s", shapeRepr(a.Shape), shapeRepr(b.Shape))
	}
	out := &NDArray{Shape: shape, Data: make([]float64, shapeSize(shape)), DType: dtype}
	if sameShape(a.Shape, shape) && sameShape(b.Shape, shape) {
		for i := range out.Data {
			out.Data[i] = coerce(fn(a.Data[i], b.Data[i]), dtype)
		}
		return out, nil
	}
	oa, ob := offsetsFor(a.Shape, shape), offsetsFor(b.Shape, shape)
	for i := range out.Data {
		out.Data[i] = coerce(fn(a.Data[oa[i]], b.Data[ob[i]]), dtype)
	}
	return out, nil
}

// resultDType applies numpy promotion with weak Python scalars.
func resultDType(a *NDArray, aWeak bool, b *NDArray, bWeak bool) DType {
	switch {
	case aWeak && !bWeak:
		if a.DType.kind() > b.DType.kind() && !(a.DType.isFloat() && b.DType.isFloat()) {
			if a.DType.isFloat() && b.DType == DTypeFloat32 {
				return DTypeFloat32
			}
			return a.DType
		}
		return b.DType
	case bWeak && !aWeak:
		return resultDType(b, true, a, false)
	}
	return promote(a.DType, b.DType)
}

// =============================================================================
// Operators
// =============================================================================

func (in *Interpreter) arrayBinary(op string, x, y Value) (Value, error) {
	a, aWeak, err := toArray(x)
	if err != nil {
		return nil, unsupportedOperand(op, x, y)
	}
	b, bWeak, err := toArray(y)
	if err != nil {
		return nil, unsupportedOperand(op, x, y)
	}
	if op == "@" {
		return matmul(a, b)
	}
	if err := in.checkAlloc(max(a.Size(), b.Size())); err != nil {
		return nil, err
	}
	return arrayArith(op, a, b, resultDType(a, aWeak, b, bWeak), x, y)
}

// arrayArith applies an arithmetic or bitwise operator element-wise. x and
// y are the original operands, used in error messages.
func arrayArith(op string, a, b *NDArray, dtype DType, x, y Value) (*NDArray, error) {
	var fn func(x, y float64) float64
	switch op {
	case "+":
		fn = func(x, y float64) float64 { return x + y }
	case "-":
		if dtype == DTypeBool {
			return nil, newError(excTypeError, "numpy boolean subtract, the `-` operator, is not supported, use the bitwise_xor, the `^` operator, or the logical_xor function instead.")
		}
		fn = func(x, y float64) float64 { return x - y }
	case "*":
		fn = func(x, y float64) float64 { return x * y }
	case "/":
		if !dtype.isFloat() {
			dtype = DTypeFloat64
		}
		fn = func(x, y float64) float64 { return x / y }
	case "//":
		fn = func(x, y float64) float64 {
			if y == 0 && !dtype.isFloat() {
				return 0
			}
			return math.Floor(x / y)
		}
	case "%":
		fn = func(x, y float64) float64 {
			if y == 0 && !dtype.isFloat() {
				return 0
			}
			return pyMod(x, y)
		}
	case "**":
		fn = math.Pow
	case "&", "|", "^":
		if dtype.isFloat() {
			return nil, newError(excTypeError, "ufunc 'bitwise_%s' not supported for the input types", bitwiseName(op))
		}
		fn = func(x, y float64) float64 {
			xi, yi := int64(x), int64(y)
			switch op {
			case "&":
				return float64(xi & yi)
			case "|":
				return float64(xi | yi)
			}
			return float64(xi ^ yi)
		}
	case "<<", ">>":
		if dtype.isFloat() {
			return nil, unsupportedOperand(op, x, y)
		}
		fn = func(x, y float64) float64 {
			if op == "<<" {
				return float64(int64(x) << uint64(y))
			}
			return float64(int64(x) >> uint64(y))
		}
	default:
		return nil, unsupportedOperand(op, x, y)
	}
	return elementwise(a, b, dtype, fn)
}

func bitwiseName(op string) string {
	switch op {
	case "&":
		return "and"
	case "|":
		return "or"
	}
	return "xor"
}

func unsupportedOperand(op string, a, b Value) *Exception {
	return newError(excTypeError, "unsupported operand type(s) for %s: '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

// arrayCompare compares arrays or tensors element-wise.
func arrayCompare(op string, x, y Value) (Value, error) {
	ta, aTen := x.(*Tensor)
	tb, bTen := y.(*Tensor)
	a, _, err := toArray(x)
	if err != nil {
		return nil, err
	}
	b, _, err := toArray(y)
	if err != nil {
		return nil, err
	}
	var fn func(x, y float64) bool
	switch op {
	case "==":
		fn = func(x, y float64) bool { return x == y }
	case "!=":
		fn = func(x, y float64) bool { return x != y }
	case "<":
		fn = func(x, y float64) bool { return x < y }
	case "<=":
		fn = func(x, y float64) bool { return x <= y }
	case ">":
		fn = func(x, y float64) bool { return x > y }
	case ">=":
		fn = func(x, y float64) bool { return x >= y }
	default:
		return nil, newError(excTypeError, "'%s' not supported between instances of '%s' and '%s'", op, x.TypeName(), y.TypeName())
	}
	out, err := elementwise(a, b, DTypeBool, func(x, y float64) float64 {
		if fn(x, y) {
			return 1
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	switch {
	case aTen:
		return ta.wrap(out), nil
	case bTen:
		return tb.wrap(out), nil
	}
	return out, nil
}

func (a *NDArray) unary(op string) (*NDArray, error) {
	out := a.copyArray()
	switch op {
	case "-":
		if a.DType == DTypeBool {
			return nil, newError(excTypeError, "The numpy boolean negative, the `-` operator, is not supported, use the `~` operator or the logical_not function instead.")
		}
		floats.Scale(-1, out.Data)
	case "+":
	case "~":
		for i, f := range out.Data {
			if a.DType == DTypeBool {
				out.Data[i] = 1 - f
			} else if a.DType == DTypeInt64 {
				out.Data[i] = float64(^int64(f))
			} else {
				return nil, newError(excTypeError, "ufunc 'invert' not supported for the input types")
			}
		}
	case "abs":
		for i, f := range out.Data {
			out.Data[i] = math.Abs(f)
		}
	default:
		return nil, newError(excTypeError, "bad operand type for unary %s: 'ndarray'", op)
	}
	return out, nil
}

func (a *NDArray) round(digits int) *NDArray {
	out := a.copyArray()
	p := math.Pow(10, float64(digits))
	for i, f := range out.Data {
		out.Data[i] = math.RoundToEven(f*p) / p
	}
	return out
}
