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
	"unicode/utf8"
)

// =============================================================================
// Iteration
// =============================================================================

// iterator yields the next element; ok is false once exhausted.
type iterator func() (v Value, ok bool, err error)

// iterate returns an iterator over v. Lists are iterated live by index so
// appends during a loop are seen, like the reference semantics.
func (in *Interpreter) iterate(v Value) (iterator, error) {
	switch x := v.(type) {
	case *List:
		i := 0
		return func() (Value, bool, error) {
			if i >= len(x.Elems) {
				return nil, false, nil
			}
			i++
			return x.Elems[i-1], true, nil
		}, nil
	case *Range:
		i, n := int64(0), x.Len()
		return func() (Value, bool, error) {
			if i >= n {
				return nil, false, nil
			}
			i++
			return Int(x.At(i - 1)), true, nil
		}, nil
	case Str:
		s := string(x)
		return func() (Value, bool, error) {
			if s == "" {
				return nil, false, nil
			}
			r, size := utf8.DecodeRuneInString(s)
			s = s[size:]
			return Str(string(r)), true, nil
		}, nil
	}
	elems, err := in.collect(v)
	if err != nil {
		return nil, err
	}
	i := 0
	return func() (Value, bool, error) {
		if i >= len(elems) {
			return nil, false, nil
		}
		i++
		return elems[i-1], true, nil
	}, nil
}

// collect materializes the elements of an iterable.
func (in *Interpreter) collect(v Value) ([]Value, error) {
	switch x := v.(type) {
	case *List:
		return append([]Value(nil), x.Elems...), nil
	case *Tuple:
		return append([]Value(nil), x.Elems...), nil
	case *Dict:
		return x.Keys(), nil
	case *Range:
		n := x.Len()
		if err := in.checkAlloc(int(n)); err != nil {
			return nil, err
		}
		out := make([]Value, n)
		for i := int64(0); i < n; i++ {
			out[i] = Int(x.At(i))
		}
		return out, nil
	case Str:
		out := make([]Value, 0, len(x))
		for _, r := range string(x) {
			out = append(out, Str(string(r)))
		}
		return out, nil
	case *NDArray:
		return x.rows(), nil
	case *Tensor:
		rows := x.Array.rows()
		for i, r := range rows {
			if a, ok := r.(*NDArray); ok {
				rows[i] = x.wrap(a)
			} else {
				rows[i] = x.wrap(scalarArray(r, x.Array.DType))
			}
		}
		return rows, nil
	case *Layer:
		if x.Kind == "Sequential" {
			out := make([]Value, len(x.Children))
			for i, c := range x.Children {
				out[i] = c
			}
			return out, nil
		}
	}
	return nil, newError(excTypeError, "'%s' object is not iterable", v.TypeName())
}

// =============================================================================
// Indexing
// =============================================================================

// normIndex resolves a possibly negative index against length n.
func normIndex(idx Value, n int, what string) (int, error) {
	i, ok := asInt(idx)
	if !ok {
		return 0, newError(excTypeError, "%s indices must be integers or slices, not %s", what, idx.TypeName())
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, newError(excIndexError, "%s index out of range", what)
	}
	return int(i), nil
}

// indices resolves a slice against a sequence of length n, returning the
// selected positions.
func (s *Slice) indices(n int) ([]int, error) {
	step := int64(1)
	if _, none := s.Step.(NoneType); !none {
		v, ok := asInt(s.Step)
		if !ok {
			return nil, newError(excTypeError, "slice indices must be integers or None")
		}
		if v == 0 {
			return nil, newError(excValueError, "slice step cannot be zero")
		}
		step = v
	}
	length := int64(n)
	bound := func(v Value, def int64) (int64, error) {
		if _, none := v.(NoneType); none {
			return def, nil
		}
		i, ok := asInt(v)
		if !ok {
			return 0, newError(excTypeError, "slice indices must be integers or None")
		}
		if i < 0 {
			i += length
			if i < 0 {
				if step < 0 {
					i = -1
				} else {
					i = 0
				}
			}
		} else if i >= length {
			if step < 0 {
				i = length - 1
			} else {
				i = length
			}
		}
		return i, nil
	}
	var start, stop int64
	var err error
	if step > 0 {
		if start, err = bound(s.Start, 0); err != nil {
			return nil, err
		}
		if stop, err = bound(s.Stop, length); err != nil {
			return nil, err
		}
	} else {
		if start, err = bound(s.Start, length-1); err != nil {
			return nil, err
		}
		if stop, err = bound(s.Stop, -1); err != nil {
			return nil, err
		}
	}
	var out []int
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, int(i))
	}
	return out, nil
}

func pick(elems []Value, idx []int) []Value {
	out := make([]Value, len(idx))
	for i, j := range idx {
		out[i] = elems[j]
	}
	return out
}

// getItem implements obj[idx].
func (in *Interpreter) getItem(obj, idx Value) (Value, error) {
	switch x := obj.(type) {
	case *List:
		if s, ok := idx.(*Slice); ok {
			sel, err := s.indices(len(x.Elems))
			if err != nil {
				return nil, err
			}
			return &List{Elems: pick(x.Elems, sel)}, nil
		}
		i, err := normIndex(idx, len(x.Elems), "list")
		if err != nil {
			return nil, err
		}
		return x.Elems[i], nil
	case *Tuple:
		if s, ok := idx.(*Slice); ok {
			sel, err := s.indices(len(x.Elems))
			if err != nil {
				return nil, err
			}
			return &Tuple{Elems: pick(x.Elems, sel)}, nil
		}
		i, err := normIndex(idx, len(x.Elems), "tuple")
		if err != nil {
			return nil, err
		}
		return x.Elems[i], nil
	case Str:
		runes := []rune(string(x))
		if s, ok := idx.(*Slice); ok {
			sel, err := s.indices(len(runes))
			if err != nil {
				return nil, err
			}
			out := make([]rune, len(sel))
			for i, j := range sel {
				out[i] = runes[j]
			}
			return Str(string(out)), nil
		}
		i, err := normIndex(idx, len(runes), "string")
		if err != nil {
			return nil, err
		}
		return Str(string(runes[i])), nil
	case *Range:
		if s, ok := idx.(*Slice); ok {
			sel, err := s.indices(int(x.Len()))
			if err != nil {
				return nil, err
			}
			out := make([]Value, len(sel))
			for i, j := range sel {
				out[i] = Int(x.At(int64(j)))
			}
			return &List{Elems: out}, nil
		}
		i, err := normIndex(idx, int(x.Len()), "range object")
		if err != nil {
			return nil, err
		}
		return Int(x.At(int64(i))), nil
	case *Dict:
		v, found, err := x.Get(idx)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &Exception{Class: excKeyError, Msg: Repr(idx), Args: []Value{idx}}
		}
		return v, nil
	case *NDArray:
		return x.getItem(idx)
	case *Tensor:
		r, err := x.Array.getItem(idx)
		if err != nil {
			return nil, err
		}
		if a, ok := r.(*NDArray); ok {
			return x.wrap(a), nil
		}
		return x.wrap(scalarArray(r, x.Array.DType)), nil
	case *Layer:
		if x.Kind == "Sequential" {
			i, err := normIndex(idx, len(x.Children), "Sequential")
			if err != nil {
				return nil, err
			}
			return x.Children[i], nil
		}
	}
	return nil, newError(excTypeError, "'%s' object is not subscriptable", obj.TypeName())
}

// setItem implements obj[idx] = v.
func (in *Interpreter) setItem(obj, idx, v Value) error {
	switch x := obj.(type) {
	case *List:
		if s, ok := idx.(*Slice); ok {
			elems, err := in.collect(v)
			if err != nil {
				return err
			}
			sel, err := s.indices(len(x.Elems))
			if err != nil {
				return err
			}
			if _, none := s.Step.(NoneType); none {
				start, stop := 0, len(x.Elems)
				if i, ok := asInt(s.Start); ok {
					start = clampIndex(int(i), len(x.Elems))
				}
				if i, ok := asInt(s.Stop); ok {
					stop = clampIndex(int(i), len(x.Elems))
				}
				if stop < start {
					stop = start
				}
				tail := append([]Value(nil), x.Elems[stop:]...)
				x.Elems = append(append(x.Elems[:start], elems...), tail...)
				return nil
			}
			if len(sel) != len(elems) {
				return newError(excValueError, "attempt to assign sequence of size %d to extended slice of size %d", len(elems), len(sel))
			}
			for i, j := range sel {
				x.Elems[j] = elems[i]
			}
			return nil
		}
		i, err := normIndex(idx, len(x.Elems), "list assignment")
		if err != nil {
			return err
		}
		x.Elems[i] = v
		return nil
	case *Dict:
		return x.Set(idx, v)
	case *NDArray:
		return x.setItem(idx, v)
	case *Tensor:
		if t, ok := v.(*Tensor); ok {
			v = t.Array
		}
		return x.Array.setItem(idx, v)
	case *Tuple:
		return newError(excTypeError, "'tuple' object does not support item assignment")
	case Str:
		return newError(excTypeError, "'str' object does not support item assignment")
	}
	return newError(excTypeError, "'%s' object does not support item assignment", obj.TypeName())
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// delItem implements del obj[idx].
func (in *Interpreter) delItem(obj, idx Value) error {
	switch x := obj.(type) {
	case *List:
		if s, ok := idx.(*Slice); ok {
			sel, err := s.indices(len(x.Elems))
			if err != nil {
				return err
			}
			drop := make(map[int]bool, len(sel))
			for _, j := range sel {
				drop[j] = true
			}
			kept := x.Elems[:0:0]
			for i, e := range x.Elems {
				if !drop[i] {
					kept = append(kept, e)
				}
			}
			x.Elems = kept
			return nil
		}
		i, err := normIndex(idx, len(x.Elems), "list assignment")
		if err != nil {
			return err
		}
		x.Elems = append(x.Elems[:i], x.Elems[i+1:]...)
		return nil
	case *Dict:
		found, err := x.Delete(idx)
		if err != nil {
			return err
		}
		if !found {
			return &Exception{Class: excKeyError, Msg: Repr(idx), Args: []Value{idx}}
		}
		return nil
	}
	return newError(excTypeError, "'%s' object does not support item deletion", obj.TypeName())
}

// =============================================================================
// Attributes
// =============================================================================

// getAttr implements obj.name.
func (in *Interpreter) getAttr(obj Value, name string) (Value, error) {
	switch x := obj.(type) {
	case *Module:
		if v, ok := x.Attrs[name]; ok {
			return v, nil
		}
		return nil, newError(excAttributeError, "module '%s' has no attribute '%s'", x.Name, name)
	case *Exception:
		switch name {
		case "args":
			return &Tuple{Elems: append([]Value(nil), x.Args...)}, nil
		}
	case *ExceptionClass:
		if name == "__name__" {
			return Str(x.Name), nil
		}
	case *TypeObject:
		if name == "__name__" {
			return Str(x.Name), nil
		}
	case *Function:
		if name == "__name__" {
			return Str(x.Name), nil
		}
	case *Slice:
		switch name {
		case "start":
			return x.Start, nil
		case "stop":
			return x.Stop, nil
		case "step":
			return x.Step, nil
		}
	case *Range:
		switch name {
		case "start":
			return Int(x.Start), nil
		case "stop":
			return Int(x.Stop), nil
		case "step":
			return Int(x.Step), nil
		}
	case *NDArray:
		if v, ok, err := in.arrayAttr(x, name); ok || err != nil {
			return v, err
		}
	case *Tensor:
		if v, ok, err := in.tensorAttr(x, name); ok || err != nil {
			return v, err
		}
	case *Layer:
		if v, ok := x.attr(name); ok {
			return v, nil
		}
	case *Symbol:
		if v, ok := symbolAttr(x, name); ok {
			return v, nil
		}
	case Float:
		switch name {
		case "real":
			return x, nil
		case "imag":
			return Float(0), nil
		}
	case Int:
		switch name {
		case "real", "numerator":
			return x, nil
		case "imag":
			return Int(0), nil
		case "denominator":
			return Int(1), nil
		}
	}
	if fn, ok := lookupMethod(obj, name); ok {
		return &BoundMethod{Recv: obj, Name: name, Fn: fn}, nil
	}
	return nil, newError(excAttributeError, "'%s' object has no attribute '%s'", obj.TypeName(), name)
}

// setAttr implements obj.name = v for the few mutable attributes.
func setAttr(obj Value, name string, v Value) error {
	switch x := obj.(type) {
	case *Module:
		x.Attrs[name] = v
		return nil
	case *Tensor:
		if name == "requires_grad" {
			t, err := Truthy(v)
			if err != nil {
				return err
			}
			x.RequiresGrad = t
			return nil
		}
	}
	return newError(excAttributeError, "'%s' object attribute '%s' is read-only", obj.TypeName(), name)
}
