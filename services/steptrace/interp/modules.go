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
)

// newModules returns the importable modules of one interpreter. Submodules
// are reachable both as attributes and by dotted name.
func newModules() map[string]*Module {
	np := newNumpyModule()
	torch := newTorchModule()
	mods := map[string]*Module{
		"numpy": np,
		"torch": torch,
		"sympy": newSympyModule(),
		"math":  newMathModule(),
	}
	for _, parent := range []*Module{np, torch} {
		for _, v := range parent.Attrs {
			if sub, ok := v.(*Module); ok {
				mods[sub.Name] = sub
			}
		}
	}
	nn := mods["torch.nn"]
	if fn, ok := nn.Attrs["functional"].(*Module); ok {
		mods[fn.Name] = fn
	}
	return mods
}

// =============================================================================
// math module
// =============================================================================

func newMathModule() *Module {
	m := &Module{Name: "math", Attrs: map[string]Value{
		"pi":  Float(math.Pi),
		"e":   Float(math.E),
		"tau": Float(2 * math.Pi),
		"inf": Float(math.Inf(1)),
		"nan": Float(math.NaN()),
	}}
	add := func(name string, fn BuiltinFunc) {
		m.Attrs[name] = &Builtin{Name: name, Fn: fn}
	}
	unary := map[string]func(float64) float64{
		"sqrt":    math.Sqrt,
		"exp":     math.Exp,
		"log2":    math.Log2,
		"log10":   math.Log10,
		"log1p":   math.Log1p,
		"expm1":   math.Expm1,
		"sin":     math.Sin,
		"cos":     math.Cos,
		"tan":     math.Tan,
		"asin":    math.Asin,
		"acos":    math.Acos,
		"atan":    math.Atan,
		"sinh":    math.Sinh,
		"cosh":    math.Cosh,
		"tanh":    math.Tanh,
		"fabs":    math.Abs,
		"erf":     math.Erf,
		"gamma":   math.Gamma,
		"degrees": func(x float64) float64 { return x * 180 / math.Pi },
		"radians": func(x float64) float64 { return x * math.Pi / 180 },
	}
	for name, fn := range unary {
		name, fn := name, fn
		add(name, func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			x, err := mathArg(args[0])
			if err != nil {
				return nil, err
			}
			if (name == "log2" || name == "log10") && x <= 0 || name == "log1p" && x <= -1 {
				return nil, errMathDomain()
			}
			return mathResult(fn(x), x)
		})
	}
	add("log", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("log", args, kwargs, "x", "base?")
		if err != nil {
			return nil, err
		}
		x, err := mathArg(spec.get(0))
		if err != nil {
			return nil, err
		}
		if x <= 0 {
			return nil, errMathDomain()
		}
		if !spec.has(1) {
			return Float(math.Log(x)), nil
		}
		base, err := mathArg(spec.get(1))
		if err != nil {
			return nil, err
		}
		if base <= 0 || base == 1 {
			if base == 1 {
				return nil, newError(excZeroDivisionError, "float division by zero")
			}
			return nil, errMathDomain()
		}
		return Float(math.Log(x) / math.Log(base)), nil
	})
	for name, fn := range map[string]func(float64) float64{"floor": math.Floor, "ceil": math.Ceil, "trunc": math.Trunc} {
		name, fn := name, fn
		add(name, func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			if n, ok := asInt(args[0]); ok {
				return Int(n), nil
			}
			x, err := mathArg(args[0])
			if err != nil {
				return nil, err
			}
			if math.IsInf(x, 0) {
				return nil, newError(excOverflowError, "cannot convert float infinity to integer")
			}
			if math.IsNaN(x) {
				return nil, newError(excValueError, "cannot convert float NaN to integer")
			}
			return Int(int64(fn(x))), nil
		})
	}
	add("pow", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		x, y, err := mathPair("pow", args)
		if err != nil {
			return nil, err
		}
		if x == 0 && y < 0 {
			return nil, errMathDomain()
		}
		return mathResult(math.Pow(x, y), x)
	})
	add("atan2", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		y, x, err := mathPair("atan2", args)
		if err != nil {
			return nil, err
		}
		return Float(math.Atan2(y, x)), nil
	})
	add("copysign", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		x, y, err := mathPair("copysign", args)
		if err != nil {
			return nil, err
		}
		return Float(math.Copysign(x, y)), nil
	})
	add("hypot", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		sum := 0.0
		for _, a := range args {
			x, err := mathArg(a)
			if err != nil {
				return nil, err
			}
			sum = math.Hypot(sum, x)
		}
		return Float(sum), nil
	})
	add("fsum", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("fsum", args, 1); err != nil {
			return nil, err
		}
		elems, err := in.collect(args[0])
		if err != nil {
			return nil, err
		}
		// Neumaier compensated summation.
		sum, c := 0.0, 0.0
		for _, e := range elems {
			x, err := mathArg(e)
			if err != nil {
				return nil, err
			}
			t := sum + x
			if math.Abs(sum) >= math.Abs(x) {
				c += (sum - t) + x
			} else {
				c += (x - t) + sum
			}
			sum = t
		}
		return Float(sum + c), nil
	})
	add("prod", func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("prod", args, 1); err != nil {
			return nil, err
		}
		elems, err := in.collect(args[0])
		if err != nil {
			return nil, err
		}
		var acc Value = Int(1)
		for _, e := range elems {
			if acc, err = in.binary("*", acc, e); err != nil {
				return nil, err
			}
		}
		return acc, nil
	})
	add("factorial", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		if err := exactArgs("factorial", args, 1); err != nil {
			return nil, err
		}
		n, ok := asInt(args[0])
		if !ok {
			return nil, newError(excTypeError, "'%s' object cannot be interpreted as an integer", args[0].TypeName())
		}
		if n < 0 {
			return nil, newError(excValueError, "factorial() not defined for negative values")
		}
		acc := int64(1)
		for i := int64(2); i <= n; i++ {
			next := acc * i
			if next/i != acc {
				return nil, errIntOverflow()
			}
			acc = next
		}
		return Int(acc), nil
	})
	add("comb", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		n, k, err := intPair("comb", args)
		if err != nil {
			return nil, err
		}
		if k > n {
			return Int(0), nil
		}
		if n-k < k {
			k = n - k
		}
		acc := int64(1)
		for i := int64(1); i <= k; i++ {
			acc = acc * (n - k + i) / i
			if acc < 0 {
				return nil, errIntOverflow()
			}
		}
		return Int(acc), nil
	})
	add("perm", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		n, k, err := intPair("perm", args)
		if err != nil {
			return nil, err
		}
		if k > n {
			return Int(0), nil
		}
		acc := int64(1)
		for i := n - k + 1; i <= n; i++ {
			next := acc * i
			if next/i != acc {
				return nil, errIntOverflow()
			}
			acc = next
		}
		return Int(acc), nil
	})
	add("gcd", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		acc := int64(0)
		for _, a := range args {
			n, ok := asInt(a)
			if !ok {
				return nil, newError(excTypeError, "'%s' object cannot be interpreted as an integer", a.TypeName())
			}
			n = absInt(n)
			if acc == 0 {
				acc = n
				continue
			}
			acc = gcd(acc, n)
		}
		return Int(acc), nil
	})
	add("isclose", func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
		spec, err := parseArgs("isclose", args, kwargs, "a", "b", "rel_tol?", "abs_tol?")
		if err != nil {
			return nil, err
		}
		a, err := mathArg(spec.get(0))
		if err != nil {
			return nil, err
		}
		b, err := mathArg(spec.get(1))
		if err != nil {
			return nil, err
		}
		rel, err := spec.float(2, 1e-9)
		if err != nil {
			return nil, err
		}
		abs, err := spec.float(3, 0)
		if err != nil {
			return nil, err
		}
		if a == b {
			return Bool(true), nil
		}
		if math.IsInf(a, 0) || math.IsInf(b, 0) {
			return Bool(false), nil
		}
		diff := math.Abs(a - b)
		return Bool(diff <= rel*math.Abs(b) || diff <= rel*math.Abs(a) || diff <= abs), nil
	})
	for name, pred := range map[string]func(float64) bool{
		"isnan":    math.IsNaN,
		"isinf":    func(x float64) bool { return math.IsInf(x, 0) },
		"isfinite": func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) },
	} {
		name, pred := name, pred
		add(name, func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			x, err := mathArg(args[0])
			if err != nil {
				return nil, err
			}
			return Bool(pred(x)), nil
		})
	}
	return m
}

func errMathDomain() *Exception {
	return newError(excValueError, "math domain error")
}

func mathArg(v Value) (float64, error) {
	if f, ok := asFloat(v); ok {
		return f, nil
	}
	switch x := v.(type) {
	case *NDArray:
		if x.Size() == 1 {
			return x.Data[0], nil
		}
		return 0, newError(excTypeError, "only length-1 arrays can be converted to Python scalars")
	case *Tensor:
		if x.Array.Size() == 1 {
			return x.Array.Data[0], nil
		}
		return 0, newError(excTypeError, "only one element tensors can be converted to Python scalars")
	}
	return 0, newError(excTypeError, "must be real number, not %s", v.TypeName())
}

// mathResult maps NaN produced from a non-NaN input to a domain error and
// infinity from a finite input to an overflow error.
func mathResult(r, x float64) (Value, error) {
	if math.IsNaN(r) && !math.IsNaN(x) {
		return nil, errMathDomain()
	}
	if math.IsInf(r, 0) && !math.IsInf(x, 0) {
		return nil, newError(excOverflowError, "math range error")
	}
	return Float(r), nil
}

func mathPair(name string, args []Value) (float64, float64, error) {
	if err := exactArgs(name, args, 2); err != nil {
		return 0, 0, err
	}
	x, err := mathArg(args[0])
	if err != nil {
		return 0, 0, err
	}
	y, err := mathArg(args[1])
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func intPair(name string, args []Value) (int64, int64, error) {
	if err := exactArgs(name, args, 2); err != nil {
		return 0, 0, err
	}
	n, ok1 := asInt(args[0])
	k, ok2 := asInt(args[1])
	if !ok1 || !ok2 {
		return 0, 0, newError(excTypeError, "%s() arguments must be integers", name)
	}
	if n < 0 || k < 0 {
		return 0, 0, newError(excValueError, "%s() arguments must be non-negative", name)
	}
	return n, k, nil
}
