// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot captures the variable bindings of a running script as
// values decoupled from later mutation.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/steptrace/services/steptrace/interp"
)

// DefaultMaxCloneElements bounds the elements copied for one snapshot.
const DefaultMaxCloneElements = 1 << 20

var (
	// ErrCycle indicates a container that contains itself.
	ErrCycle = errors.New("cyclic structure")

	// ErrTooLarge indicates the bindings exceed the clone budget.
	ErrTooLarge = errors.New("clone budget exceeded")
)

// Snapshot is a filtered view of a scope's bindings at one instant.
type Snapshot struct {
	// Vars maps variable names to values. Unless Aliased is set, no value
	// shares mutable state with the running script.
	Vars map[string]interp.Value

	// Aliased is set when the structural clone failed and Vars holds the
	// live objects. Later in-place mutation shows through.
	Aliased bool
}

// Names returns the variable names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Vars))
	for name := range s.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sanitizer filters and clones bindings.
//
// Thread Safety: Safe for concurrent use; Take keeps no state between calls.
type Sanitizer struct {
	// MaxCloneElements caps the values copied by one Take. Zero means
	// DefaultMaxCloneElements.
	MaxCloneElements int

	Logger *slog.Logger
}

// Take returns a snapshot of bindings.
//
// Description:
//
//	Drops names starting with "__", callables (functions, builtins, bound
//	methods, types, exception classes, layers) and modules. The remaining
//	values are deep-cloned. A cycle, an oversized structure or a panic
//	during cloning degrades to a shallow copy marked Aliased.
//
// Inputs:
//
//	bindings - The scope's live bindings. Not modified.
//
// Outputs:
//
//	*Snapshot - Never nil.
func (s *Sanitizer) Take(bindings map[string]interp.Value) *Snapshot {
	kept := make(map[string]interp.Value, len(bindings))
	for name, v := range bindings {
		if Keep(name, v) {
			kept[name] = v
		}
	}

	vars, err := s.cloneAll(kept)
	if err != nil {
		s.logger().Debug("snapshot degraded to shallow copy", slog.String("reason", err.Error()))
		return &Snapshot{Vars: kept, Aliased: true}
	}
	return &Snapshot{Vars: vars}
}

// Keep reports whether a binding belongs in a snapshot.
func Keep(name string, v interp.Value) bool {
	if strings.HasPrefix(name, "__") || v == nil {
		return false
	}
	return !interp.IsCallable(v) && !interp.IsModule(v)
}

func (s *Sanitizer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Sanitizer) cloneAll(vars map[string]interp.Value) (out map[string]interp.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("clone panic: %v", r)
		}
	}()
	budget := s.MaxCloneElements
	if budget <= 0 {
		budget = DefaultMaxCloneElements
	}
	c := &cloner{
		budget: budget,
		active: make(map[any]bool),
		done:   make(map[any]interp.Value),
	}
	out = make(map[string]interp.Value, len(vars))
	for name, v := range vars {
		cv, err := c.clone(v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	return out, nil
}

// cloner deep-copies values. done memoizes finished clones so shared
// references stay shared within one snapshot; active holds the containers
// on the current path for cycle detection.
type cloner struct {
	budget int
	active map[any]bool
	done   map[any]interp.Value
}

func (c *cloner) spend(n int) error {
	c.budget -= n
	if c.budget < 0 {
		return ErrTooLarge
	}
	return nil
}

func (c *cloner) clone(v interp.Value) (interp.Value, error) {
	switch x := v.(type) {
	case interp.NoneType, interp.Bool, interp.Int, interp.Float, interp.Str,
		*interp.Range, *interp.Symbol, *interp.TorchDType:
		return v, nil
	case *interp.List:
		return c.container(x, func() (interp.Value, error) {
			elems, err := c.cloneSlice(x.Elems)
			if err != nil {
				return nil, err
			}
			return &interp.List{Elems: elems}, nil
		})
	case *interp.Tuple:
		return c.container(x, func() (interp.Value, error) {
			elems, err := c.cloneSlice(x.Elems)
			if err != nil {
				return nil, err
			}
			return &interp.Tuple{Elems: elems}, nil
		})
	case *interp.Dict:
		return c.container(x, func() (interp.Value, error) {
			entries := x.Entries()
			if err := c.spend(len(entries)); err != nil {
				return nil, err
			}
			d := interp.NewDict()
			for _, e := range entries {
				cv, err := c.clone(e.Value)
				if err != nil {
					return nil, err
				}
				// Keys are hashable, hence immutable.
				if err := d.Set(e.Key, cv); err != nil {
					return nil, err
				}
			}
			return d, nil
		})
	case *interp.NDArray:
		return c.container(x, func() (interp.Value, error) {
			if err := c.spend(len(x.Data)); err != nil {
				return nil, err
			}
			return cloneArray(x), nil
		})
	case *interp.Tensor:
		return c.container(x, func() (interp.Value, error) {
			if err := c.spend(len(x.Array.Data)); err != nil {
				return nil, err
			}
			return &interp.Tensor{Array: cloneArray(x.Array), RequiresGrad: x.RequiresGrad}, nil
		})
	}
	// Exceptions, slices and other opaque values are not mutable from
	// script code.
	return v, nil
}

func (c *cloner) container(key any, fill func() (interp.Value, error)) (interp.Value, error) {
	if cv, ok := c.done[key]; ok {
		return cv, nil
	}
	if c.active[key] {
		return nil, ErrCycle
	}
	c.active[key] = true
	cv, err := fill()
	delete(c.active, key)
	if err != nil {
		return nil, err
	}
	c.done[key] = cv
	return cv, nil
}

func (c *cloner) cloneSlice(elems []interp.Value) ([]interp.Value, error) {
	if err := c.spend(len(elems)); err != nil {
		return nil, err
	}
	out := make([]interp.Value, len(elems))
	for i, e := range elems {
		cv, err := c.clone(e)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

func cloneArray(a *interp.NDArray) *interp.NDArray {
	return &interp.NDArray{
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
		DType: a.DType,
	}
}

// Clone deep-copies a single value such as a return value. Callables and
// modules are kept. On failure the live value is returned.
func (s *Sanitizer) Clone(v interp.Value) interp.Value {
	if v == nil {
		return interp.None
	}
	out, err := s.cloneAll(map[string]interp.Value{"": v})
	if err != nil {
		s.logger().Debug("value clone degraded to live reference", slog.String("reason", err.Error()))
		return v
	}
	return out[""]
}
