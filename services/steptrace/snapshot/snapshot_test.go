// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steptrace/services/steptrace/interp"
)

func TestTake_FiltersNames(t *testing.T) {
	bindings := map[string]interp.Value{
		"x":        interp.Int(1),
		"__name__": interp.Str("__main__"),
		"f":        &interp.Function{Name: "f"},
		"print":    &interp.Builtin{Name: "print"},
		"np":       &interp.Module{Name: "numpy"},
		"label":    interp.Str("ok"),
	}
	snap := (&Sanitizer{}).Take(bindings)

	assert.False(t, snap.Aliased)
	assert.Equal(t, []string{"label", "x"}, snap.Names())
}

func TestTake_DecouplesFromMutation(t *testing.T) {
	inner := &interp.List{Elems: []interp.Value{interp.Int(1)}}
	outer := &interp.List{Elems: []interp.Value{inner, inner}}
	arr := &interp.NDArray{Shape: []int{2}, Data: []float64{1, 2}, DType: interp.DTypeFloat64}
	d := interp.NewDict()
	require.NoError(t, d.Set(interp.Str("k"), inner))

	snap := (&Sanitizer{}).Take(map[string]interp.Value{"xs": outer, "a": arr, "d": d})
	require.False(t, snap.Aliased)

	inner.Elems[0] = interp.Int(99)
	arr.Data[0] = 42
	require.NoError(t, d.Set(interp.Str("new"), interp.Int(0)))

	assert.Equal(t, "[[1], [1]]", interp.Repr(snap.Vars["xs"]))
	assert.Equal(t, 1.0, snap.Vars["a"].(*interp.NDArray).Data[0])
	assert.Equal(t, 1, snap.Vars["d"].(*interp.Dict).Len())

	cloned := snap.Vars["xs"].(*interp.List)
	assert.Same(t, cloned.Elems[0], cloned.Elems[1], "shared references stay shared")
}

func TestTake_CycleFallsBackToShallow(t *testing.T) {
	xs := &interp.List{}
	xs.Elems = []interp.Value{interp.Int(1), xs}

	snap := (&Sanitizer{}).Take(map[string]interp.Value{"xs": xs, "n": interp.Int(2)})

	assert.True(t, snap.Aliased)
	assert.Same(t, xs, snap.Vars["xs"])
	assert.Equal(t, interp.Int(2), snap.Vars["n"])
}

func TestTake_BudgetFallsBackToShallow(t *testing.T) {
	arr := &interp.NDArray{Shape: []int{100}, Data: make([]float64, 100), DType: interp.DTypeFloat64}

	snap := (&Sanitizer{MaxCloneElements: 10}).Take(map[string]interp.Value{"a": arr})

	assert.True(t, snap.Aliased)
	assert.Same(t, arr, snap.Vars["a"])
}

func TestKeep(t *testing.T) {
	tests := []struct {
		name string
		v    interp.Value
		want bool
	}{
		{"x", interp.Int(1), true},
		{"_private", interp.Int(1), true},
		{"__dunder__", interp.Int(1), false},
		{"f", &interp.Function{Name: "f"}, false},
		{"math", &interp.Module{Name: "math"}, false},
		{"nothing", nil, false},
		{"none", interp.None, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keep(tt.name, tt.v))
		})
	}
}

func TestClone(t *testing.T) {
	xs := &interp.List{Elems: []interp.Value{interp.Int(1)}}
	got := (&Sanitizer{}).Clone(xs)
	xs.Elems[0] = interp.Int(2)
	assert.Equal(t, "[1]", interp.Repr(got))

	fn := &interp.Function{Name: "f"}
	assert.Same(t, fn, (&Sanitizer{}).Clone(fn))
	assert.Equal(t, interp.None, (&Sanitizer{}).Clone(nil))
}
