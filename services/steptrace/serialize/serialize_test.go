// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package serialize

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AleutianAI/steptrace/services/steptrace/interp"
	"github.com/AleutianAI/steptrace/services/steptrace/snapshot"
)

func floatArray(n int) *interp.NDArray {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return &interp.NDArray{Shape: []int{n}, Data: data, DType: interp.DTypeFloat64}
}

func TestEncode_Scalars(t *testing.T) {
	s := New()
	tests := []struct {
		name string
		in   interp.Value
		want any
	}{
		{"none", interp.None, nil},
		{"bool", interp.Bool(true), true},
		{"int", interp.Int(-3), int64(-3)},
		{"float", interp.Float(1.5), 1.5},
		{"nan", interp.Float(math.NaN()), "NaN"},
		{"inf", interp.Float(math.Inf(1)), "Infinity"},
		{"-inf", interp.Float(math.Inf(-1)), "-Infinity"},
		{"str", interp.Str("héllo"), "héllo"},
		{"invalid utf8", interp.Str("a\xffb"), "a�b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Encode(tt.in))
		})
	}
}

func TestEncode_Sequences(t *testing.T) {
	s := New()
	list := &interp.List{Elems: []interp.Value{interp.Int(1), &interp.Tuple{Elems: []interp.Value{interp.Str("a"), interp.None}}}}
	assert.Equal(t, []any{int64(1), []any{"a", nil}}, s.Encode(list))
}

func TestEncode_DictKeepsOrder(t *testing.T) {
	d := interp.NewDict()
	require.NoError(t, d.Set(interp.Str("b"), interp.Int(1)))
	require.NoError(t, d.Set(interp.Int(2), interp.Float(math.NaN())))
	require.NoError(t, d.Set(interp.None, interp.Bool(false)))

	out := New().Encode(d)
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":1,"2":"NaN","null":false}`, string(b))
	assert.Equal(t, `{"b":1,"2":"NaN","null":false}`, string(b))
}

func TestEncode_DictWithTupleKeyIsRepr(t *testing.T) {
	d := interp.NewDict()
	require.NoError(t, d.Set(&interp.Tuple{Elems: []interp.Value{interp.Int(1), interp.Int(2)}}, interp.Int(3)))
	assert.Equal(t, "{(1, 2): 3}", New().Encode(d))
}

func TestEncode_ArrayInlineAtThreshold(t *testing.T) {
	out := New().Encode(floatArray(DefaultMaxInline))
	arr, ok := out.(*Array)
	require.True(t, ok)
	assert.Equal(t, "ndarray", arr.Type)
	assert.Equal(t, []int{DefaultMaxInline}, arr.Shape)
	assert.Equal(t, "float64", arr.DType)
	assert.Nil(t, arr.Summary)
	values, ok := arr.Values.([]any)
	require.True(t, ok)
	require.Len(t, values, DefaultMaxInline)
	assert.Equal(t, 29.0, values[29])
}

func TestEncode_ArraySummaryAboveThreshold(t *testing.T) {
	out := New().Encode(floatArray(10_000))
	arr, ok := out.(*Array)
	require.True(t, ok)
	assert.Nil(t, arr.Values)
	require.NotNil(t, arr.Summary)
	assert.Equal(t, 10_000, arr.Summary.Count)
	assert.Equal(t, 0.0, arr.Summary.Min)
	assert.Equal(t, 9999.0, arr.Summary.Max)
	assert.Equal(t, 4999.5, arr.Summary.Mean)
	assert.Equal(t, []any{0.0, 1.0, 2.0, 3.0, 4.0, 5.0}, arr.Summary.Sample)
}

func TestEncode_SizeBoundedAboveThreshold(t *testing.T) {
	s := New()
	small, err := json.Marshal(s.Encode(floatArray(100)))
	require.NoError(t, err)
	large, err := json.Marshal(s.Encode(floatArray(1_000_000)))
	require.NoError(t, err)
	assert.Less(t, len(large), 256)
	assert.InDelta(t, len(small), len(large), 32)
}

func TestEncode_ArrayWithNaN(t *testing.T) {
	a := floatArray(40)
	a.Data[3] = math.NaN()
	arr := New().Encode(a).(*Array)
	assert.Equal(t, "NaN", arr.Summary.Mean)
	assert.Equal(t, "NaN", arr.Summary.Sample[3])
}

func TestEncode_IntMatrix(t *testing.T) {
	a := &interp.NDArray{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}, DType: interp.DTypeInt64}
	arr := New().Encode(a).(*Array)
	assert.Equal(t, []any{[]any{int64(1), int64(2)}, []any{int64(3), int64(4)}}, arr.Values)
}

func TestEncode_Tensor(t *testing.T) {
	tensor := &interp.Tensor{Array: &interp.NDArray{Shape: []int{2}, Data: []float64{0.5, 1}, DType: interp.DTypeFloat32}}
	arr := New().Encode(tensor).(*Array)
	assert.Equal(t, "torchtensor", arr.Type)
	assert.Equal(t, "torch.float32", arr.DType)
	require.NotNil(t, arr.RequiresGrad)
	assert.False(t, *arr.RequiresGrad)
	assert.Equal(t, []any{0.5, 1.0}, arr.Values)

	big := &interp.Tensor{Array: floatArray(64), RequiresGrad: true}
	arr = New().Encode(big).(*Array)
	assert.Equal(t, "torch.float64", arr.DType)
	assert.True(t, *arr.RequiresGrad)
	require.NotNil(t, arr.Summary)
	assert.Len(t, arr.Summary.Sample, DefaultSampleSize)
}

func TestEncode_OpaqueIsRepr(t *testing.T) {
	s := New()
	assert.Equal(t, "x + 1", s.Encode(&interp.Symbol{Expr: "x + 1", Prec: 12}))
	assert.Equal(t, "range(0, 3)", s.Encode(&interp.Range{Start: 0, Stop: 3, Step: 1}))
}

func TestEncode_DepthLimit(t *testing.T) {
	var v interp.Value = interp.Int(0)
	for i := 0; i < 40; i++ {
		v = &interp.List{Elems: []interp.Value{v}}
	}
	out := (&Serializer{MaxDepth: 3}).Encode(v)

	level := out
	for i := 0; i < 4; i++ {
		l, ok := level.([]any)
		require.True(t, ok, "level %d should be structural", i)
		level = l[0]
	}
	_, isText := level.(string)
	assert.True(t, isText)
}

func TestEncodeSnapshot(t *testing.T) {
	s := New()
	assert.Nil(t, s.EncodeSnapshot(nil))

	snap := &snapshot.Snapshot{Vars: map[string]interp.Value{"x": interp.Int(1), "big": floatArray(50)}}
	out := s.EncodeSnapshot(snap)
	assert.Equal(t, int64(1), out["x"])
	assert.NotNil(t, out["big"].(*Array).Summary)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   interp.Value
		want Kind
	}{
		{interp.Int(1), KindScalar},
		{interp.None, KindScalar},
		{&interp.Tuple{}, KindSequence},
		{interp.NewDict(), KindMapping},
		{floatArray(1), KindNumericArray},
		{&interp.Tensor{Array: floatArray(1)}, KindTensor},
		{&interp.Function{Name: "f"}, KindOpaque},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestObject_MsgpackKeepsOrder(t *testing.T) {
	obj := Object{{Key: "z", Value: int64(1)}, {Key: "a", Value: "two"}}
	b, err := msgpack.Marshal(obj)
	require.NoError(t, err)

	dec := msgpack.NewDecoder(bytes.NewReader(b))
	n, err := dec.DecodeMapLen()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	var keys []string
	for i := 0; i < n; i++ {
		k, err := dec.DecodeString()
		require.NoError(t, err)
		keys = append(keys, k)
		_, err = dec.DecodeInterface()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"z", "a"}, keys)

	v, ok := obj.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}
