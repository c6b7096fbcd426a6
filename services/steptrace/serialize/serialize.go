// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package serialize converts runtime values into bounded, encoding-safe
// structures for JSON and msgpack output.
package serialize

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/steptrace/services/steptrace/interp"
	"github.com/AleutianAI/steptrace/services/steptrace/snapshot"
)

const (
	// DefaultMaxInline is the largest array encoded element by element.
	DefaultMaxInline = 30

	// DefaultSampleSize is the number of leading elements in a summary.
	DefaultSampleSize = 6

	// DefaultMaxDepth is the deepest nesting encoded structurally.
	DefaultMaxDepth = 32
)

// Kind is the closed set of value shapes the serializer distinguishes.
type Kind int

const (
	KindScalar Kind = iota
	KindSequence
	KindMapping
	KindNumericArray
	KindTensor
	KindOpaque
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindNumericArray:
		return "ndarray"
	case KindTensor:
		return "tensor"
	}
	return "opaque"
}

// Classify returns the kind of v.
func Classify(v interp.Value) Kind {
	switch v.(type) {
	case interp.NoneType, interp.Bool, interp.Int, interp.Float, interp.Str:
		return KindScalar
	case *interp.List, *interp.Tuple:
		return KindSequence
	case *interp.Dict:
		return KindMapping
	case *interp.NDArray:
		return KindNumericArray
	case *interp.Tensor:
		return KindTensor
	}
	return KindOpaque
}

// Summary describes an array too large to inline.
type Summary struct {
	Count  int   `json:"count" msgpack:"count"`
	Min    any   `json:"min" msgpack:"min"`
	Max    any   `json:"max" msgpack:"max"`
	Mean   any   `json:"mean" msgpack:"mean"`
	Sample []any `json:"sample" msgpack:"sample"`
}

// Serializer encodes values. The zero value uses the defaults.
//
// Thread Safety: Safe for concurrent use.
type Serializer struct {
	// MaxInline is the element count above which arrays and tensors are
	// summarized.
	MaxInline int

	// SampleSize is the number of leading elements kept in a summary.
	SampleSize int

	// MaxDepth bounds structural nesting; deeper values become repr text.
	MaxDepth int

	Logger *slog.Logger
}

// New returns a Serializer with the default thresholds.
func New() *Serializer {
	return &Serializer{MaxInline: DefaultMaxInline, SampleSize: DefaultSampleSize, MaxDepth: DefaultMaxDepth}
}

// Encode converts v into nil, bool, int64, float64, string, []any, Object
// or *Array values. It never fails: anything it cannot encode becomes the
// value's repr text.
func (s *Serializer) Encode(v interp.Value) (out any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Debug("value encoding panicked", slog.String("type", typeName(v)), slog.Any("panic", r))
			out = safeRepr(v)
		}
	}()
	return s.encode(v, 0)
}

// EncodeSnapshot encodes every variable of snap. A nil snapshot encodes
// as nil.
func (s *Serializer) EncodeSnapshot(snap *snapshot.Snapshot) map[string]any {
	if snap == nil {
		return nil
	}
	out := make(map[string]any, len(snap.Vars))
	for name, v := range snap.Vars {
		out[name] = s.Encode(v)
	}
	return out
}

func (s *Serializer) encode(v interp.Value, depth int) any {
	if depth > s.maxDepth() {
		return safeRepr(v)
	}
	switch x := v.(type) {
	case nil, interp.NoneType:
		return nil
	case interp.Bool:
		return bool(x)
	case interp.Int:
		return int64(x)
	case interp.Float:
		return encodeFloat(float64(x))
	case interp.Str:
		return strings.ToValidUTF8(string(x), "\uFFFD")
	case *interp.List:
		return s.sequence(x.Elems, depth)
	case *interp.Tuple:
		return s.sequence(x.Elems, depth)
	case *interp.Dict:
		return s.mapping(x, depth)
	case *interp.NDArray:
		return s.array("ndarray", x, depth)
	case *interp.Tensor:
		a := s.array("torchtensor", x.Array, depth)
		a.DType = x.DTypeName()
		a.RequiresGrad = &x.RequiresGrad
		return a
	}
	return safeRepr(v)
}

func (s *Serializer) sequence(elems []interp.Value, depth int) []any {
	out := make([]any, len(elems))
	for i, e := range elems {
		out[i] = s.encode(e, depth+1)
	}
	return out
}

// mapping encodes a dict as an ordered object. Keys are converted the way
// a JSON encoder converts them; a dict with keys that have no string form
// becomes repr text.
func (s *Serializer) mapping(d *interp.Dict, depth int) any {
	entries := d.Entries()
	obj := make(Object, 0, len(entries))
	for _, e := range entries {
		key, ok := objectKey(e.Key)
		if !ok {
			return safeRepr(d)
		}
		obj = append(obj, Member{Key: key, Value: s.encode(e.Value, depth+1)})
	}
	return obj
}

func objectKey(k interp.Value) (string, bool) {
	switch x := k.(type) {
	case interp.Str:
		return strings.ToValidUTF8(string(x), "\uFFFD"), true
	case interp.Int:
		return strconv.FormatInt(int64(x), 10), true
	case interp.Bool:
		return strconv.FormatBool(bool(x)), true
	case interp.Float:
		switch f := float64(x); {
		case math.IsNaN(f):
			return "NaN", true
		case math.IsInf(f, 1):
			return "Infinity", true
		case math.IsInf(f, -1):
			return "-Infinity", true
		}
		return interp.FormatFloat(float64(x)), true
	case interp.NoneType:
		return "null", true
	}
	return "", false
}

// Array is the encoding of an ndarray or tensor. Exactly one of Values and
// Summary is set.
type Array struct {
	Type         string   `json:"type" msgpack:"type"`
	Shape        []int    `json:"shape" msgpack:"shape"`
	DType        string   `json:"dtype" msgpack:"dtype"`
	RequiresGrad *bool    `json:"requires_grad,omitempty" msgpack:"requires_grad,omitempty"`
	Values       any      `json:"values,omitempty" msgpack:"values,omitempty"`
	Summary      *Summary `json:"summary,omitempty" msgpack:"summary,omitempty"`
}

func (s *Serializer) array(typ string, a *interp.NDArray, depth int) *Array {
	out := &Array{Type: typ, Shape: append([]int{}, a.Shape...), DType: string(a.DType)}
	if a.Size() <= s.maxInline() {
		out.Values = s.encode(a.ToList(), depth+1)
		return out
	}
	out.Summary = s.summarize(a)
	return out
}

// summarize computes count, extrema, mean and a leading sample without
// visiting the elements more than a constant number of times.
func (s *Serializer) summarize(a *interp.NDArray) *Summary {
	data := a.Data
	sum := &Summary{Count: len(data)}
	if len(data) == 0 {
		return sum
	}
	if floats.HasNaN(data) {
		nan := encodeFloat(math.NaN())
		sum.Min, sum.Max, sum.Mean = nan, nan, nan
	} else {
		sum.Min = encodeFloat(floats.Min(data))
		sum.Max = encodeFloat(floats.Max(data))
		sum.Mean = encodeFloat(stat.Mean(data, nil))
	}
	n := min(s.sampleSize(), len(data))
	sum.Sample = make([]any, n)
	for i := 0; i < n; i++ {
		sum.Sample[i] = s.encode(a.Elem(i), 1)
	}
	return sum
}

// encodeFloat maps non-finite floats to the strings JavaScript's parser
// understands.
func encodeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func safeRepr(v interp.Value) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("<%s object>", typeName(v))
		}
	}()
	if v == nil {
		return "None"
	}
	return strings.ToValidUTF8(interp.Repr(v), "\uFFFD")
}

func typeName(v interp.Value) string {
	if v == nil {
		return "NoneType"
	}
	return v.TypeName()
}

func (s *Serializer) maxInline() int {
	if s.MaxInline > 0 {
		return s.MaxInline
	}
	return DefaultMaxInline
}

func (s *Serializer) sampleSize() int {
	if s.SampleSize > 0 {
		return s.SampleSize
	}
	return DefaultSampleSize
}

func (s *Serializer) maxDepth() int {
	if s.MaxDepth > 0 {
		return s.MaxDepth
	}
	return DefaultMaxDepth
}

func (s *Serializer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
