// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/AleutianAI/steptrace/services/steptrace/formula"
)

// ErrorKind classifies a failed trace.
type ErrorKind string

const (
	// ErrorKindCompile means the source did not parse or used an
	// unsupported construct. No steps were recorded.
	ErrorKindCompile ErrorKind = "compile"

	// ErrorKindRuntime means the script raised.
	ErrorKindRuntime ErrorKind = "runtime"

	// ErrorKindLimit means a time, instruction, recursion, allocation or
	// step budget stopped the script.
	ErrorKindLimit ErrorKind = "limit"
)

// Result is the outcome of one trace.
type Result struct {
	Success   bool      `json:"success" msgpack:"success"`
	Steps     []Step    `json:"steps,omitempty" msgpack:"steps,omitempty"`
	Error     string    `json:"error,omitempty" msgpack:"error,omitempty"`
	Traceback string    `json:"traceback,omitempty" msgpack:"traceback,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty" msgpack:"error_kind,omitempty"`

	// Stdout is the captured print output, present on success and failure.
	Stdout string `json:"stdout" msgpack:"stdout"`

	TraceID    string `json:"trace_id" msgpack:"trace_id"`
	DurationMS int64  `json:"duration_ms" msgpack:"duration_ms"`
}

// Step is the wire form of a recorder step.
type Step struct {
	Event string `json:"event" msgpack:"event"`
	Func  string `json:"func" msgpack:"func"`
	Line  int    `json:"lineno" msgpack:"lineno"`

	// Code is nil when the line number is outside the source.
	Code *string `json:"code" msgpack:"code"`

	Before map[string]any `json:"before" msgpack:"before"`
	After  map[string]any `json:"after" msgpack:"after"`

	// ReturnValue is only present on exit steps.
	ReturnValue *Value `json:"return_value,omitempty" msgpack:"return_value,omitempty"`

	Formula *formula.Formula `json:"formula" msgpack:"formula"`

	// Aliased marks snapshots that may share state with later steps.
	Aliased bool `json:"aliased,omitempty" msgpack:"aliased,omitempty"`
}

// ChangedNames returns the sorted names in After that are new or whose
// value differs from Before.
func (s Step) ChangedNames() []string {
	var names []string
	for name, v := range s.After {
		prev, ok := s.Before[name]
		if !ok || !reflect.DeepEqual(prev, v) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Value boxes an encoded value so that an explicit null return value is
// distinguishable from an absent one.
type Value struct {
	V any
}

// MarshalJSON encodes the boxed value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.V)
}

// UnmarshalJSON decodes into the boxed value.
func (v *Value) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &v.V)
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack encodes the boxed value.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(v.V)
}

// DecodeMsgpack decodes into the boxed value.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	x, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	v.V = x
	return nil
}
