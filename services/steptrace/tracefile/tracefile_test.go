// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracefile

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
)

const script = `import numpy as np
def area(r):
    return 3.14159 * r ** 2
a = area(2)
xs = np.arange(50)
d = {"b": 1, "a": [1, 2]}
`

func traced(t *testing.T) *assembler.Result {
	t.Helper()
	res := assembler.New(assembler.DefaultSettings(), nil).Trace(context.Background(), []byte(script))
	require.True(t, res.Success, res.Error)
	return res
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"trace.json", FormatJSON, true},
		{"trace.JSON", FormatJSON, true},
		{"trace.msgpack", FormatMsgpack, true},
		{"trace.mp", FormatMsgpack, true},
		{"trace.txt", "", false},
		{"trace", "", false},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if tt.ok {
			assert.NoError(t, err, tt.path)
			assert.Equal(t, tt.want, got, tt.path)
		} else {
			assert.ErrorIs(t, err, ErrUnknownFormat, tt.path)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	res := traced(t)
	for _, format := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, res, format))

			got, err := Read(&buf, format)
			require.NoError(t, err)
			assert.True(t, got.Success)
			assert.Equal(t, res.TraceID, got.TraceID)
			require.Len(t, got.Steps, len(res.Steps))

			for i := range res.Steps {
				want, have := res.Steps[i], got.Steps[i]
				assert.Equal(t, want.Event, have.Event)
				assert.Equal(t, want.Func, have.Func)
				assert.Equal(t, want.Line, have.Line)
				assert.Equal(t, want.Code, have.Code)
				assert.Equal(t, len(want.After), len(have.After))
				if want.Formula != nil {
					require.NotNil(t, have.Formula)
					assert.Equal(t, want.Formula.Expr, have.Formula.Expr)
				}
			}

			last := got.Steps[len(got.Steps)-2]
			arr, ok := last.After["xs"].(map[string]any)
			require.True(t, ok, "array decodes as a map, got %T", last.After["xs"])
			assert.Equal(t, "ndarray", arr["type"])
			assert.Contains(t, arr, "summary")
		})
	}
}

func TestFiles(t *testing.T) {
	res := traced(t)
	dir := t.TempDir()
	for _, name := range []string{"t.json", "t.mp"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, res))
		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, got.Steps, len(res.Steps))
	}

	assert.ErrorIs(t, WriteFile(filepath.Join(dir, "t.csv"), res), ErrUnknownFormat)
	_, err := ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("MSGPACK")
	require.NoError(t, err)
	assert.Equal(t, FormatMsgpack, f)
	_, err = ParseFormat("yaml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
