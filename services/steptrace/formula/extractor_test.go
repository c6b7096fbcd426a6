// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestExtract_AssignmentAndReturn(t *testing.T) {
	src := `x = 1
y = x + 2
def f(a):
    return a * 2
z = f(3)
`
	got := NewExtractor(nil).Extract(context.Background(), []byte(src))

	want := map[int]Formula{
		2: {Expr: "x + 2", Latex: strPtr("x + 2")},
		4: {Expr: "a * 2", Latex: strPtr("2 a")},
		5: {Expr: "f(3)", Latex: strPtr("f{\\left(3 \\right)}")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_StatementForms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		expr string
	}{
		{"chained assignment", "a = b = c+1\n", 1, "c + 1"},
		{"annotated assignment", "r: float = (p*q)\n", 1, "p * q"},
		{"unary", "n = -x\n", 1, "-x"},
		{"not", "ok = not(done)\n", 1, "not done"},
		{"boolean", "ok = a and(b or c)\n", 1, "a and (b or c)"},
		{"comparison", "ok = a<b<=c\n", 1, "a < b <= c"},
		{"call with keywords", "s = np.sum(xs , axis = 0)\n", 1, "np.sum(xs, axis=0)"},
		{"nested function", "def g():\n    return (x+1)**2\n", 2, "(x + 1) ** 2"},
		{"later statement wins", "a = b+1; c = d*2\n", 1, "d * 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewExtractor(nil).Extract(context.Background(), []byte(tt.src))
			require.Contains(t, got, tt.line)
			assert.Equal(t, tt.expr, got[tt.line].Expr)
		})
	}
}

func TestExtract_NonQualifying(t *testing.T) {
	src := `a = 1
b = a
c = [1, 2]
d = 'text'
e = a if b else c
f += 1
g: int
return_value = xs[0]
`
	got := NewExtractor(nil).Extract(context.Background(), []byte(src))
	assert.Empty(t, got)
}

func TestExtract_ParseFailureIsEmpty(t *testing.T) {
	got := NewExtractor(nil).Extract(context.Background(), []byte("x = (1 +\n"))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtract_NonAlgebraicKeepsExpr(t *testing.T) {
	got := NewExtractor(nil).Extract(context.Background(), []byte("m = np.mean(xs)\nok = a and b\n"))
	require.Len(t, got, 2)
	assert.Equal(t, "np.mean(xs)", got[1].Expr)
	assert.Nil(t, got[1].Latex)
	assert.Equal(t, "a and b", got[2].Expr)
	assert.Nil(t, got[2].Latex)
}

func TestUnparse_Parentheses(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"y = (a+b)*c", "(a + b) * c"},
		{"y = ((a*b))+c", "a * b + c"},
		{"y = a-(b-c)", "a - (b - c)"},
		{"y = (a-b)-c", "a - b - c"},
		{"y = a**b**c", "a ** b ** c"},
		{"y = (a**b)**c", "(a ** b) ** c"},
		{"y = (-x)**2", "(-x) ** 2"},
		{"y = -x**2", "-x ** 2"},
		{"y = f(\"a\", [1,2])", "f('a', [1, 2])"},
		{"y = (a+b).sum()", "(a + b).sum()"},
		{"y = m[i , j]+1", "m[i, j] + 1"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := NewExtractor(nil).Extract(context.Background(), []byte(tt.src+"\n"))
			require.Contains(t, got, 1)
			assert.Equal(t, tt.want, got[1].Expr)
		})
	}
}
