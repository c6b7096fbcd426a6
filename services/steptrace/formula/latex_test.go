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
)

func TestLaTeX(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"x + 2", `x + 2`},
		{"a / b", `\frac{a}{b}`},
		{"x ** 2", `x^{2}`},
		{"(x + 1) ** 2", `\left(x + 1\right)^{2}`},
		{"x ** (1/2)", `\sqrt{x}`},
		{"sqrt(x)", `\sqrt{x}`},
		{"sin(theta)", `\sin{\left(\theta \right)}`},
		{"sin(x) ** 2", `\sin^{2}{\left(x \right)}`},
		{"exp(-x)", `e^{- x}`},
		{"2 * x", `2 x`},
		{"2 * 3", `2 \cdot 3`},
		{"a * (b + c)", `a \left(b + c\right)`},
		{"x_1 + alpha", `x_{1} + \alpha`},
		{"x1 - y", `x_{1} - y`},
		{"a - (b - c)", `a - \left(b - c\right)`},
		{"x + -2", `x - 2`},
		{"-x", `- x`},
		{"x < 3", `x < 3`},
		{"x <= y", `x \leq y`},
		{"a != b", `a \neq b`},
		{"a // b", `\left\lfloor{\frac{a}{b}}\right\rfloor`},
		{"abs(x)", `\left|{x}\right|`},
		{"f(x, y)", `f{\left(x, y \right)}`},
		{"relu(x)", `\operatorname{relu}{\left(x \right)}`},
		{"0.5 * m * v ** 2", `0.5 m v^{2}`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok := LaTeX(context.Background(), tt.expr)
			if !ok {
				t.Fatalf("LaTeX(%q) reported not algebraic", tt.expr)
			}
			if got != tt.want {
				t.Errorf("LaTeX(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestLaTeX_NotAlgebraic(t *testing.T) {
	for _, expr := range []string{
		"np.sum(x)",
		"xs[0] + 1",
		"'a' + 'b'",
		"a and b",
		"not a",
		"a < b < c",
		"x in ys",
		"len(xs)",
		"a @ b",
		"f(x, k=1)",
		"x = 1",
		"(",
	} {
		t.Run(expr, func(t *testing.T) {
			if got, ok := LaTeX(context.Background(), expr); ok {
				t.Errorf("LaTeX(%q) = %q, want not algebraic", expr, got)
			}
		})
	}
}
