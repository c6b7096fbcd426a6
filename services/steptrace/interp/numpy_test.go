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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Numeric(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"array division", "print(np.array([1, 2, 3]) / 2)\n", "[0.5 1.  1.5]\n"},
		{"array repr", "print(repr(np.array([1.5, 2.0])))\n", "array([1.5, 2. ])\n"},
		{
			"shape and reductions",
			"a = np.array([[1, 2], [3, 4]])\nprint(a.shape, a.sum(), a.T.tolist())\n",
			"(2, 2) 10 [[1, 3], [2, 4]]\n",
		},
		{"axis reduction", "a = np.array([[1, 2], [3, 4]])\nprint(a.sum(axis=0).tolist())\n", "[4, 6]\n"},
		{"zeros", "print(np.zeros(3).tolist())\n", "[0.0, 0.0, 0.0]\n"},
		{
			"matmul",
			"print((np.arange(6).reshape(2, 3) @ np.ones((3, 1))).tolist())\n",
			"[[3.0], [12.0]]\n",
		},
		{"broadcast", "print((np.ones((2, 1)) + np.arange(3)).shape)\n", "(2, 3)\n"},
		{"boolean mask", "a = np.arange(5)\nprint(a[a > 2].tolist())\n", "[3, 4]\n"},
		{"tensor arithmetic", "t = torch.tensor([1.0, 2.0])\nprint(t * 2)\n", "tensor([2., 4.])\n"},
		{"tensor mean", "print(torch.tensor([1.0, 2.0, 3.0]).mean().item())\n", "2.0\n"},
		{"tensor shape", "print(torch.zeros(2, 3).shape)\n", "(2, 3)\n"},
		{"symbolic", "x = sp.symbols('x')\nprint(x**2 + 2*x + 1)\n", "x**2 + 2*x + 1\n"},
		{"statistics on tuple", "import statistics as st\nprint(st.median((5, 1, 3)), st.fmean([1, 2]))\n", "3 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRun_NumericErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"broadcast mismatch",
			"np.ones(2) + np.ones(3)\n",
			"ValueError: operands could not be broadcast together with shapes (2,) (3,)",
		},
		{
			"ragged array",
			"np.array([[1, 2], [3]])\n",
			"ValueError: setting an array element with a sequence. The requested array has an inhomogeneous shape",
		},
		{"backward", "torch.ones(2).sum().backward()\n", "NotImplementedError: autograd is not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src)
			var exc *Exception
			require.ErrorAs(t, err, &exc)
			assert.Equal(t, tt.want, exc.Error())
		})
	}
}
