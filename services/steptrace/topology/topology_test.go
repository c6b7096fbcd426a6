// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptr(i int) *int { return &i }

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Model
	}{
		{
			name: "linear stack",
			src: `import torch.nn as nn
model = nn.Sequential(
    nn.Linear(4, 8),
    nn.ReLU(),
    nn.Linear(8, 1),
    nn.Sigmoid(),
)
`,
			want: []Model{{
				Name: "model",
				Type: "Sequential",
				Line: 2,
				Layers: []Layer{
					{Type: "Linear", In: ptr(4), Out: ptr(8), Line: 3},
					{Type: "ReLU", Line: 4},
					{Type: "Linear", In: ptr(8), Out: ptr(1), Line: 5},
					{Type: "Sigmoid", Line: 6},
				},
			}},
		},
		{
			name: "keyword and non literal dimensions",
			src:  "h = 16\nnet = torch.nn.Sequential(nn.Linear(in_features=2, out_features=h))\n",
			want: []Model{{
				Name:   "net",
				Type:   "Sequential",
				Line:   2,
				Layers: []Layer{{Type: "Linear", In: ptr(2), Line: 2}},
			}},
		},
		{
			name: "non call arguments skipped",
			src:  "layer = nn.ReLU()\nm = nn.Sequential(layer, nn.Tanh())\n",
			want: []Model{{
				Name:   "m",
				Type:   "Sequential",
				Line:   2,
				Layers: []Layer{{Type: "Tanh", Line: 2}},
			}},
		},
		{
			name: "multiple models in order",
			src:  "a = nn.Sequential()\nx = 1\nb = nn.Sequential(nn.Linear(0x10, 1_000))\n",
			want: []Model{
				{Name: "a", Type: "Sequential", Line: 1, Layers: []Layer{}},
				{Name: "b", Type: "Sequential", Line: 3, Layers: []Layer{{Type: "Linear", In: ptr(16), Out: ptr(1000), Line: 3}}},
			},
		},
		{
			name: "no models",
			src:  "x = foo(1)\ny = nn.Linear(1, 2)\n",
			want: []Model{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(context.Background(), []byte(tt.src))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("models mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtract_SyntaxError(t *testing.T) {
	_, err := Extract(context.Background(), []byte("model = nn.Sequential(\n"))
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("err = %v, want ErrSyntax", err)
	}
}
