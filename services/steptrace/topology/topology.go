// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package topology lists the layers of sequential neural network models
// declared in a script, without executing it.
package topology

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// ErrSyntax is returned when the source does not parse.
var ErrSyntax = errors.New("source has syntax errors")

const (
	nodeAssignment   = "assignment"
	nodeCall         = "call"
	nodeAttribute    = "attribute"
	nodeIdentifier   = "identifier"
	nodeInteger      = "integer"
	nodeKeywordArg   = "keyword_argument"
	nodeArgumentList = "argument_list"

	sequentialType = "Sequential"
	linearType     = "Linear"
)

// Layer is one constructor call inside a Sequential model.
type Layer struct {
	Type string `json:"layer" msgpack:"layer"`

	// In and Out are set for Linear layers whose dimensions are integer
	// literals.
	In  *int `json:"in,omitempty" msgpack:"in,omitempty"`
	Out *int `json:"out,omitempty" msgpack:"out,omitempty"`

	Line int `json:"line" msgpack:"line"`
}

// Model is a Sequential model bound to a name.
type Model struct {
	Name   string  `json:"model_name" msgpack:"model_name"`
	Type   string  `json:"type" msgpack:"type"`
	Layers []Layer `json:"layers" msgpack:"layers"`
	Line   int     `json:"line" msgpack:"line"`
}

// Extract finds assignments of the form name = <x>.Sequential(...) and
// lists their layers.
//
// Description:
//
//	Only positional arguments that are themselves calls become layers.
//	Linear(in, out) records its dimensions when both are integer literals,
//	either positionally or as in_features/out_features keywords. Models
//	are returned in source order.
//
// Inputs:
//
//	ctx - Context for parse cancellation.
//	source - Script source.
//
// Outputs:
//
//	[]Model - Never nil on success.
//	error - ErrSyntax (wrapped) when the source does not parse.
func Extract(ctx context.Context, source []byte) ([]Model, error) {
	tree, err := ast.Parse(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	defer tree.Close()
	if pe := tree.SyntaxError(); pe != nil {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, pe.Error())
	}

	src := tree.Source()
	models := []Model{}
	ast.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != nodeAssignment {
			return true
		}
		left := n.ChildByFieldName("left")
		right := ast.Unparen(n.ChildByFieldName("right"))
		if left == nil || right == nil || left.Type() != nodeIdentifier || right.Type() != nodeCall {
			return true
		}
		if calleeName(src, right) != sequentialType {
			return true
		}
		m := Model{
			Name:   ast.Text(src, left),
			Type:   sequentialType,
			Layers: []Layer{},
			Line:   ast.Line(n),
		}
		for _, arg := range arguments(right) {
			if layer, ok := extractLayer(src, arg); ok {
				m.Layers = append(m.Layers, layer)
			}
		}
		models = append(models, m)
		return true
	})
	return models, nil
}

func extractLayer(src []byte, n *sitter.Node) (Layer, bool) {
	n = ast.Unparen(n)
	if n.Type() != nodeCall {
		return Layer{}, false
	}
	name := calleeName(src, n)
	if name == "" {
		return Layer{}, false
	}
	layer := Layer{Type: name, Line: ast.Line(n)}
	if name != linearType {
		return layer, true
	}

	var in, out *sitter.Node
	positional := 0
	for _, arg := range arguments(n) {
		if arg.Type() == nodeKeywordArg {
			switch ast.Text(src, arg.ChildByFieldName("name")) {
			case "in_features":
				in = arg.ChildByFieldName("value")
			case "out_features":
				out = arg.ChildByFieldName("value")
			}
			continue
		}
		switch positional {
		case 0:
			in = arg
		case 1:
			out = arg
		}
		positional++
	}
	layer.In = intLiteral(src, in)
	layer.Out = intLiteral(src, out)
	return layer, true
}

// calleeName returns the attribute or identifier a call invokes, or "".
func calleeName(src []byte, call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case nodeAttribute:
		return ast.Text(src, fn.ChildByFieldName("attribute"))
	case nodeIdentifier:
		return ast.Text(src, fn)
	}
	return ""
}

func arguments(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Type() != nodeArgumentList {
		return nil
	}
	return ast.NamedChildren(args)
}

func intLiteral(src []byte, n *sitter.Node) *int {
	if n == nil {
		return nil
	}
	n = ast.Unparen(n)
	if n.Type() != nodeInteger {
		return nil
	}
	text := strings.ReplaceAll(ast.Text(src, n), "_", "")
	v, err := strconv.ParseInt(strings.ToLower(text), 0, 64)
	if err != nil {
		return nil
	}
	i := int(v)
	return &i
}
