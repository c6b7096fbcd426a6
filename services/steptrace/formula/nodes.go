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

// Tree-sitter node types read by the extractor and the renderers.
//
// Reference: https://github.com/tree-sitter/tree-sitter-python/blob/master/src/grammar.json
const (
	// Statements
	nodeAssignment      = "assignment"
	nodeReturnStatement = "return_statement"

	// Operators
	nodeBinaryOperator     = "binary_operator"
	nodeUnaryOperator      = "unary_operator"
	nodeNotOperator        = "not_operator"
	nodeBooleanOperator    = "boolean_operator"
	nodeComparisonOperator = "comparison_operator"

	// Primaries
	nodeCall                    = "call"
	nodeAttribute               = "attribute"
	nodeSubscript               = "subscript"
	nodeParenthesizedExpression = "parenthesized_expression"
	nodeArgumentList            = "argument_list"
	nodeKeywordArgument         = "keyword_argument"
	nodeListSplat               = "list_splat"
	nodeDictionarySplat         = "dictionary_splat"
	nodeConditionalExpression   = "conditional_expression"

	// Literals
	nodeIdentifier = "identifier"
	nodeInteger    = "integer"
	nodeFloat      = "float"
	nodeString     = "string"
	nodeTrue       = "true"
	nodeFalse      = "false"
	nodeNone       = "none"
	nodeList       = "list"
	nodeTuple      = "tuple"
	nodeSet        = "set"
	nodeDictionary = "dictionary"
	nodePair       = "pair"
)

// Python AST shapes used here
//
// assignment
// ├── left: pattern
// ├── type: type (annotated form, optional)
// └── right: expression | assignment (chained form)
// binary_operator
// ├── left, right: expression
// └── operator: "+" | "-" | "*" | "/" | "//" | "%" | "**" | "@" | "|" | "&" | "^" | "<<" | ">>"
// comparison_operator
// └── operand (op operand)+   e.g. a < b <= c, x not in ys
// call
// ├── function: primary_expression
// └── arguments: argument_list | generator_expression
