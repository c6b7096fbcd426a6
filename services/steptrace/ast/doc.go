// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast is the Python syntax front end shared by the evaluator, the
// formula extractor, and the topology extractor.
//
// Parsing goes through tree-sitter. Each call to Parse creates its own
// parser, so the package is safe for concurrent use. Callers own the
// returned Tree and must Close it.
package ast
