// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package steptrace

import (
	"github.com/AleutianAI/steptrace/services/steptrace/formula"
	"github.com/AleutianAI/steptrace/services/steptrace/topology"
)

// ServiceVersion is the steptrace service version.
const ServiceVersion = "0.1.0"

// CodeRequest is the body of every POST endpoint and of each stream
// message.
type CodeRequest struct {
	// Code is the script source. Bounded by execution.max_source_bytes.
	Code string `json:"code" validate:"required,maxbytes"`
}

// ErrorResponse is returned for requests rejected before execution.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// FormulasResponse maps line numbers to formulas.
type FormulasResponse struct {
	Formulas map[int]formula.Formula `json:"formulas"`
}

// TopologyResponse lists the Sequential models found in the code.
type TopologyResponse struct {
	Models []topology.Model `json:"models"`
}

// Stream message types.
const (
	StreamStep  = "step"
	StreamDone  = "done"
	StreamError = "error"
)

// StreamMessage is one server-to-client WebSocket message.
type StreamMessage struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Step  any    `json:"step,omitempty"`

	TraceID    string `json:"trace_id,omitempty"`
	Steps      int    `json:"steps,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	Error     string `json:"error,omitempty"`
	Traceback string `json:"traceback,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}
