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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/steptrace/services/steptrace/telemetry"
	"github.com/AleutianAI/steptrace/services/steptrace/topology"
)

// Error codes carried in ErrorResponse.Code.
const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeTooLarge       = "SOURCE_TOO_LARGE"
	codeBusy           = "BUSY"
	codeRateLimited    = "RATE_LIMITED"
	codeSyntax         = "SYNTAX_ERROR"
	codeCanceled       = "CANCELED"
	codeInternal       = "INTERNAL"
)

// noCodeMessage is the body text for an empty code field.
const noCodeMessage = "No code provided"

// Handlers contains the HTTP handlers for the steptrace API.
type Handlers struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandlers creates handlers for svc.
func NewHandlers(svc *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{svc: svc, logger: logger}
	h.validate = validator.New()
	// The limit is read per request so that config reloads apply.
	_ = h.validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= svc.MaxSourceBytes()
	})
	return h
}

// HandleExecute handles POST /v1/steptrace/execute.
//
// Description:
//
//	Traces the submitted code. Script failures (syntax, runtime, limits)
//	are part of a 200 response with success=false.
//
// Request Body:
//
//	CodeRequest
//
// Response:
//
//	200 OK: assembler.Result
//	400 Bad Request: Malformed body or empty code
//	413 Request Entity Too Large: Code over max_source_bytes
//	503 Service Unavailable: No trace slot became free
func (h *Handlers) HandleExecute(c *gin.Context) {
	logger := h.requestLogger(c, "HandleExecute")

	req, ok := h.bind(c, logger)
	if !ok {
		requestsTotal.WithLabelValues("execute", "rejected").Inc()
		return
	}

	res, err := h.svc.Trace(c.Request.Context(), []byte(req.Code))
	if err != nil {
		requestsTotal.WithLabelValues("execute", "rejected").Inc()
		h.fail(c, logger, err)
		return
	}

	outcome := "success"
	if !res.Success {
		outcome = string(res.ErrorKind)
	}
	requestsTotal.WithLabelValues("execute", outcome).Inc()
	logger.Info("trace served",
		slog.String("trace_id", res.TraceID),
		slog.String("outcome", outcome),
		slog.Int("steps", len(res.Steps)),
		slog.Int("code_bytes", len(req.Code)),
	)
	c.JSON(http.StatusOK, res)
}

// HandleFormulas handles POST /v1/steptrace/formulas.
//
// Response:
//
//	200 OK: FormulasResponse (empty map when the code does not parse)
func (h *Handlers) HandleFormulas(c *gin.Context) {
	logger := h.requestLogger(c, "HandleFormulas")

	req, ok := h.bind(c, logger)
	if !ok {
		return
	}
	formulas, err := h.svc.Formulas(c.Request.Context(), []byte(req.Code))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	requestsTotal.WithLabelValues("formulas", "success").Inc()
	c.JSON(http.StatusOK, FormulasResponse{Formulas: formulas})
}

// HandleTopology handles POST /v1/steptrace/topology.
//
// Response:
//
//	200 OK: TopologyResponse
//	400 Bad Request: Code does not parse
func (h *Handlers) HandleTopology(c *gin.Context) {
	logger := h.requestLogger(c, "HandleTopology")

	req, ok := h.bind(c, logger)
	if !ok {
		return
	}
	models, err := h.svc.Topology(c.Request.Context(), []byte(req.Code))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	requestsTotal.WithLabelValues("topology", "success").Inc()
	c.JSON(http.StatusOK, TopologyResponse{Models: models})
}

// HandleHealth handles GET /v1/steptrace/health. Always 200 while the
// process is serving.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: ServiceVersion})
}

// bind decodes and validates a CodeRequest, writing the error response
// itself when it fails.
func (h *Handlers) bind(c *gin.Context, logger *slog.Logger) (CodeRequest, bool) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.reject(c, http.StatusRequestEntityTooLarge, ErrSourceTooLarge.Error(), codeTooLarge, "too_large")
			return req, false
		}
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		h.reject(c, http.StatusBadRequest, "Invalid request body", codeInvalidRequest, "invalid")
		return req, false
	}
	if err := h.validateRequest(&req); err != nil {
		h.fail(c, logger, err)
		return req, false
	}
	return req, true
}

// validateRequest maps validator failures onto the service's sentinel
// errors.
func (h *Handlers) validateRequest(req *CodeRequest) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				return ErrEmptySource
			case "maxbytes":
				return ErrSourceTooLarge
			}
		}
	}
	return err
}

// fail writes the response for an error returned before or instead of a
// trace.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrEmptySource):
		h.reject(c, http.StatusBadRequest, noCodeMessage, "", "empty")
	case errors.Is(err, ErrSourceTooLarge):
		h.reject(c, http.StatusRequestEntityTooLarge, err.Error(), codeTooLarge, "too_large")
	case errors.Is(err, ErrBusy):
		logger.Warn("trace slots exhausted")
		h.reject(c, http.StatusServiceUnavailable, err.Error(), codeBusy, "busy")
	case errors.Is(err, topology.ErrSyntax):
		h.reject(c, http.StatusBadRequest, err.Error(), codeSyntax, "syntax")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.reject(c, http.StatusServiceUnavailable, err.Error(), codeCanceled, "canceled")
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		h.reject(c, http.StatusInternalServerError, err.Error(), codeInternal, "internal")
	}
}

func (h *Handlers) reject(c *gin.Context, status int, msg, code, reason string) {
	rejectedTotal.WithLabelValues(reason).Inc()
	c.JSON(status, ErrorResponse{Success: false, Error: msg, Code: code})
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", handler)
	return telemetry.LoggerWithTrace(c.Request.Context(), logger)
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	c.Set(requestIDKey, requestID)
	return requestID
}
