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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/steptrace/services/steptrace/telemetry"
)

// RegisterRoutes registers the /steptrace endpoints on rg.
//
// Endpoints:
//
//	POST /steptrace/execute  - Trace code
//	POST /steptrace/formulas - Formula map without execution
//	POST /steptrace/topology - Sequential model layers without execution
//	GET  /steptrace/stream   - WebSocket step streaming
//	GET  /steptrace/health   - Health check
//
// Rate limiting applies to the POST endpoints and the stream handshake.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	st := rg.Group("/steptrace")
	{
		st.GET("/health", h.HandleHealth)

		limited := st.Group("", RateLimit(h.svc), LimitBody(h.svc))
		limited.POST("/execute", h.HandleExecute)
		limited.POST("/formulas", h.HandleFormulas)
		limited.POST("/topology", h.HandleTopology)
		limited.GET("/stream", h.HandleStream)
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName names the otelgin spans.
	ServiceName string

	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string

	// ServeMetrics mounts GET /metrics on this router.
	ServeMetrics bool

	// Metrics is the scrape handler of the telemetry stack, if any.
	Metrics http.Handler

	// AccessLog adds gin's request logger.
	AccessLog bool

	Logger *slog.Logger
}

// NewRouter builds the gin engine with the standard middleware stack.
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "steptrace"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if opts.AccessLog {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(RequestID())
	router.Use(CORS(opts.AllowedOrigins))

	metrics, err := telemetry.NewMetrics(otel.Meter("steptrace.http"))
	if err != nil {
		logger.Warn("http metrics disabled", slog.String("error", err.Error()))
	} else {
		router.Use(telemetry.Middleware(metrics))
	}

	RegisterRoutes(router.Group("/v1"), h)
	router.GET("/health", h.HandleHealth)
	if opts.ServeMetrics {
		router.GET("/metrics", gin.WrapH(MetricsHandler(opts.Metrics)))
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: "NOT_FOUND"})
	})
	return router
}

// MetricsHandler returns otelMetrics when the OTel Prometheus exporter is
// active, else the default Prometheus registry handler.
func MetricsHandler(otelMetrics http.Handler) http.Handler {
	if otelMetrics != nil {
		return otelMetrics
	}
	return promhttp.Handler()
}
