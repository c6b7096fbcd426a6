// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ExporterNone disables a signal.
const ExporterNone = "none"

// Config selects where spans and metrics go.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// TraceExporter is a key of the span exporter table or ExporterNone.
	TraceExporter string

	// MetricExporter is a key of the metric reader table or ExporterNone.
	MetricExporter string

	// OTLPEndpoint is host:port for plaintext gRPC, or an https:// URL.
	OTLPEndpoint string

	// Registry receives the Prometheus collectors. Nil uses the default
	// registry.
	Registry *prometheus.Registry

	// Output receives stdout exporter dumps. Nil means os.Stdout.
	Output io.Writer
}

// DefaultConfig returns development defaults: no span export and
// Prometheus metrics.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "steptrace",
		ServiceVersion: "dev",
		TraceExporter:  ExporterNone,
		MetricExporter: "prometheus",
		OTLPEndpoint:   "localhost:4317",
	}
}

func (c Config) output() io.Writer {
	if c.Output == nil {
		return os.Stdout
	}
	return c.Output
}

// spanExporters builds the span exporter for each TraceExporter value.
var spanExporters = map[string]func(context.Context, Config) (sdktrace.SpanExporter, error){
	"otlp": func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		if strings.HasPrefix(cfg.OTLPEndpoint, "https://") {
			return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint))
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	},
	"stdout": func(_ context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(cfg.output()), stdouttrace.WithPrettyPrint())
	},
}

// metricReaders builds the reader for each MetricExporter value. The
// returned handler is non-nil only for pull exporters.
var metricReaders = map[string]func(Config) (sdkmetric.Reader, http.Handler, error){
	"prometheus": func(cfg Config) (sdkmetric.Reader, http.Handler, error) {
		if cfg.Registry == nil {
			exp, err := promexporter.New()
			return exp, promhttp.Handler(), err
		}
		exp, err := promexporter.New(promexporter.WithRegisterer(cfg.Registry))
		return exp, promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}), err
	},
	"stdout": func(cfg Config) (sdkmetric.Reader, http.Handler, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.output()), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil, nil
	},
}

// TraceExporters lists the accepted TraceExporter values.
func TraceExporters() []string { return exporterNames(spanExporters) }

// MetricExporters lists the accepted MetricExporter values.
func MetricExporters() []string { return exporterNames(metricReaders) }

func exporterNames[V any](table map[string]V) []string {
	names := []string{ExporterNone}
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stack is an installed telemetry pipeline.
type Stack struct {
	// Metrics serves the Prometheus scrape endpoint. Nil unless the
	// prometheus metric exporter is active.
	Metrics http.Handler

	closers []func(context.Context) error
}

// Shutdown flushes and stops the installed providers, newest first.
func (s *Stack) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// Init installs the global TracerProvider, MeterProvider and W3C
// trace-context propagator for cfg.
//
// Description:
//
//	Signals whose exporter is ExporterNone keep the otel no-op providers.
//	On error nothing already installed is left running.
//
// Outputs:
//
//	*Stack - Shut it down before exit.
//	error - ErrNilContext, ErrUnknownExporter or exporter setup errors.
//
// Thread Safety: Call once at application startup.
func Init(ctx context.Context, cfg Config) (*Stack, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	newSpans, ok := spanExporters[cfg.TraceExporter]
	if !ok && cfg.TraceExporter != ExporterNone {
		return nil, fmt.Errorf("%w: trace %q", ErrUnknownExporter, cfg.TraceExporter)
	}
	newReader, ok := metricReaders[cfg.MetricExporter]
	if !ok && cfg.MetricExporter != ExporterNone {
		return nil, fmt.Errorf("%w: metric %q", ErrUnknownExporter, cfg.MetricExporter)
	}

	res := resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	stack := &Stack{}
	if newSpans != nil {
		exp, err := newSpans(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s span exporter: %w", cfg.TraceExporter, err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)
		stack.closers = append(stack.closers, tp.Shutdown)
	}
	if newReader != nil {
		reader, handler, err := newReader(cfg)
		if err != nil {
			_ = stack.Shutdown(ctx)
			return nil, fmt.Errorf("%s metric reader: %w", cfg.MetricExporter, err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
		otel.SetMeterProvider(mp)
		stack.closers = append(stack.closers, mp.Shutdown)
		stack.Metrics = handler
	}
	return stack, nil
}
