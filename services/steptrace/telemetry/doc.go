// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry initializes OpenTelemetry tracing and metrics for the
// steptrace service.
//
// OTel is used directly: packages call otel.Tracer and otel.Meter, and
// Init decides where spans and metrics go. Backends are swapped by
// configuration, not code.
//
// # Trace exporters
//
//   - otlp: gRPC OTLP (Jaeger, Tempo, any collector)
//   - stdout: pretty-printed spans on stdout
//   - none: spans are dropped
//
// # Metric exporters
//
//   - prometheus: scraped from Stack.Metrics
//   - stdout: periodic pretty-printed dumps
//   - none: metrics are dropped
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
package telemetry
