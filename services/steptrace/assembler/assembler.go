// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assembler runs a script under the recorder and converts the
// recorded steps into a serializable trace result.
package assembler

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
	"github.com/AleutianAI/steptrace/services/steptrace/formula"
	"github.com/AleutianAI/steptrace/services/steptrace/interp"
	"github.com/AleutianAI/steptrace/services/steptrace/recorder"
	"github.com/AleutianAI/steptrace/services/steptrace/serialize"
	"github.com/AleutianAI/steptrace/services/steptrace/snapshot"
)

var (
	tracer = otel.Tracer("steptrace.assembler")
	meter  = otel.Meter("steptrace.assembler")
)

// Settings are the per-trace budgets and encoding thresholds.
type Settings struct {
	Limits     interp.Limits
	Timeout    time.Duration
	MaxSteps   int
	MaxInline  int
	SampleSize int
	Seed       int64
}

// DefaultSettings returns the budgets used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Limits:     interp.DefaultLimits(),
		Timeout:    5 * time.Second,
		MaxSteps:   recorder.DefaultMaxSteps,
		MaxInline:  serialize.DefaultMaxInline,
		SampleSize: serialize.DefaultSampleSize,
	}
}

// Assembler orchestrates formula extraction, compilation, recorded
// execution and serialization.
//
// Thread Safety:
//
//	Safe for concurrent use. Every Trace call builds its own session,
//	recorder and interpreter; settings are swapped atomically.
type Assembler struct {
	extractor *formula.Extractor
	logger    *slog.Logger
	settings  atomic.Pointer[Settings]

	metricsOnce   sync.Once
	traceTotal    metric.Int64Counter
	traceDuration metric.Float64Histogram
	traceSteps    metric.Int64Histogram
}

// New creates an Assembler. A nil logger uses slog.Default().
func New(settings Settings, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		extractor: formula.NewExtractor(logger),
		logger:    logger,
	}
	a.settings.Store(&settings)
	return a
}

// Settings returns the current settings.
func (a *Assembler) Settings() Settings {
	return *a.settings.Load()
}

// UpdateSettings replaces the settings used by subsequent traces. Traces
// already running keep the settings they started with.
func (a *Assembler) UpdateSettings(s Settings) {
	a.settings.Store(&s)
}

// Trace executes source and returns its step trace.
//
// Description:
//
//	Formulas are extracted first, independent of the outcome. A compile
//	failure returns no steps. A runtime or limit failure discards the
//	partial steps and returns the error message and traceback. The
//	recorder is detached from the interpreter on every exit path.
//
// Inputs:
//
//	ctx - Cancels the run. The configured timeout is applied on top.
//	source - Script source.
//
// Outputs:
//
//	*Result - Never nil.
func (a *Assembler) Trace(ctx context.Context, source []byte) *Result {
	start := time.Now()
	cfg := a.Settings()
	res := &Result{TraceID: uuid.NewString()}

	ctx, span := tracer.Start(ctx, "assembler.Trace",
		trace.WithAttributes(
			attribute.String("trace.id", res.TraceID),
			attribute.Int("source.bytes", len(source)),
		),
	)
	defer span.End()
	logger := a.logger.With(slog.String("trace_id", res.TraceID))

	defer func() {
		elapsed := time.Since(start)
		res.DurationMS = elapsed.Milliseconds()
		a.record(ctx, res, elapsed)
		span.SetAttributes(attribute.Int("trace.steps", len(res.Steps)))
		if res.Success {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetAttributes(attribute.String("trace.error_kind", string(res.ErrorKind)))
			span.SetStatus(codes.Error, res.Error)
		}
		logger.Info("trace complete",
			slog.Bool("success", res.Success),
			slog.String("error_kind", string(res.ErrorKind)),
			slog.Int("steps", len(res.Steps)),
			slog.Int64("duration_ms", res.DurationMS),
		)
	}()

	formulas := a.extractor.Extract(ctx, source)

	unit, err := a.compile(ctx, source)
	if err != nil {
		fail(res, err)
		return res
	}
	defer unit.Close()

	session := recorder.NewSession()
	rec := recorder.New(session,
		recorder.WithSanitizer(&snapshot.Sanitizer{Logger: logger}),
		recorder.WithMaxSteps(cfg.MaxSteps),
		recorder.WithLogger(logger),
	)
	in := interp.New(
		interp.WithLimits(cfg.Limits),
		interp.WithSeed(cfg.Seed),
		interp.WithLogger(logger),
	)

	err = a.execute(ctx, in, unit, rec, cfg.Timeout)
	session.Finalize()
	res.Stdout = in.Stdout()
	if err != nil {
		fail(res, err)
		return res
	}

	ser := &serialize.Serializer{MaxInline: cfg.MaxInline, SampleSize: cfg.SampleSize, Logger: logger}
	res.Success = true
	res.Steps = convert(session.Steps(), source, formulas, ser)
	return res
}

func (a *Assembler) compile(ctx context.Context, source []byte) (*interp.Unit, error) {
	ctx, span := tracer.Start(ctx, "assembler.Compile")
	defer span.End()
	unit, err := interp.Compile(ctx, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compile failed")
		return nil, err
	}
	return unit, nil
}

// execute runs unit with rec attached. Evaluator panics surface as
// InternalError exceptions.
func (a *Assembler) execute(ctx context.Context, in *interp.Interpreter, unit *interp.Unit, rec *recorder.Recorder, timeout time.Duration) (err error) {
	ctx, span := tracer.Start(ctx, "assembler.Run")
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	in.SetObserver(rec)
	defer in.SetObserver(nil)
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("evaluator panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = interp.NewInternalError("%v", r)
		}
	}()

	err = in.Run(ctx, unit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
	}
	return err
}

// budgetExceptions are raised as script exceptions but reported as limits.
var budgetExceptions = map[string]bool{
	"RecursionError": true,
	"MemoryError":    true,
}

// fail fills the error fields of res from err.
func fail(res *Result, err error) {
	res.Success = false
	res.Steps = nil

	var se *interp.SyntaxError
	var exc *interp.Exception
	switch {
	case errors.As(err, &se):
		res.ErrorKind = ErrorKindCompile
		res.Error = se.Error()
		res.Traceback = se.Traceback()
	case errors.Is(err, interp.ErrBudgetExceeded), errors.Is(err, ast.ErrContextCanceled):
		res.ErrorKind = ErrorKindLimit
		res.Error = err.Error()
	case errors.As(err, &exc):
		res.ErrorKind = ErrorKindRuntime
		if budgetExceptions[exc.Class.Name] {
			res.ErrorKind = ErrorKindLimit
		}
		res.Error = exc.Error()
		res.Traceback = exc.Traceback()
	case errors.Is(err, ast.ErrSourceTooLarge), errors.Is(err, ast.ErrInvalidContent):
		res.ErrorKind = ErrorKindCompile
		res.Error = err.Error()
	default:
		res.ErrorKind = ErrorKindRuntime
		res.Error = err.Error()
	}
}

// convert annotates steps with source text and formulas and serializes
// their snapshots.
func convert(steps []*recorder.Step, source []byte, formulas map[int]formula.Formula, ser *serialize.Serializer) []Step {
	lines := strings.Split(string(source), "\n")
	out := make([]Step, 0, len(steps))
	for _, st := range steps {
		s := Step{
			Event:  string(st.Event),
			Func:   st.Func,
			Line:   st.Line,
			Before: ser.EncodeSnapshot(st.Before),
			After:  ser.EncodeSnapshot(st.After),
		}
		if st.Line >= 1 && st.Line <= len(lines) {
			code := lines[st.Line-1]
			s.Code = &code
		}
		if st.Event == recorder.EventLine {
			if f, ok := formulas[st.Line]; ok {
				s.Formula = &f
			}
		}
		if st.Event == recorder.EventExit {
			s.ReturnValue = &Value{V: ser.Encode(st.ReturnValue)}
		}
		s.Aliased = (st.Before != nil && st.Before.Aliased) || (st.After != nil && st.After.Aliased)
		out = append(out, s)
	}
	return out
}

func (a *Assembler) initMetrics() {
	a.metricsOnce.Do(func() {
		var err error
		a.traceTotal, err = meter.Int64Counter("steptrace_traces_total",
			metric.WithDescription("Traces completed, by outcome"),
		)
		if err != nil {
			a.logger.Warn("failed to create metric", slog.String("metric", "traces_total"), slog.String("error", err.Error()))
		}
		a.traceDuration, err = meter.Float64Histogram("steptrace_trace_duration_seconds",
			metric.WithDescription("Time spent tracing one script"),
			metric.WithUnit("s"),
		)
		if err != nil {
			a.logger.Warn("failed to create metric", slog.String("metric", "trace_duration"), slog.String("error", err.Error()))
		}
		a.traceSteps, err = meter.Int64Histogram("steptrace_trace_steps",
			metric.WithDescription("Steps recorded per successful trace"),
		)
		if err != nil {
			a.logger.Warn("failed to create metric", slog.String("metric", "trace_steps"), slog.String("error", err.Error()))
		}
	})
}

func (a *Assembler) record(ctx context.Context, res *Result, elapsed time.Duration) {
	a.initMetrics()
	outcome := "success"
	if !res.Success {
		outcome = string(res.ErrorKind)
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if a.traceTotal != nil {
		a.traceTotal.Add(ctx, 1, attrs)
	}
	if a.traceDuration != nil {
		a.traceDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if a.traceSteps != nil && res.Success {
		a.traceSteps.Record(ctx, int64(len(res.Steps)))
	}
}
