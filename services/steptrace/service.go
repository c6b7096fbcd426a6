// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package steptrace serves line-granular execution traces of submitted
// scripts over HTTP and WebSocket.
//
// Thread Safety:
//
//	Service and Handlers are safe for concurrent use. Concurrent traces
//	are bounded by a weighted semaphore.
package steptrace

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
	"github.com/AleutianAI/steptrace/services/steptrace/config"
	"github.com/AleutianAI/steptrace/services/steptrace/formula"
	"github.com/AleutianAI/steptrace/services/steptrace/topology"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steptrace_requests_total",
		Help: "API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steptrace_rejected_total",
		Help: "Requests rejected before execution, by reason",
	}, []string{"reason"})

	slotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steptrace_trace_slots_in_use",
		Help: "Trace slots currently held",
	})
)

// Service runs traces under the configured concurrency and size bounds.
type Service struct {
	asm       *assembler.Assembler
	extractor *formula.Extractor
	logger    *slog.Logger

	sem            *semaphore.Weighted
	slots          int
	acquireTimeout atomic.Int64
	maxSourceBytes atomic.Int64
	limiter        atomic.Pointer[rate.Limiter]
}

// NewService creates a Service from cfg.
//
// Description:
//
//	The trace slot count is fixed at construction. Everything else can be
//	changed later with ApplyConfig.
//
// Inputs:
//
//	cfg - Validated configuration.
//	logger - Base logger. Nil uses slog.Default().
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		asm:       assembler.New(cfg.AssemblerSettings(), logger),
		extractor: formula.NewExtractor(logger),
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(cfg.Execution.MaxConcurrent)),
		slots:     cfg.Execution.MaxConcurrent,
	}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig updates budgets, size limits and the rate limit. Traces
// already running keep their settings.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.asm.UpdateSettings(cfg.AssemblerSettings())
	s.maxSourceBytes.Store(int64(cfg.Execution.MaxSourceBytes))
	s.acquireTimeout.Store(int64(cfg.AcquireTimeout()))

	limit, burst := rate.Inf, 1
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limit, burst = rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst
	}
	// A fresh bucket starts full; keep the current one when nothing changed.
	if cur := s.limiter.Load(); cur == nil || cur.Limit() != limit || cur.Burst() != burst {
		s.limiter.Store(rate.NewLimiter(limit, burst))
	}
	if cfg.Execution.MaxConcurrent != s.slots {
		s.logger.Warn("execution.max_concurrent changes need a restart",
			slog.Int("running", s.slots),
			slog.Int("configured", cfg.Execution.MaxConcurrent),
		)
	}
}

// MaxSourceBytes is the current source size limit.
func (s *Service) MaxSourceBytes() int {
	return int(s.maxSourceBytes.Load())
}

// Allow reports whether the rate limiter admits one more request.
func (s *Service) Allow() bool {
	return s.limiter.Load().Allow()
}

// Trace validates the size of source, waits for a free slot and traces it.
//
// Outputs:
//
//	*assembler.Result - The trace. Script failures are reported here.
//	error - ErrEmptySource, ErrSourceTooLarge, ErrBusy or ctx errors.
func (s *Service) Trace(ctx context.Context, source []byte) (*assembler.Result, error) {
	if err := s.checkSource(source); err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.asm.Trace(ctx, source), nil
}

// Formulas extracts the formula map without executing source.
func (s *Service) Formulas(ctx context.Context, source []byte) (map[int]formula.Formula, error) {
	if err := s.checkSource(source); err != nil {
		return nil, err
	}
	return s.extractor.Extract(ctx, source), nil
}

// Topology lists Sequential models without executing source.
func (s *Service) Topology(ctx context.Context, source []byte) ([]topology.Model, error) {
	if err := s.checkSource(source); err != nil {
		return nil, err
	}
	return topology.Extract(ctx, source)
}

func (s *Service) checkSource(source []byte) error {
	if len(source) == 0 {
		return ErrEmptySource
	}
	if len(source) > s.MaxSourceBytes() {
		return ErrSourceTooLarge
	}
	return nil
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	wait := time.Duration(s.acquireTimeout.Load())
	if wait <= 0 {
		if !s.sem.TryAcquire(1) {
			return nil, ErrBusy
		}
	} else {
		actx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		if err := s.sem.Acquire(actx, 1); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrBusy
		}
	}
	slotsInUse.Inc()
	return func() {
		slotsInUse.Dec()
		s.sem.Release(1)
	}, nil
}
