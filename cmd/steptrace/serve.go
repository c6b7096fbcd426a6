// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/steptrace/pkg/logging"
	"github.com/AleutianAI/steptrace/services/steptrace"
	"github.com/AleutianAI/steptrace/services/steptrace/config"
	"github.com/AleutianAI/steptrace/services/steptrace/telemetry"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the trace API server",
		Long: `Starts the HTTP API under /v1/steptrace with the execute, formulas,
topology and stream endpoints. Metrics are served on server.metrics_port,
or on the API listener when that port is 0.

When --config is given the file is watched and execution limits are
reloaded without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable gin debug mode and request logging")
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, debug bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	appLog, err := opts.newLogger(cmd, cfg, logging.LevelInfo)
	if err != nil {
		return err
	}
	defer appLog.Close()
	logger := appLog.Slog()

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.ServiceVersion = steptrace.ServiceVersion
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	tel, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	svc := steptrace.NewService(cfg, logger)
	handlers := steptrace.NewHandlers(svc, logger)
	router := steptrace.NewRouter(handlers, steptrace.RouterOptions{
		ServiceName:    cfg.Telemetry.ServiceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServeMetrics:   cfg.MetricsAddr() == "",
		Metrics:        tel.Metrics,
		AccessLog:      debug,
		Logger:         logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	if opts.configPath != "" {
		watcher, err := config.NewWatcher(opts.configPath, svc.ApplyConfig, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
		} else {
			g.Go(func() error {
				watcher.Start(gctx)
				return nil
			})
		}
	}

	servers := []*http.Server{newHTTPServer(cfg, cfg.Addr(), router, gctx)}
	if addr := cfg.MetricsAddr(); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", steptrace.MetricsHandler(tel.Metrics))
		servers = append(servers, newHTTPServer(cfg, addr, mux, gctx))
	}

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(sctx))
		}
		return errors.Join(errs...)
	})

	printBanner(cmd, cfg)
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// newHTTPServer builds a listener whose requests inherit base, so stream
// connections end when the server shuts down.
func newHTTPServer(cfg *config.Config, addr string, h http.Handler, base context.Context) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "steptrace %s\n", steptrace.ServiceVersion)
	fmt.Fprintf(out, "  api:     http://%s/v1/steptrace\n", cfg.Addr())
	if addr := cfg.MetricsAddr(); addr != "" {
		fmt.Fprintf(out, "  metrics: http://%s/metrics\n", addr)
	} else {
		fmt.Fprintf(out, "  metrics: http://%s/metrics\n", cfg.Addr())
	}
}
