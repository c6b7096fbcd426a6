// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 5000, cfg.Execution.TimeoutMS)
	assert.Equal(t, 30, cfg.Serializer.MaxInline)
	assert.Equal(t, 6, cfg.Serializer.SampleSize)
	assert.Equal(t, 1, cfg.Execution.MaxConcurrent)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := writeFile(t, "steptrace.yaml", "server:\n  port: 9001\nexecution:\n  max_steps: 50\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Execution.MaxSteps)
	assert.Equal(t, 5000, cfg.Execution.TimeoutMS, "unset keys keep defaults")
}

func TestLoad_TOMLOverlay(t *testing.T) {
	path := writeFile(t, "steptrace.toml", "[execution]\ntimeout_ms = 250\n\n[serializer]\nmax_inline = 10\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Execution.TimeoutMS)
	assert.Equal(t, 10, cfg.Serializer.MaxInline)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_UnknownFormat(t *testing.T) {
	path := writeFile(t, "steptrace.ini", "port=1\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("STEPTRACE_PORT", "7777")
	t.Setenv("STEPTRACE_TIMEOUT_MS", "1200")
	t.Setenv("STEPTRACE_MAX_INSTRUCTIONS", "42")
	t.Setenv("STEPTRACE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 1200, cfg.Execution.TimeoutMS)
	assert.Equal(t, int64(42), cfg.Execution.MaxInstructions)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvInvalid(t *testing.T) {
	t.Setenv("STEPTRACE_PORT", "eighty")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"metrics port clash", func(c *Config) { c.Server.MetricsPort = c.Server.Port }},
		{"timeout", func(c *Config) { c.Execution.TimeoutMS = 0 }},
		{"steps", func(c *Config) { c.Execution.MaxSteps = -1 }},
		{"concurrency", func(c *Config) { c.Execution.MaxConcurrent = 0 }},
		{"burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }},
		{"metric exporter", func(c *Config) { c.Telemetry.MetricExporter = "statsd" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestAssemblerSettings(t *testing.T) {
	cfg := Default()
	cfg.Execution.TimeoutMS = 1500
	cfg.Execution.MaxSteps = 12
	cfg.Serializer.SampleSize = 3

	s := cfg.AssemblerSettings()
	assert.Equal(t, 1500*time.Millisecond, s.Timeout)
	assert.Equal(t, 12, s.MaxSteps)
	assert.Equal(t, 3, s.SampleSize)
	assert.Equal(t, cfg.Execution.MaxInstructions, s.Limits.MaxInstructions)
}

func TestWatcher_Reload(t *testing.T) {
	path := writeFile(t, "steptrace.yaml", "execution:\n  max_steps: 10\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// An invalid file is rejected.
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  max_steps: -5\n"), 0o600))
	time.Sleep(3 * reloadDebounce)

	require.NoError(t, os.WriteFile(path, []byte("execution:\n  max_steps: 20\n"), 0o600))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			// A save can surface as a truncate followed by a write.
			if c.Execution.MaxSteps != 20 {
				continue
			}
			assert.Same(t, c, w.Current())
			return
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
