// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads steptrace service configuration.
//
// Values are layered: embedded defaults, then an optional YAML or TOML
// file, then STEPTRACE_* environment variables. The result is validated
// before use.
//
// Thread Safety:
//
//	Config values are plain data. Watcher is safe for concurrent use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
	"github.com/AleutianAI/steptrace/services/steptrace/interp"
	"github.com/AleutianAI/steptrace/services/steptrace/telemetry"
)

// MaxConfigFileSize bounds the config file read from disk.
const MaxConfigFileSize = 1024 * 1024

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid configuration")

	// ErrUnknownFormat is returned for config files that are neither YAML
	// nor TOML.
	ErrUnknownFormat = errors.New("unknown config file format")
)

// Config is the full service configuration.
type Config struct {
	Server     Server     `yaml:"server" toml:"server"`
	Execution  Execution  `yaml:"execution" toml:"execution"`
	Serializer Serializer `yaml:"serializer" toml:"serializer"`
	RateLimit  RateLimit  `yaml:"rate_limit" toml:"rate_limit"`
	Telemetry  Telemetry  `yaml:"telemetry" toml:"telemetry"`
	Logging    Logging    `yaml:"logging" toml:"logging"`
}

// Server configures the HTTP listeners.
type Server struct {
	Host              string   `yaml:"host" toml:"host"`
	Port              int      `yaml:"port" toml:"port"`
	MetricsPort       int      `yaml:"metrics_port" toml:"metrics_port"`
	ReadTimeoutMS     int      `yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	WriteTimeoutMS    int      `yaml:"write_timeout_ms" toml:"write_timeout_ms"`
	ShutdownTimeoutMS int      `yaml:"shutdown_timeout_ms" toml:"shutdown_timeout_ms"`
	AllowedOrigins    []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// Execution holds the per-trace budgets and the service concurrency bound.
type Execution struct {
	TimeoutMS        int   `yaml:"timeout_ms" toml:"timeout_ms"`
	MaxInstructions  int64 `yaml:"max_instructions" toml:"max_instructions"`
	MaxCallDepth     int   `yaml:"max_call_depth" toml:"max_call_depth"`
	MaxAllocElements int   `yaml:"max_alloc_elements" toml:"max_alloc_elements"`
	MaxOutputBytes   int   `yaml:"max_output_bytes" toml:"max_output_bytes"`
	MaxSteps         int   `yaml:"max_steps" toml:"max_steps"`
	MaxSourceBytes   int   `yaml:"max_source_bytes" toml:"max_source_bytes"`
	Seed             int64 `yaml:"seed" toml:"seed"`

	// MaxConcurrent is the number of traces allowed to run at once.
	MaxConcurrent    int `yaml:"max_concurrent" toml:"max_concurrent"`
	AcquireTimeoutMS int `yaml:"acquire_timeout_ms" toml:"acquire_timeout_ms"`
}

// Serializer holds the value encoding thresholds.
type Serializer struct {
	MaxInline  int `yaml:"max_inline" toml:"max_inline"`
	SampleSize int `yaml:"sample_size" toml:"sample_size"`
}

// RateLimit configures the token bucket in front of the API.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// Telemetry selects the OpenTelemetry exporters.
type Telemetry struct {
	ServiceName    string `yaml:"service_name" toml:"service_name"`
	TraceExporter  string `yaml:"trace_exporter" toml:"trace_exporter"`
	MetricExporter string `yaml:"metric_exporter" toml:"metric_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
}

// Logging configures pkg/logging.
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Dir    string `yaml:"dir" toml:"dir"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load builds the configuration.
//
// Description:
//
//	Starts from the embedded defaults, overlays path when it is non-empty,
//	applies environment overrides and validates the result. Keys absent
//	from the file keep their defaults.
//
// Inputs:
//
//	path - Optional .yaml, .yml or .toml file.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - File, parse or ErrInvalid errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return fmt.Errorf("config file %s is %d bytes, limit %d", path, info.Size(), MaxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return nil
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	name string
	set  func(c *Config, v string) error
}

var envOverrides = []envOverride{
	{"STEPTRACE_HOST", func(c *Config, v string) error { c.Server.Host = v; return nil }},
	{"STEPTRACE_PORT", intField(func(c *Config) *int { return &c.Server.Port })},
	{"STEPTRACE_METRICS_PORT", intField(func(c *Config) *int { return &c.Server.MetricsPort })},
	{"STEPTRACE_TIMEOUT_MS", intField(func(c *Config) *int { return &c.Execution.TimeoutMS })},
	{"STEPTRACE_MAX_STEPS", intField(func(c *Config) *int { return &c.Execution.MaxSteps })},
	{"STEPTRACE_MAX_CALL_DEPTH", intField(func(c *Config) *int { return &c.Execution.MaxCallDepth })},
	{"STEPTRACE_MAX_SOURCE_BYTES", intField(func(c *Config) *int { return &c.Execution.MaxSourceBytes })},
	{"STEPTRACE_MAX_CONCURRENT", intField(func(c *Config) *int { return &c.Execution.MaxConcurrent })},
	{"STEPTRACE_MAX_INSTRUCTIONS", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.Execution.MaxInstructions = n
		return err
	}},
	{"STEPTRACE_SEED", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.Execution.Seed = n
		return err
	}},
	{"STEPTRACE_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"STEPTRACE_LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"STEPTRACE_TRACE_EXPORTER", func(c *Config, v string) error { c.Telemetry.TraceExporter = v; return nil }},
	{"STEPTRACE_METRIC_EXPORTER", func(c *Config, v string) error { c.Telemetry.MetricExporter = v; return nil }},
	{"STEPTRACE_OTLP_ENDPOINT", func(c *Config, v string) error { c.Telemetry.OTLPEndpoint = v; return nil }},
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func (c *Config) applyEnv() error {
	for _, o := range envOverrides {
		v, ok := os.LookupEnv(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.set(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, o.name, v, err)
		}
	}
	return nil
}

var (
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats = map[string]bool{"text": true, "json": true}
)

// Validate reports every out-of-range setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.MetricsPort >= 0 && c.Server.MetricsPort < 65536, "server.metrics_port %d out of range", c.Server.MetricsPort)
	check(c.Server.MetricsPort == 0 || c.Server.MetricsPort != c.Server.Port, "server.metrics_port must differ from server.port")
	check(c.Execution.TimeoutMS > 0, "execution.timeout_ms must be positive")
	check(c.Execution.MaxInstructions >= 0, "execution.max_instructions must not be negative")
	check(c.Execution.MaxCallDepth > 0, "execution.max_call_depth must be positive")
	check(c.Execution.MaxAllocElements > 0, "execution.max_alloc_elements must be positive")
	check(c.Execution.MaxOutputBytes >= 0, "execution.max_output_bytes must not be negative")
	check(c.Execution.MaxSteps > 0, "execution.max_steps must be positive")
	check(c.Execution.MaxSourceBytes > 0, "execution.max_source_bytes must be positive")
	check(c.Execution.MaxConcurrent > 0, "execution.max_concurrent must be positive")
	check(c.Execution.AcquireTimeoutMS >= 0, "execution.acquire_timeout_ms must not be negative")
	check(c.Serializer.MaxInline >= 0, "serializer.max_inline must not be negative")
	check(c.Serializer.SampleSize >= 0, "serializer.sample_size must not be negative")
	check(c.RateLimit.RequestsPerSecond >= 0, "rate_limit.requests_per_second must not be negative")
	check(c.RateLimit.RequestsPerSecond == 0 || c.RateLimit.Burst > 0, "rate_limit.burst must be positive when limiting")
	check(slices.Contains(telemetry.TraceExporters(), c.Telemetry.TraceExporter), "telemetry.trace_exporter %q unknown", c.Telemetry.TraceExporter)
	check(slices.Contains(telemetry.MetricExporters(), c.Telemetry.MetricExporter), "telemetry.metric_exporter %q unknown", c.Telemetry.MetricExporter)
	check(logLevels[strings.ToLower(c.Logging.Level)], "logging.level %q unknown", c.Logging.Level)
	check(logFormats[c.Logging.Format], "logging.format %q unknown", c.Logging.Format)

	return errors.Join(errs...)
}

// Addr is the API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MetricsAddr is the metrics listen address, or "" when metrics are
// served on the API listener.
func (c *Config) MetricsAddr() string {
	if c.Server.MetricsPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.MetricsPort)
}

// AcquireTimeout is how long a request waits for a free trace slot.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Execution.AcquireTimeoutMS) * time.Millisecond
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMS) * time.Millisecond
}

// AssemblerSettings converts the execution and serializer sections.
func (c *Config) AssemblerSettings() assembler.Settings {
	return assembler.Settings{
		Limits: interp.Limits{
			MaxInstructions:  c.Execution.MaxInstructions,
			MaxCallDepth:     c.Execution.MaxCallDepth,
			MaxAllocElements: c.Execution.MaxAllocElements,
			MaxOutputBytes:   c.Execution.MaxOutputBytes,
		},
		Timeout:    time.Duration(c.Execution.TimeoutMS) * time.Millisecond,
		MaxSteps:   c.Execution.MaxSteps,
		MaxInline:  c.Serializer.MaxInline,
		SampleSize: c.Serializer.SampleSize,
		Seed:       c.Execution.Seed,
	}
}
