// Package config loads devwatch.yaml, the project's convex.json and .env
// files into a validated Config.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
)

// DefaultFile is read when no explicit config path is given and it exists.
const DefaultFile = "devwatch.yaml"

// Config is the complete devwatch configuration.
type Config struct {
	Watch      WatchConfig    `yaml:"watch"`
	Runtime    RuntimeConfig  `yaml:"runtime"`
	Tasks      []TaskConfig   `yaml:"tasks"`
	SchemaOnly bool           `yaml:"schema_only"`
	Schedule   ScheduleConfig `yaml:"schedule"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Notify     NotifyConfig   `yaml:"notify"`
	StampFile  string         `yaml:"stamp_file"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// WatchConfig controls the change watcher.
type WatchConfig struct {
	Root      string        `yaml:"root"`
	Recursive *bool         `yaml:"recursive"`
	Debounce  time.Duration `yaml:"debounce"`
	Ignore    []string      `yaml:"ignore"`
	GitIgnore bool          `yaml:"gitignore"`
}

// IsRecursive reports the effective recursion setting (default true).
func (w WatchConfig) IsRecursive() bool { return w.Recursive == nil || *w.Recursive }

// RuntimeConfig describes the JavaScript runtime the default tasks use.
type RuntimeConfig struct {
	Binary string `yaml:"binary"`
	Probe  *bool  `yaml:"probe"`
	// Generator is the schema generator script run by the default schema task.
	Generator     string        `yaml:"generator"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// ShouldProbe reports whether the runtime must be checked at startup (default true).
func (r RuntimeConfig) ShouldProbe() bool { return r.Probe == nil || *r.Probe }

// TaskConfig is one pipeline step. With Args set, Command is executed
// directly; otherwise Command is a shell command line.
type TaskConfig struct {
	Kind           string            `yaml:"kind"`
	Label          string            `yaml:"label"`
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args"`
	SuccessMessage string            `yaml:"success_message"`
	Dir            string            `yaml:"dir"`
	Env            map[string]string `yaml:"env"`
}

// ScheduleConfig enables periodic rebuilds when Interval or Cron is set.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
	Cron     string        `yaml:"cron"`
}

// Enabled reports whether any schedule is configured.
func (s ScheduleConfig) Enabled() bool { return s.Interval > 0 || s.Cron != "" }

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// NotifyConfig enables run-outcome publishing to NATS when NATSURL is set.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Overrides carries command-line values that take precedence over the file.
// Zero values leave the file setting alone.
type Overrides struct {
	Root          string
	Debounce      time.Duration
	SchemaOnly    bool
	MetricsListen string
	StampFile     string
}

// Load reads configuration from path (or DefaultFile when path is empty and
// the file exists), applies the project's convex.json, the overrides and
// defaults, and validates the result.
func Load(path string, ov Overrides) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := readFile(path, cfg); err != nil {
			return nil, err
		}
	}

	project, err := ReadConvexProject(".")
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read convex.json").Fatal().Build()
	}
	applyConvexProject(cfg, project)
	applyOverrides(cfg, ov)
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ferrors.ConfigError("configuration file not found").WithContext("path", path).Build()
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			Fatal().WithContext("path", path).Build()
	}

	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config file").
			Fatal().WithContext("path", path).Build()
	}
	return nil
}

func applyOverrides(cfg *Config, ov Overrides) {
	if ov.Root != "" {
		cfg.Watch.Root = ov.Root
	}
	if ov.Debounce != 0 {
		cfg.Watch.Debounce = ov.Debounce
	}
	if ov.SchemaOnly {
		cfg.SchemaOnly = true
	}
	if ov.MetricsListen != "" {
		cfg.Metrics.Listen = ov.MetricsListen
	}
	if ov.StampFile != "" {
		cfg.StampFile = ov.StampFile
	}
}
