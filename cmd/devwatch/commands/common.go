// Package commands implements the devwatch command line.
package commands

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/devwatch/internal/config"
)

// Global is passed to every command's Run.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path (defaults to devwatch.yaml when present)" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format (text or json); overrides the config file"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Dev         DevCmd         `cmd:"" default:"withargs" help:"Run the pipeline, then re-run it on every change (default)"`
	Run         RunCmd         `cmd:"" help:"Run the pipeline once and exit"`
	PrintConfig PrintConfigCmd `cmd:"" name:"print-config" help:"Print the resolved configuration as YAML"`

	stderr io.Writer `kong:"-"`
}

// WatchFlags override the corresponding configuration values.
type WatchFlags struct {
	Root          string        `short:"r" help:"Directory to watch (defaults to convex.json functions or ./convex)"`
	Debounce      time.Duration `help:"Quiet period before a change triggers a run (e.g. 200ms)"`
	SchemaOnly    bool          `name:"schema-only" help:"Skip the upload step and only generate schemas"`
	MetricsListen string        `name:"metrics-listen" help:"Serve Prometheus metrics on this address (e.g. :9464)"`
	StampFile     string        `name:"stamp-file" help:"Write a JSON build stamp here after each successful run"`
}

func (f WatchFlags) overrides() config.Overrides {
	return config.Overrides{
		Root:          f.Root,
		Debounce:      f.Debounce,
		SchemaOnly:    f.SchemaOnly,
		MetricsListen: f.MetricsListen,
		StampFile:     f.StampFile,
	}
}

// AfterApply runs after flag parsing; set up logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(c.output(), level, config.NormalizeLogFormat(c.LogFormat)))
	return nil
}

// applyLogging reconfigures logging from the loaded file. Flags win.
func (c *CLI) applyLogging(lc config.LoggingConfig) *slog.Logger {
	level := lc.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	format := lc.Format
	if c.LogFormat != "" {
		format = config.NormalizeLogFormat(c.LogFormat)
	}
	logger := newLogger(c.output(), level, format)
	slog.SetDefault(logger)
	return logger
}

func (c *CLI) output() io.Writer {
	if c.stderr != nil {
		return c.stderr
	}
	return os.Stderr
}

func (c *CLI) load(flags WatchFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.Config, flags.overrides())
	if err != nil {
		return nil, nil, err
	}
	return cfg, c.applyLogging(cfg.Logging), nil
}

func newLogger(w io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
