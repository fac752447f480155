// Package daemon assembles the runner, pipeline, coordinator, watcher and
// the optional scheduler, metrics endpoint and notifier into the dev loop.
package daemon

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/devwatch/internal/config"
	"git.home.luguber.info/inful/devwatch/internal/coordinator"
	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
	"git.home.luguber.info/inful/devwatch/internal/metrics"
	"git.home.luguber.info/inful/devwatch/internal/notify"
	"git.home.luguber.info/inful/devwatch/internal/pipeline"
	"git.home.luguber.info/inful/devwatch/internal/runner"
	"git.home.luguber.info/inful/devwatch/internal/watcher"
)

// Daemon owns every component of one devwatch session.
type Daemon struct {
	cfg    *config.Config
	root   string
	logger *slog.Logger

	runner    *runner.Runner
	pipeline  *pipeline.Pipeline
	coord     *coordinator.Coordinator
	recorder  metrics.Recorder
	registry  *prometheus.Registry
	publisher notify.Publisher

	source watcher.EventSource
	probe  func(binary string) error
}

type options struct {
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	stdio  bool
	source watcher.EventSource
	probe  func(binary string) error
}

// Option configures a Daemon.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStdio replaces the inherited stdio of spawned tasks.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdio = true
		o.stdin, o.stdout, o.stderr = stdin, stdout, stderr
	}
}

// WithEventSource replaces the fsnotify source.
func WithEventSource(src watcher.EventSource) Option {
	return func(o *options) { o.source = src }
}

// WithProbe replaces the runtime availability check.
func WithProbe(probe func(binary string) error) Option {
	return func(o *options) { o.probe = probe }
}

// New builds a daemon from a loaded configuration. Nothing runs until Run
// or RunOnce is called.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	root, err := filepath.Abs(cfg.Watch.Root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid watch root").
			Fatal().WithContext("root", cfg.Watch.Root).Build()
	}

	d := &Daemon{
		cfg:       cfg,
		root:      root,
		logger:    o.logger,
		recorder:  metrics.NoopRecorder{},
		publisher: notify.Noop{},
		source:    o.source,
		probe:     o.probe,
	}

	if cfg.Metrics.Listen != "" {
		d.registry = prometheus.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(d.registry)
	}

	runnerOpts := []runner.Option{runner.WithLogger(o.logger)}
	if o.stdio {
		runnerOpts = append(runnerOpts, runner.WithStdio(o.stdin, o.stdout, o.stderr))
	}
	d.runner = runner.New(runnerOpts...)

	steps := make([]pipeline.Step, 0, len(cfg.Tasks)+1)
	for _, tc := range cfg.Tasks {
		steps = append(steps, pipeline.NewProcessStep(d.runner, taskFromConfig(tc)))
	}
	if cfg.StampFile != "" {
		steps = append(steps, pipeline.NewStampStep(cfg.StampFile))
	}
	d.pipeline = pipeline.New(steps,
		pipeline.WithLogger(o.logger),
		pipeline.WithRecorder(d.recorder))

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(o.logger),
		coordinator.WithRecorder(d.recorder),
	}
	if cfg.Notify.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			o.logger.Warn("Run notifications disabled", slog.String("url", cfg.Notify.NATSURL), slog.Any("error", err))
		} else {
			d.publisher = pub
			coordOpts = append(coordOpts, coordinator.WithObserver(&notify.Observer{Publisher: pub, Logger: o.logger}))
		}
	}
	d.coord = coordinator.New(d.pipeline, d.runner, coordOpts...)

	return d, nil
}

// Coordinator exposes the run coordinator.
func (d *Daemon) Coordinator() *coordinator.Coordinator { return d.coord }

func taskFromConfig(tc config.TaskConfig) runner.Task {
	t := runner.Task{
		Kind:           tc.Kind,
		Label:          tc.Label,
		SuccessMessage: tc.SuccessMessage,
		Dir:            tc.Dir,
		Env:            tc.Environ(),
	}
	if argv := tc.Argv(); argv != nil {
		t.Argv = argv
	} else {
		t.Shell = tc.Command
	}
	return t
}

// ignoreRule combines the built-in rules with the configured ones. Output
// the pipeline itself writes under the root is always ignored so a run
// never re-triggers itself.
func (d *Daemon) ignoreRule() (watcher.IgnoreRule, error) {
	rules := []watcher.IgnoreRule{watcher.DefaultIgnore, watcher.GlobIgnore(d.cfg.Watch.Ignore)}
	if d.cfg.Watch.GitIgnore {
		gi, err := watcher.GitIgnoreRule(d.root)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read .gitignore").
				Fatal().WithContext("root", d.root).Build()
		}
		rules = append(rules, gi)
	}
	if rel, ok := d.underRoot(d.cfg.StampFile); ok {
		rules = append(rules, watcher.PathIgnore(rel))
	}
	return watcher.AnyIgnore(rules...), nil
}

func (d *Daemon) underRoot(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(d.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
