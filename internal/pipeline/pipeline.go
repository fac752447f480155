// Package pipeline executes an ordered, fail-fast list of steps for one
// rebuild trigger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"git.home.luguber.info/inful/devwatch/internal/logfields"
	"git.home.luguber.info/inful/devwatch/internal/metrics"
	"git.home.luguber.info/inful/devwatch/internal/runner"
)

// DefaultReadyMessage is logged after a fully successful run.
const DefaultReadyMessage = "Watching for changes..."

// ErrCancelled marks a run that stopped because it was asked to.
var ErrCancelled = errors.New("pipeline cancelled")

// Status is the final state of a pipeline run.
type Status int

const (
	StatusNone Status = iota
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Result describes how a run settled.
type Result struct {
	Status Status
	// Step is the kind of the step that failed or was cancelled.
	Step string
	// Err is the failing step's error; for cancellations it matches ErrCancelled.
	Err error
	// Executed lists the kinds of the steps that were started, in order.
	Executed []string
	Duration time.Duration
}

// OK reports whether every step succeeded.
func (r Result) OK() bool { return r.Status == StatusSucceeded }

// IsCancelled reports whether err describes a cancellation rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || runner.IsCancelled(err) || errors.Is(err, context.Canceled)
}

// Pipeline is an immutable ordered list of steps.
type Pipeline struct {
	steps        []Step
	logger       *slog.Logger
	recorder     metrics.Recorder
	readyMessage string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithReadyMessage overrides the line logged after a successful run. An
// empty message disables it.
func WithReadyMessage(msg string) Option {
	return func(p *Pipeline) { p.readyMessage = msg }
}

// New creates a pipeline over steps.
func New(steps []Step, opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:        slices.Clone(steps),
		logger:       slog.Default(),
		recorder:     metrics.NoopRecorder{},
		readyMessage: DefaultReadyMessage,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, step := range p.steps {
		if fs, ok := step.(*FuncStep); ok && fs.logger == nil {
			fs.logger = p.logger
		}
	}
	return p
}

// Steps returns the kinds of the configured steps, in order.
func (p *Pipeline) Steps() []string {
	kinds := make([]string, len(p.steps))
	for i, s := range p.steps {
		kinds[i] = s.Kind()
	}
	return kinds
}

// Run executes the steps in order under exec. It stops at the first step
// that fails or is cancelled; the remaining steps never start.
func (p *Pipeline) Run(exec *Execution) Result {
	start := time.Now()
	ctx := exec.Context()
	res := Result{Status: StatusSucceeded}

	for _, step := range p.steps {
		if exec.Cancelled() {
			res.Status = StatusCancelled
			res.Step = step.Kind()
			res.Err = ErrCancelled
			break
		}

		res.Executed = append(res.Executed, step.Kind())
		stepStart := time.Now()
		err := step.Run(ctx)
		p.recorder.ObserveTaskDuration(step.Kind(), time.Since(stepStart))

		if err == nil {
			p.recorder.IncTaskResult(step.Kind(), metrics.ResultSuccess)
			continue
		}

		res.Step = step.Kind()
		if exec.Cancelled() || IsCancelled(err) {
			p.recorder.IncTaskResult(step.Kind(), metrics.ResultCancelled)
			res.Status = StatusCancelled
			res.Err = fmt.Errorf("%w: %w", ErrCancelled, err)
		} else {
			p.recorder.IncTaskResult(step.Kind(), metrics.ResultFailed)
			res.Status = StatusFailed
			res.Err = err
		}
		break
	}

	res.Duration = time.Since(start)

	switch res.Status {
	case StatusSucceeded:
		if p.readyMessage != "" {
			p.logger.Info(p.readyMessage)
		}
	case StatusCancelled:
		p.logger.Info("Pipeline cancelled", logfields.TaskKind(res.Step))
	case StatusFailed:
		p.logger.Debug("Skipping remaining steps", logfields.TaskKind(res.Step), logfields.Error(res.Err))
	}
	return res
}
