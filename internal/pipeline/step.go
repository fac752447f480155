package pipeline

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/devwatch/internal/logfields"
	"git.home.luguber.info/inful/devwatch/internal/runner"
)

// Step is one unit of a pipeline. Kind identifies the step in logs, metrics
// and results; Run must return promptly once ctx is done.
type Step interface {
	Kind() string
	Label() string
	Run(ctx context.Context) error
}

// ProcessStep runs an external command through a shared Runner.
type ProcessStep struct {
	Task   runner.Task
	Runner *runner.Runner
}

// NewProcessStep binds task to r.
func NewProcessStep(r *runner.Runner, task runner.Task) *ProcessStep {
	return &ProcessStep{Task: task, Runner: r}
}

func (s *ProcessStep) Kind() string  { return s.Task.Kind }
func (s *ProcessStep) Label() string { return s.Task.Label }

func (s *ProcessStep) Run(ctx context.Context) error {
	return s.Runner.Run(ctx, s.Task)
}

// FuncStep runs an opaque in-process operation.
type FuncStep struct {
	kind           string
	label          string
	successMessage string
	fn             func(ctx context.Context) error
	logger         *slog.Logger
}

// NewFuncStep wraps fn as a Step.
func NewFuncStep(kind, label, successMessage string, fn func(ctx context.Context) error) *FuncStep {
	return &FuncStep{kind: kind, label: label, successMessage: successMessage, fn: fn}
}

// WithLogger sets the logger used for the step's progress lines. Pipeline
// New fills it in when unset.
func (s *FuncStep) WithLogger(l *slog.Logger) *FuncStep {
	s.logger = l
	return s
}

func (s *FuncStep) Kind() string  { return s.kind }
func (s *FuncStep) Label() string { return s.label }

func (s *FuncStep) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(s.label, logfields.TaskKind(s.kind))
	if err := s.fn(ctx); err != nil {
		return err
	}
	if s.successMessage != "" {
		logger.Info(s.successMessage, logfields.TaskKind(s.kind))
	}
	return nil
}
