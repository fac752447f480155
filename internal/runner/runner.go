// Package runner spawns and tracks external processes, one per task kind,
// and cancels them cooperatively by signal.
package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"

	"git.home.luguber.info/inful/devwatch/internal/logfields"
)

// Runner runs Tasks with the parent's standard streams. The zero value is
// not usable; call New.
type Runner struct {
	mu        sync.Mutex
	procs     map[string]*tracked
	cancelled bool

	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type tracked struct {
	cmd     *exec.Cmd
	started bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for task start/success/failure lines.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStdio replaces the inherited standard streams. Intended for tests.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdin, r.stdout, r.stderr = stdin, stdout, stderr
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		procs:  make(map[string]*tracked),
		logger: slog.Default(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run spawns task and blocks until the process exits.
//
// It refuses to start when the runner is cancelled, when ctx is already done,
// or when a process of the same kind is tracked. Once running, cancelling ctx
// interrupts the process. Outcomes other than a zero exit are reported as *Error.
func (r *Runner) Run(ctx context.Context, task Task) error {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return &Error{Reason: ErrAlreadyCancelled, Kind: task.Kind, Label: task.Label, ExitCode: -1}
	}
	if ctx.Err() != nil {
		r.mu.Unlock()
		return &Error{Reason: ErrAbortedBeforeStart, Kind: task.Kind, Label: task.Label, ExitCode: -1}
	}
	if _, busy := r.procs[task.Kind]; busy {
		r.mu.Unlock()
		return &Error{Reason: ErrDuplicateKind, Kind: task.Kind, Label: task.Label, ExitCode: -1}
	}
	if task.Shell == "" && len(task.Argv) == 0 {
		r.mu.Unlock()
		return &Error{Reason: ErrSpawn, Kind: task.Kind, Label: task.Label, ExitCode: -1, Err: errors.New("empty command")}
	}

	cmd := task.command()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = r.stdin, r.stdout, r.stderr
	entry := &tracked{cmd: cmd}
	r.procs[task.Kind] = entry
	r.mu.Unlock()

	r.logger.Info(task.Label, logfields.TaskKind(task.Kind), slog.String("command", task.String()))

	if err := cmd.Start(); err != nil {
		r.release(task.Kind, entry)
		r.logger.Error("Failed to start task", logfields.TaskLabel(task.Label), logfields.Error(err))
		return &Error{Reason: ErrSpawn, Kind: task.Kind, Label: task.Label, ExitCode: -1, Err: err}
	}

	r.mu.Lock()
	entry.started = true
	cancelledDuringStart := r.cancelled
	r.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = interrupt(cmd, os.Interrupt) })
	defer stop()
	if cancelledDuringStart {
		_ = interrupt(cmd, os.Interrupt)
	}

	waitErr := cmd.Wait()
	r.release(task.Kind, entry)
	code, sig := exitStatus(cmd.ProcessState)

	if r.IsCancelled() || ctx.Err() != nil {
		r.logger.Debug("Task cancelled", logfields.TaskKind(task.Kind), logfields.ExitCode(code), logfields.Signal(sig))
		return &Error{Reason: ErrCancelled, Kind: task.Kind, Label: task.Label, ExitCode: code, Signal: sig}
	}

	if waitErr == nil && code == 0 {
		if task.SuccessMessage != "" {
			r.logger.Info(task.SuccessMessage, logfields.TaskKind(task.Kind))
		}
		return nil
	}

	r.logger.Error("Task failed",
		logfields.TaskLabel(task.Label),
		logfields.ExitCode(code),
		logfields.Signal(sig))
	return &Error{Reason: ErrFailed, Kind: task.Kind, Label: task.Label, ExitCode: code, Signal: sig}
}

// CancelAll marks the runner cancelled and sends sig to every tracked
// process. It does not wait for them to exit. A nil sig means os.Interrupt.
func (r *Runner) CancelAll(sig os.Signal) {
	if sig == nil {
		sig = os.Interrupt
	}
	r.mu.Lock()
	r.cancelled = true
	targets := make([]*exec.Cmd, 0, len(r.procs))
	for _, entry := range r.procs {
		if entry.started {
			targets = append(targets, entry.cmd)
		}
	}
	r.mu.Unlock()

	for _, cmd := range targets {
		_ = interrupt(cmd, sig)
	}
}

// CancelKind signals the process tracked under kind, if any, without
// touching the cancelled flag.
func (r *Runner) CancelKind(kind string, sig os.Signal) {
	if sig == nil {
		sig = os.Interrupt
	}
	r.mu.Lock()
	entry, ok := r.procs[kind]
	started := ok && entry.started
	r.mu.Unlock()

	if started {
		_ = interrupt(entry.cmd, sig)
	}
}

// ResetCancelled clears the cancelled flag so that Run accepts work again.
// It does not restart anything.
func (r *Runner) ResetCancelled() {
	r.mu.Lock()
	r.cancelled = false
	r.mu.Unlock()
}

// IsCancelled reports whether CancelAll was called since the last reset.
func (r *Runner) IsCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Running returns the kinds currently tracked, sorted.
func (r *Runner) Running() []string {
	r.mu.Lock()
	kinds := make([]string, 0, len(r.procs))
	for kind := range r.procs {
		kinds = append(kinds, kind)
	}
	r.mu.Unlock()
	slices.Sort(kinds)
	return kinds
}

func (r *Runner) release(kind string, entry *tracked) {
	r.mu.Lock()
	if r.procs[kind] == entry {
		delete(r.procs, kind)
	}
	r.mu.Unlock()
}
