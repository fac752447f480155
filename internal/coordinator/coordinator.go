// Package coordinator drives pipeline runs: single-flight execution,
// cancel-then-wait-then-restart on new triggers, and a depth-1 rebuild queue.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/devwatch/internal/logfields"
	"git.home.luguber.info/inful/devwatch/internal/metrics"
	"git.home.luguber.info/inful/devwatch/internal/pipeline"
)

// ErrAlreadyRunning is returned by RunOnce when a run is active. The call
// has no other effect.
var ErrAlreadyRunning = errors.New("a pipeline run is already active")

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	// StateSettling means cancellation was requested and the active run
	// has not finished yet.
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSettling:
		return "settling"
	default:
		return "idle"
	}
}

// Executor runs one pipeline execution. *pipeline.Pipeline implements it.
type Executor interface {
	Run(exec *pipeline.Execution) pipeline.Result
}

// ProcessCanceller is the part of the process runner the coordinator needs.
// *runner.Runner implements it.
type ProcessCanceller interface {
	CancelAll(sig os.Signal)
	ResetCancelled()
}

// Report describes a settled run.
type Report struct {
	Session string
	RunID   uint64
	Trigger string
	Result  pipeline.Result
	Started time.Time
}

// Observer is notified after every settled run.
type Observer interface {
	RunSettled(ctx context.Context, report Report)
}

// Stats are aggregate counters across runs.
type Stats struct {
	Runs      uint64
	Succeeded uint64
	Failed    uint64
	Cancelled uint64
	Coalesced uint64
}

// Coordinator owns the active run and the rebuild queue.
type Coordinator struct {
	executor  Executor
	processes ProcessCanceller
	logger    *slog.Logger
	recorder  metrics.Recorder
	observers []Observer
	session   string

	mu      sync.Mutex
	state   State
	active  pipeline.Cancellable
	settled chan struct{} // closed when the active run settles
	lastID  uint64
	stats   Stats

	// depth-1 mailbox; pendingTrigger holds the latest queued path
	mailbox        chan struct{}
	pendingTrigger string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithObserver registers an observer for settled runs.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// New creates an idle coordinator. processes may be nil when the executor
// does not spawn processes.
func New(executor Executor, processes ProcessCanceller, opts ...Option) *Coordinator {
	settled := make(chan struct{})
	close(settled)
	c := &Coordinator{
		executor:  executor,
		processes: processes,
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
		session:   uuid.NewString(),
		settled:   settled,
		mailbox:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session identifies this coordinator instance in logs and reports.
func (c *Coordinator) Session() string { return c.session }

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the run counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// RunOnce executes the pipeline once and blocks until it settles. If a run
// is already active it returns ErrAlreadyRunning immediately. The returned
// error is nil on success and otherwise the run's error; use
// pipeline.IsCancelled to tell cancellations apart from failures.
func (c *Coordinator) RunOnce(ctx context.Context, trigger string) (pipeline.Result, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return pipeline.Result{}, ErrAlreadyRunning
	}
	c.lastID++
	info := pipeline.RunInfo{ID: c.lastID, Session: c.session, Trigger: trigger, StartedAt: time.Now()}
	exec := pipeline.NewExecution(pipeline.ContextWithRunInfo(ctx, info))
	c.state = StateRunning
	c.active = exec
	c.settled = make(chan struct{})
	if c.processes != nil {
		c.processes.ResetCancelled()
	}
	c.mu.Unlock()

	c.recorder.SetRunning(true)
	c.logger.Debug("Pipeline run started", logfields.RunID(info.ID), logfields.Trigger(trigger))

	res := c.executor.Run(exec)

	c.mu.Lock()
	c.state = StateIdle
	c.active = nil
	if c.processes != nil {
		c.processes.ResetCancelled()
	}
	c.stats.Runs++
	switch res.Status {
	case pipeline.StatusSucceeded:
		c.stats.Succeeded++
	case pipeline.StatusCancelled:
		c.stats.Cancelled++
	default:
		c.stats.Failed++
	}
	close(c.settled)
	c.mu.Unlock()
	exec.RequestCancel()

	c.logger.Debug("Pipeline run settled",
		logfields.RunID(info.ID),
		logfields.Status(res.Status.String()),
		logfields.Duration(res.Duration))
	c.recorder.SetRunning(false)
	c.recorder.ObservePipelineDuration(res.Duration)
	c.recorder.IncPipelineOutcome(outcomeLabel(res.Status))

	report := Report{Session: c.session, RunID: info.ID, Trigger: trigger, Result: res, Started: info.StartedAt}
	for _, o := range c.observers {
		o.RunSettled(ctx, report)
	}

	if res.OK() {
		return res, nil
	}
	return res, res.Err
}

// Cancel asks the active run to stop: every tracked process is interrupted
// and the remaining steps are skipped. It does not wait. Without an active
// run it does nothing.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return
	}
	// Signals are sent under the lock so they reach this run, never its
	// successor.
	c.state = StateSettling
	c.logger.Info("Cancelling active run")
	c.active.RequestCancel()
	if c.processes != nil {
		c.processes.CancelAll(os.Interrupt)
	}
}

// Kill escalates cancellation of the active run with sig. It is used by the
// shutdown path when a process ignores the interrupt.
func (c *Coordinator) Kill(sig os.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.processes == nil {
		return
	}
	c.processes.CancelAll(sig)
}

// Wait blocks until no run is active or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a rebuild. The active run, if any, is cancelled at once.
// If a rebuild is already queued the request is folded into it, keeping the
// latest trigger. Trigger never blocks; Serve performs the rebuilds.
func (c *Coordinator) Trigger(trigger string) {
	c.mu.Lock()
	c.pendingTrigger = trigger
	c.mu.Unlock()

	c.Cancel()

	select {
	case c.mailbox <- struct{}{}:
		c.logger.Debug("Rebuild queued", logfields.Trigger(trigger))
	default:
		c.mu.Lock()
		c.stats.Coalesced++
		c.mu.Unlock()
		c.recorder.IncTriggerCoalesced()
		c.logger.Debug("Rebuild already queued; coalescing", logfields.Trigger(trigger))
	}
}

// Serve consumes queued triggers until ctx is done. For each one it waits
// for the previous run to settle completely, then starts a fresh run.
// Failures are logged and never stop the loop.
func (c *Coordinator) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.mailbox:
		}

		if err := c.Wait(ctx); err != nil {
			return nil
		}

		// Anything queued while we waited is already reflected in pendingTrigger.
		select {
		case <-c.mailbox:
		default:
		}

		c.mu.Lock()
		trigger := c.pendingTrigger
		c.mu.Unlock()

		c.logger.Info("Change detected; rebuilding", logfields.Trigger(trigger))
		res, err := c.RunOnce(ctx, trigger)
		switch {
		case err == nil:
		case errors.Is(err, ErrAlreadyRunning):
			// Started elsewhere after Wait returned; let it settle and retry.
			c.requeue()
		case pipeline.IsCancelled(err):
			c.logger.Info("Run cancelled", logfields.Trigger(trigger))
		default:
			c.logger.Error("Run failed",
				logfields.Trigger(trigger),
				logfields.TaskKind(res.Step),
				logfields.Error(err))
		}
	}
}

func (c *Coordinator) requeue() {
	select {
	case c.mailbox <- struct{}{}:
	default:
	}
}

func outcomeLabel(s pipeline.Status) metrics.ResultLabel {
	switch s {
	case pipeline.StatusSucceeded:
		return metrics.ResultSuccess
	case pipeline.StatusCancelled:
		return metrics.ResultCancelled
	default:
		return metrics.ResultFailed
	}
}
