package pipeline

import (
	"context"
	"sync/atomic"
)

// Cancellable is the capability handed to whatever executes a run: a way
// to ask the work to stop. Cancellation is cooperative.
type Cancellable interface {
	RequestCancel()
}

var _ Cancellable = (*Execution)(nil)

// Execution is the cancellation handle for one pipeline run.
type Execution struct {
	ctx       context.Context
	cancel    context.CancelFunc
	requested atomic.Bool
}

// NewExecution derives a cancellable execution from parent.
func NewExecution(parent context.Context) *Execution {
	ctx, cancel := context.WithCancel(parent)
	return &Execution{ctx: ctx, cancel: cancel}
}

// Context is done once the run has been asked to stop or parent is done.
func (e *Execution) Context() context.Context { return e.ctx }

// RequestCancel asks the run to stop. Safe to call more than once.
func (e *Execution) RequestCancel() {
	e.requested.Store(true)
	e.cancel()
}

// Cancelled reports whether the run was asked to stop, either directly or
// through its parent context.
func (e *Execution) Cancelled() bool {
	return e.requested.Load() || e.ctx.Err() != nil
}
