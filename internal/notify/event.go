// Package notify publishes the outcome of every settled run.
package notify

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/devwatch/internal/coordinator"
	"git.home.luguber.info/inful/devwatch/internal/logfields"
)

// RunEvent is the JSON message published for a settled run.
type RunEvent struct {
	Session    string    `json:"session"`
	RunID      uint64    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Step       string    `json:"step,omitempty"`
	Error      string    `json:"error,omitempty"`
	Executed   []string  `json:"executed"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// NewRunEvent converts a coordinator report.
func NewRunEvent(r coordinator.Report) RunEvent {
	ev := RunEvent{
		Session:    r.Session,
		RunID:      r.RunID,
		Trigger:    r.Trigger,
		Status:     r.Result.Status.String(),
		Step:       r.Result.Step,
		Executed:   r.Result.Executed,
		DurationMS: r.Result.Duration.Milliseconds(),
		StartedAt:  r.Started.UTC(),
	}
	if ev.Executed == nil {
		ev.Executed = []string{}
	}
	if r.Result.Err != nil {
		ev.Error = r.Result.Err.Error()
	}
	return ev
}

// Publisher delivers run events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev RunEvent) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, RunEvent) error { return nil }
func (Noop) Close() error                            { return nil }

// Observer adapts a Publisher to coordinator.Observer. Publish failures are
// logged and never affect the run.
type Observer struct {
	Publisher Publisher
	Logger    *slog.Logger
	Timeout   time.Duration
}

func (o *Observer) RunSettled(ctx context.Context, r coordinator.Report) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := o.Publisher.Publish(ctx, NewRunEvent(r)); err != nil {
		logger := o.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Failed to publish run event", logfields.RunID(r.RunID), logfields.Error(err))
	}
}
