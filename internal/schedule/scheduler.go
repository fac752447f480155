// Package schedule fires periodic rebuild triggers using gocron.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Trigger is what scheduled jobs call; coordinator.Coordinator.Trigger fits.
type Trigger func(trigger string)

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// ScheduleEvery runs fn(name) every interval and returns the job ID.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn Trigger) (string, error) {
	return s.add(name, gocron.DurationJob(interval), fn)
}

// ScheduleCron runs fn(name) on a five-field cron expression.
func (s *Scheduler) ScheduleCron(name, expr string, fn Trigger) (string, error) {
	return s.add(name, gocron.CronJob(expr, false), fn)
}

func (s *Scheduler) add(name string, def gocron.JobDefinition, fn Trigger) (string, error) {
	job, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(func() {
			s.logger.Info("Scheduled rebuild", slog.String("job", name))
			fn(name)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.logger.Debug("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Run starts the scheduler and stops it when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	return s.Stop()
}
