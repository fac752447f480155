package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/devwatch/internal/coordinator"
	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
	"git.home.luguber.info/inful/devwatch/internal/logfields"
	"git.home.luguber.info/inful/devwatch/internal/metrics"
	"git.home.luguber.info/inful/devwatch/internal/pipeline"
	"git.home.luguber.info/inful/devwatch/internal/runner"
	"git.home.luguber.info/inful/devwatch/internal/schedule"
	"git.home.luguber.info/inful/devwatch/internal/watcher"
)

// Trigger names used in logs, stamps and notifications.
const (
	TriggerInitial  = "initial"
	TriggerSchedule = "schedule"
)

// RunOnce checks the runtime and executes the pipeline a single time. A
// run cut short by ctx returns nil.
func (d *Daemon) RunOnce(ctx context.Context) error {
	defer d.closePublisher()

	if err := d.checkRuntime(ctx); err != nil {
		return err
	}
	stop := d.escalateOnDone(ctx)
	defer stop()

	if _, err := d.coord.RunOnce(ctx, TriggerInitial); err != nil {
		if ctx.Err() != nil && pipeline.IsCancelled(err) {
			d.logger.Info("Run interrupted")
			return nil
		}
		return ferrors.WrapError(err, ferrors.CategoryPipeline, "pipeline run failed").Fatal().Build()
	}
	return nil
}

// Run is the dev loop: an initial run, then watching until ctx is done.
// It returns nil on a graceful shutdown and a classified error when the
// initial run fails or the watcher cannot start or dies.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.closePublisher()
	d.logger.Info("Starting dev loop",
		logfields.Session(d.coord.Session()),
		logfields.Root(d.root),
		slog.Any("steps", d.pipeline.Steps()))

	if err := d.checkRuntime(ctx); err != nil {
		return err
	}

	stop := d.escalateOnDone(ctx)
	_, err := d.coord.RunOnce(ctx, TriggerInitial)
	stop()
	if err != nil {
		if ctx.Err() != nil && pipeline.IsCancelled(err) {
			d.logger.Info("Interrupted during initial run; exiting")
			return nil
		}
		d.logger.Error("Initial run failed. Not starting watcher.", logfields.Error(err))
		return ferrors.WrapError(err, ferrors.CategoryPipeline, "initial run failed").Fatal().Build()
	}
	if ctx.Err() != nil {
		return nil
	}

	ignore, err := d.ignoreRule()
	if err != nil {
		return err
	}
	w := watcher.New(watcher.Options{
		Root:      d.root,
		Recursive: d.cfg.Watch.IsRecursive(),
		Debounce:  d.cfg.Watch.Debounce,
		Ignore:    ignore,
		Source:    d.source,
		Logger:    d.logger,
		Recorder:  d.recorder,
		OnChange: func(_ context.Context, rel string) error {
			d.coord.Trigger(rel)
			return nil
		},
	})

	var sched *schedule.Scheduler
	if d.cfg.Schedule.Enabled() {
		if sched, err = d.newScheduler(); err != nil {
			return err
		}
	}

	if err := w.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.coord.Serve(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-w.Done():
			return w.Err()
		}
	})
	if d.registry != nil {
		g.Go(func() error {
			d.logger.Info("Serving metrics", slog.String("addr", d.cfg.Metrics.Listen))
			return metrics.Serve(gctx, d.cfg.Metrics.Listen, d.registry)
		})
	}
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		d.shutdown(w)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	d.logger.Info("Shut down cleanly")
	return nil
}

func (d *Daemon) checkRuntime(ctx context.Context) error {
	if !d.cfg.Runtime.ShouldProbe() {
		return nil
	}
	probe := d.probe
	if probe == nil {
		probe = func(binary string) error { return runner.Probe(ctx, binary) }
	}
	if err := probe(d.cfg.Runtime.Binary); err != nil {
		d.logger.Error("Runtime not found. Install it and make sure it is on PATH.",
			slog.String("binary", d.cfg.Runtime.Binary),
			logfields.Error(err))
		var ce *ferrors.ClassifiedError
		if errors.As(err, &ce) {
			return err
		}
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "runtime not available").
			Fatal().WithContext("binary", d.cfg.Runtime.Binary).Build()
	}
	return nil
}

func (d *Daemon) newScheduler() (*schedule.Scheduler, error) {
	sched, err := schedule.NewScheduler(d.logger)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "scheduler unavailable").Fatal().Build()
	}
	if iv := d.cfg.Schedule.Interval; iv > 0 {
		if _, err := sched.ScheduleEvery(TriggerSchedule, iv, d.coord.Trigger); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid schedule.interval").Fatal().Build()
		}
	}
	if expr := d.cfg.Schedule.Cron; expr != "" {
		if _, err := sched.ScheduleCron(TriggerSchedule, expr, d.coord.Trigger); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid schedule.cron").
				Fatal().WithContext("cron", expr).Build()
		}
	}
	return sched, nil
}

// shutdown stops the watcher, cancels the active run and escalates to a
// kill when the run outlives the grace period.
func (d *Daemon) shutdown(w *watcher.Watcher) {
	d.logger.Info("Shutting down")
	w.Stop()
	d.coord.Cancel()
	d.waitOrKill()
}

// escalateOnDone cancels the active run when ctx ends and kills it after
// the grace period. The returned func detaches the hook.
func (d *Daemon) escalateOnDone(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		d.coord.Cancel()
		d.waitOrKill()
	})
}

func (d *Daemon) waitOrKill() {
	grace := d.cfg.Runtime.ShutdownGrace
	if grace <= 0 {
		return
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := d.coord.Wait(waitCtx); err != nil && d.coord.State() != coordinator.StateIdle {
		d.logger.Warn("Active run ignored the interrupt; killing", slog.Duration("grace", grace))
		d.coord.Kill(os.Kill)
	}
}

func (d *Daemon) closePublisher() {
	if err := d.publisher.Close(); err != nil {
		d.logger.Debug("Closing notifier", logfields.Error(err))
	}
}
