package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/devwatch/internal/daemon"
)

// RunCmd executes the pipeline once without watching.
type RunCmd struct {
	WatchFlags `embed:""`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := root.load(r.WatchFlags)
	if err != nil {
		return err
	}

	dm, err := daemon.New(cfg, daemon.WithLogger(logger))
	if err != nil {
		return err
	}
	return dm.RunOnce(ctx)
}
