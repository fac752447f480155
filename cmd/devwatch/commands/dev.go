package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/devwatch/internal/daemon"
)

// DevCmd runs the initial pipeline and then watches for changes.
type DevCmd struct {
	WatchFlags `embed:""`
}

func (d *DevCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := root.load(d.WatchFlags)
	if err != nil {
		return err
	}

	dm, err := daemon.New(cfg, daemon.WithLogger(logger))
	if err != nil {
		return err
	}
	return dm.Run(ctx)
}
