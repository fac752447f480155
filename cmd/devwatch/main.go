package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/devwatch/cmd/devwatch/commands"
	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
	"git.home.luguber.info/inful/devwatch/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("devwatch"),
		kong.Description("Re-run build steps on every settled change to a source tree."),
		kong.Vars{"version": version.String()},
		kong.UsageOnError(),
	)

	if err := parser.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
