package commands

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
)

// PrintConfigCmd shows the configuration after defaults and overrides.
type PrintConfigCmd struct {
	WatchFlags `embed:""`

	out io.Writer `kong:"-"`
}

func (p *PrintConfigCmd) Run(_ *Global, root *CLI) error {
	cfg, _, err := root.load(p.WatchFlags)
	if err != nil {
		return err
	}
	out := p.out
	if out == nil {
		out = os.Stdout
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode configuration").Build()
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush configuration: %w", err)
	}
	return nil
}
