package runner

import (
	"context"
	"os/exec"

	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
)

// Probe checks that binary can be executed by running "<binary> --version"
// with all output discarded. A missing runtime is an environment error.
func Probe(ctx context.Context, binary string) error {
	cmd := exec.CommandContext(ctx, binary, "--version")
	if err := cmd.Run(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "runtime not available").
			Fatal().
			WithContext("binary", binary).
			Build()
	}
	return nil
}
