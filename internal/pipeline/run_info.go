package pipeline

import (
	"context"
	"time"
)

// RunInfo identifies the run a step executes in.
type RunInfo struct {
	ID        uint64
	Session   string
	Trigger   string
	StartedAt time.Time
}

type runInfoKey struct{}

// ContextWithRunInfo attaches info to ctx.
func ContextWithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the RunInfo attached to ctx, if any.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
