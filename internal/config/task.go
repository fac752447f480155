package config

import (
	"maps"
	"slices"
)

// Environ returns the task's extra environment as sorted KEY=VALUE pairs.
func (t TaskConfig) Environ() []string {
	if len(t.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.Env))
	for _, k := range slices.Sorted(maps.Keys(t.Env)) {
		out = append(out, k+"="+t.Env[k])
	}
	return out
}

// Argv returns the direct-exec argument vector, or nil for shell tasks.
func (t TaskConfig) Argv() []string {
	if len(t.Args) == 0 {
		return nil
	}
	return append([]string{t.Command}, t.Args...)
}
