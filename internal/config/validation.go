package config

import (
	"fmt"
	"net"
	"time"

	"git.home.luguber.info/inful/devwatch/internal/foundation"
)

// Validate reports every problem in cfg as one classified validation error.
func Validate(cfg *Config) error {
	var v foundation.Validation

	v.Require("watch.root", cfg.Watch.Root)
	if cfg.Watch.Debounce <= 0 {
		v.Add("watch.debounce", "positive", "must be positive, got %s", cfg.Watch.Debounce)
	}
	v.Require("runtime.binary", cfg.Runtime.Binary)
	if cfg.Runtime.ShutdownGrace < 0 {
		v.Add("runtime.shutdown_grace", "non_negative", "must not be negative")
	}

	validateTasks(&v, cfg.Tasks)

	if iv := cfg.Schedule.Interval; iv < 0 || (iv > 0 && iv < time.Second) {
		v.Add("schedule.interval", "range", "must be zero (disabled) or at least 1s, got %s", iv)
	}
	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			v.Add("metrics.listen", "address", "invalid listen address %q: %v", cfg.Metrics.Listen, err)
		}
	}
	if cfg.Notify.NATSURL != "" {
		v.Require("notify.subject", cfg.Notify.Subject)
	}

	return v.Err()
}

func validateTasks(v *foundation.Validation, tasks []TaskConfig) {
	if len(tasks) == 0 {
		v.Add("tasks", "required", "at least one task is required")
		return
	}
	seen := make(map[string]int, len(tasks))
	for i, t := range tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		v.Require(field+".kind", t.Kind)
		v.Require(field+".command", t.Command)
		if t.Kind == "" {
			continue
		}
		if prev, dup := seen[t.Kind]; dup {
			v.Add(field+".kind", "unique", "duplicate kind %q (also used by tasks[%d])", t.Kind, prev)
			continue
		}
		seen[t.Kind] = i
	}
}
