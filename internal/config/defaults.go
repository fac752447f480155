package config

import (
	"time"
)

// Defaults for the Convex development loop.
const (
	DefaultRoot          = "convex"
	DefaultDebounce      = 200 * time.Millisecond
	DefaultBinary        = "bun"
	DefaultGenerator     = "scripts/generate-schema.js"
	DefaultGeneratorTS   = "scripts/generate-schema.ts"
	DefaultShutdownGrace = 5 * time.Second
	DefaultNotifySubject = "devwatch.runs"

	UploadKind = "convex"
	SchemaKind = "schema"
)

// DefaultTasks returns the upload and schema generation steps for cfg.
func DefaultTasks(cfg *Config) []TaskConfig {
	return []TaskConfig{
		{
			Kind:           UploadKind,
			Label:          "Uploading functions to Convex...",
			Command:        cfg.Runtime.Binary,
			Args:           []string{"x", "convex", "dev", "--once"},
			SuccessMessage: "Convex functions uploaded",
		},
		{
			Kind:           SchemaKind,
			Label:          "Generating Zod schemas...",
			Command:        cfg.Runtime.Binary,
			Args:           []string{"run", cfg.Runtime.Generator, "--convexDir", cfg.Watch.Root},
			SuccessMessage: "Zod schemas generated",
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Watch.Root == "" {
		cfg.Watch.Root = DefaultRoot
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultDebounce
	}

	if cfg.Runtime.Binary == "" {
		cfg.Runtime.Binary = DefaultBinary
	}
	if cfg.Runtime.Generator == "" {
		cfg.Runtime.Generator = DefaultGenerator
	}
	if cfg.Runtime.ShutdownGrace == 0 {
		cfg.Runtime.ShutdownGrace = DefaultShutdownGrace
	}

	if len(cfg.Tasks) == 0 {
		cfg.Tasks = DefaultTasks(cfg)
	}
	if cfg.SchemaOnly {
		kept := cfg.Tasks[:0]
		for _, t := range cfg.Tasks {
			if t.Kind != UploadKind {
				kept = append(kept, t)
			}
		}
		cfg.Tasks = kept
	}
	for i := range cfg.Tasks {
		if cfg.Tasks[i].Label == "" {
			cfg.Tasks[i].Label = "Running " + cfg.Tasks[i].Kind + "..."
		}
	}

	if cfg.Notify.NATSURL != "" && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}
