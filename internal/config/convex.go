package config

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

// ConvexProject is the subset of convex.json devwatch understands.
type ConvexProject struct {
	Functions string `json:"functions"`
	Codegen   struct {
		FileType string `json:"fileType"`
	} `json:"codegen"`
}

// UsesTypeScript reports whether codegen emits TypeScript.
func (p *ConvexProject) UsesTypeScript() bool {
	return p != nil && p.Codegen.FileType == "ts"
}

// ReadConvexProject reads dir/convex.json. A missing file yields nil. A
// malformed file is reported as a warning and treated as missing.
func ReadConvexProject(dir string) (*ConvexProject, error) {
	path := filepath.Join(dir, "convex.json")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p ConvexProject
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("Failed to parse convex.json; ignoring it", "path", path, "error", err)
		return nil, nil
	}
	return &p, nil
}

func applyConvexProject(cfg *Config, p *ConvexProject) {
	if p == nil {
		return
	}
	if cfg.Watch.Root == "" && p.Functions != "" {
		cfg.Watch.Root = p.Functions
	}
	if cfg.Runtime.Generator == "" && p.UsesTypeScript() {
		cfg.Runtime.Generator = DefaultGeneratorTS
	}
}
