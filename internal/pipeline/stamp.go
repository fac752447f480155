package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/devwatch/internal/foundation/errors"
)

// Stamp is the JSON document written by the stamp step. Consumers of the
// generated artifacts can watch this file instead of the artifacts.
type Stamp struct {
	RunID      uint64    `json:"run_id"`
	Session    string    `json:"session,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewStampStep returns a step that writes a Stamp to path. The file is
// replaced atomically.
func NewStampStep(path string) *FuncStep {
	return NewFuncStep("stamp", "Writing build stamp...", "", func(ctx context.Context) error {
		info, _ := RunInfoFrom(ctx)
		return writeStamp(path, Stamp{
			RunID:      info.ID,
			Session:    info.Session,
			Trigger:    info.Trigger,
			FinishedAt: time.Now().UTC(),
		})
	})
}

func writeStamp(path string, stamp Stamp) error {
	data, err := json.MarshalIndent(stamp, "", "  ")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode build stamp").Build()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create stamp directory").WithContext("dir", dir).Build()
	}
	tmp, err := os.CreateTemp(dir, ".stamp-*")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create stamp file").WithContext("dir", dir).Build()
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write stamp file").Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "close stamp file").Build()
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "replace stamp file").WithContext("path", path).Build()
	}
	return nil
}
