package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeySession    = "session"
	KeyTrigger    = "trigger"
	KeyTaskKind   = "task_kind"
	KeyTaskLabel  = "task_label"
	KeyPath       = "path"
	KeyRoot       = "root"
	KeyExitCode   = "exit_code"
	KeySignal     = "signal"
	KeyStatus     = "status"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id uint64) slog.Attr    { return slog.Uint64(KeyRunID, id) }
func Session(id string) slog.Attr  { return slog.String(KeySession, id) }
func Trigger(t string) slog.Attr   { return slog.String(KeyTrigger, t) }
func TaskKind(k string) slog.Attr  { return slog.String(KeyTaskKind, k) }
func TaskLabel(l string) slog.Attr { return slog.String(KeyTaskLabel, l) }
func Path(p string) slog.Attr      { return slog.String(KeyPath, p) }
func Root(r string) slog.Attr      { return slog.String(KeyRoot, r) }
func ExitCode(code int) slog.Attr  { return slog.Int(KeyExitCode, code) }
func Signal(s string) slog.Attr    { return slog.String(KeySignal, s) }
func Status(s string) slog.Attr    { return slog.String(KeyStatus, s) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
