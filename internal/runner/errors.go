package runner

import (
	"errors"
	"fmt"
)

// Sentinel reasons. Use errors.Is against a returned *Error.
var (
	ErrAlreadyCancelled   = errors.New("runner is cancelled")
	ErrAbortedBeforeStart = errors.New("run aborted before start")
	ErrDuplicateKind      = errors.New("a task of this kind is already running")
	ErrCancelled          = errors.New("cancelled")
	ErrFailed             = errors.New("task failed")
	ErrSpawn              = errors.New("failed to start task")
)

// Error is returned by Runner.Run for every non-success outcome.
type Error struct {
	Reason   error // one of the sentinel errors above
	Kind     string
	Label    string
	ExitCode int    // -1 when the process did not exit normally or never ran
	Signal   string // terminating signal, empty if none
	Err      error  // underlying OS error for ErrSpawn
}

func (e *Error) Error() string {
	switch e.Reason {
	case ErrFailed:
		return fmt.Sprintf("%s failed (code=%s, signal=%s)", e.Label, codeString(e.ExitCode), signalString(e.Signal))
	case ErrCancelled:
		return fmt.Sprintf("%s: cancelled (code=%s, signal=%s)", e.Kind, codeString(e.ExitCode), signalString(e.Signal))
	case ErrSpawn:
		return fmt.Sprintf("failed to start %s: %v", e.Label, e.Err)
	case ErrDuplicateKind:
		return fmt.Sprintf("a task of kind %q is already running", e.Kind)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Reason)
	}
}

// Is matches the sentinel reason.
func (e *Error) Is(target error) bool {
	return target == e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is the expected outcome of a cancellation
// rather than a failure. A run refused because the runner was already
// cancelled counts as cancelled too.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrAlreadyCancelled) || errors.Is(err, ErrAbortedBeforeStart)
}

func codeString(code int) string {
	if code < 0 {
		return "unknown"
	}
	return fmt.Sprint(code)
}

func signalString(sig string) string {
	if sig == "" {
		return "none"
	}
	return sig
}
