package logfields

import (
	"errors"
	"testing"
	"time"
)

func TestHelpers(t *testing.T) {
	if a := RunID(7); a.Key != KeyRunID || a.Value.Uint64() != 7 {
		t.Fatalf("unexpected RunID attr: %v", a)
	}
	if a := TaskKind("schema"); a.Key != KeyTaskKind || a.Value.String() != "schema" {
		t.Fatalf("unexpected TaskKind attr: %v", a)
	}
	if a := Duration(1500 * time.Microsecond); a.Value.Float64() != 1.5 {
		t.Fatalf("unexpected duration: %v", a.Value.Float64())
	}
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("nil error should be empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("unexpected error value %q", a.Value.String())
	}
}
