// Package foundation holds small building blocks shared by the config and
// command layers.
package foundation

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/devwatch/internal/foundation/errors"
)

// FieldError is a single validation failure.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

func (fe FieldError) Error() string {
	if fe.Field != "" {
		return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return fe.Message
}

// Validation accumulates field errors so every problem is reported at once.
type Validation struct {
	errs []FieldError
}

// Add records a failure for field.
func (v *Validation) Add(field, code, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Require records a "required" failure when value is blank.
func (v *Validation) Require(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required", "must not be empty")
	}
}

// Errors returns the recorded failures.
func (v *Validation) Errors() []FieldError { return v.errs }

// Valid reports whether nothing was recorded.
func (v *Validation) Valid() bool { return len(v.errs) == 0 }

// Err returns a classified validation error listing every failure, or nil.
func (v *Validation) Err() error {
	if v.Valid() {
		return nil
	}
	messages := make([]string, 0, len(v.errs))
	fields := make([]string, 0, len(v.errs))
	for _, fe := range v.errs {
		messages = append(messages, fe.Error())
		fields = append(fields, fe.Field)
	}
	return errors.ValidationError("invalid configuration: "+strings.Join(messages, "; ")).
		WithContext("fields", strings.Join(fields, ",")).
		Build()
}
