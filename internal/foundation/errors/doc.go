// Package errors provides the classified error type used across devwatch.
//
// A ClassifiedError carries a category (config, watch, process, pipeline, ...),
// a severity and a small bag of structured context. The CLI adapter turns a
// classified error into a log line and a process exit status.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryWatch, "watch root not found").
//		Fatal().
//		WithContext("root", root).
//		Build()
package errors
