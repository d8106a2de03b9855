package utils

import (
	"context"
	"errors"
	"fmt"
)

// FatalError marks an error as non-retryable for a single automation
// invocation: the dispatch boundary logs it and surfaces it to the caller
// without creating a failure-queue item. Everything else is retryable.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func NewFatalError(err error) *FatalError {
	return &FatalError{Err: err}
}

func Fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

func WrapError(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

func LogError(ctx context.Context, err error, message string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}

	fields["error"] = err.Error()

	Error(ctx, message, fields)
}
