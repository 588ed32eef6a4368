package notebook

import (
	"errors"
	"fmt"

	"labtree/internal/record"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested record is not found.
	ErrNotFound = errors.New("not found")
	// ErrBusy is returned when a scan of the same project is already running.
	ErrBusy = errors.New("scan already running")
)

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, &record.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}
