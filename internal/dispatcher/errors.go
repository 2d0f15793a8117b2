package dispatcher

import (
	"errors"
	"fmt"
)

// Dispatcher errors.
var (
	// ErrUnknownOperation indicates no operation with the given id is recorded.
	ErrUnknownOperation = errors.New("dispatcher: unknown operation")

	// ErrTimeout indicates the processor did not finish in time.
	ErrTimeout = errors.New("dispatcher: processor timeout")

	// ErrPanic indicates the processor panicked.
	ErrPanic = errors.New("dispatcher: processor panic")
)

// ValidationError reports a request that was rejected before anything ran.
type ValidationError struct {
	// Field names the offending part of the request: kind, files, params,
	// params.<name>, selection or hook.
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatcher: invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("dispatcher: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports that a file is already being changed by another
// operation.
type ConflictError struct {
	FileID string

	// Holder is the id of the operation, undo or redo holding the file.
	Holder string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dispatcher: file %s is busy with %s", e.FileID, e.Holder)
}
