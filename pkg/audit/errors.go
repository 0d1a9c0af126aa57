package audit

import "fmt"

// StorageError indicates a failed storage operation.
type StorageError struct {
	Op    string
	Cause error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// RecorderError indicates a record could not be enqueued or written.
type RecorderError struct {
	RecordID string
	Cause    error
}

// Error returns the error message.
func (e *RecorderError) Error() string {
	return fmt.Sprintf("audit recorder: record %s: %v", e.RecordID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}
