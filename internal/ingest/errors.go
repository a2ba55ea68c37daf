package ingest

import "fmt"

// Validation error codes returned to the caller.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// ValidationError rejects a whole request because its top-level shape is
// unrecognizable. Nothing is written.
type ValidationError struct {
	Code    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// WriteError wraps a failure reported by the storage collaborator.
type WriteError struct {
	Points int
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %d points: %v", e.Points, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
