package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors are shared by the catalog, ledger, lifecycle and transport
// layers. Callers check them with errors.Is.
// -----------------------------------------------------------------------------

// Submission errors
var (
	ErrInvalidSubmission     = errors.New("invalid submission")
	ErrEvaluationUnavailable = errors.New("evaluation unavailable")
	ErrPersistence           = errors.New("persistence failed")
)

// Catalog errors
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrLevelNotFound   = errors.New("level not found")
	ErrUnknownTaskKind = errors.New("unknown task kind")
)

// SubmissionError describes which field of a submission was rejected
type SubmissionError struct {
	Field  string
	Reason string
}

// NewSubmissionError creates a SubmissionError
func NewSubmissionError(field, reason string) *SubmissionError {
	return &SubmissionError{Field: field, Reason: reason}
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("invalid submission: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidSubmission
func (e *SubmissionError) Unwrap() error {
	return ErrInvalidSubmission
}
