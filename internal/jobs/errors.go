package jobs

import (
	"fmt"

	"github.com/aidobe/assembly/internal/models"
)

// Error taxonomy for the render orchestration core. Each kind maps to a
// distinct HTTP status in the API layer; handlers use errors.As so no
// catch-all can mask which kind occurred.

// ValidationError reports a malformed assembly request with field-level detail.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// ConfigurationError indicates missing renderer credentials/endpoint. This is
// operator misconfiguration — never retried.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("renderer configuration missing: %s", e.Setting)
}

// DispatchFailedError means the renderer submission exhausted its retry
// budget. It wraps the last underlying error.
type DispatchFailedError struct {
	Attempts int
	Err      error
}

func (e *DispatchFailedError) Error() string {
	return fmt.Sprintf("dispatch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DispatchFailedError) Unwrap() error { return e.Err }

// InvalidTransitionError is returned when an operation is not allowed from
// the job's current status (e.g. cancelling a completed job).
type InvalidTransitionError struct {
	JobID string
	From  models.JobStatus
	Op    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s job %s in status %s", e.Op, e.JobID, e.From)
}

// NotFoundError is returned for an unknown job id.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// DuplicateJobError is returned when a job id is enqueued twice. Idempotent
// callers should treat it as success and re-fetch the existing record.
type DuplicateJobError struct {
	JobID string
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("job %s already exists", e.JobID)
}
