package jobs

import (
	"context"

	"github.com/aidobe/assembly/internal/models"
)

// JobStore is the persistence contract the orchestration core runs against.
// Implementations return *DuplicateJobError and *NotFoundError where noted;
// the orchestrator never sees raw rows.
//
// The conditional mutations (ApplyProgress, ApplyCompletion, MarkCancelled,
// MarkDispatchFailed) embed their own transition guard and report whether the
// update was applied. Callbacks arrive out of order and more than once, so
// there is no lock around a job — correctness comes from these guards making
// concurrent updates commutative-safe.
type JobStore interface {
	// CreateJob inserts a new record. Returns *DuplicateJobError if the id exists.
	CreateJob(ctx context.Context, job *models.VideoJob) error

	// GetJob returns the record or *NotFoundError.
	GetJob(ctx context.Context, id string) (*models.VideoJob, error)

	// ApplyProgress updates stage/progress/message and moves queued →
	// processing. Applies only while the job is queued or processing, and
	// progress never decreases. Returns false (no error) when the job is
	// already terminal.
	ApplyProgress(ctx context.Context, id string, stage string, progress int, message *string) (bool, error)

	// ApplyCompletion sets the renderer-reported terminal status with output
	// URL, error and metadata, and stamps completed_at. Applies only from a
	// non-terminal state; returns false for jobs already terminal (including
	// cancelled — cancelled is sticky).
	ApplyCompletion(ctx context.Context, id string, status models.JobStatus, outputURL, errorMessage *string, metadata models.JSONB) (bool, error)

	// MarkCancelled flips a queued or processing job to cancelled and stamps
	// completed_at. Returns false when the job is already terminal.
	MarkCancelled(ctx context.Context, id string) (bool, error)

	// MarkDispatchFailed flips a still-queued job to dispatch_failed with the
	// dispatch error recorded. Returns false if the job moved on meanwhile.
	MarkDispatchFailed(ctx context.Context, id string, errorMessage string) (bool, error)

	// ListJobs returns up to limit records ordered by creation time
	// descending, skipping offset records.
	ListJobs(ctx context.Context, limit, offset int) ([]models.VideoJob, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)

	// AvgProcessingTimeMs returns the mean completed_at - created_at over
	// completed jobs, or nil when none have completed.
	AvgProcessingTimeMs(ctx context.Context) (*float64, error)
}
