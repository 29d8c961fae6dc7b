package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aidobe/assembly/internal/models"
)

// Lifecycle owns the job state machine:
//
//	queued → processing → {completed | failed}
//
// with cancelled reachable from queued or processing only, and
// dispatch_failed reachable from queued when the renderer submission never
// succeeded. All mutations of a VideoJob go through this type.
type Lifecycle struct {
	store JobStore
}

func NewLifecycle(store JobStore) *Lifecycle {
	return &Lifecycle{store: store}
}

// Create writes a new job record in status queued with the serialized request
// snapshot. Progress is unset until the first renderer callback.
func (l *Lifecycle) Create(ctx context.Context, req *models.VideoAssemblyRequest) (*models.VideoJob, error) {
	input, err := requestSnapshot(req)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot request: %w", err)
	}

	job := &models.VideoJob{
		ID:     req.JobID,
		Status: models.JobStatusQueued,
		Input:  input,
	}

	if err := l.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	log.Printf("[Lifecycle] Created job %s (%d scenes, quality=%s)", job.ID, len(req.Scenes), req.Output.Quality)
	return job, nil
}

// ApplyProgress applies a renderer progress event. The first progress event
// moves a queued job to processing. Events for jobs already in a terminal
// state are accepted and dropped — late or duplicate callbacks must not race
// a completion that already landed.
func (l *Lifecycle) ApplyProgress(ctx context.Context, cb *models.ProgressCallback) error {
	if cb.Progress < 0 || cb.Progress > 100 {
		return &ValidationError{Field: "progress", Message: "must be between 0 and 100"}
	}
	if cb.Stage == "" {
		return &ValidationError{Field: "stage", Message: "is required"}
	}

	message := cb.Message
	if message == nil && cb.CurrentScene != nil && cb.TotalScenes != nil {
		m := fmt.Sprintf("scene %d of %d", *cb.CurrentScene, *cb.TotalScenes)
		message = &m
	}

	applied, err := l.store.ApplyProgress(ctx, cb.JobID, cb.Stage, cb.Progress, message)
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[Lifecycle] Dropped progress event for job %s (stage=%s, progress=%d): job already terminal", cb.JobID, cb.Stage, cb.Progress)
		return nil
	}

	log.Printf("[Lifecycle] Job %s progress: stage=%s %d%%", cb.JobID, cb.Stage, cb.Progress)
	return nil
}

// ApplyCompletion applies a renderer terminal callback. Delivery is
// at-least-once, so a completion for an already-terminal job is accepted and
// ignored. A completion arriving after a cancel does not resurrect the job —
// cancelled is sticky once set.
func (l *Lifecycle) ApplyCompletion(ctx context.Context, cb *models.CompletionCallback) error {
	var status models.JobStatus
	switch cb.Status {
	case "completed":
		status = models.JobStatusCompleted
	case "failed":
		status = models.JobStatusFailed
	default:
		return &ValidationError{Field: "status", Message: "must be \"completed\" or \"failed\""}
	}

	applied, err := l.store.ApplyCompletion(ctx, cb.JobID, status, cb.OutputURL, cb.Error, cb.Metadata)
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[Lifecycle] Ignored duplicate/late completion for job %s (status=%s): job already terminal", cb.JobID, cb.Status)
		return nil
	}

	log.Printf("[Lifecycle] Job %s finished: status=%s", cb.JobID, status)
	return nil
}

// Cancel marks a queued or processing job cancelled. Cancellation is
// cooperative: local state flips immediately, but the renderer is not
// interrupted — a late completion callback for the job will be dropped by
// the terminal-state guard instead.
//
// Cancelling an already-cancelled job is idempotent and returns the existing
// record. Cancelling a completed, failed or dispatch_failed job returns
// *InvalidTransitionError.
func (l *Lifecycle) Cancel(ctx context.Context, jobID, reason string) (*models.Cancellation, error) {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == models.JobStatusCancelled {
		return &models.Cancellation{JobID: jobID, CancelledAt: job.UpdatedAt, Reason: reason}, nil
	}
	if job.Status.IsTerminal() {
		return nil, &InvalidTransitionError{JobID: jobID, From: job.Status, Op: "cancel"}
	}

	applied, err := l.store.MarkCancelled(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race with a completion callback between the read and the
		// conditional update.
		current, err := l.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.JobStatusCancelled {
			return &models.Cancellation{JobID: jobID, CancelledAt: current.UpdatedAt, Reason: reason}, nil
		}
		return nil, &InvalidTransitionError{JobID: jobID, From: current.Status, Op: "cancel"}
	}

	log.Printf("[Lifecycle] Job %s cancelled (reason: %s)", jobID, reason)
	return &models.Cancellation{JobID: jobID, CancelledAt: time.Now(), Reason: reason}, nil
}

// MarkDispatchFailed records that the renderer submission for a freshly
// created job exhausted its retries. The job is terminal afterwards: there is
// no external counterpart, so no callbacks will ever arrive.
func (l *Lifecycle) MarkDispatchFailed(ctx context.Context, jobID string, dispatchErr error) error {
	applied, err := l.store.MarkDispatchFailed(ctx, jobID, dispatchErr.Error())
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[Lifecycle] Job %s not marked dispatch_failed: no longer queued", jobID)
	}
	return nil
}

func requestSnapshot(req *models.VideoAssemblyRequest) (models.JSONB, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var snapshot models.JSONB
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}
