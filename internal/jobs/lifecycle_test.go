package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aidobe/assembly/internal/jobs"
	"github.com/aidobe/assembly/internal/memstore"
	"github.com/aidobe/assembly/internal/models"
)

func TestCreateSetsQueuedWithoutProgress(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lc := jobs.NewLifecycle(store)

	req := testRequest(2)
	job, err := lc.Create(ctx, req)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if job.Status != models.JobStatusQueued {
		t.Errorf("expected status queued, got %s", job.Status)
	}
	if job.Progress != nil {
		t.Errorf("expected progress unset, got %d", *job.Progress)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if job.Input == nil {
		t.Error("expected input snapshot to be stored")
	}
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	lc := jobs.NewLifecycle(memstore.New())

	req := testRequest(1)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := lc.Create(ctx, req)
	var dupErr *jobs.DuplicateJobError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateJobError, got %v", err)
	}
	if dupErr.JobID != req.JobID {
		t.Errorf("expected job id %s in error, got %s", req.JobID, dupErr.JobID)
	}
}

func TestProgressMovesQueuedToProcessing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lc := jobs.NewLifecycle(store)

	req := testRequest(3)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := lc.ApplyProgress(ctx, &models.ProgressCallback{
		JobID:    req.JobID,
		Stage:    "rendering",
		Progress: 40,
	})
	if err != nil {
		t.Fatalf("apply progress failed: %v", err)
	}

	job, err := store.GetJob(ctx, req.JobID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if job.Status != models.JobStatusProcessing {
		t.Errorf("expected status processing, got %s", job.Status)
	}
	if job.Progress == nil || *job.Progress != 40 {
		t.Errorf("expected progress 40, got %v", job.Progress)
	}
	if job.Stage == nil || *job.Stage != "rendering" {
		t.Errorf("expected stage rendering, got %v", job.Stage)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lc := jobs.NewLifecycle(store)

	req := testRequest(1)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for _, p := range []int{60, 30} {
		if err := lc.ApplyProgress(ctx, &models.ProgressCallback{JobID: req.JobID, Stage: "rendering", Progress: p}); err != nil {
			t.Fatalf("apply progress %d failed: %v", p, err)
		}
	}

	job, _ := store.GetJob(ctx, req.JobID)
	if job.Progress == nil || *job.Progress != 60 {
		t.Errorf("expected out-of-order progress to keep 60, got %v", job.Progress)
	}
}

func TestProgressRejectsInvalidValues(t *testing.T) {
	ctx := context.Background()
	lc := jobs.NewLifecycle(memstore.New())

	tests := []struct {
		name string
		cb   models.ProgressCallback
	}{
		{"negative progress", models.ProgressCallback{JobID: "x", Stage: "rendering", Progress: -1}},
		{"progress above 100", models.ProgressCallback{JobID: "x", Stage: "rendering", Progress: 101}},
		{"missing stage", models.ProgressCallback{JobID: "x", Progress: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lc.ApplyProgress(ctx, &tt.cb)
			var vErr *jobs.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestProgressAfterCompletionIsDropped(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lc := jobs.NewLifecycle(store)

	req := testRequest(1)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := lc.ApplyCompletion(ctx, &models.CompletionCallback{
		JobID:     req.JobID,
		Status:    "completed",
		OutputURL: strPtr("https://x/out.mp4"),
	}); err != nil {
		t.Fatalf("apply completion failed: %v", err)
	}

	// Late progress callback must be a no-op, not an error.
	if err := lc.ApplyProgress(ctx, &models.ProgressCallback{JobID: req.JobID, Stage: "rendering", Progress: 50}); err != nil {
		t.Fatalf("late progress should not error: %v", err)
	}

	job, _ := store.GetJob(ctx, req.JobID)
	if job.Status != models.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", job.Status)
	}
	if job.Progress != nil {
		t.Errorf("expected progress untouched, got %v", *job.Progress)
	}
}

func TestCompletionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lc := jobs.NewLifecycle(store)

	req := testRequest(1)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first := &models.CompletionCallback{
		JobID:     req.JobID,
		Status:    "completed",
		OutputURL: strPtr("https://x/out.mp4"),
		Metadata:  models.JSONB{"duration": 42.5},
	}
	if err := lc.ApplyCompletion(ctx, first); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}

	before, _ := store.GetJob(ctx, req.JobID)

	// Duplicate delivery with different payload: accepted and ignored.
	dup := &models.CompletionCallback{
		JobID:     req.JobID,
		Status:    "failed",
		Error:     strPtr("spurious retry"),
		OutputURL: strPtr("https://x/other.mp4"),
	}
	if err := lc.ApplyCompletion(ctx, dup); err != nil {
		t.Fatalf("duplicate completion should not error: %v", err)
	}

	after, _ := store.GetJob(ctx, req.JobID)
	if after.Status != before.Status {
		t.Errorf("status changed by duplicate: %s -> %s", before.Status, after.Status)
	}
	if *after.OutputURL != *before.OutputURL {
		t.Errorf("output URL changed by duplicate: %s -> %s", *before.OutputURL, *after.OutputURL)
	}
	if !after.CompletedAt.Equal(*before.CompletedAt) {
		t.Error("completed_at changed by duplicate delivery")
	}
}

func TestCompletionRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	lc := jobs.NewLifecycle(memstore.New())

	err := lc.ApplyCompletion(ctx, &models.CompletionCallback{JobID: "x", Status: "exploded"})
	var vErr *jobs.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCancelledIsSticky(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lc := jobs.NewLifecycle(store)

	req := testRequest(1)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := lc.Cancel(ctx, req.JobID, "user requested"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// A slow success callback must not resurrect the job.
	if err := lc.ApplyCompletion(ctx, &models.CompletionCallback{
		JobID:     req.JobID,
		Status:    "completed",
		OutputURL: strPtr("https://x/out.mp4"),
	}); err != nil {
		t.Fatalf("late completion should not error: %v", err)
	}

	job, _ := store.GetJob(ctx, req.JobID)
	if job.Status != models.JobStatusCancelled {
		t.Errorf("expected status cancelled, got %s", job.Status)
	}
	if job.OutputURL != nil {
		t.Errorf("expected no output URL on cancelled job, got %s", *job.OutputURL)
	}
}

func TestCancelCompletedJobFails(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lc := jobs.NewLifecycle(store)

	req := testRequest(1)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := lc.ApplyCompletion(ctx, &models.CompletionCallback{JobID: req.JobID, Status: "completed"}); err != nil {
		t.Fatalf("completion failed: %v", err)
	}

	_, err := lc.Cancel(ctx, req.JobID, "too late")
	var trErr *jobs.InvalidTransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if trErr.From != models.JobStatusCompleted {
		t.Errorf("expected transition error from completed, got %s", trErr.From)
	}

	job, _ := store.GetJob(ctx, req.JobID)
	if job.Status != models.JobStatusCompleted {
		t.Errorf("cancel must leave the record unchanged, got %s", job.Status)
	}
}

func TestCancelTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	lc := jobs.NewLifecycle(memstore.New())

	req := testRequest(1)
	if _, err := lc.Create(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := lc.Cancel(ctx, req.JobID, "first"); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	cancellation, err := lc.Cancel(ctx, req.JobID, "second")
	if err != nil {
		t.Fatalf("second cancel should be idempotent: %v", err)
	}
	if cancellation.JobID != req.JobID {
		t.Errorf("expected cancellation for %s, got %s", req.JobID, cancellation.JobID)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	ctx := context.Background()
	lc := jobs.NewLifecycle(memstore.New())

	_, err := lc.Cancel(ctx, "00000000-0000-0000-0000-000000000000", "nope")
	var nfErr *jobs.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
