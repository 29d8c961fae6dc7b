package jobs

import (
	"context"
	"log"

	"github.com/aidobe/assembly/internal/cache"
	"github.com/aidobe/assembly/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	// Health thresholds over queue depth (queued + processing jobs) and
	// error rate ((failed + dispatch_failed) / total).
	degradedQueueDepth  = 50
	unhealthyQueueDepth = 100
	degradedErrorRate   = 0.10
	unhealthyErrorRate  = 0.25
)

// Queue is the public operation surface of the orchestration core. It
// composes the lifecycle manager and the render dispatcher: enqueue, status,
// cancel, history, stats and health all go through here.
type Queue struct {
	store      JobStore
	lifecycle  *Lifecycle
	dispatcher *Dispatcher
	cache      *cache.Cache // Optional: nil disables status caching
}

func NewQueue(store JobStore, lifecycle *Lifecycle, dispatcher *Dispatcher, statusCache *cache.Cache) *Queue {
	return &Queue{
		store:      store,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		cache:      statusCache,
	}
}

// Enqueue validates the request, creates the local job record and submits it
// to the external renderer.
//
// When dispatch exhausts its retries after the record was created, the job is
// marked dispatch_failed and the dispatch error is returned: the caller must
// treat the job as not queued. The record is kept for inspection — it has no
// external counterpart and will receive no callbacks.
func (q *Queue) Enqueue(ctx context.Context, req *models.VideoAssemblyRequest) (*models.EnqueueResponse, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	job, err := q.lifecycle.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	renderJobID, err := q.dispatcher.Dispatch(ctx, req)
	if err != nil {
		if markErr := q.lifecycle.MarkDispatchFailed(ctx, req.JobID, err); markErr != nil {
			log.Printf("[Queue] Failed to mark job %s dispatch_failed: %v", req.JobID, markErr)
		}
		return nil, err
	}

	summary := Summarize(req)
	summary.RenderJobID = renderJobID

	return &models.EnqueueResponse{AssemblyJob: job, Summary: summary}, nil
}

// GetStatus returns the current job projection, serving from the status
// cache when enabled.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*models.VideoJob, error) {
	if q.cache != nil {
		if job, ok := q.cache.GetJob(ctx, jobID); ok {
			return job, nil
		}
	}

	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		q.cache.SetJob(ctx, job)
	}
	return job, nil
}

// Cancel marks the job cancelled and drops any cached projection so the
// caller immediately reads the new status.
func (q *Queue) Cancel(ctx context.Context, jobID, reason string) (*models.Cancellation, error) {
	cancellation, err := q.lifecycle.Cancel(ctx, jobID, reason)
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		q.cache.Invalidate(ctx, jobID)
	}
	return cancellation, nil
}

// History returns a page of jobs ordered by creation time descending.
func (q *Queue) History(ctx context.Context, limit, offset int) (*models.HistoryResponse, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	// Fetch one extra record to learn whether another page exists.
	jobs, err := q.store.ListJobs(ctx, limit+1, offset)
	if err != nil {
		return nil, err
	}

	hasNext := len(jobs) > limit
	if hasNext {
		jobs = jobs[:limit]
	}

	return &models.HistoryResponse{
		Jobs:    jobs,
		HasNext: hasNext,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// Stats returns aggregate job counts and the mean processing time over
// completed jobs. The per-status counts always partition the total.
func (q *Queue) Stats(ctx context.Context) (*models.QueueStats, error) {
	var (
		counts map[models.JobStatus]int
		avgMs  *float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = q.store.CountByStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		avgMs, err = q.store.AvgProcessingTimeMs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &models.QueueStats{
		Queued:              counts[models.JobStatusQueued],
		DispatchFailed:      counts[models.JobStatusDispatchFailed],
		Processing:          counts[models.JobStatusProcessing],
		Completed:           counts[models.JobStatusCompleted],
		Failed:              counts[models.JobStatusFailed],
		Cancelled:           counts[models.JobStatusCancelled],
		AvgProcessingTimeMs: avgMs,
	}
	stats.Total = stats.Queued + stats.DispatchFailed + stats.Processing +
		stats.Completed + stats.Failed + stats.Cancelled

	return stats, nil
}

// Health derives a coarse health signal from the queue depth and error rate.
func (q *Queue) Health(ctx context.Context) (*models.Health, error) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return nil, err
	}

	depth := stats.Queued + stats.Processing

	var errorRate float64
	if stats.Total > 0 {
		errorRate = float64(stats.Failed+stats.DispatchFailed) / float64(stats.Total)
	}

	status := models.HealthHealthy
	switch {
	case depth > unhealthyQueueDepth || errorRate > unhealthyErrorRate:
		status = models.HealthUnhealthy
	case depth > degradedQueueDepth || errorRate > degradedErrorRate:
		status = models.HealthDegraded
	}

	return &models.Health{
		Status:     status,
		QueueDepth: depth,
		ErrorRate:  errorRate,
	}, nil
}
