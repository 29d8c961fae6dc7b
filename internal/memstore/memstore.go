// Package memstore is an in-memory jobs.JobStore used in development mode
// when no DATABASE_URL is configured, and by tests. It mirrors the guard
// semantics of the Postgres store: conditional transitions report whether
// they applied instead of overwriting terminal states.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/aidobe/assembly/internal/jobs"
	"github.com/aidobe/assembly/internal/models"
)

type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*models.VideoJob
	order []string // insertion order; ListJobs walks it backwards
}

func New() *Store {
	return &Store{jobs: make(map[string]*models.VideoJob)}
}

func (s *Store) CreateJob(ctx context.Context, job *models.VideoJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return &jobs.DuplicateJobError{JobID: job.ID}
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := *job
	s.jobs[job.ID] = &stored
	s.order = append(s.order, job.ID)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.VideoJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, &jobs.NotFoundError{JobID: id}
	}

	clone := cloneJob(job)
	return &clone, nil
}

// cloneJob copies a record including its JSONB maps, so callers mutating a
// returned projection cannot reach stored state. Matches the row-copy
// isolation of the SQL store.
func cloneJob(job *models.VideoJob) models.VideoJob {
	clone := *job
	clone.Input = cloneJSONB(job.Input)
	clone.Metadata = cloneJSONB(job.Metadata)
	return clone
}

func cloneJSONB(m models.JSONB) models.JSONB {
	if m == nil {
		return nil
	}
	out := make(models.JSONB, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) ApplyProgress(ctx context.Context, id string, stage string, progress int, message *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusProcessing {
		return false, nil
	}

	job.Status = models.JobStatusProcessing
	job.Stage = &stage
	if job.Progress == nil || progress > *job.Progress {
		job.Progress = &progress
	}
	if message != nil {
		job.ProgressMessage = message
	}
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) ApplyCompletion(ctx context.Context, id string, status models.JobStatus, outputURL, errorMessage *string, metadata models.JSONB) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusProcessing {
		return false, nil
	}

	now := time.Now()
	job.Status = status
	if outputURL != nil {
		job.OutputURL = outputURL
	}
	if errorMessage != nil {
		job.ErrorMessage = errorMessage
	}
	if metadata != nil {
		job.Metadata = metadata
	}
	job.UpdatedAt = now
	job.CompletedAt = &now
	return true, nil
}

func (s *Store) MarkCancelled(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	if job.Status != models.JobStatusQueued && job.Status != models.JobStatusProcessing {
		return false, nil
	}

	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.UpdatedAt = now
	job.CompletedAt = &now
	return true, nil
}

func (s *Store) MarkDispatchFailed(ctx context.Context, id string, errorMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	if job.Status != models.JobStatusQueued {
		return false, nil
	}

	now := time.Now()
	job.Status = models.JobStatusDispatchFailed
	job.ErrorMessage = &errorMessage
	job.UpdatedAt = now
	job.CompletedAt = &now
	return true, nil
}

func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]models.VideoJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []models.VideoJob
	// Newest first: walk insertion order backwards.
	for i := len(s.order) - 1 - offset; i >= 0 && len(list) < limit; i-- {
		list = append(list, cloneJob(s.jobs[s.order[i]]))
	}

	return list, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *Store) AvgProcessingTimeMs(ctx context.Context) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum float64
	var n int
	for _, job := range s.jobs {
		if job.Status == models.JobStatusCompleted && job.CompletedAt != nil {
			sum += float64(job.CompletedAt.Sub(job.CreatedAt).Milliseconds())
			n++
		}
	}

	if n == 0 {
		return nil, nil
	}
	avg := sum / float64(n)
	return &avg, nil
}
