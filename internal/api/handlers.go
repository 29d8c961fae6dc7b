package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/aidobe/assembly/internal/jobs"
	"github.com/aidobe/assembly/internal/models"
	"github.com/aidobe/assembly/internal/storage"
	"github.com/go-chi/chi/v5"
)

const signedURLExpirySeconds = 3600

type Handler struct {
	queue     *jobs.Queue
	lifecycle *jobs.Lifecycle
	storage   *storage.Storage
}

func NewHandler(queue *jobs.Queue, lifecycle *jobs.Lifecycle, stor *storage.Storage) *Handler {
	return &Handler{
		queue:     queue,
		lifecycle: lifecycle,
		storage:   stor,
	}
}

// Assemble handles POST /v1/assemble
func (h *Handler) Assemble(w http.ResponseWriter, r *http.Request) {
	var req models.VideoAssemblyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.queue.Enqueue(r.Context(), &req)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, resp)
}

// GetProgress handles GET /v1/progress/{jobId}
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.queue.GetStatus(r.Context(), jobID)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// GetDownload handles GET /v1/download/{jobId}
func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.queue.GetStatus(r.Context(), jobID)
	if err != nil {
		respondForError(w, err)
		return
	}

	if job.Status != models.JobStatusCompleted || job.OutputURL == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	resp := models.DownloadResponse{
		JobID:     job.ID,
		OutputURL: *job.OutputURL,
		Metadata:  job.Metadata,
	}

	// Signed URL for private buckets; the public output URL still works
	// when signing fails, so this is best effort.
	if signed, err := h.storage.GetSignedURL(r.Context(), h.storage.OutputKey(job.ID), signedURLExpirySeconds); err == nil {
		resp.DownloadURL = signed
	} else {
		log.Printf("[API] Failed to sign download URL for job %s: %v", job.ID, err)
	}

	respondJSON(w, http.StatusOK, resp)
}

// CancelJob handles DELETE /v1/cancel/{jobId}
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	cancellation, err := h.queue.Cancel(r.Context(), jobID, "cancelled by client")
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cancellation)
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	resp, err := h.queue.History(r.Context(), limit, offset)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.queue.Health(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to compute health")
		return
	}

	respondJSON(w, http.StatusOK, health)
}

// Webhook ingress — both endpoints sit behind the signature middleware, so a
// decoded body here has already been authenticated.

// ProgressWebhook handles POST /webhooks/render/progress
func (h *Handler) ProgressWebhook(w http.ResponseWriter, r *http.Request) {
	var cb models.ProgressCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid callback body")
		return
	}
	if cb.JobID == "" {
		respondError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	if err := h.lifecycle.ApplyProgress(r.Context(), &cb); err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CompletionWebhook handles POST /webhooks/render/complete
func (h *Handler) CompletionWebhook(w http.ResponseWriter, r *http.Request) {
	var cb models.CompletionCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid callback body")
		return
	}
	if cb.JobID == "" {
		respondError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	if err := h.lifecycle.ApplyCompletion(r.Context(), &cb); err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondForError maps the orchestration error taxonomy to HTTP statuses.
// Retry-ability differs per kind, so no catch-all may mask which one occurred.
func respondForError(w http.ResponseWriter, err error) {
	var (
		validationErr *jobs.ValidationError
		duplicateErr  *jobs.DuplicateJobError
		notFoundErr   *jobs.NotFoundError
		transitionErr *jobs.InvalidTransitionError
		configErr     *jobs.ConfigurationError
		dispatchErr   *jobs.DispatchFailedError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "Validation failed",
			"field":  validationErr.Field,
			"detail": validationErr.Message,
		})
	case errors.As(err, &duplicateErr):
		respondError(w, http.StatusConflict, duplicateErr.Error())
	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &transitionErr):
		respondError(w, http.StatusBadRequest, transitionErr.Error())
	case errors.As(err, &configErr):
		respondError(w, http.StatusInternalServerError, configErr.Error())
	case errors.As(err, &dispatchErr):
		respondError(w, http.StatusInternalServerError, dispatchErr.Error())
	default:
		log.Printf("[API] Internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
