package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Enums

type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusDispatchFailed JobStatus = "dispatch_failed"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
	JobStatusCancelled      JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are accepted for a job
// in this status. dispatch_failed is terminal: the job never reached the
// renderer, so no callbacks will ever arrive for it.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusDispatchFailed:
		return true
	}
	return false
}

type AssetType string

const (
	AssetTypeImage AssetType = "image"
	AssetTypeVideo AssetType = "video"
)

type QualityTier string

const (
	QualityDraft    QualityTier = "draft"
	QualityStandard QualityTier = "standard"
	QualityHigh     QualityTier = "high"
	QualityPremium  QualityTier = "premium"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Request model

// KenBurnsEffect describes a slow pan/zoom applied to a still image scene.
type KenBurnsEffect struct {
	Enabled   bool    `json:"enabled"`
	Direction string  `json:"direction,omitempty"` // "in", "out", "left", "right"
	Intensity float64 `json:"intensity,omitempty"` // zoom factor, e.g. 1.2
}

// TransitionEffect describes the transition into the next scene.
type TransitionEffect struct {
	Type     string  `json:"type"`               // "fade", "slide", "wipe", "none"
	Duration float64 `json:"duration,omitempty"` // seconds
}

// SceneEffects holds the optional per-scene effect settings.
type SceneEffects struct {
	KenBurns   *KenBurnsEffect   `json:"ken_burns,omitempty"`
	Transition *TransitionEffect `json:"transition,omitempty"`
	Overlay    *string           `json:"overlay,omitempty"` // overlay asset URL or label
}

// Scene is one entry in the assembly timeline. Sequence defines render order;
// StartTime/EndTime are seconds on the master audio timeline.
type Scene struct {
	SceneID   string        `json:"scene_id"`
	Sequence  int           `json:"sequence"`
	Text      string        `json:"text"`
	StartTime float64       `json:"start_time"`
	EndTime   float64       `json:"end_time"`
	AssetURL  string        `json:"asset_url"`
	AssetType AssetType     `json:"asset_type"`
	Effects   *SceneEffects `json:"effects,omitempty"`
}

// WatermarkConfig is an optional overlay stamped on the final video.
type WatermarkConfig struct {
	Text     string  `json:"text,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
	Position string  `json:"position,omitempty"` // "top-left", "bottom-right", ...
	Opacity  float64 `json:"opacity,omitempty"`
}

type OutputConfig struct {
	Resolution  string           `json:"resolution"`   // e.g. "1080x1920"
	AspectRatio string           `json:"aspect_ratio"` // "9:16", "16:9", "1:1"
	FrameRate   int              `json:"frame_rate"`   // fps, default 30
	Format      string           `json:"format"`       // "mp4"
	Quality     QualityTier      `json:"quality"`      // draft | standard | high | premium
	Watermark   *WatermarkConfig `json:"watermark,omitempty"`
}

// VideoAssemblyRequest is the client-facing assembly request. Immutable once
// accepted; the job record stores a serialized snapshot of it.
type VideoAssemblyRequest struct {
	JobID      string       `json:"job_id"`
	ScriptID   string       `json:"script_id"`
	AudioMixID string       `json:"audio_mix_id"`
	Scenes     []Scene      `json:"scenes"`
	Output     OutputConfig `json:"output_config"`
}

// Job record

// VideoJob is the mutable record driving the render lifecycle. Created on
// enqueue and mutated only through lifecycle transitions; never deleted
// automatically.
type VideoJob struct {
	ID              string     `json:"id"`
	Status          JobStatus  `json:"status"`
	Input           JSONB      `json:"input,omitempty"` // serialized VideoAssemblyRequest
	Progress        *int       `json:"progress,omitempty"`
	Stage           *string    `json:"stage,omitempty"`
	ProgressMessage *string    `json:"progress_message,omitempty"`
	OutputURL       *string    `json:"output_url,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	Metadata        JSONB      `json:"metadata,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Cancellation is returned by a successful cancel operation.
type Cancellation struct {
	JobID       string    `json:"job_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason"`
}

// Inbound webhook shapes (renderer → backend)

// ProgressCallback is the renderer's progress notification. Progress is 0-100.
type ProgressCallback struct {
	JobID        string  `json:"job_id"`
	Stage        string  `json:"stage"`
	Progress     int     `json:"progress"`
	Message      *string `json:"message,omitempty"`
	CurrentScene *int    `json:"current_scene,omitempty"`
	TotalScenes  *int    `json:"total_scenes,omitempty"`
}

// CompletionCallback is the renderer's terminal notification. Delivery is
// at-least-once; handlers must tolerate duplicates.
type CompletionCallback struct {
	JobID     string  `json:"job_id"`
	Status    string  `json:"status"` // "completed" or "failed"
	OutputURL *string `json:"output_url,omitempty"`
	Error     *string `json:"error,omitempty"`
	Metadata  JSONB   `json:"metadata,omitempty"`
}

// Aggregates

type QueueStats struct {
	Queued              int      `json:"queued"`
	DispatchFailed      int      `json:"dispatch_failed"`
	Processing          int      `json:"processing"`
	Completed           int      `json:"completed"`
	Failed              int      `json:"failed"`
	Cancelled           int      `json:"cancelled"`
	Total               int      `json:"total"`
	AvgProcessingTimeMs *float64 `json:"avg_processing_time_ms,omitempty"`
}

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type Health struct {
	Status     HealthStatus `json:"status"`
	QueueDepth int          `json:"queue_depth"`
	ErrorRate  float64      `json:"error_rate"`
}

// DTOs for API responses

// AssemblySummary is returned alongside the job on enqueue: what the timeline
// looks like before the renderer touches it.
type AssemblySummary struct {
	SceneCount      int     `json:"scene_count"`
	TimelineSeconds float64 `json:"timeline_seconds"`
	CaptionSegments int     `json:"caption_segments"`
	RenderJobID     string  `json:"render_job_id,omitempty"`
}

type EnqueueResponse struct {
	AssemblyJob *VideoJob       `json:"assembly_job"`
	Summary     AssemblySummary `json:"summary"`
}

type HistoryResponse struct {
	Jobs    []VideoJob `json:"jobs"`
	HasNext bool       `json:"has_next"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
}

type DownloadResponse struct {
	JobID       string `json:"job_id"`
	OutputURL   string `json:"output_url"`
	DownloadURL string `json:"download_url,omitempty"`
	Metadata    JSONB  `json:"metadata,omitempty"`
}
