package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/aidobe/assembly/internal/models"
	"github.com/aidobe/assembly/internal/storage"
)

// ---------------------------------------------------------------------------
// Render Dispatcher
// Transforms an accepted VideoAssemblyRequest into the external renderer's
// wire format and submits it with bounded retry. The renderer acks with a
// job identifier and later calls back on the progress/completion webhooks.
// ---------------------------------------------------------------------------

const (
	// Retry budget for renderer submission: 3 attempts total with
	// exponential backoff (1s, 2s, 4s) — roughly 7s worst case.
	maxDispatchAttempts = 3
	dispatchBaseDelay   = 1 * time.Second

	submitTimeout = 30 * time.Second // per-attempt HTTP timeout
)

// bitrateByQuality maps the requested quality tier to the renderer's output
// bitrate setting.
var bitrateByQuality = map[models.QualityTier]string{
	models.QualityDraft:    "1000k",
	models.QualityStandard: "2000k",
	models.QualityHigh:     "4000k",
	models.QualityPremium:  "8000k",
}

// DispatcherConfig holds the renderer connection settings. Injected at
// construction — the dispatcher reads no ambient environment.
type DispatcherConfig struct {
	Endpoint    string // renderer submission endpoint, e.g. https://render.example.com/process
	APIKey      string // bearer token for the renderer (empty = unauthenticated renderer)
	CallbackURL string // absolute URL the renderer posts completion callbacks to

	// RetryBaseDelay overrides the first retry delay (default 1s). Tests
	// shrink it; production leaves it alone.
	RetryBaseDelay time.Duration
}

type Dispatcher struct {
	cfg        DispatcherConfig
	storage    *storage.Storage
	httpClient *http.Client
	baseDelay  time.Duration
}

func NewDispatcher(cfg DispatcherConfig, stor *storage.Storage) *Dispatcher {
	baseDelay := cfg.RetryBaseDelay
	if baseDelay == 0 {
		baseDelay = dispatchBaseDelay
	}

	return &Dispatcher{
		cfg:     cfg,
		storage: stor,
		httpClient: &http.Client{
			Timeout: submitTimeout,
		},
		baseDelay: baseDelay,
	}
}

// ---------------------------------------------------------------------------
// Renderer wire format
// ---------------------------------------------------------------------------

// DispatchEnvelope is the renderer-facing request shape. It is recomputed
// from the stored VideoAssemblyRequest on every dispatch attempt and never
// persisted.
type DispatchEnvelope struct {
	JobID          string          `json:"job_id"`
	AudioFileURL   string          `json:"audio_file_url"`
	VideoAssets    []VideoAsset    `json:"video_assets"`
	ScriptSegments []ScriptSegment `json:"script_segments"`
	EffectsConfig  EffectsConfig   `json:"effects_config"`
	CaptionsConfig CaptionsConfig  `json:"captions_config"`
	OutputConfig   RenderOutput    `json:"output_config"`
	CallbackURL    string          `json:"callback_url"`
	StorageConfig  StorageDest     `json:"storage_config"`
}

// VideoAsset is one timeline entry's asset descriptor, in render order.
type VideoAsset struct {
	SceneID   string           `json:"scene_id"`
	AssetURL  string           `json:"asset_url"`
	AssetType models.AssetType `json:"asset_type"`
	Sequence  int              `json:"sequence"`
}

// ScriptSegment carries caption text with its timeline window.
type ScriptSegment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// EffectsConfig is the renderer's single global effects block.
type EffectsConfig struct {
	KenBurns           bool    `json:"ken_burns"`
	KenBurnsDirection  string  `json:"ken_burns_direction,omitempty"`
	KenBurnsIntensity  float64 `json:"ken_burns_intensity,omitempty"`
	Transition         string  `json:"transition,omitempty"`
	TransitionDuration float64 `json:"transition_duration,omitempty"`
}

type CaptionsConfig struct {
	Enabled bool `json:"enabled"`
}

type RenderOutput struct {
	Resolution  string                  `json:"resolution"`
	AspectRatio string                  `json:"aspect_ratio"`
	FPS         int                     `json:"fps"`
	Format      string                  `json:"format"`
	Bitrate     string                  `json:"bitrate"`
	Watermark   *models.WatermarkConfig `json:"watermark,omitempty"`
}

type StorageDest struct {
	OutputBucket string `json:"output_bucket"`
	OutputKey    string `json:"output_key"`
}

// submitResponse is the renderer's ack for an accepted submission.
type submitResponse struct {
	RenderJobID string `json:"render_job_id"`
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// Dispatch submits the request to the renderer and returns the renderer's
// acknowledged job identifier.
//
// A missing endpoint or callback URL fails fast with *ConfigurationError —
// a config problem is never retried. Transport errors and non-2xx responses
// are retried up to the fixed budget; exhausting it returns
// *DispatchFailedError wrapping the last underlying error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.VideoAssemblyRequest) (string, error) {
	if d.cfg.Endpoint == "" {
		return "", &ConfigurationError{Setting: "RENDERER_URL"}
	}
	if d.cfg.CallbackURL == "" {
		return "", &ConfigurationError{Setting: "RENDERER_CALLBACK_URL"}
	}

	envelope := d.BuildEnvelope(req)

	body, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dispatch envelope: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxDispatchAttempts; attempt++ {
		renderJobID, err := d.submit(ctx, body)
		if err == nil {
			if attempt > 0 {
				log.Printf("[Dispatch] Job %s submitted on attempt %d (render_job_id=%s)", req.JobID, attempt+1, renderJobID)
			}
			return renderJobID, nil
		}

		lastErr = err
		delay := d.baseDelay * (1 << attempt)
		log.Printf("[Dispatch] Attempt %d/%d for job %s failed: %v (waiting %v)", attempt+1, maxDispatchAttempts, req.JobID, err, delay)

		select {
		case <-ctx.Done():
			return "", &DispatchFailedError{Attempts: attempt + 1, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	return "", &DispatchFailedError{Attempts: maxDispatchAttempts, Err: lastErr}
}

// BuildEnvelope flattens the scene timeline into the renderer wire format.
//
// The renderer accepts one global effects block, not per-scene settings, so
// the first enabled Ken Burns and the first transition found in sequence
// order are forwarded for the whole job. Scenes carrying their own effect
// settings beyond the first are rendered with the global block.
// TODO: forward per-scene effects once the renderer wire format carries them.
func (d *Dispatcher) BuildEnvelope(req *models.VideoAssemblyRequest) *DispatchEnvelope {
	ordered := orderedScenes(req.Scenes)

	assets := make([]VideoAsset, 0, len(ordered))
	segments := make([]ScriptSegment, 0, len(ordered))
	var effects EffectsConfig
	captions := false

	for _, scene := range ordered {
		assets = append(assets, VideoAsset{
			SceneID:   scene.SceneID,
			AssetURL:  scene.AssetURL,
			AssetType: scene.AssetType,
			Sequence:  scene.Sequence,
		})

		if scene.Text != "" {
			captions = true
			segments = append(segments, ScriptSegment{
				Text:      scene.Text,
				StartTime: scene.StartTime,
				EndTime:   scene.EndTime,
			})
		}

		if scene.Effects == nil {
			continue
		}
		if kb := scene.Effects.KenBurns; kb != nil && kb.Enabled && !effects.KenBurns {
			effects.KenBurns = true
			effects.KenBurnsDirection = kb.Direction
			effects.KenBurnsIntensity = kb.Intensity
		}
		if tr := scene.Effects.Transition; tr != nil && tr.Type != "" && effects.Transition == "" {
			effects.Transition = tr.Type
			effects.TransitionDuration = tr.Duration
		}
	}

	bitrate, ok := bitrateByQuality[req.Output.Quality]
	if !ok {
		bitrate = bitrateByQuality[models.QualityStandard]
	}

	fps := req.Output.FrameRate
	if fps == 0 {
		fps = 30
	}

	format := req.Output.Format
	if format == "" {
		format = "mp4"
	}

	return &DispatchEnvelope{
		JobID:          req.JobID,
		AudioFileURL:   d.storage.AudioMixURL(req.AudioMixID),
		VideoAssets:    assets,
		ScriptSegments: segments,
		EffectsConfig:  effects,
		CaptionsConfig: CaptionsConfig{Enabled: captions},
		OutputConfig: RenderOutput{
			Resolution:  req.Output.Resolution,
			AspectRatio: req.Output.AspectRatio,
			FPS:         fps,
			Format:      format,
			Bitrate:     bitrate,
			Watermark:   req.Output.Watermark,
		},
		CallbackURL: d.cfg.CallbackURL,
		StorageConfig: StorageDest{
			OutputBucket: d.storage.Bucket,
			OutputKey:    d.storage.OutputKey(req.JobID),
		},
	}
}

// submit performs one POST to the renderer's submission endpoint.
func (d *Dispatcher) submit(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var ack submitResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return "", fmt.Errorf("failed to parse submission response: %w (body: %s)", err, string(respBody))
	}

	if ack.RenderJobID == "" {
		return "", fmt.Errorf("no render_job_id in submission response: %s", string(respBody))
	}

	return ack.RenderJobID, nil
}
