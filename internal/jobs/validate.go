package jobs

import (
	"fmt"
	"sort"

	"github.com/aidobe/assembly/internal/models"
	"github.com/google/uuid"
)

// overlapTolerance is how much two consecutive scenes may overlap on the
// timeline before the request is rejected. Matches the renderer's own
// continuity check so we never submit a timeline it would refuse.
const overlapTolerance = 0.001

// ValidateRequest checks a VideoAssemblyRequest before any record is created.
// Returns a *ValidationError naming the offending field, or nil.
func ValidateRequest(req *models.VideoAssemblyRequest) error {
	if req.JobID == "" {
		return &ValidationError{Field: "job_id", Message: "is required"}
	}
	if _, err := uuid.Parse(req.JobID); err != nil {
		return &ValidationError{Field: "job_id", Message: "must be a valid UUID"}
	}
	if req.ScriptID == "" {
		return &ValidationError{Field: "script_id", Message: "is required"}
	}
	if req.AudioMixID == "" {
		return &ValidationError{Field: "audio_mix_id", Message: "is required"}
	}
	if len(req.Scenes) == 0 {
		return &ValidationError{Field: "scenes", Message: "at least one scene is required"}
	}

	seen := make(map[int]bool, len(req.Scenes))
	for i, scene := range req.Scenes {
		field := fmt.Sprintf("scenes[%d]", i)

		if scene.Sequence <= 0 {
			return &ValidationError{Field: field + ".sequence", Message: "must be a positive integer"}
		}
		if seen[scene.Sequence] {
			return &ValidationError{Field: field + ".sequence", Message: fmt.Sprintf("duplicate sequence number %d", scene.Sequence)}
		}
		seen[scene.Sequence] = true

		if scene.StartTime < 0 {
			return &ValidationError{Field: field + ".start_time", Message: "must not be negative"}
		}
		if scene.EndTime <= scene.StartTime {
			return &ValidationError{Field: field + ".end_time", Message: "must be greater than start_time"}
		}
		if scene.AssetURL == "" {
			return &ValidationError{Field: field + ".asset_url", Message: "is required"}
		}
		switch scene.AssetType {
		case models.AssetTypeImage, models.AssetTypeVideo:
		default:
			return &ValidationError{Field: field + ".asset_type", Message: "must be \"image\" or \"video\""}
		}
	}

	// Consecutive scenes (in sequence order) must not overlap on the
	// timeline. Gaps are tolerated — the renderer fills them.
	ordered := orderedScenes(req.Scenes)
	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i].EndTime-ordered[i+1].StartTime > overlapTolerance {
			return &ValidationError{
				Field:   fmt.Sprintf("scenes[sequence=%d]", ordered[i+1].Sequence),
				Message: fmt.Sprintf("start_time %.3f overlaps previous scene ending at %.3f", ordered[i+1].StartTime, ordered[i].EndTime),
			}
		}
	}

	switch req.Output.Quality {
	case models.QualityDraft, models.QualityStandard, models.QualityHigh, models.QualityPremium:
	case "":
		return &ValidationError{Field: "output_config.quality", Message: "is required"}
	default:
		return &ValidationError{Field: "output_config.quality", Message: "must be one of: draft, standard, high, premium"}
	}

	if req.Output.FrameRate < 0 {
		return &ValidationError{Field: "output_config.frame_rate", Message: "must not be negative"}
	}

	return nil
}

// orderedScenes returns a copy of scenes sorted by sequence number.
func orderedScenes(scenes []models.Scene) []models.Scene {
	ordered := make([]models.Scene, len(scenes))
	copy(ordered, scenes)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})
	return ordered
}

// Summarize derives the pre-render assembly summary returned on enqueue:
// scene count, total timeline span, and how many scenes carry caption text.
func Summarize(req *models.VideoAssemblyRequest) models.AssemblySummary {
	ordered := orderedScenes(req.Scenes)

	summary := models.AssemblySummary{SceneCount: len(ordered)}
	if len(ordered) > 0 {
		summary.TimelineSeconds = ordered[len(ordered)-1].EndTime - ordered[0].StartTime
	}
	for _, scene := range ordered {
		if scene.Text != "" {
			summary.CaptionSegments++
		}
	}
	return summary
}
