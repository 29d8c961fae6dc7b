package jobs_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aidobe/assembly/internal/jobs"
	"github.com/aidobe/assembly/internal/memstore"
	"github.com/aidobe/assembly/internal/models"
	"github.com/aidobe/assembly/internal/storage"
	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

// testRequest builds a valid assembly request with sceneCount contiguous
// 5-second scenes.
func testRequest(sceneCount int) *models.VideoAssemblyRequest {
	scenes := make([]models.Scene, sceneCount)
	for i := range scenes {
		scenes[i] = models.Scene{
			SceneID:   fmt.Sprintf("scene-%d", i+1),
			Sequence:  i + 1,
			Text:      fmt.Sprintf("Scene %d narration", i+1),
			StartTime: float64(i) * 5,
			EndTime:   float64(i+1) * 5,
			AssetURL:  fmt.Sprintf("https://assets.test/scene-%d.png", i+1),
			AssetType: models.AssetTypeImage,
		}
	}

	return &models.VideoAssemblyRequest{
		JobID:      uuid.NewString(),
		ScriptID:   "script-1",
		AudioMixID: "mix-1",
		Scenes:     scenes,
		Output: models.OutputConfig{
			Resolution:  "1080x1920",
			AspectRatio: "9:16",
			FrameRate:   30,
			Format:      "mp4",
			Quality:     models.QualityStandard,
		},
	}
}

func testStorage() *storage.Storage {
	return storage.New("https://storage.test", "service-key", "test-videos")
}

// fakeRenderer is an httptest renderer that acks every submission. Closed
// automatically when the test finishes.
func fakeRenderer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"render_job_id": "render-1"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testDispatcher(endpoint string) *jobs.Dispatcher {
	return jobs.NewDispatcher(jobs.DispatcherConfig{
		Endpoint:       endpoint,
		CallbackURL:    "https://api.test/webhooks/render/complete",
		RetryBaseDelay: time.Millisecond,
	}, testStorage())
}

// newTestQueue wires a queue facade against an in-memory store and a fake
// renderer.
func newTestQueue(t *testing.T) (*jobs.Queue, *memstore.Store, *httptest.Server) {
	t.Helper()

	store := memstore.New()
	renderer := fakeRenderer(t)

	lifecycle := jobs.NewLifecycle(store)
	dispatcher := testDispatcher(renderer.URL)

	return jobs.NewQueue(store, lifecycle, dispatcher, nil), store, renderer
}
