package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/processing"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/drewmudry/remixengine-api/store/storetest"
	"github.com/drewmudry/remixengine-api/tasks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeText struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	onCall   func()
}

func (f *fakeText) GenerateJSON(context.Context, processing.StructuredRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.response, f.err
}

func (f *fakeText) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeVision struct{}

func (fakeVision) DescribeImage(context.Context, []byte, string, string) (string, error) {
	return "Warm colors, a face in close-up, excited mood.", nil
}

type fakeImages struct {
	images []processing.GeneratedImage
	err    error
}

func (f *fakeImages) GenerateImages(_ context.Context, req processing.ImageRequest) ([]processing.GeneratedImage, error) {
	if req.OnStatus != nil {
		req.OnStatus("fal.ai: IN_PROGRESS")
	}
	return f.images, f.err
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Upload(_ context.Context, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objects[path] = data
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) SignedURL(_ context.Context, path string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?expires=%d", path, int(expiry.Seconds())), nil
}

func (m *memBlobs) RemovePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *memBlobs) get(path string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	return data, m.types[path], ok
}

type fakeMetadata struct {
	meta *scraper.Metadata
	err  error
}

func (f *fakeMetadata) FetchMetadata(_ context.Context, youtubeID string) (*scraper.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := *f.meta
	m.YoutubeID = youtubeID
	return &m, nil
}

type fakeSubtitles struct {
	vtt []byte
	err error
}

func (f *fakeSubtitles) ExtractSubtitles(context.Context, string, string) ([]byte, error) {
	return f.vtt, f.err
}

type harness struct {
	proc   *Processor
	store  *store.Store
	text   *fakeText
	images *fakeImages
	blobs  *memBlobs
	meta   *fakeMetadata
	subs   *fakeSubtitles
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:  storetest.NewStore(t),
		text:   &fakeText{},
		images: &fakeImages{},
		blobs:  newMemBlobs(),
		meta: &fakeMetadata{meta: &scraper.Metadata{
			Title:           "How to cook rice",
			Description:     "Perfect rice every time",
			ChannelName:     "Kitchen",
			ChannelID:       "UC123",
			DurationSeconds: 540,
			ViewCount:       1200,
			ThumbnailURL:    "https://i.ytimg.com/vi/abc/maxresdefault.jpg",
		}},
		subs: &fakeSubtitles{},
	}

	gen := processing.NewGenerator(h.text, fakeVision{}, h.images, processing.DefaultTimeouts())
	logger := zap.NewNop()
	h.proc = NewProcessor(Deps{
		Store:       h.store,
		Generator:   gen,
		Blobs:       h.blobs,
		Supervisor:  NewSupervisor(4, 5*time.Second, logger),
		Logger:      logger,
		StorageRoot: "remix-engine",
		Metadata:    h.meta,
		Subtitles:   h.subs,
	})
	t.Cleanup(h.proc.Wait)
	return h
}

// queueJob creates the job row for v and the queue task that carries payload.
func (h *harness) queueJob(t *testing.T, v *models.Video, typ models.JobType, build func(meta tasks.Meta) any) (*models.Job, *queue.Task) {
	t.Helper()

	job := &models.Job{Type: typ, VideoID: &v.ID, ProjectID: &v.ProjectID}
	require.NoError(t, h.store.CreateJob(context.Background(), job))

	raw, err := json.Marshal(build(tasks.Meta{JobID: job.ID, VideoID: v.ID, ProjectID: v.ProjectID}))
	require.NoError(t, err)

	return job, &queue.Task{
		ID:          job.ID,
		Queue:       tasks.QueueFor(typ),
		Type:        string(typ),
		Payload:     raw,
		Attempt:     1,
		MaxAttempts: 3,
	}
}

func titlesJSON() string {
	items := make([]string, len(processing.TitleStyles))
	for i, s := range processing.TitleStyles {
		items[i] = fmt.Sprintf(`{"style":%q,"title":"Remixed title number %d","reasoning":"Because it hooks the viewer early"}`, s, i+1)
	}
	return `{"variations":[` + strings.Join(items, ",") + `]}`
}

const scriptResponse = `{
  "tone": "energetic",
  "target_audience": "",
  "scenes": [
    {"scene_number": 1, "dialogue_line": "Rice is easier than you think.", "duration_seconds": 20, "broll_description": "Steam rising from a pot", "on_screen_text": ""},
    {"scene_number": 2, "dialogue_line": "Rinse it until the water runs clear.", "duration_seconds": 30, "broll_description": "Hands rinsing rice in a bowl", "on_screen_text": "Rinse 3x"}
  ]
}`
