package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/drewmudry/remixengine-api/models"
)

// ---
// QUEUE DEFINITIONS
// ---
const (
	// QueueScrape holds ingestion jobs: metadata + transcript.
	QueueScrape = "scrape"

	// QueueRemix holds title, thumbnail and script generation.
	QueueRemix = "remix"

	// QueueGenerate and QueueRender are reserved for the later stages.
	// Jobs of those types are recorded but no worker consumes them yet.
	QueueGenerate = "generate"
	QueueRender   = "render"
)

// QueueFor returns the queue a job type is scheduled on.
func QueueFor(t models.JobType) string {
	switch t {
	case models.JobTypeScrape:
		return QueueScrape
	case models.JobTypeRemixTitle, models.JobTypeRemixThumbnail, models.JobTypeRemixScript:
		return QueueRemix
	case models.JobTypeRender:
		return QueueRender
	default:
		return QueueGenerate
	}
}

var ErrUnknownTaskType = errors.New("unknown task type")

// ---
// TASK PAYLOADS
// ---

// Meta identifies the job row and the records it works on.
type Meta struct {
	JobID     string `json:"job_id"`
	VideoID   string `json:"video_id"`
	ProjectID string `json:"project_id"`
}

func (m Meta) RemixMeta() Meta { return m }

// VideoSnapshot is the denormalized copy of a video taken at enqueue time,
// so workers don't need to read the video back before calling a generator.
type VideoSnapshot struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	ChannelName     string `json:"channel_name,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
}

func Snapshot(v *models.Video) VideoSnapshot {
	return VideoSnapshot{
		Title:           v.OriginalTitle,
		Description:     v.OriginalDescription,
		ChannelName:     v.ChannelName,
		DurationSeconds: v.DurationSeconds,
		ThumbnailURL:    v.OriginalThumbnailURL,
	}
}

// RemixPayload is the closed set of remix job payloads. The worker switches
// over the concrete types, so a new variant has to be added there too.
type RemixPayload interface {
	RemixMeta() Meta
	JobType() models.JobType
	// TracksStageStatus reports whether the job drives video.remix_status.
	TracksStageStatus() bool
	isRemixPayload()
}

// TitlePayload is the payload for remix_title jobs.
type TitlePayload struct {
	Meta
	Video VideoSnapshot `json:"video"`
}

// ThumbnailPayload is the payload for remix_thumbnail jobs, one per style.
type ThumbnailPayload struct {
	Meta
	Video               VideoSnapshot         `json:"video"`
	Style               models.ThumbnailStyle `json:"style"`
	StylePromptOverride string                `json:"style_prompt_override,omitempty"`
}

// ScriptPayload is the payload for remix_script jobs.
type ScriptPayload struct {
	Meta
	Video      VideoSnapshot `json:"video"`
	Transcript string        `json:"transcript"`
}

func (*TitlePayload) JobType() models.JobType     { return models.JobTypeRemixTitle }
func (*ThumbnailPayload) JobType() models.JobType { return models.JobTypeRemixThumbnail }
func (*ScriptPayload) JobType() models.JobType    { return models.JobTypeRemixScript }

func (*TitlePayload) TracksStageStatus() bool { return true }

// Three thumbnail jobs run per video; one failed style must not fail the stage.
func (*ThumbnailPayload) TracksStageStatus() bool { return false }
func (*ScriptPayload) TracksStageStatus() bool    { return true }

func (*TitlePayload) isRemixPayload()     {}
func (*ThumbnailPayload) isRemixPayload() {}
func (*ScriptPayload) isRemixPayload()    {}

// ScrapePayload is the payload for QueueScrape.
type ScrapePayload struct {
	Meta
	YoutubeURL string `json:"youtube_url"`
	YoutubeID  string `json:"youtube_id"`
}

// ---
// HELPER FUNCTIONS
// ---

// DecodeRemix turns a queued task back into its payload variant.
func DecodeRemix(taskType string, raw []byte) (RemixPayload, error) {
	var p RemixPayload
	switch models.JobType(taskType) {
	case models.JobTypeRemixTitle:
		p = &TitlePayload{}
	case models.JobTypeRemixThumbnail:
		p = &ThumbnailPayload{}
	case models.JobTypeRemixScript:
		p = &ScriptPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", taskType, err)
	}
	if err := validateMeta(p.RemixMeta()); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", taskType, err)
	}
	if tp, ok := p.(*ThumbnailPayload); ok && !tp.Style.Valid() {
		return nil, fmt.Errorf("decode %s payload: unknown thumbnail style %q", taskType, tp.Style)
	}
	return p, nil
}

// DecodeScrape decodes a QueueScrape payload.
func DecodeScrape(raw []byte) (*ScrapePayload, error) {
	var p ScrapePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode scrape payload: %w", err)
	}
	if err := validateMeta(p.Meta); err != nil {
		return nil, fmt.Errorf("decode scrape payload: %w", err)
	}
	if p.YoutubeURL == "" {
		return nil, errors.New("decode scrape payload: missing youtube_url")
	}
	return &p, nil
}

func validateMeta(m Meta) error {
	if m.JobID == "" {
		return errors.New("missing job_id")
	}
	if m.VideoID == "" {
		return errors.New("missing video_id")
	}
	return nil
}

// Marshal creates a JSON payload for a task.
func Marshal(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
