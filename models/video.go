package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Video struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID string `gorm:"type:uuid;not null;index" json:"project_id"`

	YoutubeURL string `gorm:"not null" json:"youtube_url"`
	YoutubeID  string `gorm:"size:32;not null;index" json:"youtube_id"`

	OriginalTitle        string     `gorm:"size:255" json:"original_title"`
	OriginalDescription  string     `gorm:"type:text" json:"original_description"`
	OriginalThumbnailURL string     `json:"original_thumbnail_url"`
	OriginalTranscript   string     `gorm:"type:text" json:"original_transcript,omitempty"`
	ChannelName          string     `json:"channel_name"`
	ChannelID            string     `json:"channel_id"`
	DurationSeconds      int        `json:"duration_seconds"`
	ViewCount            int64      `json:"view_count"`
	PublishedAt          *time.Time `json:"published_at,omitempty"`
	TranscriptFilePath   string     `json:"transcript_file_path,omitempty"`
	VideoFilePath        string     `json:"video_file_path,omitempty"`

	ScrapeStatus     StageStatus `gorm:"size:16;not null;default:'pending'" json:"scrape_status"`
	RemixStatus      StageStatus `gorm:"size:16;not null;default:'pending'" json:"remix_status"`
	GenerationStatus StageStatus `gorm:"size:16;not null;default:'pending'" json:"generation_status"`
	AssemblyStatus   StageStatus `gorm:"size:16;not null;default:'pending'" json:"assembly_status"`
	ErrorMessage     *string     `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Video) TableName() string {
	return "re_videos"
}

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// HasTranscript reports whether the scrape stage captured any transcript text.
func (v *Video) HasTranscript() bool {
	return strings.TrimSpace(v.OriginalTranscript) != ""
}

// StageStatus returns the persisted status for a stage.
func (v *Video) StageStatus(s Stage) StageStatus {
	switch s {
	case StageScrape:
		return v.ScrapeStatus
	case StageRemix:
		return v.RemixStatus
	case StageGeneration:
		return v.GenerationStatus
	case StageAssembly:
		return v.AssemblyStatus
	}
	return ""
}

// Locked reports whether a stage is waiting on its predecessor. Not persisted.
func (v *Video) Locked(s Stage) bool {
	prev, ok := s.Predecessor()
	if !ok {
		return false
	}
	return v.StageStatus(prev) != StageComplete
}

// ReviewState is the UI-facing reading of a stage status.
type ReviewState string

const (
	ReviewGenerating ReviewState = "generating"
	ReviewFailed     ReviewState = "failed"
	ReviewComplete   ReviewState = "complete"
)

func ReviewStateOf(s StageStatus) ReviewState {
	switch s {
	case StageComplete:
		return ReviewComplete
	case StageError:
		return ReviewFailed
	default:
		return ReviewGenerating
	}
}

type StageView struct {
	Stage        Stage       `json:"stage"`
	Status       StageStatus `json:"status"`
	Locked       bool        `json:"locked"`
	Review       ReviewState `json:"review"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Stages derives the per-stage view shown by the review surface.
func (v *Video) Stages() []StageView {
	views := make([]StageView, 0, len(PipelineStages))
	for _, s := range PipelineStages {
		status := v.StageStatus(s)
		view := StageView{
			Stage:  s,
			Status: status,
			Locked: v.Locked(s),
			Review: ReviewStateOf(status),
		}
		if status == StageError && v.ErrorMessage != nil {
			view.ErrorMessage = *v.ErrorMessage
		}
		views = append(views, view)
	}
	return views
}
