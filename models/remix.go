package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Variant is one of the three remix artifact kinds.
type Variant string

const (
	VariantTitle     Variant = "title"
	VariantThumbnail Variant = "thumbnail"
	VariantScript    Variant = "script"
)

func (v Variant) Valid() bool {
	return v == VariantTitle || v == VariantThumbnail || v == VariantScript
}

type ThumbnailStyle string

const (
	ThumbnailBoldText  ThumbnailStyle = "bold-text-overlay"
	ThumbnailCinematic ThumbnailStyle = "cinematic-scene"
	ThumbnailReaction  ThumbnailStyle = "face-reaction"
)

var ThumbnailStyles = []ThumbnailStyle{ThumbnailBoldText, ThumbnailCinematic, ThumbnailReaction}

func (s ThumbnailStyle) Valid() bool {
	for _, st := range ThumbnailStyles {
		if st == s {
			return true
		}
	}
	return false
}

type RemixedTitle struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID    string    `gorm:"type:uuid;not null;index" json:"video_id"`
	Style      string    `gorm:"size:32;not null" json:"style"`
	Title      string    `gorm:"not null" json:"title"`
	Reasoning  string    `gorm:"type:text" json:"reasoning"`
	IsSelected bool      `gorm:"not null;default:false" json:"is_selected"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RemixedTitle) TableName() string {
	return "re_remixed_titles"
}

func (t *RemixedTitle) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type RemixedThumbnail struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID    string    `gorm:"type:uuid;not null;index" json:"video_id"`
	Style      string    `gorm:"size:32;not null" json:"style"`
	Prompt     string    `gorm:"type:text" json:"prompt"`
	Analysis   string    `gorm:"type:text" json:"analysis"`
	FilePath   string    `gorm:"not null" json:"file_path"`
	IsSelected bool      `gorm:"not null;default:false" json:"is_selected"`
	CreatedAt  time.Time `json:"created_at"`

	// Fresh signed URL for reads (computed field, not persisted)
	SignedURL string `gorm:"-" json:"signed_url,omitempty"`
}

func (RemixedThumbnail) TableName() string {
	return "re_remixed_thumbnails"
}

func (t *RemixedThumbnail) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type RemixedScript struct {
	ID                   string    `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID              string    `gorm:"type:uuid;not null;index" json:"video_id"`
	FullScript           string    `gorm:"type:text;not null" json:"full_script"`
	Tone                 *string   `json:"tone,omitempty"`
	TargetAudience       *string   `json:"target_audience,omitempty"`
	TotalDurationSeconds int       `json:"total_duration_seconds"`
	IsSelected           bool      `gorm:"not null;default:false" json:"is_selected"`
	CreatedAt            time.Time `json:"created_at"`

	Scenes []Scene `gorm:"foreignKey:ScriptID;constraint:OnDelete:CASCADE" json:"scenes,omitempty"`
}

func (RemixedScript) TableName() string {
	return "re_remixed_scripts"
}

func (s *RemixedScript) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type Scene struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	ScriptID         string    `gorm:"type:uuid;not null;uniqueIndex:idx_scene_script_number" json:"script_id"`
	SceneNumber      int       `gorm:"not null;uniqueIndex:idx_scene_script_number" json:"scene_number"`
	DialogueLine     string    `gorm:"type:text;not null" json:"dialogue_line"`
	DurationSeconds  int       `gorm:"not null" json:"duration_seconds"`
	BrollDescription string    `gorm:"type:text" json:"broll_description"`
	OnScreenText     *string   `json:"on_screen_text,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Scene) TableName() string {
	return "re_scenes"
}

func (s *Scene) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
