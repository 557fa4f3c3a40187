package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobType string

const (
	JobTypeScrape         JobType = "scrape"
	JobTypeRemixTitle     JobType = "remix_title"
	JobTypeRemixThumbnail JobType = "remix_thumbnail"
	JobTypeRemixScript    JobType = "remix_script"
	JobTypeGenerateAudio  JobType = "generate_audio"
	JobTypeGenerateAvatar JobType = "generate_avatar"
	JobTypeGenerateBroll  JobType = "generate_broll"
	JobTypeRender         JobType = "render"
)

type Job struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	Type         JobType        `gorm:"size:32;not null;index" json:"type"`
	Status       JobStatus      `gorm:"size:16;not null;default:'queued';index" json:"status"`
	Progress     int            `gorm:"not null;default:0" json:"progress"`
	Result       map[string]any `gorm:"type:jsonb;serializer:json" json:"result,omitempty"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int            `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int            `gorm:"not null;default:3" json:"max_retries"`
	VideoID      *string        `gorm:"type:uuid;index" json:"video_id,omitempty"`
	ProjectID    *string        `gorm:"type:uuid;index" json:"project_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func (Job) TableName() string {
	return "re_jobs"
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}
