package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drewmudry/remixengine-api/models"
	"gorm.io/gorm"
)

func (s *Store) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var v models.Video
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "video "+id)
	}
	return &v, nil
}

// FindVideoByYoutubeID returns ErrNotFound when the project has no such video.
func (s *Store) FindVideoByYoutubeID(ctx context.Context, projectID, youtubeID string) (*models.Video, error) {
	var v models.Video
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND youtube_id = ?", projectID, youtubeID).
		First(&v).Error
	if err != nil {
		return nil, notFound(err, "video "+youtubeID)
	}
	return &v, nil
}

// ListVideos lists a project's videos, optionally filtered by scrape status.
func (s *Store) ListVideos(ctx context.Context, projectID string, scrape models.StageStatus) ([]models.Video, error) {
	q := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if scrape != "" {
		q = q.Where("scrape_status = ?", scrape)
	}

	var videos []models.Video
	if err := q.Order("created_at asc").Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// CreateVideoWithJob inserts a video and the job that will scrape it in one transaction.
func (s *Store) CreateVideoWithJob(ctx context.Context, v *models.Video, j *models.Job) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(v).Error; err != nil {
			return fmt.Errorf("create video: %w", err)
		}
		j.VideoID = &v.ID
		j.ProjectID = &v.ProjectID
		if err := tx.Create(j).Error; err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		return nil
	})
}

// SetStageStatus moves one stage track, refusing transitions the state machine forbids.
// errMsg is stored on the video when moving to error and cleared when moving to processing.
func (s *Store) SetStageStatus(ctx context.Context, videoID string, stage models.Stage, to models.StageStatus, errMsg string) error {
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}

	updates := map[string]any{
		stage.Column(): to,
		"updated_at":   time.Now(),
	}
	switch to {
	case models.StageError:
		updates["error_message"] = errMsg
	case models.StageProcessing:
		updates["error_message"] = nil
	}

	res := s.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", videoID).
		Where(stage.Column()+" IN ?", models.StageSourcesFor(to)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.GetVideo(ctx, videoID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%s %q -> %q: %w", stage, current.StageStatus(stage), to, ErrInvalidTransition)
	}
	return nil
}

// ScrapeResult carries the metadata captured by the scrape stage.
type ScrapeResult struct {
	Title              string
	Description        string
	ThumbnailURL       string
	ChannelName        string
	ChannelID          string
	DurationSeconds    int
	ViewCount          int64
	PublishedAt        *time.Time
	Transcript         string
	TranscriptFilePath string
}

func (s *Store) SaveScrapeResult(ctx context.Context, videoID string, r ScrapeResult) error {
	res := s.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", videoID).
		Updates(map[string]any{
			"original_title":         r.Title,
			"original_description":   r.Description,
			"original_thumbnail_url": r.ThumbnailURL,
			"channel_name":           r.ChannelName,
			"channel_id":             r.ChannelID,
			"duration_seconds":       r.DurationSeconds,
			"view_count":             r.ViewCount,
			"published_at":           r.PublishedAt,
			"original_transcript":    r.Transcript,
			"transcript_file_path":   r.TranscriptFilePath,
			"updated_at":             time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	return nil
}

// DeleteVideo removes a video and everything derived from it. Jobs are kept
// as history with their video reference cleared.
func (s *Store) DeleteVideo(ctx context.Context, id string) (*models.Video, error) {
	var deleted models.Video
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&deleted, "id = ?", id).Error; err != nil {
			return notFound(err, "video "+id)
		}

		scripts := tx.Model(&models.RemixedScript{}).Select("id").Where("video_id = ?", id)
		if err := tx.Where("script_id IN (?)", scripts).Delete(&models.Scene{}).Error; err != nil {
			return fmt.Errorf("delete scenes: %w", err)
		}
		for _, m := range []any{&models.RemixedScript{}, &models.RemixedTitle{}, &models.RemixedThumbnail{}} {
			if err := tx.Where("video_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("delete artifacts: %w", err)
			}
		}
		if err := tx.Model(&models.Job{}).Where("video_id = ?", id).Update("video_id", nil).Error; err != nil {
			return fmt.Errorf("detach jobs: %w", err)
		}
		return tx.Delete(&models.Video{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// IsNotFound reports whether err came from a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
