package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/drewmudry/remixengine-api/models"
	"gorm.io/gorm"
)

func (s *Store) CreateJob(ctx context.Context, j *models.Job) error {
	if j.Status == "" {
		j.Status = models.JobQueued
	}
	return s.db.WithContext(ctx).Create(j).Error
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "job "+id)
	}
	return &j, nil
}

func (s *Store) ListJobsForVideo(ctx context.Context, videoID string) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at desc").
		Find(&jobs).Error
	return jobs, err
}

// transitionJob applies updates only when the job is in a state that may move to "to".
// It reports whether a row changed.
func (s *Store) transitionJob(ctx context.Context, id string, to models.JobStatus, updates map[string]any) (bool, error) {
	updates["status"] = to
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id, models.JobSourcesFor(to)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkJobProcessing records the start of an attempt (attempt is 1-based).
func (s *Store) MarkJobProcessing(ctx context.Context, id string, attempt int) error {
	retries := attempt - 1
	if retries < 0 {
		retries = 0
	}
	_, err := s.transitionJob(ctx, id, models.JobProcessing, map[string]any{
		"started_at":  time.Now(),
		"retry_count": retries,
	})
	return err
}

// UpdateJobProgress never lowers progress and only applies while processing.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	progress = clampProgress(progress)
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ? AND progress <= ?", id, models.JobProcessing, progress).
		Update("progress", progress).Error
}

// CompleteJob forces progress to 100. It is a no-op unless the job is processing.
func (s *Store) CompleteJob(ctx context.Context, id string, result map[string]any) error {
	updates := map[string]any{
		"progress":      100,
		"completed_at":  time.Now(),
		"error_message": nil,
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		updates["result"] = string(raw)
	}
	_, err := s.transitionJob(ctx, id, models.JobComplete, updates)
	return err
}

// FailJob records a failed attempt. With retrying the job goes back to queued;
// otherwise it becomes a terminal error.
func (s *Store) FailJob(ctx context.Context, id, message string, retrying bool) error {
	if retrying {
		_, err := s.transitionJob(ctx, id, models.JobQueued, map[string]any{
			"error_message": message,
		})
		return err
	}
	_, err := s.transitionJob(ctx, id, models.JobError, map[string]any{
		"error_message": message,
		"completed_at":  time.Now(),
	})
	return err
}

// IsJobCancelled re-reads the job status; workers call it before each persistence write.
func (s *Store) IsJobCancelled(ctx context.Context, id string) (bool, error) {
	var job models.Job
	err := s.db.WithContext(ctx).Select("id", "status").Take(&job, "id = ?", id).Error
	if err != nil {
		return false, notFound(err, "job "+id)
	}
	return job.Status == models.JobCancelled, nil
}

// cancelledStage maps a job type to the stage its cancellation fails, with the stored message.
func cancelledStage(t models.JobType) (models.Stage, string, bool) {
	switch t {
	case models.JobTypeScrape:
		return models.StageScrape, "Scrape was cancelled", true
	case models.JobTypeRemixTitle, models.JobTypeRemixScript:
		return models.StageRemix, "Remix was cancelled", true
	}
	return "", "", false
}

// CancelJob marks a queued or processing job cancelled and fails the stage it drives.
func (s *Store) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			return notFound(err, "job "+id)
		}
		if job.Status.Terminal() {
			return fmt.Errorf("job %s is %s: %w", id, job.Status, ErrJobTerminal)
		}

		now := time.Now()
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status IN ?", id, models.JobSourcesFor(models.JobCancelled)).
			Updates(map[string]any{"status": models.JobCancelled, "completed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %s: %w", id, ErrJobTerminal)
		}
		job.Status = models.JobCancelled
		job.CompletedAt = &now

		stage, msg, ok := cancelledStage(job.Type)
		if !ok || job.VideoID == nil {
			return nil
		}
		return tx.Model(&models.Video{}).
			Where("id = ?", *job.VideoID).
			Where(stage.Column()+" IN ?", models.StageSourcesFor(models.StageError)).
			Updates(map[string]any{
				stage.Column():  models.StageError,
				"error_message": msg,
				"updated_at":    now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
