// Package remix schedules remix jobs and runs the selection and approval gate.
package remix

import (
	"context"
	"errors"
	"fmt"

	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/drewmudry/remixengine-api/tasks"
	"go.uber.org/zap"
)

var (
	ErrStageLocked   = errors.New("remix is locked until the scrape stage is complete")
	ErrNoTranscript  = errors.New("video has no transcript")
	ErrInvalidStyle  = errors.New("unknown thumbnail style")
	ErrEnqueueFailed = errors.New("failed to enqueue job")
)

// enqueueFailedMessage is stored on jobs that never reached the queue.
const enqueueFailedMessage = "failed to enqueue job"

// Enqueuer is the queue submission surface. *queue.Client implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, taskType string, payload interface{}, opts ...queue.Option) (string, error)
}

type Service struct {
	store  *store.Store
	queue  Enqueuer
	logger *zap.Logger
}

func NewService(s *store.Store, q Enqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, queue: q, logger: logger}
}

// remixable loads a video whose remix stage is unlocked.
func (s *Service) remixable(ctx context.Context, videoID string) (*models.Video, error) {
	v, err := s.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v.Locked(models.StageRemix) {
		return nil, fmt.Errorf("video %s scrape is %s: %w", videoID, v.ScrapeStatus, ErrStageLocked)
	}
	return v, nil
}

// submit creates the job row first and then schedules it under the same id.
// A job the queue refused is marked error so it never looks pending.
func (s *Service) submit(ctx context.Context, v *models.Video, typ models.JobType, build func(tasks.Meta) any) (*models.Job, error) {
	job := &models.Job{Type: typ, VideoID: &v.ID, ProjectID: &v.ProjectID}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	payload := build(tasks.Meta{JobID: job.ID, VideoID: v.ID, ProjectID: v.ProjectID})
	if _, err := s.queue.Enqueue(ctx, tasks.QueueFor(typ), string(typ), payload, queue.WithJobID(job.ID)); err != nil {
		s.logger.Error("enqueue failed",
			zap.String("job_id", job.ID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		if failErr := s.store.FailJob(context.WithoutCancel(ctx), job.ID, enqueueFailedMessage, false); failErr != nil {
			s.logger.Warn("marking unscheduled job failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return job, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	s.logger.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("type", string(typ)),
		zap.String("video_id", v.ID),
	)
	return job, nil
}

// EnqueueTitle schedules one title job producing 8 variations.
func (s *Service) EnqueueTitle(ctx context.Context, videoID string) (*models.Job, error) {
	v, err := s.remixable(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return s.enqueueTitle(ctx, v)
}

func (s *Service) enqueueTitle(ctx context.Context, v *models.Video) (*models.Job, error) {
	return s.submit(ctx, v, models.JobTypeRemixTitle, func(m tasks.Meta) any {
		return &tasks.TitlePayload{Meta: m, Video: tasks.Snapshot(v)}
	})
}

// EnqueueThumbnails schedules one job per style; an empty style means all of them.
func (s *Service) EnqueueThumbnails(ctx context.Context, videoID string, style models.ThumbnailStyle, override string) ([]*models.Job, error) {
	styles := models.ThumbnailStyles
	if style != "" {
		if !style.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStyle, style)
		}
		styles = []models.ThumbnailStyle{style}
	}

	v, err := s.remixable(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return s.enqueueThumbnails(ctx, v, styles, override)
}

func (s *Service) enqueueThumbnails(ctx context.Context, v *models.Video, styles []models.ThumbnailStyle, override string) ([]*models.Job, error) {
	jobs := make([]*models.Job, 0, len(styles))
	for _, st := range styles {
		st := st
		job, err := s.submit(ctx, v, models.JobTypeRemixThumbnail, func(m tasks.Meta) any {
			return &tasks.ThumbnailPayload{
				Meta:                m,
				Video:               tasks.Snapshot(v),
				Style:               st,
				StylePromptOverride: override,
			}
		})
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// EnqueueScript refuses videos without a transcript before any job row exists.
func (s *Service) EnqueueScript(ctx context.Context, videoID string) (*models.Job, error) {
	v, err := s.remixable(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !v.HasTranscript() {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNoTranscript)
	}
	return s.enqueueScript(ctx, v)
}

func (s *Service) enqueueScript(ctx context.Context, v *models.Video) (*models.Job, error) {
	return s.submit(ctx, v, models.JobTypeRemixScript, func(m tasks.Meta) any {
		return &tasks.ScriptPayload{Meta: m, Video: tasks.Snapshot(v), Transcript: v.OriginalTranscript}
	})
}

// BatchResult lists the jobs scheduled for a project.
type BatchResult struct {
	Videos int           `json:"videos"`
	Jobs   []*models.Job `json:"jobs"`
}

// EnqueueBatch remixes every scraped video in a project: a title job, one
// thumbnail job per style, and a script job when there is a transcript.
func (s *Service) EnqueueBatch(ctx context.Context, projectID string) (*BatchResult, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	videos, err := s.store.ListVideos(ctx, projectID, models.StageComplete)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}

	result := &BatchResult{Videos: len(videos)}
	for i := range videos {
		v := &videos[i]

		job, err := s.enqueueTitle(ctx, v)
		if err != nil {
			return result, err
		}
		result.Jobs = append(result.Jobs, job)

		thumbs, err := s.enqueueThumbnails(ctx, v, models.ThumbnailStyles, "")
		result.Jobs = append(result.Jobs, thumbs...)
		if err != nil {
			return result, err
		}

		if !v.HasTranscript() {
			continue
		}
		job, err = s.enqueueScript(ctx, v)
		if err != nil {
			return result, err
		}
		result.Jobs = append(result.Jobs, job)
	}
	return result, nil
}

// Select records the user's pick for one variant.
func (s *Service) Select(ctx context.Context, videoID string, variant models.Variant, artifactID string, editedText *string) error {
	if !variant.Valid() {
		return fmt.Errorf("unknown variant %q", variant)
	}
	return s.store.Select(ctx, videoID, variant, artifactID, editedText)
}

func (s *Service) EditScene(ctx context.Context, sceneID, dialogue string) (*models.Scene, error) {
	return s.store.EditScene(ctx, sceneID, dialogue)
}

// Approve checks the gate. It returns *store.ApprovalError naming every unmet
// condition and persists nothing either way.
func (s *Service) Approve(ctx context.Context, videoID string) (store.Readiness, error) {
	r, err := s.store.ApprovalReadiness(ctx, videoID)
	if err != nil {
		return r, err
	}
	if !r.Ready() {
		return r, &store.ApprovalError{VideoID: videoID, Missing: r.Missing()}
	}
	return r, nil
}
