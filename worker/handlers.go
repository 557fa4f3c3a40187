package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/drewmudry/remixengine-api/internal/blob"
	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/processing"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/tasks"
	"go.uber.org/zap"
)

// HandleRemix processes tasks from tasks.QueueRemix.
func (p *Processor) HandleRemix(ctx context.Context, task *queue.Task) (err error) {
	ctx, span := startSpan(ctx, "worker.HandleRemix", task)
	defer func() { endSpan(span, err) }()

	payload, err := tasks.DecodeRemix(task.Type, task.Payload)
	if err != nil {
		p.logger.Error("undecodable remix task", zap.String("task_id", task.ID), zap.Error(err))
		if failErr := p.store.FailJob(ctx, task.ID, err.Error(), false); failErr != nil {
			p.logger.Warn("recording decode failure failed", zap.Error(failErr))
		}
		return queue.Permanent(err)
	}

	meta := payload.RemixMeta()
	r := &run{
		task:      task,
		jobID:     meta.JobID,
		videoID:   meta.VideoID,
		projectID: meta.ProjectID,
		jobType:   payload.JobType(),
		stage:     models.StageRemix,
		tracked:   payload.TracksStageStatus(),
	}
	r.log = p.logger.With(
		zap.String("job_id", r.jobID),
		zap.String("video_id", r.videoID),
		zap.String("type", string(r.jobType)),
		zap.Int("attempt", task.Attempt),
	)

	ok, err := p.begin(ctx, r)
	if err != nil || !ok {
		return err
	}
	r.log.Info("processing remix job")

	var result map[string]any
	switch pl := payload.(type) {
	case *tasks.TitlePayload:
		result, err = p.remixTitles(ctx, r, pl)
	case *tasks.ThumbnailPayload:
		result, err = p.remixThumbnail(ctx, r, pl)
	case *tasks.ScriptPayload:
		result, err = p.remixScript(ctx, r, pl)
	default:
		err = queue.Permanent(fmt.Errorf("%w: %T", tasks.ErrUnknownTaskType, payload))
	}

	return p.finish(ctx, r, result, err)
}

func (p *Processor) remixTitles(ctx context.Context, r *run, pl *tasks.TitlePayload) (map[string]any, error) {
	variations, err := p.generator.GenerateTitles(ctx, processing.TitleParams{
		OriginalTitle:   pl.Video.Title,
		Description:     pl.Video.Description,
		ChannelName:     pl.Video.ChannelName,
		DurationSeconds: pl.Video.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	p.progress(r, 70)

	titles := make([]models.RemixedTitle, len(variations))
	for i, v := range variations {
		titles[i] = models.RemixedTitle{
			Style:     v.Style,
			Title:     v.Title,
			Reasoning: v.Reasoning,
		}
	}

	if err := p.ensureActive(ctx, r); err != nil {
		return nil, err
	}
	if err := p.store.ReplaceTitles(ctx, r.videoID, titles); err != nil {
		return nil, fmt.Errorf("save titles: %w", err)
	}

	r.log.Info("saved remixed titles", zap.Int("count", len(titles)))
	return map[string]any{"titles": len(titles)}, nil
}

func (p *Processor) remixThumbnail(ctx context.Context, r *run, pl *tasks.ThumbnailPayload) (map[string]any, error) {
	onStatus := func(status string) {
		r.log.Debug("image provider status", zap.String("status", status))
		p.progress(r, 50)
	}

	thumb, err := p.generator.GenerateThumbnail(ctx, processing.ThumbnailParams{
		VideoTitle:          pl.Video.Title,
		VideoDescription:    pl.Video.Description,
		OriginalURL:         pl.Video.ThumbnailURL,
		Style:               pl.Style,
		StylePromptOverride: pl.StylePromptOverride,
	}, onStatus)
	if err != nil {
		return nil, err
	}
	p.progress(r, 70)

	// The provider URL expires, so the image is copied into our own bucket.
	if err := p.ensureActive(ctx, r); err != nil {
		return nil, err
	}
	dlCtx, cancel := context.WithTimeout(ctx, p.downloadTimeout)
	data, _, err := processing.Download(dlCtx, p.http, thumb.URL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("download generated thumbnail: %w", err)
	}

	objectPath := blob.ThumbnailPath(p.root, r.projectID, r.videoID, string(pl.Style))
	if err := p.blobs.Upload(ctx, objectPath, data, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("upload thumbnail: %w", err)
	}
	p.progress(r, 90)

	if err := p.ensureActive(ctx, r); err != nil {
		return nil, err
	}
	row := &models.RemixedThumbnail{
		VideoID:  r.videoID,
		Style:    string(pl.Style),
		Prompt:   thumb.Prompt,
		Analysis: thumb.Analysis,
		FilePath: objectPath,
	}
	if err := p.store.ReplaceThumbnail(ctx, row); err != nil {
		return nil, fmt.Errorf("save thumbnail: %w", err)
	}

	r.log.Info("saved remixed thumbnail", zap.String("style", row.Style), zap.String("path", objectPath))
	return map[string]any{
		"thumbnail_id": row.ID,
		"style":        row.Style,
		"file_path":    objectPath,
	}, nil
}

func (p *Processor) remixScript(ctx context.Context, r *run, pl *tasks.ScriptPayload) (map[string]any, error) {
	script, err := p.generator.GenerateScript(ctx, processing.ScriptParams{
		OriginalTitle:         pl.Video.Title,
		Transcript:            pl.Transcript,
		ChannelName:           pl.Video.ChannelName,
		TargetDurationSeconds: pl.Video.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	p.progress(r, 70)

	row, scenes := scriptRows(r.videoID, script)

	if err := p.ensureActive(ctx, r); err != nil {
		return nil, err
	}
	if err := p.store.ReplaceScript(ctx, row, scenes); err != nil {
		return nil, fmt.Errorf("save script: %w", err)
	}

	r.log.Info("saved remixed script", zap.String("script_id", row.ID), zap.Int("scenes", len(scenes)))
	return map[string]any{
		"script_id":              row.ID,
		"scenes":                 len(scenes),
		"total_duration_seconds": row.TotalDurationSeconds,
	}, nil
}

// scriptRows converts a validated script into its rows. Empty optional
// fields are stored as NULL.
func scriptRows(videoID string, s *processing.RemixedScript) (*models.RemixedScript, []models.Scene) {
	lines := make([]string, len(s.Scenes))
	scenes := make([]models.Scene, len(s.Scenes))
	for i, sc := range s.Scenes {
		lines[i] = sc.DialogueLine
		scenes[i] = models.Scene{
			SceneNumber:      sc.SceneNumber,
			DialogueLine:     sc.DialogueLine,
			DurationSeconds:  sc.DurationSeconds,
			BrollDescription: sc.BrollDescription,
			OnScreenText:     optional(sc.OnScreenText),
		}
	}

	row := &models.RemixedScript{
		VideoID:              videoID,
		FullScript:           strings.Join(lines, "\n\n"),
		Tone:                 optional(s.Tone),
		TargetAudience:       optional(s.TargetAudience),
		TotalDurationSeconds: s.TotalDuration(),
	}
	return row, scenes
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
