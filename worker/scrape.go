package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/drewmudry/remixengine-api/internal/blob"
	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/drewmudry/remixengine-api/tasks"
	"go.uber.org/zap"
)

// HandleScrape processes tasks from tasks.QueueScrape: metadata first, then
// captions, which are optional.
func (p *Processor) HandleScrape(ctx context.Context, task *queue.Task) (err error) {
	ctx, span := startSpan(ctx, "worker.HandleScrape", task)
	defer func() { endSpan(span, err) }()

	payload, err := tasks.DecodeScrape(task.Payload)
	if err != nil {
		p.logger.Error("undecodable scrape task", zap.String("task_id", task.ID), zap.Error(err))
		if failErr := p.store.FailJob(ctx, task.ID, err.Error(), false); failErr != nil {
			p.logger.Warn("recording decode failure failed", zap.Error(failErr))
		}
		return queue.Permanent(err)
	}

	r := &run{
		task:      task,
		jobID:     payload.JobID,
		videoID:   payload.VideoID,
		projectID: payload.ProjectID,
		jobType:   models.JobTypeScrape,
		stage:     models.StageScrape,
		tracked:   true,
	}
	r.log = p.logger.With(
		zap.String("job_id", r.jobID),
		zap.String("video_id", r.videoID),
		zap.String("youtube_id", payload.YoutubeID),
		zap.Int("attempt", task.Attempt),
	)

	ok, err := p.begin(ctx, r)
	if err != nil || !ok {
		return err
	}
	r.log.Info("scraping video")

	result, err := p.scrape(ctx, r, payload)
	return p.finish(ctx, r, result, err)
}

func (p *Processor) scrape(ctx context.Context, r *run, pl *tasks.ScrapePayload) (map[string]any, error) {
	if p.metadata == nil {
		return nil, queue.Permanent(errors.New("metadata fetcher not configured"))
	}

	youtubeID := pl.YoutubeID
	if youtubeID == "" {
		id, err := scraper.ExtractVideoID(pl.YoutubeURL)
		if err != nil {
			return nil, queue.Permanent(err)
		}
		youtubeID = id
	}

	meta, err := p.metadata.FetchMetadata(ctx, youtubeID)
	if err != nil {
		return nil, err
	}
	if err := scraper.CheckEligible(meta, p.maxDuration); err != nil {
		return nil, err
	}
	p.progress(r, 40)

	var (
		vtt      []byte
		segments []scraper.Segment
	)
	if p.subtitles != nil {
		vtt, err = p.subtitles.ExtractSubtitles(ctx, pl.YoutubeURL, youtubeID)
		if err != nil {
			var scrapeErr *scraper.ScrapeError
			code := scraper.CodeUnknown
			if errors.As(err, &scrapeErr) {
				code = scrapeErr.Code
			}
			r.log.Warn("subtitle extraction failed, continuing without transcript",
				zap.String("code", string(code)), zap.Error(err))
			vtt = nil
		}
	}
	if len(vtt) > 0 {
		segments, err = scraper.ParseVTT(bytes.NewReader(vtt))
		if err != nil {
			r.log.Warn("caption file unreadable, continuing without transcript", zap.Error(err))
			segments = nil
		}
	}

	transcriptPath := ""
	if len(segments) > 0 {
		if err := p.ensureActive(ctx, r); err != nil {
			return nil, err
		}
		transcriptPath = blob.TranscriptPath(p.root, r.projectID, r.videoID)
		if err := p.blobs.Upload(ctx, transcriptPath, vtt, "text/vtt"); err != nil {
			return nil, scraper.NewError(scraper.CodeStorageUploadFailed, fmt.Errorf("upload transcript: %w", err))
		}
	}
	p.progress(r, 80)

	if err := p.ensureActive(ctx, r); err != nil {
		return nil, err
	}
	transcript := scraper.PlainText(segments)
	err = p.store.SaveScrapeResult(ctx, r.videoID, store.ScrapeResult{
		Title:              meta.Title,
		Description:        meta.Description,
		ThumbnailURL:       meta.ThumbnailURL,
		ChannelName:        meta.ChannelName,
		ChannelID:          meta.ChannelID,
		DurationSeconds:    meta.DurationSeconds,
		ViewCount:          meta.ViewCount,
		PublishedAt:        meta.PublishedAt,
		Transcript:         transcript,
		TranscriptFilePath: transcriptPath,
	})
	if err != nil {
		return nil, fmt.Errorf("save scrape result: %w", err)
	}

	r.log.Info("scrape complete", zap.String("title", meta.Title), zap.Int("segments", len(segments)))
	return map[string]any{
		"youtube_id":     youtubeID,
		"title":          meta.Title,
		"has_transcript": transcript != "",
		"segments":       len(segments),
	}, nil
}
