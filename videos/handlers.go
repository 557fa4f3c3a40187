// Package videos serves scrape submission, video reads and job tracking.
package videos

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/drewmudry/remixengine-api/internal/blob"
	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/progress"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/drewmudry/remixengine-api/tasks"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Enqueuer is the queue submission surface. *queue.Client implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, taskType string, payload interface{}, opts ...queue.Option) (string, error)
}

type Handler struct {
	Store       *store.Store
	Queue       Enqueuer
	Blobs       blob.Store
	Progress    *progress.Hub
	StorageRoot string
	Logger      *zap.Logger

	// Optional YouTube lookups for preview and channel browsing.
	Metadata         scraper.MetadataFetcher
	Channels         scraper.ChannelBrowser
	MaxVideoDuration time.Duration
}

func NewHandler(s *store.Store, q Enqueuer, blobs blob.Store, hub *progress.Hub, storageRoot string, logger *zap.Logger) *Handler {
	return &Handler{
		Store:            s,
		Queue:            q,
		Blobs:            blobs,
		Progress:         hub,
		StorageRoot:      storageRoot,
		Logger:           logger,
		MaxVideoDuration: 20 * time.Minute,
	}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/scrape", h.SubmitScrape)
	rg.POST("/scrape/batch", h.SubmitScrapeBatch)
	rg.POST("/scrape/preview", h.PreviewScrape)
	rg.GET("/channel", h.BrowseChannel)

	jobs := rg.Group("/jobs")
	{
		jobs.GET("/:jobId", h.GetJob)
		jobs.POST("/:jobId/cancel", h.CancelJob)
		jobs.GET("/:jobId/progress", h.StreamProgress)
	}

	videos := rg.Group("/videos")
	{
		videos.GET("/:videoId", h.GetVideo)
		videos.DELETE("/:videoId", h.DeleteVideo)
		videos.GET("/:videoId/transcript-url", h.TranscriptURL)
		videos.GET("/:videoId/signed-url", h.PlaybackURL)
	}
}

type ScrapeRequest struct {
	URL       string `json:"url" binding:"required"`
	ProjectID string `json:"projectId" binding:"required"`
}

func (h *Handler) SubmitScrape(c *gin.Context) {
	ctx := c.Request.Context()
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parsed, err := scraper.ParseYouTubeURL(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid YouTube URL"})
		return
	}
	if parsed.Kind != scraper.KindVideo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only single video URLs can be scraped"})
		return
	}

	if _, err := h.Store.GetProject(ctx, req.ProjectID); err != nil {
		h.writeError(c, err)
		return
	}

	video, jobID, duplicate, err := h.createScrape(ctx, req.ProjectID, parsed.ID)
	switch {
	case errors.Is(err, errEnqueue):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue job"})
		return
	case err != nil:
		h.writeError(c, err)
		return
	case duplicate:
		c.JSON(http.StatusOK, gin.H{"video": video, "duplicate": true})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"video": video, "job_id": jobID})
}

var errEnqueue = errors.New("failed to enqueue job")

// createScrape stores a pending video with its scrape job and enqueues it.
// A video the project already holds is returned with duplicate set.
func (h *Handler) createScrape(ctx context.Context, projectID, youtubeID string) (*models.Video, string, bool, error) {
	existing, err := h.Store.FindVideoByYoutubeID(ctx, projectID, youtubeID)
	if err == nil {
		return existing, "", true, nil
	}
	if !store.IsNotFound(err) {
		return nil, "", false, err
	}

	video := &models.Video{
		ProjectID:  projectID,
		YoutubeURL: "https://www.youtube.com/watch?v=" + youtubeID,
		YoutubeID:  youtubeID,
	}
	job := &models.Job{Type: models.JobTypeScrape}
	if err := h.Store.CreateVideoWithJob(ctx, video, job); err != nil {
		return nil, "", false, err
	}

	payload := &tasks.ScrapePayload{
		Meta:       tasks.Meta{JobID: job.ID, VideoID: video.ID, ProjectID: video.ProjectID},
		YoutubeURL: video.YoutubeURL,
		YoutubeID:  video.YoutubeID,
	}
	if _, err := h.Queue.Enqueue(ctx, tasks.QueueScrape, string(models.JobTypeScrape), payload, queue.WithJobID(job.ID)); err != nil {
		h.Logger.Error("enqueue scrape failed", zap.String("job_id", job.ID), zap.Error(err))
		bg := context.WithoutCancel(ctx)
		if failErr := h.Store.FailJob(bg, job.ID, "failed to enqueue job", false); failErr != nil {
			h.Logger.Warn("marking unscheduled job failed", zap.Error(failErr))
		}
		if stageErr := h.Store.SetStageStatus(bg, video.ID, models.StageScrape, models.StageError, "failed to enqueue job"); stageErr != nil {
			h.Logger.Warn("marking scrape stage failed", zap.Error(stageErr))
		}
		return video, job.ID, false, errEnqueue
	}

	h.Logger.Info("scrape submitted",
		zap.String("video_id", video.ID),
		zap.String("youtube_id", video.YoutubeID),
		zap.String("job_id", job.ID),
	)
	return video, job.ID, false, nil
}

// VideoDetail is everything the review surface renders for one video.
type VideoDetail struct {
	*models.Video
	Stages     []models.StageView        `json:"stages"`
	Titles     []models.RemixedTitle     `json:"titles"`
	Thumbnails []models.RemixedThumbnail `json:"thumbnails"`
	Scripts    []models.RemixedScript    `json:"scripts"`
	Jobs       []models.Job              `json:"jobs"`
}

func (h *Handler) GetVideo(c *gin.Context) {
	ctx := c.Request.Context()
	video, err := h.Store.GetVideo(ctx, c.Param("videoId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	detail := VideoDetail{Video: video, Stages: video.Stages()}
	if detail.Titles, err = h.Store.ListTitles(ctx, video.ID); err != nil {
		h.writeError(c, err)
		return
	}
	if detail.Thumbnails, err = h.Store.ListThumbnails(ctx, video.ID); err != nil {
		h.writeError(c, err)
		return
	}
	if detail.Scripts, err = h.Store.ListScripts(ctx, video.ID); err != nil {
		h.writeError(c, err)
		return
	}
	if detail.Jobs, err = h.Store.ListJobsForVideo(ctx, video.ID); err != nil {
		h.writeError(c, err)
		return
	}

	// Signed URLs are derived per read and never stored.
	for i := range detail.Thumbnails {
		url, err := h.Blobs.SignedURL(ctx, detail.Thumbnails[i].FilePath, blob.PlaybackURLExpiry)
		if err != nil {
			h.Logger.Warn("sign thumbnail url failed", zap.String("path", detail.Thumbnails[i].FilePath), zap.Error(err))
			continue
		}
		detail.Thumbnails[i].SignedURL = url
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) DeleteVideo(c *gin.Context) {
	ctx := c.Request.Context()
	deleted, err := h.Store.DeleteVideo(ctx, c.Param("videoId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	prefix := blob.VideoPrefix(h.StorageRoot, deleted.ProjectID, deleted.ID)
	if err := h.Blobs.RemovePrefix(ctx, prefix); err != nil {
		h.Logger.Warn("removing video objects failed", zap.String("prefix", prefix), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) TranscriptURL(c *gin.Context) {
	ctx := c.Request.Context()
	video, err := h.Store.GetVideo(ctx, c.Param("videoId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if video.TranscriptFilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No transcript file for this video"})
		return
	}

	url, err := h.Blobs.SignedURL(ctx, video.TranscriptFilePath, blob.TranscriptURLExpiry)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int(blob.TranscriptURLExpiry.Seconds()),
	})
}

// PlaybackURL signs the downloaded source video for the player.
func (h *Handler) PlaybackURL(c *gin.Context) {
	ctx := c.Request.Context()
	video, err := h.Store.GetVideo(ctx, c.Param("videoId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if video.VideoFilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not yet downloaded"})
		return
	}

	url, err := h.Blobs.SignedURL(ctx, video.VideoFilePath, blob.PlaybackURLExpiry)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int(blob.PlaybackURLExpiry.Seconds()),
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.Store.GetJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob marks the job cancelled. A worker already running it stops
// before its next write.
func (h *Handler) CancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := h.Store.CancelJob(ctx, c.Param("jobId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if h.Progress != nil {
		if err := h.Progress.Publish(ctx, job); err != nil {
			h.Logger.Warn("publish cancellation failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, job)
}

// StreamProgress sends the current job row, then every update, as server-sent
// events. The stream ends after a terminal status or when the client leaves.
func (h *Handler) StreamProgress(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.Progress.Subscribe(ctx, c.Param("jobId"), h.Store.GetJob)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return
			}
			c.SSEvent("progress", u)
			c.Writer.Flush()
			if u.Terminal() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case store.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrJobTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
