package videos

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBatchURLs = 10

type BatchScrapeRequest struct {
	URLs      []string `json:"urls" binding:"required,min=1,max=10"`
	ProjectID string   `json:"projectId" binding:"required"`
}

type BatchEnqueued struct {
	VideoID   string `json:"video_id"`
	JobID     string `json:"job_id"`
	YoutubeID string `json:"youtube_id"`
}

type BatchDuplicate struct {
	VideoID      string `json:"video_id"`
	YoutubeID    string `json:"youtube_id"`
	ScrapeStatus string `json:"scrape_status"`
}

type BatchError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type BatchScrapeResponse struct {
	Enqueued   []BatchEnqueued  `json:"enqueued"`
	Duplicates []BatchDuplicate `json:"duplicates"`
	Errors     []BatchError     `json:"errors"`
}

// SubmitScrapeBatch submits up to ten URLs one after another. A bad URL
// lands in errors and does not stop the rest.
func (h *Handler) SubmitScrapeBatch(c *gin.Context) {
	ctx := c.Request.Context()
	var req BatchScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Provide between 1 and %d urls: %v", maxBatchURLs, err)})
		return
	}

	if _, err := h.Store.GetProject(ctx, req.ProjectID); err != nil {
		h.writeError(c, err)
		return
	}

	resp := BatchScrapeResponse{
		Enqueued:   []BatchEnqueued{},
		Duplicates: []BatchDuplicate{},
		Errors:     []BatchError{},
	}
	for _, raw := range req.URLs {
		parsed, err := scraper.ParseYouTubeURL(raw)
		if err != nil {
			resp.Errors = append(resp.Errors, BatchError{URL: raw, Error: "Invalid YouTube URL"})
			continue
		}
		if parsed.Kind != scraper.KindVideo {
			resp.Errors = append(resp.Errors, BatchError{URL: raw, Error: "Only single video URLs can be scraped"})
			continue
		}

		video, jobID, duplicate, err := h.createScrape(ctx, req.ProjectID, parsed.ID)
		switch {
		case errors.Is(err, errEnqueue):
			resp.Errors = append(resp.Errors, BatchError{URL: raw, Error: "Failed to enqueue job"})
		case err != nil:
			h.Logger.Error("batch scrape entry failed", zap.String("url", raw), zap.Error(err))
			resp.Errors = append(resp.Errors, BatchError{URL: raw, Error: "Failed to create video record"})
		case duplicate:
			resp.Duplicates = append(resp.Duplicates, BatchDuplicate{
				VideoID:      video.ID,
				YoutubeID:    video.YoutubeID,
				ScrapeStatus: string(video.ScrapeStatus),
			})
		default:
			resp.Enqueued = append(resp.Enqueued, BatchEnqueued{VideoID: video.ID, JobID: jobID, YoutubeID: video.YoutubeID})
		}
	}

	h.Logger.Info("batch scrape submitted",
		zap.String("project_id", req.ProjectID),
		zap.Int("enqueued", len(resp.Enqueued)),
		zap.Int("duplicates", len(resp.Duplicates)),
		zap.Int("errors", len(resp.Errors)),
	)
	c.JSON(http.StatusCreated, resp)
}

type VideoPreview struct {
	YoutubeID       string `json:"youtube_id"`
	Title           string `json:"title"`
	ThumbnailURL    string `json:"thumbnail_url"`
	DurationSeconds int    `json:"duration_seconds"`
	ChannelName     string `json:"channel_name"`
	ViewCount       int64  `json:"view_count"`
}

// PreviewScrape shows what a scrape would pick up without storing anything.
func (h *Handler) PreviewScrape(c *gin.Context) {
	ctx := c.Request.Context()
	if h.Metadata == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Video preview is not configured"})
		return
	}

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
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only single video URLs can be previewed"})
		return
	}

	if _, err := h.Store.GetProject(ctx, req.ProjectID); err != nil {
		h.writeError(c, err)
		return
	}

	meta, err := h.Metadata.FetchMetadata(ctx, parsed.ID)
	if err != nil {
		var scrapeErr *scraper.ScrapeError
		if errors.As(err, &scrapeErr) && scrapeErr.Code == scraper.CodeUnavailable {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found or is private"})
			return
		}
		h.Logger.Warn("preview metadata fetch failed", zap.String("youtube_id", parsed.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": scraper.CodeMetadataFetchFailed.UserMessage()})
		return
	}

	existing, err := h.Store.FindVideoByYoutubeID(ctx, req.ProjectID, parsed.ID)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{
			"existing":      true,
			"video_id":      existing.ID,
			"scrape_status": existing.ScrapeStatus,
		})
		return
	}
	if !store.IsNotFound(err) {
		h.writeError(c, err)
		return
	}

	if err := scraper.CheckEligible(meta, h.MaxVideoDuration); err != nil {
		var scrapeErr *scraper.ScrapeError
		if !errors.As(err, &scrapeErr) {
			h.writeError(c, err)
			return
		}
		msg := scrapeErr.Code.UserMessage()
		if scrapeErr.Code == scraper.CodeTooLong {
			msg = fmt.Sprintf("Video is %d minutes. Maximum is %d minutes.",
				int(math.Round(float64(meta.DurationSeconds)/60)), int(h.MaxVideoDuration.Minutes()))
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": string(scrapeErr.Code), "message": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"existing": false,
		"preview": VideoPreview{
			YoutubeID:       parsed.ID,
			Title:           meta.Title,
			ThumbnailURL:    meta.ThumbnailURL,
			DurationSeconds: meta.DurationSeconds,
			ChannelName:     meta.ChannelName,
			ViewCount:       meta.ViewCount,
		},
	})
}

// BrowseChannel lists one page of a channel's or playlist's videos for the
// pick-and-scrape flow.
func (h *Handler) BrowseChannel(c *gin.Context) {
	ctx := c.Request.Context()
	if h.Channels == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Channel browsing is not configured"})
		return
	}

	raw := c.Query("channelUrl")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: channelUrl"})
		return
	}
	parsed, err := scraper.ParseYouTubeURL(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid YouTube URL"})
		return
	}
	if parsed.Kind == scraper.KindVideo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is a video, not a channel. Provide a channel or handle URL."})
		return
	}

	pageToken := c.Query("pageToken")
	if parsed.Kind == scraper.KindPlaylist {
		page, err := h.Channels.ListPlaylistVideos(ctx, parsed.ID, pageToken)
		if err != nil {
			h.youtubeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"playlist_id":     parsed.ID,
			"items":           page.Items,
			"next_page_token": page.NextPageToken,
			"total_results":   page.TotalResults,
		})
		return
	}

	channelID, err := h.Channels.ResolveChannelID(ctx, parsed.ID)
	if err != nil {
		h.youtubeError(c, err)
		return
	}
	page, err := h.Channels.ListChannelVideos(ctx, channelID, pageToken)
	if err != nil {
		h.youtubeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channel_id":      channelID,
		"items":           page.Items,
		"next_page_token": page.NextPageToken,
		"total_results":   page.TotalResults,
	})
}

func (h *Handler) youtubeError(c *gin.Context, err error) {
	if errors.Is(err, scraper.ErrChannelNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}
	h.Logger.Warn("youtube listing failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch channel videos"})
}
