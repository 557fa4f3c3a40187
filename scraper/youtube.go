package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Metadata is what the scrape stage keeps from the YouTube Data API.
type Metadata struct {
	YoutubeID       string
	Title           string
	Description     string
	ChannelName     string
	ChannelID       string
	DurationSeconds int
	ViewCount       int64
	LikeCount       int64
	PublishedAt     *time.Time
	ThumbnailURL    string
	IsLive          bool
}

type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, youtubeID string) (*Metadata, error)
}

// YouTubeClient reads video metadata through the YouTube Data API v3.
type YouTubeClient struct {
	svc *youtube.Service
}

func NewYouTubeClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTubeClient, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &YouTubeClient{svc: svc}, nil
}

// FetchMetadata returns CodeUnavailable when the video is missing, private
// or deleted, and CodeMetadataFetchFailed when the API call itself fails.
func (c *YouTubeClient) FetchMetadata(ctx context.Context, youtubeID string) (*Metadata, error) {
	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(youtubeID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, NewError(CodeMetadataFetchFailed, fmt.Errorf("videos.list %s: %w", youtubeID, err))
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return nil, NewError(CodeUnavailable, fmt.Errorf("video %s not found", youtubeID))
	}

	item := resp.Items[0]
	meta := &Metadata{
		YoutubeID:    item.Id,
		Title:        item.Snippet.Title,
		Description:  item.Snippet.Description,
		ChannelName:  item.Snippet.ChannelTitle,
		ChannelID:    item.Snippet.ChannelId,
		ThumbnailURL: bestThumbnail(item.Snippet.Thumbnails),
		IsLive:       item.Snippet.LiveBroadcastContent == "live",
	}
	if item.ContentDetails != nil {
		meta.DurationSeconds = ParseISODuration(item.ContentDetails.Duration)
	}
	if item.Statistics != nil {
		meta.ViewCount = int64(item.Statistics.ViewCount)
		meta.LikeCount = int64(item.Statistics.LikeCount)
	}
	if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		meta.PublishedAt = &t
	}
	return meta, nil
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

// CheckEligible rejects live broadcasts and videos longer than maxDuration.
func CheckEligible(meta *Metadata, maxDuration time.Duration) error {
	if meta.IsLive {
		return NewError(CodeUnavailable, errors.New("live broadcasts cannot be scraped"))
	}
	if maxDuration > 0 && time.Duration(meta.DurationSeconds)*time.Second > maxDuration {
		return NewError(CodeTooLong, fmt.Errorf("duration %ds exceeds %s", meta.DurationSeconds, maxDuration))
	}
	return nil
}

var isoDurationPattern = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// ParseISODuration converts YouTube durations like "PT1H2M3S" to seconds.
// Anything it cannot read, including "P0D", is 0.
func ParseISODuration(iso string) int {
	m := isoDurationPattern.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	num := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	return num(m[1])*3600 + num(m[2])*60 + num(m[3])
}
