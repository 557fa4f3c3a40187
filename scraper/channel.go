package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/youtube/v3"
)

var ErrChannelNotFound = errors.New("channel not found")

// channelPageSize is the YouTube Data API maximum for search and playlistItems.
const channelPageSize = 50

// ChannelVideo is one entry of a channel or playlist listing. Duration is not
// part of these endpoints; the scrape stage fetches it.
type ChannelVideo struct {
	YoutubeID    string `json:"youtube_id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	PublishedAt  string `json:"published_at"`
	ChannelName  string `json:"channel_name"`
	ChannelID    string `json:"channel_id"`
}

type ChannelPage struct {
	Items         []ChannelVideo `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
	TotalResults  int64          `json:"total_results"`
}

// ChannelBrowser lists the videos a user can pick from before scraping.
type ChannelBrowser interface {
	ResolveChannelID(ctx context.Context, ref string) (string, error)
	ListChannelVideos(ctx context.Context, channelID, pageToken string) (*ChannelPage, error)
	ListPlaylistVideos(ctx context.Context, playlistID, pageToken string) (*ChannelPage, error)
}

// ResolveChannelID turns a channel id, "@handle" or legacy slug into a UC… id.
func (c *YouTubeClient) ResolveChannelID(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "UC") {
		return ref, nil
	}

	call := c.svc.Channels.List([]string{"snippet"}).Context(ctx)
	if strings.HasPrefix(ref, "@") {
		call = call.ForHandle(strings.TrimPrefix(ref, "@"))
	} else {
		call = call.ForUsername(ref)
	}

	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("channels.list %s: %w", ref, err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("%w: %s", ErrChannelNotFound, ref)
	}
	return resp.Items[0].Id, nil
}

// ListChannelVideos returns one page of a channel's videos, newest first.
func (c *YouTubeClient) ListChannelVideos(ctx context.Context, channelID, pageToken string) (*ChannelPage, error) {
	call := c.svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Type("video").
		Order("date").
		MaxResults(channelPageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search.list %s: %w", channelID, err)
	}

	page := &ChannelPage{NextPageToken: resp.NextPageToken, Items: []ChannelVideo{}}
	if resp.PageInfo != nil {
		page.TotalResults = resp.PageInfo.TotalResults
	}
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		page.Items = append(page.Items, ChannelVideo{
			YoutubeID:    item.Id.VideoId,
			Title:        item.Snippet.Title,
			ThumbnailURL: bestThumbnail(item.Snippet.Thumbnails),
			PublishedAt:  item.Snippet.PublishedAt,
			ChannelName:  item.Snippet.ChannelTitle,
			ChannelID:    item.Snippet.ChannelId,
		})
	}
	return page, nil
}

// ListPlaylistVideos returns one page of a playlist in playlist order.
func (c *YouTubeClient) ListPlaylistVideos(ctx context.Context, playlistID, pageToken string) (*ChannelPage, error) {
	call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(channelPageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("playlistItems.list %s: %w", playlistID, err)
	}

	page := &ChannelPage{NextPageToken: resp.NextPageToken, Items: []ChannelVideo{}}
	if resp.PageInfo != nil {
		page.TotalResults = resp.PageInfo.TotalResults
	}
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		page.Items = append(page.Items, ChannelVideo{
			YoutubeID:    playlistVideoID(item),
			Title:        item.Snippet.Title,
			ThumbnailURL: bestThumbnail(item.Snippet.Thumbnails),
			PublishedAt:  item.Snippet.PublishedAt,
			ChannelName:  item.Snippet.VideoOwnerChannelTitle,
			ChannelID:    item.Snippet.VideoOwnerChannelId,
		})
	}
	return page, nil
}

func playlistVideoID(item *youtube.PlaylistItem) string {
	if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
		return item.ContentDetails.VideoId
	}
	if item.Snippet.ResourceId != nil {
		return item.Snippet.ResourceId.VideoId
	}
	return ""
}
