package videos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/tasks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetadata struct {
	videos map[string]*scraper.Metadata
	err    error
}

func (f *fakeMetadata) FetchMetadata(_ context.Context, youtubeID string) (*scraper.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	meta, ok := f.videos[youtubeID]
	if !ok {
		return nil, scraper.NewError(scraper.CodeUnavailable, fmt.Errorf("video %s not found", youtubeID))
	}
	return meta, nil
}

type channelCall struct {
	id        string
	pageToken string
}

type fakeChannels struct {
	channels  map[string]string
	err       error
	listed    []channelCall
	playlists []channelCall
}

func (f *fakeChannels) ResolveChannelID(_ context.Context, ref string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id, ok := f.channels[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s", scraper.ErrChannelNotFound, ref)
	}
	return id, nil
}

func (f *fakeChannels) ListChannelVideos(_ context.Context, channelID, pageToken string) (*scraper.ChannelPage, error) {
	f.listed = append(f.listed, channelCall{channelID, pageToken})
	return &scraper.ChannelPage{
		Items:         []scraper.ChannelVideo{{YoutubeID: "vid1", Title: "First", ChannelID: channelID}},
		NextPageToken: "NEXT",
		TotalResults:  51,
	}, nil
}

func (f *fakeChannels) ListPlaylistVideos(_ context.Context, playlistID, pageToken string) (*scraper.ChannelPage, error) {
	f.playlists = append(f.playlists, channelCall{playlistID, pageToken})
	return &scraper.ChannelPage{
		Items:        []scraper.ChannelVideo{{YoutubeID: "vidA"}, {YoutubeID: "vidB"}},
		TotalResults: 2,
	}, nil
}

func TestSubmitScrapeBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := newProject(t, env.store)

	w := env.do(t, http.MethodPost, "/api/remix-engine/scrape", gin.H{"url": "https://youtu.be/aaaaaaaaaaa", "projectId": p.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/remix-engine/scrape/batch", gin.H{
		"projectId": p.ID,
		"urls": []string{
			"https://www.youtube.com/watch?v=aaaaaaaaaaa",
			"https://www.youtube.com/shorts/bbbbbbbbbbb",
			"https://vimeo.com/123",
			"https://www.youtube.com/@somecreator",
			"https://youtu.be/bbbbbbbbbbb",
			"https://youtu.be/ccccccccccc",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)

	enqueued := body["enqueued"].([]any)
	require.Len(t, enqueued, 2)
	first := enqueued[0].(map[string]any)
	assert.Equal(t, "bbbbbbbbbbb", first["youtube_id"])
	assert.Equal(t, "ccccccccccc", enqueued[1].(map[string]any)["youtube_id"])

	task, err := env.queue.Task(ctx, tasks.QueueScrape, first["job_id"].(string))
	require.NoError(t, err)
	payload, err := tasks.DecodeScrape(task.Payload)
	require.NoError(t, err)
	assert.Equal(t, first["video_id"], payload.VideoID)

	duplicates := body["duplicates"].([]any)
	require.Len(t, duplicates, 2)
	assert.Equal(t, "aaaaaaaaaaa", duplicates[0].(map[string]any)["youtube_id"])
	assert.Equal(t, "pending", duplicates[0].(map[string]any)["scrape_status"])
	assert.Equal(t, first["video_id"], duplicates[1].(map[string]any)["video_id"], "repeat within a batch is a duplicate")

	errs := body["errors"].([]any)
	require.Len(t, errs, 2)
	assert.Equal(t, map[string]any{"url": "https://vimeo.com/123", "error": "Invalid YouTube URL"}, errs[0])
	assert.Equal(t, "https://www.youtube.com/@somecreator", errs[1].(map[string]any)["url"])

	videos, err := env.store.ListVideos(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, videos, 3)
}

func TestSubmitScrapeBatchRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env.store)

	w := env.do(t, http.MethodPost, "/api/remix-engine/scrape/batch", gin.H{"projectId": p.ID, "urls": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	urls := make([]string, maxBatchURLs+1)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://youtu.be/video%06d", i)
	}
	w = env.do(t, http.MethodPost, "/api/remix-engine/scrape/batch", gin.H{"projectId": p.ID, "urls": urls})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/remix-engine/scrape/batch", gin.H{
		"projectId": "00000000-0000-0000-0000-000000000000",
		"urls":      []string{"https://youtu.be/aaaaaaaaaaa"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitScrapeBatchEnqueueFailure(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env.store)
	env.redis.Close()

	w := env.do(t, http.MethodPost, "/api/remix-engine/scrape/batch", gin.H{
		"projectId": p.ID,
		"urls":      []string{"https://youtu.be/aaaaaaaaaaa"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Empty(t, body["enqueued"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "Failed to enqueue job", errs[0].(map[string]any)["error"])
}

func TestPreviewScrape(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := newProject(t, env.store)
	env.handler.Metadata = &fakeMetadata{videos: map[string]*scraper.Metadata{
		"aaaaaaaaaaa": {YoutubeID: "aaaaaaaaaaa", Title: "Knife skills", ChannelName: "Sam", DurationSeconds: 600, ViewCount: 1200, ThumbnailURL: "https://i.ytimg.com/a.jpg"},
		"lllllllllll": {YoutubeID: "lllllllllll", Title: "Marathon", DurationSeconds: 25 * 60},
	}}
	preview := func(url string) (int, map[string]any) {
		w := env.do(t, http.MethodPost, "/api/remix-engine/scrape/preview", gin.H{"url": url, "projectId": p.ID})
		return w.Code, decode(t, w)
	}

	code, body := preview("https://youtu.be/aaaaaaaaaaa")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["existing"])
	assert.Equal(t, map[string]any{
		"youtube_id":       "aaaaaaaaaaa",
		"title":            "Knife skills",
		"thumbnail_url":    "https://i.ytimg.com/a.jpg",
		"duration_seconds": float64(600),
		"channel_name":     "Sam",
		"view_count":       float64(1200),
	}, body["preview"])

	videos, err := env.store.ListVideos(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Empty(t, videos, "preview stores nothing")

	code, body = preview("https://youtu.be/lllllllllll")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "TOO_LONG", body["error"])
	assert.Equal(t, "Video is 25 minutes. Maximum is 20 minutes.", body["message"])

	code, _ = preview("https://youtu.be/mmmmmmmmmmm")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = preview("https://www.youtube.com/playlist?list=PL123")
	assert.Equal(t, http.StatusBadRequest, code)

	w := env.do(t, http.MethodPost, "/api/remix-engine/scrape", gin.H{"url": "https://youtu.be/aaaaaaaaaaa", "projectId": p.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	videoID := decode(t, w)["video"].(map[string]any)["id"]

	code, body = preview("https://www.youtube.com/watch?v=aaaaaaaaaaa")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["existing"])
	assert.Equal(t, videoID, body["video_id"])
	assert.Equal(t, "pending", body["scrape_status"])
}

func TestPreviewScrapeUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env.store)

	w := env.do(t, http.MethodPost, "/api/remix-engine/scrape/preview", gin.H{"url": "https://youtu.be/aaaaaaaaaaa", "projectId": p.ID})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no metadata source configured")

	env.handler.Metadata = &fakeMetadata{err: scraper.NewError(scraper.CodeMetadataFetchFailed, errors.New("quota exceeded"))}
	w = env.do(t, http.MethodPost, "/api/remix-engine/scrape/preview", gin.H{"url": "https://youtu.be/aaaaaaaaaaa", "projectId": p.ID})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Failed to fetch video metadata.", decode(t, w)["error"])
}

func TestBrowseChannel(t *testing.T) {
	env := newTestEnv(t)
	channels := &fakeChannels{channels: map[string]string{"@cookingwithsam": "UCsam", "UCdirect": "UCdirect"}}
	env.handler.Channels = channels

	w := env.do(t, http.MethodGet, "/api/remix-engine/channel?channelUrl=https://www.youtube.com/@cookingwithsam&pageToken=PAGE2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "UCsam", body["channel_id"])
	assert.Equal(t, "NEXT", body["next_page_token"])
	assert.EqualValues(t, 51, body["total_results"])
	require.Len(t, body["items"], 1)
	assert.Equal(t, []channelCall{{"UCsam", "PAGE2"}}, channels.listed)

	w = env.do(t, http.MethodGet, "/api/remix-engine/channel?channelUrl=https://www.youtube.com/channel/UCdirect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UCdirect", decode(t, w)["channel_id"])

	w = env.do(t, http.MethodGet, "/api/remix-engine/channel?channelUrl=https://www.youtube.com/playlist?list%3DPL9", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "PL9", body["playlist_id"])
	require.Len(t, body["items"], 2)
	assert.Equal(t, []channelCall{{"PL9", ""}}, channels.playlists)
}

func TestBrowseChannelErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/remix-engine/channel?channelUrl=https://www.youtube.com/@x", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	channels := &fakeChannels{channels: map[string]string{}}
	env.handler.Channels = channels

	w = env.do(t, http.MethodGet, "/api/remix-engine/channel", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/remix-engine/channel?channelUrl=https://youtu.be/aaaaaaaaaaa", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/remix-engine/channel?channelUrl=https://www.youtube.com/@ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	channels.err = errors.New("googleapi: Error 403: quotaExceeded")
	w = env.do(t, http.MethodGet, "/api/remix-engine/channel?channelUrl=https://www.youtube.com/@ghost", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, channels.listed)
}
