package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYouTubeURL(t *testing.T) {
	tests := []struct {
		url  string
		kind URLKind
		id   string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", KindVideo, "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", KindVideo, "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", KindVideo, "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ&feature=share", KindVideo, "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/abc123", KindVideo, "abc123"},
		{"https://www.youtube.com/channel/UCxyz", KindChannel, "UCxyz"},
		{"https://youtube.com/c/SomeChannel", KindChannel, "SomeChannel"},
		{"https://www.youtube.com/@handle", KindHandle, "@handle"},
		{"https://www.youtube.com/playlist?list=PL123", KindPlaylist, "PL123"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ParseYouTubeURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.id, got.ID)
			assert.Equal(t, tt.url, got.Raw)
		})
	}
}

func TestParseYouTubeURLRejects(t *testing.T) {
	for _, raw := range []string{
		"not a url",
		"https://vimeo.com/123",
		"https://youtu.be/",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/@",
		"https://www.youtube.com/feed/trending",
	} {
		_, err := ParseYouTubeURL(raw)
		assert.ErrorIs(t, err, ErrUnsupportedURL, raw)
	}
}

func TestExtractVideoID(t *testing.T) {
	id, err := ExtractVideoID("https://www.youtube.com/shorts/abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = ExtractVideoID("https://www.youtube.com/@handle")
	assert.ErrorContains(t, err, `got type "handle"`)
}
