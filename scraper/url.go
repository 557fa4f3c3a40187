// Package scraper ingests a YouTube video: URL parsing, metadata, subtitles.
package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrUnsupportedURL = errors.New("unsupported YouTube URL format")

type URLKind string

const (
	KindVideo    URLKind = "video"
	KindChannel  URLKind = "channel"
	KindHandle   URLKind = "handle"
	KindPlaylist URLKind = "playlist"
)

// ParsedURL is a normalized YouTube URL. ID is a video id, channel id or
// slug, "@handle", or playlist id depending on Kind.
type ParsedURL struct {
	Kind URLKind
	ID   string
	Raw  string
}

// ParseYouTubeURL accepts watch, youtu.be, m., shorts, channel, c, @handle
// and playlist URLs.
func ParseYouTubeURL(raw string) (ParsedURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ParsedURL{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, raw)
	}
	unsupported := func() (ParsedURL, error) {
		return ParsedURL{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, raw)
	}
	segment := func(i int) string {
		parts := strings.Split(u.Path, "/")
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	host := strings.ToLower(u.Hostname())
	if host == "youtu.be" {
		id := segment(1)
		if id == "" {
			return unsupported()
		}
		return ParsedURL{Kind: KindVideo, ID: id, Raw: raw}, nil
	}

	switch host {
	case "www.youtube.com", "youtube.com", "m.youtube.com":
	default:
		return unsupported()
	}

	var p ParsedURL
	switch path := u.Path; {
	case strings.HasPrefix(path, "/watch"):
		p = ParsedURL{Kind: KindVideo, ID: u.Query().Get("v")}
	case strings.HasPrefix(path, "/shorts/"):
		p = ParsedURL{Kind: KindVideo, ID: segment(2)}
	case strings.HasPrefix(path, "/channel/"), strings.HasPrefix(path, "/c/"):
		p = ParsedURL{Kind: KindChannel, ID: segment(2)}
	case strings.HasPrefix(path, "/@"):
		handle := strings.TrimPrefix(segment(1), "@")
		if handle == "" {
			return unsupported()
		}
		p = ParsedURL{Kind: KindHandle, ID: "@" + handle}
	case strings.HasPrefix(path, "/playlist"):
		p = ParsedURL{Kind: KindPlaylist, ID: u.Query().Get("list")}
	default:
		return unsupported()
	}

	if p.ID == "" {
		return unsupported()
	}
	p.Raw = raw
	return p, nil
}

// ExtractVideoID returns the video id of a video URL.
func ExtractVideoID(raw string) (string, error) {
	p, err := ParseYouTubeURL(raw)
	if err != nil {
		return "", err
	}
	if p.Kind != KindVideo {
		return "", fmt.Errorf("expected a YouTube video URL but got type %q: %s", p.Kind, raw)
	}
	return p.ID, nil
}
