package scraper

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Segment is one caption cue with markup removed.
type Segment struct {
	Timestamp string `json:"timestamp"`
	StartMs   int64  `json:"start_ms"`
	Text      string `json:"text"`
}

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	cueIDPattern   = regexp.MustCompile(`^\d+$`)
	vttArrowMarker = " --> "
)

// ParseVTT reads a WebVTT document. Adjacent cues with identical text, common
// in auto-generated captions, are collapsed into one.
func ParseVTT(r io.Reader) ([]Segment, error) {
	var (
		segments []Segment
		startMs  int64 = -1
		lines    []string
	)

	flush := func() {
		if startMs < 0 || len(lines) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(lines, " "))
		if text == "" {
			return
		}
		if n := len(segments); n > 0 && segments[n-1].Text == text {
			return
		}
		segments = append(segments, Segment{Timestamp: formatTimestamp(startMs), StartMs: startMs, Text: text})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")

		switch {
		case line == "",
			strings.HasPrefix(line, "WEBVTT"),
			strings.HasPrefix(line, "NOTE"),
			strings.HasPrefix(line, "STYLE"),
			cueIDPattern.MatchString(line):
			continue
		case strings.Contains(line, vttArrowMarker):
			flush()
			lines = nil
			startMs = parseVTTTime(strings.SplitN(line, vttArrowMarker, 2)[0])
			continue
		}

		if startMs >= 0 {
			if clean := strings.TrimSpace(tagPattern.ReplaceAllString(line, "")); clean != "" {
				lines = append(lines, clean)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vtt: %w", err)
	}
	flush()
	return segments, nil
}

// PlainText joins segment texts with single spaces.
func PlainText(segments []Segment) string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}

// parseVTTTime converts "00:00:42.500" or "00:42.500" to milliseconds.
func parseVTTTime(s string) int64 {
	parts := strings.Split(strings.TrimSpace(s), ":")
	var h, m int64
	var sec float64
	switch len(parts) {
	case 3:
		h, _ = strconv.ParseInt(parts[0], 10, 64)
		m, _ = strconv.ParseInt(parts[1], 10, 64)
		sec, _ = strconv.ParseFloat(parts[2], 64)
	case 2:
		m, _ = strconv.ParseInt(parts[0], 10, 64)
		sec, _ = strconv.ParseFloat(parts[1], 64)
	default:
		return 0
	}
	return h*3_600_000 + m*60_000 + int64(sec*1000+0.5)
}

// formatTimestamp renders M:SS, or H:MM:SS past the first hour.
func formatTimestamp(ms int64) string {
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
