package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// SubtitleExtractor fetches the raw English auto-caption VTT for a video.
type SubtitleExtractor interface {
	ExtractSubtitles(ctx context.Context, videoURL, youtubeID string) ([]byte, error)
}

// YtDlp shells out to yt-dlp for subtitles only; media is never downloaded.
type YtDlp struct {
	Path    string
	TempDir string
	Timeout time.Duration
}

func NewYtDlp(path, tempDir string, timeout time.Duration) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{Path: path, TempDir: tempDir, Timeout: timeout}
}

// CheckInstalled reports whether the yt-dlp binary can be found.
func (y *YtDlp) CheckInstalled() error {
	if _, err := exec.LookPath(y.Path); err != nil {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	return nil
}

// ExtractSubtitles returns the .en.vtt contents. A video without captions
// yields a CodeNoCaptions error; yt-dlp failures are mapped by MapYtDlpError.
func (y *YtDlp) ExtractSubtitles(ctx context.Context, videoURL, youtubeID string) ([]byte, error) {
	if err := os.MkdirAll(y.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(y.TempDir, youtubeID+"-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if y.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.Timeout)
		defer cancel()
	}

	args := []string{
		"--write-auto-sub",
		"--sub-lang", "en",
		"--skip-download",
		"--output", filepath.Join(dir, "%(id)s"),
		videoURL,
	}
	cmd := exec.CommandContext(ctx, y.Path, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		return nil, MapYtDlpError(err, output.String())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read temp dir: %w", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".en.vtt") {
			return os.ReadFile(filepath.Join(dir, e.Name()))
		}
	}
	return nil, NewError(CodeNoCaptions, fmt.Errorf("no .en.vtt produced for %s", youtubeID))
}
