package scraper

import (
	"context"
	"errors"
	"regexp"
)

type Code string

const (
	CodePrivateVideo        Code = "PRIVATE_VIDEO"
	CodeAgeRestricted       Code = "AGE_RESTRICTED"
	CodeUnavailable         Code = "UNAVAILABLE"
	CodeDownloadTimeout     Code = "DOWNLOAD_TIMEOUT"
	CodeTooLong             Code = "TOO_LONG"
	CodeNoCaptions          Code = "NO_CAPTIONS"
	CodeStorageUploadFailed Code = "STORAGE_UPLOAD_FAILED"
	CodeMetadataFetchFailed Code = "METADATA_FETCH_FAILED"
	CodeUnknown             Code = "UNKNOWN"
)

var userMessages = map[Code]string{
	CodePrivateVideo:        "This video is private and cannot be scraped.",
	CodeAgeRestricted:       "This video is age-restricted.",
	CodeUnavailable:         "This video is unavailable.",
	CodeDownloadTimeout:     "Download timed out. Please try again.",
	CodeTooLong:             "This video exceeds the maximum allowed duration of 20 minutes.",
	CodeNoCaptions:          "This video does not have captions available.",
	CodeStorageUploadFailed: "Failed to upload video to storage.",
	CodeMetadataFetchFailed: "Failed to fetch video metadata.",
	CodeUnknown:             "An unexpected error occurred during scraping.",
}

// UserMessage is the text stored on the video and shown to users.
func (c Code) UserMessage() string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CodeUnknown]
}

// Retryable reports whether another attempt could succeed.
func (c Code) Retryable() bool {
	switch c {
	case CodeDownloadTimeout, CodeMetadataFetchFailed, CodeStorageUploadFailed:
		return true
	}
	return false
}

// ScrapeError is a scrape failure classified by Code.
type ScrapeError struct {
	Code Code
	Err  error
}

func NewError(code Code, err error) *ScrapeError {
	return &ScrapeError{Code: code, Err: err}
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Code.UserMessage()
}

func (e *ScrapeError) Unwrap() error { return e.Err }

var (
	privatePattern     = regexp.MustCompile(`(?i)private video`)
	ageRestrictPattern = regexp.MustCompile(`(?i)age.?restricted`)
	unavailablePattern = regexp.MustCompile(`(?i)not available|unavailable|removed`)
)

// MapYtDlpError classifies a yt-dlp failure from its output.
func MapYtDlpError(err error, output string) *ScrapeError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeDownloadTimeout, err)
	}
	msg := output
	if err != nil {
		msg += " " + err.Error()
	}
	switch {
	case privatePattern.MatchString(msg):
		return NewError(CodePrivateVideo, err)
	case ageRestrictPattern.MatchString(msg):
		return NewError(CodeAgeRestricted, err)
	case unavailablePattern.MatchString(msg):
		return NewError(CodeUnavailable, err)
	}
	return NewError(CodeUnknown, err)
}
