package processing

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrMalformedResponse means the generator output could not be parsed as JSON at all.
	ErrMalformedResponse = errors.New("generator returned malformed JSON")
	// ErrSchemaValidation means the output parsed but broke a field constraint.
	ErrSchemaValidation = errors.New("schema validation failed")
	// ErrSceneOrdering means scene numbers were not 1..n in order.
	ErrSceneOrdering = errors.New("invalid scene ordering")
	// ErrNoImages means the image generator finished without any image.
	ErrNoImages = errors.New("image generator returned no images")
)

const rawExcerptLen = 200

// GenerationError is a contract violation by an external generator.
// Raw holds at most the first 200 characters of the response.
type GenerationError struct {
	Kind   error
	Stage  string
	Detail string
	Raw    string
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s generation: %v", e.Stage, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Raw != "" {
		msg += ". Raw: " + e.Raw
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Kind }

// IsContractViolation reports whether err is a bad-output error that retrying
// the same prompt will not fix deterministically.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrSchemaValidation) ||
		errors.Is(err, ErrSceneOrdering) ||
		errors.Is(err, ErrNoImages)
}

func newGenerationError(kind error, stage, detail, raw string) *GenerationError {
	return &GenerationError{Kind: kind, Stage: stage, Detail: detail, Raw: truncate(raw, rawExcerptLen)}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
