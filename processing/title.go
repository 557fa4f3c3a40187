package processing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// TitleStyles are the eight strategies every title run must cover.
var TitleStyles = []string{
	"Curiosity Gap",
	"Direct Value",
	"Contrarian",
	"Listicle",
	"Question",
	"Emotional Hook",
	"Tutorial",
	"Story-Driven",
}

func IsTitleStyle(s string) bool {
	for _, style := range TitleStyles {
		if style == s {
			return true
		}
	}
	return false
}

// TitleVariation is one generated title.
type TitleVariation struct {
	Style     string `json:"style" validate:"title_style" jsonschema:"enum=Curiosity Gap,enum=Direct Value,enum=Contrarian,enum=Listicle,enum=Question,enum=Emotional Hook,enum=Tutorial,enum=Story-Driven"`
	Title     string `json:"title" validate:"min=5,max=100" jsonschema_description:"The remixed title, 5-100 characters"`
	Reasoning string `json:"reasoning" validate:"min=10,max=500" jsonschema_description:"Why this title works, 10-500 characters"`
}

// TitlesResponse is the JSON the model must return. Styles are checked for
// membership only; duplicates pass.
type TitlesResponse struct {
	Variations []TitleVariation `json:"variations" validate:"len=8,dive"`
}

var titlesResponseSchema = GenerateSchema[TitlesResponse]()

type TitleParams struct {
	OriginalTitle   string
	Description     string
	ChannelName     string
	DurationSeconds int
}

// GenerateTitles asks for exactly 8 variations, one per style.
func (g *Generator) GenerateTitles(ctx context.Context, params TitleParams) (_ []TitleVariation, err error) {
	ctx, span := startSpan(ctx, "processing.GenerateTitles", attribute.String("original_title", params.OriginalTitle))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, g.Timeouts.Text)
	defer cancel()

	raw, err := g.Text.GenerateJSON(ctx, StructuredRequest{
		Name:        "title_variations",
		Description: "Eight YouTube title variations, one per style",
		Prompt:      BuildTitlePrompt(params),
		Schema:      titlesResponseSchema,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("title generation: %w", err)
	}

	resp, err := decodeResponse[TitlesResponse]("title", raw)
	if err != nil {
		return nil, err
	}
	return resp.Variations, nil
}

func BuildTitlePrompt(params TitleParams) string {
	duration := ""
	if params.DurationSeconds > 0 {
		duration = fmt.Sprintf("Duration: %d minutes", roundMinutes(params.DurationSeconds))
	}

	var styles strings.Builder
	for i, style := range TitleStyles {
		fmt.Fprintf(&styles, "%d. %q: %s\n", i+1, style, titleStyleHints[style])
	}

	return fmt.Sprintf(`You are a YouTube title optimization expert. Create EXACTLY 8 title variations for a video using distinct strategies.

Original title: %q
Channel: %q
Description: %q
%s

Generate EXACTLY 8 variations, one per style below. Each must:
- Be 5-100 characters
- Be a genuine creative remix preserving core information
- Have exactly three fields: style, title, reasoning

Styles (use EXACTLY these names):
%s
CRITICAL: Return EXACTLY 8 objects in the "variations" array. One per style. Do not add extra fields. Do not merge styles.`,
		params.OriginalTitle, params.ChannelName, truncate(params.Description, 500), duration, styles.String())
}

var titleStyleHints = map[string]string{
	"Curiosity Gap":  "creates mystery or intrigue, withholds key info",
	"Direct Value":   "clear benefit or promise upfront",
	"Contrarian":     "challenges conventional wisdom",
	"Listicle":       `"N ways", "Top N", numbered format`,
	"Question":       "provocative question format",
	"Emotional Hook": "triggers fear, excitement, or surprise",
	"Tutorial":       "instructional or how-to framing",
	"Story-Driven":   "narrative hook that builds tension",
}

func roundMinutes(seconds int) int {
	return (seconds + 30) / 60
}
