package processing

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/drewmudry/remixengine-api/models"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720

	AnalysisNoThumbnail = "No original thumbnail available."
	AnalysisFetchFailed = "Unable to analyze original thumbnail. Using default composition for generation."
	AnalysisUnavailable = "Thumbnail analysis unavailable. Using default composition for generation."

	thumbnailAnalysisPrompt = "Analyze this YouTube thumbnail briefly. In 2-3 sentences describe: dominant colors, main visual element, and overall mood. Be specific and visual. No bullet points."
)

type ThumbnailParams struct {
	VideoTitle          string
	VideoDescription    string
	OriginalURL         string
	Style               models.ThumbnailStyle
	StylePromptOverride string
}

// GeneratedThumbnail points at the provider's temporary copy of the image.
// The caller must download it before the URL expires.
type GeneratedThumbnail struct {
	URL      string
	Prompt   string
	Analysis string
}

// GenerateThumbnail analyzes the original thumbnail (never fatal), builds the
// style prompt and requests one 1280x720 image.
func (g *Generator) GenerateThumbnail(ctx context.Context, params ThumbnailParams, onStatus func(string)) (_ *GeneratedThumbnail, err error) {
	ctx, span := startSpan(ctx, "processing.GenerateThumbnail", attribute.String("style", string(params.Style)))
	defer func() { endSpan(span, err) }()

	if !params.Style.Valid() {
		return nil, fmt.Errorf("unknown thumbnail style %q", params.Style)
	}

	analysis := AnalysisNoThumbnail
	if params.OriginalURL != "" {
		analysis = g.AnalyzeThumbnail(ctx, params.OriginalURL)
	}

	prompt := BuildThumbnailPrompt(params.VideoTitle, params.Style, analysis, params.StylePromptOverride)

	imgCtx, cancel := context.WithTimeout(ctx, g.Timeouts.Image)
	defer cancel()

	images, err := g.Images.GenerateImages(imgCtx, ImageRequest{
		Prompt:    prompt,
		Width:     ThumbnailWidth,
		Height:    ThumbnailHeight,
		NumImages: 1,
		Seed:      rand.IntN(1_000_000),
		OnStatus:  onStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("thumbnail generation: %w", err)
	}
	if len(images) == 0 || images[0].URL == "" {
		return nil, newGenerationError(ErrNoImages, "thumbnail", "", "")
	}

	return &GeneratedThumbnail{URL: images[0].URL, Prompt: prompt, Analysis: analysis}, nil
}

// AnalyzeThumbnail describes the original thumbnail. Failures degrade to a
// fixed placeholder instead of an error.
func (g *Generator) AnalyzeThumbnail(ctx context.Context, url string) string {
	fetchCtx, cancel := context.WithTimeout(ctx, g.Timeouts.Fetch)
	image, contentType, err := Download(fetchCtx, g.HTTP, url)
	cancel()
	if err != nil {
		return AnalysisFetchFailed
	}

	visionCtx, cancel := context.WithTimeout(ctx, g.Timeouts.Vision)
	defer cancel()
	description, err := g.Vision.DescribeImage(visionCtx, image, contentType, thumbnailAnalysisPrompt)
	if err != nil || description == "" {
		return AnalysisUnavailable
	}
	return description
}

func BuildThumbnailPrompt(title string, style models.ThumbnailStyle, analysis, override string) string {
	base := ""
	if analysis != "" {
		base = fmt.Sprintf("Based on this YouTube thumbnail analysis: %s. ", truncate(analysis, 300))
	}

	modifier := ""
	if override != "" {
		modifier = fmt.Sprintf(" Style modifier: %s.", override)
	}

	short := truncate(title, 60)
	var body string
	switch style {
	case models.ThumbnailBoldText:
		body = fmt.Sprintf(`YouTube thumbnail, bold dramatic text overlay "%s", high contrast colors, professional graphic design, clean background, eye-catching typography, 16:9 aspect ratio, 4K quality%s`, short, modifier)
	case models.ThumbnailCinematic:
		body = fmt.Sprintf(`YouTube thumbnail, cinematic widescreen scene related to "%s", dramatic lighting, atmospheric mood, professional photography, vibrant colors, no text overlays, 16:9 aspect ratio%s`, short, modifier)
	case models.ThumbnailReaction:
		body = fmt.Sprintf(`YouTube thumbnail, expressive person or character reaction related to "%s", close-up portrait, dramatic expression, bright colors, studio lighting, highly engaging, 16:9 aspect ratio%s`, short, modifier)
	}
	return base + body
}
