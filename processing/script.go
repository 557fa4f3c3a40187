package processing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// ScriptScene is one scene as returned by the model.
type ScriptScene struct {
	SceneNumber      int    `json:"scene_number" validate:"min=1"`
	DialogueLine     string `json:"dialogue_line" validate:"min=1" jsonschema_description:"Spoken dialogue for this scene"`
	DurationSeconds  int    `json:"duration_seconds" validate:"min=15,max=45" jsonschema_description:"Integer seconds between 15 and 45"`
	BrollDescription string `json:"broll_description" validate:"min=5" jsonschema_description:"What visual footage plays during the scene"`
	OnScreenText     string `json:"on_screen_text" jsonschema_description:"Optional text overlay, empty when none"`
}

// RemixedScript is the JSON the model must return.
type RemixedScript struct {
	Tone           string        `json:"tone"`
	TargetAudience string        `json:"target_audience"`
	Scenes         []ScriptScene `json:"scenes" validate:"min=1,dive"`
}

// TotalDuration sums the scene durations.
func (s *RemixedScript) TotalDuration() int {
	total := 0
	for _, sc := range s.Scenes {
		total += sc.DurationSeconds
	}
	return total
}

var remixedScriptSchema = GenerateSchema[RemixedScript]()

type ScriptParams struct {
	OriginalTitle         string
	Transcript            string
	ChannelName           string
	TargetDurationSeconds int
}

// GenerateScript rewrites the transcript as scenes. Field constraints are
// checked first; scene numbering is checked after and reported as ErrSceneOrdering.
func (g *Generator) GenerateScript(ctx context.Context, params ScriptParams) (_ *RemixedScript, err error) {
	ctx, span := startSpan(ctx, "processing.GenerateScript", attribute.Int("transcript_len", len(params.Transcript)))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, g.Timeouts.Text)
	defer cancel()

	raw, err := g.Text.GenerateJSON(ctx, StructuredRequest{
		Name:        "remixed_script",
		Description: "A remixed video script split into scenes",
		Prompt:      BuildScriptPrompt(params),
		Schema:      remixedScriptSchema,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("script generation: %w", err)
	}

	script, err := decodeResponse[RemixedScript]("script", raw)
	if err != nil {
		return nil, err
	}
	if err := CheckSceneOrder(script.Scenes); err != nil {
		return nil, err
	}
	return script, nil
}

// CheckSceneOrder requires scene_number == position for positions 1..n.
func CheckSceneOrder(scenes []ScriptScene) error {
	for i, sc := range scenes {
		if sc.SceneNumber != i+1 {
			return newGenerationError(ErrSceneOrdering, "script",
				fmt.Sprintf("scene numbers must be sequential starting at 1: got scene_number %d at position %d", sc.SceneNumber, i+1), "")
		}
	}
	return nil
}

func BuildScriptPrompt(params ScriptParams) string {
	duration := ""
	if params.TargetDurationSeconds > 0 {
		duration = fmt.Sprintf("Target total duration: ~%d minutes", roundMinutes(params.TargetDurationSeconds))
	}

	return fmt.Sprintf(`You are a YouTube script editor. Rewrite this video content as an engaging script split into scenes.

Original title: %q
Channel: %q
%s

Original transcript:
%s

Rewrite this as a remixed script with these rules:
1. Split into scenes. Each scene: 15-45 seconds of spoken dialogue (estimate: ~150 words/min)
2. Scene numbers start at 1 and increase sequentially, with no gaps and no duplicates
3. Each scene needs a broll_description: what visual footage would play (e.g. "Close-up of hands typing on keyboard")
4. duration_seconds must be an integer between 15 and 45
5. Keep the core information but improve pacing, hook, and engagement
6. Set on_screen_text to an empty string when a scene has no text overlay

CRITICAL: scene_number must start at 1 and be sequential. duration_seconds must be 15-45. Do not include scene_number gaps.`,
		params.OriginalTitle, params.ChannelName, duration, truncate(params.Transcript, 2000))
}
