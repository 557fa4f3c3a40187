package processing

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type fakeText struct {
	mu       sync.Mutex
	response string
	err      error
	requests []StructuredRequest
}

func (f *fakeText) GenerateJSON(_ context.Context, req StructuredRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.response, f.err
}

type fakeVision struct {
	description string
	err         error
	calls       int
}

func (f *fakeVision) DescribeImage(context.Context, []byte, string, string) (string, error) {
	f.calls++
	return f.description, f.err
}

type fakeImages struct {
	images  []GeneratedImage
	err     error
	request ImageRequest
}

func (f *fakeImages) GenerateImages(_ context.Context, req ImageRequest) ([]GeneratedImage, error) {
	f.request = req
	if req.OnStatus != nil {
		req.OnStatus("fal.ai: IN_PROGRESS")
	}
	return f.images, f.err
}

func newTestGenerator(text StructuredGenerator, vision ImageDescriber, images ImageGenerator) *Generator {
	return NewGenerator(text, vision, images, DefaultTimeouts())
}

func titlesJSON(styles ...string) string {
	if len(styles) == 0 {
		styles = TitleStyles
	}
	items := make([]string, len(styles))
	for i, s := range styles {
		items[i] = fmt.Sprintf(`{"style":%q,"title":"Remixed title number %d","reasoning":"Because it hooks the viewer early"}`, s, i+1)
	}
	return `{"variations":[` + strings.Join(items, ",") + `]}`
}

type sceneSpec struct {
	number   int
	duration string
	dialogue string
	broll    string
}

func scriptJSON(scenes ...sceneSpec) string {
	items := make([]string, len(scenes))
	for i, s := range scenes {
		dialogue := s.dialogue
		if dialogue == "" {
			dialogue = "Here is what you need to know"
		}
		broll := s.broll
		if broll == "" {
			broll = "Close-up of hands typing"
		}
		items[i] = fmt.Sprintf(`{"scene_number":%d,"dialogue_line":%q,"duration_seconds":%s,"broll_description":%q,"on_screen_text":""}`,
			s.number, dialogue, s.duration, broll)
	}
	return `{"tone":"energetic","target_audience":"developers","scenes":[` + strings.Join(items, ",") + `]}`
}
