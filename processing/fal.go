package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImageRequest asks for NumImages images of Width x Height.
type ImageRequest struct {
	Prompt    string
	Width     int
	Height    int
	NumImages int
	Seed      int
	// OnStatus, when set, is called each time the provider reports a new queue status.
	OnStatus func(status string)
}

type GeneratedImage struct {
	URL         string `json:"url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type ImageGenerator interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error)
}

// FalClient talks to the fal.ai queue API: submit, poll status, fetch result.
type FalClient struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	model        string
	pollInterval time.Duration
}

func NewFalClient(apiKey, baseURL, model string) *FalClient {
	return &FalClient{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		pollInterval: time.Second,
	}
}

type falImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type falInput struct {
	Prompt              string       `json:"prompt"`
	ImageSize           falImageSize `json:"image_size"`
	NumImages           int          `json:"num_images"`
	EnableSafetyChecker bool         `json:"enable_safety_checker"`
	Seed                int          `json:"seed"`
}

type falSubmitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falStatusResponse struct {
	Status string `json:"status"`
}

type falOutput struct {
	Images []GeneratedImage `json:"images"`
}

func (c *FalClient) GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	var submitted falSubmitResponse
	err := c.do(ctx, http.MethodPost, c.baseURL+"/"+c.model, falInput{
		Prompt:              req.Prompt,
		ImageSize:           falImageSize{Width: req.Width, Height: req.Height},
		NumImages:           req.NumImages,
		EnableSafetyChecker: true,
		Seed:                req.Seed,
	}, &submitted)
	if err != nil {
		return nil, fmt.Errorf("fal.ai submit: %w", err)
	}
	if submitted.StatusURL == "" || submitted.ResponseURL == "" {
		return nil, fmt.Errorf("fal.ai submit: missing status or response url for request %q", submitted.RequestID)
	}

	if err := c.waitForCompletion(ctx, submitted.StatusURL, req.OnStatus); err != nil {
		return nil, err
	}

	var out falOutput
	if err := c.do(ctx, http.MethodGet, submitted.ResponseURL, nil, &out); err != nil {
		return nil, fmt.Errorf("fal.ai result: %w", err)
	}
	return out.Images, nil
}

func (c *FalClient) waitForCompletion(ctx context.Context, statusURL string, onStatus func(string)) error {
	last := ""
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status falStatusResponse
		if err := c.do(ctx, http.MethodGet, statusURL, nil, &status); err != nil {
			return fmt.Errorf("fal.ai status: %w", err)
		}
		if status.Status != last {
			last = status.Status
			if onStatus != nil {
				onStatus("fal.ai: " + status.Status)
			}
		}

		switch status.Status {
		case "COMPLETED":
			return nil
		case "IN_QUEUE", "IN_PROGRESS":
		default:
			return fmt.Errorf("fal.ai request ended with status %q", status.Status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("fal.ai: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *FalClient) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), rawExcerptLen))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
