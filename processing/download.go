package processing

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const maxDownloadBytes = 20 << 20

// Download fetches url into memory and returns the body with its content type.
func Download(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
