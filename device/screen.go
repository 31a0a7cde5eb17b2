package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nvasilev/mobpilot/ui"
)

// ScreenData is one observation of the device screen: the accessibility
// hierarchy, a screenshot, and the pixel dimensions.
type ScreenData struct {
	Elements []ui.Element `json:"elements"`
	// ScreenshotBase64 is the base64-encoded PNG, empty when capture
	// failed upstream.
	ScreenshotBase64 string `json:"base64"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
}

// Size returns the screen dimensions.
func (s ScreenData) Size() ui.Size {
	return ui.Size{Width: s.Width, Height: s.Height}
}

// ScreenClient reads screen observations from the screen API service.
type ScreenClient struct {
	baseURL string
	http    *http.Client

	// Retries and RetryDelay shape Get's retry loop. Defaults: 5 attempts,
	// 5 s apart.
	Retries    int
	RetryDelay time.Duration
}

// NewScreenClient creates a client for the screen API at baseURL.
func NewScreenClient(baseURL string) *ScreenClient {
	return &ScreenClient{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: 10 * time.Second},
		Retries:    5,
		RetryDelay: 5 * time.Second,
	}
}

// Get fetches the current screen data, retrying on failure until the retry
// budget runs out.
func (c *ScreenClient) Get(ctx context.Context) (ScreenData, error) {
	var last error
	for attempt := 0; attempt < c.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ScreenData{}, ctx.Err()
			case <-timer.C:
			}
		}
		data, err := c.getOnce(ctx)
		if err == nil {
			return data, nil
		}
		last = err
	}
	return ScreenData{}, &ErrUnavailable{
		Reason: fmt.Sprintf("screen api after %d attempts: %v", c.Retries, last),
	}
}

func (c *ScreenClient) getOnce(ctx context.Context) (ScreenData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/screen-info", nil)
	if err != nil {
		return ScreenData{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ScreenData{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return ScreenData{}, fmt.Errorf("screen api: status %d: %s", resp.StatusCode, body)
	}
	var data ScreenData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ScreenData{}, fmt.Errorf("screen api: decode: %w", err)
	}
	return data, nil
}

// Streaming reports whether the screen API's upstream frame stream is live.
func (c *ScreenClient) Streaming(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/streaming-status", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	var status struct {
		Connected bool `json:"is_streaming_connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, err
	}
	return status.Connected, nil
}
