package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reelforge/reelforge/internal/models"
)

// Client calls the frame rendering service that turns slide text into
// finished frame images.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// RenderRequest pairs a validated draft with its format's frame plan.
type RenderRequest struct {
	JobID    string
	TenantID string
	Content  *models.Content
	Format   models.Format
}

type frameRequest struct {
	Role    string  `json:"role"`
	Theme   string  `json:"theme"`
	Seconds float64 `json:"seconds"`
	Text    string  `json:"text"`
}

type renderRequestBody struct {
	JobID    string         `json:"jobId"`
	TenantID string         `json:"tenantId"`
	Format   string         `json:"format"`
	Title    string         `json:"title"`
	Frames   []frameRequest `json:"frames"`
}

type renderResponseBody struct {
	URLs []string `json:"urls"`
}

// Render submits one job's frames and returns exactly one image URL per
// frame in the plan. Any other shape is an error.
func (c *Client) Render(ctx context.Context, req RenderRequest) ([]string, error) {
	if req.Content == nil {
		return nil, fmt.Errorf("render request has no content")
	}
	if len(req.Content.Slides) < len(req.Format.Frames) {
		return nil, fmt.Errorf("render request has %d slides for %d frames", len(req.Content.Slides), len(req.Format.Frames))
	}

	body := renderRequestBody{
		JobID:    req.JobID,
		TenantID: req.TenantID,
		Format:   req.Format.Name,
		Title:    req.Content.Title,
		Frames:   make([]frameRequest, len(req.Format.Frames)),
	}
	for i, spec := range req.Format.Frames {
		body.Frames[i] = frameRequest{
			Role:    spec.Role,
			Theme:   spec.Theme,
			Seconds: spec.Seconds,
			Text:    req.Content.Slides[i].Text,
		}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/frames", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("renderer API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var rendered renderResponseBody
	if err := json.Unmarshal(respBody, &rendered); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(rendered.URLs) != len(req.Format.Frames) {
		return nil, fmt.Errorf("renderer returned %d urls for %d frames", len(rendered.URLs), len(req.Format.Frames))
	}
	for i, u := range rendered.URLs {
		if u == "" {
			return nil, fmt.Errorf("renderer returned empty url for frame %d", i)
		}
	}

	return rendered.URLs, nil
}
