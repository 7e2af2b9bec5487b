package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reelforge/reelforge/internal/models"
)

// ErrMalformed marks a response the model produced but we could not parse.
// Callers substitute a fallback draft for these instead of failing the job.
var ErrMalformed = errors.New("malformed draft response")

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

// DraftRequest carries everything the model needs for one script.
type DraftRequest struct {
	Persona string
	Topic   string
	Format  models.Format
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Draft asks the model for one structured content draft matching the
// format's frame plan.
func (c *Client) Draft(ctx context.Context, req DraftRequest) (*models.Content, error) {
	raw, err := c.chatCompletion(ctx, systemPrompt, buildDraftPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseDraft(raw)
}

func (c *Client) chatCompletion(ctx context.Context, system, user string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

const systemPrompt = `You are a scriptwriter for short-form educational videos.
You write tight, factual scripts that teach one idea well.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.`

func buildDraftPrompt(req DraftRequest) string {
	var plan strings.Builder
	for i, frame := range req.Format.Frames {
		fmt.Fprintf(&plan, "%d. role=%s theme=%s (~%.0fs)\n", i+1, frame.Role, frame.Theme, frame.Seconds)
	}

	return fmt.Sprintf(`Write a short educational video script in the voice of persona %q about the topic %q.

The video uses the %q layout with exactly %d slides, in this order:
%s
Each slide becomes one frame on screen, so keep every slide's text under 400 characters.
The hook slide opens a curiosity gap in one or two sentences.
Body slides each teach exactly one point.
Example slides walk through one concrete case.
Recap slides restate the takeaway in one sentence.
CTA slides invite the viewer to follow for more.

Output as JSON: {"title": "...", "hook": "...", "slides": [{"role": "hook", "text": "..."}], "caption": "...", "tags": ["tag1", "tag2"]}
The slides array must have exactly %d entries whose roles match the plan above.`,
		req.Persona, req.Topic, req.Format.Name, len(req.Format.Frames), plan.String(), len(req.Format.Frames))
}

func parseDraft(raw string) (*models.Content, error) {
	raw = extractJSON(raw)

	var content models.Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(content.Slides) == 0 {
		return nil, fmt.Errorf("%w: no slides", ErrMalformed)
	}
	content.Fallback = false
	return &content, nil
}

// extractJSON pulls the JSON object out of a response that may wrap it in
// code fences or prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
