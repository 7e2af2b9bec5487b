package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/models"
)

func renderReq() RenderRequest {
	return RenderRequest{
		JobID:    "job-1",
		TenantID: "tenant-1",
		Content: &models.Content{
			Title: "Why Zero Matters",
			Hook:  "Zero was illegal once.",
			Slides: []models.Slide{
				{Role: models.RoleHook, Text: "Zero was illegal once."},
				{Role: models.RoleBody, Text: "Florence banned it in 1299."},
			},
		},
		Format: models.Format{
			Name: "classic_cards",
			Frames: []models.FrameSpec{
				{Role: models.RoleHook, Theme: "bold_title", Seconds: 3},
				{Role: models.RoleBody, Theme: "card", Seconds: 6},
			},
		},
	}
}

func TestRenderSendsFramePlan(t *testing.T) {
	var gotBody renderRequestBody
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/frames", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(renderResponseBody{URLs: []string{
			"https://cdn.example/frames/job-1/0.png",
			"https://cdn.example/frames/job-1/1.png",
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "render-key", time.Second)
	urls, err := c.Render(context.Background(), renderReq())
	require.NoError(t, err)

	assert.Equal(t, "Bearer render-key", gotAuth)
	assert.Equal(t, "job-1", gotBody.JobID)
	assert.Equal(t, "classic_cards", gotBody.Format)
	require.Len(t, gotBody.Frames, 2)
	assert.Equal(t, "bold_title", gotBody.Frames[0].Theme)
	assert.Equal(t, "Zero was illegal once.", gotBody.Frames[0].Text)
	assert.Equal(t, "Florence banned it in 1299.", gotBody.Frames[1].Text)

	require.Len(t, urls, 2)
	assert.Equal(t, "https://cdn.example/frames/job-1/0.png", urls[0])
}

func TestRenderRejectsCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(renderResponseBody{URLs: []string{"https://cdn.example/only-one.png"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "render-key", time.Second)
	_, err := c.Render(context.Background(), renderReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 1 urls for 2 frames")
}

func TestRenderRejectsEmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(renderResponseBody{URLs: []string{"https://cdn.example/0.png", ""}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "render-key", time.Second)
	_, err := c.Render(context.Background(), renderReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty url for frame 1")
}

func TestRenderRejectsMissingContent(t *testing.T) {
	c := NewClient("http://unused", "render-key", time.Second)

	req := renderReq()
	req.Content = nil
	_, err := c.Render(context.Background(), req)
	assert.ErrorContains(t, err, "no content")

	req = renderReq()
	req.Content.Slides = req.Content.Slides[:1]
	_, err = c.Render(context.Background(), req)
	assert.ErrorContains(t, err, "1 slides for 2 frames")
}

func TestRenderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "render farm down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "render-key", time.Second)
	_, err := c.Render(context.Background(), renderReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("status %d", http.StatusBadGateway))
}
