package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/models"
)

var testFormat = models.Format{
	Name: "classic_cards",
	Frames: []models.FrameSpec{
		{Role: models.RoleHook, Theme: "bold_title", Seconds: 3},
		{Role: models.RoleBody, Theme: "card", Seconds: 6},
	},
}

func chatReply(content string) string {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(reply)
	return string(b)
}

func TestDraftParsesFencedResponse(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq chatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatReply("```json\n{\"title\":\"Why Zero Matters\",\"hook\":\"Zero was illegal once.\",\"slides\":[{\"role\":\"hook\",\"text\":\"Zero was illegal once.\"},{\"role\":\"body\",\"text\":\"Florence banned it in 1299.\"}],\"caption\":\"A number with a rap sheet.\",\"tags\":[\"math\"]}\n```")))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "gpt-4o-mini", time.Second)
	content, err := c.Draft(context.Background(), DraftRequest{Persona: "prof_turing", Topic: "math", Format: testFormat})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[1].Content, "prof_turing")
	assert.Contains(t, gotReq.Messages[1].Content, "classic_cards")

	assert.Equal(t, "Why Zero Matters", content.Title)
	require.Len(t, content.Slides, 2)
	assert.Equal(t, models.RoleBody, content.Slides[1].Role)
	assert.False(t, content.Fallback)
}

func TestDraftMalformedContentIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("Sure! Here is a script about math for you.")))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "gpt-4o-mini", time.Second)
	_, err := c.Draft(context.Background(), DraftRequest{Topic: "math", Format: testFormat})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDraftNoSlidesIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"title":"Empty","hook":"h","slides":[]}`)))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "gpt-4o-mini", time.Second)
	_, err := c.Draft(context.Background(), DraftRequest{Topic: "math", Format: testFormat})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDraftServerErrorIsNotSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "gpt-4o-mini", time.Second)
	_, err := c.Draft(context.Background(), DraftRequest{Topic: "math", Format: testFormat})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformed))
	assert.Contains(t, err.Error(), "status 503")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a":1} enjoy!`, `{"a":1}`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
