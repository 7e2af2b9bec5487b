package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForStep(t *testing.T) {
	assert.Equal(t, StatusPending, WaitingStatus(StepGenerate))
	assert.Equal(t, StatusFramesPending, WaitingStatus(StepFrames))
	assert.Equal(t, StatusAssemblyPending, WaitingStatus(StepAssemble))
	assert.Equal(t, StatusUploadPending, WaitingStatus(StepUpload))

	assert.Equal(t, StatusGenerating, ActiveStatus(StepGenerate))
	assert.Equal(t, StatusRendering, ActiveStatus(StepFrames))
	assert.Equal(t, StatusAssembling, ActiveStatus(StepAssemble))
	assert.Equal(t, StatusUploading, ActiveStatus(StepUpload))
}

func TestPayloadMergeIsAdditive(t *testing.T) {
	base := Payload{
		Content: &Content{Title: "Why the Sky is Blue"},
		Format:  "classic_cards",
	}

	merged := base.Merge(Payload{FrameURLs: []string{"u1", "u2"}})

	require.NotNil(t, merged.Content)
	assert.Equal(t, "Why the Sky is Blue", merged.Content.Title)
	assert.Equal(t, "classic_cards", merged.Format)
	assert.Equal(t, []string{"u1", "u2"}, merged.FrameURLs)
}

func TestPayloadMergeZeroSectionsDoNotErase(t *testing.T) {
	base := Payload{
		Content:   &Content{Title: "t"},
		Format:    "f",
		FrameURLs: []string{"u1"},
		VideoURL:  "v",
		VideoSize: 10,
		Duration:  12.5,
	}

	merged := base.Merge(Payload{})

	assert.Equal(t, base, merged)
}

func TestPayloadMergeReplacesMentionedSection(t *testing.T) {
	base := Payload{FrameURLs: []string{"old"}}

	merged := base.Merge(Payload{FrameURLs: []string{"new1", "new2"}})

	assert.Equal(t, []string{"new1", "new2"}, merged.FrameURLs)
}

func TestPayloadScanRoundtrip(t *testing.T) {
	p := Payload{
		Content:   &Content{Title: "t", Hook: "h", Slides: []Slide{{Role: RoleHook, Text: "x"}}},
		Format:    "f",
		FrameURLs: []string{"u1"},
	}

	value, err := p.Value()
	require.NoError(t, err)

	var got Payload
	require.NoError(t, got.Scan(value))
	assert.Equal(t, p, got)

	// NULL column stays a zero payload.
	var empty Payload
	require.NoError(t, empty.Scan(nil))
	assert.Equal(t, Payload{}, empty)
}
