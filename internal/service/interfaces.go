package service

import (
	"context"
	"io"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/generator"
	"github.com/reelforge/reelforge/internal/service/hosting"
	"github.com/reelforge/reelforge/internal/service/renderer"
)

// ContentDrafter produces a structured draft for one topic.
type ContentDrafter interface {
	Draft(ctx context.Context, req generator.DraftRequest) (*models.Content, error)
}

// FrameRenderer turns a draft plus a frame plan into one image URL per frame.
type FrameRenderer interface {
	Render(ctx context.Context, req renderer.RenderRequest) ([]string, error)
}

// ObjectStore holds pipeline artifacts between stages.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Fetch(ctx context.Context, rawURL string, dst io.Writer) error
	Delete(ctx context.Context, rawURL string) (bool, error)
}

// VideoHost is the publishing platform for one tenant's credentials.
type VideoHost interface {
	Upload(ctx context.Context, videoPath string, meta hosting.VideoMetadata) (*models.UploadResult, error)
	ListPlaylists(ctx context.Context) ([]hosting.Playlist, error)
	CreatePlaylist(ctx context.Context, title string) (*hosting.Playlist, error)
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// ClipEncoder renders still-frame clips and concatenates them.
type ClipEncoder interface {
	StillClip(ctx context.Context, framePath, clipPath string, seconds float64) error
	Concat(ctx context.Context, listPath, audioPath, outPath string, audioVolume float64) error
}
