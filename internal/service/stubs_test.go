package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/generator"
	"github.com/reelforge/reelforge/internal/service/hosting"
	"github.com/reelforge/reelforge/internal/service/renderer"
	"github.com/reelforge/reelforge/internal/vault"
)

const stubStoreBase = "https://cdn.test"

// stageEnv wires the shared plumbing the stage services sit on.
type stageEnv struct {
	db       *gorm.DB
	store    *JobStore
	registry *TenantRegistry
	vault    vault.Vault
	shared   *stubStore
	monitor  *MonitoringService
}

func newStageEnv(t *testing.T) *stageEnv {
	t.Helper()
	db := newTestDB(t)
	v := newTestVault(t)
	shared := &stubStore{}
	return &stageEnv{
		db:       db,
		store:    NewJobStore(db, zap.NewNop()),
		registry: NewTenantRegistry(db, v, shared, time.Minute, zap.NewNop()),
		vault:    v,
		shared:   shared,
		monitor:  NewMonitoringService(db, zap.NewNop()),
	}
}

// stubStore is an in-memory ObjectStore. The zero value is usable.
type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
	fetched []string
	deleted []string

	putErr    error
	fetchErr  error
	deleteErr error
}

func (s *stubStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = data
	s.puts = append(s.puts, key)
	return stubStoreBase + "/" + key, nil
}

func (s *stubStore) Fetch(ctx context.Context, rawURL string, dst io.Writer) error {
	s.mu.Lock()
	if s.fetchErr != nil {
		s.mu.Unlock()
		return s.fetchErr
	}
	s.fetched = append(s.fetched, rawURL)
	data, ok := s.objects[strings.TrimPrefix(rawURL, stubStoreBase+"/")]
	s.mu.Unlock()
	if !ok {
		data = []byte("stub-object")
	}
	_, err := dst.Write(data)
	return err
}

func (s *stubStore) Delete(ctx context.Context, rawURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	if !strings.HasPrefix(rawURL, stubStoreBase+"/") {
		return false, nil
	}
	delete(s.objects, strings.TrimPrefix(rawURL, stubStoreBase+"/"))
	s.deleted = append(s.deleted, rawURL)
	return true, nil
}

// stubDrafter returns a draft shaped for the requested format unless a
// custom draft func is set.
type stubDrafter struct {
	mu    sync.Mutex
	reqs  []generator.DraftRequest
	draft func(req generator.DraftRequest) (*models.Content, error)
}

func (d *stubDrafter) Draft(ctx context.Context, req generator.DraftRequest) (*models.Content, error) {
	d.mu.Lock()
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()
	if d.draft != nil {
		return d.draft(req)
	}
	return draftFor(req.Format, req.Topic), nil
}

func draftFor(format models.Format, topic string) *models.Content {
	slides := make([]models.Slide, len(format.Frames))
	for i, frame := range format.Frames {
		slides[i] = models.Slide{
			Role: frame.Role,
			Text: fmt.Sprintf("Slide %d keeps it short and concrete about %s.", i+1, topic),
		}
	}
	return &models.Content{
		Title:   "All About " + topic,
		Hook:    "Wait until you see this.",
		Slides:  slides,
		Caption: "A closer look at " + topic + ".",
		Tags:    []string{topic, "learning"},
	}
}

// stubRenderer returns one URL per frame unless a custom render func is set.
type stubRenderer struct {
	mu     sync.Mutex
	reqs   []renderer.RenderRequest
	render func(req renderer.RenderRequest) ([]string, error)
}

func (r *stubRenderer) Render(ctx context.Context, req renderer.RenderRequest) ([]string, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.render != nil {
		return r.render(req)
	}
	urls := make([]string, len(req.Format.Frames))
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/frames/%s/%s/%d.png", stubStoreBase, req.TenantID, req.JobID, i)
	}
	return urls, nil
}

// stubEncoder stands in for ffmpeg: it writes placeholder outputs and
// insists its inputs exist, like the real binary would.
type stubEncoder struct {
	mu      sync.Mutex
	clips   []float64
	concats int
	audio   string
	volume  float64

	clipDelay time.Duration
	clipErr   error
	concatErr error
}

func (e *stubEncoder) StillClip(ctx context.Context, framePath, clipPath string, seconds float64) error {
	if e.clipDelay > 0 {
		select {
		case <-time.After(e.clipDelay):
		case <-ctx.Done():
			return fmt.Errorf("render clip: ffmpeg killed: %w", ctx.Err())
		}
	}
	if e.clipErr != nil {
		return e.clipErr
	}
	if _, err := os.Stat(framePath); err != nil {
		return fmt.Errorf("render clip: %w", err)
	}
	e.mu.Lock()
	e.clips = append(e.clips, seconds)
	e.mu.Unlock()
	return os.WriteFile(clipPath, []byte("clip"), 0o644)
}

func (e *stubEncoder) Concat(ctx context.Context, listPath, audioPath, outPath string, audioVolume float64) error {
	if e.concatErr != nil {
		return e.concatErr
	}
	if _, err := os.Stat(listPath); err != nil {
		return fmt.Errorf("concat: %w", err)
	}
	e.mu.Lock()
	e.concats++
	e.audio = audioPath
	e.volume = audioVolume
	e.mu.Unlock()
	return os.WriteFile(outPath, []byte("encoded-video"), 0o644)
}

// stubHost records uploads and playlist traffic.
type stubHost struct {
	mu        sync.Mutex
	uploads   []stubUpload
	playlists []hosting.Playlist
	attached  map[string][]string
	listCalls int

	uploadErr error
	listErr   error
	createErr error
	attachErr error
}

type stubUpload struct {
	size int64
	meta hosting.VideoMetadata
}

func (h *stubHost) Upload(ctx context.Context, videoPath string, meta hosting.VideoMetadata) (*models.UploadResult, error) {
	if h.uploadErr != nil {
		return nil, h.uploadErr
	}
	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uploads = append(h.uploads, stubUpload{size: info.Size(), meta: meta})
	n := len(h.uploads)
	return &models.UploadResult{
		ExternalID:  fmt.Sprintf("vid-%d", n),
		WatchURL:    fmt.Sprintf("https://host.test/watch/vid-%d", n),
		PublishedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (h *stubHost) ListPlaylists(ctx context.Context) ([]hosting.Playlist, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listCalls++
	if h.listErr != nil {
		return nil, h.listErr
	}
	return append([]hosting.Playlist(nil), h.playlists...), nil
}

func (h *stubHost) CreatePlaylist(ctx context.Context, title string) (*hosting.Playlist, error) {
	if h.createErr != nil {
		return nil, h.createErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	pl := hosting.Playlist{ID: fmt.Sprintf("pl-%d", len(h.playlists)+1), Title: title}
	h.playlists = append(h.playlists, pl)
	return &pl, nil
}

func (h *stubHost) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	if h.attachErr != nil {
		return h.attachErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attached == nil {
		h.attached = make(map[string][]string)
	}
	h.attached[playlistID] = append(h.attached[playlistID], videoID)
	return nil
}
