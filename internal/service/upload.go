package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/hosting"
	"github.com/reelforge/reelforge/pkg/cache"
	"github.com/reelforge/reelforge/pkg/util"
)

// Host clients carry a live OAuth token, so they are reused across cycles
// rather than rebuilt per job. Rotated credentials self-heal: the first 401
// drops the cached client and the registry entry behind it.
const hostCacheTTL = time.Hour

// UploadService publishes assembled videos to the hosting platform
// (step 4 → completed). One job per invocation.
type UploadService struct {
	store    *JobStore
	registry *TenantRegistry
	monitor  *MonitoringService
	logger   *zap.Logger

	newHost   func(creds hosting.Credentials) (VideoHost, error)
	hosts     *cache.Cache[VideoHost]
	playlists *cache.Cache[string]

	maxAttempts int
	backoff     time.Duration
	lease       time.Duration
	maxTags     int
}

func NewUploadService(hostCfg *config.HostingConfig, pipeCfg *config.PipelineConfig, store *JobStore, registry *TenantRegistry, monitor *MonitoringService, logger *zap.Logger) *UploadService {
	s := &UploadService{
		store:       store,
		registry:    registry,
		monitor:     monitor,
		logger:      logger,
		hosts:       cache.New[VideoHost](hostCacheTTL),
		playlists:   cache.New[string](hostCacheTTL),
		maxAttempts: 3,
		backoff:     2 * time.Minute,
		lease:       30 * time.Minute,
		maxTags:     15,
	}

	var baseURL, tokenURL string
	uploadTimeout := 10 * time.Minute
	if hostCfg != nil {
		baseURL = hostCfg.BaseURL
		tokenURL = hostCfg.TokenURL
		uploadTimeout = parseDurationOr(hostCfg.UploadTimeout, uploadTimeout)
	}
	s.newHost = func(creds hosting.Credentials) (VideoHost, error) {
		return hosting.NewClient(baseURL, tokenURL, creds, uploadTimeout)
	}

	if pipeCfg != nil {
		if pipeCfg.MaxAttempts > 0 {
			s.maxAttempts = pipeCfg.MaxAttempts
		}
		s.backoff = parseDurationOr(pipeCfg.RetryBackoff, s.backoff)
		s.lease = parseDurationOr(pipeCfg.ClaimLease, s.lease)
	}
	return s
}

// Run sweeps for recoverable jobs, then uploads the oldest video waiting for
// publication.
func (s *UploadService) Run(ctx context.Context, opts TriggerOptions) (*CycleSummary, error) {
	summary := newSummary("upload")
	runSweeps(ctx, s.store, summary, opts.TenantID, s.maxAttempts, s.backoff, s.lease, s.logger)

	job, err := s.store.ClaimNext(ctx, models.StepUpload, opts.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim upload job: %w", err)
	}
	if job == nil {
		return summary, nil
	}
	summary.Claimed = 1
	summary.JobIDs = append(summary.JobIDs, job.ID)

	if err := s.processJob(ctx, job); err != nil {
		s.failJob(ctx, summary, job, err)
		return summary, nil
	}
	summary.Succeeded = 1
	return summary, nil
}

func (s *UploadService) processJob(ctx context.Context, job *models.Job) error {
	if job.Payload.Content == nil {
		return fmt.Errorf("job has no draft content")
	}
	if job.Payload.VideoURL == "" {
		return fmt.Errorf("job has no assembled video")
	}

	tenant, err := s.registry.Tenant(ctx, job.TenantID)
	if err != nil {
		return err
	}
	host, err := s.hostFor(ctx, tenant)
	if err != nil {
		return err
	}
	objects, err := s.registry.StorageFor(ctx, tenant)
	if err != nil {
		return err
	}

	videoPath, err := s.downloadVideo(ctx, objects, job)
	if err != nil {
		return err
	}
	defer os.Remove(videoPath)

	meta := buildMetadata(job.Payload.Content, tenant.Branding, s.maxTags)
	result, err := host.Upload(ctx, videoPath, meta)
	if err != nil {
		if errors.Is(err, hosting.ErrUnauthorized) {
			s.invalidateTenant(tenant.ID)
		}
		return fmt.Errorf("failed to upload video: %w", err)
	}

	if playlistID := s.attachPlaylist(ctx, host, tenant, job.Persona, result.ExternalID); playlistID != "" {
		result.PlaylistID = playlistID
	}

	if _, err := s.store.MarkCompleted(ctx, job.ID, result.ExternalID, *result); err != nil {
		return err
	}

	s.cleanupRemote(ctx, objects, job)

	s.logger.Info("Video published",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("external_id", result.ExternalID),
		zap.String("watch_url", result.WatchURL))
	return nil
}

func (s *UploadService) hostFor(ctx context.Context, tenant *models.Tenant) (VideoHost, error) {
	if host, ok := s.hosts.Get(tenant.ID); ok {
		return host, nil
	}
	creds, err := s.registry.PlatformCredentials(ctx, tenant)
	if err != nil {
		return nil, err
	}
	host, err := s.newHost(creds)
	if err != nil {
		return nil, err
	}
	s.hosts.Set(tenant.ID, host)
	return host, nil
}

func (s *UploadService) downloadVideo(ctx context.Context, objects ObjectStore, job *models.Job) (string, error) {
	f, err := os.CreateTemp("", "upload-"+job.ID+"-*.mp4")
	if err != nil {
		return "", fmt.Errorf("failed to create temp video: %w", err)
	}
	if err := objects.Fetch(ctx, job.Payload.VideoURL, f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to download video: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp video: %w", err)
	}
	return f.Name(), nil
}

// attachPlaylist files the video under the persona's playlist, creating it on
// the platform the first time. Best effort: any failure here is logged and
// the published job completes without a playlist.
func (s *UploadService) attachPlaylist(ctx context.Context, host VideoHost, tenant *models.Tenant, persona, videoID string) string {
	title := playlistTitle(tenant.Branding, persona)
	if title == "" || videoID == "" {
		return ""
	}

	key := tenant.ID + "/" + persona
	playlistID, ok := s.playlists.Get(key)
	if !ok {
		var err error
		playlistID, err = resolvePlaylist(ctx, host, title)
		if err != nil {
			s.logger.Warn("Failed to resolve playlist",
				zap.String("tenant_id", tenant.ID),
				zap.String("persona", persona),
				zap.Error(err))
			return ""
		}
		s.playlists.Set(key, playlistID)
	}

	if err := host.AddToPlaylist(ctx, playlistID, videoID); err != nil {
		s.logger.Warn("Failed to add video to playlist",
			zap.String("playlist_id", playlistID),
			zap.String("video_id", videoID),
			zap.Error(err))
		return ""
	}
	return playlistID
}

func resolvePlaylist(ctx context.Context, host VideoHost, title string) (string, error) {
	lists, err := host.ListPlaylists(ctx)
	if err != nil {
		return "", err
	}
	for _, pl := range lists {
		if strings.EqualFold(pl.Title, title) {
			return pl.ID, nil
		}
	}
	created, err := host.CreatePlaylist(ctx, title)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func playlistTitle(branding models.Branding, persona string) string {
	if persona == "" {
		return ""
	}
	title := util.TitleCase(persona)
	if branding.PlaylistPrefix != "" {
		title = branding.PlaylistPrefix + " " + title
	}
	return title
}

// buildMetadata fills the platform metadata from the draft and the tenant's
// branding. The same payload always produces the same metadata.
func buildMetadata(content *models.Content, branding models.Branding, maxTags int) hosting.VideoMetadata {
	title := content.Title
	if branding.TitleSuffix != "" {
		title += " " + branding.TitleSuffix
	}

	description := content.Hook
	if content.Caption != "" {
		description += "\n\n" + content.Caption
	}
	if branding.DescriptionTemplate != "" {
		description = util.FillTemplate(branding.DescriptionTemplate, map[string]string{
			"title":   content.Title,
			"hook":    content.Hook,
			"caption": content.Caption,
			"channel": branding.ChannelHandle,
		})
	}

	return hosting.VideoMetadata{
		Title:       util.Truncate(title, 100),
		Description: util.Truncate(description, 5000),
		Tags:        util.MergeTags(maxTags, content.Tags, branding.DefaultTags),
	}
}

// invalidateTenant drops everything derived from the tenant's current
// credentials so the next attempt re-reads the vault.
func (s *UploadService) invalidateTenant(id string) {
	s.hosts.Delete(id)
	s.playlists.DeletePrefix(id + "/")
	s.registry.Invalidate(id)
}

// cleanupRemote deletes the stored frames and video once the platform has
// the upload. Failures are logged; the job stays completed.
func (s *UploadService) cleanupRemote(ctx context.Context, objects ObjectStore, job *models.Job) {
	targets := append([]string{}, job.Payload.FrameURLs...)
	targets = append(targets, job.Payload.VideoURL)
	for _, rawURL := range targets {
		deleted, err := objects.Delete(ctx, rawURL)
		if err != nil {
			s.logger.Warn("Failed to delete stored object",
				zap.String("url", rawURL), zap.Error(err))
			continue
		}
		if !deleted {
			s.logger.Debug("Left foreign object in place", zap.String("url", rawURL))
		}
	}
}

func (s *UploadService) failJob(ctx context.Context, summary *CycleSummary, job *models.Job, cause error) {
	summary.recordFailure(job.ID, cause)
	if err := s.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
		s.logger.Error("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.monitor.RecordError(ctx, "error", "upload", "upload failed", cause.Error(),
		WithTenant(job.TenantID), WithJob(job.ID))
	s.logger.Warn("Upload failed",
		zap.String("job_id", job.ID),
		zap.Error(cause))
}
