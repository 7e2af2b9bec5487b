package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/storage"
	"github.com/reelforge/reelforge/pkg/ffmpeg"
)

// AssemblyService turns rendered frames into a finished video (step 3 → 4).
// It processes exactly one job per invocation: encoding is the expensive part
// of the pipeline and a single ffmpeg run already saturates a small box.
type AssemblyService struct {
	store    *JobStore
	registry *TenantRegistry
	encoder  ClipEncoder
	monitor  *MonitoringService
	logger   *zap.Logger

	workDir       string
	audioDir      string
	audioVolume   float64
	clipTimeout   time.Duration
	concatTimeout time.Duration
}

func NewAssemblyService(cfg *config.PipelineConfig, store *JobStore, registry *TenantRegistry, encoder ClipEncoder, monitor *MonitoringService, logger *zap.Logger) *AssemblyService {
	s := &AssemblyService{
		store:         store,
		registry:      registry,
		encoder:       encoder,
		monitor:       monitor,
		logger:        logger,
		audioVolume:   0.2,
		clipTimeout:   2 * time.Minute,
		concatTimeout: 5 * time.Minute,
	}
	if cfg != nil {
		s.workDir = cfg.WorkDir
		s.audioDir = cfg.AudioDir
		if cfg.AudioVolume > 0 {
			s.audioVolume = cfg.AudioVolume
		}
		s.clipTimeout = parseDurationOr(cfg.ClipTimeout, s.clipTimeout)
		s.concatTimeout = parseDurationOr(cfg.ConcatTimeout, s.concatTimeout)
	}
	return s
}

// Run claims one assembly-ready job. With opts.Wait the phases run inline;
// otherwise they continue on a detached context after Run returns, so an HTTP
// trigger is not held open for the length of an encode.
func (s *AssemblyService) Run(ctx context.Context, opts TriggerOptions) (*CycleSummary, error) {
	summary := newSummary("assemble")

	job, err := s.store.ClaimNext(ctx, models.StepAssemble, opts.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim assembly job: %w", err)
	}
	if job == nil {
		return summary, nil
	}
	summary.Claimed = 1
	summary.JobIDs = append(summary.JobIDs, job.ID)

	if !opts.Wait {
		go func() {
			dctx, cancel := s.detachedContext()
			defer cancel()
			if err := s.assembleSafe(dctx, job); err != nil {
				s.failJob(nil, job, err)
			}
		}()
		return summary, nil
	}

	if err := s.assembleSafe(ctx, job); err != nil {
		s.failJob(summary, job, err)
		return summary, nil
	}
	summary.Succeeded = 1
	return summary, nil
}

// detachedContext bounds a backgrounded assembly by the phase budgets plus
// transfer headroom, so an abandoned trigger cannot hold a claim forever.
func (s *AssemblyService) detachedContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.clipTimeout+s.concatTimeout+5*time.Minute)
}

func (s *AssemblyService) assembleSafe(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assembly panicked: %v", r)
		}
	}()
	return s.assemble(ctx, job)
}

func (s *AssemblyService) assemble(ctx context.Context, job *models.Job) error {
	if job.Payload.Content == nil {
		return fmt.Errorf("job has no draft content")
	}
	if len(job.Payload.FrameURLs) == 0 {
		return fmt.Errorf("job has no frame urls")
	}
	format, ok := FormatByName(job.Payload.Format)
	if !ok {
		return fmt.Errorf("format %q not in catalog", job.Payload.Format)
	}

	tenant, err := s.registry.Tenant(ctx, job.TenantID)
	if err != nil {
		return err
	}
	objects, err := s.registry.StorageFor(ctx, tenant)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp(s.workDir, "assemble-"+job.ID+"-")
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			s.logger.Warn("Failed to remove workspace",
				zap.String("dir", workDir), zap.Error(rmErr))
		}
	}()

	framePaths := make([]string, len(job.Payload.FrameURLs))
	g, gctx := errgroup.WithContext(ctx)
	for i, rawURL := range job.Payload.FrameURLs {
		path := filepath.Join(workDir, fmt.Sprintf("frame-%02d.png", i))
		framePaths[i] = path
		g.Go(func() error {
			return downloadFrame(gctx, objects, rawURL, path)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to download frames: %w", err)
	}

	clipPaths := make([]string, len(framePaths))
	var duration float64
	g, gctx = errgroup.WithContext(ctx)
	for i, framePath := range framePaths {
		clipPath := filepath.Join(workDir, fmt.Sprintf("clip-%02d.mp4", i))
		clipPaths[i] = clipPath
		seconds := clipSeconds(format, job.Payload.Content, i)
		duration += seconds
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.clipTimeout)
			defer cancel()
			if err := s.encoder.StillClip(cctx, framePath, clipPath, seconds); err != nil {
				return fmt.Errorf("clip %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to render clips: %w", err)
	}

	listPath := filepath.Join(workDir, "clips.txt")
	if err := ffmpeg.WriteConcatList(listPath, clipPaths); err != nil {
		return err
	}
	audioPath, err := s.pickAudio(job.ID)
	if err != nil {
		// Background music is decorative; an unreadable library should not
		// sink the job.
		s.logger.Warn("Skipping background audio", zap.Error(err))
		audioPath = ""
	}

	outPath := filepath.Join(workDir, "video.mp4")
	cctx, cancel := context.WithTimeout(ctx, s.concatTimeout)
	err = s.encoder.Concat(cctx, listPath, audioPath, outPath, s.audioVolume)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to concatenate clips: %w", err)
	}

	video, err := os.Open(outPath)
	if err != nil {
		return fmt.Errorf("failed to open assembled video: %w", err)
	}
	defer video.Close()
	info, err := video.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat assembled video: %w", err)
	}

	videoURL, err := objects.Put(ctx, storage.VideoKey(job.TenantID, job.ID), video, "video/mp4")
	if err != nil {
		return fmt.Errorf("failed to store video: %w", err)
	}

	_, err = s.store.UpdateJob(ctx, job.ID, JobPatch{
		Step:   stepPtr(models.StepUpload),
		Status: statusPtr(models.StatusUploadPending),
		Payload: &models.Payload{
			VideoURL:  videoURL,
			VideoSize: info.Size(),
			Duration:  duration,
		},
	})
	if err != nil {
		return err
	}

	s.logger.Info("Video assembled",
		zap.String("job_id", job.ID),
		zap.String("video_url", videoURL),
		zap.Int64("size_bytes", info.Size()),
		zap.Float64("duration_s", duration))
	return nil
}

// failJob runs on its own deadline: the phase context may already be dead by
// the time a failure is being recorded.
func (s *AssemblyService) failJob(summary *CycleSummary, job *models.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if summary != nil {
		summary.recordFailure(job.ID, cause)
	}
	if err := s.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
		s.logger.Error("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.monitor.RecordError(ctx, "error", "assemble", "assembly failed", cause.Error(),
		WithTenant(job.TenantID), WithJob(job.ID))
	s.logger.Warn("Assembly failed",
		zap.String("job_id", job.ID),
		zap.Error(cause))
}

func downloadFrame(ctx context.Context, objects ObjectStore, rawURL, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := objects.Fetch(ctx, rawURL, f); err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return nil
}

// clipSeconds stretches a frame's base length by how much text its slide
// carries: one extra second per 80 runes past the first 40. Hook and CTA
// frames stay punchy at half the stretch. The result is clamped to
// [1s, 1.5 × base] so a verbose draft never distorts the format.
func clipSeconds(format models.Format, content *models.Content, index int) float64 {
	base := 3.0
	role := ""
	if index < len(format.Frames) {
		base = format.Frames[index].Seconds
		role = format.Frames[index].Role
	}

	textLen := 0
	if index < len(content.Slides) {
		textLen = len([]rune(content.Slides[index].Text))
	}
	extra := float64(textLen-40) / 80.0
	if extra < 0 {
		extra = 0
	}
	if role == models.RoleHook || role == models.RoleCTA {
		extra *= 0.5
	}

	seconds := base + extra
	if limit := base * 1.5; seconds > limit {
		seconds = limit
	}
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// pickAudio chooses a background track by hashing the job id over the audio
// library, so re-running a job always mixes the same track. An empty or
// missing library yields no audio.
func (s *AssemblyService) pickAudio(jobID string) (string, error) {
	if s.audioDir == "" {
		return "", nil
	}
	entries, err := os.ReadDir(s.audioDir)
	if err != nil {
		return "", fmt.Errorf("read audio dir: %w", err)
	}
	var tracks []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".mp3", ".m4a", ".aac", ".wav":
			tracks = append(tracks, filepath.Join(s.audioDir, entry.Name()))
		}
	}
	if len(tracks) == 0 {
		return "", nil
	}
	h := fnv.New32a()
	h.Write([]byte(jobID))
	return tracks[int(h.Sum32()%uint32(len(tracks)))], nil
}
