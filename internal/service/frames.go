package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/renderer"
)

// FrameService renders draft slides into frame images (step 2 → 3).
type FrameService struct {
	store    *JobStore
	renderer FrameRenderer
	monitor  *MonitoringService
	logger   *zap.Logger

	batch       int
	maxAttempts int
	backoff     time.Duration
	lease       time.Duration
}

func NewFrameService(cfg *config.PipelineConfig, store *JobStore, fr FrameRenderer, monitor *MonitoringService, logger *zap.Logger) *FrameService {
	s := &FrameService{
		store:       store,
		renderer:    fr,
		monitor:     monitor,
		logger:      logger,
		batch:       3,
		maxAttempts: 3,
		backoff:     2 * time.Minute,
		lease:       30 * time.Minute,
	}
	if cfg != nil {
		if cfg.FrameBatch > 0 {
			s.batch = cfg.FrameBatch
		}
		if cfg.MaxAttempts > 0 {
			s.maxAttempts = cfg.MaxAttempts
		}
		s.backoff = parseDurationOr(cfg.RetryBackoff, s.backoff)
		s.lease = parseDurationOr(cfg.ClaimLease, s.lease)
	}
	return s
}

// Run sweeps for recoverable jobs, then renders up to the configured batch
// concurrently. Each job's outcome is its own: an error or panic in one
// never cancels its siblings.
func (s *FrameService) Run(ctx context.Context, opts TriggerOptions) (*CycleSummary, error) {
	summary := newSummary("frames")
	runSweeps(ctx, s.store, summary, opts.TenantID, s.maxAttempts, s.backoff, s.lease, s.logger)

	jobs, err := s.store.ClaimBatch(ctx, models.StepFrames, s.batch, opts.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim frame jobs: %w", err)
	}
	summary.Claimed = len(jobs)

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		summary.JobIDs = append(summary.JobIDs, job.ID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("frame rendering panicked: %v", r)
				}
			}()
			errs[i] = s.processJob(ctx, job)
		}()
	}
	wg.Wait()

	for i, job := range jobs {
		if errs[i] != nil {
			s.failJob(ctx, summary, job, errs[i])
			continue
		}
		summary.Succeeded++
	}

	if summary.Claimed > 0 {
		s.logger.Info("Frame cycle finished",
			zap.Int("claimed", summary.Claimed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed))
	}
	return summary, nil
}

func (s *FrameService) processJob(ctx context.Context, job *models.Job) error {
	if job.Payload.Content == nil {
		return fmt.Errorf("job has no draft content")
	}
	format, ok := FormatByName(job.Payload.Format)
	if !ok {
		return fmt.Errorf("format %q not in catalog", job.Payload.Format)
	}

	urls, err := s.renderer.Render(ctx, renderer.RenderRequest{
		JobID:    job.ID,
		TenantID: job.TenantID,
		Content:  job.Payload.Content,
		Format:   format,
	})
	if err != nil {
		return fmt.Errorf("failed to render frames: %w", err)
	}

	_, err = s.store.UpdateJob(ctx, job.ID, JobPatch{
		Step:    stepPtr(models.StepAssemble),
		Status:  statusPtr(models.StatusAssemblyPending),
		Payload: &models.Payload{FrameURLs: urls},
	})
	if err != nil {
		return err
	}

	s.logger.Info("Frames ready",
		zap.String("job_id", job.ID),
		zap.Int("frames", len(urls)))
	return nil
}

func (s *FrameService) failJob(ctx context.Context, summary *CycleSummary, job *models.Job, cause error) {
	summary.recordFailure(job.ID, cause)
	if err := s.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
		s.logger.Error("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.monitor.RecordError(ctx, "error", "frames", "frame rendering failed", cause.Error(),
		WithTenant(job.TenantID), WithJob(job.ID))
	s.logger.Warn("Frame rendering failed",
		zap.String("job_id", job.ID),
		zap.Error(cause))
}
