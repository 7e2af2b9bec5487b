package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service/generator"
	"github.com/reelforge/reelforge/pkg/util"
)

// GenerationService turns queued topics into validated drafts (step 1 → 2).
type GenerationService struct {
	store    *JobStore
	registry *TenantRegistry
	drafter  ContentDrafter
	selector *FormatSelector
	monitor  *MonitoringService
	validate *validator.Validate
	logger   *zap.Logger
	batch    int
}

func NewGenerationService(cfg *config.PipelineConfig, store *JobStore, registry *TenantRegistry, drafter ContentDrafter, selector *FormatSelector, monitor *MonitoringService, logger *zap.Logger) *GenerationService {
	batch := 5
	if cfg != nil && cfg.GenerateBatch > 0 {
		batch = cfg.GenerateBatch
	}
	return &GenerationService{
		store:    store,
		registry: registry,
		drafter:  drafter,
		selector: selector,
		monitor:  monitor,
		validate: validator.New(),
		logger:   logger,
		batch:    batch,
	}
}

// Run claims up to the configured batch of queued jobs and drafts content
// for each. A failure stays on its own job; siblings keep going.
func (s *GenerationService) Run(ctx context.Context, opts TriggerOptions) (*CycleSummary, error) {
	summary := newSummary("generate")

	jobs, err := s.store.ClaimBatch(ctx, models.StepGenerate, s.batch, opts.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim generation jobs: %w", err)
	}
	summary.Claimed = len(jobs)

	for _, job := range jobs {
		summary.JobIDs = append(summary.JobIDs, job.ID)
		if err := s.processJob(ctx, job); err != nil {
			s.failJob(ctx, summary, job, err)
			continue
		}
		summary.Succeeded++
	}

	if summary.Claimed > 0 {
		s.logger.Info("Generation cycle finished",
			zap.Int("claimed", summary.Claimed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed))
	}
	return summary, nil
}

func (s *GenerationService) processJob(ctx context.Context, job *models.Job) error {
	tenant, err := s.registry.Tenant(ctx, job.TenantID)
	if err != nil {
		return err
	}
	if tenant.Status != models.TenantActive {
		return fmt.Errorf("tenant %s is %s", tenant.ID, tenant.Status)
	}

	recent, err := s.store.RecentFormats(ctx, job.TenantID, job.Persona, recentWindow)
	if err != nil {
		return err
	}

	rule := SelectionRuleFor(tenant, job.Persona)
	formatName := s.selector.Select(rule, job.Topic, recent)
	format, ok := FormatByName(formatName)
	if !ok {
		return fmt.Errorf("format %q not in catalog", formatName)
	}

	content, err := s.draft(ctx, job, format)
	if err != nil {
		return err
	}

	_, err = s.store.UpdateJob(ctx, job.ID, JobPatch{
		Step:    stepPtr(models.StepFrames),
		Status:  statusPtr(models.StatusFramesPending),
		Payload: &models.Payload{Content: content, Format: format.Name},
	})
	if err != nil {
		return err
	}

	s.logger.Info("Draft ready",
		zap.String("job_id", job.ID),
		zap.String("format", format.Name),
		zap.Bool("fallback", content.Fallback))
	return nil
}

// draft calls the model and validates the result. A response the model
// produced but we cannot use becomes a fallback draft; transport errors
// propagate and fail the job.
func (s *GenerationService) draft(ctx context.Context, job *models.Job, format models.Format) (*models.Content, error) {
	content, err := s.drafter.Draft(ctx, generator.DraftRequest{
		Persona: job.Persona,
		Topic:   job.Topic,
		Format:  format,
	})
	if errors.Is(err, generator.ErrMalformed) {
		s.logger.Warn("Draft unparseable, substituting fallback",
			zap.String("job_id", job.ID), zap.Error(err))
		return fallbackDraft(job.Topic, format), nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.validateDraft(content, format); err != nil {
		s.logger.Warn("Draft failed validation, substituting fallback",
			zap.String("job_id", job.ID),
			zap.String("format", format.Name),
			zap.Error(err))
		return fallbackDraft(job.Topic, format), nil
	}
	return content, nil
}

func (s *GenerationService) validateDraft(content *models.Content, format models.Format) error {
	if err := s.validate.Struct(content); err != nil {
		return err
	}
	if len(content.Slides) != len(format.Frames) {
		return fmt.Errorf("draft has %d slides, format %s needs %d",
			len(content.Slides), format.Name, len(format.Frames))
	}
	return nil
}

func (s *GenerationService) failJob(ctx context.Context, summary *CycleSummary, job *models.Job, cause error) {
	summary.recordFailure(job.ID, cause)
	if err := s.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
		s.logger.Error("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.monitor.RecordError(ctx, "error", "generate", "generation failed", cause.Error(),
		WithTenant(job.TenantID), WithJob(job.ID))
	s.logger.Warn("Generation failed",
		zap.String("job_id", job.ID),
		zap.String("topic", job.Topic),
		zap.Error(cause))
}

// fallbackDraft is the deterministic stand-in for an unusable model
// response. Its slides mirror the frame plan so later stages see a normal
// draft, and the fallback flag marks it for review.
func fallbackDraft(topic string, format models.Format) *models.Content {
	slides := make([]models.Slide, len(format.Frames))
	for i, frame := range format.Frames {
		var text string
		switch frame.Role {
		case models.RoleHook:
			text = fmt.Sprintf("You probably never noticed this about %s.", topic)
		case models.RoleExample:
			text = fmt.Sprintf("Take one everyday case of %s and look closer.", topic)
		case models.RoleRecap:
			text = fmt.Sprintf("That is the one thing to remember about %s.", topic)
		case models.RoleCTA:
			text = "Follow for more quick lessons."
		default:
			text = fmt.Sprintf("One key fact about %s, in plain words.", topic)
		}
		slides[i] = models.Slide{Role: frame.Role, Text: text}
	}

	return &models.Content{
		Title:    fmt.Sprintf("%s, Explained Simply", util.TitleCase(topic)),
		Hook:     slides[0].Text,
		Slides:   slides,
		Caption:  fmt.Sprintf("A quick look at %s.", topic),
		Tags:     []string{util.GenerateSlug(topic)},
		Fallback: true,
	}
}
