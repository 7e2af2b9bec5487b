package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/reelforge/reelforge/internal/config"
)

// StageRunner is the shape all four pipeline stages share.
type StageRunner interface {
	Run(ctx context.Context, opts TriggerOptions) (*CycleSummary, error)
}

// Scheduler drives the pipeline stages on cron expressions. Manual HTTP
// triggers keep working alongside it; overlapping fires of the same stage
// collapse into the in-flight cycle instead of racing it.
type Scheduler struct {
	config *config.SchedulerConfig
	logger *zap.Logger
	stages map[string]StageRunner
	group  singleflight.Group
	cron   *cron.Cron
}

func NewScheduler(cfg *config.SchedulerConfig, generate, frames, assemble, upload StageRunner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: logger,
		stages: map[string]StageRunner{
			"generate": generate,
			"frames":   frames,
			"assemble": assemble,
			"upload":   upload,
		},
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.config == nil || !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	s.cron = cron.New()
	entries := []struct {
		name string
		expr string
	}{
		{"generate", s.config.Generate},
		{"frames", s.config.Frames},
		{"assemble", s.config.Assemble},
		{"upload", s.config.Upload},
	}
	for _, entry := range entries {
		if entry.expr == "" {
			continue
		}
		name := entry.name
		if _, err := s.cron.AddFunc(entry.expr, func() { s.runStage(ctx, name) }); err != nil {
			return fmt.Errorf("invalid cron expression for %s: %w", name, err)
		}
		s.logger.Info("Scheduled stage",
			zap.String("stage", name),
			zap.String("cron", entry.expr))
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop halts scheduling and waits for running cycles to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runStage(ctx context.Context, name string) {
	stage := s.stages[name]
	if stage == nil {
		return
	}

	start := time.Now()
	v, err, shared := s.group.Do(name, func() (interface{}, error) {
		return stage.Run(ctx, TriggerOptions{Wait: true})
	})
	if shared {
		s.logger.Debug("Joined in-flight cycle", zap.String("stage", name))
		return
	}
	if err != nil {
		s.logger.Error("Stage cycle failed",
			zap.String("stage", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}

	summary := v.(*CycleSummary)
	if summary.Claimed > 0 || summary.Recovered > 0 || summary.Reclaimed > 0 {
		s.logger.Info("Stage cycle completed",
			zap.String("stage", name),
			zap.Int("claimed", summary.Claimed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Duration("duration", time.Since(start)))
	}
}
