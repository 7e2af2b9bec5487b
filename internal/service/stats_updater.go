package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reelforge/reelforge/internal/config"
)

// StatsUpdater refreshes the daily roll-ups on a fixed interval and prunes
// data past the retention window.
type StatsUpdater struct {
	monitor  *MonitoringService
	logger   *zap.Logger
	interval time.Duration
	keepDays int
	ticker   *time.Ticker
	done     chan struct{}
}

func NewStatsUpdater(cfg *config.StatsConfig, monitor *MonitoringService, logger *zap.Logger) *StatsUpdater {
	s := &StatsUpdater{
		monitor:  monitor,
		logger:   logger,
		interval: 5 * time.Minute,
		keepDays: 90,
		done:     make(chan struct{}),
	}
	if cfg != nil {
		s.interval = parseDurationOr(cfg.UpdateInterval, s.interval)
		if cfg.RetentionDays > 0 {
			s.keepDays = cfg.RetentionDays
		}
	}
	return s
}

// Start begins the periodic update loop.
func (s *StatsUpdater) Start(ctx context.Context) {
	s.ticker = time.NewTicker(s.interval)
	go func() {
		s.logger.Info("Starting stats updater",
			zap.Duration("interval", s.interval),
			zap.Int("retention_days", s.keepDays))
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.updateStats(ctx)
			}
		}
	}()
}

// Stop stops the stats updater.
func (s *StatsUpdater) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
}

func (s *StatsUpdater) updateStats(ctx context.Context) {
	s.logger.Debug("Updating statistics")

	if err := s.monitor.UpdatePipelineStats(ctx); err != nil {
		s.logger.Error("Failed to update pipeline stats", zap.Error(err))
	}
	if err := s.monitor.UpdateTenantStats(ctx); err != nil {
		s.logger.Error("Failed to update tenant stats", zap.Error(err))
	}
	if err := s.monitor.CleanupOldData(ctx, s.keepDays); err != nil {
		s.logger.Error("Failed to cleanup old data", zap.Error(err))
	}

	s.logger.Debug("Statistics updated")
}
