package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge/internal/models"
)

type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// ErrorLogOption decorates an error log row.
type ErrorLogOption func(*models.ErrorLog)

func WithTenant(tenantID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.TenantID = tenantID
	}
}

func WithJob(jobID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.JobID = jobID
	}
}

func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecordError writes one error log row. Stages call this on per-job
// failures; a logging failure must never fail the job again, so the error
// is only logged.
func (m *MonitoringService) RecordError(ctx context.Context, level, source, title, message string, options ...ErrorLogOption) {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	if err := m.db.WithContext(ctx).Create(errorLog).Error; err != nil {
		m.logger.Warn("Failed to record error log", zap.Error(err), zap.String("source", source))
	}
}

// UpdatePipelineStats refreshes today's roll-up row across all tenants.
func (m *MonitoringService) UpdatePipelineStats(ctx context.Context) error {
	today := m.today()
	db := m.db.WithContext(ctx)

	var total, completed, failed int64
	db.Model(&models.Job{}).Count(&total)
	db.Model(&models.Job{}).Where("status = ?", models.StatusCompleted).Count(&completed)
	db.Model(&models.Job{}).Where("status = ?", models.StatusFailed).Count(&failed)

	waitingStatuses := []models.Status{
		models.StatusPending,
		models.StatusFramesPending,
		models.StatusAssemblyPending,
		models.StatusUploadPending,
	}
	activeStatuses := []models.Status{
		models.StatusGenerating,
		models.StatusRendering,
		models.StatusAssembling,
		models.StatusUploading,
	}

	var waiting, active int64
	db.Model(&models.Job{}).Where("status IN ?", waitingStatuses).Count(&waiting)
	db.Model(&models.Job{}).Where("status IN ?", activeStatuses).Count(&active)

	var activeTenants int64
	db.Model(&models.Job{}).Where("updated_at >= ?", today).
		Distinct("tenant_id").Count(&activeTenants)

	var stats models.PipelineStats
	result := db.Where("date = ?", today).First(&stats)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		stats = models.PipelineStats{
			Date:          today,
			TotalJobs:     int(total),
			WaitingJobs:   int(waiting),
			ActiveJobs:    int(active),
			CompletedJobs: int(completed),
			FailedJobs:    int(failed),
			ActiveTenants: int(activeTenants),
		}
		return db.Create(&stats).Error
	}
	if result.Error != nil {
		return result.Error
	}

	return db.Model(&stats).Updates(map[string]interface{}{
		"total_jobs":     total,
		"waiting_jobs":   waiting,
		"active_jobs":    active,
		"completed_jobs": completed,
		"failed_jobs":    failed,
		"active_tenants": activeTenants,
	}).Error
}

// UpdateTenantStats refreshes today's per-tenant roll-up rows.
func (m *MonitoringService) UpdateTenantStats(ctx context.Context) error {
	today := m.today()
	db := m.db.WithContext(ctx)

	var tenants []models.Tenant
	if err := db.Find(&tenants).Error; err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	for _, tenant := range tenants {
		var total, completed, failed int64
		db.Model(&models.Job{}).Where("tenant_id = ?", tenant.ID).Count(&total)
		db.Model(&models.Job{}).Where("tenant_id = ? AND status = ?", tenant.ID, models.StatusCompleted).Count(&completed)
		db.Model(&models.Job{}).Where("tenant_id = ? AND status = ?", tenant.ID, models.StatusFailed).Count(&failed)

		var doneToday []models.Job
		db.Where("tenant_id = ? AND status = ? AND published_at >= ?", tenant.ID, models.StatusCompleted, today).
			Find(&doneToday)

		var avgSeconds float64
		if len(doneToday) > 0 {
			for _, job := range doneToday {
				avgSeconds += job.Payload.Duration
			}
			avgSeconds /= float64(len(doneToday))
		}

		var lastPublished *time.Time
		var lastJob models.Job
		if err := db.Where("tenant_id = ? AND status = ?", tenant.ID, models.StatusCompleted).
			Order("published_at desc").First(&lastJob).Error; err == nil {
			lastPublished = lastJob.PublishedAt
		}

		var stats models.TenantStats
		result := db.Where("date = ? AND tenant_id = ?", today, tenant.ID).First(&stats)

		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			stats = models.TenantStats{
				Date:            today,
				TenantID:        tenant.ID,
				TotalJobs:       int(total),
				CompletedJobs:   int(completed),
				FailedJobs:      int(failed),
				AvgVideoSeconds: avgSeconds,
				LastPublishedAt: lastPublished,
			}
			if err := db.Create(&stats).Error; err != nil {
				return fmt.Errorf("failed to create tenant stats: %w", err)
			}
			continue
		}
		if result.Error != nil {
			return result.Error
		}

		updates := map[string]interface{}{
			"total_jobs":        total,
			"completed_jobs":    completed,
			"failed_jobs":       failed,
			"avg_video_seconds": avgSeconds,
		}
		if lastPublished != nil {
			updates["last_published_at"] = lastPublished
		}
		if err := db.Model(&stats).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update tenant stats: %w", err)
		}
	}

	return nil
}

// StatsSummary is the dashboard payload behind GET /api/v1/stats/summary.
type StatsSummary struct {
	GeneratedAt      time.Time             `json:"generatedAt"`
	StatusCounts     map[models.Status]int `json:"statusCounts"`
	Today            *models.PipelineStats `json:"today,omitempty"`
	Tenants          []models.TenantStats  `json:"tenants,omitempty"`
	UnresolvedErrors int64                 `json:"unresolvedErrors"`
}

// GetSummary builds the dashboard summary from live counts and today's
// roll-up rows.
func (m *MonitoringService) GetSummary(ctx context.Context, store *JobStore) (*StatsSummary, error) {
	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	today := m.today()
	db := m.db.WithContext(ctx)

	summary := &StatsSummary{
		GeneratedAt:  m.now().UTC(),
		StatusCounts: counts,
	}

	var pipelineToday models.PipelineStats
	if err := db.Where("date = ?", today).First(&pipelineToday).Error; err == nil {
		summary.Today = &pipelineToday
	}

	if err := db.Where("date = ?", today).Order("tenant_id").Find(&summary.Tenants).Error; err != nil {
		return nil, err
	}

	db.Model(&models.ErrorLog{}).Where("resolved = ?", false).Count(&summary.UnresolvedErrors)

	return summary, nil
}

// GetRecentErrors lists the newest error log rows.
func (m *MonitoringService) GetRecentErrors(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []models.ErrorLog
	err := m.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CleanupOldData prunes stats and resolved errors past the retention window.
func (m *MonitoringService) CleanupOldData(ctx context.Context, daysToKeep int) error {
	if daysToKeep <= 0 {
		return nil
	}
	cutoff := m.now().UTC().AddDate(0, 0, -daysToKeep)
	db := m.db.WithContext(ctx)

	if err := db.Where("date < ?", cutoff).Delete(&models.PipelineStats{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup pipeline stats: %w", err)
	}
	if err := db.Where("date < ?", cutoff).Delete(&models.TenantStats{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup tenant stats: %w", err)
	}
	if err := db.Where("created_at < ? AND resolved = ?", cutoff, true).Delete(&models.ErrorLog{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup resolved errors: %w", err)
	}

	return nil
}

func (m *MonitoringService) today() time.Time {
	return m.now().UTC().Truncate(24 * time.Hour)
}
