package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/pkg/util"
)

// ErrJobNotFound is returned for operations against unknown job ids.
var ErrJobNotFound = errors.New("job not found")

const maxErrorLen = 500

// JobStore owns every job-row transition. Claims are conditional updates, so
// overlapping cycles never double-process a job no matter how the triggers
// fire.
type JobStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewJobStore(db *gorm.DB, logger *zap.Logger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// CreateJob inserts a new unit of work at step 1.
func (s *JobStore) CreateJob(ctx context.Context, tenantID, persona, topic string) (*models.Job, error) {
	job := &models.Job{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Persona:  persona,
		Topic:    topic,
		Step:     models.StepGenerate,
		Status:   models.StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ClaimNext atomically claims the oldest eligible waiting job for step. An
// empty queue is not an error: it returns (nil, nil).
func (s *JobStore) ClaimNext(ctx context.Context, step models.Step, tenantID string) (*models.Job, error) {
	waiting := models.WaitingStatus(step)
	active := models.ActiveStatus(step)

	for {
		now := s.now()
		query := s.db.WithContext(ctx).
			Where("step = ? AND status = ?", step, waiting).
			Where("not_before IS NULL OR not_before <= ?", now)
		if tenantID != "" {
			query = query.Where("tenant_id = ?", tenantID)
		}

		var candidate models.Job
		err := query.Order("created_at, id").First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim next: %w", err)
		}

		// Conditional update decides the winner. Losing just moves us to
		// the next oldest candidate.
		res := s.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status = ?", candidate.ID, waiting).
			Updates(map[string]interface{}{
				"status":     active,
				"claimed_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim next: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return s.GetJob(ctx, candidate.ID)
		}
	}
}

// ClaimBatch claims up to limit jobs, oldest first.
func (s *JobStore) ClaimBatch(ctx context.Context, step models.Step, limit int, tenantID string) ([]*models.Job, error) {
	var jobs []*models.Job
	for len(jobs) < limit {
		job, err := s.ClaimNext(ctx, step, tenantID)
		if err != nil {
			return jobs, err
		}
		if job == nil {
			break
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// JobPatch is a partial update. Nil fields stay untouched; Payload goes
// through Payload.Merge so unmentioned sections survive.
type JobPatch struct {
	Step    *models.Step
	Status  *models.Status
	Payload *models.Payload
}

// UpdateJob applies a partial update in one transaction. Moving to any
// non-failed status clears the failure bookkeeping.
func (s *JobStore) UpdateJob(ctx context.Context, id string, patch JobPatch) (*models.Job, error) {
	var updated models.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
			}
			return err
		}

		updates := map[string]interface{}{}
		if patch.Step != nil {
			updates["step"] = *patch.Step
		}
		if patch.Status != nil {
			updates["status"] = *patch.Status
			if *patch.Status != models.StatusFailed {
				updates["error_message"] = ""
				updates["claimed_at"] = nil
				updates["not_before"] = nil
			}
		}
		if patch.Payload != nil {
			updates["payload"] = job.Payload.Merge(*patch.Payload)
		}
		if len(updates) > 0 {
			if err := tx.Model(&job).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.First(&updated, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update job: %w", err)
	}
	return &updated, nil
}

// FailJob marks a job failed with a bounded reason and releases the claim.
func (s *JobStore) FailJob(ctx context.Context, id, reason string) error {
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": util.Truncate(reason, maxErrorLen),
			"claimed_at":    nil,
		})
	if res.Error != nil {
		return fmt.Errorf("fail job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return nil
}

// MarkCompleted finishes a job: terminal status, external reference, and the
// upload result folded into the payload for audit.
func (s *JobStore) MarkCompleted(ctx context.Context, id, externalID string, result models.UploadResult) (*models.Job, error) {
	var updated models.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
			}
			return err
		}

		result.ExternalID = externalID
		if result.PublishedAt.IsZero() {
			result.PublishedAt = s.now()
		}

		updates := map[string]interface{}{
			"status":        models.StatusCompleted,
			"external_id":   externalID,
			"published_at":  result.PublishedAt,
			"payload":       job.Payload.Merge(models.Payload{Upload: &result}),
			"error_message": "",
			"claimed_at":    nil,
			"not_before":    nil,
		}
		if err := tx.Model(&job).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&updated, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	return &updated, nil
}

type JobFilter struct {
	TenantID string
	Step     models.Step
	Status   models.Status
	Limit    int
}

func (s *JobStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	query := s.db.WithContext(ctx).Model(&models.Job{})
	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Step != 0 {
		query = query.Where("step = ?", filter.Step)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var jobs []*models.Job
	if err := query.Order("created_at desc").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// RecentFormats returns the last n format choices for a tenant persona,
// newest first. Used by the selector's diversity penalty.
func (s *JobStore) RecentFormats(ctx context.Context, tenantID, persona string, n int) ([]string, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND persona = ?", tenantID, persona).
		Order("created_at desc").
		Limit(n * 4).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("recent formats: %w", err)
	}

	var formats []string
	for _, job := range jobs {
		if job.Payload.Format == "" {
			continue
		}
		formats = append(formats, job.Payload.Format)
		if len(formats) >= n {
			break
		}
	}
	return formats, nil
}

// CountByStatus returns job counts grouped by status.
func (s *JobStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	var rows []struct {
		Status models.Status
		Count  int
	}
	err := s.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	counts := make(map[models.Status]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// RecoverFailed re-admits failed jobs whose payload still carries what their
// current step consumes. Retries are bounded and gated by exponential
// backoff on not_before; exhausted jobs stay failed.
func (s *JobStore) RecoverFailed(ctx context.Context, tenantID string, maxAttempts int, backoff time.Duration) (int, error) {
	query := s.db.WithContext(ctx).Where("status = ?", models.StatusFailed)
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}

	var failed []models.Job
	if err := query.Order("created_at").Find(&failed).Error; err != nil {
		return 0, fmt.Errorf("recover failed: %w", err)
	}

	recovered := 0
	for i := range failed {
		job := &failed[i]
		if !salvageable(job) {
			continue
		}

		notBefore := s.now().Add(backoffFor(backoff, job.Attempts))
		res := s.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, models.StatusFailed).
			Updates(map[string]interface{}{
				"status":        models.WaitingStatus(job.Step),
				"error_message": "",
				"claimed_at":    nil,
				"not_before":    notBefore,
			})
		if res.Error != nil {
			return recovered, fmt.Errorf("recover job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			recovered++
			s.logger.Info("Recovered failed job",
				zap.String("job_id", job.ID),
				zap.Int("step", int(job.Step)),
				zap.Int("attempts", job.Attempts),
				zap.Time("not_before", notBefore))
		}
	}
	return recovered, nil
}

// salvageable reports whether the payload still has what the job's current
// step consumes.
func salvageable(job *models.Job) bool {
	switch job.Step {
	case models.StepGenerate:
		return true
	case models.StepFrames:
		return job.Payload.Content != nil
	case models.StepAssemble:
		return len(job.Payload.FrameURLs) > 0
	case models.StepUpload:
		return job.Payload.VideoURL != ""
	}
	return false
}

func backoffFor(base time.Duration, attempts int) time.Duration {
	if base <= 0 || attempts <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempts && i < 10; i++ {
		d *= 2
	}
	return d
}

// ReclaimStale returns jobs stuck in an active status to their waiting
// status once the claim lease has expired. There is no heartbeat; a lease
// long enough to cover the slowest stage keeps double processing out.
func (s *JobStore) ReclaimStale(ctx context.Context, lease time.Duration, maxAttempts int) (int, error) {
	if lease <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-lease)
	activeStatuses := []models.Status{
		models.StatusGenerating,
		models.StatusRendering,
		models.StatusAssembling,
		models.StatusUploading,
	}

	var stuck []models.Job
	err := s.db.WithContext(ctx).
		Where("status IN ? AND claimed_at IS NOT NULL AND claimed_at < ?", activeStatuses, cutoff).
		Find(&stuck).Error
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}

	reclaimed := 0
	for i := range stuck {
		job := &stuck[i]
		updates := map[string]interface{}{
			"claimed_at": nil,
		}
		if maxAttempts > 0 && job.Attempts >= maxAttempts {
			updates["status"] = models.StatusFailed
			updates["error_message"] = "abandoned stale claim after max attempts"
		} else {
			updates["status"] = models.WaitingStatus(job.Step)
		}

		res := s.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, job.Status).
			Updates(updates)
		if res.Error != nil {
			return reclaimed, fmt.Errorf("reclaim job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			reclaimed++
			s.logger.Warn("Reclaimed stale claim",
				zap.String("job_id", job.ID),
				zap.String("status", string(job.Status)),
				zap.Int("attempts", job.Attempts))
		}
	}
	return reclaimed, nil
}
