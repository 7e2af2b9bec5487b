package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reelforge/reelforge/internal/models"
)

// TriggerOptions scope one pipeline cycle.
type TriggerOptions struct {
	// TenantID restricts the cycle to one tenant's jobs.
	TenantID string `json:"tenantId"`
	// Wait blocks until every phase finishes. The assembly HTTP trigger
	// runs with Wait=false and returns right after the claim; the
	// scheduler and tests wait.
	Wait bool `json:"-"`
}

// CycleSummary is the outcome of one stage trigger. Per-job failures live
// in Errors; they never abort the cycle.
type CycleSummary struct {
	Stage     string            `json:"stage"`
	Claimed   int               `json:"claimed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Recovered int               `json:"recovered,omitempty"`
	Reclaimed int               `json:"reclaimed,omitempty"`
	JobIDs    []string          `json:"jobIds,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func newSummary(stage string) *CycleSummary {
	return &CycleSummary{Stage: stage, Errors: make(map[string]string)}
}

func (s *CycleSummary) recordFailure(jobID string, err error) {
	s.Failed++
	s.Errors[jobID] = err.Error()
}

// parseDurationOr parses s, falling back to def when s is empty or invalid.
func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// runSweeps runs the failed-job and stale-claim sweeps that precede the
// frame and upload stages. Sweep errors are logged, never fatal: the cycle
// still claims whatever is eligible.
func runSweeps(ctx context.Context, store *JobStore, summary *CycleSummary, tenantID string, maxAttempts int, backoff, lease time.Duration, logger *zap.Logger) {
	recovered, err := store.RecoverFailed(ctx, tenantID, maxAttempts, backoff)
	if err != nil {
		logger.Error("Recovery sweep failed", zap.Error(err))
	}
	summary.Recovered = recovered

	reclaimed, err := store.ReclaimStale(ctx, lease, maxAttempts)
	if err != nil {
		logger.Error("Stale-claim sweep failed", zap.Error(err))
	}
	summary.Reclaimed = reclaimed
}

func stepPtr(s models.Step) *models.Step { return &s }

func statusPtr(s models.Status) *models.Status { return &s }
