package models

import (
	"time"
)

// PipelineStats is the daily roll-up across all tenants.
type PipelineStats struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Date          time.Time `gorm:"uniqueIndex;not null" json:"date"`
	TotalJobs     int       `gorm:"default:0" json:"total_jobs"`
	WaitingJobs   int       `gorm:"default:0" json:"waiting_jobs"`
	ActiveJobs    int       `gorm:"default:0" json:"active_jobs"`
	CompletedJobs int       `gorm:"default:0" json:"completed_jobs"`
	FailedJobs    int       `gorm:"default:0" json:"failed_jobs"`
	ActiveTenants int       `gorm:"default:0" json:"active_tenants"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TenantStats is the daily roll-up for one tenant.
type TenantStats struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Date            time.Time  `gorm:"not null;index:idx_tenant_stats_date_tenant,unique" json:"date"`
	TenantID        string     `gorm:"not null;size:36;index:idx_tenant_stats_date_tenant,unique" json:"tenant_id"`
	TotalJobs       int        `gorm:"default:0" json:"total_jobs"`
	CompletedJobs   int        `gorm:"default:0" json:"completed_jobs"`
	FailedJobs      int        `gorm:"default:0" json:"failed_jobs"`
	AvgVideoSeconds float64    `gorm:"default:0" json:"avg_video_seconds"`
	LastPublishedAt *time.Time `json:"last_published_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrorLog records stage failures for operators. Rows are pruned by the
// stats updater after the retention window.
type ErrorLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`
	Source     string     `gorm:"size:100;not null;index" json:"source"`
	TenantID   string     `gorm:"size:36;index" json:"tenant_id,omitempty"`
	JobID      string     `gorm:"size:36;index" json:"job_id,omitempty"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	Context    string     `gorm:"type:jsonb" json:"context,omitempty"`
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
