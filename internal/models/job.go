package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Step is the pipeline stage a job is waiting for or running. Steps only
// ever move forward.
type Step int

const (
	StepGenerate Step = 1
	StepFrames   Step = 2
	StepAssemble Step = 3
	StepUpload   Step = 4
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusGenerating      Status = "generating"
	StatusFramesPending   Status = "frames_pending"
	StatusRendering       Status = "rendering"
	StatusAssemblyPending Status = "assembly_pending"
	StatusAssembling      Status = "assembling"
	StatusUploadPending   Status = "upload_pending"
	StatusUploading       Status = "uploading"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

// WaitingStatus is the status a job sits in while queued for step.
func WaitingStatus(step Step) Status {
	switch step {
	case StepGenerate:
		return StatusPending
	case StepFrames:
		return StatusFramesPending
	case StepAssemble:
		return StatusAssemblyPending
	case StepUpload:
		return StatusUploadPending
	}
	return StatusFailed
}

// ActiveStatus is the status a claimed job carries while step runs.
func ActiveStatus(step Step) Status {
	switch step {
	case StepGenerate:
		return StatusGenerating
	case StepFrames:
		return StatusRendering
	case StepAssemble:
		return StatusAssembling
	case StepUpload:
		return StatusUploading
	}
	return StatusFailed
}

type Job struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	TenantID     string     `gorm:"not null;size:36;index" json:"tenant_id"`
	Persona      string     `gorm:"not null;size:100" json:"persona"`
	Topic        string     `gorm:"not null;size:200" json:"topic"`
	Step         Step       `gorm:"not null;index:idx_jobs_step_status" json:"step"`
	Status       Status     `gorm:"not null;size:32;index:idx_jobs_step_status" json:"status"`
	Payload      Payload    `gorm:"type:jsonb" json:"payload"`
	ErrorMessage string     `gorm:"size:500" json:"error_message,omitempty"`
	Attempts     int        `gorm:"default:0" json:"attempts"`
	NotBefore    *time.Time `json:"not_before,omitempty"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	ExternalID   string     `gorm:"size:255" json:"external_id,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Payload accumulates stage output as the job advances. Sections are only
// ever added, never rewritten in place; Merge keeps everything a patch does
// not mention.
type Payload struct {
	Content   *Content      `json:"content,omitempty"`
	Format    string        `json:"format,omitempty"`
	FrameURLs []string      `json:"frameUrls,omitempty"`
	VideoURL  string        `json:"videoUrl,omitempty"`
	VideoSize int64         `json:"videoSize,omitempty"`
	Duration  float64       `json:"duration,omitempty"`
	Upload    *UploadResult `json:"upload,omitempty"`
}

type UploadResult struct {
	ExternalID  string    `json:"externalId"`
	WatchURL    string    `json:"watchUrl,omitempty"`
	PlaylistID  string    `json:"playlistId,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Merge returns p with the non-zero sections of in applied on top. Zero
// sections of in never erase existing data.
func (p Payload) Merge(in Payload) Payload {
	out := p
	if in.Content != nil {
		out.Content = in.Content
	}
	if in.Format != "" {
		out.Format = in.Format
	}
	if len(in.FrameURLs) > 0 {
		out.FrameURLs = in.FrameURLs
	}
	if in.VideoURL != "" {
		out.VideoURL = in.VideoURL
	}
	if in.VideoSize > 0 {
		out.VideoSize = in.VideoSize
	}
	if in.Duration > 0 {
		out.Duration = in.Duration
	}
	if in.Upload != nil {
		out.Upload = in.Upload
	}
	return out
}

func (p Payload) Value() (driver.Value, error) {
	return jsonValue(p)
}

func (p *Payload) Scan(value interface{}) error {
	return jsonScan(p, value)
}
