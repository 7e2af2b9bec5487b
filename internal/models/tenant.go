package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

// Secret field labels. The vault binds ciphertext to (tenant id, field), so
// these must stay stable once tenants exist.
const (
	SecretFieldPlatform = "platform"
	SecretFieldStorage  = "storage"
)

type Tenant struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	Name        string       `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Status      TenantStatus `gorm:"not null;size:20;default:'active'" json:"status"`
	Personas    StringList   `gorm:"type:jsonb" json:"personas"`
	Branding    Branding     `gorm:"type:jsonb" json:"branding"`
	FormatRules FormatRules  `gorm:"type:jsonb" json:"format_rules"`

	// Encrypted blobs, opened through the vault. Never serialized outward.
	PlatformSecret string `gorm:"type:text" json:"-"`
	StorageSecret  string `gorm:"type:text" json:"-"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Branding carries the per-channel publishing identity used to fill upload
// metadata templates.
type Branding struct {
	ChannelHandle       string   `json:"channelHandle,omitempty"`
	TitleSuffix         string   `json:"titleSuffix,omitempty"`
	DescriptionTemplate string   `json:"descriptionTemplate,omitempty"`
	DefaultTags         []string `json:"defaultTags,omitempty"`
	PlaylistPrefix      string   `json:"playlistPrefix,omitempty"`
}

// FormatRules maps persona keys to their format selection rule.
type FormatRules map[string]SelectionRule

// StringList is a JSON-serialized string slice column.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	return jsonValue(s)
}

func (s *StringList) Scan(value interface{}) error {
	return jsonScan(s, value)
}

func (b Branding) Value() (driver.Value, error) {
	return jsonValue(b)
}

func (b *Branding) Scan(value interface{}) error {
	return jsonScan(b, value)
}

func (r FormatRules) Value() (driver.Value, error) {
	if r == nil {
		r = FormatRules{}
	}
	return jsonValue(r)
}

func (r *FormatRules) Scan(value interface{}) error {
	return jsonScan(r, value)
}
