package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/reelforge/reelforge/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Auth      AuthConfig      `yaml:"auth"`
	Vault     VaultConfig     `yaml:"vault"`
	Registry  RegistryConfig  `yaml:"registry"`
	Generator GeneratorConfig `yaml:"generator"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Storage   StorageConfig   `yaml:"storage"`
	Hosting   HostingConfig   `yaml:"hosting"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Stats     StatsConfig     `yaml:"stats"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type AuthConfig struct {
	// TriggerToken is the static bearer token the API requires.
	TriggerToken string `yaml:"trigger_token"`
}

type VaultConfig struct {
	// MasterKey is a base64-encoded 32-byte AES key.
	MasterKey string `yaml:"master_key"`
}

type RegistryConfig struct {
	CacheTTL string `yaml:"cache_ttl"`
}

type GeneratorConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

type RendererConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

type HostingConfig struct {
	BaseURL       string `yaml:"base_url"`
	TokenURL      string `yaml:"token_url"`
	UploadTimeout string `yaml:"upload_timeout"`
}

type PipelineConfig struct {
	GenerateBatch int     `yaml:"generate_batch"`
	FrameBatch    int     `yaml:"frame_batch"`
	MaxAttempts   int     `yaml:"max_attempts"`
	RetryBackoff  string  `yaml:"retry_backoff"`
	ClaimLease    string  `yaml:"claim_lease"`
	AsyncAssembly bool    `yaml:"async_assembly"`
	WorkDir       string  `yaml:"work_dir"`
	AudioDir      string  `yaml:"audio_dir"`
	AudioVolume   float64 `yaml:"audio_volume"`
	FFmpegBinary  string  `yaml:"ffmpeg_binary"`
	ClipTimeout   string  `yaml:"clip_timeout"`
	ConcatTimeout string  `yaml:"concat_timeout"`
}

type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron expressions per stage; an empty expression disables the stage.
	Generate string `yaml:"generate"`
	Frames   string `yaml:"frames"`
	Assemble string `yaml:"assemble"`
	Upload   string `yaml:"upload"`
}

type StatsConfig struct {
	UpdateInterval string `yaml:"update_interval"`
	RetentionDays  int    `yaml:"retention_days"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Registry.CacheTTL == "" {
		cfg.Registry.CacheTTL = "5m"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o-mini"
	}
	if cfg.Generator.Timeout == "" {
		cfg.Generator.Timeout = "60s"
	}
	if cfg.Renderer.Timeout == "" {
		cfg.Renderer.Timeout = "2m"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "auto"
	}
	if cfg.Hosting.UploadTimeout == "" {
		cfg.Hosting.UploadTimeout = "10m"
	}
	if cfg.Pipeline.GenerateBatch == 0 {
		cfg.Pipeline.GenerateBatch = 5
	}
	if cfg.Pipeline.FrameBatch == 0 {
		cfg.Pipeline.FrameBatch = 3
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 3
	}
	if cfg.Pipeline.RetryBackoff == "" {
		cfg.Pipeline.RetryBackoff = "2m"
	}
	if cfg.Pipeline.ClaimLease == "" {
		cfg.Pipeline.ClaimLease = "30m"
	}
	if cfg.Pipeline.AudioVolume == 0 {
		cfg.Pipeline.AudioVolume = 0.2
	}
	if cfg.Pipeline.FFmpegBinary == "" {
		cfg.Pipeline.FFmpegBinary = "ffmpeg"
	}
	if cfg.Pipeline.ClipTimeout == "" {
		cfg.Pipeline.ClipTimeout = "2m"
	}
	if cfg.Pipeline.ConcatTimeout == "" {
		cfg.Pipeline.ConcatTimeout = "5m"
	}
	if cfg.Stats.UpdateInterval == "" {
		cfg.Stats.UpdateInterval = "10m"
	}
	if cfg.Stats.RetentionDays == 0 {
		cfg.Stats.RetentionDays = 90
	}

	durations := map[string]string{
		"registry.cache_ttl":      cfg.Registry.CacheTTL,
		"generator.timeout":       cfg.Generator.Timeout,
		"renderer.timeout":        cfg.Renderer.Timeout,
		"hosting.upload_timeout":  cfg.Hosting.UploadTimeout,
		"pipeline.retry_backoff":  cfg.Pipeline.RetryBackoff,
		"pipeline.claim_lease":    cfg.Pipeline.ClaimLease,
		"pipeline.clip_timeout":   cfg.Pipeline.ClipTimeout,
		"pipeline.concat_timeout": cfg.Pipeline.ConcatTimeout,
		"stats.update_interval":   cfg.Stats.UpdateInterval,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return cfg, nil
}
