package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"noreply@pulsequeue.local"`

	// ----------------------------
	// Queue engine
	// ----------------------------
	PollIntervalMs      int `envconfig:"POLL_INTERVAL_MS" default:"5000"`
	BatchSize           int `envconfig:"BATCH_SIZE" default:"25"`
	MaxConcurrent       int `envconfig:"MAX_CONCURRENT" default:"3"`
	RateLimit           int `envconfig:"RATE_LIMIT" default:"10"`
	RetryBackoffBaseMs  int `envconfig:"RETRY_BACKOFF_BASE_MS" default:"300000"`
	HeartbeatIntervalMs int `envconfig:"HEARTBEAT_INTERVAL_MS" default:"30000"`
	StaleAfterMs        int `envconfig:"STALE_AFTER_MS" default:"600000"`
	ShutdownGraceMs     int `envconfig:"SHUTDOWN_GRACE_MS" default:"15000"`

	// ----------------------------
	// Attachments
	// ----------------------------
	AttachmentTimeoutMs    int `envconfig:"ATTACHMENT_TIMEOUT_MS" default:"10000"`
	AttachmentMaxElapsedMs int `envconfig:"ATTACHMENT_MAX_ELAPSED_MS" default:"15000"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	// A zero limiter rejects every Wait, which would silently skip all jobs.
	if cfg.RateLimit < 1 {
		cfg.RateLimit = 1
	}

	return &cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseMs) * time.Millisecond
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMs) * time.Millisecond
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

func (c *Config) AttachmentTimeout() time.Duration {
	return time.Duration(c.AttachmentTimeoutMs) * time.Millisecond
}

func (c *Config) AttachmentMaxElapsed() time.Duration {
	return time.Duration(c.AttachmentMaxElapsedMs) * time.Millisecond
}
