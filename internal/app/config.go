package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven runtime configuration.
type Config struct {
	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	Port      int    `env:"PORT" envDefault:"8080"`

	DatabaseFile string `env:"INKWELL_DATABASE_FILE" envDefault:"inkwell.db"`

	// BaseURL is the public URL prefix used in emailed links.
	BaseURL string `env:"INKWELL_BASE_URL" envDefault:"http://localhost:8080"`

	// FanoutSecret signs and verifies live-connection handshake tokens.
	FanoutSecret string `env:"INKWELL_FANOUT_SECRET,required"`
	// FanoutIssuer is the expected issuer claim on handshake tokens.
	FanoutIssuer string `env:"INKWELL_FANOUT_ISSUER" envDefault:"inkwell"`

	// BlobBaseURL prefixes presigned object URLs.
	BlobBaseURL string `env:"INKWELL_BLOB_BASE_URL" envDefault:"http://localhost:8080/blobs"`
	// BlobSecret signs presigned object URLs.
	BlobSecret string `env:"INKWELL_BLOB_SECRET,required"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Inkwell"`

	EmailConcurrency   int `env:"INKWELL_EMAIL_CONCURRENCY" envDefault:"2"`
	CleanupConcurrency int `env:"INKWELL_CLEANUP_CONCURRENCY" envDefault:"5"`

	JobPollInterval time.Duration `env:"INKWELL_JOB_POLL_INTERVAL" envDefault:"1s"`
	JobLeaseTTL     time.Duration `env:"INKWELL_JOB_LEASE_TTL" envDefault:"30s"`

	SweepInterval time.Duration `env:"INKWELL_SWEEP_INTERVAL" envDefault:"1h"`
	TempMaxAge    time.Duration `env:"INKWELL_TEMP_MAX_AGE" envDefault:"2h"`

	// JoinRatePerMinute caps PIN join attempts per user per minute.
	JoinRatePerMinute int `env:"INKWELL_JOIN_RATE_PER_MINUTE" envDefault:"5"`

	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
}

// LoadConfig parses configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
