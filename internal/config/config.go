// Package config defines service configuration and its loader.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Every key is flat snake_case so env overrides map one-to-one.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// DatabaseDriver is one of memory, sqlite3 or pgx.
	DatabaseDriver string `koanf:"database_driver"`

	// DatabaseDSN is passed to sql.Open for the sqlite3 and pgx drivers.
	DatabaseDSN string `koanf:"database_dsn"`

	// InferenceURL is the churn model endpoint. Empty means the stored
	// probability is served instead.
	InferenceURL string `koanf:"inference_url"`

	// InferenceAPIKey is sent as x-api-key to the inference endpoint.
	InferenceAPIKey string `koanf:"inference_api_key"`

	// APIBaseURL is where the HTML views read the JSON API from.
	// Empty means the server's own listen address.
	APIBaseURL string `koanf:"api_base_url"`

	// QueueSize bounds the in-memory intervention queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of intervention workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// DefaultListLimit and MaxListLimit bound GET /api/customers?limit.
	DefaultListLimit int `koanf:"default_list_limit"`
	MaxListLimit     int `koanf:"max_list_limit"`

	// MaxRiskLimit caps GET /api/risk?limit.
	MaxRiskLimit int `koanf:"max_risk_limit"`

	// HighProbThreshold splits high-risk customers in the dashboard summary.
	HighProbThreshold float64 `koanf:"high_prob_threshold"`

	// MaxBodySize is a human-readable request body cap, e.g. "1MB".
	MaxBodySize string `koanf:"max_body_size"`

	// MaxBodyBytes is MaxBodySize parsed by Load.
	MaxBodyBytes int64 `koanf:"-"`

	// SMTP settings. An empty SMTPHost logs emails instead of sending them.
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	MailFrom     string `koanf:"mail_from"`
	MailTo       string `koanf:"mail_to"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		ShutdownTimeout:   10 * time.Second,
		DatabaseDriver:    "memory",
		QueueSize:         1_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        50_000,
		DefaultListLimit:  20,
		MaxListLimit:      100,
		MaxRiskLimit:      50,
		HighProbThreshold: 0.75,
		MaxBodySize:       "1MB",
		MaxBodyBytes:      1 << 20,
		SMTPPort:          587,
		MailFrom:          "retention@churnboard.local",
	}
}
