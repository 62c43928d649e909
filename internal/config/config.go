package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Export ExportConfig `mapstructure:"export" validate:"required"`
	Fetch  FetchConfig  `mapstructure:"fetch"  validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// ExportConfig contains the export task lifecycle settings.
type ExportConfig struct {
	// TempDir is the root under which per-task working directories and
	// finished archives are written.
	TempDir string `mapstructure:"temp_dir" validate:"required"`

	// TTL is how long a task remains retrievable after creation.
	TTL time.Duration `mapstructure:"ttl" validate:"required,gt=0"`

	// MaxDocumentBytes is the input size ceiling; documents over it are
	// rejected before a task is created.
	MaxDocumentBytes int `mapstructure:"max_document_bytes" validate:"required,gt=0"`

	// MaxAssets caps how many assets a single task will ever process.
	MaxAssets int `mapstructure:"max_assets" validate:"required,gt=0"`

	// QueueSize is the buffer size of the background job queue.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// WorkerCount is the number of concurrent export workers.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
}

// FetchConfig contains per-asset HTTP fetch settings.
type FetchConfig struct {
	// Timeout bounds each individual HTTP request attempt. There is no
	// overall task timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0"`

	// MaxRetries is the retry budget per asset, excluding the first attempt.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// RetryDelay is the base backoff; the delay before retry n is
	// RetryDelay * n (linear, not exponential).
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"required,gt=0"`
}
