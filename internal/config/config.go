// Package config loads and validates service configuration from
// environment variables. Every setting carries a tagged default; startup
// fails fast when a required value is missing or any value is invalid.
package config

import (
	"strconv"
	"time"
)

// Config is the root of all runtime settings, grouped by concern.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Upload     UploadConfig
	Rate       RateLimitConfig
	RequestLog RequestLogConfig
	Assistant  AssistantConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Host is the bind interface; 0.0.0.0 listens on all of them.
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the listen port.
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout caps reading one request, body included.
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout caps writing one response. Zero disables the cap,
	// which streamed CSV exports need.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout closes idle keep-alive connections.
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the per-request middleware deadline.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig controls the PostgreSQL pool.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. DB_URL is accepted as an
	// alternate name.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns caps the pool size.
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is how many connections the pool keeps warm.
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime recycles connections older than this.
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime closes connections idle longer than this.
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig controls CSV upload processing.
type UploadConfig struct {
	// MaxFileSize caps the upload request body in bytes (25 MB).
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"26214400"`

	// MaxConcurrent caps upload requests validating at once; the rest
	// wait for a slot.
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a request waits for a slot before it is
	// rejected.
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is rows per insert batch when persisting results.
	BatchSize int `env:"UPLOAD_BATCH_SIZE" default:"1000"`

	// Timeout bounds one whole upload operation.
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// RateLimitConfig controls the per-IP request limits.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the general per-IP budget.
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is the stricter per-IP budget for the upload route.
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// RequestLogConfig controls request-log recording and retention.
type RequestLogConfig struct {
	// BufferSize is how many pending entries the recorder holds before
	// it starts dropping.
	BufferSize int `env:"REQUEST_LOG_BUFFER_SIZE" default:"256"`

	// SweepInterval is how often expired entries are purged.
	SweepInterval time.Duration `env:"REQUEST_LOG_SWEEP_INTERVAL" default:"1h"`

	// Retention is how long entries are kept (30 days).
	Retention time.Duration `env:"REQUEST_LOG_RETENTION" default:"720h"`
}

// AssistantConfig controls the Gemini-backed Q&A assistant.
type AssistantConfig struct {
	// APIKey enables the assistant; without one it stays disabled.
	// GOOGLE_API_KEY is accepted as an alternate name.
	APIKey string `env:"GEMINI_API_KEY" envAlt:"GOOGLE_API_KEY"`

	// Model is the Gemini model answers are generated with.
	Model string `env:"ASSISTANT_MODEL" default:"gemini-2.5-flash"`

	// Timeout bounds one assistant round-trip.
	Timeout time.Duration `env:"ASSISTANT_TIMEOUT" default:"30s"`

	// MaxSampleRows is how many stored rows each dataset contributes to
	// the prompt.
	MaxSampleRows int `env:"ASSISTANT_MAX_SAMPLE_ROWS" default:"5"`
}

// SecurityConfig controls client-IP trust and response headers.
type SecurityConfig struct {
	// TrustedProxies lists proxies (CIDRs or single IPs) whose
	// forwarding headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP adds a restrictive Content-Security-Policy header.
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format selects the handler: text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
