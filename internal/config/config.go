// Package config loads reviewflow settings from environment variables with
// defaults, and validates them on startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Forms    FormsConfig
	Catalog  CatalogConfig
	Pipeline PipelineConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is zero so the progress stream stays open.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// active pipeline runs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to non-streaming API requests. Pipeline runs
	// are bounded separately (default: 35m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"35m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AcquireTimeout bounds waiting for a pooled connection when a
	// transaction begins (default: 10s)
	AcquireTimeout time.Duration `env:"DB_ACQUIRE_TIMEOUT" default:"10s"`
}

// FormsConfig points at the form provider holding review submissions.
type FormsConfig struct {
	BaseURL  string        `env:"FORMS_BASE_URL" default:"https://api.typeform.com"`
	FormID   string        `env:"FORMS_FORM_ID"`
	Token    string        `env:"FORMS_TOKEN"`
	PageSize int           `env:"FORMS_PAGE_SIZE" default:"200"`
	Timeout  time.Duration `env:"FORMS_TIMEOUT" default:"30s"`
}

// Enabled reports whether ingest can run.
func (c FormsConfig) Enabled() bool {
	return c.FormID != "" && c.Token != ""
}

// CatalogConfig points at the store catalog used for product matching.
type CatalogConfig struct {
	// BaseURL is the shop admin URL, e.g. https://example.myshopify.com
	BaseURL    string        `env:"CATALOG_BASE_URL"`
	Token      string        `env:"CATALOG_TOKEN"`
	APIVersion string        `env:"CATALOG_API_VERSION" default:"2024-10"`
	Timeout    time.Duration `env:"CATALOG_TIMEOUT" default:"15s"`
}

// Enabled reports whether the match stage can run.
func (c CatalogConfig) Enabled() bool {
	return c.BaseURL != "" && c.Token != ""
}

// PipelineConfig holds run settings.
type PipelineConfig struct {
	// BatchSize caps submissions selected per stage run (default: 500)
	BatchSize int `env:"PIPELINE_BATCH_SIZE" default:"500"`

	// CacheTTL is how long a resolved lookup id is reused within one run
	CacheTTL time.Duration `env:"PIPELINE_CACHE_TTL" default:"5m"`

	// ProgressInterval is the minimum gap between progress events
	ProgressInterval time.Duration `env:"PIPELINE_PROGRESS_INTERVAL" default:"1s"`

	MaxConcurrentRuns int           `env:"PIPELINE_MAX_CONCURRENT_RUNS" default:"1"`
	RunWaitTime       time.Duration `env:"PIPELINE_RUN_WAIT_TIME" default:"5s"`

	// ScheduleInterval runs the full pipeline periodically; 0 disables
	ScheduleInterval time.Duration `env:"PIPELINE_SCHEDULE_INTERVAL" default:"0s"`

	// RulesFile is imported on server start when set (.yaml, .yml or .toml)
	RulesFile string `env:"PIPELINE_RULES_FILE"`

	// LockFile guards CLI batch commands against overlapping invocations
	LockFile string `env:"PIPELINE_LOCK_FILE" default:"/tmp/reviewflow.lock"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enforces the X-API-Key header on /api routes
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP and X-Forwarded-For
	// headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequestsPerMinute is the per-IP API rate limit; 0 disables it
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
