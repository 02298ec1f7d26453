// Package config loads runtime configuration.
//
// Sources are layered, later layers winning:
//  1. Built-in defaults (Default)
//  2. YAML file: --config flag, $SIBR_CONFIG, or ./sibr.yaml if present
//  3. Environment: SIBR_ prefix, "__" separates sections
//     (SIBR_DATABASE__PATH -> database.path)
//
// Each worker's schedule is an explicit struct handed to the worker at
// construction; nothing reads schedule settings from a global.
package config

import (
	"time"

	"github.com/roach88/sibr/internal/logging"
)

// Config is the full runtime configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Log      logging.Config `koanf:"log" yaml:"log"`

	// Source identifies this ingester in the provenance log: a UUID or a
	// well-known source name. Required by ingest.
	Source string `koanf:"source" yaml:"source"`

	Fetch   FetchConfig    `koanf:"fetch" yaml:"fetch"`
	Workers []WorkerConfig `koanf:"workers" yaml:"workers" validate:"dive"`
	Search  SearchConfig   `koanf:"search" yaml:"search"`
	Replay  ReplayConfig   `koanf:"replay" yaml:"replay"`
	Server  ServerConfig   `koanf:"server" yaml:"server"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path        string        `koanf:"path" yaml:"path" validate:"required"`
	MaxConns    int           `koanf:"max_conns" yaml:"max_conns" validate:"gte=1"`
	BusyTimeout time.Duration `koanf:"busy_timeout" yaml:"busy_timeout" validate:"gt=0"`
}

// FetchConfig tunes the upstream HTTP client.
type FetchConfig struct {
	BaseURL           string        `koanf:"base_url" yaml:"base_url" validate:"required,url"`
	UserAgent         string        `koanf:"user_agent" yaml:"user_agent"`
	RequestTimeout    time.Duration `koanf:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" yaml:"burst" validate:"gte=1"`
	Attempts          uint          `koanf:"attempts" yaml:"attempts" validate:"gte=1,lte=10"`
	RetryDelay        time.Duration `koanf:"retry_delay" yaml:"retry_delay" validate:"gte=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures" yaml:"breaker_failures" validate:"gte=1"`
	BreakerCooldown   time.Duration `koanf:"breaker_cooldown" yaml:"breaker_cooldown" validate:"gt=0"`
}

// Worker modes.
const (
	// ModeRoot extracts every entity embedded in a capture root.
	ModeRoot = "root"
	// ModeKind stores each response as entities of the endpoint's kind.
	ModeKind = "kind"
)

// WorkerConfig describes one interval worker and the endpoints it polls.
type WorkerConfig struct {
	Name     string        `koanf:"name" yaml:"name" validate:"required"`
	Enabled  bool          `koanf:"enabled" yaml:"enabled"`
	Interval time.Duration `koanf:"interval" yaml:"interval" validate:"gt=0"`
	Offset   time.Duration `koanf:"offset" yaml:"offset" validate:"gte=0"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout" validate:"gte=0"`
	Mode     string        `koanf:"mode" yaml:"mode" validate:"oneof=root kind"`

	// Stream names the capture log raw responses are recorded to. Empty
	// disables capture recording for this worker.
	Stream string `koanf:"stream" yaml:"stream,omitempty"`

	Endpoints []EndpointConfig `koanf:"endpoints" yaml:"endpoints" validate:"min=1,dive"`
}

// EndpointConfig is one polled URL. URL may be relative to fetch.base_url.
// Kind is required in kind mode.
type EndpointConfig struct {
	Kind string `koanf:"kind" yaml:"kind,omitempty"`
	URL  string `koanf:"url" yaml:"url" validate:"required"`
}

// SearchConfig schedules the search index refresh.
type SearchConfig struct {
	Enabled   bool          `koanf:"enabled" yaml:"enabled"`
	Interval  time.Duration `koanf:"interval" yaml:"interval" validate:"gt=0"`
	Offset    time.Duration `koanf:"offset" yaml:"offset" validate:"gte=0"`
	BatchSize int           `koanf:"batch_size" yaml:"batch_size" validate:"gte=1"`
}

// ReplayConfig tunes replay.
type ReplayConfig struct {
	BatchSize int `koanf:"batch_size" yaml:"batch_size" validate:"gte=1"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" validate:"required"`
	DefaultPageSize int           `koanf:"default_page_size" yaml:"default_page_size" validate:"gte=1"`
	MaxPageSize     int           `koanf:"max_page_size" yaml:"max_page_size" validate:"gtefield=DefaultPageSize"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`

	// CORSOrigins lists allowed browser origins; empty disables CORS headers.
	CORSOrigins []string `koanf:"cors_origins" yaml:"cors_origins"`

	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `koanf:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
}
