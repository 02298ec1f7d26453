// Package logging configures the process-wide zerolog logger and bridges
// log/slog onto it.
//
// Packages log through slog call sites; Init installs a slog.Handler that
// writes zerolog events, so every record shares one format and level.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, disabled.
	Level string `koanf:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`

	// Format is "json" (default) or "console" for human-readable output.
	Format string `koanf:"format" yaml:"format" validate:"omitempty,oneof=json console"`

	// Caller adds file:line to each event.
	Caller bool `koanf:"caller" yaml:"caller"`

	// Output defaults to stderr.
	Output io.Writer `koanf:"-" yaml:"-" json:"-"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

func init() {
	initLogger(DefaultConfig())
}

// Init reconfigures the global logger and makes slog.Default write through
// it. Safe to call more than once.
func Init(cfg Config) {
	mu.Lock()
	initLogger(cfg)
	mu.Unlock()

	slog.SetDefault(slog.New(NewSlogHandler()))
}

func initLogger(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05.000",
		}
	}

	l := zerolog.New(output).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Caller {
		l = l.With().Caller().Logger()
	}
	log = l
}

// ParseLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the current global zerolog logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}
