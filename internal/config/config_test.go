package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sibr/internal/model"
)

// isolate runs the test from an empty directory with no SIBR_ variables.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "") // restores the original value on cleanup
			os.Unsetenv(name)
		}
	}
	return dir
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sibr.db", cfg.Database.Path)
	assert.Equal(t, 2500, cfg.Replay.BatchSize)
	require.Len(t, cfg.Workers, 4)
	assert.Equal(t, "stream", cfg.Workers[0].Name)
	assert.Equal(t, 5*time.Second, cfg.Workers[0].Interval)
	assert.Equal(t, ModeRoot, cfg.Workers[0].Mode)
	assert.Equal(t, 10*time.Minute, cfg.Workers[3].Interval)
	assert.Len(t, cfg.Workers[2].Endpoints, 4)
	assert.Equal(t, 5*time.Minute, cfg.Search.Interval)
	assert.Equal(t, 8, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 600, cfg.Server.RateLimit)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/sibr/sibr.db
source: iliana-s3
workers:
  - name: games
    enabled: true
    interval: 30s
    offset: 5s
    mode: root
    stream: hourly
    endpoints:
      - url: /database/games?day=1&season=11
replay:
  batch_size: 100
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sibr/sibr.db", cfg.Database.Path)
	assert.Equal(t, 100, cfg.Replay.BatchSize)
	require.Len(t, cfg.Workers, 1, "a file list replaces the default list")
	assert.Equal(t, 30*time.Second, cfg.Workers[0].Interval)
	assert.Equal(t, 5*time.Second, cfg.Workers[0].Offset)
	assert.Equal(t, "hourly", cfg.Workers[0].Stream)

	id, err := cfg.SourceID()
	require.NoError(t, err)
	assert.Equal(t, model.SourceIlianaS3, id)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":4011", cfg.Server.Addr)
}

func TestLoadFindsDefaultFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("server:\n  addr: \":9000\"\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "sibr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: from-file.db\n"), 0o644))

	t.Setenv("SIBR_DATABASE__PATH", "from-env.db")
	t.Setenv("SIBR_SERVER__MAX_PAGE_SIZE", "5000")
	t.Setenv("SIBR_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.Path)
	assert.Equal(t, 5000, cfg.Server.MaxPageSize)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"bad base url", func(c *Config) { c.Fetch.BaseURL = "not a url" }},
		{"zero interval", func(c *Config) { c.Workers[0].Interval = 0 }},
		{"negative offset", func(c *Config) { c.Workers[0].Offset = -time.Second }},
		{"unknown mode", func(c *Config) { c.Workers[0].Mode = "push" }},
		{"no endpoints", func(c *Config) { c.Workers[0].Endpoints = nil }},
		{"unknown kind", func(c *Config) { c.Workers[1].Endpoints[0].Kind = "weather" }},
		{"duplicate worker", func(c *Config) { c.Workers[1].Name = c.Workers[0].Name }},
		{"bad source", func(c *Config) { c.Source = "somewhere" }},
		{"page sizes", func(c *Config) { c.Server.MaxPageSize = 10 }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"zero max conns", func(c *Config) { c.Database.MaxConns = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"replay batch", func(c *Config) { c.Replay.BatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSourceIDRequired(t *testing.T) {
	_, err := Default().SourceID()
	assert.Error(t, err)
}

func TestEnabledWorkers(t *testing.T) {
	cfg := Default()
	cfg.Workers[1].Enabled = false

	names := []string{}
	for _, w := range cfg.EnabledWorkers() {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"stream", "misc", "offseason"}, names)
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "server.max_page_size", envTransformFunc("SIBR_SERVER__MAX_PAGE_SIZE"))
	assert.Equal(t, "source", envTransformFunc("SIBR_SOURCE"))
	assert.Equal(t, "", envTransformFunc("SIBR_CONFIG"))
}
