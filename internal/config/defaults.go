package config

import (
	"time"

	"github.com/roach88/sibr/internal/logging"
	"github.com/roach88/sibr/internal/model"
)

// Default returns the built-in configuration. Worker cadences follow the
// upstream site's update rhythm: the live stream every few seconds, the
// league and misc endpoints every minute, offseason data every ten.
func Default() *Config {
	log := logging.DefaultConfig()
	log.Output = nil

	return &Config{
		Database: DatabaseConfig{Path: "sibr.db", MaxConns: 8, BusyTimeout: 5 * time.Second},
		Log:      log,
		Fetch: FetchConfig{
			BaseURL:           "https://www.blaseball.com",
			UserAgent:         "sibr-storage/1.0",
			RequestTimeout:    30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			Attempts:          3,
			RetryDelay:        500 * time.Millisecond,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
		Workers: []WorkerConfig{
			{
				Name:     "stream",
				Enabled:  true,
				Interval: 5 * time.Second,
				Timeout:  30 * time.Second,
				Mode:     ModeRoot,
				Stream:   string(model.StreamMain),
				Endpoints: []EndpointConfig{
					{URL: "/events/streamData"},
				},
			},
			{
				Name:     "teams",
				Enabled:  true,
				Interval: time.Minute,
				Offset:   10 * time.Second,
				Timeout:  45 * time.Second,
				Mode:     ModeKind,
				Endpoints: []EndpointConfig{
					{Kind: string(model.KindTeam), URL: "/database/allTeams"},
				},
			},
			{
				Name:     "misc",
				Enabled:  true,
				Interval: time.Minute,
				Timeout:  45 * time.Second,
				Mode:     ModeKind,
				Endpoints: []EndpointConfig{
					{Kind: string(model.KindIdols), URL: "/api/getIdols"},
					{Kind: string(model.KindTributes), URL: "/api/getTribute"},
					{Kind: string(model.KindGlobalEvents), URL: "/database/globalEvents"},
					{Kind: string(model.KindSim), URL: "/database/simulationData"},
				},
			},
			{
				Name:     "offseason",
				Enabled:  true,
				Interval: 10 * time.Minute,
				Timeout:  time.Minute,
				Mode:     ModeKind,
				Endpoints: []EndpointConfig{
					{Kind: string(model.KindOffseasonSetup), URL: "/database/offseasonSetup"},
				},
			},
		},
		Search: SearchConfig{
			Enabled:   true,
			Interval:  5 * time.Minute,
			Offset:    30 * time.Second,
			BatchSize: 1000,
		},
		Replay: ReplayConfig{BatchSize: 2500},
		Server: ServerConfig{
			Addr:            ":4011",
			DefaultPageSize: 100,
			MaxPageSize:     1000,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       600,
		},
	}
}
