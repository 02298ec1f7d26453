package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// SupervisorConfig holds supervisor tuning.
type SupervisorConfig struct {
	// ShutdownTimeout bounds how long a service may take to stop.
	// Default: 30s, long enough for an in-flight tick to finish.
	ShutdownTimeout time.Duration

	// FailureBackoff is applied only to services that return errors
	// repeatedly (the HTTP server). Workers never return early.
	// Default: 15s
	FailureBackoff time.Duration
}

// Supervisor hosts workers and other long-running services in one suture
// tree, split into an ingest layer and an api layer so a failing listener
// cannot disturb ingestion.
type Supervisor struct {
	root   *suture.Supervisor
	ingest *suture.Supervisor
	api    *suture.Supervisor
	logger *slog.Logger
}

// NewSupervisor builds the tree. Supervisor events are logged through
// sutureslog.
func NewSupervisor(name string, logger *slog.Logger, cfg SupervisorConfig) *Supervisor {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:      handler.MustHook(),
		FailureBackoff: cfg.FailureBackoff,
		Timeout:        cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureBackoff: cfg.FailureBackoff,
		Timeout:        cfg.ShutdownTimeout,
	}

	root := suture.New(name, rootSpec)
	ingest := suture.New("ingest-layer", childSpec)
	api := suture.New("api-layer", childSpec)
	root.Add(ingest)
	root.Add(api)

	return &Supervisor{root: root, ingest: ingest, api: api, logger: logger}
}

// AddWorker adds an interval worker to the ingest layer.
func (s *Supervisor) AddWorker(w *Worker) suture.ServiceToken {
	return s.ingest.Add(w)
}

// AddService adds any other service (HTTP server) to the api layer.
func (s *Supervisor) AddService(svc suture.Service) suture.ServiceToken {
	return s.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result when the tree stops.
func (s *Supervisor) ServeBackground(ctx context.Context) <-chan error {
	return s.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (s *Supervisor) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return s.root.UnstoppedServiceReport()
}
