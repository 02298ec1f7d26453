package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sibr/internal/api"
	"github.com/roach88/sibr/internal/config"
	"github.com/roach88/sibr/internal/ingest"
	"github.com/roach88/sibr/internal/scheduler"
	"github.com/roach88/sibr/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Serve bool
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the polling workers",
		Long: `Start every enabled worker and poll upstream endpoints on their
wall-clock aligned schedules until interrupted.

Each worker ticks independently: a failed or slow tick is logged and the
worker carries on at its next boundary.

Example:
  sibr ingest --config sibr.yaml
  sibr ingest --db /tmp/sibr.db --serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Serve, "serve", false, "also serve the query API")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	source, err := cfg.SourceID()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid source", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	fetcher, err := ingest.NewHTTPFetcher(cfg.Fetch)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build fetcher", err)
	}

	logger := slog.Default()
	workers, err := ingest.BuildWorkers(cfg, ingest.Deps{
		Fetcher:  fetcher,
		Ingestor: ingest.NewIngestor(st, source, "ingest", logger),
		Indexer:  st,
		Logger:   logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid worker configuration", err)
	}
	if len(workers) == 0 {
		return NewExitError(ExitCommandError, "no workers enabled")
	}

	sup := scheduler.NewSupervisor("sibr", logger, scheduler.SupervisorConfig{})
	for _, w := range workers {
		sup.AddWorker(w)
		slog.Info("worker scheduled",
			"worker", w.Config().Name,
			"interval", w.Config().Interval,
			"offset", w.Config().Offset,
		)
	}
	if opts.Serve {
		sup.AddService(api.NewServer(st, cfg.Server, logger))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingesting with %d workers. Press Ctrl-C to stop.\n", len(workers))
	return runSupervisor(cmd, sup)
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API",
		Long: `Serve the merged update view over HTTP until interrupted.

Example:
  sibr serve --addr :4011`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	logger := slog.Default()
	sup := scheduler.NewSupervisor("sibr", logger, scheduler.SupervisorConfig{})
	sup.AddService(api.NewServer(st, cfg.Server, logger))
	if cfg.Search.Enabled {
		w, err := searchWorker(cfg, st, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid search schedule", err)
		}
		sup.AddWorker(w)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.Server.Addr)
	return runSupervisor(cmd, sup)
}

// searchWorker keeps the search index fresh while serving without ingest.
func searchWorker(cfg *config.Config, st *store.Store, logger *slog.Logger) (*scheduler.Worker, error) {
	return scheduler.NewWorker(scheduler.Config{
		Name:     "search-index",
		Interval: cfg.Search.Interval,
		Offset:   cfg.Search.Offset,
	}, ingest.RefreshFunc(st, cfg.Search.BatchSize, logger), scheduler.WithLogger(logger))
}

// runSupervisor serves sup until SIGINT/SIGTERM or the command's context
// ends, then reports services that missed the shutdown deadline.
func runSupervisor(cmd *cobra.Command, sup *scheduler.Supervisor) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	err := sup.Serve(ctx)

	if unstopped, rerr := sup.UnstoppedServiceReport(); rerr == nil && len(unstopped) > 0 {
		for _, u := range unstopped {
			slog.Warn("service did not stop in time", "service", u.Name)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "supervisor error", err)
	}
	slog.Info("stopped gracefully")
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM, or when parent ends.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
