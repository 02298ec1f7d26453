package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/sibr/internal/config"
	"github.com/roach88/sibr/internal/metrics"
	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/scheduler"
)

// PollFunc returns the tick function for one configured worker: fetch each
// endpoint in order and ingest the result.
//
// Endpoints are independent; a failing endpoint does not stop the others,
// and the tick reports every failure joined.
func PollFunc(cfg config.WorkerConfig, fetcher Fetcher, in *Ingestor) scheduler.WorkFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, ep := range cfg.Endpoints {
			if err := pollOne(ctx, cfg, ep, fetcher, in); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ep.URL, err))
			}
		}
		return errors.Join(errs...)
	}
}

func pollOne(ctx context.Context, cfg config.WorkerConfig, ep config.EndpointConfig, fetcher Fetcher, in *Ingestor) error {
	ts, body, err := fetcher.Fetch(ctx, ep.URL)
	if err != nil {
		return err
	}

	doc := Document{
		Endpoint:  ep.URL,
		Timestamp: ts,
		Body:      body,
		Stream:    model.Stream(cfg.Stream),
	}
	if cfg.Mode == config.ModeKind {
		doc.Kind = model.EntityKind(ep.Kind)
	}

	_, err = in.Ingest(ctx, doc)
	return err
}

// SearchIndexer fills the derived search index of merged rows.
type SearchIndexer interface {
	RefreshSearchIndex(ctx context.Context, batchSize int) (int, error)
}

// RefreshFunc returns the tick function of the search index worker.
func RefreshFunc(indexer SearchIndexer, batchSize int, logger *slog.Logger) scheduler.WorkFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		n, err := indexer.RefreshSearchIndex(ctx, batchSize)
		metrics.SearchIndexRows.Add(float64(n))
		if n > 0 {
			logger.Info("refreshed search index", "rows", n)
		}
		return err
	}
}

// Deps are the collaborators shared by every worker.
type Deps struct {
	Fetcher  Fetcher
	Ingestor *Ingestor
	Indexer  SearchIndexer
	Logger   *slog.Logger
	Options  []scheduler.Option
}

// BuildWorkers creates one scheduler.Worker per enabled worker in cfg, plus
// the search index worker when enabled. Each worker gets its own schedule.
func BuildWorkers(cfg *config.Config, deps Deps) ([]*scheduler.Worker, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := append([]scheduler.Option{scheduler.WithLogger(logger)}, deps.Options...)

	var workers []*scheduler.Worker
	for _, wc := range cfg.EnabledWorkers() {
		w, err := scheduler.NewWorker(scheduler.Config{
			Name:     wc.Name,
			Interval: wc.Interval,
			Offset:   wc.Offset,
			Timeout:  wc.Timeout,
		}, PollFunc(wc, deps.Fetcher, deps.Ingestor), opts...)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}

	if cfg.Search.Enabled && deps.Indexer != nil {
		w, err := scheduler.NewWorker(scheduler.Config{
			Name:     "search-index",
			Interval: cfg.Search.Interval,
			Offset:   cfg.Search.Offset,
		}, RefreshFunc(deps.Indexer, cfg.Search.BatchSize, logger), opts...)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}
