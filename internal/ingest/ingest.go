// Package ingest turns fetched documents into durable captures and entity
// updates, and builds the interval workers that poll upstream endpoints.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/sibr/internal/extract"
	"github.com/roach88/sibr/internal/hasher"
	"github.com/roach88/sibr/internal/metrics"
	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

// Ledger is the write side of the store used by ingestion.
type Ledger interface {
	SaveBatch(ctx context.Context, captures []model.Capture, updates []model.EntityUpdate) (store.AppendStats, error)
}

// Document is one fetched payload.
type Document struct {
	Endpoint  string
	Timestamp time.Time
	Body      []byte

	// Kind selects single-kind extraction. Empty means the body is a
	// capture root holding many kinds.
	Kind model.EntityKind

	// Stream, when set, records the raw body to that capture log.
	Stream model.Stream
}

// Ingestor runs documents through extraction into the ledger.
type Ingestor struct {
	ledger Ledger
	source model.SourceID
	origin string
	logger *slog.Logger
}

// NewIngestor creates an ingestor that attributes every update to source.
// origin labels saved-row metrics ("ingest", "import").
func NewIngestor(ledger Ledger, source model.SourceID, origin string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		ledger: ledger,
		source: source,
		origin: origin,
		logger: logger.With("source", source.String()),
	}
}

// Ingest extracts doc and saves its capture and updates in one batch.
//
// A malformed root is logged with enough context to re-drive it and
// returned as an error; nothing is saved for it. Skipped sub-documents are
// logged and counted but do not fail the call.
func (in *Ingestor) Ingest(ctx context.Context, doc Document) (store.AppendStats, error) {
	ts := doc.Timestamp.UTC().Truncate(time.Microsecond)

	var (
		res extract.Result
		err error
	)
	if doc.Kind != "" {
		res, err = extract.ExtractKind(doc.Kind, in.source, ts, doc.Body)
	} else {
		res, err = extract.Extract(in.source, ts, doc.Body)
	}
	if err != nil {
		metrics.MalformedCaptures.Inc()
		in.logger.Error("skipping capture",
			"endpoint", doc.Endpoint,
			"timestamp", ts,
			"kind", string(doc.Kind),
			"error", err,
		)
		return store.AppendStats{}, err
	}

	for _, w := range res.Warnings {
		metrics.ExtractionWarnings.Inc()
		in.logger.Debug("skipped sub-document",
			"endpoint", doc.Endpoint,
			"timestamp", ts,
			"path", w.Path,
			"kind", w.Kind,
			"entity", w.EntityID,
			"reason", w.Reason,
		)
	}

	var captures []model.Capture
	if doc.Stream != "" {
		hash, canonical, err := hasher.Sum(doc.Body)
		if err != nil {
			return store.AppendStats{}, fmt.Errorf("hash capture: %w", err)
		}
		captures = []model.Capture{{
			Stream:    doc.Stream,
			Source:    in.source,
			Timestamp: ts,
			Hash:      hash,
			Data:      canonical,
		}}
	}

	stats, err := in.ledger.SaveBatch(ctx, captures, res.Updates)
	if err != nil {
		return stats, fmt.Errorf("save %s@%s: %w", doc.Endpoint, ts.Format(time.RFC3339), err)
	}

	in.record(doc, res, stats)
	return stats, nil
}

func (in *Ingestor) record(doc Document, res extract.Result, stats store.AppendStats) {
	for _, u := range res.Updates {
		metrics.UpdatesSubmitted.WithLabelValues(string(u.Kind)).Inc()
	}
	metrics.UpdatesSaved.WithLabelValues(in.origin).Add(float64(stats.Saved))
	metrics.ObjectsSaved.Add(float64(stats.NewObjects))
	if doc.Stream != "" {
		metrics.CapturesSaved.WithLabelValues(string(doc.Stream)).Add(float64(stats.NewCaptures))
	}

	if stats.Saved > 0 {
		in.logger.Info("imported updates",
			"endpoint", doc.Endpoint,
			"saved", stats.Saved,
			"updates", stats.Updates,
			"new_objects", stats.NewObjects,
		)
	}
}
