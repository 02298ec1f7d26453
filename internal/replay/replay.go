// Package replay re-runs stored raw captures through extraction and the
// update ledger, so history can be reprocessed after an extraction fix
// without re-fetching anything.
//
// Replay is a lazy, finite sequence of batches. Each batch commits in its
// own transaction; because every write is idempotent, a replay can be
// interrupted at any batch boundary and resumed, or simply run again.
package replay

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/sibr/internal/extract"
	"github.com/roach88/sibr/internal/metrics"
	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

// DefaultBatchSize is the number of updates committed per transaction.
const DefaultBatchSize = 2500

// DefaultReadSize is the number of captures read per query.
const DefaultReadSize = 200

// Store is the subset of the store replay needs.
type Store interface {
	ReadCaptures(ctx context.Context, stream model.Stream, cursor store.CaptureCursor, limit int) ([]model.Capture, error)
	AppendUpdates(ctx context.Context, updates []model.EntityUpdate) (int, error)
}

// Options selects what to replay.
type Options struct {
	Stream    model.Stream
	BatchSize int       // updates per transaction; 0 means DefaultBatchSize
	ReadSize  int       // captures per read; 0 means DefaultReadSize
	From      time.Time // zero means the beginning of the stream
}

// Progress reports one committed batch.
type Progress struct {
	// Timestamp is the earliest update timestamp in the batch.
	Timestamp time.Time
	// Saved counts update log rows that were new; Total is the batch size.
	Saved int
	Total int
	// Skipped counts malformed captures dropped since the previous batch.
	Skipped  int
	Duration time.Duration
	// Through is the timestamp of the last capture whose updates are all
	// committed. Passing it as Options.From resumes without gaps.
	Through time.Time
}

type pendingUpdate struct {
	update model.EntityUpdate
	// completes is set on the last update of a capture: once this update
	// commits, every capture up to that time is fully replayed.
	completes *time.Time
}

// Run returns the replay as a lazy sequence. Nothing is read until the
// caller ranges over it; stopping early leaves every yielded batch
// committed and nothing else.
func Run(ctx context.Context, st Store, opts Options, logger *slog.Logger) iter.Seq2[Progress, error] {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	if opts.Stream == "" {
		opts.Stream = model.StreamMain
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(yield func(Progress, error) bool) {
		r := &runner{st: st, opts: opts, logger: logger}
		r.run(ctx, yield)
	}
}

type runner struct {
	st     Store
	opts   Options
	logger *slog.Logger

	pending []pendingUpdate
	through time.Time
	skipped int
}

func (r *runner) run(ctx context.Context, yield func(Progress, error) bool) {
	cursor := store.CaptureCursor{}
	if !r.opts.From.IsZero() {
		cursor = store.CursorAt(r.opts.From)
	}

	for {
		if err := ctx.Err(); err != nil {
			yield(Progress{}, err)
			return
		}

		captures, err := r.st.ReadCaptures(ctx, r.opts.Stream, cursor, r.opts.ReadSize)
		if err != nil {
			yield(Progress{}, fmt.Errorf("read captures: %w", err))
			return
		}
		if len(captures) == 0 {
			break
		}
		cursor = store.CursorAfter(captures[len(captures)-1])

		for _, c := range captures {
			r.add(c)
			for len(r.pending) >= r.opts.BatchSize {
				if !r.flush(ctx, r.opts.BatchSize, yield) {
					return
				}
			}
		}
	}

	for len(r.pending) > 0 {
		if !r.flush(ctx, min(len(r.pending), r.opts.BatchSize), yield) {
			return
		}
	}
}

// add extracts one capture into the pending buffer.
func (r *runner) add(c model.Capture) {
	res, err := extract.Extract(c.Source, c.Timestamp, c.Data)
	if err != nil {
		r.skipped++
		metrics.MalformedCaptures.Inc()
		r.logger.Warn("skipping capture",
			"stream", string(c.Stream),
			"source", c.Source.String(),
			"timestamp", c.Timestamp,
			"hash", string(c.Hash),
			"error", err,
		)
	}

	ts := c.Timestamp
	for i, u := range res.Updates {
		p := pendingUpdate{update: u}
		if i == len(res.Updates)-1 {
			p.completes = &ts
		}
		r.pending = append(r.pending, p)
	}

	if len(res.Updates) == 0 {
		// Nothing to wait for: done as soon as everything before it is.
		if len(r.pending) == 0 {
			r.through = ts
		} else {
			r.pending[len(r.pending)-1].completes = &ts
		}
	}
}

// flush commits the first n pending updates as one batch. Returns false if
// the caller stopped iterating or an error was yielded.
func (r *runner) flush(ctx context.Context, n int, yield func(Progress, error) bool) bool {
	batch := make([]model.EntityUpdate, n)
	earliest := r.pending[0].update.Timestamp
	through := r.through
	for i, p := range r.pending[:n] {
		batch[i] = p.update
		if p.update.Timestamp.Before(earliest) {
			earliest = p.update.Timestamp
		}
		if p.completes != nil {
			through = *p.completes
		}
	}

	start := time.Now()
	saved, err := r.st.AppendUpdates(ctx, batch)
	elapsed := time.Since(start)
	if err != nil {
		yield(Progress{}, fmt.Errorf("save batch @ %s: %w", earliest.Format(time.RFC3339), err))
		return false
	}

	metrics.ReplayBatchDuration.Observe(elapsed.Seconds())
	metrics.UpdatesSaved.WithLabelValues("replay").Add(float64(saved))

	r.pending = r.pending[n:]
	r.through = through
	skipped := r.skipped
	r.skipped = 0

	return yield(Progress{
		Timestamp: earliest,
		Saved:     saved,
		Total:     n,
		Skipped:   skipped,
		Duration:  elapsed,
		Through:   through,
	}, nil)
}
