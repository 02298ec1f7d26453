package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/replay"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Stream    string
	BatchSize int
	From      string
}

// ReplaySummary totals a replay run.
type ReplaySummary struct {
	Batches  int           `json:"batches" yaml:"batches"`
	Saved    int           `json:"saved" yaml:"saved"`
	Total    int           `json:"total" yaml:"total"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Through  time.Time     `json:"through" yaml:"through"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

func (s ReplaySummary) String() string {
	out := fmt.Sprintf("saved %d/%d updates in %d batches", s.Saved, s.Total, s.Batches)
	if s.Skipped > 0 {
		out += fmt.Sprintf(", skipped %d malformed captures", s.Skipped)
	}
	if !s.Through.IsZero() {
		out += fmt.Sprintf(" (through %s)", s.Through.Format(time.RFC3339Nano))
	}
	return out
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-extract stored captures into the update ledger",
		Long: `Read recorded raw captures in timestamp order, run them through
extraction again and append the resulting updates in fixed-size batches.

Every write is idempotent, so replay can be re-run at any time. Each batch
commits on its own; an interrupted replay resumes with --from set to the
last reported "through" timestamp.

Exit codes:
  0 - Replay completed
  1 - A batch failed to save
  2 - Command error (bad config, database not found, etc.)

Examples:
  sibr replay
  sibr replay --batch 1000 --from 2020-09-01T00:00:00Z
  sibr replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Stream, "stream", string(model.StreamMain), "capture stream to replay")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 0, "updates per transaction (default replay.batch_size)")
	cmd.Flags().StringVar(&opts.From, "from", "", "resume at captures at or after this RFC 3339 time")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	ro := replay.Options{
		Stream:    model.Stream(opts.Stream),
		BatchSize: cfg.Replay.BatchSize,
	}
	if opts.BatchSize > 0 {
		ro.BatchSize = opts.BatchSize
	}
	if opts.From != "" {
		ro.From, err = time.Parse(time.RFC3339Nano, opts.From)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --from", err)
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out := formatter(opts.RootOptions, cmd)
	if ro.From.IsZero() {
		out.VerboseLog("replaying stream %s from the beginning in batches of %d", ro.Stream, ro.BatchSize)
	} else {
		out.VerboseLog("replaying stream %s from %s in batches of %d", ro.Stream, opts.From, ro.BatchSize)
	}
	start := time.Now()
	var summary ReplaySummary
	for p, err := range replay.Run(ctx, st, ro, slog.Default()) {
		if err != nil {
			summary.Duration = time.Since(start)
			slog.Error("replay stopped", "through", summary.Through, "error", err)
			return WrapExitError(ExitFailure, "replay failed", err)
		}

		summary.Batches++
		summary.Saved += p.Saved
		summary.Total += p.Total
		summary.Skipped += p.Skipped
		summary.Through = p.Through

		slog.Info("replayed batch",
			"timestamp", p.Timestamp,
			"saved", p.Saved,
			"total", p.Total,
			"took", p.Duration,
		)
		if opts.Format == "text" {
			fmt.Fprintf(out.GetErrWriter(), "@ %s: saved %d/%d updates (took %s)\n",
				p.Timestamp.Format(time.RFC3339Nano), p.Saved, p.Total, p.Duration.Round(time.Millisecond))
		}
	}
	summary.Duration = time.Since(start)

	return out.Success(summary)
}
