package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RefreshIndexOptions holds flags for the refresh-index command.
type RefreshIndexOptions struct {
	*RootOptions
	BatchSize int
}

// IndexSummary reports a refresh pass.
type IndexSummary struct {
	Rows int `json:"rows"`
}

func (s IndexSummary) String() string {
	return fmt.Sprintf("indexed %d rows", s.Rows)
}

// NewRefreshIndexCommand creates the refresh-index command.
func NewRefreshIndexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshIndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh-index",
		Short: "Fill the search index for rows that lack it",
		Long: `Compute search text for every merged row whose index is still unset.

The ingest command runs this periodically; use this command after a bulk
import or replay to make new rows searchable straight away.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefreshIndex(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.BatchSize, "batch", 0, "rows per transaction (default search.batch_size)")

	return cmd
}

func runRefreshIndex(opts *RefreshIndexOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	batch := cfg.Search.BatchSize
	if opts.BatchSize > 0 {
		batch = opts.BatchSize
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	n, err := st.RefreshSearchIndex(ctx, batch)
	if err != nil {
		return WrapExitError(ExitFailure, "refresh failed", err)
	}
	return formatter(opts.RootOptions, cmd).Success(IndexSummary{Rows: n})
}
