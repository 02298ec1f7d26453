package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

// StatsSummary renders store.Stats as a table in text mode.
type StatsSummary struct {
	store.Stats `yaml:",inline"`
}

func (s StatsSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "objects: %s\n", humanize.Comma(int64(s.Objects)))

	streams := make([]string, 0, len(s.Captures))
	for stream := range s.Captures {
		streams = append(streams, string(stream))
	}
	slices.Sort(streams)
	for _, stream := range streams {
		fmt.Fprintf(&b, "captures[%s]: %s\n", stream, humanize.Comma(int64(s.Captures[model.Stream(stream)])))
	}

	fmt.Fprintf(&b, "%-16s %10s %10s %10s\n", "kind", "updates", "unique", "unindexed")
	for _, kind := range model.AllKinds {
		ks, ok := s.Kinds[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%-16s %10s %10s %10s\n", kind,
			humanize.Comma(int64(ks.Updates)), humanize.Comma(int64(ks.Unique)), humanize.Comma(int64(ks.Pending)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Show row counts per kind",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore(st)

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read stats", err)
			}
			return formatter(rootOpts, cmd).Success(StatsSummary{Stats: stats})
		},
	}
	return cmd
}
