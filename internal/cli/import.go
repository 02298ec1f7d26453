package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sibr/internal/importer"
	"github.com/roach88/sibr/internal/model"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Source    string
	Stream    string
	Extract   bool
	BatchSize int
}

// ImportSummary wraps importer.Result for text output.
type ImportSummary struct {
	importer.Result `yaml:",inline"`
	Source          model.SourceID `json:"source" yaml:"source"`
	Stream          model.Stream   `json:"stream" yaml:"stream"`
}

func (s ImportSummary) String() string {
	return fmt.Sprintf("imported %d files, %d lines (%d skipped): %d new captures, %d new objects, %d/%d updates saved",
		s.Files, s.Lines, s.Skipped, s.NewCaptures, s.NewObjects, s.Saved, s.Updates)
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import archived capture logs",
		Long: `Import JSON-lines capture logs as raw captures for a source.

<path> is a single file or a directory searched recursively for .json,
.jsonl and .ndjson files, each optionally gzip compressed. Every line is
{"timestamp": "<RFC 3339>", "data": {...}}.

With --extract, captures are also extracted into updates as they load;
otherwise run "sibr replay" afterwards.

Examples:
  sibr import --source iliana-s3 ./archive
  sibr import --source 4cd154b6-edec-48e8-b429-bd3a1e212d47 --extract dump.jsonl.gz`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source UUID or well-known name (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVar(&opts.Stream, "stream", string(model.StreamMain), "capture stream to record into")
	cmd.Flags().BoolVar(&opts.Extract, "extract", false, "extract updates while importing")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", importer.DefaultBatchSize, "captures per transaction")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	source, err := model.ParseSource(opts.Source)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --source", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read import path", err)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	iopts := importer.Options{
		Source:    source,
		Stream:    model.Stream(opts.Stream),
		Extract:   opts.Extract,
		BatchSize: opts.BatchSize,
	}
	im := importer.New(st, slog.Default())
	out := formatter(opts.RootOptions, cmd)
	out.VerboseLog("importing %s into %s for source %s (extract=%t)", path, iopts.Stream, source, iopts.Extract)

	var res importer.Result
	if info.IsDir() {
		res, err = im.ImportDir(ctx, path, iopts)
	} else {
		res, err = im.ImportFile(ctx, path, iopts)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}

	return out.Success(ImportSummary{Result: res, Source: source, Stream: iopts.Stream})
}
