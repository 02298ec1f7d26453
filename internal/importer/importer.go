// Package importer loads archived capture logs into the store.
//
// An archive is a directory of JSON-lines files, optionally gzip
// compressed. Each line is one capture:
//
//	{"timestamp": "2020-09-01T16:00:00.123456Z", "data": {...}}
//
// Captures are recorded for a fixed source and stream and, when requested,
// run through extraction in the same transaction.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/roach88/sibr/internal/extract"
	"github.com/roach88/sibr/internal/hasher"
	"github.com/roach88/sibr/internal/metrics"
	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

// DefaultBatchSize is the number of captures committed per transaction.
const DefaultBatchSize = 500

// maxLineSize bounds a single capture line.
const maxLineSize = 64 << 20

// Ledger persists captures and their extracted updates atomically.
type Ledger interface {
	SaveBatch(ctx context.Context, captures []model.Capture, updates []model.EntityUpdate) (store.AppendStats, error)
}

// Options controls one import.
type Options struct {
	Source    model.SourceID
	Stream    model.Stream
	Extract   bool
	BatchSize int
}

// Result totals an import.
type Result struct {
	Files       int `json:"files" yaml:"files"`
	Lines       int `json:"lines" yaml:"lines"`
	Skipped     int `json:"skipped" yaml:"skipped"`
	NewCaptures int `json:"new_captures" yaml:"new_captures"`
	NewObjects  int `json:"new_objects" yaml:"new_objects"`
	Updates     int `json:"updates" yaml:"updates"`
	Saved       int `json:"saved" yaml:"saved"`
}

func (r *Result) add(s store.AppendStats) {
	r.NewCaptures += s.NewCaptures
	r.NewObjects += s.NewObjects
	r.Updates += s.Updates
	r.Saved += s.Saved
}

func (r *Result) merge(o Result) {
	r.Files += o.Files
	r.Lines += o.Lines
	r.Skipped += o.Skipped
	r.NewCaptures += o.NewCaptures
	r.NewObjects += o.NewObjects
	r.Updates += o.Updates
	r.Saved += o.Saved
}

// Importer reads capture archives.
type Importer struct {
	ledger Ledger
	logger *slog.Logger
}

// New returns an Importer writing to ledger.
func New(ledger Ledger, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{ledger: ledger, logger: logger}
}

type line struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ImportDir imports every archive file under dir in lexical path order.
func (im *Importer) ImportDir(ctx context.Context, dir string, opts Options) (Result, error) {
	files, err := archiveFiles(dir)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("no capture files under %s", dir)
	}

	var total Result
	for _, path := range files {
		res, err := im.ImportFile(ctx, path, opts)
		total.merge(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ImportFile imports one archive file.
func (im *Importer) ImportFile(ctx context.Context, path string, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return Result{}, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	res, err := im.ImportReader(ctx, r, filepath.Base(path), opts)
	res.Files = 1
	return res, err
}

// ImportReader imports JSON-lines captures from r. name labels log lines.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader, name string, opts Options) (Result, error) {
	if opts.Stream == "" {
		opts.Stream = model.StreamMain
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	var (
		res      Result
		captures []model.Capture
		updates  []model.EntityUpdate
	)

	flush := func() error {
		if len(captures) == 0 {
			return nil
		}
		stats, err := im.ledger.SaveBatch(ctx, captures, updates)
		if err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		res.add(stats)
		metrics.CapturesSaved.WithLabelValues(string(opts.Stream)).Add(float64(stats.NewCaptures))
		metrics.UpdatesSaved.WithLabelValues("import").Add(float64(stats.Saved))
		captures, updates = captures[:0], updates[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		res.Lines++

		capture, err := parseLine(raw, opts)
		if err != nil {
			res.Skipped++
			im.logger.Warn("skipping capture line", "file", name, "line", lineNo, "error", err)
			continue
		}
		captures = append(captures, capture)

		if opts.Extract {
			out, err := extract.Extract(capture.Source, capture.Timestamp, capture.Data)
			if err != nil {
				metrics.MalformedCaptures.Inc()
				im.logger.Warn("capture not extracted",
					"file", name, "line", lineNo,
					"timestamp", capture.Timestamp, "error", err)
			}
			updates = append(updates, out.Updates...)
		}

		if len(captures) >= opts.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read %s: %w", name, err)
	}
	if err := flush(); err != nil {
		return res, err
	}

	im.logger.Info("imported captures",
		"file", name,
		"lines", res.Lines,
		"new_captures", res.NewCaptures,
		"saved", res.Saved,
		"skipped", res.Skipped,
	)
	return res, nil
}

func parseLine(raw []byte, opts Options) (model.Capture, error) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return model.Capture{}, fmt.Errorf("decode line: %w", err)
	}
	if l.Timestamp.IsZero() {
		return model.Capture{}, errors.New("missing timestamp")
	}
	if len(l.Data) == 0 {
		return model.Capture{}, errors.New("missing data")
	}

	hash, canonical, err := hasher.Sum(l.Data)
	if err != nil {
		return model.Capture{}, err
	}
	return model.Capture{
		Stream:    opts.Stream,
		Source:    opts.Source,
		Timestamp: l.Timestamp.UTC().Truncate(time.Microsecond),
		Hash:      hash,
		Data:      canonical,
	}, nil
}

var archiveSuffixes = []string{".json", ".jsonl", ".ndjson", ".json.gz", ".jsonl.gz", ".ndjson.gz"}

func archiveFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.ContainsFunc(archiveSuffixes, func(s string) bool { return strings.HasSuffix(path, s) }) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}
