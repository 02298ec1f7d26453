package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/sibr/internal/model"
)

// RecordCaptures stores raw captures and their content in one transaction.
// Returns how many capture rows were new.
func (s *Store) RecordCaptures(ctx context.Context, captures []model.Capture) (int, error) {
	stats, err := s.SaveBatch(ctx, captures, nil)
	return stats.NewCaptures, err
}

func insertCaptures(ctx context.Context, tx *sql.Tx, captures []model.Capture) (int, error) {
	if len(captures) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO captures (stream, source_id, timestamp, hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(stream, source_id, timestamp) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare capture insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range captures {
		res, err := stmt.ExecContext(ctx, string(c.Stream), c.Source.String(), toMicros(c.Timestamp), string(c.Hash))
		if err != nil {
			return inserted, fmt.Errorf("insert capture %s@%s: %w", c.Stream, c.Timestamp.Format(time.RFC3339), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// CaptureCursor marks a position in a stream's capture log. The zero value
// starts from the beginning.
type CaptureCursor struct {
	Timestamp time.Time
	Source    model.SourceID
	started   bool
}

// CursorAfter returns the cursor positioned just past c.
func CursorAfter(c model.Capture) CaptureCursor {
	return CaptureCursor{Timestamp: c.Timestamp, Source: c.Source, started: true}
}

// CursorAt returns a cursor that resumes at the first capture with a
// timestamp at or after t.
func CursorAt(t time.Time) CaptureCursor {
	return CaptureCursor{Timestamp: t.Add(-time.Microsecond), Source: maxSource, started: true}
}

var maxSource = model.SourceID{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// ReadCaptures returns up to limit captures of stream strictly after cursor,
// ordered by (timestamp, source).
func (s *Store) ReadCaptures(ctx context.Context, stream model.Stream, cursor CaptureCursor, limit int) ([]model.Capture, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("capture read limit must be positive, got %d", limit)
	}

	query := `
		SELECT c.source_id, c.timestamp, c.hash, o.data
		FROM captures c
		JOIN objects o ON o.hash = c.hash
		WHERE c.stream = ?`
	args := []any{string(stream)}
	if cursor.started {
		query += ` AND (c.timestamp, c.source_id) > (?, ?)`
		args = append(args, toMicros(cursor.Timestamp), cursor.Source.String())
	}
	query += ` ORDER BY c.timestamp ASC, c.source_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	result := []model.Capture{}
	for rows.Next() {
		var (
			source, hash, data string
			ts                 int64
		)
		if err := rows.Scan(&source, &ts, &hash, &data); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		id, err := model.ParseSource(source)
		if err != nil {
			return nil, fmt.Errorf("stored source id: %w", err)
		}
		result = append(result, model.Capture{
			Stream:    stream,
			Source:    id,
			Timestamp: fromMicros(ts),
			Hash:      model.Hash(hash),
			Data:      []byte(data),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}
	return result, nil
}

// CountCaptures returns the number of captures recorded for stream.
func (s *Store) CountCaptures(ctx context.Context, stream model.Stream) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM captures WHERE stream = ?`, string(stream),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count captures: %w", err)
	}
	return n, nil
}
