package store

import (
	"context"
	"fmt"

	"github.com/roach88/sibr/internal/model"
)

// KindStats counts rows for one entity kind.
type KindStats struct {
	Updates int `json:"updates" yaml:"updates"`
	Unique  int `json:"unique" yaml:"unique"`
	Pending int `json:"pending_index" yaml:"pending_index"`
}

// Stats is a point-in-time summary of the database.
type Stats struct {
	Objects  int                            `json:"objects" yaml:"objects"`
	Captures map[model.Stream]int           `json:"captures" yaml:"captures"`
	Kinds    map[model.EntityKind]KindStats `json:"kinds" yaml:"kinds"`
}

// Stats counts objects, captures per stream and rows per kind.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Captures: map[model.Stream]int{},
		Kinds:    map[model.EntityKind]KindStats{},
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&st.Objects); err != nil {
		return Stats{}, fmt.Errorf("count objects: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT stream, COUNT(*) FROM captures GROUP BY stream`)
	if err != nil {
		return Stats{}, fmt.Errorf("count captures: %w", err)
	}
	for rows.Next() {
		var stream string
		var n int
		if err := rows.Scan(&stream, &n); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("scan capture count: %w", err)
		}
		st.Captures[model.Stream(stream)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate capture counts: %w", err)
	}

	for _, kind := range model.AllKinds {
		var ks KindStats
		err := s.db.QueryRowContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM updates WHERE kind = ?),
				(SELECT COUNT(*) FROM updates_unique WHERE kind = ?),
				(SELECT COUNT(*) FROM updates_unique WHERE kind = ? AND search_text IS NULL)
		`, string(kind), string(kind), string(kind)).Scan(&ks.Updates, &ks.Unique, &ks.Pending)
		if err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", kind, err)
		}
		if ks.Updates > 0 || ks.Unique > 0 {
			st.Kinds[kind] = ks
		}
	}
	return st, nil
}
