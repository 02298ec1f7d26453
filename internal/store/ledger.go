package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/sibr/internal/model"
)

// AppendStats summarizes one append batch.
type AppendStats struct {
	Updates     int // updates submitted
	Saved       int // new rows in the update log
	NewObjects  int // new rows in the object store
	NewCaptures int // new rows in the capture log
	Conflicts   int // updates dropped because their log slot holds other content
}

// AppendUpdates durably records a batch of updates and returns how many were
// new to the update log. Re-submitting the same batch returns 0 and changes
// nothing.
func (s *Store) AppendUpdates(ctx context.Context, updates []model.EntityUpdate) (int, error) {
	stats, err := s.SaveBatch(ctx, nil, updates)
	return stats.Saved, err
}

// SaveBatch records raw captures and extracted updates in one transaction.
// Either everything in the batch becomes visible or nothing does.
func (s *Store) SaveBatch(ctx context.Context, captures []model.Capture, updates []model.EntityUpdate) (AppendStats, error) {
	stats := AppendStats{Updates: len(updates)}
	if len(captures) == 0 && len(updates) == 0 {
		return stats, nil
	}

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		objs := make([]model.Object, 0, len(captures)+len(updates))
		for _, c := range captures {
			objs = append(objs, c.Object())
		}
		for _, u := range updates {
			objs = append(objs, u.Object())
		}

		// Objects first: log rows reference them.
		n, err := putObjects(ctx, tx, objs)
		if err != nil {
			return err
		}
		stats.NewObjects = n

		if stats.NewCaptures, err = insertCaptures(ctx, tx, captures); err != nil {
			return err
		}
		logged, err := insertUpdates(ctx, tx, updates)
		if err != nil {
			return err
		}
		stats.Saved = logged.saved
		stats.Conflicts = len(updates) - len(logged.accepted)
		// Only updates backed by a log row may reach the merged view.
		return mergeUnique(ctx, tx, logged.accepted)
	})
	if err != nil {
		return AppendStats{Updates: len(updates)}, err
	}
	return stats, nil
}

type insertResult struct {
	saved    int
	accepted []model.EntityUpdate
}

// insertUpdates appends provenance rows. A row whose (kind, source,
// timestamp, entity) slot already exists with the same hash is a repeat and
// stays accepted; one whose slot holds a different hash is dropped and
// logged, so the merged view never gains content without provenance.
func insertUpdates(ctx context.Context, tx *sql.Tx, updates []model.EntityUpdate) (insertResult, error) {
	res := insertResult{accepted: make([]model.EntityUpdate, 0, len(updates))}
	if len(updates) == 0 {
		return res, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO updates (kind, source_id, timestamp, entity_id, hash, season, day)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, source_id, timestamp, entity_id) DO NOTHING
	`)
	if err != nil {
		return res, fmt.Errorf("prepare update insert: %w", err)
	}
	defer stmt.Close()

	existing, err := tx.PrepareContext(ctx, `
		SELECT hash FROM updates
		WHERE kind = ? AND source_id = ? AND timestamp = ? AND entity_id = ?
	`)
	if err != nil {
		return res, fmt.Errorf("prepare update lookup: %w", err)
	}
	defer existing.Close()

	for _, u := range updates {
		if u.Kind == "" {
			return res, fmt.Errorf("update has empty kind")
		}
		r, err := stmt.ExecContext(ctx,
			string(u.Kind),
			u.Source.String(),
			toMicros(u.Timestamp),
			u.EntityID,
			string(u.Hash),
			nullInt(u.Keys.Season),
			nullInt(u.Keys.Day),
		)
		if err != nil {
			return res, fmt.Errorf("insert update %s/%s: %w", u.Kind, u.EntityID, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			res.saved += int(n)
			res.accepted = append(res.accepted, u)
			continue
		}

		var held string
		err = existing.QueryRowContext(ctx,
			string(u.Kind), u.Source.String(), toMicros(u.Timestamp), u.EntityID,
		).Scan(&held)
		if err != nil {
			return res, fmt.Errorf("look up update %s/%s: %w", u.Kind, u.EntityID, err)
		}
		if model.Hash(held) == u.Hash {
			res.accepted = append(res.accepted, u)
			continue
		}
		slog.Warn("skipping update: log slot holds different content",
			"kind", u.Kind,
			"source", u.Source,
			"timestamp", u.Timestamp,
			"entity", u.EntityID,
			"hash", u.Hash,
			"logged_hash", held,
		)
	}
	return res, nil
}

type uniqueKey struct {
	kind     model.EntityKind
	entityID string
	hash     model.Hash
}

type uniqueSpan struct {
	first, last time.Time
	keys        model.Keys
}

// mergeUnique folds a batch into the merged view. Rows are grouped by
// (kind, entity, hash) so each view row is touched once per batch.
// first_seen only moves earlier and last_seen only moves later.
func mergeUnique(ctx context.Context, tx *sql.Tx, updates []model.EntityUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	spans := make(map[uniqueKey]*uniqueSpan, len(updates))
	order := make([]uniqueKey, 0, len(updates))
	for _, u := range updates {
		k := uniqueKey{kind: u.Kind, entityID: u.EntityID, hash: u.Hash}
		span, ok := spans[k]
		if !ok {
			spans[k] = &uniqueSpan{first: u.Timestamp, last: u.Timestamp, keys: u.Keys}
			order = append(order, k)
			continue
		}
		if u.Timestamp.Before(span.first) {
			span.first = u.Timestamp
		}
		if u.Timestamp.After(span.last) {
			span.last = u.Timestamp
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO updates_unique (kind, entity_id, hash, first_seen, last_seen, season, day)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, entity_id, hash) DO UPDATE SET
			first_seen = min(first_seen, excluded.first_seen),
			last_seen  = max(last_seen, excluded.last_seen)
	`)
	if err != nil {
		return fmt.Errorf("prepare unique upsert: %w", err)
	}
	defer stmt.Close()

	for _, k := range order {
		span := spans[k]
		_, err := stmt.ExecContext(ctx,
			string(k.kind),
			k.entityID,
			string(k.hash),
			toMicros(span.first),
			toMicros(span.last),
			nullInt(span.keys.Season),
			nullInt(span.keys.Day),
		)
		if err != nil {
			return fmt.Errorf("upsert unique %s/%s: %w", k.kind, k.entityID, err)
		}
	}
	return nil
}

// Provenance returns every log row that observed the given content, ordered
// by timestamp then source.
func (s *Store) Provenance(ctx context.Context, kind model.EntityKind, entityID string, hash model.Hash) ([]model.EntityUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, timestamp, season, day
		FROM updates
		WHERE kind = ? AND entity_id = ? AND hash = ?
		ORDER BY timestamp ASC, source_id ASC
	`, string(kind), entityID, string(hash))
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	result := []model.EntityUpdate{}
	for rows.Next() {
		var (
			source      string
			ts          int64
			season, day sql.NullInt64
		)
		if err := rows.Scan(&source, &ts, &season, &day); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		id, err := model.ParseSource(source)
		if err != nil {
			return nil, fmt.Errorf("stored source id: %w", err)
		}
		result = append(result, model.EntityUpdate{
			Kind:      kind,
			Source:    id,
			Timestamp: fromMicros(ts),
			EntityID:  entityID,
			Hash:      hash,
			Keys:      keysFrom(season, day),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provenance: %w", err)
	}
	return result, nil
}

// Latest returns the merged view row with the most recent last_seen for an
// entity, or ErrNotFound.
func (s *Store) Latest(ctx context.Context, kind model.EntityKind, entityID string) (model.UniqueView, error) {
	row := s.db.QueryRowContext(ctx, selectUnique+`
		WHERE u.kind = ? AND u.entity_id = ?
		ORDER BY u.last_seen DESC, u.hash ASC
		LIMIT 1
	`, string(kind), entityID)

	v, err := scanUnique(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UniqueView{}, fmt.Errorf("%s %q: %w", kind, entityID, ErrNotFound)
	}
	if err != nil {
		return model.UniqueView{}, err
	}
	return v, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func keysFrom(season, day sql.NullInt64) model.Keys {
	var k model.Keys
	if season.Valid {
		k.Season = model.IntPtr(int(season.Int64))
	}
	if day.Valid {
		k.Day = model.IntPtr(int(day.Int64))
	}
	return k
}
