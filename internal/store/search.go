package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sibr/internal/model"
)

// searchPaths lists, per kind, the JSON fields whose text is indexed.
// Kinds not listed get an empty (but non-null) index.
var searchPaths = map[model.EntityKind][]string{
	model.KindGame:         {"lastUpdate"},
	model.KindPlayer:       {"name"},
	model.KindTeam:         {"fullName", "nickname"},
	model.KindGlobalEvents: {"msg"},
}

// NormalizeSearch folds text for matching: accents are stripped, case is
// folded and runs of whitespace collapse to one space.
// Transformers and casers are stateful, so each call builds its own.
func NormalizeSearch(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// SearchText computes the derived search text for one stored document.
func SearchText(kind model.EntityKind, data []byte) string {
	paths, ok := searchPaths[kind]
	if !ok {
		return ""
	}

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		if v := gjson.GetBytes(data, p); v.Type == gjson.String && v.Str != "" {
			parts = append(parts, v.Str)
		}
	}
	return NormalizeSearch(strings.Join(parts, " "))
}

type pendingRow struct {
	id   int64
	kind model.EntityKind
	data string
}

// RefreshSearchIndex computes search text for merged rows that do not have
// one yet, batchSize rows per transaction, and returns how many rows it
// filled. Rows that already carry an index are never touched, so it is safe
// to run while ingestion is writing.
func (s *Store) RefreshSearchIndex(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		pending, err := s.pendingSearchRows(ctx, batchSize)
		if err != nil {
			return total, err
		}
		if len(pending) == 0 {
			return total, nil
		}

		n, err := s.fillSearchRows(ctx, pending)
		total += n
		if err != nil {
			return total, err
		}
		if len(pending) < batchSize {
			return total, nil
		}
	}
}

func (s *Store) pendingSearchRows(ctx context.Context, limit int) ([]pendingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.kind, o.data
		FROM updates_unique u
		JOIN objects o ON o.hash = u.hash
		WHERE u.search_text IS NULL
		ORDER BY u.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending search rows: %w", err)
	}
	defer rows.Close()

	result := []pendingRow{}
	for rows.Next() {
		var r pendingRow
		var kind string
		if err := rows.Scan(&r.id, &kind, &r.data); err != nil {
			return nil, fmt.Errorf("scan pending search row: %w", err)
		}
		r.kind = model.EntityKind(kind)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending search rows: %w", err)
	}
	return result, nil
}

func (s *Store) fillSearchRows(ctx context.Context, pending []pendingRow) (int, error) {
	filled := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE updates_unique SET search_text = ?
			WHERE id = ? AND search_text IS NULL
		`)
		if err != nil {
			return fmt.Errorf("prepare search update: %w", err)
		}
		defer stmt.Close()

		for _, r := range pending {
			res, err := stmt.ExecContext(ctx, SearchText(r.kind, []byte(r.data)), r.id)
			if err != nil {
				return fmt.Errorf("update search text %d: %w", r.id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			filled += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return filled, nil
}

// likeEscaper escapes LIKE wildcards in user-supplied search terms.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
