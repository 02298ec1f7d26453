package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/roach88/sibr/internal/model"
)

// Order is the direction of a query over (first_seen, entity_id, hash).
type Order int

const (
	Ascending Order = iota
	Descending
)

// ParseOrder accepts "asc" or "desc" (case-insensitive); empty means asc.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("unknown order %q", s)
	}
}

// Predicate is a JSON-path equality test against the stored document.
// Path uses dotted field names ("weather", "baseRunners.0").
type Predicate struct {
	Path  string
	Value any
}

// Query describes a read over the merged view of one entity kind.
// Zero-valued fields do not filter.
type Query struct {
	Kind      model.EntityKind
	EntityIDs []string
	Season    *int
	Day       *int
	After     *time.Time // first_seen >= After
	Before    *time.Time // first_seen < Before
	Search    string
	Where     []Predicate
	Order     Order
	Limit     int // 0 means unbounded
	Page      *PageToken
}

const selectUnique = `
	SELECT u.kind, u.entity_id, u.hash, u.first_seen, u.last_seen,
	       u.season, u.day, u.search_text, o.data
	FROM updates_unique u
	JOIN objects o ON o.hash = u.hash
`

// Query returns a lazy, ordered sequence of merged rows.
//
// Rows are produced as the caller ranges over the sequence; breaking out of
// the loop releases the underlying cursor. Continuation from q.Page is
// bounded by the sort key through idx_unique_order, never an offset.
func (s *Store) Query(ctx context.Context, q Query) iter.Seq2[model.UniqueView, error] {
	return func(yield func(model.UniqueView, error) bool) {
		sqlText, args, err := buildQuery(q)
		if err != nil {
			yield(model.UniqueView{}, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			yield(model.UniqueView{}, fmt.Errorf("query %s: %w", q.Kind, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scanUnique(rows)
			if err != nil {
				yield(model.UniqueView{}, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.UniqueView{}, fmt.Errorf("iterate %s: %w", q.Kind, err))
		}
	}
}

// Page is one materialized page of a query.
type Page struct {
	Rows []model.UniqueView
	Next *PageToken // nil when no rows remain
}

// QueryPage reads up to q.Limit rows and reports whether more remain.
// One extra row is fetched to decide; it is not returned.
func (s *Store) QueryPage(ctx context.Context, q Query) (Page, error) {
	if q.Limit <= 0 {
		return Page{}, fmt.Errorf("page limit must be positive, got %d", q.Limit)
	}

	want := q.Limit
	q.Limit = want + 1

	page := Page{Rows: []model.UniqueView{}}
	for v, err := range s.Query(ctx, q) {
		if err != nil {
			return Page{}, err
		}
		if len(page.Rows) == want {
			next := TokenFor(page.Rows[want-1])
			page.Next = &next
			break
		}
		page.Rows = append(page.Rows, v)
	}
	return page, nil
}

// buildQuery renders q as SQL with positional arguments.
func buildQuery(q Query) (string, []any, error) {
	if q.Kind == "" {
		return "", nil, fmt.Errorf("query requires an entity kind")
	}

	var (
		where = []string{"u.kind = ?"}
		args  = []any{string(q.Kind)}
	)

	if len(q.EntityIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(q.EntityIDs)), ",")
		where = append(where, "u.entity_id IN ("+marks+")")
		for _, id := range q.EntityIDs {
			args = append(args, id)
		}
	}
	if q.Season != nil {
		where = append(where, "u.season = ?")
		args = append(args, *q.Season)
	}
	if q.Day != nil {
		where = append(where, "u.day = ?")
		args = append(args, *q.Day)
	}
	if q.After != nil {
		where = append(where, "u.first_seen >= ?")
		args = append(args, toMicros(*q.After))
	}
	if q.Before != nil {
		where = append(where, "u.first_seen < ?")
		args = append(args, toMicros(*q.Before))
	}

	// Every term must appear; rows not yet indexed never match.
	for _, term := range strings.Fields(NormalizeSearch(q.Search)) {
		where = append(where, `u.search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(term)+"%")
	}

	for _, p := range q.Where {
		if p.Path == "" {
			return "", nil, fmt.Errorf("predicate has empty path")
		}
		where = append(where, "json_extract(o.data, ?) = ?")
		args = append(args, jsonPath(p.Path), predicateValue(p.Value))
	}

	cmp, dir := ">", "ASC"
	if q.Order == Descending {
		cmp, dir = "<", "DESC"
	}
	if q.Page != nil {
		where = append(where, "(u.first_seen, u.entity_id, u.hash) "+cmp+" (?, ?, ?)")
		args = append(args, toMicros(q.Page.FirstSeen), q.Page.EntityID, string(q.Page.Hash))
	}

	var b strings.Builder
	b.WriteString(selectUnique)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	fmt.Fprintf(&b, " ORDER BY u.first_seen %s, u.entity_id %s, u.hash %s", dir, dir, dir)
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

// jsonPath converts a dotted path into a SQLite JSON path. Numeric
// segments index arrays.
func jsonPath(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(path, ".") {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString(`."` + strings.ReplaceAll(seg, `"`, `\"`) + `"`)
	}
	return b.String()
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// predicateValue maps Go values onto what json_extract returns.
// JSON booleans come back from SQLite as integers.
func predicateValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return v
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnique(r rowScanner) (model.UniqueView, error) {
	var (
		v                   model.UniqueView
		kind, hash, data    string
		firstSeen, lastSeen int64
		season, day         sql.NullInt64
		searchText          sql.NullString
	)
	if err := r.Scan(&kind, &v.EntityID, &hash, &firstSeen, &lastSeen, &season, &day, &searchText, &data); err != nil {
		return model.UniqueView{}, fmt.Errorf("scan unique row: %w", err)
	}

	v.Kind = model.EntityKind(kind)
	v.Hash = model.Hash(hash)
	v.FirstSeen = fromMicros(firstSeen)
	v.LastSeen = fromMicros(lastSeen)
	v.Keys = keysFrom(season, day)
	v.Data = []byte(data)
	if searchText.Valid {
		text := searchText.String
		v.SearchText = &text
	}
	return v, nil
}
