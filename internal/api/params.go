package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

// Output formats for the updates endpoint.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// updatesParams is the decoded query string of GET /v1/{kind}/updates.
type updatesParams struct {
	Entities []string `validate:"dive,required"`
	Season   *int     `validate:"omitempty,gte=0"`
	Day      *int     `validate:"omitempty,gte=0"`
	Before   *time.Time
	After    *time.Time
	Search   string `validate:"max=200"`
	Started  *bool
	Where    []store.Predicate
	Order    string `validate:"omitempty,oneof=asc desc"`
	Count    int    `validate:"gte=1"`
	Page     string
	Format   string `validate:"oneof=json csv"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// badRequestError is returned for unusable query parameters.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// parseUpdatesParams reads and validates the query string.
func parseUpdatesParams(values url.Values, defaultCount, maxCount int) (updatesParams, error) {
	p := updatesParams{
		Search: values.Get("search"),
		Order:  strings.ToLower(values.Get("order")),
		Page:   values.Get("page"),
		Format: strings.ToLower(values.Get("format")),
		Count:  defaultCount,
	}
	if p.Format == "" {
		p.Format = FormatJSON
	}

	for _, v := range values["entity"] {
		for id := range strings.SplitSeq(v, ",") {
			p.Entities = append(p.Entities, strings.TrimSpace(id))
		}
	}

	var err error
	if p.Season, err = optionalInt(values, "season"); err != nil {
		return p, err
	}
	if p.Day, err = optionalInt(values, "day"); err != nil {
		return p, err
	}
	if p.Before, err = optionalTime(values, "before"); err != nil {
		return p, err
	}
	if p.After, err = optionalTime(values, "after"); err != nil {
		return p, err
	}
	if s := values.Get("started"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return p, badRequest("started: %q is not a boolean", s)
		}
		p.Started = &b
	}
	if s := values.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, badRequest("count: %q is not an integer", s)
		}
		p.Count = n
	}
	for _, w := range values["where"] {
		pred, err := parsePredicate(w)
		if err != nil {
			return p, err
		}
		p.Where = append(p.Where, pred)
	}

	if err := validate.Struct(p); err != nil {
		return p, badRequest("invalid parameters: %v", err)
	}
	if p.Count > maxCount {
		return p, badRequest("count: at most %d rows per page", maxCount)
	}
	return p, nil
}

// query converts the parameters into a store query for kind.
func (p updatesParams) query(kind model.EntityKind) (store.Query, error) {
	order, err := store.ParseOrder(p.Order)
	if err != nil {
		return store.Query{}, badRequest("%v", err)
	}

	q := store.Query{
		Kind:      kind,
		EntityIDs: p.Entities,
		Season:    p.Season,
		Day:       p.Day,
		After:     p.After,
		Before:    p.Before,
		Search:    p.Search,
		Where:     p.Where,
		Order:     order,
		Limit:     p.Count,
	}
	if p.Started != nil {
		q.Where = append(q.Where, store.Predicate{Path: "gameStart", Value: *p.Started})
	}
	if p.Page != "" {
		tok, err := store.ParsePageToken(p.Page)
		if err != nil {
			return store.Query{}, err
		}
		q.Page = &tok
	}
	return q, nil
}

// parsePredicate reads "path=value". The value is taken as JSON when it
// parses as a scalar and as a plain string otherwise.
func parsePredicate(s string) (store.Predicate, error) {
	path, raw, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return store.Predicate{}, badRequest("where: %q is not path=value", s)
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return store.Predicate{Path: path, Value: raw}, nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return store.Predicate{}, badRequest("where: %s must compare against a scalar", path)
	}
	return store.Predicate{Path: path, Value: v}, nil
}

func optionalInt(values url.Values, key string) (*int, error) {
	s := values.Get(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, badRequest("%s: %q is not an integer", key, s)
	}
	return &n, nil
}

func optionalTime(values url.Values, key string) (*time.Time, error) {
	s := values.Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, badRequest("%s: %q is not an RFC 3339 timestamp", key, s)
	}
	return &t, nil
}
