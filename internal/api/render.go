package api

import (
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

// Update is the JSON shape of one merged row.
type Update struct {
	EntityID  string          `json:"id,omitempty"`
	Hash      model.Hash      `json:"hash"`
	FirstSeen time.Time       `json:"firstSeen"`
	LastSeen  time.Time       `json:"lastSeen"`
	Season    *int            `json:"season,omitempty"`
	Day       *int            `json:"day,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func newUpdate(v model.UniqueView) Update {
	return Update{
		EntityID:  v.EntityID,
		Hash:      v.Hash,
		FirstSeen: v.FirstSeen,
		LastSeen:  v.LastSeen,
		Season:    v.Keys.Season,
		Day:       v.Keys.Day,
		Data:      json.RawMessage(v.Data),
	}
}

// UpdatesResponse is one page of the updates endpoint.
type UpdatesResponse struct {
	Data     []Update `json:"data"`
	NextPage *string  `json:"nextPage"`
}

// Provenance is one observation of a piece of content.
type Provenance struct {
	Source    model.SourceID `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// ProvenanceResponse lists every observation of one hash.
type ProvenanceResponse struct {
	Kind     model.EntityKind `json:"kind"`
	EntityID string           `json:"id,omitempty"`
	Hash     model.Hash       `json:"hash"`
	Data     []Provenance     `json:"data"`
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func writePage(w http.ResponseWriter, page store.Page) {
	resp := UpdatesResponse{Data: make([]Update, len(page.Rows))}
	for i, v := range page.Rows {
		resp.Data[i] = newUpdate(v)
	}
	if page.Next != nil {
		tok := page.Next.Encode()
		resp.NextPage = &tok
	}
	writeJSON(w, http.StatusOK, resp)
}

// fixedColumns lead every CSV row.
var fixedColumns = []string{"entityId", "hash", "firstSeen", "lastSeen"}

// writeCSV renders rows as CSV. The data columns are the top-level fields
// of the first row's document in document order; later rows leave fields
// they lack blank and drop fields the first row did not have.
func writeCSV(w io.Writer, rows []model.UniqueView) error {
	cw := csv.NewWriter(w)
	if len(rows) == 0 {
		cw.Flush()
		return cw.Error()
	}

	fields := topLevelFields(rows[0].Data)
	header := append(append([]string{}, fixedColumns...), fields...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, v := range rows {
		record[0] = v.EntityID
		record[1] = string(v.Hash)
		record[2] = v.FirstSeen.UTC().Format(time.RFC3339Nano)
		record[3] = v.LastSeen.UTC().Format(time.RFC3339Nano)

		values := map[string]gjson.Result{}
		gjson.ParseBytes(v.Data).ForEach(func(key, value gjson.Result) bool {
			values[key.String()] = value
			return true
		})
		for i, f := range fields {
			record[len(fixedColumns)+i] = csvValue(values[f])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func topLevelFields(data []byte) []string {
	var fields []string
	gjson.ParseBytes(data).ForEach(func(key, _ gjson.Result) bool {
		fields = append(fields, key.String())
		return true
	})
	return fields
}

func csvValue(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return r.Str
	default:
		return r.Raw
	}
}
