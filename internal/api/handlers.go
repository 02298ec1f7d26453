package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

type handler struct {
	reader       Reader
	defaultCount int
	maxCount     int
	logger       *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.reader.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) object(w http.ResponseWriter, r *http.Request) {
	obj, err := h.reader.GetObject(r.Context(), model.Hash(chi.URLParam(r, "hash")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

func (h *handler) updates(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	params, err := parseUpdatesParams(r.URL.Query(), h.defaultCount, h.maxCount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := params.query(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.reader.QueryPage(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if params.Format == FormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if page.Next != nil {
			w.Header().Set("X-Next-Page", page.Next.Encode())
		}
		w.WriteHeader(http.StatusOK)
		if err := writeCSV(w, page.Rows); err != nil {
			h.logger.Warn("write csv", "kind", string(kind), "error", err)
		}
		return
	}
	writePage(w, page)
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	entity := r.URL.Query().Get("entity")
	if kind.HasEntityID() && entity == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "entity is required for "+string(kind))
		return
	}

	v, err := h.reader.Latest(r.Context(), kind, entity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUpdate(v))
}

func (h *handler) provenance(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	entity := r.URL.Query().Get("entity")
	hash := model.Hash(chi.URLParam(r, "hash"))

	updates, err := h.reader.Provenance(r.Context(), kind, entity, hash)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(updates) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no observations of "+string(hash))
		return
	}
	resp := ProvenanceResponse{Kind: kind, EntityID: entity, Hash: hash, Data: make([]Provenance, len(updates))}
	for i, u := range updates {
		resp.Data[i] = Provenance{Source: u.Source, Timestamp: u.Timestamp}
	}
	writeJSON(w, http.StatusOK, resp)
}

// kind resolves the {kind} URL parameter, answering 404 when unknown.
func (h *handler) kind(w http.ResponseWriter, r *http.Request) (model.EntityKind, bool) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_kind", err.Error())
		return "", false
	}
	return kind, true
}

// fail maps an error to a status code and writes it.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, "bad_request", bad.Error())
	case store.IsInvalidPageToken(err):
		writeError(w, http.StatusBadRequest, "invalid_page", err.Error())
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
