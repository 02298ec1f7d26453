// Package extract decomposes raw captured documents into typed entity
// updates.
//
// Extraction is pure: the same (source, timestamp, bytes) always yields the
// same updates, so live ingestion and replay of historical captures share one
// code path. Each entity is hashed over its own canonical sub-document, not
// the whole root, so two captures that share an unchanged entity dedup.
package extract

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/roach88/sibr/internal/hasher"
	"github.com/roach88/sibr/internal/model"
)

// Result holds the updates extracted from one capture and the fragments
// that were skipped.
type Result struct {
	Updates  []model.EntityUpdate
	Warnings []Warning
}

// Extract decomposes a capture root into one update per embedded entity.
//
// A root that is not a JSON object fails with MalformedCaptureError.
// Unrecognized or malformed fragments are skipped and reported as warnings.
// A root wrapped in a single {"value": {...}} envelope is unwrapped first.
func Extract(source model.SourceID, ts time.Time, raw []byte) (Result, error) {
	root, err := parseRoot(raw)
	if err != nil {
		return Result{}, err
	}
	if v := root.Get("value"); v.IsObject() && countKeys(root) == 1 {
		root = v
	}

	res := Result{Updates: []model.EntityUpdate{}}
	for _, frag := range Decompose(root) {
		res.add(source, ts, frag)
	}
	return res, nil
}

// ExtractKind treats a whole document as entities of one kind, the shape
// returned by single-purpose endpoints. For kinds with entity ids an array
// yields one update per element; singleton kinds store the document as is.
func ExtractKind(kind model.EntityKind, source model.SourceID, ts time.Time, raw []byte) (Result, error) {
	root, err := parseDocument(raw)
	if err != nil {
		return Result{}, err
	}

	var frags []Fragment
	if kind.HasEntityID() {
		split(kind, string(kind), root, &frags)
	} else {
		frags = []Fragment{{Kind: kind, Path: string(kind), Value: root}}
	}

	res := Result{Updates: []model.EntityUpdate{}}
	for _, frag := range frags {
		res.add(source, ts, frag)
	}
	return res, nil
}

func (r *Result) add(source model.SourceID, ts time.Time, frag Fragment) {
	if !frag.Recognized() {
		r.Warnings = append(r.Warnings, Warning{Path: frag.Path, Reason: "unrecognized section"})
		return
	}

	u, w := toUpdate(source, ts, frag)
	if w != nil {
		r.Warnings = append(r.Warnings, *w)
		return
	}
	r.Updates = append(r.Updates, u)
}

// toUpdate converts a recognized fragment. Returns a warning instead when
// the fragment cannot be stored.
func toUpdate(source model.SourceID, ts time.Time, frag Fragment) (model.EntityUpdate, *Warning) {
	warn := func(id, reason string) *Warning {
		return &Warning{Path: frag.Path, Kind: string(frag.Kind), EntityID: id, Reason: reason}
	}

	// Singleton documents may be arrays (tributes); entities must be objects.
	if !frag.Value.IsObject() && (frag.Kind.HasEntityID() || !frag.Value.IsArray()) {
		return model.EntityUpdate{}, warn("", "expected object, got "+describe(frag.Value))
	}

	var entityID string
	if frag.Kind.HasEntityID() {
		entityID = entityIDOf(frag.Value)
		if entityID == "" {
			return model.EntityUpdate{}, warn("", "missing entity id")
		}
	}

	hash, canonical, err := hasher.Sum([]byte(frag.Value.Raw))
	if err != nil {
		return model.EntityUpdate{}, warn(entityID, err.Error())
	}

	return model.EntityUpdate{
		Kind:      frag.Kind,
		Source:    source,
		Timestamp: ts.UTC(),
		EntityID:  entityID,
		Hash:      hash,
		Keys:      keysOf(frag.Kind, frag.Value),
		Data:      canonical,
	}, nil
}

func entityIDOf(v gjson.Result) string {
	for _, field := range []string{"id", "_id"} {
		if id := v.Get(field); id.Type == gjson.String && id.Str != "" {
			return id.Str
		}
	}
	return ""
}

// keysOf returns the kind-specific key fields. Only games are keyed by
// season and day.
func keysOf(kind model.EntityKind, v gjson.Result) model.Keys {
	if kind != model.KindGame {
		return model.Keys{}
	}
	var k model.Keys
	if s := v.Get("season"); s.Type == gjson.Number {
		k.Season = model.IntPtr(int(s.Int()))
	}
	if d := v.Get("day"); d.Type == gjson.Number {
		k.Day = model.IntPtr(int(d.Int()))
	}
	return k
}

func parseDocument(raw []byte) (gjson.Result, error) {
	if len(raw) == 0 {
		return gjson.Result{}, &MalformedCaptureError{Reason: "empty document"}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &MalformedCaptureError{Reason: "invalid JSON"}
	}
	return gjson.ParseBytes(raw), nil
}

func parseRoot(raw []byte) (gjson.Result, error) {
	root, err := parseDocument(raw)
	if err != nil {
		return root, err
	}
	if !root.IsObject() {
		return gjson.Result{}, &MalformedCaptureError{Reason: "root is " + describe(root) + ", not an object"}
	}
	return root, nil
}

func countKeys(obj gjson.Result) int {
	n := 0
	obj.ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})
	return n
}

func describe(v gjson.Result) string {
	switch {
	case v.IsObject():
		return "object"
	case v.IsArray():
		return "array"
	default:
		return strings.ToLower(v.Type.String())
	}
}
