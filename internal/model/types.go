package model

import (
	"encoding/json"
	"time"
)

// Hash is a lowercase hex content digest (see internal/hasher).
type Hash string

// Object is an immutable, content-addressed payload.
// Invariant: equal Hash implies bit-identical Data.
type Object struct {
	Hash Hash            `json:"hash"`
	Data json.RawMessage `json:"data"`
}

// Keys holds the kind-specific key fields of an update.
// Only games carry Season/Day today; nil means "not applicable".
type Keys struct {
	Season *int `json:"season,omitempty"`
	Day    *int `json:"day,omitempty"`
}

// EntityUpdate records that Source observed Entity with content Hash at Timestamp.
// At most one row exists per (Kind, Source, Timestamp, EntityID).
type EntityUpdate struct {
	Kind      EntityKind      `json:"kind"`
	Source    SourceID        `json:"source_id"`
	Timestamp time.Time       `json:"timestamp"`
	EntityID  string          `json:"entity_id"`
	Hash      Hash            `json:"hash"`
	Keys      Keys            `json:"keys"`
	Data      json.RawMessage `json:"data"` // canonical bytes; written to the object store
}

// Object returns the content half of the update.
func (u EntityUpdate) Object() Object {
	return Object{Hash: u.Hash, Data: u.Data}
}

// UniqueView is the merged one-row-per-content projection of an entity's history.
type UniqueView struct {
	Kind       EntityKind      `json:"kind"`
	EntityID   string          `json:"entity_id"`
	Hash       Hash            `json:"hash"`
	FirstSeen  time.Time       `json:"first_seen"`
	LastSeen   time.Time       `json:"last_seen"`
	Keys       Keys            `json:"keys"`
	Data       json.RawMessage `json:"data"`
	SearchText *string         `json:"-"` // nil until the search index refresh has run
}

// Capture is one raw document captured from a stream, kept for replay.
type Capture struct {
	Stream    Stream          `json:"stream"`
	Source    SourceID        `json:"source_id"`
	Timestamp time.Time       `json:"timestamp"`
	Hash      Hash            `json:"hash"`
	Data      json.RawMessage `json:"data"`
}

// Object returns the content half of the capture.
func (c Capture) Object() Object {
	return Object{Hash: c.Hash, Data: c.Data}
}

// IntPtr is a small helper for building Keys.
func IntPtr(v int) *int {
	return &v
}
