package model

import "fmt"

// EntityKind tags the sub-schema an EntityUpdate was extracted from.
type EntityKind string

const (
	KindGame           EntityKind = "game"
	KindTeam           EntityKind = "team"
	KindPlayer         EntityKind = "player"
	KindSim            EntityKind = "sim"
	KindSeason         EntityKind = "season"
	KindStandings      EntityKind = "standings"
	KindTemporal       EntityKind = "temporal"
	KindGlobalEvents   EntityKind = "globalevents"
	KindTributes       EntityKind = "tributes"
	KindIdols          EntityKind = "idols"
	KindOffseasonSetup EntityKind = "offseasonsetup"
)

// AllKinds lists every entity kind in a stable order.
var AllKinds = []EntityKind{
	KindGame,
	KindTeam,
	KindPlayer,
	KindSim,
	KindSeason,
	KindStandings,
	KindTemporal,
	KindGlobalEvents,
	KindTributes,
	KindIdols,
	KindOffseasonSetup,
}

// ParseKind validates a kind name.
func ParseKind(s string) (EntityKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// HasEntityID reports whether a kind has many instances, each with its own id.
// Singleton kinds (sim, temporal, tributes, ...) use an empty entity id.
func (k EntityKind) HasEntityID() bool {
	switch k {
	case KindGame, KindTeam, KindPlayer, KindGlobalEvents:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k EntityKind) String() string {
	return string(k)
}

// Stream names a logical stream of raw captures (e.g. "stream", "hourly").
type Stream string

// StreamMain is the live event stream capture.
const StreamMain Stream = "stream"
