package extract

import (
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/roach88/sibr/internal/model"
)

// Fragment is one tagged sub-document of a capture root. A Fragment with an
// empty Kind is the unrecognized variant: it is reported, never stored.
type Fragment struct {
	Kind  model.EntityKind
	Path  string
	Value gjson.Result
}

// Recognized reports whether the fragment maps to a known entity kind.
func (f Fragment) Recognized() bool {
	return f.Kind != ""
}

// section routes one top-level (or nested) key of a capture root.
type section struct {
	kind   model.EntityKind
	many   bool               // value is an array of entities
	nested map[string]section // value is an object of further sections
}

// rootSections is the routing table for capture roots. Keys are matched
// exactly; anything not listed becomes an unrecognized fragment.
var rootSections = map[string]section{
	"game":  {kind: model.KindGame},
	"games": {nested: map[string]section{
		"schedule":         {kind: model.KindGame, many: true},
		"tomorrowSchedule": {kind: model.KindGame, many: true},
		"sim":              {kind: model.KindSim},
		"season":           {kind: model.KindSeason},
		"standings":        {kind: model.KindStandings},
	}},
	"leagues": {nested: map[string]section{
		"teams": {kind: model.KindTeam, many: true},
	}},
	"team":           {kind: model.KindTeam},
	"teams":          {kind: model.KindTeam, many: true},
	"player":         {kind: model.KindPlayer},
	"players":        {kind: model.KindPlayer, many: true},
	"temporal":       {kind: model.KindTemporal},
	"sim":            {kind: model.KindSim},
	"globalEvents":   {kind: model.KindGlobalEvents, many: true},
	"tributes":       {kind: model.KindTributes},
	"idols":          {kind: model.KindIdols},
	"offseasonSetup": {kind: model.KindOffseasonSetup},
}

// Decompose splits a parsed root object into tagged fragments, in document
// order.
func Decompose(root gjson.Result) []Fragment {
	var out []Fragment
	walk(root, "", rootSections, &out)
	return out
}

func walk(obj gjson.Result, prefix string, table map[string]section, out *[]Fragment) {
	obj.ForEach(func(key, value gjson.Result) bool {
		path := joinPath(prefix, key.String())
		sec, ok := table[key.String()]
		switch {
		case !ok:
			*out = append(*out, Fragment{Path: path, Value: value})
		case sec.nested != nil:
			if !value.IsObject() {
				*out = append(*out, Fragment{Path: path, Value: value})
				break
			}
			walk(value, path, sec.nested, out)
		case sec.many:
			split(sec.kind, path, value, out)
		default:
			*out = append(*out, Fragment{Kind: sec.kind, Path: path, Value: value})
		}
		return true
	})
}

// split emits one fragment per array element. A lone object is accepted as
// an array of one.
func split(kind model.EntityKind, path string, value gjson.Result, out *[]Fragment) {
	if !value.IsArray() {
		*out = append(*out, Fragment{Kind: kind, Path: path, Value: value})
		return
	}
	i := 0
	value.ForEach(func(_, elem gjson.Result) bool {
		*out = append(*out, Fragment{Kind: kind, Path: joinPath(path, strconv.Itoa(i)), Value: elem})
		i++
		return true
	})
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
