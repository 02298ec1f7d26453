package extract

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sibr/internal/hasher"
	"github.com/roach88/sibr/internal/model"
)

var (
	testSource = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	testTime   = time.Date(2020, 9, 1, 16, 0, 0, 0, time.UTC)
)

func kinds(updates []model.EntityUpdate) []model.EntityKind {
	out := make([]model.EntityKind, len(updates))
	for i, u := range updates {
		out[i] = u.Kind
	}
	return out
}

func TestExtractSingleGame(t *testing.T) {
	res, err := Extract(testSource, testTime, []byte(`{"game": {"id": "G1", "state": "live"}}`))
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Empty(t, res.Warnings)

	u := res.Updates[0]
	assert.Equal(t, model.KindGame, u.Kind)
	assert.Equal(t, "G1", u.EntityID)
	assert.Equal(t, testSource, u.Source)
	assert.Equal(t, testTime, u.Timestamp)
	assert.Equal(t, hasher.MustHash([]byte(`{"id":"G1","state":"live"}`)), u.Hash)
	assert.Equal(t, `{"id":"G1","state":"live"}`, string(u.Data))
}

func TestExtractStreamRoot(t *testing.T) {
	raw := []byte(`{"value": {
		"games": {
			"sim": {"id": "thisidisstaticyo", "day": 3},
			"season": {"id": "S1", "seasonNumber": 11},
			"standings": {"id": "ST1", "wins": {}},
			"schedule": [
				{"id": "G1", "season": 11, "day": 3, "homeScore": 1},
				{"id": "G2", "season": 11, "day": 3, "homeScore": 0}
			],
			"tomorrowSchedule": [{"id": "G3", "season": 11, "day": 4}],
			"postseason": {}
		},
		"leagues": {
			"teams": [{"id": "T1", "fullName": "Hades Tigers"}],
			"stadiums": []
		},
		"temporal": {"doc": {"epoch": 1}},
		"fights": {}
	}}`)

	res, err := Extract(testSource, testTime, raw)
	require.NoError(t, err)

	assert.Equal(t, []model.EntityKind{
		model.KindSim, model.KindSeason, model.KindStandings,
		model.KindGame, model.KindGame, model.KindGame,
		model.KindTeam, model.KindTemporal,
	}, kinds(res.Updates))

	paths := make([]string, len(res.Warnings))
	for i, w := range res.Warnings {
		paths[i] = w.Path
	}
	assert.Equal(t, []string{"games.postseason", "leagues.stadiums", "fights"}, paths)

	g1 := res.Updates[3]
	require.NotNil(t, g1.Keys.Season)
	require.NotNil(t, g1.Keys.Day)
	assert.Equal(t, 11, *g1.Keys.Season)
	assert.Equal(t, 3, *g1.Keys.Day)

	sim := res.Updates[0]
	assert.Equal(t, "", sim.EntityID, "singleton kinds have no entity id")
	assert.Equal(t, model.Keys{}, sim.Keys)
}

func TestExtractHashesSubDocuments(t *testing.T) {
	first := []byte(`{"games": {"schedule": [{"id": "G1", "inning": 1}, {"id": "G2", "inning": 4}]}}`)
	second := []byte(`{"games": {"schedule": [{"id": "G1", "inning": 1}, {"id": "G2", "inning": 5}]}}`)

	a, err := Extract(testSource, testTime, first)
	require.NoError(t, err)
	b, err := Extract(testSource, testTime.Add(5*time.Second), second)
	require.NoError(t, err)

	require.Len(t, a.Updates, 2)
	require.Len(t, b.Updates, 2)
	assert.Equal(t, a.Updates[0].Hash, b.Updates[0].Hash, "unchanged entity keeps its hash")
	assert.NotEqual(t, a.Updates[1].Hash, b.Updates[1].Hash)
}

func TestExtractIsDeterministic(t *testing.T) {
	raw := []byte(`{"players": [{"id": "P1", "name": "Jaylen"}, {"_id": "P2", "name": "Nagomi"}]}`)

	a, err := Extract(testSource, testTime, raw)
	require.NoError(t, err)
	b, err := Extract(testSource, testTime, raw)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "P2", a.Updates[1].EntityID, "falls back to _id")
}

func TestExtractSkipsBadFragments(t *testing.T) {
	raw := []byte(`{
		"games": {"schedule": [{"id": "G1"}, {"state": "no id"}, 42]},
		"teams": "not a list",
		"mystery": {"id": "X"}
	}`)

	res, err := Extract(testSource, testTime, raw)
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "G1", res.Updates[0].EntityID)

	reasons := map[string]string{}
	for _, w := range res.Warnings {
		reasons[w.Path] = w.Reason
	}
	assert.Equal(t, map[string]string{
		"games.schedule.1": "missing entity id",
		"games.schedule.2": "expected object, got number",
		"teams":            "expected object, got string",
		"mystery":          "unrecognized section",
	}, reasons)
}

func TestExtractMalformedRoot(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"truncated", `{"game": {"id": "G1"`},
		{"array root", `[{"id": "G1"}]`},
		{"string root", `"hello"`},
		{"not json", `<html>502 Bad Gateway</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(testSource, testTime, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, IsMalformedCapture(err), "got %T: %v", err, err)
		})
	}
}

func TestExtractValueEnvelopeOnlyWhenAlone(t *testing.T) {
	// "value" next to other keys is an ordinary (unrecognized) section.
	res, err := Extract(testSource, testTime, []byte(`{"value": {"game": {"id": "G1"}}, "game": {"id": "G2"}}`))
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "G2", res.Updates[0].EntityID)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "value", res.Warnings[0].Path)
}

func TestExtractKind(t *testing.T) {
	t.Run("array of entities", func(t *testing.T) {
		res, err := ExtractKind(model.KindGlobalEvents, testSource, testTime,
			[]byte(`[{"id": "E1", "msg": "hello"}, {"id": "E2", "msg": "world"}]`))
		require.NoError(t, err)
		require.Len(t, res.Updates, 2)
		assert.Equal(t, "E2", res.Updates[1].EntityID)
	})

	t.Run("singleton object", func(t *testing.T) {
		res, err := ExtractKind(model.KindSim, testSource, testTime, []byte(`{"id": "thisidisstaticyo", "day": 9}`))
		require.NoError(t, err)
		require.Len(t, res.Updates, 1)
		assert.Equal(t, "", res.Updates[0].EntityID)
	})

	t.Run("singleton array", func(t *testing.T) {
		res, err := ExtractKind(model.KindTributes, testSource, testTime, []byte(`[{"playerId": "P1", "peanuts": 10}]`))
		require.NoError(t, err)
		require.Len(t, res.Updates, 1)
		assert.JSONEq(t, `[{"peanuts":10,"playerId":"P1"}]`, string(res.Updates[0].Data))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ExtractKind(model.KindSim, testSource, testTime, []byte(`nope`))
		assert.True(t, IsMalformedCapture(err))
	})
}

func TestWarningString(t *testing.T) {
	w := Warning{Path: "games.schedule.1", Kind: "game", EntityID: "G9", Reason: "bad"}
	assert.Equal(t, "games.schedule.1 (game G9): bad", w.String())
	assert.Equal(t, "fights: unrecognized section", Warning{Path: "fights", Reason: "unrecognized section"}.String())
}
