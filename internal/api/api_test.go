package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sibr/internal/config"
	"github.com/roach88/sibr/internal/hasher"
	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

var (
	sourceA   = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	sourceB   = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	testEpoch = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:            "127.0.0.1:0",
		DefaultPageSize: 100,
		MaxPageSize:     500,
		ShutdownTimeout: 5 * time.Second,
	}
}

func at(n int) time.Time {
	return testEpoch.Add(time.Duration(n) * time.Second)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func update(t *testing.T, kind model.EntityKind, id string, source model.SourceID, ts time.Time, keys model.Keys, doc string) model.EntityUpdate {
	t.Helper()
	hash, canonical, err := hasher.Sum([]byte(doc))
	require.NoError(t, err)
	return model.EntityUpdate{
		Kind: kind, Source: source, Timestamp: ts, EntityID: id,
		Hash: hash, Keys: keys, Data: canonical,
	}
}

func seedTeams(t *testing.T, st *store.Store) {
	t.Helper()
	t1 := `{"id":"T1","fullName":"Hades Tigers","nickname":"Tigers","shame":true,"stadium":null}`
	t2 := `{"id":"T2","fullName":"Baltimore Crabs","nickname":"Crabs, Inc","slogan":"Pinch","tags":["a","b"]}`
	_, err := st.AppendUpdates(context.Background(), []model.EntityUpdate{
		update(t, model.KindTeam, "T1", sourceA, at(0), model.Keys{}, t1),
		update(t, model.KindTeam, "T1", sourceB, at(5), model.Keys{}, t1),
		update(t, model.KindTeam, "T2", sourceA, at(10), model.Keys{}, t2),
	})
	require.NoError(t, err)
}

func seedGames(t *testing.T, st *store.Store, n int) {
	t.Helper()
	updates := make([]model.EntityUpdate, n)
	for i := range n {
		season, day := 1+i%2, i/2
		doc := fmt.Sprintf(`{"id":"G%d","season":%d,"day":%d,"gameStart":%t,"lastUpdate":"Game %d, Tigers lead"}`,
			i, season, day, i%3 == 0, i)
		updates[i] = update(t, model.KindGame, fmt.Sprintf("G%d", i), sourceA, at(i),
			model.Keys{Season: model.IntPtr(season), Day: model.IntPtr(day)}, doc)
	}
	_, err := st.AppendUpdates(context.Background(), updates)
	require.NoError(t, err)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) UpdatesResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp UpdatesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func ids(resp UpdatesResponse) []string {
	out := make([]string, len(resp.Data))
	for i, u := range resp.Data {
		out[i] = u.EntityID
	}
	return out
}

func TestUpdatesPaginationFollowsNextPage(t *testing.T) {
	st := openStore(t)
	seedGames(t, st, 7)
	h := NewServer(st, testConfig(), nil).Handler()

	var seen []string
	target := "/v1/game/updates?count=3"
	pages := 0
	for {
		resp := decodePage(t, get(t, h, target))
		seen = append(seen, ids(resp)...)
		pages++
		if resp.NextPage == nil {
			break
		}
		target = "/v1/game/updates?count=3&page=" + url.QueryEscape(*resp.NextPage)
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"G0", "G1", "G2", "G3", "G4", "G5", "G6"}, seen)
}

func TestUpdatesDescending(t *testing.T) {
	st := openStore(t)
	seedGames(t, st, 4)
	h := NewServer(st, testConfig(), nil).Handler()

	resp := decodePage(t, get(t, h, "/v1/game/updates?order=desc"))
	assert.Equal(t, []string{"G3", "G2", "G1", "G0"}, ids(resp))
	assert.Nil(t, resp.NextPage)
}

func TestUpdatesFilters(t *testing.T) {
	st := openStore(t)
	seedGames(t, st, 8)
	_, err := st.RefreshSearchIndex(context.Background(), 0)
	require.NoError(t, err)
	h := NewServer(st, testConfig(), nil).Handler()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"season", "season=2", []string{"G1", "G3", "G5", "G7"}},
		{"season and day", "season=1&day=2", []string{"G4"}},
		{"entities", "entity=G2,G6&entity=G7", []string{"G2", "G6", "G7"}},
		{"after", "after=" + url.QueryEscape(at(6).Format(time.RFC3339)), []string{"G6", "G7"}},
		{"before", "before=" + url.QueryEscape(at(2).Format(time.RFC3339)), []string{"G0", "G1"}},
		{"started", "started=true", []string{"G0", "G3", "G6"}},
		{"where", "where=" + url.QueryEscape("day=3"), []string{"G6", "G7"}},
		{"search", "search=" + url.QueryEscape("game 5"), []string{"G5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decodePage(t, get(t, h, "/v1/game/updates?"+tt.query))
			assert.Equal(t, tt.want, ids(resp))
		})
	}
}

func TestUpdatesJSONShape(t *testing.T) {
	st := openStore(t)
	seedTeams(t, st)
	h := NewServer(st, testConfig(), nil).Handler()

	rec := get(t, h, "/v1/team/updates?entity=T1")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodePage(t, rec)
	require.Len(t, resp.Data, 1)
	u := resp.Data[0]
	assert.Equal(t, "T1", u.EntityID)
	assert.True(t, at(0).Equal(u.FirstSeen))
	assert.True(t, at(5).Equal(u.LastSeen))
	assert.JSONEq(t, `{"fullName":"Hades Tigers","id":"T1","nickname":"Tigers","shame":true,"stadium":null}`, string(u.Data))
}

func TestUpdatesCSV(t *testing.T) {
	st := openStore(t)
	seedTeams(t, st)
	h := NewServer(st, testConfig(), nil).Handler()

	rec := get(t, h, "/v1/team/updates?format=csv")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("X-Next-Page"))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "teams_csv", rec.Body.Bytes())
}

func TestUpdatesCSVNextPageHeader(t *testing.T) {
	st := openStore(t)
	seedTeams(t, st)
	h := NewServer(st, testConfig(), nil).Handler()

	rec := get(t, h, "/v1/team/updates?format=csv&count=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Next-Page"))
}

func TestWriteCSVEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, writeCSV(rec, nil))
	assert.Empty(t, rec.Body.String())
}

func TestUpdatesRejectsBadParameters(t *testing.T) {
	st := openStore(t)
	h := NewServer(st, testConfig(), nil).Handler()

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"unknown kind", "/v1/weather/updates", http.StatusNotFound, "unknown_kind"},
		{"zero count", "/v1/game/updates?count=0", http.StatusBadRequest, "bad_request"},
		{"count over max", "/v1/game/updates?count=501", http.StatusBadRequest, "bad_request"},
		{"non-numeric count", "/v1/game/updates?count=ten", http.StatusBadRequest, "bad_request"},
		{"bad order", "/v1/game/updates?order=sideways", http.StatusBadRequest, "bad_request"},
		{"bad format", "/v1/game/updates?format=xml", http.StatusBadRequest, "bad_request"},
		{"bad season", "/v1/game/updates?season=x", http.StatusBadRequest, "bad_request"},
		{"negative day", "/v1/game/updates?day=-1", http.StatusBadRequest, "bad_request"},
		{"bad time", "/v1/game/updates?after=yesterday", http.StatusBadRequest, "bad_request"},
		{"bad started", "/v1/game/updates?started=maybe", http.StatusBadRequest, "bad_request"},
		{"bad where", "/v1/game/updates?where=day", http.StatusBadRequest, "bad_request"},
		{"object where", "/v1/game/updates?where=" + url.QueryEscape(`a={"b":1}`), http.StatusBadRequest, "bad_request"},
		{"bad page", "/v1/game/updates?page=!!!", http.StatusBadRequest, "invalid_page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestLatest(t *testing.T) {
	st := openStore(t)
	seedTeams(t, st)
	h := NewServer(st, testConfig(), nil).Handler()

	rec := get(t, h, "/v1/team/latest?entity=T2")
	require.Equal(t, http.StatusOK, rec.Code)
	var u Update
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "T2", u.EntityID)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/team/latest").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/team/latest?entity=T9").Code)
}

func TestProvenance(t *testing.T) {
	st := openStore(t)
	seedTeams(t, st)
	h := NewServer(st, testConfig(), nil).Handler()

	hash := hasher.MustHash([]byte(`{"id":"T1","fullName":"Hades Tigers","nickname":"Tigers","shame":true,"stadium":null}`))
	rec := get(t, h, "/v1/team/provenance/"+string(hash)+"?entity=T1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ProvenanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, sourceA, resp.Data[0].Source)
	assert.Equal(t, sourceB, resp.Data[1].Source)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/team/provenance/"+string(hash)+"?entity=T2").Code)
}

func TestObject(t *testing.T) {
	st := openStore(t)
	seedTeams(t, st)
	h := NewServer(st, testConfig(), nil).Handler()

	doc := `{"id":"T1","fullName":"Hades Tigers","nickname":"Tigers","shame":true,"stadium":null}`
	rec := get(t, h, "/v1/objects/"+string(hasher.MustHash([]byte(doc))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, doc, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/objects/deadbeef").Code)
}

func TestStatsAndHealth(t *testing.T) {
	st := openStore(t)
	seedTeams(t, st)
	h := NewServer(st, testConfig(), nil).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	rec := get(t, h, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Objects)
	assert.Equal(t, 3, stats.Kinds[model.KindTeam].Updates)
	assert.Equal(t, 2, stats.Kinds[model.KindTeam].Unique)
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer(openStore(t), testConfig(), nil).Handler()
	get(t, h, "/healthz")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sibr_api_request_duration_seconds")
}

func TestRateLimit(t *testing.T) {
	st := openStore(t)
	cfg := testConfig()
	cfg.RateLimit = 2
	h := NewServer(st, cfg, nil).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/v1/stats").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/v1/stats").Code)

	rec := get(t, h, "/v1/stats")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error.Code)

	// health checks are outside the limited group
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
}

func TestCORSHeaders(t *testing.T) {
	st := openStore(t)
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://example.org"}
	h := NewServer(st, cfg, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Next-Page")

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := NewServer(openStore(t), testConfig(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
