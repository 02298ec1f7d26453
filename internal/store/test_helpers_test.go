package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sibr/internal/hasher"
	"github.com/roach88/sibr/internal/model"
)

var (
	testSourceA = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	testSourceB = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	testEpoch   = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
)

// createTestStore opens a fresh database in a per-test temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// at returns testEpoch plus n seconds.
func at(n int) time.Time {
	return testEpoch.Add(time.Duration(n) * time.Second)
}

// makeUpdate hashes doc and builds an update for it.
func makeUpdate(t *testing.T, kind model.EntityKind, entityID string, source model.SourceID, ts time.Time, doc string) model.EntityUpdate {
	t.Helper()
	hash, canonical, err := hasher.Sum([]byte(doc))
	require.NoError(t, err)
	return model.EntityUpdate{
		Kind:      kind,
		Source:    source,
		Timestamp: ts,
		EntityID:  entityID,
		Hash:      hash,
		Data:      canonical,
	}
}

func makeCapture(t *testing.T, stream model.Stream, source model.SourceID, ts time.Time, doc string) model.Capture {
	t.Helper()
	hash, canonical, err := hasher.Sum([]byte(doc))
	require.NoError(t, err)
	return model.Capture{Stream: stream, Source: source, Timestamp: ts, Hash: hash, Data: canonical}
}

func collect(t *testing.T, st *Store, q Query) []model.UniqueView {
	t.Helper()
	out := []model.UniqueView{}
	for v, err := range st.Query(context.Background(), q) {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func countRows(t *testing.T, st *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, st.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
