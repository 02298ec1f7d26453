package replay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sibr/internal/hasher"
	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

var (
	testSource = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	testEpoch  = time.Date(2020, 9, 1, 16, 0, 0, 0, time.UTC)
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// seedCaptures records n stream captures, each holding a single game whose
// content cycles through k distinct states.
func seedCaptures(t *testing.T, st *store.Store, n, k int) {
	t.Helper()
	caps := make([]model.Capture, n)
	for i := range n {
		doc := fmt.Sprintf(`{"value":{"games":{"schedule":[{"id":"G1","season":1,"day":2,"homeScore":%d}]}}}`, i%k)
		hash, canonical, err := hasher.Sum([]byte(doc))
		require.NoError(t, err)
		caps[i] = model.Capture{
			Stream:    model.StreamMain,
			Source:    testSource,
			Timestamp: testEpoch.Add(time.Duration(i) * time.Second),
			Hash:      hash,
			Data:      canonical,
		}
	}
	_, err := st.RecordCaptures(context.Background(), caps)
	require.NoError(t, err)
}

func drain(t *testing.T, seq func(func(Progress, error) bool)) []Progress {
	t.Helper()
	var out []Progress
	for p, err := range seq {
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func uniqueGames(t *testing.T, st *store.Store) int {
	t.Helper()
	n := 0
	for _, err := range st.Query(context.Background(), store.Query{Kind: model.KindGame}) {
		require.NoError(t, err)
		n++
	}
	return n
}

func TestReplayIndependentOfBatchSize(t *testing.T) {
	const captures, states = 40, 7

	for _, batch := range []int{1, 3, 7, 40, 100} {
		t.Run(fmt.Sprintf("batch=%d", batch), func(t *testing.T) {
			st := openStore(t)
			seedCaptures(t, st, captures, states)

			progress := drain(t, Run(context.Background(), st, Options{BatchSize: batch, ReadSize: 6}, nil))

			total, saved := 0, 0
			for _, p := range progress {
				assert.LessOrEqual(t, p.Total, batch)
				total += p.Total
				saved += p.Saved
			}
			assert.Equal(t, captures, total)
			assert.Equal(t, captures, saved)
			assert.Equal(t, states, uniqueGames(t, st))

			last := progress[len(progress)-1]
			assert.Equal(t, testEpoch.Add((captures-1)*time.Second), last.Through)
		})
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	st := openStore(t)
	seedCaptures(t, st, 12, 4)

	first := drain(t, Run(context.Background(), st, Options{BatchSize: 5}, nil))
	second := drain(t, Run(context.Background(), st, Options{BatchSize: 5}, nil))

	require.Len(t, second, len(first))
	for _, p := range second {
		assert.Zero(t, p.Saved, "nothing new on a second replay")
	}
	assert.Equal(t, 4, uniqueGames(t, st))
}

func TestReplayResumesFromThrough(t *testing.T) {
	st := openStore(t)
	seedCaptures(t, st, 20, 20)

	var through time.Time
	for p, err := range Run(context.Background(), st, Options{BatchSize: 4}, nil) {
		require.NoError(t, err)
		through = p.Through
		break
	}
	assert.Equal(t, testEpoch.Add(3*time.Second), through)
	assert.Equal(t, 4, uniqueGames(t, st))

	progress := drain(t, Run(context.Background(), st, Options{BatchSize: 4, From: through}, nil))

	saved := 0
	for _, p := range progress {
		saved += p.Saved
	}
	assert.Equal(t, 16, saved, "the capture at the resume point is already saved")
	assert.Equal(t, 20, uniqueGames(t, st))
}

func TestReplayEmptyStream(t *testing.T) {
	st := openStore(t)
	assert.Empty(t, drain(t, Run(context.Background(), st, Options{}, nil)))
}

func TestReplaySkipsMalformedCaptures(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	docs := []string{
		`{"value":{"games":{"sim":{"id":"thisidisstaticyo","day":1}}}}`,
		`[1,2,3]`,
		`{"value":{"games":{"sim":{"id":"thisidisstaticyo","day":2}}}}`,
	}
	caps := make([]model.Capture, len(docs))
	for i, doc := range docs {
		hash, canonical, err := hasher.Sum([]byte(doc))
		require.NoError(t, err)
		caps[i] = model.Capture{
			Stream: model.StreamMain, Source: testSource,
			Timestamp: testEpoch.Add(time.Duration(i) * time.Second),
			Hash:      hash, Data: canonical,
		}
	}
	_, err := st.RecordCaptures(ctx, caps)
	require.NoError(t, err)

	progress := drain(t, Run(ctx, st, Options{}, nil))
	require.Len(t, progress, 1)
	assert.Equal(t, 2, progress[0].Total)
	assert.Equal(t, 1, progress[0].Skipped)
	assert.Equal(t, testEpoch.Add(2*time.Second), progress[0].Through)
}

type failingStore struct {
	*store.Store
}

func (failingStore) AppendUpdates(context.Context, []model.EntityUpdate) (int, error) {
	return 0, errors.New("disk full")
}

func TestReplayStopsOnSaveError(t *testing.T) {
	st := openStore(t)
	seedCaptures(t, st, 10, 10)

	var errs []error
	for _, err := range Run(context.Background(), failingStore{st}, Options{BatchSize: 3}, nil) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "disk full")
}

func TestReplayHonorsCancellation(t *testing.T) {
	st := openStore(t)
	seedCaptures(t, st, 3, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range Run(ctx, st, Options{}, nil) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestReplayDuplicateEntityKeepsViewsBackedByProvenance(t *testing.T) {
	doc := `{"teams":[{"id":"T1","n":1}],"leagues":{"teams":[{"id":"T1","n":2}]}}`

	for _, batch := range []int{1, 100} {
		t.Run(fmt.Sprintf("batch=%d", batch), func(t *testing.T) {
			st := openStore(t)
			ctx := context.Background()
			hash, canonical, err := hasher.Sum([]byte(doc))
			require.NoError(t, err)
			_, err = st.RecordCaptures(ctx, []model.Capture{{
				Stream: model.StreamMain, Source: testSource, Timestamp: testEpoch, Hash: hash, Data: canonical,
			}})
			require.NoError(t, err)

			drain(t, Run(ctx, st, Options{BatchSize: batch}, nil))

			views := 0
			for v, err := range st.Query(ctx, store.Query{Kind: model.KindTeam}) {
				require.NoError(t, err)
				views++
				prov, err := st.Provenance(ctx, model.KindTeam, v.EntityID, v.Hash)
				require.NoError(t, err)
				assert.NotEmpty(t, prov, "view %s has no provenance", v.Hash)
			}
			assert.Equal(t, 1, views)
		})
	}
}
