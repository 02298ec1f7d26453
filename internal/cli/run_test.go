package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const captureLog = `{"timestamp":"2020-09-01T16:00:00Z","data":{"value":{"games":{"schedule":[{"id":"G1","season":1,"day":2,"lastUpdate":"Tigers lead"}]}}}}
{"timestamp":"2020-09-01T16:00:05Z","data":{"value":{"games":{"schedule":[{"id":"G1","season":1,"day":2,"lastUpdate":"Tigers win"}]}}}}
{"timestamp":"2020-09-01T16:00:10Z","data":{"value":{"games":{"schedule":[{"id":"G1","season":1,"day":2,"lastUpdate":"Tigers win"}]}}}}
`

func TestIngestRequiresSource(t *testing.T) {
	args := append([]string{"ingest"}, writeConfig(t, "")...)
	_, _, err := execute(t, context.Background(), args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestIngestNoWorkers(t *testing.T) {
	args := append([]string{"ingest"}, writeConfig(t, "source: iliana-s3\nworkers: []\nsearch:\n  enabled: false\n")...)
	_, _, err := execute(t, context.Background(), args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no workers enabled")
}

func TestServeStopsWithContext(t *testing.T) {
	args := append([]string{"serve"}, writeConfig(t, "")...)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		_, _, err := execute(t, ctx, args...)
		errChan <- err
	}()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after context deadline")
	}
}

func TestImportReplayStats(t *testing.T) {
	common := writeConfig(t, "")
	logPath := filepath.Join(t.TempDir(), "captures.jsonl")
	require.NoError(t, os.WriteFile(logPath, []byte(captureLog), 0o644))
	ctx := context.Background()

	out, _, err := execute(t, ctx, append([]string{"import", "--source", "iliana-s3", logPath}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "3 new captures")

	out, errOut, err := execute(t, ctx, append([]string{"replay", "--batch", "2"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "saved 3/3 updates in 2 batches")
	assert.Equal(t, 2, strings.Count(errOut, "@ 2020-09-01T16:00:"))

	out, _, err = execute(t, ctx, append([]string{"replay", "--format", "json"}, common...)...)
	require.NoError(t, err)
	var replayed struct {
		Status string        `json:"status"`
		Data   ReplaySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &replayed))
	assert.Equal(t, "ok", replayed.Status)
	assert.Equal(t, 3, replayed.Data.Total)
	assert.Zero(t, replayed.Data.Saved, "second replay saves nothing new")

	out, _, err = execute(t, ctx, append([]string{"refresh-index"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 rows")

	out, _, err = execute(t, ctx, append([]string{"stats"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "objects: ")
	assert.Contains(t, out, "captures[stream]: 3")
	assert.Regexp(t, `game\s+3\s+2\s+0`, out)
}

func TestImportWithExtract(t *testing.T) {
	common := writeConfig(t, "")
	logPath := filepath.Join(t.TempDir(), "captures.jsonl")
	require.NoError(t, os.WriteFile(logPath, []byte(captureLog), 0o644))

	out, _, err := execute(t, context.Background(),
		append([]string{"import", "--source", "iliana-s3", "--extract", "--format", "json", logPath}, common...)...)
	require.NoError(t, err)

	var resp struct {
		Data ImportSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Saved)
	assert.Equal(t, "e007e189-0f89-4965-bc6a-3d8d4f1cb8fb", resp.Data.Source.String())
}

func TestImportRejectsBadInput(t *testing.T) {
	common := writeConfig(t, "")
	ctx := context.Background()

	_, _, err := execute(t, ctx, append([]string{"import", "some/path"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	_, _, err = execute(t, ctx, append([]string{"import", "--source", "nobody", "some/path"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --source")

	_, _, err = execute(t, ctx, append([]string{"import", "--source", "iliana-s3", "/does/not/exist"}, common...)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayRejectsBadFrom(t *testing.T) {
	_, _, err := execute(t, context.Background(),
		append([]string{"replay", "--from", "yesterday"}, writeConfig(t, "")...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --from")
}

func TestConfigCommand(t *testing.T) {
	common := writeConfig(t, "source: iliana-s3\n")

	out, _, err := execute(t, context.Background(), append([]string{"config"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "source: iliana-s3")
	assert.Contains(t, out, "addr: 127.0.0.1:0")
	assert.Contains(t, out, "interval: 5s")
}
