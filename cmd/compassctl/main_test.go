package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jwebster45206/compass-engine/internal/catalog"
	"github.com/jwebster45206/compass-engine/internal/queue"
	queuePkg "github.com/jwebster45206/compass-engine/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateBadges(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "courage.json", `[{"id":"courage-bronze","axis":"courage","threshold":3,"name":"Brave Start"}]`)
	other := writeFile(t, dir, "honesty.json", `{"id":"honesty-bronze","axis":"honesty","threshold":3,"name":"Truth Teller"}`)

	out, err := run(t, "validate-badges", good, other)
	require.NoError(t, err)
	assert.Contains(t, out, "Badge files are valid!")
}

func TestValidateBadges_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "unknown field",
			files: map[string]string{"courage.json": `{"id":"brave","axis":"courage","threshold":3,"name":"Brave","colour":"red"}`},
			want:  "unknown field",
		},
		{
			name:  "bad filename",
			files: map[string]string{"Courage-Badges.json": `{"id":"brave","axis":"courage","threshold":3,"name":"Brave"}`},
			want:  "snake_case",
		},
		{
			name: "duplicate across files",
			files: map[string]string{
				"a.json": `{"id":"brave","axis":"courage","threshold":3,"name":"Brave"}`,
				"b.json": `{"id":"brave","axis":"courage","threshold":5,"name":"Braver"}`,
			},
			want: "duplicate badge id",
		},
		{
			name:  "uppercase id",
			files: map[string]string{"wisdom.json": `{"id":"Sage","axis":"wisdom","threshold":3,"name":"Sage"}`},
			want:  "should be lowercase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := filepath.Join(dir, filepath.Base(t.Name()))
			require.NoError(t, os.MkdirAll(sub, 0o755))
			var paths []string
			for name, content := range tt.files {
				paths = append(paths, writeFile(t, sub, name, content))
			}

			_, err := run(t, append([]string{"validate-badges"}, paths...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnqueue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	t.Chdir(t.TempDir())
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	out, err := run(t, "enqueue", "finalize", "sess-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Enqueued finalize_session request")

	items, err := mr.List(queue.RequestsKey)
	require.NoError(t, err)
	require.Len(t, items, 1)
	req, err := queuePkg.FromJSON([]byte(items[0]))
	require.NoError(t, err)
	assert.Equal(t, queuePkg.RequestTypeFinalizeSession, req.Type)
	assert.Equal(t, "sess-1", req.SessionID)

	_, err = run(t, "enqueue", "chat", "sess-1")
	assert.Error(t, err)
}

func TestFinalizeInProcess(t *testing.T) {
	t.Chdir(t.TempDir())
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, catalog.BadgesDir), 0o755))
	writeFile(t, filepath.Join(dataDir, catalog.BadgesDir), "courage.json", `{"id":"brave","axis":"courage","threshold":3,"name":"Brave"}`)

	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "compass.db"))
	t.Setenv("DATA_DIR", dataDir)

	out, err := run(t, "finalize", "missing-session")
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "missing-session", result["session_id"])
	assert.Empty(t, result["awards"])

	out, err = run(t, "badges", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, `"badges": []`)
}

func TestStatus(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	t.Chdir(t.TempDir())
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("DATA_DIR", t.TempDir())

	out, err := run(t, "status")
	require.NoError(t, err)

	var status StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 0.0, status.Components["queue_depth"])

	mr.Close()
	_, err = run(t, "status")
	assert.Error(t, err)
}
