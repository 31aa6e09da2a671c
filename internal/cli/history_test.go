package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/abacus/internal/abacus/service"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store/memory"
	"github.com/BrandonDHaskell/abacus/internal/abacus/types"
)

// seededDB writes two calculations through the repl into a fresh database.
func seededDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abacus.db")
	_, err := execute(t, "5+3=\n25+2=\n", "repl", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)
	return path
}

func listJSON(t *testing.T, path string) types.HistoryResponse {
	t.Helper()
	out, err := execute(t, "", "history", "list", "--backend", "sqlite", "--db", path, "--format", "json")
	require.NoError(t, err)

	var resp types.HistoryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp
}

func TestHistoryList_SQLite(t *testing.T) {
	path := seededDB(t)

	resp := listJSON(t, path)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "25 + 2", resp.Records[0].Expression)
	assert.Equal(t, "27", resp.Records[0].Result)
	assert.Equal(t, "5 + 3", resp.Records[1].Expression)

	out, err := execute(t, "", "history", "list", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "  25 + 2 = 27"), lines[0])
}

func TestHistoryList_Empty(t *testing.T) {
	out, err := execute(t, "", "history", "list", "--backend", "memory")
	require.NoError(t, err)
	assert.Equal(t, "(no history)\n", out)
}

func TestHistoryClear_AsksFirst(t *testing.T) {
	path := seededDB(t)

	out, err := execute(t, "n\n", "history", "clear", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Delete all history? [y/N]: ")
	assert.Contains(t, out, "Aborted")
	assert.Len(t, listJSON(t, path).Records, 2)

	out, err = execute(t, "", "history", "clear", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted", "no answer means no")

	out, err = execute(t, "yes\n", "history", "clear", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "History cleared.")
	assert.Empty(t, listJSON(t, path).Records)
}

func TestHistoryClear_Yes(t *testing.T) {
	path := seededDB(t)

	out, err := execute(t, "", "history", "clear", "--yes", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "[y/N]")
	assert.Empty(t, listJSON(t, path).Records)
}

func TestHistoryExport_YAML(t *testing.T) {
	path := seededDB(t)

	out, err := execute(t, "", "history", "export", "--format", "yaml", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)

	var doc exportDocument
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 2, doc.Count)
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "25 + 2", doc.Records[0].Expression)
	assert.Equal(t, "27", doc.Records[0].Result)
	assert.False(t, doc.Records[0].CreatedAt.IsZero())
}

func TestHistoryExport_JSONToFile(t *testing.T) {
	path := seededDB(t)
	dest := filepath.Join(t.TempDir(), "history.json")

	_, err := execute(t, "", "history", "export", "--out", dest, "--backend", "sqlite", "--db", path)
	require.NoError(t, err)

	out, err := execute(t, "", "history", "export", "--backend", "sqlite", "--db", path)
	require.NoError(t, err)

	var doc exportDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 2, doc.Count)
	assert.FileExists(t, dest)
}

func TestHistoryExport_BadFormat(t *testing.T) {
	_, err := execute(t, "", "history", "export", "--format", "csv", "--backend", "memory")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWriteExport_Fields(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	recs := []store.Record{{ID: "7", Expression: "9 / 3", Result: "3", CreatedAt: at, Seq: 7}}

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "yaml", recs, at))
	out := buf.String()
	assert.Contains(t, out, "count: 1")
	assert.Contains(t, out, "expression: 9 / 3")
	assert.Contains(t, out, `result: "3"`)
}

func TestWatchHistory_PrintsEverySnapshot(t *testing.T) {
	history := memory.New()
	defer history.Close()
	svc := service.NewHistoryService(history, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- watchHistory(ctx, svc, out, &bytes.Buffer{}, "text", 0) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "-- 0 records --") }, 2*time.Second, 5*time.Millisecond)

	_, err := history.Append(context.Background(), store.NewRecord{Expression: "2 * 3", Result: "6"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "-- 1 records --") }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "2 * 3 = 6")

	cancel()
	require.NoError(t, <-done)
}
