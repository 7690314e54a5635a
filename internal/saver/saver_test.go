package saver

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/mrtstat/internal/db"
)

func TestSaveTablesToParquet(t *testing.T) {
	ctx := context.Background()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.InitializeSchema(conn))
	require.NoError(t, db.StartRun(ctx, conn, "r1", "broker"))

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := SaveTablesToParquet(ctx, conn, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	for _, table := range []string{"attr_group_counts", "attr_totals", "runs", "source_event_log"} {
		assert.Contains(t, paths, filepath.Join(dir, table+".parquet"))
		assert.FileExists(t, filepath.Join(dir, table+".parquet"))
	}

	var n int
	runs := filepath.ToSlash(filepath.Join(dir, "runs.parquet"))
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM read_parquet('`+runs+`')`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSaveEmptyDatabase(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	paths, err := SaveTablesToParquet(context.Background(), conn, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Empty(t, paths)
}
