package analyser

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/mrtstat/internal/db"
	"github.com/brensch/mrtstat/internal/mrt"
	"github.com/brensch/mrtstat/internal/mrt/mrttest"
	"github.com/brensch/mrtstat/internal/stats"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.InitializeSchema(conn))
	return conn
}

func saveRun(t *testing.T, conn *sql.DB, runID string, groups ...[]mrt.AttrType) {
	t.Helper()
	ctx := context.Background()
	counts := stats.New()
	for _, g := range groups {
		attrs := make([]mrt.Attribute, len(g))
		for i, a := range g {
			attrs[i] = mrttest.Attr(a)
		}
		counts.Add(attrs)
	}
	require.NoError(t, db.StartRun(ctx, conn, runID, "broker"))
	require.NoError(t, db.SaveAttributeCounts(ctx, conn, runID, "update", counts))
	require.NoError(t, db.FinishRun(ctx, conn, runID, 1, db.RunComplete))
}

var (
	originOnly = []mrt.AttrType{mrt.AttrOrigin}
	withPath   = []mrt.AttrType{mrt.AttrOrigin, mrt.AttrASPath}
)

func TestCompareTwoRuns(t *testing.T) {
	conn := openDB(t)
	saveRun(t, conn, "first", originOnly, withPath)
	saveRun(t, conn, "second", withPath, withPath, withPath)

	cmp, err := Compare(context.Background(), conn, "update", 10)
	require.NoError(t, err)
	require.NotNil(t, cmp)
	assert.Equal(t, "second", cmp.LatestRun)
	assert.Equal(t, "first", cmp.PreviousRun)
	assert.Equal(t, []Change{
		{Name: "ORIGIN", Previous: 2, Latest: 3},
		{Name: "AS_PATH", Previous: 1, Latest: 3},
	}, cmp.Totals)

	require.Len(t, cmp.Groups, 2)
	assert.Equal(t, Change{Name: stats.GroupKey(withPath), Previous: 1, Latest: 3}, cmp.Groups[0])
	assert.Equal(t, Change{Name: stats.GroupKey(originOnly), Previous: 1, Latest: 0}, cmp.Groups[1])
}

func TestCompareSingleRun(t *testing.T) {
	conn := openDB(t)
	saveRun(t, conn, "only", originOnly)

	cmp, err := Compare(context.Background(), conn, "update", 10)
	require.NoError(t, err)
	require.NotNil(t, cmp)
	assert.Empty(t, cmp.PreviousRun)
	assert.Equal(t, []Change{{Name: "ORIGIN", Latest: 1}}, cmp.Totals)
}

func TestRunAnalysisOutput(t *testing.T) {
	conn := openDB(t)
	saveRun(t, conn, "first", originOnly)
	saveRun(t, conn, "second", originOnly, originOnly)

	var out bytes.Buffer
	require.NoError(t, RunAnalysis(context.Background(), conn, &out, slog.New(slog.NewTextHandler(io.Discard, nil))))
	s := out.String()
	assert.Contains(t, s, "=== update: second vs first ===")
	assert.Contains(t, s, "+100.00%")
	assert.Contains(t, s, "=== rib: no completed runs ===")
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, "new", percentChange(Change{Latest: 4}))
	assert.Equal(t, "-50.00%", percentChange(Change{Previous: 4, Latest: 2}))
}
