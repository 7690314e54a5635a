package db

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/mrtstat/internal/mrt"
	"github.com/brensch/mrtstat/internal/mrt/mrttest"
	"github.com/brensch/mrtstat/internal/stats"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, InitializeSchema(conn))
	return conn
}

func TestInitializeSchemaTwice(t *testing.T) {
	conn := openTestDB(t)
	assert.NoError(t, InitializeSchema(conn))
}

func TestLogAndDisplaySourceHistory(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)

	require.NoError(t, LogSourceEvent(ctx, conn, SourceEvent{
		RunID: "r1", URL: "http://x/a.gz", Kind: "update", Event: EventFetchOK,
		Bytes: 1024, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, LogSourceEvent(ctx, conn, SourceEvent{
		RunID: "r1", URL: "http://x/a.gz", Kind: "update", Event: EventDecodeOK,
		Records: 10, Errors: 2,
	}))
	require.NoError(t, LogSourceEvent(ctx, conn, SourceEvent{
		RunID: "r1", URL: "http://x/b.bz2", Kind: "rib", Event: EventFetchError,
		Message: "status 404",
	}))

	n, err := CountEvents(ctx, conn, "r1", EventFetchOK)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var buf bytes.Buffer
	require.NoError(t, DisplaySourceHistory(ctx, conn, &buf, "", "", 10))
	out := buf.String()
	assert.Contains(t, out, "http://x/b.bz2")
	assert.Contains(t, out, "status 404")
	assert.Contains(t, out, "(records: 10, errors: 2)")
	assert.Contains(t, out, "1500")
	assert.Contains(t, out, "Displayed 3 records.")

	buf.Reset()
	require.NoError(t, DisplaySourceHistory(ctx, conn, &buf, "rib", EventFetchError, 10))
	assert.Contains(t, buf.String(), "Displayed 1 records.")
	assert.NotContains(t, buf.String(), "a.gz")
}

func TestSaveAndLoadCounts(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)

	counts := stats.New()
	counts.Add([]mrt.Attribute{mrttest.Attr(mrt.AttrOrigin), mrttest.Attr(mrt.AttrASPath)})
	counts.Add([]mrt.Attribute{mrttest.Attr(mrt.AttrOrigin)})

	require.NoError(t, StartRun(ctx, conn, "old", "broker"))
	require.NoError(t, SaveAttributeCounts(ctx, conn, "old", "update", stats.New()))
	require.NoError(t, FinishRun(ctx, conn, "old", 0, RunComplete))

	require.NoError(t, StartRun(ctx, conn, "new", "broker"))
	require.NoError(t, SaveAttributeCounts(ctx, conn, "new", "update", counts))
	require.NoError(t, FinishRun(ctx, conn, "new", 3, RunComplete))

	require.NoError(t, StartRun(ctx, conn, "broken", "broker"))
	require.NoError(t, FinishRun(ctx, conn, "broken", 0, RunFailed))

	totals, err := LoadTotals(ctx, conn, "new", "update")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals[mrt.AttrOrigin.String()])
	assert.Equal(t, int64(1), totals[mrt.AttrASPath.String()])
	assert.Len(t, totals, len(mrt.KnownAttrTypes))

	var groups int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM attr_group_counts WHERE run_id = 'new'`).Scan(&groups))
	assert.Equal(t, 2, groups)

	runs, err := RecentRuns(ctx, conn, "update", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"new", "old"}, runs)

	runs, err = RecentRuns(ctx, conn, "rib", 5)
	require.NoError(t, err)
	assert.Empty(t, runs)

	latest, err := LatestTotals(ctx, conn, "update", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "new", latest[0].RunID)
	assert.Equal(t, int64(2), latest[0].Totals[mrt.AttrOrigin.String()])
}
