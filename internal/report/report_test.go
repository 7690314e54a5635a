package report

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/brensch/mrtstat/internal/mrt"
	"github.com/brensch/mrtstat/internal/mrt/mrttest"
	"github.com/brensch/mrtstat/internal/stats"
)

func readRows(t *testing.T, path string) []Row {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]Row, int(pr.GetNumRows()))
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestWriteSections(t *testing.T) {
	dir := t.TempDir()
	counts := stats.New()
	counts.Add([]mrt.Attribute{mrttest.Attr(mrt.AttrOrigin), mrttest.Attr(mrt.AttrASPath)})
	counts.Add([]mrt.Attribute{mrttest.Attr(mrt.AttrOrigin), mrttest.Attr(mrt.AttrASPath)})
	counts.Add([]mrt.Attribute{mrttest.Attr(mrt.AttrOrigin)})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	paths, err := Write(dir, "run-1", "update", counts, logger)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "update_groups_run-1.parquet"),
		filepath.Join(dir, "update_totals_run-1.parquet"),
	}, paths)

	groups := readRows(t, paths[0])
	require.Len(t, groups, 2)
	byName := map[string]Row{}
	for _, r := range groups {
		assert.Equal(t, "run-1", r.RunID)
		assert.Equal(t, "update", r.Kind)
		assert.Equal(t, SectionGroups, r.Section)
		byName[r.Name] = r
	}
	pair := byName[stats.GroupKey([]mrt.AttrType{mrt.AttrOrigin, mrt.AttrASPath})]
	assert.Equal(t, int64(2), pair.Count)
	assert.InDelta(t, 66.66667, pair.Percent, 0.001)

	totals := readRows(t, paths[1])
	assert.Len(t, totals, len(mrt.KnownAttrTypes))
}

func TestWriteEmptyCounts(t *testing.T) {
	dir := t.TempDir()
	paths, err := Write(dir, "r", "rib", stats.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Empty(t, readRows(t, paths[0]))
	for _, r := range readRows(t, paths[1]) {
		assert.Zero(t, r.Count)
		assert.Zero(t, r.Percent)
	}
}
