package stats

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/brensch/mrtstat/internal/mrt"
	"github.com/brensch/mrtstat/internal/mrt/mrttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, raw []byte) []*mrt.Record {
	t.Helper()
	r := bytes.NewReader(raw)
	var out []*mrt.Record
	for r.Len() > 0 {
		rec, err := mrt.Decode(r)
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

var (
	origin = mrttest.Attr(mrt.AttrOrigin, 0)
	asPath = mrttest.Attr(mrt.AttrASPath)
	comms  = mrttest.Attr(mrt.AttrCommunities, 0, 0, 0, 1)
)

func TestNewSeedsKnownTotals(t *testing.T) {
	c := New()
	assert.Len(t, c.Totals, 31)
	assert.Empty(t, c.Groups)
	assert.Zero(t, c.GroupTotal())
}

func TestCountRecordKinds(t *testing.T) {
	recs := decodeAll(t, mrttest.Stream(
		mrttest.PeerIndexTable(0, 1),
		mrttest.RIB(0, 0, []mrt.Attribute{asPath, origin}, []mrt.Attribute{origin}),
		mrttest.TableDump(0, origin, comms),
		mrttest.Update(0, comms, origin, asPath),
		mrttest.StateChange(0),
		mrttest.Keepalive(0),
	))
	c := New()
	for _, rec := range recs {
		c.CountRecord(rec)
	}

	assert.Equal(t, uint64(4), c.GroupTotal())
	assert.Equal(t, map[string]uint64{
		"[ORIGIN, AS_PATH]":              1,
		"[ORIGIN]":                       1,
		"[ORIGIN, COMMUNITIES]":          1,
		"[ORIGIN, AS_PATH, COMMUNITIES]": 1,
	}, c.Groups)
	assert.Equal(t, uint64(4), c.Totals[mrt.AttrOrigin])
	assert.Equal(t, uint64(2), c.Totals[mrt.AttrASPath])
	assert.Equal(t, uint64(2), c.Totals[mrt.AttrCommunities])
	assert.Zero(t, c.Totals[mrt.AttrNextHop])
}

func TestAddDeduplicatesAndTracksUnknown(t *testing.T) {
	c := New()
	c.Add([]mrt.Attribute{origin, origin, mrttest.Attr(200)})

	assert.Equal(t, uint64(1), c.Groups["[ORIGIN, UNKNOWN(200)]"])
	assert.Equal(t, uint64(1), c.Totals[mrt.AttrOrigin])
	assert.Equal(t, uint64(1), c.Totals[200])

	c.Add(nil)
	assert.Equal(t, uint64(1), c.Groups["[]"])
}

func randomCounts(rng *rand.Rand) *AttributeCounts {
	c := New()
	for i := 0; i < rng.Intn(20); i++ {
		var attrs []mrt.Attribute
		for _, t := range mrt.KnownAttrTypes[:8] {
			if rng.Intn(2) == 0 {
				attrs = append(attrs, mrttest.Attr(t))
			}
		}
		c.Add(attrs)
	}
	return c
}

func clone(c *AttributeCounts) *AttributeCounts {
	return New().Merge(c)
}

func TestMergeIsCommutativeAndAssociative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		a, b, c := randomCounts(rng), randomCounts(rng), randomCounts(rng)

		ab := clone(a).Merge(b)
		ba := clone(b).Merge(a)
		assert.Equal(t, ab, ba)

		left := clone(a).Merge(b).Merge(c)
		right := clone(a).Merge(clone(b).Merge(c))
		assert.Equal(t, left, right)
	}
}

func TestMergeOrderIndependentOverPartitions(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	parts := make([]*AttributeCounts, 12)
	for i := range parts {
		parts[i] = randomCounts(rng)
	}

	want := New()
	for _, p := range parts {
		want.Merge(p)
	}
	for round := 0; round < 10; round++ {
		got := New()
		for _, i := range rng.Perm(len(parts)) {
			got.Merge(parts[i])
		}
		assert.Equal(t, want, got)
	}

	assert.Equal(t, want, clone(want).Merge(New()), "empty counts are the identity")
	assert.Equal(t, want, clone(want).Merge(nil))
}

func TestWriteReport(t *testing.T) {
	c := New()
	c.Add([]mrt.Attribute{origin, asPath})
	c.Add([]mrt.Attribute{origin, asPath})
	c.Add([]mrt.Attribute{origin})
	c.Add([]mrt.Attribute{origin, asPath})

	var buf bytes.Buffer
	require.NoError(t, c.WriteReport(&buf))
	lines := strings.Split(buf.String(), "\n")

	require.GreaterOrEqual(t, len(lines), 8)
	assert.Equal(t, "Attribute Group Counts", lines[0])
	assert.Equal(t, "COUNT         PERCENT NAME", lines[1])
	assert.Equal(t, "1           25.00000% [ORIGIN]", lines[2])
	assert.Equal(t, "3           75.00000% [ORIGIN, AS_PATH]", lines[3])
	assert.Equal(t, "", lines[4])
	assert.Equal(t, "Total Attribute Counts", lines[5])

	report := buf.String()
	assert.Contains(t, report, "4          100.00000% ORIGIN\n")
	assert.Contains(t, report, "3           75.00000% AS_PATH\n")
	assert.Contains(t, report, "0            0.00000% NEXT_HOP\n")
	assert.True(t, strings.Index(report, "NEXT_HOP") < strings.Index(report, "% AS_PATH\n"), "totals sorted ascending")
}

func TestReportOnEmptyCounts(t *testing.T) {
	out := New().String()
	assert.Contains(t, out, "0            0.00000% ORIGIN")
}
