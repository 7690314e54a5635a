// Package stats accumulates which BGP path attributes appear together.
package stats

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/brensch/mrtstat/internal/mrt"
)

// AttributeCounts counts attribute groups (the sorted set of attribute types
// on one route) and individual attribute occurrences. The zero value is not
// usable; call New.
//
// Merging is associative and commutative, so per-worker accumulators can be
// combined in any order.
type AttributeCounts struct {
	Groups map[string]uint64
	Totals map[mrt.AttrType]uint64
}

// New returns empty counts with every known attribute type present in Totals.
func New() *AttributeCounts {
	c := &AttributeCounts{
		Groups: make(map[string]uint64),
		Totals: make(map[mrt.AttrType]uint64, len(mrt.KnownAttrTypes)),
	}
	for _, t := range mrt.KnownAttrTypes {
		c.Totals[t] = 0
	}
	return c
}

// CountRecord adds every route carried by rec.
func (c *AttributeCounts) CountRecord(rec *mrt.Record) {
	for _, attrs := range rec.Attributes() {
		c.Add(attrs)
	}
}

// Add counts one route's attributes.
func (c *AttributeCounts) Add(attrs []mrt.Attribute) {
	types := make([]mrt.AttrType, 0, len(attrs))
	for _, a := range attrs {
		types = append(types, a.Type)
	}
	slices.Sort(types)
	types = slices.Compact(types)

	for _, t := range types {
		c.Totals[t]++
	}
	c.Groups[GroupKey(types)]++
}

// Merge folds other into c and returns c.
func (c *AttributeCounts) Merge(other *AttributeCounts) *AttributeCounts {
	if other == nil {
		return c
	}
	for k, v := range other.Groups {
		c.Groups[k] += v
	}
	for k, v := range other.Totals {
		c.Totals[k] += v
	}
	return c
}

// GroupTotal is the number of routes counted.
func (c *AttributeCounts) GroupTotal() uint64 {
	var n uint64
	for _, v := range c.Groups {
		n += v
	}
	return n
}

// GroupKey names a sorted, de-duplicated attribute set.
func GroupKey(types []mrt.AttrType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// Row is one line of a report section.
type Row struct {
	Name    string
	Count   uint64
	Percent float64
}

// GroupRows returns groups ordered by ascending count. Percentages are of
// all routes.
func (c *AttributeCounts) GroupRows() []Row {
	total := c.GroupTotal()
	rows := make([]Row, 0, len(c.Groups))
	for k, v := range c.Groups {
		rows = append(rows, Row{Name: k, Count: v, Percent: percent(v, total)})
	}
	sortRows(rows)
	return rows
}

// TotalRows returns per-attribute totals ordered by ascending count. The
// percentage is the share of routes carrying that attribute.
func (c *AttributeCounts) TotalRows() []Row {
	total := c.GroupTotal()
	rows := make([]Row, 0, len(c.Totals))
	for k, v := range c.Totals {
		rows = append(rows, Row{Name: k.String(), Count: v, Percent: percent(v, total)})
	}
	sortRows(rows)
	return rows
}

func sortRows(rows []Row) {
	slices.SortFunc(rows, func(a, b Row) int {
		if a.Count != b.Count {
			if a.Count < b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// WriteReport writes the two report sections as plain text.
func (c *AttributeCounts) WriteReport(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Attribute Group Counts")
	fmt.Fprintln(bw, "COUNT         PERCENT NAME")
	for _, r := range c.GroupRows() {
		fmt.Fprintf(bw, "%-10d%10.5f%% %s\n", r.Count, r.Percent, r.Name)
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Total Attribute Counts")
	fmt.Fprintln(bw, "COUNT         PERCENT NAME")
	for _, r := range c.TotalRows() {
		fmt.Fprintf(bw, "%-10d%10.5f%% %s\n", r.Count, r.Percent, r.Name)
	}
	return bw.Flush()
}

func (c *AttributeCounts) String() string {
	var sb strings.Builder
	_ = c.WriteReport(&sb)
	return sb.String()
}
