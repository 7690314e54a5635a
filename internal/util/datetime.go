package util

import (
	"fmt"
	"regexp"
	"time"
)

// archiveStampRegex matches the YYYYMMDD.HHMM stamp used in RIS and
// RouteViews archive file names, e.g. updates.20240101.0015.gz.
var archiveStampRegex = regexp.MustCompile(`(\d{8})\.(\d{4})`)

// ArchiveFileTime extracts the UTC start time from an archive file name.
func ArchiveFileTime(name string) (time.Time, error) {
	m := archiveStampRegex.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("no YYYYMMDD.HHMM stamp in %q", name)
	}
	t, err := time.ParseInLocation("20060102 1504", m[1]+" "+m[2], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse archive time from %q: %w", name, err)
	}
	return t, nil
}

// MonthsBetween returns the first instant of every UTC month touched by
// [start, end], in order.
func MonthsBetween(start, end time.Time) []time.Time {
	start, end = start.UTC(), end.UTC()
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for !cur.After(end) {
		out = append(out, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}
