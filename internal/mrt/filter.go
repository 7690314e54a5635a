package mrt

import (
	"fmt"
	"time"
)

// TimeWindow rejects records stamped outside [From, To). A zero bound is open.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// Filter is suitable for Decoder.Filter.
func (w TimeWindow) Filter(rec *Record) error {
	ts := rec.Header.Timestamp
	if !w.From.IsZero() && ts.Before(w.From) {
		return fmt.Errorf("record at %s is before %s", ts.Format(time.RFC3339), w.From.Format(time.RFC3339))
	}
	if !w.To.IsZero() && !ts.Before(w.To) {
		return fmt.Errorf("record at %s is not before %s", ts.Format(time.RFC3339), w.To.Format(time.RFC3339))
	}
	return nil
}
