package orchestrator

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/brensch/mrtstat/internal/catalog"
	"github.com/brensch/mrtstat/internal/consumer"
	"github.com/brensch/mrtstat/internal/db"
)

// Source statuses carried by Progress.
const (
	StatusBuffered    = "Buffered"
	StatusStreaming   = "Streaming"
	StatusFetchFailed = "Fetch failed"
	StatusComplete    = "Complete"
	StatusFatal       = "Fatal"
)

// Progress is a per-source event for interactive displays.
type Progress struct {
	Phase     catalog.Kind
	URL       string
	Status    string
	Completed int64
	Total     int64
	Records   int
	Errors    int
	Elapsed   time.Duration
	Err       error
}

// observer feeds prefetch and consumer callbacks into the event log, the
// progress channel and the phase counters.
type observer struct {
	ctx      context.Context
	db       *sql.DB
	runID    string
	kind     catalog.Kind
	logger   *slog.Logger
	progress *consumer.Progress
	events   chan<- Progress

	buffered atomic.Int64
	streamed atomic.Int64
	failed   atomic.Int64
	fatal    atomic.Int64
}

func (o *observer) FetchSucceeded(item catalog.Item, size int64, buffered bool, elapsed time.Duration) {
	status := StatusStreaming
	if buffered {
		o.buffered.Add(1)
		status = StatusBuffered
	} else {
		o.streamed.Add(1)
	}
	o.logEvent(db.SourceEvent{URL: item.URL, Event: db.EventFetchOK, Bytes: size, Duration: elapsed})
	o.emit(Progress{URL: item.URL, Status: status, Elapsed: elapsed})
}

func (o *observer) FetchFailed(item catalog.Item, err error, elapsed time.Duration) {
	o.failed.Add(1)
	o.logEvent(db.SourceEvent{URL: item.URL, Event: db.EventFetchError, Message: err.Error(), Duration: elapsed})
	o.emit(Progress{URL: item.URL, Status: StatusFetchFailed, Elapsed: elapsed, Err: err})
}

func (o *observer) SourceDone(sum consumer.SourceSummary) {
	ev := db.SourceEvent{
		URL:      sum.Item.URL,
		Event:    db.EventDecodeOK,
		Records:  sum.Records,
		Errors:   sum.Errors,
		Duration: sum.Elapsed,
	}
	p := Progress{URL: sum.Item.URL, Status: StatusComplete, Records: sum.Records, Errors: sum.Errors, Elapsed: sum.Elapsed}
	if sum.Fatal != nil {
		o.fatal.Add(1)
		ev.Event = db.EventDecodeFatal
		ev.Message = sum.Fatal.Error()
		p.Status, p.Err = StatusFatal, sum.Fatal
	}
	o.logEvent(ev)
	o.emit(p)
}

func (o *observer) logEvent(ev db.SourceEvent) {
	if o.db == nil {
		return
	}
	ev.RunID, ev.Kind = o.runID, string(o.kind)
	if err := db.LogSourceEvent(o.ctx, o.db, ev); err != nil {
		o.logger.Warn("Failed to record source event", "url", ev.URL, "event", ev.Event, "error", err)
	}
}

func (o *observer) emit(p Progress) {
	if o.events == nil {
		return
	}
	p.Phase = o.kind
	p.Completed, p.Total = o.progress.Completed(), o.progress.Total()
	select {
	case o.events <- p:
	case <-o.ctx.Done():
	}
}
