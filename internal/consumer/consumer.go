// Package consumer decodes prefetched sources in parallel and folds their
// records into attribute counts.
package consumer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/mrtstat/internal/catalog"
	"github.com/brensch/mrtstat/internal/mrt"
	"github.com/brensch/mrtstat/internal/prefetch"
	"github.com/brensch/mrtstat/internal/records"
	"github.com/brensch/mrtstat/internal/stats"
)

const readBufferSize = 256 << 10

// Progress counts finished sources. It is for display only.
type Progress struct {
	total     atomic.Int64
	completed atomic.Int64
}

// Reset starts a new phase of total sources.
func (p *Progress) Reset(total int) {
	p.total.Store(int64(total))
	p.completed.Store(0)
}

func (p *Progress) Total() int64     { return p.total.Load() }
func (p *Progress) Completed() int64 { return p.completed.Load() }

func (p *Progress) finish() int64 { return p.completed.Add(1) }

// SourceSummary describes how one source decoded.
type SourceSummary struct {
	Item     catalog.Item
	Buffered bool
	Records  int
	Errors   int
	Filtered int
	// Fatal is the error that cut the source short, if any.
	Fatal   error
	Elapsed time.Duration
}

// Observer receives a summary for every consumed source, from worker
// goroutines concurrently.
type Observer interface {
	SourceDone(SourceSummary)
}

// Pool drains prefetch results with a fixed number of workers.
type Pool struct {
	Workers  int
	Decoder  *mrt.Decoder
	Logger   *slog.Logger
	Progress *Progress
	Observer Observer
}

// Run consumes results until the channel closes and returns the merged
// counts. Each worker keeps its own accumulator, so workers share nothing
// but the channel. If ctx is cancelled Run stops early, closes whatever is
// still queued and returns the partial counts with ctx's error.
func (p *Pool) Run(ctx context.Context, results <-chan prefetch.Result) (*stats.AttributeCounts, error) {
	workers := max(p.Workers, 1)
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	progress := p.Progress
	if progress == nil {
		progress = &Progress{}
	}
	decoder := p.Decoder
	if decoder == nil {
		decoder = &mrt.Decoder{}
	}

	partials := make([]*stats.AttributeCounts, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		acc := stats.New()
		partials[i] = acc
		l := logger.With(slog.Int("consumer", i))
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case res, ok := <-results:
					if !ok {
						return nil
					}
					sum := p.consume(l, decoder, progress, res, acc)
					if p.Observer != nil {
						p.Observer.SourceDone(sum)
					}
				}
			}
		})
	}
	err := g.Wait()
	if err != nil {
		for res := range results {
			res.Stream.Close()
		}
	}

	total := stats.New()
	for _, part := range partials {
		total.Merge(part)
	}
	return total, err
}

func (p *Pool) consume(logger *slog.Logger, decoder *mrt.Decoder, progress *Progress, res prefetch.Result, acc *stats.AttributeCounts) SourceSummary {
	defer res.Stream.Close()
	start := time.Now()
	l := logger.With(slog.String("url", res.Item.URL))

	sum := SourceSummary{Item: res.Item, Buffered: res.Buffered}
	it := records.New(bufio.NewReaderSize(res.Stream, readBufferSize), decoder.Decode, mrt.IsFatal)
	for a := range it.All() {
		if a.Err == nil {
			acc.CountRecord(a.Record)
			sum.Records++
			continue
		}
		if kind, _ := mrt.KindOf(a.Err); kind == mrt.KindFiltered {
			sum.Filtered++
			continue
		}
		sum.Errors++
		if a.Fatal {
			sum.Fatal = a.Err
		}
		l.Warn("Error in source", "error", a.Err, slog.Bool("fatal", a.Fatal))
	}
	sum.Elapsed = time.Since(start)

	done := progress.finish()
	l.Info(fmt.Sprintf("[%d/%d] Finished %s in %s", done, progress.Total(), res.Item.URL, sum.Elapsed.Round(time.Millisecond)),
		slog.Int("records", sum.Records),
		slog.Int("errors", sum.Errors),
		slog.Int("filtered", sum.Filtered))
	return sum
}
