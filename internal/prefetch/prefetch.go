// Package prefetch fetches sources ahead of the consumers that decode them.
//
// A fixed set of workers pulls items from a queue. Each worker asks the
// shared budget for room to hold the whole source in memory; if granted it
// downloads the source into a buffer, otherwise it opens a live stream and
// leaves the network read to the consumer. Either way the result is pushed
// onto a bounded channel, so a slow consumer stalls the workers rather than
// letting fetched data pile up.
package prefetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/brensch/mrtstat/internal/budget"
	"github.com/brensch/mrtstat/internal/catalog"
	"github.com/brensch/mrtstat/internal/decompress"
)

// Result is a source ready to decode. The receiver owns Stream and must
// close it.
type Result struct {
	Item     catalog.Item
	Stream   io.ReadCloser
	Buffered bool
	// Size is the buffer capacity charged to the budget; 0 for live streams.
	Size int64
}

// Observer is told about every fetch outcome. Calls come from worker
// goroutines concurrently.
type Observer interface {
	FetchSucceeded(item catalog.Item, size int64, buffered bool, elapsed time.Duration)
	FetchFailed(item catalog.Item, err error, elapsed time.Duration)
}

// Config sizes the worker pool.
type Config struct {
	Workers int
	// ChannelCapacity is the total number of results allowed in flight. The
	// output channel holds ChannelCapacity-Workers of them, never fewer than 0.
	ChannelCapacity int
	// InitialBufferLimit caps the first allocation for a budgeted fetch.
	InitialBufferLimit int64
	// FetchTimeout bounds each buffered download and the opening of a live
	// stream. Reading an opened stream is not bounded.
	FetchTimeout time.Duration
}

// Prefetcher runs the fetch worker pool.
type Prefetcher struct {
	budget    *budget.Budget
	transport Transport
	cfg       Config
	logger    *slog.Logger
	observer  Observer
}

// New returns a Prefetcher. observer may be nil.
func New(b *budget.Budget, t Transport, cfg Config, logger *slog.Logger, observer Observer) *Prefetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prefetcher{budget: b, transport: t, cfg: cfg, logger: logger, observer: observer}
}

// OutputCapacity is the buffer size of the channel returned by Start.
func (p *Prefetcher) OutputCapacity() int {
	return max(p.cfg.ChannelCapacity-p.cfg.Workers, 0)
}

// Start enqueues items and launches the workers. The returned channel yields
// one Result per successfully opened source in no particular order and is
// closed once every item has been handled or ctx is done. Sources whose
// fetch fails are logged and dropped.
func (p *Prefetcher) Start(ctx context.Context, items []catalog.Item) <-chan Result {
	queue := make(chan catalog.Item, len(items))
	for _, it := range items {
		queue <- it
	}
	close(queue)

	out := make(chan Result, p.OutputCapacity())
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID, queue, out)
		}(i)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	p.logger.Debug("Prefetch workers started",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("items", len(items)),
		slog.Int("output_capacity", p.OutputCapacity()))
	return out
}

func (p *Prefetcher) worker(ctx context.Context, workerID int, queue <-chan catalog.Item, out chan<- Result) {
	l := p.logger.With(slog.Int("fetch_worker", workerID))
	for item := range queue {
		if ctx.Err() != nil {
			return
		}
		res, ok := p.fetch(ctx, l, item)
		if !ok {
			continue
		}
		select {
		case out <- res:
		case <-ctx.Done():
			res.Stream.Close()
			return
		}
	}
}

func (p *Prefetcher) fetch(ctx context.Context, logger *slog.Logger, item catalog.Item) (Result, bool) {
	l := logger.With(slog.String("url", item.URL))
	start := time.Now()

	res := Result{Item: item}
	var err error
	if claimed, ok := p.budget.TryClaim(item.RoughSize); ok {
		res.Stream, res.Size, err = p.fetchBuffered(ctx, item, claimed)
		res.Buffered = true
	} else {
		res.Stream, err = p.openStream(ctx, item)
	}
	elapsed := time.Since(start)

	if err != nil {
		l.Warn("Fetch failed, dropping source", "error", err, slog.Duration("duration", elapsed.Round(time.Millisecond)))
		if p.observer != nil {
			p.observer.FetchFailed(item, err, elapsed)
		}
		return Result{}, false
	}

	if res.Buffered {
		l.Debug("Fetched into buffer",
			slog.String("size", humanize.IBytes(uint64(res.Size))),
			slog.String("budget_remaining", humanize.IBytes(uint64(max(p.budget.Remaining(), 0)))),
			slog.Duration("duration", elapsed.Round(time.Millisecond)))
	} else {
		l.Debug("Opened live stream", slog.Int64("rough_size", item.RoughSize))
	}
	if p.observer != nil {
		p.observer.FetchSucceeded(item, res.Size, res.Buffered, elapsed)
	}
	return res, true
}

// fetchBuffered downloads the item while holding claimed bytes of budget.
// Once the real buffer size is known the claim is corrected to match it, so
// the buffer ends up charged exactly its capacity.
func (p *Prefetcher) fetchBuffered(ctx context.Context, item catalog.Item, claimed int64) (io.ReadCloser, int64, error) {
	initial := item.RoughSize
	if p.cfg.InitialBufferLimit > 0 {
		initial = min(initial, p.cfg.InitialBufferLimit)
	}
	buf := bytes.NewBuffer(make([]byte, 0, initial))

	fctx, cancel := p.fetchContext(ctx)
	defer cancel()
	if _, err := p.transport.Fetch(fctx, item.URL, buf); err != nil {
		p.budget.Release(claimed)
		return nil, 0, err
	}

	data := buf.Bytes()
	actual := int64(cap(data))
	p.budget.Release(claimed - actual)
	return decompress.Wrap(item.URL, newClaimedBuffer(data, actual, p.budget)), actual, nil
}

// openStream opens a live stream. FetchTimeout only bounds getting the
// stream open: once Open returns, the stream lives until the consumer closes
// it, however long it waits on the output channel.
func (p *Prefetcher) openStream(ctx context.Context, item catalog.Item) (io.ReadCloser, error) {
	sctx, cancel := context.WithCancelCause(ctx)
	var timer *time.Timer
	if p.cfg.FetchTimeout > 0 {
		timer = time.AfterFunc(p.cfg.FetchTimeout, func() {
			cancel(fmt.Errorf("opening %s: %w", item.URL, context.DeadlineExceeded))
		})
	}
	rc, err := p.transport.Open(sctx, item.URL)
	if timer != nil && !timer.Stop() && err == nil {
		// the deadline fired as Open returned; the body is already cancelled
		rc.Close()
		err = fmt.Errorf("opening %s: %w", item.URL, context.DeadlineExceeded)
	}
	if err != nil {
		cancel(nil)
		return nil, err
	}
	return decompress.Wrap(item.URL, &cancelOnClose{ReadCloser: rc, cancel: func() { cancel(nil) }}), nil
}

func (p *Prefetcher) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.FetchTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
