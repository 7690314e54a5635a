// Package orchestrator runs a whole statistics pass: catalog query, then an
// update phase and a rib phase, each prefetching and decoding its sources
// and reporting the merged attribute counts.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/mrtstat/internal/budget"
	"github.com/brensch/mrtstat/internal/catalog"
	"github.com/brensch/mrtstat/internal/config"
	"github.com/brensch/mrtstat/internal/consumer"
	"github.com/brensch/mrtstat/internal/db"
	"github.com/brensch/mrtstat/internal/mrt"
	"github.com/brensch/mrtstat/internal/prefetch"
	"github.com/brensch/mrtstat/internal/report"
	"github.com/brensch/mrtstat/internal/stats"
	"github.com/brensch/mrtstat/internal/util"
)

// Phases in the order they run.
var Phases = []catalog.Kind{catalog.KindUpdate, catalog.KindRIB}

// Options carries collaborators that tests and the TUI swap out. Zero values
// select the defaults built from the config.
type Options struct {
	Catalog   catalog.Catalog
	Transport prefetch.Transport
	Client    *http.Client
	// Stdout receives the text report alongside the output file.
	Stdout io.Writer
	// Progress, when set, receives one event per fetch and per decoded
	// source. Sends block, so the receiver must keep draining until Run
	// returns.
	Progress chan<- Progress
	Now      func() time.Time
}

// PhaseSummary describes one finished phase.
type PhaseSummary struct {
	Kind        catalog.Kind
	Sources     int
	Buffered    int
	Streamed    int
	FetchFailed int
	Fatal       int
	Counts      *stats.AttributeCounts
	Reports     []string
}

// Summary is the result of a run.
type Summary struct {
	RunID  string
	Start  time.Time
	End    time.Time
	Phases []PhaseSummary
}

// Run executes one pass. Only a failed catalog query, an unusable output
// file, a database failure while recording results, or cancellation make
// it return an error; individual sources that fail are logged and skipped.
func Run(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger, opts Options) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	client := opts.Client
	if client == nil {
		client = util.DefaultHTTPClient()
	}

	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))
	start, end := cfg.Window(now())
	summary := &Summary{RunID: runID, Start: start, End: end}

	cat, catName := opts.Catalog, "custom"
	if cat == nil {
		cat, catName = newCatalog(cfg, start, end, client, logger)
	}
	if dbConn != nil {
		if err := db.StartRun(ctx, dbConn, runID, catName); err != nil {
			return nil, err
		}
	}

	sources := 0
	err := func() error {
		logger.Info("Querying catalog", slog.String("catalog", catName), slog.Time("since", start))
		items, err := cat.Query(ctx)
		if err != nil {
			return fmt.Errorf("catalog query failed: %w", err)
		}
		sources = len(items)
		parts := catalog.Partition(items)
		logger.Info("Catalog queried",
			slog.Int("items", len(items)),
			slog.Int("update", len(parts[catalog.KindUpdate])),
			slog.Int("rib", len(parts[catalog.KindRIB])))
		if n := len(parts[catalog.KindUnknown]); n > 0 {
			logger.Warn("Skipping items of unknown kind", slog.Int("count", n))
		}

		out, err := os.Create(cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", cfg.OutputFile, err)
		}
		defer out.Close()
		var w io.Writer = out
		if opts.Stdout != nil {
			w = io.MultiWriter(opts.Stdout, out)
		}

		p := &pipeline{
			cfg:       cfg,
			db:        dbConn,
			logger:    logger,
			runID:     runID,
			budget:    budget.New(cfg.BufferSpace, cfg.MaxBuffer),
			transport: opts.Transport,
			decoder:   &mrt.Decoder{},
			progress:  opts.Progress,
			report:    w,
		}
		if p.transport == nil {
			p.transport = prefetch.DefaultTransport(client)
		}
		if cfg.FilterWindow {
			p.decoder.Filter = mrt.TimeWindow{From: start, To: end}.Filter
		}

		for _, kind := range Phases {
			if !slices.Contains(cfg.DataTypes, string(kind)) {
				continue
			}
			ps, err := p.runPhase(ctx, kind, parts[kind])
			summary.Phases = append(summary.Phases, ps)
			if err != nil {
				return fmt.Errorf("%s phase: %w", kind, err)
			}
		}
		return out.Sync()
	}()

	if dbConn != nil {
		status := db.RunComplete
		if err != nil {
			status = db.RunFailed
		}
		// Recorded even when ctx is cancelled.
		if ferr := db.FinishRun(context.WithoutCancel(ctx), dbConn, runID, sources, status); ferr != nil {
			logger.Error("Failed to record run end", "error", ferr)
		}
	}
	if err != nil {
		return summary, err
	}
	logger.Info("Run complete", slog.Int("sources", sources), slog.Int("phases", len(summary.Phases)))
	return summary, nil
}

func newCatalog(cfg config.Config, start, end time.Time, client *http.Client, logger *slog.Logger) (catalog.Catalog, string) {
	if len(cfg.ListingURLs) > 0 {
		return &catalog.Listing{
			URLs:   cfg.ListingURLs,
			Start:  start,
			End:    end,
			Client: client,
			Logger: logger,
		}, "listing"
	}
	return &catalog.Broker{
		BaseURL:   cfg.BrokerURL,
		PageSize:  cfg.PageSize,
		Start:     start,
		End:       end,
		Collector: cfg.Collector,
		Client:    client,
		Logger:    logger,
	}, "broker"
}

type pipeline struct {
	cfg       config.Config
	db        *sql.DB
	logger    *slog.Logger
	runID     string
	budget    *budget.Budget
	transport prefetch.Transport
	decoder   *mrt.Decoder
	progress  chan<- Progress
	report    io.Writer
}

func (p *pipeline) runPhase(ctx context.Context, kind catalog.Kind, items []catalog.Item) (PhaseSummary, error) {
	logger := p.logger.With(slog.String("phase", string(kind)))
	ps := PhaseSummary{Kind: kind, Sources: len(items)}
	phaseStart := time.Now()

	progress := &consumer.Progress{}
	progress.Reset(len(items))
	obs := &observer{
		ctx:      ctx,
		db:       p.db,
		runID:    p.runID,
		kind:     kind,
		logger:   logger,
		progress: progress,
		events:   p.progress,
	}
	for _, it := range items {
		obs.logEvent(db.SourceEvent{URL: it.URL, Event: db.EventDiscovered, Bytes: max(it.RoughSize, 0)})
	}
	logger.Info("Starting phase", slog.Int("sources", len(items)))

	pf := prefetch.New(p.budget, p.transport, prefetch.Config{
		Workers:            p.cfg.FetchWorkers,
		ChannelCapacity:    p.cfg.ChannelCapacity,
		InitialBufferLimit: p.cfg.InitialBuffer,
		FetchTimeout:       p.cfg.FetchTimeout,
	}, logger, obs)
	pool := consumer.Pool{
		Workers:  p.cfg.ConsumerWorkers,
		Decoder:  p.decoder,
		Logger:   logger,
		Progress: progress,
		Observer: obs,
	}
	counts, err := pool.Run(ctx, pf.Start(ctx, items))
	ps.Counts = counts
	ps.Buffered, ps.Streamed = int(obs.buffered.Load()), int(obs.streamed.Load())
	ps.FetchFailed, ps.Fatal = int(obs.failed.Load()), int(obs.fatal.Load())
	if err != nil {
		return ps, err
	}

	if _, err := fmt.Fprintf(p.report, "== %s ==\n", kind); err != nil {
		return ps, fmt.Errorf("write report header: %w", err)
	}
	if err := counts.WriteReport(p.report); err != nil {
		return ps, fmt.Errorf("write report: %w", err)
	}
	if p.db != nil {
		if err := db.SaveAttributeCounts(ctx, p.db, p.runID, string(kind), counts); err != nil {
			return ps, err
		}
	}
	if p.cfg.ReportDir != "" {
		paths, err := report.Write(p.cfg.ReportDir, p.runID, string(kind), counts, logger)
		ps.Reports = paths
		if err != nil {
			return ps, fmt.Errorf("write parquet report: %w", err)
		}
	}

	logger.Info("Phase complete",
		slog.Int("sources", ps.Sources),
		slog.Int("buffered", ps.Buffered),
		slog.Int("streamed", ps.Streamed),
		slog.Int("fetch_failed", ps.FetchFailed),
		slog.Int("fatal", ps.Fatal),
		slog.Uint64("routes", counts.GroupTotal()),
		slog.Duration("duration", time.Since(phaseStart).Round(time.Millisecond)))
	return ps, nil
}
