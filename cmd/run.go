package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/brensch/mrtstat/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the catalog's archives and report attribute statistics",
	Long: `Performs one statistics pass:
1. Lists archives from the broker (or the --listing-url pages) for the window.
2. Runs the update phase, then the rib phase. Each phase prefetches its
   archives under a shared memory budget, decodes every MRT record and counts
   attribute combinations.
3. Prints each phase's report to stdout and --output-file, stores the counts
   in the state database and, with --report-dir, writes parquet reports.
Sources that fail to fetch or decode are logged and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("Starting run",
			slog.Int("fetch_workers", cfg.FetchWorkers),
			slog.Int("consumer_workers", cfg.ConsumerWorkers),
			slog.String("buffer_space", humanize.IBytes(uint64(cfg.BufferSpace))),
			slog.String("max_buffer", humanize.IBytes(uint64(cfg.MaxBuffer))))

		sum, err := orchestrator.Run(ctx, cfg, getDB(), logger, orchestrator.Options{Stdout: cmd.OutOrStdout()})
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		for _, ps := range sum.Phases {
			logger.Info("Phase summary",
				slog.String("phase", string(ps.Kind)),
				slog.Int("sources", ps.Sources),
				slog.Int("fetch_failed", ps.FetchFailed),
				slog.Int("fatal", ps.Fatal))
		}
		logger.Info("Run finished", slog.String("run_id", sum.RunID), slog.String("output_file", cfg.OutputFile))
		return nil
	},
}
