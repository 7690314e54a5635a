package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"

	"github.com/brensch/mrtstat/internal/budget"
	"github.com/brensch/mrtstat/internal/config"
	"github.com/brensch/mrtstat/internal/db"
)

var (
	// Flags bound in init().
	outputDir       string
	dbPath          string
	outputFile      string
	reportDir       string
	brokerURL       string
	listingURLs     []string
	pageSize        int
	collector       string
	since           time.Duration
	until           time.Duration
	dataTypes       []string
	filterWindow    bool
	fetchWorkers    int
	channelCapacity int
	consumerWorkers int
	fetchTimeout    time.Duration
	bufferSpace     string
	maxBuffer       string
	initialBuffer   string
	logFormat       string
	logLevel        string
	logOutput       string

	// Populated in PersistentPreRunE.
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mrtstat",
	Short: "Fetch MRT archives and report BGP path attribute statistics.",
	Long: `mrtstat lists MRT archives from a BGPKIT-style broker or from collector
directory listings, fetches them with a memory-budgeted prefetcher, decodes
every record and counts which BGP path attributes occur together.

The primary command is 'run'. A DuckDB database keeps a per-source event log
and the counts of every run; 'state', 'analyse', 'save' and 'inspect' read it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootLogger = newLogger(logLevel, logFormat, logOutput)
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized", "level", logLevel, "format", logFormat, "output", logOutput)

		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
		appConfig = cfg
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

		if appConfig.DbPath != "" && appConfig.DbPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
		dsn := appConfig.DbPath
		if dsn == ":memory:" {
			dsn = ""
		}

		rootLogger.Debug("Initializing DuckDB connection", "path", appConfig.DbPath)
		dbConn, err = sql.Open("duckdb", dsn)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Database schema initialized")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(tuiCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	d := config.Default()
	f := rootCmd.PersistentFlags()
	f.StringVarP(&outputDir, "output-dir", "o", d.OutputDir, "Directory for 'save' parquet exports")
	f.StringVarP(&dbPath, "db-path", "d", d.DbPath, "Path to DuckDB state database file (:memory: for in-memory)")
	f.StringVar(&outputFile, "output-file", d.OutputFile, "Text report file, written alongside stdout")
	f.StringVar(&reportDir, "report-dir", d.ReportDir, "Directory for parquet reports of each run (empty disables)")
	f.StringVar(&brokerURL, "broker-url", d.BrokerURL, "Broker base URL; /search is appended")
	f.StringSliceVar(&listingURLs, "listing-url", nil, "Archive directory listing to scrape instead of the broker; may contain {month} (repeatable)")
	f.IntVar(&pageSize, "page-size", d.PageSize, "Broker page size")
	f.StringVar(&collector, "collector", "", "Restrict the broker query to one collector, e.g. rrc00")
	f.DurationVar(&since, "since", d.Since, "Start of the window, as a duration before now")
	f.DurationVar(&until, "until", 0, "End of the window, as a duration before now (0 means now)")
	f.StringSliceVar(&dataTypes, "data-types", d.DataTypes, "Phases to run: update, rib")
	f.BoolVar(&filterWindow, "filter-window", false, "Drop records stamped outside the window")
	f.IntVar(&fetchWorkers, "fetch-workers", d.FetchWorkers, "Concurrent fetch workers")
	f.IntVar(&channelCapacity, "channel-capacity", d.ChannelCapacity, "Fetched sources allowed in flight, including those held by workers")
	f.IntVarP(&consumerWorkers, "consumer-workers", "w", d.ConsumerWorkers, "Concurrent decode workers")
	f.DurationVar(&fetchTimeout, "fetch-timeout", d.FetchTimeout, "Timeout for downloading a buffered source or opening a live stream (0 disables)")
	f.StringVar(&bufferSpace, "buffer-space", humanize.IBytes(uint64(budget.DefaultCapacity)), "Total memory for buffered sources")
	f.StringVar(&maxBuffer, "max-buffer", humanize.IBytes(uint64(budget.DefaultMaxSingle)), "Largest source that may be buffered")
	f.StringVar(&initialBuffer, "initial-buffer", humanize.IBytes(uint64(config.DefaultInitialBuffer)), "Initial allocation for a buffered source")
	f.StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

// buildConfig copies the flag values into a Config.
func buildConfig() (config.Config, error) {
	cfg := config.Config{
		OutputDir:       outputDir,
		DbPath:          dbPath,
		OutputFile:      outputFile,
		ReportDir:       reportDir,
		BrokerURL:       brokerURL,
		ListingURLs:     listingURLs,
		PageSize:        pageSize,
		Collector:       collector,
		Since:           since,
		Until:           until,
		DataTypes:       dataTypes,
		FilterWindow:    filterWindow,
		FetchWorkers:    fetchWorkers,
		ChannelCapacity: channelCapacity,
		ConsumerWorkers: consumerWorkers,
		FetchTimeout:    fetchTimeout,
	}
	for _, bf := range []struct {
		name  string
		value string
		dst   *int64
	}{
		{"buffer-space", bufferSpace, &cfg.BufferSpace},
		{"max-buffer", maxBuffer, &cfg.MaxBuffer},
		{"initial-buffer", initialBuffer, &cfg.InitialBuffer},
	} {
		n, err := parseBytes(bf.value)
		if err != nil {
			return cfg, fmt.Errorf("--%s: %w", bf.name, err)
		}
		*bf.dst = n
	}
	return cfg, nil
}

func parseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("%s is too large", s)
	}
	return int64(n), nil
}

// newLogger builds the root logger. An unusable log file falls back to stderr.
func newLogger(levelName, format, output string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var logWriter io.Writer = os.Stderr
	var openErr error
	switch strings.ToLower(output) {
	case "", "stderr":
	case "stdout":
		logWriter = os.Stdout
	default:
		// Left open for the life of the process.
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			openErr = err
		} else {
			logWriter = f
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(logWriter, opts)
	} else {
		handler = slog.NewTextHandler(logWriter, opts)
	}
	logger := slog.New(handler)
	if openErr != nil {
		logger.Warn("Failed to open log file, logging to stderr", "path", output, "error", openErr)
	}
	return logger
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB { return dbConn }

func getConfig() config.Config { return appConfig }
