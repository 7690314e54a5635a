// Package saver exports the state database's tables as parquet files.
package saver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SaveTablesToParquet copies every table in conn into outputDir/<table>.parquet
// and returns the paths written. A failing table does not stop the others;
// all failures are joined into the returned error.
func SaveTablesToParquet(ctx context.Context, conn *sql.DB, outputDir string, logger *slog.Logger) ([]string, error) {
	logger.Info("--- Starting DuckDB Table to Parquet Save Process ---")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", outputDir, err)
	}

	tableNames, err := listTables(ctx, conn)
	if err != nil {
		return nil, err
	}
	if len(tableNames) == 0 {
		logger.Info("No user tables found in the database to save.")
		return nil, nil
	}
	logger.Info("Found tables to save.", slog.Int("count", len(tableNames)))

	var (
		mu         sync.Mutex
		saveErrors error
		written    []string
	)
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, tn := range tableNames {
		if ctx.Err() != nil {
			logger.Warn("Context cancelled before saving all tables.", "error", ctx.Err())
			mu.Lock()
			saveErrors = errors.Join(saveErrors, ctx.Err())
			mu.Unlock()
			break
		}
		g.Go(func() error {
			l := logger.With(slog.String("table", tn))
			path, err := saveTable(ctx, conn, tn, outputDir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.Error("Failed to save table to Parquet.", "error", err)
				saveErrors = errors.Join(saveErrors, fmt.Errorf("save %s: %w", tn, err))
				return nil
			}
			l.Info("Saved table to Parquet.", slog.String("output_path", path))
			written = append(written, path)
			return nil
		})
	}
	g.Wait()

	sort.Strings(written)
	if saveErrors != nil {
		logger.Error("Save process completed with errors.", "error", saveErrors)
		return written, saveErrors
	}
	logger.Info("--- DuckDB Table to Parquet Save Process Finished Successfully ---", slog.Int("files", len(written)))
	return written, nil
}

func listTables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `PRAGMA show_tables;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}

func saveTable(ctx context.Context, conn *sql.DB, table, outputDir string) (string, error) {
	safe := strings.ReplaceAll(table, `"`, "")
	safe = strings.ReplaceAll(safe, "/", "_")
	outputPath := filepath.Join(outputDir, safe+".parquet")
	duckdbPath := strings.ReplaceAll(outputPath, `\`, `/`)

	quoted := fmt.Sprintf(`"%s"`, strings.ReplaceAll(table, `"`, `""`))
	copySQL := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET);`, quoted, strings.ReplaceAll(duckdbPath, "'", "''"))
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return "", err
	}
	return outputPath, nil
}
