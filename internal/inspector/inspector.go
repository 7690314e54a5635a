// Package inspector summarises parquet report files with DuckDB.
package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// TopRows is how many names are listed per report type.
const TopRows = 5

// reportPattern matches <kind>_<section>_<run id>.parquet.
var reportPattern = regexp.MustCompile(`^([a-z]+)_(groups|totals)_(.+)\.parquet$`)

// reportType extracts "<kind>_<section>" from a report file name.
func reportType(filename string) (string, error) {
	m := reportPattern.FindStringSubmatch(filename)
	if m == nil {
		return "", fmt.Errorf("filename '%s' does not match expected report pattern (KIND_SECTION_RUNID.parquet)", filename)
	}
	return m[1] + "_" + m[2], nil
}

type typeSummary struct {
	reportType string
	files      []string
	schema     string
	rows       int64
	runs       int64
	top        []namedCount
	schemaErr  error
	statsErr   error
}

type namedCount struct {
	name  string
	count int64
}

// InspectReports describes every parquet report in dir: schema, row and
// run counts, and the names with the highest counts summed over all runs.
func InspectReports(ctx context.Context, conn *sql.DB, dir string, w io.Writer, logger *slog.Logger) error {
	logger.Info("--- Starting Parquet Report Inspection ---", slog.String("dir", dir))

	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return fmt.Errorf("failed glob parquet files in %s: %w", dir, err)
	}
	if len(files) == 0 {
		logger.Info("No *.parquet files found.", "dir", dir)
		fmt.Fprintf(w, "No parquet reports in %s\n", dir)
		return nil
	}

	byType := make(map[string][]string)
	var categorizationErrors error
	for _, fp := range files {
		rt, err := reportType(filepath.Base(fp))
		if err != nil {
			logger.Warn("Skipping file due to unexpected name format.", slog.String("file", fp), slog.String("error", err.Error()))
			categorizationErrors = errors.Join(categorizationErrors, err)
			continue
		}
		byType[rt] = append(byType[rt], fp)
	}

	var ordered []string
	summaries := make(map[string]*typeSummary)
	for rt, paths := range byType {
		ordered = append(ordered, rt)
		sort.Strings(paths)
		s := &typeSummary{reportType: rt, files: paths}
		summaries[rt] = s
		l := logger.With(slog.String("report_type", rt))

		s.schema, s.schemaErr = describe(ctx, conn, paths[0])
		if s.schemaErr != nil {
			l.Error("Failed getting schema", "error", s.schemaErr)
		}
		s.statsErr = gatherStats(ctx, conn, s)
		if s.statsErr != nil {
			l.Error("Failed getting statistics", "error", s.statsErr)
		} else {
			l.Debug("Statistics gathered", slog.Int64("rows", s.rows), slog.Int64("runs", s.runs))
		}
	}
	sort.Strings(ordered)

	fmt.Fprintln(w, "--- Parquet Report Summary ---")
	for _, rt := range ordered {
		s := summaries[rt]
		fmt.Fprintf(w, "\n=== Report Type: %s ===\n", rt)
		fmt.Fprintf(w, "    (Found %d files)\n", len(s.files))
		fmt.Fprintln(w, "\n  Schema:")
		if s.schemaErr != nil {
			fmt.Fprintf(w, "    ERROR retrieving schema: %v\n", s.schemaErr)
		} else {
			for _, line := range strings.Split(s.schema, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		if len(s.top) > 0 {
			fmt.Fprintf(w, "\n  Top %d by count:\n", len(s.top))
			for _, nc := range s.top {
				fmt.Fprintf(w, "    %-12d %s\n", nc.count, nc.name)
			}
		}
	}

	fmt.Fprintln(w, "\n--- Aggregated Statistics ---")
	fmt.Fprintf(w, "%-20s | %-10s | %-10s | %-10s | %s\n", "Report Type", "Files", "Rows", "Runs", "Errors")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	finalErr := categorizationErrors
	for _, rt := range ordered {
		s := summaries[rt]
		errorStr := ""
		switch {
		case s.schemaErr != nil && s.statsErr != nil:
			errorStr = "Schema & Stats Error"
		case s.schemaErr != nil:
			errorStr = "Schema Error"
		case s.statsErr != nil:
			errorStr = "Stats Error"
		}
		fmt.Fprintf(w, "%-20s | %-10d | %-10d | %-10d | %s\n", rt, len(s.files), s.rows, s.runs, errorStr)
		finalErr = errors.Join(finalErr, s.schemaErr, s.statsErr)
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))

	if finalErr != nil {
		logger.Warn("Inspection completed with errors.", "error", finalErr)
	}
	return finalErr
}

func fileList(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		p = strings.ReplaceAll(p, `\`, `/`)
		quoted[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(p, "'", "''"))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func gatherStats(ctx context.Context, conn *sql.DB, s *typeSummary) error {
	list := fileList(s.files)
	statsSQL := fmt.Sprintf(`SELECT COUNT(*), COUNT(DISTINCT run_id) FROM read_parquet(%s);`, list)
	if err := conn.QueryRowContext(ctx, statsSQL).Scan(&s.rows, &s.runs); err != nil {
		return fmt.Errorf("query stats for %s: %w", s.reportType, err)
	}

	topSQL := fmt.Sprintf(`
        SELECT name, SUM(count) AS total
        FROM read_parquet(%s)
        GROUP BY name
        HAVING SUM(count) > 0
        ORDER BY total DESC, name
        LIMIT %d;`, list, TopRows)
	rows, err := conn.QueryContext(ctx, topSQL)
	if err != nil {
		return fmt.Errorf("query top rows for %s: %w", s.reportType, err)
	}
	defer rows.Close()
	for rows.Next() {
		var nc namedCount
		if err := rows.Scan(&nc.name, &nc.count); err != nil {
			return fmt.Errorf("scan top row for %s: %w", s.reportType, err)
		}
		s.top = append(s.top, nc)
	}
	return rows.Err()
}

func describe(ctx context.Context, conn *sql.DB, filePath string) (string, error) {
	p := strings.ReplaceAll(strings.ReplaceAll(filePath, `\`, `/`), "'", "''")
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet('%s');", p))
	if err != nil {
		return "", fmt.Errorf("query schema for %s: %w", filePath, err)
	}
	defer rows.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "%-12s | %s\n", "Column Name", "Column Type")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for rows.Next() {
		var colName, colType, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := rows.Scan(&colName, &colType, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			return "", fmt.Errorf("scan schema row for %s: %w", filePath, err)
		}
		fmt.Fprintf(&b, "%-12s | %s\n", colName.String, colType.String)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema rows for %s: %w", filePath, err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
