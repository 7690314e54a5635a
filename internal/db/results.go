package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brensch/mrtstat/internal/stats"
)

// Run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// StartRun records the beginning of a run.
func StartRun(ctx context.Context, db *sql.DB, runID, catalog string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, catalog, status) VALUES (?, ?, ?, ?)`,
		runID, time.Now().UTC(), catalog, RunRunning)
	if err != nil {
		return fmt.Errorf("failed to record start of run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stamps the end of a run with its final status.
func FinishRun(ctx context.Context, db *sql.DB, runID string, sources int, status string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, sources = ?, status = ? WHERE run_id = ?`,
		time.Now().UTC(), sources, status, runID)
	if err != nil {
		return fmt.Errorf("failed to record end of run %s: %w", runID, err)
	}
	return nil
}

// SaveAttributeCounts writes both report sections for one run and kind in a
// single transaction.
func SaveAttributeCounts(ctx context.Context, db *sql.DB, runID, kind string, counts *stats.AttributeCounts) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for counts: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	sections := []struct {
		query string
		rows  []stats.Row
	}{
		{`INSERT INTO attr_group_counts (run_id, kind, attributes, count, percent) VALUES (?, ?, ?, ?, ?)`, counts.GroupRows()},
		{`INSERT INTO attr_totals (run_id, kind, attribute, count, percent) VALUES (?, ?, ?, ?, ?)`, counts.TotalRows()},
	}
	for _, sec := range sections {
		stmt, err := tx.PrepareContext(ctx, sec.query)
		if err != nil {
			return fmt.Errorf("failed to prepare count insert: %w", err)
		}
		for _, r := range sec.rows {
			if _, err := stmt.ExecContext(ctx, runID, kind, r.Name, int64(r.Count), r.Percent); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert count for %s: %w", r.Name, err)
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit counts for run %s: %w", runID, err)
	}
	return nil
}

// RecentRuns returns up to n completed run ids that saved counts for kind,
// newest first.
func RecentRuns(ctx context.Context, db *sql.DB, kind string, n int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT r.run_id
        FROM runs r
        WHERE r.status = ? AND EXISTS (SELECT 1 FROM attr_totals t WHERE t.run_id = r.run_id AND t.kind = ?)
        ORDER BY r.started_at DESC
        LIMIT ?`, RunComplete, kind, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadTotals returns attribute -> count for one run and kind.
func LoadTotals(ctx context.Context, db *sql.DB, runID, kind string) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT attribute, count FROM attr_totals WHERE run_id = ? AND kind = ?`, runID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals for run %s: %w", runID, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan totals row: %w", err)
		}
		out[name] = count
	}
	return out, rows.Err()
}

// RunTotals holds one run's per-attribute totals.
type RunTotals struct {
	RunID  string
	Totals map[string]int64
}

// LatestTotals loads totals for the n most recent completed runs of kind,
// newest first.
func LatestTotals(ctx context.Context, db *sql.DB, kind string, n int) ([]RunTotals, error) {
	ids, err := RecentRuns(ctx, db, kind, n)
	if err != nil {
		return nil, err
	}
	out := make([]RunTotals, 0, len(ids))
	for _, id := range ids {
		totals, err := LoadTotals(ctx, db, id, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, RunTotals{RunID: id, Totals: totals})
	}
	return out, nil
}
