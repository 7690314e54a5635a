// Package analyser compares attribute statistics between the two most
// recent runs stored in the state database.
package analyser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/brensch/mrtstat/internal/db"
	"github.com/brensch/mrtstat/internal/mrt"
)

// DefaultTopGroups bounds the group changes listed per kind.
const DefaultTopGroups = 10

// Change is one name's count in the previous and latest run.
type Change struct {
	Name     string
	Previous int64
	Latest   int64
}

func (c Change) Delta() int64 { return c.Latest - c.Previous }

// Comparison holds the analysis of one kind. PreviousRun is empty when
// only one run exists, in which case every Previous is zero.
type Comparison struct {
	Kind        string
	LatestRun   string
	PreviousRun string
	Totals      []Change
	Groups      []Change
}

// Compare builds the comparison for kind. It returns nil if no completed
// run has counts for kind.
func Compare(ctx context.Context, conn *sql.DB, kind string, topGroups int) (*Comparison, error) {
	runs, err := db.LatestTotals(ctx, conn, kind, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}

	cmp := &Comparison{Kind: kind, LatestRun: runs[0].RunID}
	prev := map[string]int64{}
	if len(runs) > 1 {
		cmp.PreviousRun = runs[1].RunID
		prev = runs[1].Totals
	}
	for _, t := range mrt.KnownAttrTypes {
		name := t.String()
		c := Change{Name: name, Previous: prev[name], Latest: runs[0].Totals[name]}
		if c.Previous == 0 && c.Latest == 0 {
			continue
		}
		cmp.Totals = append(cmp.Totals, c)
	}

	cmp.Groups, err = groupChanges(ctx, conn, kind, cmp.LatestRun, cmp.PreviousRun, topGroups)
	if err != nil {
		return nil, err
	}
	return cmp, nil
}

func groupChanges(ctx context.Context, conn *sql.DB, kind, latest, previous string, limit int) ([]Change, error) {
	query := `
    WITH cur AS (SELECT attributes, count FROM attr_group_counts WHERE run_id = ? AND kind = ?),
         prev AS (SELECT attributes, count FROM attr_group_counts WHERE run_id = ? AND kind = ?)
    SELECT COALESCE(cur.attributes, prev.attributes) AS attributes,
           COALESCE(prev.count, 0) AS previous,
           COALESCE(cur.count, 0) AS latest
    FROM cur FULL OUTER JOIN prev ON cur.attributes = prev.attributes
    ORDER BY abs(COALESCE(cur.count, 0) - COALESCE(prev.count, 0)) DESC, 1
    LIMIT ?;`
	rows, err := conn.QueryContext(ctx, query, latest, kind, previous, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("query group changes for %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Name, &c.Previous, &c.Latest); err != nil {
			return nil, fmt.Errorf("scan group change row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RunAnalysis prints a comparison for each kind.
func RunAnalysis(ctx context.Context, conn *sql.DB, w io.Writer, logger *slog.Logger) error {
	logger.Info("--- Starting run comparison ---")
	var analysisErrors error
	for _, kind := range []string{"update", "rib"} {
		cmp, err := Compare(ctx, conn, kind, DefaultTopGroups)
		if err != nil {
			logger.Error("Comparison failed", "kind", kind, "error", err)
			analysisErrors = errors.Join(analysisErrors, err)
			continue
		}
		if cmp == nil {
			logger.Info("No completed runs to analyse", "kind", kind)
			fmt.Fprintf(w, "\n=== %s: no completed runs ===\n", kind)
			continue
		}
		writeComparison(w, cmp)
	}
	logger.Info("--- Run comparison finished ---")
	return analysisErrors
}

func writeComparison(w io.Writer, cmp *Comparison) {
	prev := cmp.PreviousRun
	if prev == "" {
		prev = "(none)"
	}
	fmt.Fprintf(w, "\n=== %s: %s vs %s ===\n", cmp.Kind, cmp.LatestRun, prev)
	fmt.Fprintf(w, "%-45s | %-12s | %-12s | %-12s | %s\n", "Attribute", "Previous", "Latest", "Delta", "Change")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, c := range cmp.Totals {
		fmt.Fprintf(w, "%-45s | %-12d | %-12d | %-12d | %s\n", c.Name, c.Previous, c.Latest, c.Delta(), percentChange(c))
	}

	fmt.Fprintf(w, "\nLargest group changes:\n")
	for _, c := range cmp.Groups {
		fmt.Fprintf(w, "  %+-12d %s\n", c.Delta(), c.Name)
	}
}

func percentChange(c Change) string {
	if c.Previous == 0 {
		return "new"
	}
	return fmt.Sprintf("%+.2f%%", 100*float64(c.Delta())/float64(c.Previous))
}
