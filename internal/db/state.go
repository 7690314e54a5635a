package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Event types recorded per source.
const (
	EventDiscovered  = "discovered"
	EventFetchOK     = "fetch_ok"
	EventFetchError  = "fetch_error"
	EventDecodeOK    = "decode_ok"
	EventDecodeFatal = "decode_fatal"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS source_event_id_seq;`
const schemaTablesSQL = `
CREATE TABLE IF NOT EXISTS source_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('source_event_id_seq'),
    run_id          VARCHAR NOT NULL,
    url             VARCHAR NOT NULL,
    kind            VARCHAR NOT NULL,      -- 'update', 'rib'
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    bytes           BIGINT,
    records         BIGINT,
    errors          BIGINT,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_source_event_log_url ON source_event_log (url, kind);
CREATE INDEX IF NOT EXISTS idx_source_event_log_event_time ON source_event_log (event, event_timestamp);

CREATE TABLE IF NOT EXISTS runs (
    run_id      VARCHAR PRIMARY KEY,
    started_at  TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    catalog     VARCHAR,
    sources     BIGINT,
    status      VARCHAR
);

CREATE TABLE IF NOT EXISTS attr_group_counts (
    run_id     VARCHAR NOT NULL,
    kind       VARCHAR NOT NULL,
    attributes VARCHAR NOT NULL,
    count      BIGINT NOT NULL,
    percent    DOUBLE NOT NULL
);

CREATE TABLE IF NOT EXISTS attr_totals (
    run_id    VARCHAR NOT NULL,
    kind      VARCHAR NOT NULL,
    attribute VARCHAR NOT NULL,
    count     BIGINT NOT NULL,
    percent   DOUBLE NOT NULL
);
`

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTablesSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// SourceEvent is one row of the source event log. Zero numeric fields are
// stored as NULL.
type SourceEvent struct {
	RunID    string
	URL      string
	Kind     string
	Event    string
	Bytes    int64
	Records  int
	Errors   int
	Message  string
	Duration time.Duration
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

// LogSourceEvent inserts a new event record into the log.
func LogSourceEvent(ctx context.Context, db *sql.DB, ev SourceEvent) error {
	query := `
        INSERT INTO source_event_log (run_id, url, kind, event, event_timestamp, bytes, records, errors, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	_, err := db.ExecContext(ctx, query,
		ev.RunID,
		ev.URL,
		ev.Kind,
		ev.Event,
		time.Now().UTC(),
		nullInt(ev.Bytes),
		nullInt(int64(ev.Records)),
		nullInt(int64(ev.Errors)),
		sql.NullString{String: ev.Message, Valid: ev.Message != ""},
		nullInt(ev.Duration.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", ev.Event, ev.URL, err)
	}
	return nil
}

// CountEvents returns how many times event was logged in a run.
func CountEvents(ctx context.Context, db *sql.DB, runID, event string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM source_event_log WHERE run_id = ? AND event = ?`, runID, event).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count '%s' events for run %s: %w", event, runID, err)
	}
	return n, nil
}

// DisplaySourceHistory prints the most recent events, newest first.
func DisplaySourceHistory(ctx context.Context, db *sql.DB, w io.Writer, kindFilter, eventFilter string, limit int) error {
	query := `
        SELECT url, kind, event, event_timestamp, message, duration_ms, records, errors
        FROM source_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if kindFilter != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argCounter))
		args = append(args, kindFilter)
		argCounter++
	}
	if eventFilter != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, eventFilter)
		argCounter++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	fmt.Fprintf(w, "--- Source Event History (Limit %d) ---\n", limit)
	fmt.Fprintf(w, "%-70s | %-6s | %-12s | %-25s | %-10s | %s\n", "URL", "Kind", "Event", "Timestamp (UTC)", "DurationMS", "Details")
	fmt.Fprintln(w, strings.Repeat("-", 160))

	count := 0
	for rows.Next() {
		var url, kind, event string
		var timestamp time.Time
		var message sql.NullString
		var durationMs, records, errs sql.NullInt64
		if err := rows.Scan(&url, &kind, &event, &timestamp, &message, &durationMs, &records, &errs); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr := ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}
		details := message.String
		if records.Valid || errs.Valid {
			details = strings.TrimSpace(fmt.Sprintf("%s (records: %d, errors: %d)", details, records.Int64, errs.Int64))
		}

		fmt.Fprintf(w, "%-70s | %-6s | %-12s | %-25s | %-10s | %s\n",
			url, kind, event, timestamp.Format(time.RFC3339), durationStr, details)
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", count)
	return nil
}
