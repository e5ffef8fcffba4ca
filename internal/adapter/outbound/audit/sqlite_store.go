package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/audit"
)

// SQLiteQueryStore is the optional read-side audit supplement (spec.md §4.B
// asks only for an append-only sink; this adds indexed queries over the same
// entries so an operator can ask "how many denies in the last hour" without
// grepping JSONL files). It is never the sole audit sink: wrap it with
// TeeSink alongside a FileStore so a SQLite failure never blocks Append.
type SQLiteQueryStore struct {
	db *sql.DB
}

// NewSQLiteQueryStore opens (creating if needed) a SQLite database at path
// and ensures its schema exists.
func NewSQLiteQueryStore(path string) (*SQLiteQueryStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create audit db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &SQLiteQueryStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	request_id TEXT,
	tool_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	decision TEXT NOT NULL,
	reason TEXT,
	entry_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_entries_decision ON audit_entries(decision);
CREATE INDEX IF NOT EXISTS idx_audit_entries_tool_name ON audit_entries(tool_name);
`

// Append inserts entries. Never load-bearing for the decide() path: callers
// should treat a failure here as loggable, not fatal.
func (s *SQLiteQueryStore) Append(ctx context.Context, entries ...audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit db tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_entries (timestamp, request_id, tool_name, kind, decision, reason, entry_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		blob, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.RequestID,
			e.Action.Name,
			string(e.Action.Kind),
			string(e.Decision),
			e.Reason,
			string(blob),
		); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}

	return tx.Commit()
}

// Flush is a no-op: every Append call commits its own transaction.
func (s *SQLiteQueryStore) Flush(_ context.Context) error { return nil }

// Close closes the underlying database handle.
func (s *SQLiteQueryStore) Close() error { return s.db.Close() }

// Query returns entries matching filter, most recent first.
func (s *SQLiteQueryStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	query := "SELECT entry_json FROM audit_entries WHERE 1=1"
	var args []any

	if !filter.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if !filter.EndTime.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndTime.UTC().Format(time.RFC3339Nano))
	}
	if filter.Decision != "" {
		query += " AND decision = ?"
		args = append(args, filter.Decision)
	}
	if filter.ToolName != "" {
		query += " AND tool_name = ?"
		args = append(args, filter.ToolName)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []audit.Entry
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(blob), &e); err != nil {
			return nil, fmt.Errorf("unmarshal audit entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Stats aggregates entries within [start, end].
func (s *SQLiteQueryStore) Stats(ctx context.Context, start, end time.Time) (audit.Stats, error) {
	stats := audit.Stats{ByTool: map[string]int64{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, decision, COUNT(*)
		FROM audit_entries
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY tool_name, decision
	`, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return audit.Stats{}, fmt.Errorf("query audit stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tool, decision string
		var count int64
		if err := rows.Scan(&tool, &decision, &count); err != nil {
			return audit.Stats{}, fmt.Errorf("scan audit stats row: %w", err)
		}
		stats.TotalCalls += count
		stats.ByTool[tool] += count
		if decision == "allow" {
			stats.Allowed += count
		} else {
			stats.Denied += count
		}
	}
	return stats, rows.Err()
}

var (
	_ audit.QueryStore = (*SQLiteQueryStore)(nil)
)
