package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	entity     TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at   TEXT NOT NULL,
	added      INTEGER NOT NULL,
	updated    INTEGER NOT NULL,
	retained   INTEGER NOT NULL,
	total      INTEGER NOT NULL,
	errors     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS ingest_runs_entity ON ingest_runs(entity, started_at);
`

// Run is one recorded ingestion run.
type Run struct {
	ID        int64          `json:"id"`
	Entity    string         `json:"entity"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Added     int            `json:"added"`
	Updated   int            `json:"updated"`
	Retained  int            `json:"retained"`
	Total     int            `json:"total"`
	Errors    map[string]int `json:"errors,omitempty"`
}

// History stores run outcomes in SQLite so past runs stay queryable
// after the log files rotate away.
type History struct {
	db *sql.DB
}

// OpenHistory opens (or creates) the history database at path with the
// WAL pragmas used everywhere else.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("runlog: history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open history: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("runlog: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: history schema: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Close() error { return h.db.Close() }

// Record inserts one finished run.
func (h *History) Record(ctx context.Context, r Run) error {
	errsJSON, err := json.Marshal(r.Errors)
	if err != nil {
		return fmt.Errorf("runlog: encode errors: %w", err)
	}
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (entity, started_at, ended_at, added, updated, retained, total, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Entity,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.EndedAt.UTC().Format(time.RFC3339),
		r.Added, r.Updated, r.Retained, r.Total,
		string(errsJSON))
	if err != nil {
		return fmt.Errorf("runlog: insert run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, entity, started_at, ended_at, added, updated, retained, total, errors
		 FROM ingest_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, ended, errsJSON string
		if err := rows.Scan(&r.ID, &r.Entity, &started, &ended,
			&r.Added, &r.Updated, &r.Retained, &r.Total, &errsJSON); err != nil {
			return nil, fmt.Errorf("runlog: scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.EndedAt, _ = time.Parse(time.RFC3339, ended)
		if errsJSON != "" && errsJSON != "null" {
			_ = json.Unmarshal([]byte(errsJSON), &r.Errors)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
