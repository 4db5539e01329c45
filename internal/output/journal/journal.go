// Package journal records every report in a SQLite database so past
// anomalies can be listed after the process restarts.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/output"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
    id           TEXT PRIMARY KEY,
    generated_at DATETIME NOT NULL,
    band         TEXT NOT NULL,
    reason       TEXT NOT NULL,
    service      TEXT NOT NULL,
    level        TEXT NOT NULL,
    template     TEXT NOT NULL,
    severity     REAL NOT NULL,
    headline     TEXT NOT NULL,
    body         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_service ON reports(service);
`

// tsLayout is fixed width so stored timestamps sort as strings.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultLimit caps Recent when the filter sets no limit.
const DefaultLimit = 100

// Journal is an Output backed by SQLite. Reports are stored untrimmed.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	// One connection keeps an in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Write(ctx context.Context, r model.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	a := r.Anomaly
	_, err = j.db.ExecContext(ctx, `
INSERT OR REPLACE INTO reports (id, generated_at, band, reason, service, level, template, severity, headline, body)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GeneratedAt.UTC().Format(tsLayout), r.Band, string(a.Reason),
		a.Key.Service, string(a.Key.Level), a.Key.Template, a.Severity,
		output.Headline(r), string(body),
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", r.ID, err)
	}
	return nil
}

// Filter narrows Recent. Zero fields match everything.
type Filter struct {
	Service string
	Band    string
	Since   time.Time
	Limit   int
}

// Recent returns stored reports matching f, newest first.
func (j *Journal) Recent(ctx context.Context, f Filter) ([]model.Report, error) {
	var (
		where []string
		args  []any
	)
	if f.Service != "" {
		where = append(where, "service = ?")
		args = append(args, f.Service)
	}
	if f.Band != "" {
		where = append(where, "band = ?")
		args = append(args, f.Band)
	}
	if !f.Since.IsZero() {
		where = append(where, "generated_at >= ?")
		args = append(args, f.Since.UTC().Format(tsLayout))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := "SELECT body FROM reports"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY generated_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		var r model.Report
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("journal: decode: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored reports.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
