// File: internal/history/history.go

// Package history keeps a local ledger of finished runs. The per-run JSON
// artifact is overwritten on every run; this store is the durable tail the
// history command reads.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mpellegro/wasend-cli/internal/orchestrator"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	planned     INTEGER NOT NULL,
	sent        INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	stopped     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
	run_id    TEXT NOT NULL REFERENCES runs(run_id),
	row       INTEGER NOT NULL,
	phone     TEXT NOT NULL,
	name      TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	detail    TEXT NOT NULL DEFAULT '',
	attempted TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
`

// Store is a SQLite-backed run ledger.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordRun appends a finished run and its per-contact attempts in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, log orchestrator.RunLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, planned, sent, failed, stopped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.RunID, log.StartedAt, log.FinishedAt, log.Planned, log.Sent, log.Failed, log.Stopped,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, r := range log.Results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attempts (run_id, row, phone, name, outcome, detail, attempted)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			log.RunID, r.Row, r.Phone, r.Name, string(r.Outcome), r.Detail, r.Timestamp,
		); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
	}

	return tx.Commit()
}

// RunSummary is one row of the runs ledger.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Planned    int
	Sent       int
	Failed     int
	Stopped    bool
}

// RecentRuns lists the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, planned, sent, failed, stopped
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt,
			&r.Planned, &r.Sent, &r.Failed, &r.Stopped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Attempts returns the per-contact attempts of one run in send order.
func (s *Store) Attempts(ctx context.Context, runID string) ([]orchestrator.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row, phone, name, outcome, detail, attempted
		 FROM attempts WHERE run_id = ? ORDER BY attempted`, runID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.Result
	for rows.Next() {
		var r orchestrator.Result
		var outcome string
		if err := rows.Scan(&r.Row, &r.Phone, &r.Name, &outcome, &r.Detail, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		r.Outcome = orchestrator.Outcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TotalSentSince sums confirmed sends after the cutover, used to show how
// much of the daily quota is already spent.
func (s *Store) TotalSentSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(sent), 0) FROM runs WHERE started_at >= ?`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum sent: %w", err)
	}
	return n, nil
}
