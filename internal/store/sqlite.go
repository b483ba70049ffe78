package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// SQLite is the default history backend, a single local database file.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite creates or opens the history database at path and migrates it
// to the latest schema.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLite{conn: conn, path: path}, nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close(context.Context) error {
	return s.conn.Close()
}

// RecordRun writes the run, its category outcomes and every classification
// in one transaction.
func (s *SQLite) RecordRun(ctx context.Context, report models.Report, classification map[string]models.ClassificationResult) error {
	run := runFromReport(report)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, mode, dry_run, user, started_at, finished_at, starred, excluded,
                  classified, categories, successful, failed, total_repos)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.DryRun, run.User,
		run.StartedAt.Format(time.RFC3339Nano), run.FinishedAt.Format(time.RFC3339Nano),
		run.Starred, run.Excluded, run.Classified, run.Categories, run.Successful, run.Failed, run.TotalRepos,
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for _, row := range categoryRows(report) {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO run_categories (run_id, category, action, success, list_id, repos, description, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, row.Category, row.Action, row.Success, row.ListID, row.Repos, row.Description, row.Error,
		); err != nil {
			return fmt.Errorf("inserting category %q: %w", row.Category, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO classifications (run_id, full_name, category, reason, confidence)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing classification insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for name, c := range classification {
		if _, err := stmt.ExecContext(ctx, run.ID, name, c.Category, c.Reason, c.Confidence); err != nil {
			return fmt.Errorf("inserting classification for %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns up to n runs, newest first.
func (s *SQLite) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT id, mode, dry_run, user, started_at, finished_at, starred, excluded,
       classified, categories, successful, failed, total_repos
FROM runs
ORDER BY started_at DESC
LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Mode, &r.DryRun, &r.User, &started, &finished,
			&r.Starred, &r.Excluded, &r.Classified, &r.Categories, &r.Successful, &r.Failed, &r.TotalRepos); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CategoryBreakdown returns the per-category outcomes of one run.
func (s *SQLite) CategoryBreakdown(ctx context.Context, runID string) ([]CategoryRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT category, action, success, list_id, repos, description, error
FROM run_categories
WHERE run_id = ?
ORDER BY category`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying categories for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []CategoryRow
	for rows.Next() {
		var c CategoryRow
		if err := rows.Scan(&c.Category, &c.Action, &c.Success, &c.ListID, &c.Repos, &c.Description, &c.Error); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
