// Package history persists finished steps and manual execution reports.
package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grovetools/autoreg/errors"
)

// Status is the outcome of one step.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusFailed       Status = "failed"
	StatusInterrupted  Status = "interrupted"
	StatusLaunchFailed Status = "launch_failed"
)

// Execution is one recorded step.
type Execution struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Operation  string    `json:"operation"`
	Step       int       `json:"step"`
	Total      int       `json:"total"`
	Command    string    `json:"command"`
	Status     Status    `json:"status"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Lines      int64     `json:"lines"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time of the step.
func (e Execution) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// ReportEntry is a manual record of work done by a routine.
type ReportEntry struct {
	ID        int64     `json:"id"`
	Routine   string    `json:"routine"`
	User      string    `json:"user"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

// Query filters List.
type Query struct {
	Operation string
	Since     time.Time
	Limit     int
}

// DefaultLimit bounds List when Query.Limit is not set.
const DefaultLimit = 50

// Store is the SQLite-backed history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("chmod history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished step.
func (s *Store) Record(ctx context.Context, e Execution) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	var exitCode any
	if e.ExitCode != nil {
		exitCode = *e.ExitCode
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions(session_id, operation, step, total, command, status, exit_code, lines, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Operation, e.Step, e.Total, e.Command, string(e.Status), exitCode, e.Lines,
		ts(e.StartedAt), ts(e.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// List returns executions newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Execution, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		where []string
		args  []any
	)
	if q.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, q.Operation)
	}
	if !q.Since.IsZero() {
		where = append(where, "finished_at >= ?")
		args = append(args, ts(q.Since))
	}

	query := `SELECT id, session_id, operation, step, total, command, status, exit_code, lines, started_at, finished_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY finished_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e                 Execution
			status            string
			exitCode          sql.NullInt64
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Operation, &e.Step, &e.Total, &e.Command,
			&status, &exitCode, &e.Lines, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Status = Status(status)
		if exitCode.Valid {
			v := int(exitCode.Int64)
			e.ExitCode = &v
		}
		if e.StartedAt, err = parseTS(started); err != nil {
			return nil, err
		}
		if e.FinishedAt, err = parseTS(finished); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddReport stores a manual report entry and returns it with its id.
func (s *Store) AddReport(ctx context.Context, r ReportEntry) (ReportEntry, error) {
	r.Routine = strings.TrimSpace(r.Routine)
	r.User = strings.TrimSpace(r.User)
	if r.Routine == "" || r.User == "" {
		return ReportEntry{}, errors.New(errors.ErrCodeInvalidInput, "routine and user are required")
	}
	if r.Records < 0 {
		return ReportEntry{}, errors.New(errors.ErrCodeInvalidInput, "records must not be negative")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO reports(routine, user, records, created_at) VALUES (?, ?, ?, ?)`,
		r.Routine, r.User, r.Records, ts(r.CreatedAt))
	if err != nil {
		return ReportEntry{}, fmt.Errorf("insert report: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return r, nil
}

// Reports returns report entries newest first.
func (s *Store) Reports(ctx context.Context, limit int) ([]ReportEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, routine, user, records, created_at FROM reports ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []ReportEntry
	for rows.Next() {
		var (
			r       ReportEntry
			created string
		)
		if err := rows.Scan(&r.ID, &r.Routine, &r.User, &r.Records, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if r.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OperationSummary aggregates executions of one operation.
type OperationSummary struct {
	Operation   string    `json:"operation"`
	Runs        int       `json:"runs"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Interrupted int       `json:"interrupted"`
	LastRun     time.Time `json:"last_run"`
}

// Summary aggregates executions finished at or after since, by operation.
func (s *Store) Summary(ctx context.Context, since time.Time) ([]OperationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT operation,
	COUNT(*),
	SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
	SUM(CASE WHEN status IN ('failed','launch_failed') THEN 1 ELSE 0 END),
	SUM(CASE WHEN status = 'interrupted' THEN 1 ELSE 0 END),
	MAX(finished_at)
FROM executions
WHERE finished_at >= ?
GROUP BY operation
ORDER BY operation`, ts(since))
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []OperationSummary
	for rows.Next() {
		var (
			sum  OperationSummary
			last string
		)
		if err := rows.Scan(&sum.Operation, &sum.Runs, &sum.Succeeded, &sum.Failed, &sum.Interrupted, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if sum.LastRun, err = parseTS(last); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// tsLayout has a fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
