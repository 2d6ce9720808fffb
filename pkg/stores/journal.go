// Package stores persists the audit journal of provisioning runs in a local
// SQLite database.
//
// The journal is history only. Execution decisions always come from live
// Checks against the host; nothing in the engine reads the journal back.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/furrowlabs/furrow/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a queried run does not exist.
var ErrNotFound = errors.New("run not found")

// Journal records runs and step results. It implements engine.Recorder.
type Journal struct {
	db   *sql.DB
	path string
}

// RunRecord is a persisted run row.
type RunRecord struct {
	ID          string
	Instance    string
	State       engine.RunState
	Total       int
	Applied     int
	Skipped     int
	Failed      int
	StartedAt   time.Time
	CompletedAt sql.NullTime
	Duration    time.Duration
}

// StepRecord is a persisted step result row.
type StepRecord struct {
	RunID       string
	Seq         int
	Step        string
	Outcome     engine.Outcome
	Attempts    int
	Detail      string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Open opens (creating if necessary) the journal database at path and runs
// pending migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging journal %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// RunStarted implements engine.Recorder.
func (j *Journal) RunStarted(ctx context.Context, report *engine.RunReport) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, instance, state, total, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		report.ID, report.Instance, string(report.State), report.Summary.Total, report.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// StepCompleted implements engine.Recorder. Results are appended in
// execution order; seq preserves it.
func (j *Journal) StepCompleted(ctx context.Context, runID string, result engine.StepResult) error {
	errText := ""
	if result.Error != nil {
		errText = result.Error.Error()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO step_results
			(run_id, seq, step, outcome, attempts, detail, error, started_at, completed_at, duration_ms)
		VALUES (?, (SELECT COUNT(*) FROM step_results WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, runID,
		result.Step, string(result.Outcome), result.Attempts, result.Detail, errText,
		result.StartedAt.UTC(), result.CompletedAt.UTC(), result.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording step result: %w", err)
	}
	return nil
}

// RunFinished implements engine.Recorder.
func (j *Journal) RunFinished(ctx context.Context, report *engine.RunReport) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, applied = ?, skipped = ?, failed = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?`,
		string(report.State),
		report.Summary.Applied, report.Summary.Skipped, report.Summary.Failed,
		report.CompletedAt.UTC(), report.Duration.Milliseconds(),
		report.ID)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run for an instance.
func (j *Journal) LastRun(ctx context.Context, instance string) (*RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, instance, state, total, applied, skipped, failed, started_at, completed_at, duration_ms
		FROM runs
		WHERE instance = ?
		ORDER BY started_at DESC
		LIMIT 1`, instance)
	return scanRun(row)
}

// ListRuns returns up to limit runs for an instance, newest first.
func (j *Journal) ListRuns(ctx context.Context, instance string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, instance, state, total, applied, skipped, failed, started_at, completed_at, duration_ms
		FROM runs
		WHERE instance = ?
		ORDER BY started_at DESC
		LIMIT ?`, instance, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Steps returns the step results of a run in execution order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, step, outcome, attempts, detail, error, started_at, completed_at, duration_ms
		FROM step_results
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing step results: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var rec StepRecord
		var outcome string
		var durationMS int64
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Step, &outcome, &rec.Attempts,
			&rec.Detail, &rec.Error, &rec.StartedAt, &rec.CompletedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning step result: %w", err)
		}
		rec.Outcome = engine.Outcome(outcome)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var state string
	var durationMS int64
	err := row.Scan(&rec.ID, &rec.Instance, &state, &rec.Total, &rec.Applied,
		&rec.Skipped, &rec.Failed, &rec.StartedAt, &rec.CompletedAt, &durationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	rec.State = engine.RunState(state)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}
