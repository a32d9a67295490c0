package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned by ReadEvents for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// timeLayout keeps a fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded scenario execution.
type Run struct {
	ID        string
	Scenario  string
	Seed      uint64
	Passed    bool
	Settled   bool
	EndTime   int64
	Failures  int
	Residual  int
	StartedAt time.Time
}

// Event is one severity record logged during a run.
type Event struct {
	Seq     int
	Time    int64
	Level   string
	Source  string
	Kind    string
	Message string
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// WriteRun inserts a run and its events in one transaction. An empty run.ID
// is filled with NewRunID; a zero StartedAt with the current time. Event
// sequence numbers are assigned from slice order. Returns the stored run.
func (s *Store) WriteRun(ctx context.Context, run Run, events []Event) (Run, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return run, fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, seed, passed, settled, end_time, failures, residual, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Scenario,
		int64(run.Seed),
		boolToInt(run.Passed),
		boolToInt(run.Settled),
		run.EndTime,
		run.Failures,
		run.Residual,
		run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return run, fmt.Errorf("write run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, time, level, source, kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return run, fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		if _, err := stmt.ExecContext(ctx, run.ID, i+1, ev.Time, ev.Level, ev.Source, ev.Kind, ev.Message); err != nil {
			return run, fmt.Errorf("write event %d of run %s: %w", i+1, run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return run, fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return run, nil
}

// ListRuns returns recorded runs, newest first. An empty scenario lists every
// scenario; limit <= 0 means no limit.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, scenario string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, seed, passed, settled, end_time, failures, residual, started_at
		FROM runs
		WHERE ? = '' OR scenario = ?
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, scenario, scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, seed, passed, settled, end_time, failures, residual, started_at
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ReadEvents returns a run's events in logging order.
// Returns ErrRunNotFound if the run does not exist; a run with no events
// yields an empty slice.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]Event, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, time, level, source, kind, message
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Seq, &ev.Time, &ev.Level, &ev.Source, &ev.Kind, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run             Run
		seed            int64
		passed, settled int
		startedAt       string
	)
	err := row.Scan(&run.ID, &run.Scenario, &seed, &passed, &settled,
		&run.EndTime, &run.Failures, &run.Residual, &startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.Seed = uint64(seed)
	run.Passed = passed != 0
	run.Settled = settled != 0
	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return run, fmt.Errorf("parse started_at of run %s: %w", run.ID, err)
	}
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
