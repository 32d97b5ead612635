package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateRun starts a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, label string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        generateID(),
		Label:     label,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	s.logger.Debug("creating run", "id", run.ID, "label", label)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Label, string(run.Status), toMillis(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), toMillis(time.Now().UTC()), errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, status, started_at, completed_at, error FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, up to limit (all when limit <= 0).
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, status, started_at, completed_at, error FROM runs
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// RecordResult stores the outcome of one recipe entry. An empty ID is generated.
func (s *SQLiteStore) RecordResult(ctx context.Context, r *ResultRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if r.ID == "" {
		r.ID = generateID()
	}

	dims, err := json.Marshal(nonNil(r.Dims))
	if err != nil {
		return fmt.Errorf("failed to encode dims: %w", err)
	}
	shape, err := json.Marshal(nonNil(r.Shape))
	if err != nil {
		return fmt.Errorf("failed to encode shape: %w", err)
	}
	var errVal sql.NullString
	if r.Error != "" {
		errVal = sql.NullString{String: r.Error, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO result_runs (id, run_id, name, position, status, dims, shape, valid_cells, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.Name, r.Position, string(r.Status), string(dims), string(shape),
		r.ValidCells, r.Duration.Milliseconds(), errVal,
	)
	if err != nil {
		return fmt.Errorf("failed to record result %q: %w", r.Name, err)
	}
	return nil
}

// ListResults returns the results of a run in recipe order.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*ResultRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, position, status, dims, shape, valid_cells, duration_ms, error
		 FROM result_runs WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*ResultRun
	for rows.Next() {
		var (
			r           ResultRun
			status      string
			dims, shape string
			durationMS  int64
			errVal      sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Name, &r.Position, &status, &dims, &shape,
			&r.ValidCells, &durationMS, &errVal); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Status = ResultStatus(status)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Error = errVal.String
		if err := json.Unmarshal([]byte(dims), &r.Dims); err != nil {
			return nil, fmt.Errorf("failed to decode dims of %q: %w", r.Name, err)
		}
		if err := json.Unmarshal([]byte(shape), &r.Shape); err != nil {
			return nil, fmt.Errorf("failed to decode shape of %q: %w", r.Name, err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run         Run
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		errVal      sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Label, &status, &startedAt, &completedAt, &errVal); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		run.CompletedAt = &t
	}
	run.Error = errVal.String
	return &run, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
