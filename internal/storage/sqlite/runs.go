package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/parity/internal/types"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// CreateRun inserts a new run. ID and StartedAt must be set.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("run start time is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, policy, out_dir, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, string(run.Kind), run.Policy, run.OutDir, formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the final outcome of a run.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *types.RunRecord) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, iterations = ?, pass = ?, min_loops_met = ?, stop_reason = ?
		WHERE id = ?
	`, formatTime(finished), run.Iterations, run.Pass, run.MinLoopsMet, run.StopReason, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// RecordPass stores one pass of a run, replacing an earlier record with the
// same number.
func (s *SQLiteStorage) RecordPass(ctx context.Context, pass *types.PassRecord) error {
	if pass.Number < 1 {
		return fmt.Errorf("pass number must be positive (got %d)", pass.Number)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passes (run_id, number, focus, score, pass, issue_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, number) DO UPDATE SET
			focus = excluded.focus,
			score = excluded.score,
			pass = excluded.pass,
			issue_count = excluded.issue_count,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, pass.RunID, pass.Number, pass.Focus, pass.Score, pass.Pass, pass.IssueCount,
		formatTime(pass.StartedAt), formatTime(pass.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to record pass %d of run %s: %w", pass.Number, pass.RunID, err)
	}
	return nil
}

// GetRun returns one run.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, policy, out_dir, started_at, finished_at, iterations, pass, min_loops_met, stop_reason
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*types.RunRecord, error) {
	query := `
		SELECT id, kind, policy, out_dir, started_at, finished_at, iterations, pass, min_loops_met, stop_reason
		FROM runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// GetPasses returns the passes of a run in order.
func (s *SQLiteStorage) GetPasses(ctx context.Context, runID string) ([]*types.PassRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, number, focus, score, pass, issue_count, started_at, finished_at
		FROM passes
		WHERE run_id = ?
		ORDER BY number ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var passes []*types.PassRecord
	for rows.Next() {
		p := &types.PassRecord{}
		var started, finished string
		if err := rows.Scan(&p.RunID, &p.Number, &p.Focus, &p.Score, &p.Pass, &p.IssueCount, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		if p.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if p.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pass rows: %w", err)
	}
	return passes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.RunRecord, error) {
	run := &types.RunRecord{}
	var kind, started string
	var finished sql.NullString
	err := row.Scan(&run.ID, &kind, &run.Policy, &run.OutDir, &started, &finished,
		&run.Iterations, &run.Pass, &run.MinLoopsMet, &run.StopReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Kind = types.RunKind(kind)
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return run, nil
}
