package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a run ID has no row.
var ErrNotFound = errors.New("run not found")

// BeginRun inserts a running row for run. StartedAt defaults to now.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, input_path, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.Mode, StatusRunning, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordStage appends a stage outcome to its run.
func (s *Store) RecordStage(ctx context.Context, stage Stage) error {
	if stage.StartedAt.IsZero() {
		stage.StartedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO stages (run_id, seq, name, status, input_path, output_path, elapsed_ms, error_message, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stage.RunID, stage.Seq, stage.Name, stage.Status,
		nullableString(stage.Input), nullableString(stage.Output),
		stage.Elapsed.Milliseconds(), nullableString(stage.Error), formatTime(stage.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert stage %s: %w", stage.Name, err)
	}
	return nil
}

// Finish records the terminal state of a run.
func (s *Store) Finish(ctx context.Context, id string, status Status, output, errMsg, hint string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish run %s: status %q is not terminal", id, status)
	}
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, output_path = ?, error_message = ?, error_hint = ?, finished_at = ? WHERE id = ?`,
		status, nullableString(output), nullableString(errMsg), nullableString(hint), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, input_path, output_path, mode, status, error_message, error_hint, started_at, finished_at`

// GetRun loads a run and its stages. A unique ID prefix is accepted.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, id+"%", id)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	runs, err := collectRuns(rows)
	if err != nil {
		return nil, err
	}
	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	case len(runs) > 1 && runs[0].ID != id:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
	run := runs[0]
	stages, err := s.stages(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Stages = stages
	return &run, nil
}

// ListRuns returns the most recent runs first. An empty status matches all.
func (s *Store) ListRuns(ctx context.Context, limit int, status Status) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return collectRuns(rows)
}

// Stats returns a count of runs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// MarkInterrupted fails runs still marked running that started before cutoff.
// These are left behind by processes that were killed mid-run.
func (s *Store) MarkInterrupted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE status = ? AND started_at < ?`,
		StatusFailed, "interrupted", formatTime(time.Now()), StatusRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// PruneBefore deletes finished runs that started before cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM runs WHERE status != ? AND started_at < ?`,
		StatusRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) stages(ctx context.Context, runID string) ([]Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, name, status, input_path, output_path, elapsed_ms, error_message, started_at
         FROM stages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		var (
			stage              Stage
			input, output, msg sql.NullString
			elapsedMS          int64
			startedRaw         string
		)
		if err := rows.Scan(&stage.RunID, &stage.Seq, &stage.Name, &stage.Status,
			&input, &output, &elapsedMS, &msg, &startedRaw); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stage.Input = input.String
		stage.Output = output.String
		stage.Error = msg.String
		stage.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if started, err := parseTimeString(startedRaw); err == nil {
			stage.StartedAt = started
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

func collectRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run                  Run
		output, errMsg, hint sql.NullString
		startedRaw           string
		finishedRaw          sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.Input, &output, &run.Mode, &run.Status,
		&errMsg, &hint, &startedRaw, &finishedRaw); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Output = output.String
	run.Error = errMsg.String
	run.Hint = hint.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
