package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/relaycheck/internal/verify"
)

// DefaultListLimit bounds ListRuns when the caller does not.
const DefaultListLimit = 20

// GetRun returns the run with the given ID. The returned error wraps
// sql.ErrNoRows when the run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, started_at, finished_at, status, volume, seed,
		       source_sha256, source_lines, target1_lines, target2_lines,
		       split_t1_permille, split_t2_permille, order_preserved, failure
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recent run, optionally filtered by
// scenario name. The returned error wraps sql.ErrNoRows when no run
// matches.
func (s *Store) LatestRun(ctx context.Context, scenario string) (*Run, error) {
	runs, err := s.ListRuns(ctx, scenario, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded: %w", sql.ErrNoRows)
	}
	return &runs[0], nil
}

// ListRuns returns runs newest first, optionally filtered by scenario
// name. A non-positive limit applies DefaultListLimit.
//
// Ordering is deterministic: started_at DESC with the run ID as a
// binary-collated tiebreaker.
func (s *Store) ListRuns(ctx context.Context, scenario string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, scenario, started_at, finished_at, status, volume, seed,
		       source_sha256, source_lines, target1_lines, target2_lines,
		       split_t1_permille, split_t2_permille, order_preserved, failure
		FROM runs
	`
	args := []any{}
	if scenario != "" {
		query += " WHERE scenario = ?"
		args = append(args, scenario)
	}
	query += " ORDER BY started_at DESC, id COLLATE BINARY DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListChecks returns a run's checks in execution order.
//
// Ordering is deterministic: ORDER BY seq ASC, id ASC. Returns an
// empty slice (not nil) when the run has no checks.
func (s *Store) ListChecks(ctx context.Context, runID string) ([]Check, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, name, status, code, detail
		FROM checks
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	checks := []Check{}
	for rows.Next() {
		var c Check
		if err := rows.Scan(&c.RunID, &c.Seq, &c.Name, &c.Status, &c.Code, &c.Detail); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checks: %w", err)
	}
	return checks, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
		seed       string
		t1, t2     int64
		source     int64
		ordered    int
	)
	err := row.Scan(
		&run.ID, &run.Scenario, &startedAt, &finishedAt, &run.Status,
		&run.Volume, &seed, &run.SourceSHA256, &source, &t1, &t2,
		&run.SplitT1Permille, &run.SplitT2Permille, &ordered, &run.Failure,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("started_at: %w", err)
	}
	if finishedAt.Valid {
		run.FinishedAt, err = parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("finished_at: %w", err)
		}
	}

	run.Seed, err = strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	run.Counts = verify.NewLineCounts(source, t1, t2)
	run.OrderPreserved = ordered != 0
	return &run, nil
}

// parseTime reads RFC 3339 text; empty maps to the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
