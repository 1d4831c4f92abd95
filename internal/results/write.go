package results

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/relaycheck/internal/verify"
)

// Run is one harness run's result row.
type Run struct {
	// ID is the run's UUID.
	ID string

	// Scenario is the scenario name the run executed.
	Scenario string

	// StartedAt and FinishedAt bound the run. FinishedAt is zero
	// while the run is in flight.
	StartedAt  time.Time
	FinishedAt time.Time

	// Status is running, passed, or failed.
	Status string

	// Volume and Seed reproduce the generated corpus.
	Volume int
	Seed   uint64

	// SourceSHA256 is the digest of the generated source file.
	SourceSHA256 string

	// Counts is the final record tally. Zero until the run finishes.
	Counts verify.LineCounts

	// SplitT1Permille and SplitT2Permille are the sink split in
	// integer permille.
	SplitT1Permille int64
	SplitT2Permille int64

	// OrderPreserved records the informational order signal.
	OrderPreserved bool

	// Failure is the terminal error message for failed runs.
	Failure string
}

// Check is one verification step's result row.
type Check struct {
	// RunID identifies the owning run.
	RunID string

	// Seq orders checks within a run, starting at 1.
	Seq int

	// Name is the check identity (setup, wait, integrity,
	// distribution).
	Name string

	// Status is passed or failed.
	Status string

	// Code is the machine-readable failure code, empty on pass.
	Code string

	// Detail is the human-readable outcome.
	Detail string
}

// BeginRun inserts the run row in running state. Run IDs are unique;
// inserting a duplicate is a caller bug and returns an error.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, started_at, status, volume, seed)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Scenario,
		formatTime(run.StartedAt),
		StatusRunning,
		run.Volume,
		strconv.FormatUint(run.Seed, 10),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal state: status, timestamps,
// counts, split, and failure message.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, source_sha256 = ?,
		    source_lines = ?, target1_lines = ?, target2_lines = ?,
		    split_t1_permille = ?, split_t2_permille = ?,
		    order_preserved = ?, failure = ?
		WHERE id = ?
	`,
		formatTime(run.FinishedAt),
		run.Status,
		run.SourceSHA256,
		run.Counts.Source,
		run.Counts.Target1,
		run.Counts.Target2,
		run.SplitT1Permille,
		run.SplitT2Permille,
		boolToInt(run.OrderPreserved),
		run.Failure,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %q not found", run.ID)
	}
	return nil
}

// AddCheck inserts one check row.
// Uses ON CONFLICT DO NOTHING for idempotency - re-recording the same
// (run, seq) is silently ignored.
func (s *Store) AddCheck(ctx context.Context, check Check) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (run_id, seq, name, status, code, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		check.RunID,
		check.Seq,
		check.Name,
		check.Status,
		check.Code,
		check.Detail,
	)
	if err != nil {
		return fmt.Errorf("add check: %w", err)
	}
	return nil
}

// formatTime renders a timestamp as RFC 3339 UTC text. The zero time
// renders as empty, which maps to NULL-equivalent handling on read.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
