package verify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/relaycheck/internal/fsio"
	"github.com/roach88/relaycheck/internal/ledger"
)

// Sink names in pipeline order. All reporting and error messages use
// these identities.
const (
	SinkTarget1 = "target1"
	SinkTarget2 = "target2"
)

// LineCounts is the record tally of one validation pass. Total is
// always Target1 + Target2. Values are never mutated after creation.
type LineCounts struct {
	Source  int64 `json:"source"`
	Target1 int64 `json:"target1"`
	Target2 int64 `json:"target2"`
	Total   int64 `json:"total"`
}

// NewLineCounts builds a LineCounts with Total derived from the sink
// counts.
func NewLineCounts(source, target1, target2 int64) LineCounts {
	return LineCounts{
		Source:  source,
		Target1: target1,
		Target2: target2,
		Total:   target1 + target2,
	}
}

// Split is the advisory fan-out ratio between the sinks.
type Split struct {
	Target1Pct float64 `json:"target1_pct"`
	Target2Pct float64 `json:"target2_pct"`
}

// Split computes the percentage distribution of records across sinks.
// A zero total yields a zero split.
func (c LineCounts) Split() Split {
	if c.Total == 0 {
		return Split{}
	}
	return Split{
		Target1Pct: float64(c.Target1) / float64(c.Total) * 100,
		Target2Pct: float64(c.Target2) / float64(c.Total) * 100,
	}
}

// Permille returns the sink split in integer permille units. Storage
// uses these instead of floats so persisted results compare exactly.
func (c LineCounts) Permille() (target1, target2 int64) {
	if c.Total == 0 {
		return 0, 0
	}
	return c.Target1 * 1000 / c.Total, c.Target2 * 1000 / c.Total
}

// Report is the outcome of a passing integrity check.
type Report struct {
	// Counts is the record tally derived from raw newline counts.
	Counts LineCounts

	// OrderPreserved records whether the sinks, concatenated in sink
	// order, reproduce the source record order exactly. Informational
	// only; the pipeline is free to reorder.
	OrderPreserved bool

	// Raw byte sizes of the inputs, for reporting.
	SourceBytes  int64
	Target1Bytes int64
	Target2Bytes int64
}

// Checker runs integrity and distribution validation for one scenario.
// Validation passes run sequentially; a Checker holds no per-pass
// state and may be reused.
type Checker struct {
	reader fsio.Reader
	logger *slog.Logger
}

// Option allows configuration of checker collaborators.
type Option func(*Checker)

// WithReader replaces the file reader. Tests use in-memory readers.
func WithReader(r fsio.Reader) Option {
	return func(c *Checker) {
		c.reader = r
	}
}

// WithLogger sets the logger for check progress and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker reading from the local filesystem.
func New(opts ...Option) *Checker {
	c := &Checker{
		reader: fsio.Local{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Integrity proves record-multiset equivalence between the source and
// the union of the two sinks.
//
// Checks run in fail-fast order: record-count conservation first, then
// byte-multiset reconciliation. Order preservation is recorded in the
// report but never fails the pass. An empty source with empty sinks is
// valid and yields zero counts.
func (c *Checker) Integrity(ctx context.Context, sourcePath string, sinkPaths []string) (*Report, error) {
	if len(sinkPaths) != 2 {
		return nil, fmt.Errorf("integrity check requires exactly 2 sink paths, got %d", len(sinkPaths))
	}

	paths := append([]string{sourcePath}, sinkPaths...)
	contents := make([][]byte, len(paths))

	// The reads are independent, so issue them in parallel.
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			data, err := c.reader.ReadFile(gctx, path)
			if err != nil {
				return err
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	source := contents[0]
	sinks := contents[1:]

	sourceLines := fsio.SplitRecords(source)
	sinkLines := make([][]string, len(sinks))
	var sinkLineSum int64
	for i, content := range sinks {
		sinkLines[i] = fsio.SplitRecords(content)
		sinkLineSum += int64(len(sinkLines[i]))
	}

	if int64(len(sourceLines)) != sinkLineSum {
		c.logger.Error("record count not conserved",
			"source_lines", len(sourceLines),
			"sink_lines", sinkLineSum)
		return nil, NewLineCountError(int64(len(sourceLines)), sinkLineSum)
	}

	ordered := orderPreserved(sourceLines, sinkLines)

	// A zero-byte source is valid; the conservation gate above has
	// already forced the sinks empty, so there is nothing to reconcile.
	if len(source) > 0 {
		if err := c.reconcile(source, sinks); err != nil {
			return nil, err
		}
	}

	report := &Report{
		Counts: NewLineCounts(
			fsio.CountNewlines(source),
			fsio.CountNewlines(sinks[0]),
			fsio.CountNewlines(sinks[1]),
		),
		OrderPreserved: ordered,
		SourceBytes:    int64(len(source)),
		Target1Bytes:   int64(len(sinks[0])),
		Target2Bytes:   int64(len(sinks[1])),
	}

	c.logger.Info("integrity check passed",
		"source", report.Counts.Source,
		"target1", report.Counts.Target1,
		"target2", report.Counts.Target2,
		"order_preserved", report.OrderPreserved)
	return report, nil
}

// reconcile drains a ledger built over the source bytes with each
// sink's bytes. On failure it runs a second, non-destructive diff pass
// against a snapshot taken before subtraction to name the imbalanced
// tokens; the drained ledger itself cannot say which token failed.
func (c *Checker) reconcile(source []byte, sinks [][]byte) error {
	sourceLedger := ledger.Build(source)
	working := sourceLedger.Clone()

	for i, content := range sinks {
		if working.Subtract(content) {
			continue
		}
		sink := SinkName(i)
		imbalances := ledger.Diff(sourceLedger, mergedLedger(sinks))
		c.logger.Error("reconciliation failed: sink bytes exceed source",
			"sink", sink,
			"imbalanced_tokens", len(imbalances))
		return NewReconciliationError(sink,
			"sink content contains bytes the source never produced", imbalances)
	}

	if residue := working.Residue(); residue > 0 {
		imbalances := ledger.Diff(sourceLedger, mergedLedger(sinks))
		c.logger.Error("reconciliation failed: source bytes unaccounted",
			"residue_bytes", residue,
			"imbalanced_tokens", len(imbalances))
		return NewReconciliationError("",
			fmt.Sprintf("%d source bytes never arrived at any sink", residue), imbalances)
	}
	return nil
}

// Distribution asserts fan-out fairness over the counts of a completed
// integrity pass.
//
// A source that produced records but yielded a zero total fails: an
// empty outcome is never acceptable when there was input. An empty
// source passes trivially. With more than one record, a sink that
// received nothing fails the check by name. A single record cannot
// distribute, so it is exempt. Skew short of starvation passes; the
// returned Split is advisory.
func (c *Checker) Distribution(counts LineCounts) (Split, error) {
	if counts.Total == 0 {
		if counts.Source == 0 {
			c.logger.Info("distribution check passed", "records", 0)
			return Split{}, nil
		}
		c.logger.Error("distribution check failed: no records processed")
		return Split{}, NewNothingProcessedError(counts)
	}
	if counts.Total > 1 {
		if counts.Target1 == 0 {
			c.logger.Error("distribution check failed: sink starved",
				"sink", SinkTarget1, "total", counts.Total)
			return Split{}, NewStarvationError(SinkTarget1, counts)
		}
		if counts.Target2 == 0 {
			c.logger.Error("distribution check failed: sink starved",
				"sink", SinkTarget2, "total", counts.Total)
			return Split{}, NewStarvationError(SinkTarget2, counts)
		}
	}

	split := counts.Split()
	c.logger.Info("distribution check passed",
		"target1_pct", fmt.Sprintf("%.1f", split.Target1Pct),
		"target2_pct", fmt.Sprintf("%.1f", split.Target2Pct))
	return split, nil
}

// SinkName maps a sink index to its pipeline identity.
func SinkName(i int) string {
	return fmt.Sprintf("target%d", i+1)
}

// orderPreserved reports whether the sink records, concatenated in
// sink order, equal the source records element-wise. Callers ensure
// the total lengths already match.
func orderPreserved(source []string, sinks [][]string) bool {
	i := 0
	for _, lines := range sinks {
		for _, line := range lines {
			if i >= len(source) || source[i] != line {
				return false
			}
			i++
		}
	}
	return i == len(source)
}

// mergedLedger accumulates every sink's bytes into one ledger for the
// diagnostic diff pass.
func mergedLedger(sinks [][]byte) ledger.Ledger {
	merged := make(ledger.Ledger)
	for _, content := range sinks {
		merged.Accumulate(content)
	}
	return merged
}
