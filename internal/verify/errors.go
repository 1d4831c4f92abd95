package verify

import (
	"errors"
	"fmt"

	"github.com/roach88/relaycheck/internal/ledger"
)

// CheckError represents a failed validation check.
//
// Check failures include:
//   - Line count mismatch: records were lost or duplicated in bulk
//   - Reconciliation failure: byte content differs between source and sinks
//   - Nothing processed: no records reached any sink
//   - Sink starved: the fan-out funneled everything into one sink
//
// CheckError carries the counts and token imbalances needed to
// diagnose a failure without re-running the scenario.
type CheckError struct {
	// Code identifies the failure category.
	Code CheckErrorCode

	// Message is a human-readable description.
	Message string

	// SourceLines and SinkLines carry both totals (for line count
	// mismatches).
	SourceLines int64
	SinkLines   int64

	// Sink names the offending sink (for reconciliation failures
	// attributable to one sink, and for starvation).
	Sink string

	// Counts is the tally under judgment (for distribution failures).
	Counts LineCounts

	// Imbalances lists the per-token surpluses and deficits found by
	// the diagnostic diff pass (for reconciliation failures).
	Imbalances []ledger.Imbalance
}

// CheckErrorCode categorizes validation failures.
type CheckErrorCode string

const (
	// ErrCodeLineCountMismatch indicates the source and sink record
	// counts disagree.
	ErrCodeLineCountMismatch CheckErrorCode = "LINE_COUNT_MISMATCH"

	// ErrCodeReconciliation indicates the byte multisets of source
	// and sinks differ. This is the strongest correctness signal.
	ErrCodeReconciliation CheckErrorCode = "RECONCILIATION_FAILED"

	// ErrCodeNothingProcessed indicates the pipeline produced no
	// records at all.
	ErrCodeNothingProcessed CheckErrorCode = "NOTHING_PROCESSED"

	// ErrCodeSinkStarved indicates one sink received zero records
	// while more than one record existed.
	ErrCodeSinkStarved CheckErrorCode = "SINK_STARVED"
)

// Error implements the error interface.
func (e *CheckError) Error() string {
	switch e.Code {
	case ErrCodeLineCountMismatch:
		return fmt.Sprintf("%s: %s (source=%d, sinks=%d)",
			e.Code, e.Message, e.SourceLines, e.SinkLines)
	case ErrCodeReconciliation:
		if e.Sink != "" {
			return fmt.Sprintf("%s: %s (sink=%s, imbalanced_tokens=%d)",
				e.Code, e.Message, e.Sink, len(e.Imbalances))
		}
		return fmt.Sprintf("%s: %s (imbalanced_tokens=%d)",
			e.Code, e.Message, len(e.Imbalances))
	case ErrCodeSinkStarved:
		return fmt.Sprintf("%s: %s (sink=%s, total=%d)",
			e.Code, e.Message, e.Sink, e.Counts.Total)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsLineCountMismatch returns true if the error is a line count mismatch.
// Uses errors.As to handle wrapped errors.
func IsLineCountMismatch(err error) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeLineCountMismatch
	}
	return false
}

// IsReconciliationFailure returns true if the error is a multiset
// reconciliation failure.
// Uses errors.As to handle wrapped errors.
func IsReconciliationFailure(err error) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeReconciliation
	}
	return false
}

// IsNothingProcessed returns true if the error reports an empty outcome.
// Uses errors.As to handle wrapped errors.
func IsNothingProcessed(err error) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeNothingProcessed
	}
	return false
}

// IsStarvation returns true if the error reports a starved sink.
// Uses errors.As to handle wrapped errors.
func IsStarvation(err error) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeSinkStarved
	}
	return false
}

// NewLineCountError creates a CheckError for a conservation failure,
// carrying both totals.
func NewLineCountError(sourceLines, sinkLines int64) *CheckError {
	return &CheckError{
		Code:        ErrCodeLineCountMismatch,
		Message:     "record count not conserved across sinks",
		SourceLines: sourceLines,
		SinkLines:   sinkLines,
	}
}

// NewReconciliationError creates a CheckError for a multiset failure.
// Sink may be empty when the failure is residue left after all
// subtractions rather than an overdraw by one sink.
func NewReconciliationError(sink, message string, imbalances []ledger.Imbalance) *CheckError {
	return &CheckError{
		Code:       ErrCodeReconciliation,
		Message:    message,
		Sink:       sink,
		Imbalances: imbalances,
	}
}

// NewNothingProcessedError creates a CheckError for a zero-record
// outcome.
func NewNothingProcessedError(counts LineCounts) *CheckError {
	return &CheckError{
		Code:    ErrCodeNothingProcessed,
		Message: "no records reached any sink",
		Counts:  counts,
	}
}

// NewStarvationError creates a CheckError naming the starved sink.
func NewStarvationError(sink string, counts LineCounts) *CheckError {
	return &CheckError{
		Code:    ErrCodeSinkStarved,
		Message: "sink received no records while others did",
		Sink:    sink,
		Counts:  counts,
	}
}
