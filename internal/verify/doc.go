// Package verify proves that a fan-out transfer was lossless.
//
// The pipeline under test splits one newline-delimited source stream
// across two sink files. Records may land in either sink and in any
// order, so correctness cannot be checked by comparing files directly.
// This package proves equivalence between the source and the union of
// the sinks instead.
//
// CHECK ORDER (fail-fast):
//
// 1. Record conservation: the source's record count must equal the sum
// of the sink record counts. Cheap, and the mismatch numbers alone
// usually identify the failure.
//
// 2. Order signal: sink records concatenated in sink order are
// compared element-wise against the source. The result is recorded but
// never fails the pass, since the pipeline is free to reorder.
//
// 3. Byte-multiset reconciliation: a frequency ledger built over the
// source's bytes is drained by each sink's bytes. A sink byte absent
// from the ledger, or a non-empty ledger afterwards, fails the pass.
// This is the authoritative check: it catches corruption that leaves
// record counts intact, such as a single transposed character.
//
// Reconciliation works at byte granularity, not record granularity.
// That choice detects intra-record corruption a record-level multiset
// would miss, but it does not preserve record identity: two sinks each
// legitimately holding the bytes "ab" from unrelated records are
// indistinguishable from one sink holding "ab" twice. The line-count
// gate in step 1 keeps that blind spot narrow.
//
// 4. Reported counts derive from newline occurrences in the raw byte
// buffers, not from the parsed record lists, so numbers in reports
// always match the bytes on disk.
//
// DISTRIBUTION:
//
// A separate fairness check rejects outcomes that are lossless but
// degenerate: a source whose records all vanished, or every record
// funneled into one sink while the other starved. An empty source has
// nothing to distribute and passes trivially. Skew short of total
// starvation is advisory only; the percentage split is surfaced for
// observability and never fails the check.
package verify
