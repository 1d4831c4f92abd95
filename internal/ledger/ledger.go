// Package ledger implements the byte-multiset accounting that backs
// fan-out integrity verification.
//
// A Ledger counts how many times each byte occurs in a source payload.
// Subtracting every sink's payload must drain the ledger exactly: any
// byte a sink carries that the source never emitted fails the subtraction,
// and any count left over afterwards means data was lost. Counting at byte
// granularity (rather than whole records) means a single transposed
// character inside a record is detected even when record counts agree.
//
// Granularity trade-off: byte-level counting does not preserve record
// identity. Two sinks that legitimately carry the bytes "ab" from
// unrelated records are indistinguishable from one sink carrying "ab"
// twice. Aggregate byte content is the invariant being proven, combined
// with the record-count conservation check performed by the verify
// package.
//
// A Ledger is exclusively owned by one verification pass. It is built,
// drained, and discarded within a single call; nothing retains or shares
// it, so no locking is needed.
package ledger

import (
	"fmt"
	"sort"
)

// Ledger maps a byte to its remaining multiplicity. Counts are int64 so
// that inputs of millions of records times dozens of bytes per record
// stay far below any overflow ceiling. Zero-count entries are removed
// rather than stored.
type Ledger map[byte]int64

// Build returns a ledger counting every byte of content. An empty
// content yields an empty (but non-nil) ledger.
func Build(content []byte) Ledger {
	l := make(Ledger)
	l.Accumulate(content)
	return l
}

// Accumulate adds every byte of content to the ledger.
func (l Ledger) Accumulate(content []byte) {
	for _, b := range content {
		l[b]++
	}
}

// Subtract decrements the ledger by every byte of content, in place.
//
// It returns false the moment a byte is absent (count already zero or
// never present). Decrements applied before the failing byte are NOT
// rolled back: a false result is terminal and the caller must fail the
// whole reconciliation. The in-place mutation is what keeps a full pass
// linear in the input size; pinpointing the offending byte afterwards is
// the job of Diff over a pre-subtraction snapshot, not of this method.
func (l Ledger) Subtract(content []byte) bool {
	for _, b := range content {
		n, ok := l[b]
		if !ok {
			return false
		}
		if n == 1 {
			delete(l, b)
		} else {
			l[b] = n - 1
		}
	}
	return true
}

// Clone returns an independent copy of the ledger. Taken before
// subtraction begins, the copy is the snapshot Diff needs to name the
// tokens that went missing or appeared from nowhere.
func (l Ledger) Clone() Ledger {
	c := make(Ledger, len(l))
	for b, n := range l {
		c[b] = n
	}
	return c
}

// Residue returns the sum of all remaining multiplicities. A fully
// reconciled ledger has residue zero.
func (l Ledger) Residue() int64 {
	var sum int64
	for _, n := range l {
		sum += n
	}
	return sum
}

// Len returns the number of distinct bytes with a non-zero count.
func (l Ledger) Len() int {
	return len(l)
}

// Imbalance reports one byte whose source and sink multiplicities
// disagree. Source and Sinks are the absolute counts on each side.
type Imbalance struct {
	Token  byte
	Source int64
	Sinks  int64
}

// Delta returns the sink surplus: positive when the sinks carry more of
// the token than the source emitted, negative when some went missing.
func (i Imbalance) Delta() int64 {
	return i.Sinks - i.Source
}

func (i Imbalance) String() string {
	return fmt.Sprintf("%s: source=%d sinks=%d (%+d)", FormatToken(i.Token), i.Source, i.Sinks, i.Delta())
}

// Diff compares a source ledger against a sink ledger and returns every
// token whose counts disagree, ordered by byte value. Both ledgers are
// read-only to this function; it is the non-destructive diagnostic pass
// run after Subtract has already failed.
func Diff(source, sinks Ledger) []Imbalance {
	var out []Imbalance
	for b, n := range source {
		if sinks[b] != n {
			out = append(out, Imbalance{Token: b, Source: n, Sinks: sinks[b]})
		}
	}
	for b, n := range sinks {
		if _, ok := source[b]; !ok {
			out = append(out, Imbalance{Token: b, Source: 0, Sinks: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// FormatToken renders a byte for diagnostics: printable ASCII as a
// quoted character, everything else as hex.
func FormatToken(b byte) string {
	if b >= 0x21 && b <= 0x7e {
		return fmt.Sprintf("%q", string(b))
	}
	return fmt.Sprintf("0x%02x", b)
}
