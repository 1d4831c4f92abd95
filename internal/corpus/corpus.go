// Package corpus generates deterministic newline-delimited input for
// pipeline scenarios.
//
// Generation is seeded: the same Spec always produces byte-identical
// output, so a scenario's source digest can be asserted across runs
// and machines. Records carry a sequential index prefix followed by a
// pseudo-random payload, which makes every record unique and keeps the
// byte multiset sensitive to any single-record corruption.
package corpus

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
)

// DefaultRecordBytes is the record length used when a Spec leaves
// RecordBytes zero, terminator included.
const DefaultRecordBytes = 64

// recordPrefixLen is len("rec-00000000-").
const recordPrefixLen = 13

// MinRecordBytes is the smallest usable record length: the index
// prefix, at least one payload byte, and the terminator.
const MinRecordBytes = recordPrefixLen + 2

// payload alphabet is lowercase plus digits so generated bytes never
// collide with marker characters used elsewhere
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Spec describes one generated corpus.
type Spec struct {
	// Volume is the number of records to generate.
	Volume int

	// Seed drives the payload generator. Equal seeds produce equal
	// corpora.
	Seed uint64

	// RecordBytes is the total length of each record including the
	// trailing newline. Zero means DefaultRecordBytes.
	RecordBytes int
}

func (s Spec) recordBytes() int {
	if s.RecordBytes == 0 {
		return DefaultRecordBytes
	}
	return s.RecordBytes
}

// MaxVolume keeps the zero-padded index at exactly 8 digits so every
// record has the same length.
const MaxVolume = 100000000

// validate rejects specs that cannot produce well-formed records.
func (s Spec) validate() error {
	if s.Volume < 0 {
		return fmt.Errorf("corpus volume must be >= 0, got %d", s.Volume)
	}
	if s.Volume > MaxVolume {
		return fmt.Errorf("corpus volume must be <= %d, got %d", MaxVolume, s.Volume)
	}
	if s.RecordBytes != 0 && s.RecordBytes < MinRecordBytes {
		return fmt.Errorf("corpus record length must be >= %d bytes, got %d", MinRecordBytes, s.RecordBytes)
	}
	return nil
}

// Stats summarizes a generated corpus.
type Stats struct {
	// Records is the number of records written.
	Records int64

	// Bytes is the total byte length including terminators.
	Bytes int64

	// SHA256 is the hex digest of the full byte stream.
	SHA256 string
}

// Generate writes spec.Volume records to w and returns their stats.
//
// Output is a pure function of the seed and record length. Records
// look like "rec-00000042-kq3x...\n" and all share the configured
// length.
func Generate(w io.Writer, spec Spec) (*Stats, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	hash := sha256.New()
	bw := bufio.NewWriter(io.MultiWriter(w, hash))
	rng := rand.New(rand.NewPCG(spec.Seed, 0))

	payloadLen := spec.recordBytes() - recordPrefixLen - 1
	payload := make([]byte, payloadLen)

	var written int64
	for i := 0; i < spec.Volume; i++ {
		for j := range payload {
			payload[j] = alphabet[rng.IntN(len(alphabet))]
		}
		n, err := fmt.Fprintf(bw, "rec-%08d-%s\n", i, payload)
		if err != nil {
			return nil, fmt.Errorf("write record %d: %w", i, err)
		}
		written += int64(n)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush corpus: %w", err)
	}

	return &Stats{
		Records: int64(spec.Volume),
		Bytes:   written,
		SHA256:  hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// WriteFile generates a corpus into the file at path, truncating any
// existing content.
func WriteFile(path string, spec Spec) (*Stats, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create corpus file: %w", err)
	}

	stats, err := Generate(f, spec)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close corpus file: %w", err)
	}
	return stats, nil
}
