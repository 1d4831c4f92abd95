// Package fsio provides the file-reading and size-probing capabilities
// the verification core consumes. Pipeline output files are strictly
// read-only to this package.
package fsio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Reader supplies raw file content to the verify package. The production
// implementation is Local; tests substitute in-memory readers.
type Reader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Local reads files from the local filesystem.
type Local struct{}

// ReadFile returns the full content of path. The context is consulted
// before the read starts; local reads themselves are not interruptible.
func (Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// SplitRecords splits content into records, treating both "\n" and
// "\r\n" as terminators. Interior blank lines are preserved as empty
// records. Content ending in a terminator does not produce a spurious
// trailing empty record. Empty content yields nil.
func SplitRecords(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	s := strings.TrimSuffix(string(content), "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}

// CountNewlines returns the number of newline bytes in content. Final
// reported record counts derive from this raw count, not from the
// filtered record list, so that reporting stays consistent with the
// bytes actually on disk.
func CountNewlines(content []byte) int64 {
	return int64(bytes.Count(content, []byte{'\n'}))
}

// FileSize returns the size of the file at path in bytes. A file that
// does not exist yet reports size 0 with no error: during a transfer the
// sink simply has not been created, which is an expected observation,
// not a fault. All other stat failures are returned to the caller.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("stat %s: is a directory", path)
	}
	return info.Size(), nil
}

// SizeProbe adapts FileSize into the probe signature the watch package
// expects for one fixed path.
func SizeProbe(path string) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return FileSize(path)
	}
}
