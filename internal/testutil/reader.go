package testutil

import (
	"context"
	"fmt"
	"io/fs"
)

// MapReader serves file content from an in-memory map keyed by path.
//
// Paths absent from the map report fs.ErrNotExist, matching the local
// filesystem reader's behavior for missing files.
//
// Implements fsio.Reader.
type MapReader map[string][]byte

// ReadFile returns the content stored under path.
func (r MapReader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := r[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}
