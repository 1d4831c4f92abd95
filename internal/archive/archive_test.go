package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile creates a source artifact for collection tests.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// TestCollect_CopiesAndHashes copies files into the archive and
// records their size and digest.
func TestCollect_CopiesAndHashes(t *testing.T) {
	srcDir := t.TempDir()
	source := writeFile(t, srcDir, "input.ndjson", "rec-00000000-aa\nrec-00000001-bb\n")
	sink := writeFile(t, srcDir, "t1.ndjson", "rec-00000000-aa\n")

	dir := filepath.Join(t.TempDir(), "run-1")
	manifest, err := Collect(dir, "run-1", "smoke-small", []Entry{
		{Name: "source.ndjson", Path: source},
		{Name: "target1.ndjson", Path: sink},
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", manifest.RunID)
	assert.Equal(t, "smoke-small", manifest.Scenario)
	require.Len(t, manifest.Artifacts, 2)
	assert.Equal(t, Record{
		Name:    "source.ndjson",
		Present: true,
		Size:    32,
		SHA256:  digest("rec-00000000-aa\nrec-00000001-bb\n"),
	}, manifest.Artifacts[0])

	copied, err := os.ReadFile(filepath.Join(dir, "source.ndjson"))
	require.NoError(t, err)
	assert.Equal(t, "rec-00000000-aa\nrec-00000001-bb\n", string(copied))
}

// TestCollect_DataEntry archives in-memory content such as captured
// logs.
func TestCollect_DataEntry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")

	manifest, err := Collect(dir, "run-1", "smoke-small", []Entry{
		{Name: "compose.log", Data: []byte("relay-1 | started\n")},
	})
	require.NoError(t, err)

	require.Len(t, manifest.Artifacts, 1)
	assert.Equal(t, Record{
		Name:    "compose.log",
		Present: true,
		Size:    18,
		SHA256:  digest("relay-1 | started\n"),
	}, manifest.Artifacts[0])

	written, err := os.ReadFile(filepath.Join(dir, "compose.log"))
	require.NoError(t, err)
	assert.Equal(t, "relay-1 | started\n", string(written))
}

// TestCollect_EmptyDataEntry writes an empty file for non-nil empty
// data.
func TestCollect_EmptyDataEntry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")

	manifest, err := Collect(dir, "run-1", "smoke-small", []Entry{
		{Name: "compose.log", Data: []byte{}},
	})
	require.NoError(t, err)

	require.Len(t, manifest.Artifacts, 1)
	assert.True(t, manifest.Artifacts[0].Present)
	assert.Zero(t, manifest.Artifacts[0].Size)

	info, err := os.Stat(filepath.Join(dir, "compose.log"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

// TestCollect_OptionalMissing records absent artifacts instead of
// failing.
func TestCollect_OptionalMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")

	manifest, err := Collect(dir, "run-1", "smoke-small", []Entry{
		{Name: "target1.ndjson", Path: filepath.Join(t.TempDir(), "nope"), Optional: true},
	})
	require.NoError(t, err)

	require.Len(t, manifest.Artifacts, 1)
	assert.Equal(t, Record{Name: "target1.ndjson", Present: false}, manifest.Artifacts[0])

	_, err = os.Stat(filepath.Join(dir, "target1.ndjson"))
	assert.True(t, os.IsNotExist(err))
}

// TestCollect_RequiredMissing fails when a mandatory artifact is gone.
func TestCollect_RequiredMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")

	_, err := Collect(dir, "run-1", "smoke-small", []Entry{
		{Name: "source.ndjson", Path: filepath.Join(t.TempDir(), "nope")},
	})
	require.Error(t, err)
}

// TestCollect_RejectsBadEntries validates entry names and content
// sources up front.
func TestCollect_RejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "a.txt", "a")

	tests := []struct {
		name    string
		entries []Entry
		wantErr string
	}{
		{
			name:    "empty name",
			entries: []Entry{{Name: "", Path: src}},
			wantErr: "empty name",
		},
		{
			name: "duplicate name",
			entries: []Entry{
				{Name: "a.txt", Path: src},
				{Name: "a.txt", Path: src},
			},
			wantErr: "duplicate",
		},
		{
			name:    "path separator in name",
			entries: []Entry{{Name: "sub/a.txt", Path: src}},
			wantErr: "path separators",
		},
		{
			name:    "reserved name",
			entries: []Entry{{Name: ManifestName, Path: src}},
			wantErr: "reserved",
		},
		{
			name:    "both path and data",
			entries: []Entry{{Name: "a.txt", Path: src, Data: []byte("x")}},
			wantErr: "both path and data",
		},
		{
			name:    "neither path nor data",
			entries: []Entry{{Name: "a.txt"}},
			wantErr: "neither path nor data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(filepath.Join(dir, "out"), "run-1", "s", tt.entries)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestManifestRoundTrip loads back what Collect wrote.
func TestManifestRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	source := writeFile(t, srcDir, "input.ndjson", "rec-00000000-aa\n")
	dir := filepath.Join(t.TempDir(), "run-1")

	written, err := Collect(dir, "run-1", "smoke-small", []Entry{
		{Name: "source.ndjson", Path: source},
		{Name: "target2.ndjson", Path: filepath.Join(srcDir, "nope"), Optional: true},
	})
	require.NoError(t, err)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, written.RunID, loaded.RunID)
	assert.Equal(t, written.Scenario, loaded.Scenario)
	assert.Equal(t, written.Artifacts, loaded.Artifacts)
	assert.WithinDuration(t, time.Now(), loaded.CreatedAt, time.Minute)
}

// TestLoad_Missing reports a useful error for directories without a
// manifest.
func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading manifest")
}
