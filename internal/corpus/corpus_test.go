package corpus

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerate_Deterministic produces byte-identical output for equal
// specs.
func TestGenerate_Deterministic(t *testing.T) {
	spec := Spec{Volume: 100, Seed: 42}

	var a, b bytes.Buffer
	statsA, err := Generate(&a, spec)
	require.NoError(t, err)
	statsB, err := Generate(&b, spec)
	require.NoError(t, err)

	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.Equal(t, statsA.SHA256, statsB.SHA256)
}

// TestGenerate_SeedChangesContent yields different payloads for
// different seeds.
func TestGenerate_SeedChangesContent(t *testing.T) {
	var a, b bytes.Buffer
	statsA, err := Generate(&a, Spec{Volume: 100, Seed: 1})
	require.NoError(t, err)
	statsB, err := Generate(&b, Spec{Volume: 100, Seed: 2})
	require.NoError(t, err)

	assert.NotEqual(t, statsA.SHA256, statsB.SHA256)
	// Volume and record length are seed-independent
	assert.Equal(t, statsA.Bytes, statsB.Bytes)
}

// TestGenerate_RecordShape gives every record the configured length,
// a sequential index prefix, and a newline terminator.
func TestGenerate_RecordShape(t *testing.T) {
	var buf bytes.Buffer
	stats, err := Generate(&buf, Spec{Volume: 50, Seed: 7, RecordBytes: 32})
	require.NoError(t, err)

	assert.Equal(t, int64(50), stats.Records)
	assert.Equal(t, int64(50*32), stats.Bytes)
	assert.Equal(t, stats.Bytes, int64(buf.Len()))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	assert.Equal(t, "rec-00000000-", lines[0][:13])
	assert.Equal(t, "rec-00000049-", lines[49][:13])
	for i, line := range lines {
		assert.Len(t, line, 31, "record %d", i)
	}
}

// TestGenerate_DefaultRecordBytes applies the default length when the
// spec leaves it zero.
func TestGenerate_DefaultRecordBytes(t *testing.T) {
	var buf bytes.Buffer
	stats, err := Generate(&buf, Spec{Volume: 10, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(10*DefaultRecordBytes), stats.Bytes)
}

// TestGenerate_ZeroVolume produces an empty corpus.
func TestGenerate_ZeroVolume(t *testing.T) {
	var buf bytes.Buffer
	stats, err := Generate(&buf, Spec{Volume: 0, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Records)
	assert.Equal(t, int64(0), stats.Bytes)
	assert.Zero(t, buf.Len())
}

// TestGenerate_RejectsBadSpecs validates volume and record length.
func TestGenerate_RejectsBadSpecs(t *testing.T) {
	var buf bytes.Buffer

	_, err := Generate(&buf, Spec{Volume: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume")

	_, err = Generate(&buf, Spec{Volume: 1, RecordBytes: 8})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record length")

	_, err = Generate(&buf, Spec{Volume: MaxVolume + 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume")
}

// TestWriteFile lands the corpus on disk with stats matching the file.
func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.ndjson")

	stats, err := WriteFile(path, Spec{Volume: 25, Seed: 9})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, stats.Bytes, int64(len(data)))
	assert.Equal(t, int64(25*DefaultRecordBytes), stats.Bytes)

	// Regenerating in memory reproduces the exact file
	var buf bytes.Buffer
	again, err := Generate(&buf, Spec{Volume: 25, Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), data)
	assert.Equal(t, stats.SHA256, again.SHA256)
}
