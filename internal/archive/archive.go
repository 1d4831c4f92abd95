// Package archive preserves the artifacts of a verification run.
//
// Each run gets its own directory holding the generated corpus, the
// sink files as the pipeline left them, and the captured container
// logs, plus a manifest recording the size and SHA-256 of everything
// collected. Failed runs keep their artifacts so they can be diagnosed
// without re-running the pipeline.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName is the index file written at the archive root.
const ManifestName = "manifest.yaml"

// Entry is one artifact to capture. Path names a file to copy; Data
// carries literal content instead, for output captured in memory such
// as container logs. A non-nil empty Data still writes an empty file.
type Entry struct {
	Name     string
	Path     string
	Data     []byte
	Optional bool
}

// Record describes one captured artifact.
type Record struct {
	Name    string `yaml:"name"`
	Present bool   `yaml:"present"`
	Size    int64  `yaml:"size,omitempty"`
	SHA256  string `yaml:"sha256,omitempty"`
}

// Manifest indexes everything captured for one run.
type Manifest struct {
	RunID     string    `yaml:"run_id"`
	Scenario  string    `yaml:"scenario"`
	CreatedAt time.Time `yaml:"created_at"`
	Artifacts []Record  `yaml:"artifacts"`
}

// Collect copies every entry into dir, hashing as it copies, and
// writes manifest.yaml describing the result. A missing file behind an
// Optional entry is recorded as absent; a missing required file fails
// the collection.
func Collect(dir, runID, scenario string, entries []Entry) (*Manifest, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	manifest := &Manifest{
		RunID:     runID,
		Scenario:  scenario,
		CreatedAt: time.Now().UTC(),
		Artifacts: make([]Record, 0, len(entries)),
	}
	for _, e := range entries {
		rec, err := capture(dir, e)
		if err != nil {
			return nil, err
		}
		manifest.Artifacts = append(manifest.Artifacts, rec)
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	return manifest, nil
}

// Load reads a previously written manifest back from dir.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &manifest, nil
}

func validateEntries(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("archive entry with empty name")
		}
		if e.Name != filepath.Base(e.Name) {
			return fmt.Errorf("archive entry %q: name must not contain path separators", e.Name)
		}
		if e.Name == ManifestName {
			return fmt.Errorf("archive entry %q: name is reserved", e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("archive entry %q: duplicate name", e.Name)
		}
		seen[e.Name] = true
		if e.Path != "" && e.Data != nil {
			return fmt.Errorf("archive entry %q: both path and data set", e.Name)
		}
		if e.Path == "" && e.Data == nil {
			return fmt.Errorf("archive entry %q: neither path nor data set", e.Name)
		}
	}
	return nil
}

func capture(dir string, e Entry) (Record, error) {
	if e.Data != nil {
		dest := filepath.Join(dir, e.Name)
		if err := os.WriteFile(dest, e.Data, 0o644); err != nil {
			return Record{}, fmt.Errorf("writing %s: %w", e.Name, err)
		}
		sum := sha256.Sum256(e.Data)
		return Record{
			Name:    e.Name,
			Present: true,
			Size:    int64(len(e.Data)),
			SHA256:  hex.EncodeToString(sum[:]),
		}, nil
	}

	src, err := os.Open(e.Path)
	if err != nil {
		if e.Optional && errors.Is(err, fs.ErrNotExist) {
			return Record{Name: e.Name, Present: false}, nil
		}
		return Record{}, fmt.Errorf("opening %s: %w", e.Path, err)
	}
	defer src.Close()

	dest, err := os.Create(filepath.Join(dir, e.Name))
	if err != nil {
		return Record{}, fmt.Errorf("creating %s: %w", e.Name, err)
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(dest, hash), src)
	if err != nil {
		dest.Close()
		return Record{}, fmt.Errorf("copying %s: %w", e.Name, err)
	}
	if err := dest.Close(); err != nil {
		return Record{}, fmt.Errorf("closing %s: %w", e.Name, err)
	}

	return Record{
		Name:    e.Name,
		Present: true,
		Size:    size,
		SHA256:  hex.EncodeToString(hash.Sum(nil)),
	}, nil
}
