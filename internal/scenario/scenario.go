// Package scenario loads and validates pipeline test scenarios.
//
// A scenario is a YAML file describing one end-to-end run: how much
// input to generate, where the pipeline reads and writes, how long to
// wait for completion, and which compose stack to drive. Files are
// validated twice: first against an embedded CUE schema, which rejects
// structural problems with position information, then by Go-side
// checks for relationships the schema cannot express.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relaycheck/internal/corpus"
)

// Scenario defines one pipeline verification run.
type Scenario struct {
	// Name uniquely identifies this scenario. Used in run IDs,
	// result rows, and archive directories.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Volume is the number of source records to generate.
	Volume int `yaml:"volume"`

	// Seed drives corpus generation. Equal seeds produce identical
	// input, so digests are comparable across runs.
	Seed uint64 `yaml:"seed,omitempty"`

	// RecordBytes is the generated record length including the
	// terminator. Zero means the corpus default.
	RecordBytes int `yaml:"record_bytes,omitempty"`

	// Source is the path the generated input is written to and the
	// producer reads from.
	Source string `yaml:"source"`

	// Sinks are the two files the pipeline's sink nodes write.
	// Order is significant: sinks[0] is target1, sinks[1] is target2.
	Sinks []string `yaml:"sinks"`

	// Wait tunes completion detection. Omitted fields use the watch
	// defaults.
	Wait WaitSpec `yaml:"wait,omitempty"`

	// Compose describes the container stack under test. Optional:
	// verification against already-written files needs no stack.
	Compose ComposeSpec `yaml:"compose,omitempty"`
}

// WaitSpec tunes completion detection for one scenario. All fields
// are optional; zero values defer to the watch package defaults.
type WaitSpec struct {
	// TimeoutMs bounds the whole wait.
	TimeoutMs int `yaml:"timeout_ms,omitempty"`

	// PollIntervalMs is the pause between size observations.
	PollIntervalMs int `yaml:"poll_interval_ms,omitempty"`

	// StabilizationMs is how long sizes must hold steady.
	StabilizationMs int `yaml:"stabilization_ms,omitempty"`

	// MinBytes is a per-sink size floor before stability counts.
	MinBytes int64 `yaml:"min_bytes,omitempty"`

	// AllowEmpty lets a sink stabilize at zero bytes. Needed for
	// scenarios whose volume legitimately leaves a sink empty.
	AllowEmpty bool `yaml:"allow_empty,omitempty"`
}

// Timeout returns the configured timeout, or zero if unset.
func (w WaitSpec) Timeout() time.Duration {
	return msDuration(w.TimeoutMs)
}

// PollInterval returns the configured poll interval, or zero if unset.
func (w WaitSpec) PollInterval() time.Duration {
	return msDuration(w.PollIntervalMs)
}

// Stabilization returns the configured dwell window, or zero if unset.
func (w WaitSpec) Stabilization() time.Duration {
	return msDuration(w.StabilizationMs)
}

func msDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// ComposeSpec describes the container stack a scenario drives.
type ComposeSpec struct {
	// File is the compose file path. Empty means no stack.
	File string `yaml:"file,omitempty"`

	// Services restricts which services to start. Empty starts all.
	Services []string `yaml:"services,omitempty"`

	// Env overrides environment variables for the stack, written to
	// an override file before the stack comes up.
	Env map[string]string `yaml:"env,omitempty"`
}

// Enabled reports whether the scenario drives a compose stack.
func (c ComposeSpec) Enabled() bool {
	return c.File != ""
}

// Load reads, validates, and parses a scenario file. Relative paths
// inside the scenario (source, sinks, compose file) are resolved
// against the scenario file's directory.
func Load(path string) (*Scenario, error) {
	return LoadWithBase(path, "")
}

// LoadWithBase is Load with an explicit base directory for relative
// path resolution, for scenario files kept apart from their data
// directories. An empty base means the scenario file's directory.
func LoadWithBase(path, base string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if base == "" {
		base = filepath.Dir(path)
	}
	s.resolvePaths(base)
	return s, nil
}

// Parse validates and decodes scenario YAML. Paths are left exactly
// as written; callers resolve them.
func Parse(data []byte) (*Scenario, error) {
	// CUE first: structural errors carry positions and field paths
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// resolvePaths anchors relative scenario paths at base.
func (s *Scenario) resolvePaths(base string) {
	if base == "" {
		return
	}
	s.Source = resolvePath(base, s.Source)
	for i, sink := range s.Sinks {
		s.Sinks[i] = resolvePath(base, sink)
	}
	s.Compose.File = resolvePath(base, s.Compose.File)
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks required fields and relationships the CUE
// schema cannot express.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Source == "" {
		return fmt.Errorf("source is required")
	}

	if s.Volume < 1 || s.Volume > corpus.MaxVolume {
		return fmt.Errorf("volume must be between 1 and %d, got %d", corpus.MaxVolume, s.Volume)
	}
	if s.RecordBytes != 0 && s.RecordBytes < corpus.MinRecordBytes {
		return fmt.Errorf("record_bytes must be >= %d, got %d", corpus.MinRecordBytes, s.RecordBytes)
	}

	if len(s.Sinks) != 2 {
		return fmt.Errorf("sinks must list exactly 2 paths, got %d", len(s.Sinks))
	}
	seen := map[string]string{s.Source: "source"}
	for i, sink := range s.Sinks {
		name := fmt.Sprintf("sinks[%d]", i)
		if prev, ok := seen[sink]; ok {
			return fmt.Errorf("%s: path %q already used by %s", name, sink, prev)
		}
		seen[sink] = name
	}

	if !s.Compose.Enabled() {
		if len(s.Compose.Services) > 0 || len(s.Compose.Env) > 0 {
			return fmt.Errorf("compose.file is required when compose is configured")
		}
	} else if len(s.Compose.Env) > 0 && len(s.Compose.Services) == 0 {
		// Env overrides are written per service, so they need names
		return fmt.Errorf("compose.env requires compose.services to apply the overrides to")
	}
	return nil
}
