package testutil

// FixedIDGenerator generates the same run identifier every time.
//
// This enables deterministic test execution and golden snapshot
// comparison: the same scenario with the same FixedIDGenerator produces
// byte-identical reports and archive manifests.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed run ID generator.
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed run ID.
//
// Implements harness.RunIDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
