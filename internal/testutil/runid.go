package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// This enables golden comparison of stored compilations: the same rule with
// the same generator produces byte-identical records.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a fixed run id generator.
// If id is empty, Generate returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
//
// Implements compiler.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
