package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// Golden ledgers embed the run id, so a scenario executed twice with the
// same generator produces byte-identical snapshots. Unlike
// engine.FixedGenerator, which hands out ids in sequence, this generator is
// never exhausted.
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
// Implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
