package testutil

// FixedCycleGenerator generates the same cycle id every time.
//
// Golden comparisons need ids that do not change between runs. Unlike
// engine.FixedGenerator which returns ids in sequence, this generator always
// returns the same id.
//
// Thread-safety: FixedCycleGenerator is stateless and safe for concurrent use.
type FixedCycleGenerator struct {
	id string
}

// NewFixedCycleGenerator creates a fixed generator.
// If id is empty, Generate() returns "test-cycle-default".
func NewFixedCycleGenerator(id string) *FixedCycleGenerator {
	if id == "" {
		id = "test-cycle-default"
	}
	return &FixedCycleGenerator{id: id}
}

// Generate returns the fixed id. Implements engine.CycleIDGenerator.
func (g *FixedCycleGenerator) Generate() string {
	return g.id
}
