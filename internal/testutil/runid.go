package testutil

// FixedRunIDGenerator returns the same sweep run id every time, so log
// output and golden traces are stable.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id.
// If id is empty, NewRunID returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// NewRunID returns the fixed id.
func (g *FixedRunIDGenerator) NewRunID() string {
	return g.id
}
