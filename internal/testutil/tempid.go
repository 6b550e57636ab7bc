package testutil

import "sync"

// DefaultDraftToken is used when NewFixedTempIDGenerator is given "".
const DefaultDraftToken = "draft-test-default"

// FixedTempIDGenerator returns the same draft token every time.
// It satisfies ir.TempIDGenerator.
//
// Thread-safety: FixedTempIDGenerator is safe for concurrent use.
type FixedTempIDGenerator struct {
	mu    sync.Mutex
	token string
}

// NewFixedTempIDGenerator creates a generator that always returns token.
func NewFixedTempIDGenerator(token string) *FixedTempIDGenerator {
	if token == "" {
		token = DefaultDraftToken
	}
	return &FixedTempIDGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTempIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}
