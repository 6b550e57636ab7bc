package ir

import (
	"sync"

	"github.com/google/uuid"
)

// TempIDGenerator produces tokens for unsaved draft components.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type TempIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 draft tokens.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// NewDraftComponent returns a component identified by a fresh temporary id.
func NewDraftComponent(gen TempIDGenerator, kind ComponentKind, source string) Component {
	return Component{
		ID:     NewTempComponentID(gen.Generate()),
		Kind:   kind,
		Source: source,
	}
}
