// Package id provides ULID-based identifier generation.
//
// ULIDs are lexicographically sortable, so request and terminal
// identifiers order by creation time in logs and session listings.
// Prefixes (req_*, term_*) keep log lines readable and prevent one
// kind of ID from being used as another.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies one handler invocation.
type RequestID string

// TermID identifies an interactive terminal session.
type TermID string

const (
	RequestPrefix = "req"
	TermPrefix    = "term"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRequestID generates a new request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewTermID generates a new terminal session ID.
func NewTermID() TermID {
	return TermID(Default().GenerateWithPrefix(TermPrefix))
}

func (id RequestID) String() string { return string(id) }
func (id TermID) String() string    { return string(id) }

// IsValid checks if a string is a valid bare ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
