// Package ident provides ID generation for requests, events, and
// scheduled actions.
package ident

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces process-unique IDs.
// Implemented by UUIDv7Generator (production) and Sequential (tests).
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, making IDs
// sortable by creation time, which helps when reading audit trails and
// event logs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequential returns "<prefix>-1", "<prefix>-2", ... for deterministic
// test runs and golden trace comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Sequential struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequential creates a sequential generator with the given prefix.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix, next: 1}
}

// Generate returns the next ID in sequence.
func (g *Sequential) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := fmt.Sprintf("%s-%d", g.prefix, g.next)
	g.next++
	return id
}
