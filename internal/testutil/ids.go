// Package testutil provides deterministic helpers for tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator hands out predictable context IDs in order.
//
// Unlike the default UUID generator, the same test run always sees the
// same IDs, which keeps log output and failure messages stable.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator yielding
// "<prefix>-000001", "<prefix>-000002", ...
//
// If prefix is empty, "test-ctx" is used.
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "test-ctx"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// NewID returns the next ID in sequence.
//
// Implements orchestrator.IDGenerator.
func (g *SequenceIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}

// Reset restarts the sequence. The next call to NewID returns
// "<prefix>-000001" again.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
