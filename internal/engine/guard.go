package engine

import (
	"fmt"
	"sync"
)

// Guard enforces the single-production-engine invariant through an
// explicit registry object rather than hidden static state: callers
// construct one Guard per application context and pass it in Options.
//
// Test engines (TickIntervalMs = 0) never touch the guard, so
// concurrent test isolation stays cheap.
type Guard struct {
	mu     sync.Mutex
	active *Engine
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

func (g *Guard) acquire(e *Engine) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil {
		return fmt.Errorf("a production engine (%q) is already active", g.active.cfg.ID)
	}
	g.active = e
	return nil
}

// release clears the handle only if this engine currently holds it.
func (g *Guard) release(e *Engine) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == e {
		g.active = nil
	}
}

// Active reports whether any engine currently holds the guard.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active != nil
}
