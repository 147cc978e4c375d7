// Package testutil provides deterministic test fixtures shared across
// packages.
package testutil

import "sync"

// Clock is a thread-safe frozen clock for tests. It reports a fixed
// epoch-millisecond value until advanced explicitly, so traces and
// timestamps replay identically across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type Clock struct {
	mu  sync.Mutex
	now int64
}

// NewClock creates a clock frozen at start.
func NewClock(start int64) *Clock {
	return &Clock{now: start}
}

// Now returns the current logical time. Pass c.Now as the engine's
// time source.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by delta milliseconds and returns
// the new value.
func (c *Clock) Advance(delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += delta
	return c.now
}

// Set jumps the clock to an absolute value.
func (c *Clock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
