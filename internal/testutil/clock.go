package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading. It satisfies outbox.Clock and can also stand in
// for time.Now.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	ms    int64
	step  int64
}

// NewDeterministicClock creates a clock whose first reading is start
// (unix milliseconds) and which advances by step on each reading.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	ms := start.UnixMilli()
	return &DeterministicClock{start: ms, ms: ms, step: step.Milliseconds()}
}

// NowMillis returns the current reading and advances the clock.
func (c *DeterministicClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.ms
	c.ms += c.step
	return v
}

// Now is NowMillis as a time.Time.
func (c *DeterministicClock) Now() time.Time {
	return time.UnixMilli(c.NowMillis()).UTC()
}

// Peek returns the next reading without advancing.
func (c *DeterministicClock) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward by d without producing a reading.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d.Milliseconds()
}

// Reset returns the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = c.start
}
