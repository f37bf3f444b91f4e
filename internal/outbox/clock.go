package outbox

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock supplies intent creation times in unix milliseconds.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowMillis returns the current wall-clock time.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// StepClock is a deterministic clock for tests. Each call returns the
// current value and then advances it by the step.
//
// Thread-safety: StepClock is safe for concurrent use (atomic operations).
type StepClock struct {
	ms   atomic.Int64
	step int64
}

// NewStepClock creates a clock starting at start that advances by step.
func NewStepClock(start, step int64) *StepClock {
	c := &StepClock{step: step}
	c.ms.Store(start)
	return c
}

// NowMillis returns the current value and advances the clock.
func (c *StepClock) NowMillis() int64 {
	return c.ms.Add(c.step) - c.step
}

// Set moves the clock to ms.
func (c *StepClock) Set(ms int64) {
	c.ms.Store(ms)
}

// KeyGenerator produces idempotency keys for new intents.
type KeyGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 idempotency keys.
//
// Keys sort by creation time, which keeps server-side dedup logs readable.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined keys for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedGenerator creates a generator that returns keys in order.
//
// Example:
//
//	gen := NewFixedGenerator("key-1", "key-2")
//	gen.Generate() // "key-1"
//	gen.Generate() // "key-2"
//	gen.Generate() // panic: all keys exhausted
func NewFixedGenerator(keys ...string) *FixedGenerator {
	return &FixedGenerator{keys: keys}
}

// Generate returns the next predetermined key.
//
// Panics if all keys have been consumed, so a test that enqueues more
// intents than it planned for fails loudly.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.keys) {
		panic("FixedGenerator: all keys exhausted")
	}
	key := g.keys[g.idx]
	g.idx++
	return key
}
