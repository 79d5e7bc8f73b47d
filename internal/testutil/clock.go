package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a capture clock for tests. Each call to Now advances
// it by a fixed step, so a scenario replayed with the same clock produces
// identical start and finish timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Duration
	step time.Duration
}

// NewDeterministicClock creates a clock at 0 advancing by step per call.
// The first call to Now() returns step.
func NewDeterministicClock(step time.Duration) *DeterministicClock {
	return &DeterministicClock{step: step}
}

// Now advances the clock by one step and returns the new reading.
func (c *DeterministicClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the reading without advancing.
func (c *DeterministicClock) Current() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to an exact reading. Tests use it to produce
// out-of-order timestamps.
func (c *DeterministicClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}

// Reset moves the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.Set(0)
}
