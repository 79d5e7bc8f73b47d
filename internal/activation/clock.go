package activation

import "time"

// Clock stamps capture events with the time elapsed since trial start.
type Clock interface {
	Now() time.Duration
}

// ElapsedClock measures wall-clock time since it was created.
//
// Thread-safety: ElapsedClock is immutable after construction and safe for
// concurrent use; goroutines capturing the same trial share one clock.
type ElapsedClock struct {
	start time.Time
}

// NewElapsedClock creates a clock whose zero is now.
func NewElapsedClock() *ElapsedClock {
	return &ElapsedClock{start: time.Now()}
}

// NewElapsedClockAt creates a clock whose zero is start.
func NewElapsedClockAt(start time.Time) *ElapsedClock {
	return &ElapsedClock{start: start}
}

// Now returns the monotonic time since the clock's zero.
func (c *ElapsedClock) Now() time.Duration {
	return time.Since(c.start)
}

// Start returns the wall-clock instant the clock measures from.
func (c *ElapsedClock) Start() time.Time {
	return c.start
}
