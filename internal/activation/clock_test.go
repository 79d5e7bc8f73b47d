package activation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedClock_Monotonic(t *testing.T) {
	clock := NewElapsedClock()

	a := clock.Now()
	b := clock.Now()

	assert.GreaterOrEqual(t, a, time.Duration(0))
	assert.GreaterOrEqual(t, b, a)
}

func TestElapsedClockAt(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	clock := NewElapsedClockAt(start)

	assert.Equal(t, start, clock.Start())
	assert.GreaterOrEqual(t, clock.Now(), time.Hour)
}
