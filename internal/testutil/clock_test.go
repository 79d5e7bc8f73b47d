package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_StartsAtZero(t *testing.T) {
	clock := NewDeterministicClock(time.Millisecond)
	assert.Equal(t, time.Duration(0), clock.Current())
}

func TestDeterministicClock_NowAdvancesByStep(t *testing.T) {
	clock := NewDeterministicClock(10 * time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, clock.Now())
	assert.Equal(t, 20*time.Millisecond, clock.Now())
	assert.Equal(t, 30*time.Millisecond, clock.Now())
	assert.Equal(t, 30*time.Millisecond, clock.Current())
}

func TestDeterministicClock_SetAndReset(t *testing.T) {
	clock := NewDeterministicClock(time.Second)

	clock.Set(5 * time.Second)
	assert.Equal(t, 6*time.Second, clock.Now())

	clock.Reset()
	assert.Equal(t, time.Duration(0), clock.Current())
	assert.Equal(t, time.Second, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(time.Nanosecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Duration]bool)
	)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				v := clock.Now()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every reading is unique and the final reading equals the call count.
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, time.Duration(numGoroutines*callsPerGoroutine), clock.Current())
}
