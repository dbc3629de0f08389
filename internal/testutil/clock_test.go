package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

func TestClock_AdvancesByStep(t *testing.T) {
	c := NewClock(epoch, time.Second)

	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch.Add(time.Second), c.Now())
	assert.Equal(t, epoch.Add(2*time.Second), c.Peek())
}

func TestClock_ZeroStepIsFrozen(t *testing.T) {
	c := NewClock(epoch, 0)
	assert.Equal(t, c.Now(), c.Now())
}

func TestClock_Set(t *testing.T) {
	c := NewClock(epoch, time.Minute)
	later := epoch.Add(24 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestClock_ConcurrentCallsAreDistinct(t *testing.T) {
	c := NewClock(epoch, time.Millisecond)

	const n = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Time]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := c.Now()
			mu.Lock()
			seen[ts] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, epoch.Add(n*time.Millisecond), c.Peek())
}
