package time

import (
	"sync"
	"time"
)

// source of monotonic time used for admission decisions
type Clock interface {
	Elapsed() time.Duration
}

// monotonic time since the clock was created
// time.Since reads the monotonic reading embedded in startTime
// so wall clock adjustments do not move it backwards
type MonotonicClock struct {
	startTime time.Time
}

func NewClock() *MonotonicClock {
	return &MonotonicClock{
		startTime: time.Now(),
	}
}

func (c *MonotonicClock) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// clock that only moves when told to, for deterministic tests
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(d time.Duration) {
	c.mu.Lock()
	c.now = d
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
