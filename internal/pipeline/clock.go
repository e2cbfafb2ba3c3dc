package pipeline

import (
	"sync"
	"time"
)

// Clock abstracts the driving timer so tests can step ticks virtually.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the minimal surface of time.Ticker the loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock drives the loop from the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// VirtualClock is a manually stepped clock for tests. Advance moves time
// forward and emits one tick per call.
type VirtualClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

// NewVirtualClock creates a virtual clock starting at the given instant.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start, tick: make(chan time.Time, 1)}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) NewTicker(time.Duration) Ticker { return virtualTicker{c: c.tick} }

// Advance moves the clock and delivers a tick.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	c.tick <- now
}

type virtualTicker struct {
	c chan time.Time
}

func (t virtualTicker) C() <-chan time.Time { return t.c }
func (t virtualTicker) Stop()               {}
