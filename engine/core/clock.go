package core

import "time"

// Clock measures time for the frame loop. The zero value is stopped.
type Clock struct {
	startTime time.Time
	lastTick  time.Duration
	elapsed   time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Start resets the clock and begins measuring.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.elapsed = 0
	c.lastTick = 0
}

// Stop freezes Elapsed until the next Start.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

func (c *Clock) IsRunning() bool {
	return !c.startTime.IsZero()
}

// Tick refreshes the elapsed time and returns how much passed since the
// previous Tick (or Start). A stopped clock returns 0.
func (c *Clock) Tick() time.Duration {
	if !c.IsRunning() {
		return 0
	}
	c.elapsed = time.Since(c.startTime)
	delta := c.elapsed - c.lastTick
	c.lastTick = c.elapsed
	return delta
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
