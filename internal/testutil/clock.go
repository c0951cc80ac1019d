package testutil

import (
	"sync"
	"time"
)

// T0 is the reference instant tests count from.
var T0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// At returns T0 plus n seconds.
func At(n int) time.Time {
	return T0.Add(time.Duration(n) * time.Second)
}

// StepClock is a manually driven clock.
type StepClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
