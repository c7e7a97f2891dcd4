// Package testutil holds helpers shared by the ledger test suites.
package testutil

import (
	"sync"
	"time"
)

// StepClock is a thread-safe fake clock. Every call to Now returns the
// current instant and then advances it by Step. A zero Step freezes time,
// which is how tests force identical creation timestamps.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewStepClock starts a clock at start that advances by step per reading.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, Step: step}
}

// Now returns the current instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Advance moves the clock forward by d without producing a reading.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
