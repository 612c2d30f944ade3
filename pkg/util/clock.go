package util

import "time"

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// StepClock advances by Step on every Now call. Used to make latency
// measurements deterministic in tests.
type StepClock struct {
	Current time.Time
	Step    time.Duration
}

func (c *StepClock) Now() time.Time {
	now := c.Current
	c.Current = c.Current.Add(c.Step)
	return now
}
