package sandbox

import "sync/atomic"

// Clock issues evaluation ids: a monotonic counter owned by one Boundary.
//
// Every request envelope is stamped with Clock.Next(). Ids keep increasing
// across remounts, so a reply from a previous mount can never correlate with
// a request of the current one.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next evaluation id and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued id without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
