package sut

import "sync/atomic"

// Clock is a monotonic logical clock for event ordering.
//
// All rows the Sim writes are stamped with a strictly increasing seq from
// this clock. Logical time makes ordering deterministic: replay of the same
// record sequence assigns the same seq values, so snapshots diff cleanly.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the Sim's per-context single-caller discipline means only one
// goroutine typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next() returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
