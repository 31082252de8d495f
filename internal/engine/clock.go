package engine

import (
	"sync/atomic"
	"time"
)

// TimeSource supplies the chain timestamp. Production uses SystemTime;
// tests inject a controllable clock.
type TimeSource interface {
	Now() time.Time
}

// SystemTime reads the wall clock in UTC.
type SystemTime struct{}

// Now returns the current UTC time.
func (SystemTime) Now() time.Time {
	return time.Now().UTC()
}

// Clock is a monotonic logical counter. The engine numbers chains with it for
// logs and traces; ordering of ledger facts uses the facts table seq.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
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
