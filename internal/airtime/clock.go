package airtime

import "time"

// Clock supplies the current JST instant and the delayed live pointer.
// The zero delay is valid; tests inject a fixed now func.
type Clock struct {
	now   func() time.Time
	delay time.Duration
}

// NewClock returns a wall-clock backed Clock. delaySec compensates for the
// upstream's segment buffering when deciding what is currently on air.
func NewClock(delaySec int) *Clock {
	return NewClockWith(time.Now, delaySec)
}

// NewClockWith returns a Clock reading time from the supplied func.
func NewClockWith(now func() time.Time, delaySec int) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, delay: time.Duration(delaySec) * time.Second}
}

// Now returns the current wall-clock instant in JST.
func (c *Clock) Now() time.Time {
	return c.now().In(JST)
}

// BroadcastNow returns the live pointer: Now minus the configured delay.
func (c *Clock) BroadcastNow() time.Time {
	return c.Now().Add(-c.delay)
}

// BroadcastDate returns the calendar date of the broadcast day enclosing
// the live pointer.
func (c *Clock) BroadcastDate() time.Time {
	return BroadcastDateOf(c.BroadcastNow())
}

// DelaySec returns the configured delay in whole seconds.
func (c *Clock) DelaySec() int {
	return int(c.delay / time.Second)
}
