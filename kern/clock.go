package kern

// TickSource is the monotonic tick counter the scheduler reads. The
// scheduler never advances it; time belongs to the timer collaborator.
type TickSource interface {
	Now() int64
}

// SimClock is a manually advanced tick counter, used by the discrete-event
// harness and by tests.
type SimClock struct {
	ticks int64
}

// NewSimClock returns a clock at tick zero.
func NewSimClock() *SimClock {
	return &SimClock{}
}

// Now returns the current tick.
func (c *SimClock) Now() int64 {
	return c.ticks
}

// Advance moves the clock forward by n ticks. Negative n is ignored; ticks
// are monotonic.
func (c *SimClock) Advance(n int64) {
	if n > 0 {
		c.ticks += n
	}
}

// AdvanceTo moves the clock forward to tick t if t is in the future.
func (c *SimClock) AdvanceTo(t int64) {
	if t > c.ticks {
		c.ticks = t
	}
}
