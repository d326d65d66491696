package world

import "math"

// Clock is the fixed-timestep simulation clock. Deadlines are expressed in
// ticks so refill timing is exact and replayable.
type Clock struct {
	Tick uint64  `json:"tick"`
	DT   float64 `json:"dt"` // Seconds per tick
}

// Advance moves the clock forward one tick and returns the new tick.
func (c *Clock) Advance() uint64 {
	c.Tick++
	return c.Tick
}

// Seconds returns elapsed simulated time.
func (c Clock) Seconds() float64 {
	return float64(c.Tick) * c.DT
}

// TicksFor converts a duration in seconds to whole ticks, rounding up so a
// delay never fires early.
func (c Clock) TicksFor(seconds float64) uint64 {
	if seconds <= 0 || c.DT <= 0 {
		return 0
	}
	// Shave float noise so 5.0/0.02 does not become 251.
	return uint64(math.Ceil(seconds/c.DT - 1e-9))
}
