package ledger

import (
	"sync/atomic"
	"time"
)

// =============================================================================
// CLOCK - Logical time supplied by the environment
// =============================================================================

// Clock yields the current logical tick. The engine never advances it; the
// transport layer reads it once per request and passes the tick along.
type Clock interface {
	Now() Tick
}

// WallClock derives ticks from wall time elapsed since Epoch.
type WallClock struct {
	Epoch        time.Time
	TickDuration time.Duration
	now          func() time.Time
}

// NewWallClock returns a clock counting tickDuration intervals since epoch.
func NewWallClock(epoch time.Time, tickDuration time.Duration) *WallClock {
	return &WallClock{Epoch: epoch, TickDuration: tickDuration, now: time.Now}
}

// Now returns the number of whole ticks since Epoch, or 0 before it.
func (c *WallClock) Now() Tick {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	elapsed := now().Sub(c.Epoch)
	if elapsed <= 0 || c.TickDuration <= 0 {
		return 0
	}
	return Tick(elapsed / c.TickDuration)
}

// ManualClock is a Clock driven by the caller. Useful in tests and replays.
type ManualClock struct {
	tick atomic.Uint64
}

// NewManualClock returns a clock positioned at start.
func NewManualClock(start Tick) *ManualClock {
	c := &ManualClock{}
	c.tick.Store(uint64(start))
	return c
}

func (c *ManualClock) Now() Tick { return Tick(c.tick.Load()) }

// Set moves the clock to t. Moving backwards is ignored.
func (c *ManualClock) Set(t Tick) {
	for {
		cur := c.tick.Load()
		if uint64(t) <= cur || c.tick.CompareAndSwap(cur, uint64(t)) {
			return
		}
	}
}

// Advance moves the clock forward by n ticks.
func (c *ManualClock) Advance(n uint64) Tick {
	return Tick(c.tick.Add(n))
}
