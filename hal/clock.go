package hal

import "time"

// ManualClock is a Clock stepped explicitly by the caller.
//
// It is the tick source for tests and deterministic simulation runs.
type ManualClock struct {
	ch  chan uint64
	seq uint64
}

// NewManualClock creates a manual clock with room for backlog ticks.
func NewManualClock() *ManualClock {
	return &ManualClock{ch: make(chan uint64, 1024)}
}

func (c *ManualClock) Ticks() <-chan uint64 { return c.ch }

// Step delivers n ticks.
func (c *ManualClock) Step(n uint64) {
	for i := uint64(0); i < n; i++ {
		c.seq++
		select {
		case c.ch <- c.seq:
		default:
		}
	}
}

// WallClock converts wall time into fixed-duration ticks.
//
// Each Pump call measures elapsed time since the previous one and emits
// whole ticks, carrying the remainder forward so long-run tick counts do
// not drift.
type WallClock struct {
	ch   chan uint64
	seq  uint64
	dur  time.Duration
	last time.Time
	acc  time.Duration
}

// NewWallClock creates a wall clock with the given tick duration.
func NewWallClock(tick time.Duration) *WallClock {
	if tick <= 0 {
		tick = time.Millisecond
	}
	return &WallClock{ch: make(chan uint64, 1024), dur: tick}
}

func (c *WallClock) Ticks() <-chan uint64 { return c.ch }

// Pump emits the ticks accumulated since the last Pump call.
func (c *WallClock) Pump() {
	now := time.Now()
	if c.last.IsZero() {
		c.last = now
		c.emit(1)
		return
	}

	c.acc += now.Sub(c.last)
	c.last = now

	n := uint64(c.acc / c.dur)
	if n == 0 {
		return
	}
	c.acc = c.acc % c.dur
	c.emit(n)
}

func (c *WallClock) emit(n uint64) {
	for i := uint64(0); i < n; i++ {
		c.seq++
		select {
		case c.ch <- c.seq:
		default:
		}
	}
}
