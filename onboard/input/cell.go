package input

import (
	"sync/atomic"
	"time"
)

const DEFAULT_STALE_AFTER = 100 * time.Millisecond

// Cell holds the most recent input sample. Writers replace the whole sample,
// readers copy it out; neither side ever blocks.
type Cell struct {
	latest     atomic.Pointer[State]
	staleAfter time.Duration
	now        func() time.Time
}

// NewCell returns an empty cell. Samples older than staleAfter are read as
// neutral; 0 disables the check.
func NewCell(staleAfter time.Duration) *Cell {
	return &Cell{
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Store publishes s, stamping it if the caller did not.
func (c *Cell) Store(s State) {
	if s.Stamp.IsZero() {
		s.Stamp = c.now()
	}
	c.latest.Store(&s)
}

// Update applies fn to a copy of the latest sample and publishes the result.
// Concurrent updaters may lose each other's changes; inputs come from a
// single source at a time.
func (c *Cell) Update(fn func(s *State)) {
	var s State
	if p := c.latest.Load(); p != nil {
		s = *p
	}
	fn(&s)
	s.Stamp = c.now()
	c.latest.Store(&s)
}

// Load copies the latest sample into dst and reports whether it was fresh.
// An empty or stale cell yields the neutral state.
func (c *Cell) Load(dst *State) (fresh bool) {
	p := c.latest.Load()
	if p == nil {
		*dst = State{}
		return false
	}
	if c.staleAfter > 0 && c.now().Sub(p.Stamp) > c.staleAfter {
		*dst = State{}
		return false
	}
	*dst = *p
	return true
}
