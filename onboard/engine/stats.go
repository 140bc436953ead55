package engine

import "time"

// Span is the observed range of one timing quantity.
type Span struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

func (s *Span) add(d time.Duration, first bool) {
	if first || d < s.Min {
		s.Min = d
	}
	if first || d > s.Max {
		s.Max = d
	}
}

// Stats describes the loop timing over one measurement window.
type Stats struct {
	Samples uint64 `json:"samples"`
	// time between the starts of consecutive ticks
	Period Span `json:"period"`
	// time spent inside a tick
	Exec Span `json:"exec"`
	// wake-up delay behind the deadline
	Latency Span `json:"latency"`
	// largest deviation of the period from nominal
	Jitter time.Duration `json:"jitter"`
	// deadlines missed by more than a whole period
	Overruns uint64 `json:"overruns"`
}

type timing struct {
	nominal time.Duration
	window  uint64

	current   Stats
	completed Stats
	lastStart int64
}

func newTiming(nominal time.Duration, window uint64) *timing {
	return &timing{nominal: nominal, window: window}
}

// record adds one tick. start and end are clock readings, deadline the time
// the tick was scheduled for.
func (t *timing) record(deadline, start, end int64) {
	c := &t.current
	first := c.Samples == 0

	latency := time.Duration(start - deadline)
	c.Latency.add(latency, first)
	c.Exec.add(time.Duration(end-start), first)
	if latency > t.nominal {
		c.Overruns++
	}

	if t.lastStart != 0 {
		period := time.Duration(start - t.lastStart)
		c.Period.add(period, c.Period.Max == 0)

		jitter := period - t.nominal
		if jitter < 0 {
			jitter = -jitter
		}
		if jitter > c.Jitter {
			c.Jitter = jitter
		}
	}
	t.lastStart = start
	c.Samples++

	if t.window > 0 && c.Samples >= t.window {
		t.completed = *c
		*c = Stats{}
	}
}

// snapshot returns the last full window, or the running window when none
// has completed yet.
func (t *timing) snapshot() Stats {
	if t.completed.Samples == 0 {
		return t.current
	}
	return t.completed
}
