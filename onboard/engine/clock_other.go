//go:build !linux

package engine

import "time"

type runtimeClock struct {
	start time.Time
}

// SystemClock falls back to the runtime timer on platforms without
// absolute monotonic sleeps.
func SystemClock() Clock {
	return &runtimeClock{start: time.Now()}
}

func (c *runtimeClock) Now() int64 {
	return int64(time.Since(c.start))
}

func (c *runtimeClock) SleepUntil(deadline int64) {
	if d := time.Duration(deadline - c.Now()); d > 0 {
		time.Sleep(d)
	}
}
