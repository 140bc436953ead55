//go:build linux

package engine

import (
	"golang.org/x/sys/unix"
)

type monotonicClock struct{}

// SystemClock sleeps on CLOCK_MONOTONIC with absolute deadlines so the
// period does not drift with the execution time of a tick.
func SystemClock() Clock {
	return monotonicClock{}
}

func (monotonicClock) Now() int64 {
	var ts unix.Timespec
	unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return ts.Nano()
}

func (monotonicClock) SleepUntil(deadline int64) {
	ts := unix.NsecToTimespec(deadline)
	for {
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
		if err != unix.EINTR {
			return
		}
	}
}
