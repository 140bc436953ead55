package engine

import (
	"github.com/pkg/errors"
)

const (
	DEFAULT_MONITOR_EVERY     = 1000
	DEFAULT_FAILURE_THRESHOLD = 5
)

// linkMonitor counts consecutive failed master state checks.
type linkMonitor struct {
	every     uint64
	threshold int
	failures  int
}

func newLinkMonitor(every uint64, threshold int) *linkMonitor {
	if every == 0 {
		every = DEFAULT_MONITOR_EVERY
	}
	if threshold <= 0 {
		threshold = DEFAULT_FAILURE_THRESHOLD
	}
	return &linkMonitor{every: every, threshold: threshold}
}

func (m *linkMonitor) due(tick uint64) bool {
	return tick%m.every == 0
}

// observe records the result of one check. failing is true when the tick
// must be gated; escalate is set once the failures reach the threshold.
func (m *linkMonitor) observe(err error) (failing bool, escalate error) {
	if err == nil {
		m.failures = 0
		return false, nil
	}

	m.failures++
	if m.failures >= m.threshold {
		return true, errors.Wrapf(err, "%d consecutive failed link checks", m.failures)
	}
	return true, nil
}
