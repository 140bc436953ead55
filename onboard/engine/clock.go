package engine

// Clock is the time source of the cyclic loop. Times are monotonic
// nanoseconds.
type Clock interface {
	Now() int64
	// SleepUntil blocks until the absolute time deadline.
	SleepUntil(deadline int64)
}
