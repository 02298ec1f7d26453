package scheduler

import "time"

// Epoch is the shared reference point for tick alignment.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock abstracts wall time so tests can drive workers deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// NextDelay returns how long to sleep from now until the next tick boundary.
//
// Boundaries sit at Epoch + offset + k*interval. The result is in
// (0, interval]: a call landing exactly on a boundary waits a full interval.
func NextDelay(now time.Time, interval, offset time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	phase := (now.Sub(Epoch) - offset) % interval
	if phase < 0 {
		phase += interval
	}
	return interval - phase
}
