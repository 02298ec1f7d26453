// Package scheduler runs independent, wall-clock-aligned interval workers.
//
// Each Worker executes one tick of work, then sleeps until the next boundary
// of its interval, measured from a shared Epoch and shifted by the worker's
// offset. Tick start times therefore do not drift with execution time, and
// workers with the same interval but different offsets stay out of phase.
//
// # Tick Lifecycle
//
//	Idle -> Running -> (Success | Failed) -> Sleeping -> Idle
//
// A failed tick (error, timeout or panic) is logged and counted; the worker
// never exits because of it. The next tick starts on schedule.
//
// # Cancellation
//
// Workers stop only at tick boundaries. A tick in flight when shutdown begins
// runs to completion (bounded by its own timeout) under a context that is
// detached from the shutdown signal.
//
// Workers implement suture.Service and are hosted by a Supervisor.
package scheduler
