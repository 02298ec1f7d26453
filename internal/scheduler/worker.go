package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/roach88/sibr/internal/metrics"
)

// State is a worker's position in its tick lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSuccess
	StateFailed
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	case StateSleeping:
		return "sleeping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config is the per-worker schedule. It is passed at construction; there is
// no shared registry of worker settings.
type Config struct {
	Name     string
	Interval time.Duration
	Offset   time.Duration
	Timeout  time.Duration // 0 means no per-tick timeout
}

// Validate checks the schedule is usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("worker name is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("worker %s: interval must be positive, got %s", c.Name, c.Interval)
	}
	if c.Offset < 0 {
		return fmt.Errorf("worker %s: offset must not be negative, got %s", c.Name, c.Offset)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("worker %s: timeout must not be negative, got %s", c.Name, c.Timeout)
	}
	return nil
}

// WorkFunc is one tick of work.
type WorkFunc func(ctx context.Context) error

// PanicError wraps a panic recovered from a tick.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in tick: %v", e.Value)
}

// Worker runs a WorkFunc on a wall-clock-aligned interval.
//
// Thread-safety: State and counters may be read from any goroutine.
type Worker struct {
	cfg    Config
	work   WorkFunc
	clock  Clock
	logger *slog.Logger

	state    atomic.Int32
	ticks    atomic.Int64
	failures atomic.Int64
}

// Option customizes a Worker.
type Option func(*Worker)

// WithClock replaces the wall clock (tests).
func WithClock(c Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithLogger sets the worker's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// NewWorker creates a worker. It does not start until Serve is called.
func NewWorker(cfg Config, work WorkFunc, opts ...Option) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if work == nil {
		return nil, fmt.Errorf("worker %s: work function is required", cfg.Name)
	}

	w := &Worker{
		cfg:    cfg,
		work:   work,
		clock:  SystemClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker", cfg.Name)
	return w, nil
}

// Serve runs ticks until ctx is cancelled. The first tick starts
// immediately; later ticks start on aligned boundaries.
//
// Implements suture.Service. Serve returns only on cancellation, so the
// supervisor never sees a failure to restart.
func (w *Worker) Serve(ctx context.Context) error {
	w.logger.Info("worker started",
		"interval", w.cfg.Interval,
		"offset", w.cfg.Offset,
	)

	for {
		w.Tick(ctx)

		if ctx.Err() != nil {
			w.state.Store(int32(StateIdle))
			w.logger.Info("worker stopped")
			return ctx.Err()
		}

		w.state.Store(int32(StateSleeping))
		delay := NextDelay(w.clock.Now(), w.cfg.Interval, w.cfg.Offset)

		select {
		case <-ctx.Done():
			w.state.Store(int32(StateIdle))
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-w.clock.After(delay):
		}
		w.state.Store(int32(StateIdle))
	}
}

// Tick runs one unit of work and records its outcome. Errors and panics are
// logged and returned; they never escape as panics.
//
// The work runs under a context detached from ctx's cancellation so that
// shutdown does not interrupt a tick midway.
func (w *Worker) Tick(ctx context.Context) (err error) {
	w.state.Store(int32(StateRunning))
	w.ticks.Add(1)
	start := w.clock.Now()

	tickCtx := context.WithoutCancel(ctx)
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(tickCtx, w.cfg.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}

		elapsed := w.clock.Now().Sub(start)
		metrics.RecordTick(w.cfg.Name, elapsed, err)

		if err != nil {
			w.failures.Add(1)
			w.state.Store(int32(StateFailed))
			w.logger.Error("error while running worker", "error", err, "took", elapsed)
			return
		}
		w.state.Store(int32(StateSuccess))
		w.logger.Debug("tick complete", "took", elapsed)
	}()

	return w.work(tickCtx)
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Ticks returns how many ticks have started.
func (w *Worker) Ticks() int64 {
	return w.ticks.Load()
}

// Failures returns how many ticks have failed.
func (w *Worker) Failures() int64 {
	return w.failures.Load()
}

// Config returns the worker's schedule.
func (w *Worker) Config() Config {
	return w.cfg
}

// String implements fmt.Stringer for suture logging.
func (w *Worker) String() string {
	return "worker:" + w.cfg.Name
}
