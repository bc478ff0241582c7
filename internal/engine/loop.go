package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/probectl/internal/snapshot"
)

// SnapshotFunc loads the frozen input of a cycle at the given time.
type SnapshotFunc func(ctx context.Context, now time.Time) (*snapshot.Snapshot, error)

// Dispatcher hands a finished cycle to the agent-control side.
type Dispatcher interface {
	Dispatch(ctx context.Context, res *Result) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, res *Result) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, res *Result) error {
	return f(ctx, res)
}

// Loop runs one cycle per interval, never two at once.
type Loop struct {
	Snapshot SnapshotFunc
	Dispatch Dispatcher
	Interval time.Duration
	Clock    Clock
	Logger   *slog.Logger

	mu      sync.Mutex
	planner *Planner
	cycles  int
}

// NewLoop creates a loop around planner.
func NewLoop(planner *Planner, load SnapshotFunc, dispatch Dispatcher, interval time.Duration) *Loop {
	return &Loop{
		Snapshot: load,
		Dispatch: dispatch,
		Interval: interval,
		Clock:    SystemClock{},
		planner:  planner,
	}
}

// SetPlanner swaps the planner. It takes effect from the next cycle.
func (l *Loop) SetPlanner(p *Planner) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.planner = p
}

// Planner returns the planner the next cycle will use.
func (l *Loop) Planner() *Planner {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.planner
}

// Cycles returns the number of completed cycles.
func (l *Loop) Cycles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

// Run executes a cycle immediately and then once per Interval until ctx is done.
//
// Rejected input and dispatch failures are logged and the loop carries on;
// the next cycle recomputes everything. Internal errors stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	log := l.logger()
	interval := l.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := l.Once(ctx); err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return ctx.Err()
			case IsInternal(err):
				return err
			default:
				log.Warn("cycle failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Once runs a single cycle: load, plan, dispatch.
func (l *Loop) Once(ctx context.Context) (*Result, error) {
	log := l.logger()
	clock := l.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	now := clock.Now()

	snap, err := l.Snapshot(ctx, now)
	if err != nil {
		return nil, err
	}

	res, err := l.Planner().Plan(ctx, snap)
	if err != nil {
		return nil, err
	}

	if l.Dispatch != nil {
		if err := l.Dispatch.Dispatch(ctx, res); err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	l.cycles++
	l.mu.Unlock()

	log.Info("cycle complete",
		"cycle", res.CycleID,
		"eligible", res.Eligible,
		"assignments", len(res.Assignments),
	)
	return res, nil
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
