// Package wait implements the bounded polling primitive every UI step is
// built on. A condition that has not held yet is not an error; only probe
// faults and context cancellation are.
package wait

import (
	"context"
	"time"
)

// DefaultInterval is used when Options.Interval is not set.
const DefaultInterval = 250 * time.Millisecond

// Clock abstracts time so waits can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status is the tri-state result of a wait, minus the error channel.
type Status int

const (
	Satisfied Status = iota
	TimedOut
)

func (s Status) String() string {
	if s == Satisfied {
		return "satisfied"
	}
	return "timed_out"
}

// Options bounds a single wait.
type Options struct {
	// Timeout is measured from the first probe. Zero means probe exactly once.
	Timeout time.Duration
	// Interval is the polling cadence.
	Interval time.Duration
	// Floor is a fixed delay before the first probe, for screens that are
	// known to render in stages.
	Floor time.Duration
}

// Probe inspects the page once. ok reports whether the condition holds.
type Probe[T any] func(ctx context.Context) (value T, ok bool, err error)

// Until evaluates probe every Interval until it is satisfied or Timeout
// elapses. The last value seen is returned in both cases. The final probe
// happens at the deadline, so a condition that becomes true at time t is
// observed no later than t+Interval.
func Until[T any](ctx context.Context, clock Clock, opts Options, probe Probe[T]) (T, Status, error) {
	var last T
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if opts.Floor > 0 {
		if err := clock.Sleep(ctx, opts.Floor); err != nil {
			return last, TimedOut, err
		}
	}

	deadline := clock.Now().Add(opts.Timeout)
	for {
		if err := ctx.Err(); err != nil {
			return last, TimedOut, err
		}
		v, ok, err := probe(ctx)
		if err != nil {
			return v, TimedOut, err
		}
		last = v
		if ok {
			return v, Satisfied, nil
		}

		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			return last, TimedOut, nil
		}
		if err := clock.Sleep(ctx, min(interval, remaining)); err != nil {
			return last, TimedOut, err
		}
	}
}

// For is Until for conditions that carry no value.
func For(ctx context.Context, clock Clock, opts Options, cond func(ctx context.Context) (bool, error)) (Status, error) {
	_, status, err := Until(ctx, clock, opts, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := cond(ctx)
		return struct{}{}, ok, err
	})
	return status, err
}

// Sleep pauses for d on clock. Used for explicit settle periods.
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	return clock.Sleep(ctx, d)
}
