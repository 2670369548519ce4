// Package locator resolves named UI targets through ordered fallback chains
// of queries. A chain is a fixed, enumerated list of known DOM shapes; there
// is no free-form searching.
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/wait"
)

// Target is a named control with its candidate queries in priority order.
type Target struct {
	Name       string
	Candidates []browser.Query
}

// NewTarget builds a Target.
func NewTarget(name string, candidates ...browser.Query) Target {
	return Target{Name: name, Candidates: candidates}
}

// Status is the tri-state result of a resolution.
type Status int

const (
	Found Status = iota
	NotFound
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "timed_out"
	}
}

// Resolution is the outcome of resolving a Target. Element and Query are set
// only when Status is Found.
type Resolution struct {
	Status  Status
	Element browser.Element
	// Query is the candidate that produced Element.
	Query browser.Query
}

// Err converts a non-Found resolution into an error wrapping
// browser.ErrNotFound or browser.ErrTimedOut.
func (r Resolution) Err(target string) error {
	switch r.Status {
	case Found:
		return nil
	case NotFound:
		return fmt.Errorf("%s: %w", target, browser.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", target, browser.ErrTimedOut)
	}
}

// Options tunes the resolver.
type Options struct {
	// PerCandidate bounds how long a single candidate is waited on during
	// the first pass.
	PerCandidate time.Duration
	// Interval is the polling cadence.
	Interval time.Duration
}

// Resolver resolves targets against a driver.
type Resolver struct {
	driver browser.Driver
	clock  wait.Clock
	opts   Options
	logger *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(driver browser.Driver, clock wait.Clock, opts Options, logger *zap.Logger) *Resolver {
	if opts.Interval <= 0 {
		opts.Interval = wait.DefaultInterval
	}
	if opts.PerCandidate <= 0 {
		opts.PerCandidate = 2 * time.Second
	}
	return &Resolver{driver: driver, clock: clock, opts: opts, logger: logger.Named("locator")}
}

// Driver returns the underlying driver.
func (r *Resolver) Driver() browser.Driver { return r.driver }

// Clock returns the resolver's clock.
func (r *Resolver) Clock() wait.Clock { return r.clock }

// Interval returns the configured polling cadence.
func (r *Resolver) Interval() time.Duration { return r.opts.Interval }

// Resolve finds the first visible element matching t within timeout.
//
// Every candidate is checked once up front, so a match already on screen is
// never held behind earlier candidates. The first pass then walks the
// candidates in order, giving each at most PerCandidate and never more than
// an even share of timeout. If time remains after the pass, every candidate
// is polled together until the deadline, still preferring earlier candidates. An empty
// candidate list is NotFound without waiting, and so is a zero timeout with
// no immediate match.
func (r *Resolver) Resolve(ctx context.Context, t Target, timeout time.Duration) (Resolution, error) {
	if len(t.Candidates) == 0 {
		return Resolution{Status: NotFound}, nil
	}
	if timeout <= 0 {
		res, ok, err := r.probeAll(ctx, t)
		if err != nil || ok {
			return res, err
		}
		return Resolution{Status: NotFound}, nil
	}

	deadline := r.clock.Now().Add(timeout)
	if res, ok, err := r.probeAll(ctx, t); err != nil || ok {
		return res, err
	}

	share := timeout / time.Duration(len(t.Candidates))
	for i, q := range t.Candidates {
		remaining := deadline.Sub(r.clock.Now())
		if remaining <= 0 {
			break
		}
		budget := min(r.opts.PerCandidate, share, remaining)
		el, status, err := wait.Until(ctx, r.clock, wait.Options{Timeout: budget, Interval: r.opts.Interval},
			func(ctx context.Context) (browser.Element, bool, error) {
				return r.first(ctx, q)
			})
		if err != nil {
			return Resolution{Status: TimedOut}, err
		}
		if status == wait.Satisfied {
			r.logger.Debug("Target resolved.", zap.String("target", t.Name), zap.Int("candidate", i), zap.Stringer("query", q))
			return Resolution{Status: Found, Element: el, Query: q}, nil
		}
	}

	remaining := deadline.Sub(r.clock.Now())
	if remaining > 0 {
		res, status, err := wait.Until(ctx, r.clock, wait.Options{Timeout: remaining, Interval: r.opts.Interval},
			func(ctx context.Context) (Resolution, bool, error) {
				return r.probeAll(ctx, t)
			})
		if err != nil {
			return Resolution{Status: TimedOut}, err
		}
		if status == wait.Satisfied {
			return res, nil
		}
	}

	r.logger.Debug("Target not resolved before deadline.", zap.String("target", t.Name), zap.Duration("timeout", timeout))
	return Resolution{Status: TimedOut}, nil
}

// Present reports whether any candidate of t is visible right now.
func (r *Resolver) Present(ctx context.Context, t Target) (bool, error) {
	_, ok, err := r.probeAll(ctx, t)
	return ok, err
}

// All resolves t and then returns every visible match of the candidate that
// produced the first match. The list is a snapshot.
func (r *Resolver) All(ctx context.Context, t Target, timeout time.Duration) ([]browser.Element, Resolution, error) {
	res, err := r.Resolve(ctx, t, timeout)
	if err != nil || res.Status != Found {
		return nil, res, err
	}
	els, err := r.driver.Find(ctx, res.Query)
	if err != nil {
		return nil, res, err
	}
	return els, res, nil
}

// Click resolves t and clicks it. A stale element is re-resolved exactly
// once; a second staleness is reported as NotFound.
func (r *Resolver) Click(ctx context.Context, t Target, timeout time.Duration) error {
	return r.act(ctx, t, timeout, func(el browser.Element) error {
		return r.driver.Click(ctx, el)
	})
}

// Type resolves t and replaces its value with text, with the same single
// stale retry as Click.
func (r *Resolver) Type(ctx context.Context, t Target, text string, timeout time.Duration) error {
	return r.act(ctx, t, timeout, func(el browser.Element) error {
		return r.driver.Type(ctx, el, text)
	})
}

// ClickWhenEnabled resolves t, polls the same candidate until the control is
// enabled (bounded by enableTimeout), and clicks it. It never falls through to
// a different control when the resolved one stays disabled.
func (r *Resolver) ClickWhenEnabled(ctx context.Context, t Target, timeout, enableTimeout time.Duration) error {
	res, err := r.Resolve(ctx, t, timeout)
	if err != nil {
		return err
	}
	if res.Status != Found {
		return res.Err(t.Name)
	}

	el, status, err := wait.Until(ctx, r.clock, wait.Options{Timeout: enableTimeout, Interval: r.opts.Interval},
		func(ctx context.Context) (browser.Element, bool, error) {
			els, err := r.driver.Find(ctx, res.Query)
			if err != nil || len(els) == 0 {
				return browser.Element{}, false, err
			}
			for _, el := range els {
				if el.Ref == res.Element.Ref {
					return el, el.Enabled, nil
				}
			}
			return els[0], els[0].Enabled, nil
		})
	if err != nil {
		return err
	}
	if status != wait.Satisfied {
		return fmt.Errorf("%s stayed disabled: %w", t.Name, browser.ErrTimedOut)
	}

	err = r.driver.Click(ctx, el)
	if !errors.Is(err, browser.ErrStale) {
		return err
	}
	r.logger.Debug("Enabled control went stale; re-resolving once.", zap.String("target", t.Name))
	els, ferr := r.driver.Find(ctx, res.Query)
	if ferr != nil {
		return ferr
	}
	if len(els) == 0 || !els[0].Enabled {
		return fmt.Errorf("%s: %w", t.Name, browser.ErrNotFound)
	}
	if err := r.driver.Click(ctx, els[0]); err != nil {
		if errors.Is(err, browser.ErrStale) {
			return fmt.Errorf("%s stale twice: %w", t.Name, browser.ErrNotFound)
		}
		return err
	}
	return nil
}

func (r *Resolver) act(ctx context.Context, t Target, timeout time.Duration, action func(browser.Element) error) error {
	res, err := r.Resolve(ctx, t, timeout)
	if err != nil {
		return err
	}
	if res.Status != Found {
		return res.Err(t.Name)
	}

	err = action(res.Element)
	if !errors.Is(err, browser.ErrStale) {
		return err
	}

	r.logger.Debug("Element went stale; re-resolving once.", zap.String("target", t.Name))
	res, err = r.Resolve(ctx, t, timeout)
	if err != nil {
		return err
	}
	if res.Status != Found {
		return res.Err(t.Name)
	}
	if err := action(res.Element); err != nil {
		if errors.Is(err, browser.ErrStale) {
			return fmt.Errorf("%s stale twice: %w", t.Name, browser.ErrNotFound)
		}
		return err
	}
	return nil
}

// first returns the first visible match of q.
func (r *Resolver) first(ctx context.Context, q browser.Query) (browser.Element, bool, error) {
	els, err := r.driver.Find(ctx, q)
	if err != nil {
		return browser.Element{}, false, err
	}
	if len(els) == 0 {
		return browser.Element{}, false, nil
	}
	return els[0], true, nil
}

// probeAll checks every candidate once, in priority order.
func (r *Resolver) probeAll(ctx context.Context, t Target) (Resolution, bool, error) {
	for _, q := range t.Candidates {
		el, ok, err := r.first(ctx, q)
		if err != nil {
			return Resolution{Status: NotFound}, false, err
		}
		if ok {
			return Resolution{Status: Found, Element: el, Query: q}, true, nil
		}
	}
	return Resolution{Status: NotFound}, false, nil
}
