// Package navigation returns the app to its baseline screen (vehicle search
// with the camera button) between vehicles.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/internal/auth"
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
	"github.com/xkilldash9x/fleetpm/internal/browser/wait"
)

var (
	// Baseline is present only on the vehicle search screen.
	Baseline = locator.NewTarget("camera button",
		browser.XPath("//button[contains(@class,'fleet-operations-pwa__camera-button')]"),
	)
	Back = locator.NewTarget("back",
		browser.XPath("//button[contains(@class,'fleet-operations-pwa__back-button')]"),
	)
)

// Recovery methods, as recorded in metrics.
const (
	MethodBack   = "back"
	MethodReauth = "reauth"
)

// RecoveryObserver receives one call per recovery attempt.
type RecoveryObserver interface {
	ObserveRecovery(method string, ok bool)
}

// Options tunes recovery.
type Options struct {
	AppURL        string
	MaxBackClicks int
	// Settle is how long the baseline may take to appear after a Back click.
	Settle time.Duration
	// Timeout bounds the wait for the baseline after re-navigating.
	Timeout time.Duration
}

// Recovery implements the baseline ladder.
type Recovery struct {
	resolver *locator.Resolver
	clock    wait.Clock
	auth     auth.Authenticator
	creds    auth.Credentials
	observer RecoveryObserver
	opts     Options
	logger   *zap.Logger
}

// NewRecovery creates a Recovery. observer may be nil.
func NewRecovery(resolver *locator.Resolver, authenticator auth.Authenticator, creds auth.Credentials, observer RecoveryObserver, opts Options, logger *zap.Logger) *Recovery {
	if opts.Settle <= 0 {
		opts.Settle = 1500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Recovery{
		resolver: resolver,
		clock:    resolver.Clock(),
		auth:     authenticator,
		creds:    creds,
		observer: observer,
		opts:     opts,
		logger:   logger.Named("navigation"),
	}
}

// EnsureBaseline reports whether the baseline screen is showing, trying Back
// first and then a fresh sign-in plus navigation to the app URL. Driver
// failures, including a lost session, are returned as errors.
func (r *Recovery) EnsureBaseline(ctx context.Context) (bool, error) {
	at, err := r.resolver.Present(ctx, Baseline)
	if err != nil || at {
		return at, err
	}

	if r.opts.MaxBackClicks > 0 {
		at, err = r.backOut(ctx)
		if err != nil {
			return false, err
		}
		r.observe(MethodBack, at)
		if at {
			return true, nil
		}
	}

	at, err = r.reauth(ctx)
	if err != nil {
		return false, err
	}
	r.observe(MethodReauth, at)
	if !at {
		r.logger.Error("Baseline screen not reached after re-authentication.")
	}
	return at, nil
}

func (r *Recovery) backOut(ctx context.Context) (bool, error) {
	for i := 1; i <= r.opts.MaxBackClicks; i++ {
		err := r.resolver.Click(ctx, Back, 0)
		if errors.Is(err, browser.ErrNotFound) {
			r.logger.Info("No back arrow visible.")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		r.logger.Info("Back arrow clicked.", zap.Int("click", i), zap.Int("max", r.opts.MaxBackClicks))

		at, err := r.awaitBaseline(ctx, r.opts.Settle)
		if err != nil || at {
			return at, err
		}
	}
	r.logger.Warn("Back arrow limit reached without returning to the search screen.")
	return false, nil
}

func (r *Recovery) reauth(ctx context.Context) (bool, error) {
	r.logger.Info("Re-authenticating to recover the search screen.")
	res := r.auth.EnsureAuthenticated(ctx, r.creds)
	if !res.OK() {
		if errors.Is(res.Err, browser.ErrSessionLost) || ctx.Err() != nil {
			return false, fmt.Errorf("re-authentication: %w", res.Err)
		}
		r.logger.Warn("Re-authentication failed.", zap.String("reason", res.Reason), zap.Error(res.Err))
	}

	if err := r.resolver.Driver().Navigate(ctx, r.opts.AppURL); err != nil {
		if errors.Is(err, browser.ErrSessionLost) {
			return false, err
		}
		r.logger.Warn("Navigation to the app URL failed.", zap.Error(err))
	}
	return r.awaitBaseline(ctx, r.opts.Timeout)
}

func (r *Recovery) awaitBaseline(ctx context.Context, timeout time.Duration) (bool, error) {
	status, err := wait.For(ctx, r.clock, wait.Options{Timeout: timeout, Interval: r.resolver.Interval()},
		func(ctx context.Context) (bool, error) {
			return r.resolver.Present(ctx, Baseline)
		})
	if err != nil {
		return false, err
	}
	return status == wait.Satisfied, nil
}

func (r *Recovery) observe(method string, ok bool) {
	if r.observer != nil {
		r.observer.ObserveRecovery(method, ok)
	}
}
