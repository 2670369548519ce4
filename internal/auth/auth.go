// Package auth signs the operator into the fleet application. It knows the
// login pages only through locator targets; it never decides anything about
// vehicles.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
	"github.com/xkilldash9x/fleetpm/internal/browser/wait"
	"github.com/xkilldash9x/fleetpm/internal/config"
)

// Status is the outcome of an authentication attempt.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Failure reasons.
const (
	ReasonLoginPage       = "login_page"
	ReasonPassword        = "password"
	ReasonNotConfirmed    = "login_not_confirmed"
	ReasonSSOEmailMissing = "sso_email_missing"
	ReasonSSOSelection    = "sso_selection_failed"
	ReasonUserContext     = "user_context"
	ReasonSessionLost     = "session_lost"
)

// Credentials identify the operator.
type Credentials struct {
	Username string
	Password string
	// LoginID is the WWID entered on the Compass Mobile landing page.
	LoginID  string
	SSOEmail string
}

// CredentialsFromConfig copies the configured identity.
func CredentialsFromConfig(c config.CredentialsConfig) Credentials {
	return Credentials{Username: c.Username, Password: c.Password, LoginID: c.LoginID, SSOEmail: c.SSOEmail}
}

// Result reports whether the session is signed in. Err carries the cause of
// a failure and may wrap browser.ErrSessionLost.
type Result struct {
	Status Status
	Reason string
	Err    error
}

// OK reports whether authentication succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

func ok() Result { return Result{Status: StatusOK} }

func failed(reason string, err error) Result {
	if errors.Is(err, browser.ErrSessionLost) {
		reason = ReasonSessionLost
	}
	return Result{Status: StatusFailed, Reason: reason, Err: err}
}

// Authenticator establishes a signed-in session. Implementations reuse an
// existing session when one is detected.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context, creds Credentials) Result
}

// Sign-in page controls.
var (
	CompassMobile = locator.NewTarget("compass mobile",
		browser.XPath("//span[contains(text(),'Compass Mobile')]"),
		browser.XPath("//button[contains(.,'Compass Mobile')]"),
	)
	UseAnotherAccount = locator.NewTarget("use another account",
		browser.XPath("//div[text()='Use another account']"),
	)
	EmailInput = locator.NewTarget("email",
		browser.CSS("input[name='loginfmt']"),
	)
	PasswordInput = locator.NewTarget("password",
		browser.CSS("input[name='passwd']"),
	)
	// SignInButton is reused by the email, password and "Stay signed in?" pages.
	SignInButton = locator.NewTarget("sign in",
		browser.CSS("#idSIButton9"),
	)
	SSOPage = locator.NewTarget("pick an account",
		browser.XPath("//div[contains(@aria-label,'Pick an account') or contains(@data-testid,'sso-page-identifier')]"),
	)
	WWIDInput = locator.NewTarget("wwid",
		browser.CSS("input[type='text'][class*='fleet-operations-pwa__text-input__']"),
		browser.CSS("input[class*='fleet-operations-pwa__text-input__']"),
	)
	WWIDSubmit = locator.NewTarget("wwid submit",
		browser.CSS("button.bp6-button.bp6-intent-success.fleet-operations-pwa__submit-button__1fbse6k"),
		browser.XPath("//button[contains(@class,'submit-button') and contains(@class,'bp6-intent-success')]"),
	)
)

// AccountTile targets the SSO tile for email.
func AccountTile(email string) locator.Target {
	return locator.NewTarget("account tile",
		browser.XPath("//div[contains(@data-testid,'account-tile') and .//div[contains(text(),"+browser.QuoteXPath(email)+")]]"),
	)
}

// Options tunes the sign-in flow.
type Options struct {
	LoginURL string
	// Timeout bounds each wait for a sign-in page to appear.
	Timeout time.Duration
	// ProbeTimeout bounds checks for optional pages.
	ProbeTimeout time.Duration
}

// SSOFlow signs in through the Microsoft identity pages, the optional
// account picker and the Compass Mobile WWID prompt.
type SSOFlow struct {
	resolver *locator.Resolver
	clock    wait.Clock
	opts     Options
	logger   *zap.Logger
}

var _ Authenticator = (*SSOFlow)(nil)

// NewSSOFlow creates an SSOFlow.
func NewSSOFlow(resolver *locator.Resolver, opts Options, logger *zap.Logger) *SSOFlow {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	return &SSOFlow{resolver: resolver, clock: resolver.Clock(), opts: opts, logger: logger.Named("auth")}
}

// EnsureAuthenticated signs in unless the Compass Mobile entry is already
// visible, then makes sure the user context (WWID) is set.
func (f *SSOFlow) EnsureAuthenticated(ctx context.Context, creds Credentials) Result {
	signedIn, err := f.appears(ctx, CompassMobile, f.opts.ProbeTimeout)
	if err != nil {
		return failed(ReasonLoginPage, err)
	}
	if signedIn {
		f.logger.Info("Session already authenticated; reusing it.")
	} else if res := f.login(ctx, creds); !res.OK() {
		return res
	}

	picker, err := f.appears(ctx, SSOPage, f.opts.ProbeTimeout)
	if err != nil {
		return failed(ReasonSSOSelection, err)
	}
	if picker {
		if creds.SSOEmail == "" {
			f.logger.Error("SSO account picker shown but no sso_email is configured.")
			return failed(ReasonSSOEmailMissing, errors.New("credentials.sso_email is empty"))
		}
		if err := f.resolver.Click(ctx, AccountTile(creds.SSOEmail), f.opts.Timeout); err != nil {
			return failed(ReasonSSOSelection, fmt.Errorf("select account %s: %w", creds.SSOEmail, err))
		}
		f.logger.Info("SSO account selected.", zap.String("account", creds.SSOEmail))
	}

	if err := f.resolver.Click(ctx, CompassMobile, f.opts.ProbeTimeout); err != nil {
		if errors.Is(err, browser.ErrSessionLost) {
			return failed(ReasonUserContext, err)
		}
		f.logger.Debug("Compass Mobile control not clickable; assuming the app is already open.", zap.Error(err))
	}

	return f.ensureUserContext(ctx, creds.LoginID)
}

func (f *SSOFlow) login(ctx context.Context, creds Credentials) Result {
	f.logger.Info("No active session; signing in.", zap.String("username", creds.Username))
	if err := f.resolver.Driver().Navigate(ctx, f.opts.LoginURL); err != nil {
		return failed(ReasonLoginPage, err)
	}

	if err := f.resolver.Click(ctx, UseAnotherAccount, f.opts.ProbeTimeout); err == nil {
		f.logger.Debug("Account picker dismissed with 'Use another account'.")
	} else if errors.Is(err, browser.ErrSessionLost) {
		return failed(ReasonLoginPage, err)
	}

	if err := f.resolver.Type(ctx, EmailInput, creds.Username, f.opts.Timeout); err != nil {
		return failed(ReasonLoginPage, err)
	}
	if err := f.resolver.Click(ctx, SignInButton, f.opts.Timeout); err != nil {
		return failed(ReasonLoginPage, err)
	}

	if err := f.resolver.Type(ctx, PasswordInput, creds.Password, f.opts.Timeout); err != nil {
		return failed(ReasonPassword, err)
	}
	if err := f.resolver.Click(ctx, SignInButton, f.opts.Timeout); err != nil {
		return failed(ReasonPassword, err)
	}

	// "Stay signed in?" reuses the same button id and is optional.
	if err := f.resolver.Click(ctx, SignInButton, f.opts.ProbeTimeout); err != nil && errors.Is(err, browser.ErrSessionLost) {
		return failed(ReasonPassword, err)
	}

	confirmed, err := f.appears(ctx, CompassMobile, f.opts.Timeout)
	if err != nil {
		return failed(ReasonNotConfirmed, err)
	}
	if !confirmed {
		return failed(ReasonNotConfirmed, fmt.Errorf("post-login page not detected: %w", browser.ErrTimedOut))
	}
	f.logger.Info("Sign-in confirmed.")
	return ok()
}

// ensureUserContext enters the WWID when the landing page asks for it and
// waits for the prompt to go away.
func (f *SSOFlow) ensureUserContext(ctx context.Context, loginID string) Result {
	prompt, err := f.appears(ctx, WWIDInput, f.opts.ProbeTimeout)
	if err != nil {
		return failed(ReasonUserContext, err)
	}
	if !prompt {
		f.logger.Debug("No WWID prompt; user context already set.")
		return ok()
	}

	if err := f.resolver.Type(ctx, WWIDInput, loginID, f.opts.Timeout); err != nil {
		return failed(ReasonUserContext, err)
	}
	if err := f.resolver.ClickWhenEnabled(ctx, WWIDSubmit, f.opts.Timeout, f.opts.Timeout); err != nil {
		return failed(ReasonUserContext, err)
	}

	status, err := wait.For(ctx, f.clock, wait.Options{Timeout: f.opts.Timeout, Interval: f.resolver.Interval()},
		func(ctx context.Context) (bool, error) {
			open, err := f.resolver.Present(ctx, WWIDInput)
			return !open, err
		})
	if err != nil {
		return failed(ReasonUserContext, err)
	}
	if status != wait.Satisfied {
		return failed(ReasonUserContext, fmt.Errorf("WWID prompt still shown: %w", browser.ErrTimedOut))
	}
	f.logger.Info("User context set.")
	return ok()
}

// appears reports whether t becomes visible within timeout.
func (f *SSOFlow) appears(ctx context.Context, t locator.Target, timeout time.Duration) (bool, error) {
	res, err := f.resolver.Resolve(ctx, t, timeout)
	if err != nil {
		return false, err
	}
	return res.Status == locator.Found, nil
}
