package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/browsertest"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
)

const loginURL = "https://example.test/multipass/login"

var creds = Credentials{Username: "ops@example.test", Password: "hunter2", LoginID: "W123456", SSOEmail: "ops@example.test"}

func show(screen string) func(p *browsertest.Page) {
	return func(p *browsertest.Page) { p.Show(screen) }
}

// signInPages scripts the full Microsoft sign-in sequence.
func signInPages() *browsertest.Page {
	p := browsertest.NewPage()
	p.OnNavigate = func(p *browsertest.Page, url string) {
		if url == loginURL {
			p.Show("email")
		}
	}
	p.Screen("email").
		Add(EmailInput.Candidates[0], &browsertest.Node{Ref: "email"}).
		Add(SignInButton.Candidates[0], &browsertest.Node{Ref: "email-next", OnClick: show("password")})
	p.Screen("password").
		Add(PasswordInput.Candidates[0], &browsertest.Node{Ref: "password"}).
		Add(SignInButton.Candidates[0], &browsertest.Node{Ref: "password-submit", OnClick: show("stay")})
	p.Screen("stay").
		Add(SignInButton.Candidates[0], &browsertest.Node{Ref: "stay-yes", OnClick: show("home")})
	p.Screen("home").
		Add(CompassMobile.Candidates[0], &browsertest.Node{Ref: "compass", OnClick: show("wwid")})
	p.Screen("wwid").
		Add(WWIDInput.Candidates[0], &browsertest.Node{Ref: "wwid"}).
		Add(WWIDSubmit.Candidates[0], &browsertest.Node{Ref: "wwid-submit", OnClick: show("app")})
	p.Screen("app")
	return p
}

func newFlow(t *testing.T, p *browsertest.Page) *SSOFlow {
	t.Helper()
	clock := browsertest.NewClock(time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC))
	resolver := locator.NewResolver(p, clock, locator.Options{PerCandidate: time.Second, Interval: 250 * time.Millisecond}, zaptest.NewLogger(t))
	return NewSSOFlow(resolver, Options{LoginURL: loginURL, Timeout: 20 * time.Second, ProbeTimeout: 3 * time.Second}, zaptest.NewLogger(t))
}

func TestEnsureAuthenticated(t *testing.T) {
	ctx := context.Background()

	t.Run("full sign in", func(t *testing.T) {
		p := signInPages()
		res := newFlow(t, p).EnsureAuthenticated(ctx, creds)

		require.True(t, res.OK(), "result: %+v", res)
		assert.Equal(t, []string{loginURL}, p.Navigations())
		assert.Equal(t, creds.Username, p.Typed("email"))
		assert.Equal(t, creds.Password, p.Typed("password"))
		assert.Equal(t, creds.LoginID, p.Typed("wwid"))
		assert.Equal(t, []string{"email-next", "password-submit", "stay-yes", "compass", "wwid-submit"}, p.Clicks())
		assert.Equal(t, "app", p.Current())
	})

	t.Run("existing session is reused", func(t *testing.T) {
		p := signInPages()
		p.Show("home")
		res := newFlow(t, p).EnsureAuthenticated(ctx, creds)

		require.True(t, res.OK())
		assert.Empty(t, p.Navigations())
		assert.Empty(t, p.Typed("password"))
		assert.Equal(t, creds.LoginID, p.Typed("wwid"))
	})

	t.Run("no wwid prompt means the context is already set", func(t *testing.T) {
		p := signInPages()
		p.Screen("home").Set(CompassMobile.Candidates[0], &browsertest.Node{Ref: "compass", OnClick: show("app")})
		p.Show("home")

		res := newFlow(t, p).EnsureAuthenticated(ctx, creds)
		require.True(t, res.OK())
		assert.Empty(t, p.Typed("wwid"))
	})

	t.Run("account picker selects the configured account", func(t *testing.T) {
		p := signInPages()
		p.Screen("home").Add(SSOPage.Candidates[0], &browsertest.Node{Ref: "picker"})
		p.Screen("home").Add(AccountTile(creds.SSOEmail).Candidates[0], &browsertest.Node{Ref: "tile", OnClick: func(p *browsertest.Page) {
			p.Screen("home").Remove(SSOPage.Candidates[0])
		}})
		p.Show("home")

		res := newFlow(t, p).EnsureAuthenticated(ctx, creds)
		require.True(t, res.OK())
		assert.Equal(t, 1, p.ClickCount("tile"))
	})

	t.Run("account picker without an sso email fails", func(t *testing.T) {
		p := signInPages()
		p.Screen("home").Add(SSOPage.Candidates[0], &browsertest.Node{Ref: "picker"})
		p.Show("home")

		noSSO := creds
		noSSO.SSOEmail = ""
		res := newFlow(t, p).EnsureAuthenticated(ctx, noSSO)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, ReasonSSOEmailMissing, res.Reason)
	})

	t.Run("sign in that never lands fails", func(t *testing.T) {
		p := signInPages()
		p.Screen("nowhere")
		p.Screen("stay").Set(SignInButton.Candidates[0], &browsertest.Node{Ref: "stay-yes", OnClick: show("nowhere")})

		res := newFlow(t, p).EnsureAuthenticated(ctx, creds)
		assert.Equal(t, ReasonNotConfirmed, res.Reason)
		assert.ErrorIs(t, res.Err, browser.ErrTimedOut)
	})

	t.Run("lost session is reported as such", func(t *testing.T) {
		p := signInPages()
		p.OnNavigate = func(p *browsertest.Page, _ string) { p.LoseSession() }

		res := newFlow(t, p).EnsureAuthenticated(ctx, creds)
		assert.Equal(t, ReasonSessionLost, res.Reason)
		assert.ErrorIs(t, res.Err, browser.ErrSessionLost)
	})
}
