package navigation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/fleetpm/internal/auth"
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/browsertest"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
	"github.com/xkilldash9x/fleetpm/internal/mocks"
)

const appURL = "https://example.test/fleet-operations-pwa"

var creds = auth.Credentials{Username: "ops", LoginID: "W1"}

type fixture struct {
	page     *browsertest.Page
	auth     *mocks.MockAuthenticator
	observer *mocks.MockRecoveryObserver
	recovery *Recovery
}

func newFixture(t *testing.T, maxBack int) *fixture {
	t.Helper()
	page := browsertest.NewPage()
	page.Screen("search").Add(Baseline.Candidates[0], &browsertest.Node{Ref: "camera"})
	page.OnNavigate = func(p *browsertest.Page, url string) {
		if url == appURL {
			p.Show("search")
		}
	}
	clock := browsertest.NewClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	resolver := locator.NewResolver(page, clock, locator.Options{Interval: 250 * time.Millisecond}, zaptest.NewLogger(t))

	f := &fixture{page: page, auth: new(mocks.MockAuthenticator), observer: new(mocks.MockRecoveryObserver)}
	f.recovery = NewRecovery(resolver, f.auth, creds, f.observer,
		Options{AppURL: appURL, MaxBackClicks: maxBack, Settle: time.Second, Timeout: 10 * time.Second}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		f.auth.AssertExpectations(t)
		f.observer.AssertExpectations(t)
	})
	return f
}

func backTo(screen string) *browsertest.Node {
	return &browsertest.Node{Ref: "back-" + screen, OnClick: func(p *browsertest.Page) { p.Show(screen) }}
}

func TestEnsureBaseline(t *testing.T) {
	ctx := context.Background()

	t.Run("already at baseline", func(t *testing.T) {
		f := newFixture(t, 3)
		f.page.Show("search")

		at, err := f.recovery.EnsureBaseline(ctx)
		require.NoError(t, err)
		assert.True(t, at)
		assert.Empty(t, f.page.Clicks())
	})

	t.Run("back arrow twice", func(t *testing.T) {
		f := newFixture(t, 3)
		f.page.Screen("vehicle").Add(Back.Candidates[0], backTo("search"))
		f.page.Screen("work-items").Add(Back.Candidates[0], backTo("vehicle"))
		f.page.Show("work-items")
		f.observer.On("ObserveRecovery", MethodBack, true).Once()

		at, err := f.recovery.EnsureBaseline(ctx)
		require.NoError(t, err)
		assert.True(t, at)
		assert.Equal(t, []string{"back-vehicle", "back-search"}, f.page.Clicks())
		assert.Empty(t, f.page.Navigations())
	})

	t.Run("back limit falls through to re-authentication", func(t *testing.T) {
		f := newFixture(t, 2)
		f.page.Screen("stuck").Add(Back.Candidates[0], &browsertest.Node{Ref: "back"})
		f.page.Show("stuck")
		f.auth.On("EnsureAuthenticated", mock.Anything, creds).Return(auth.Result{Status: auth.StatusOK}).Once()
		f.observer.On("ObserveRecovery", MethodBack, false).Once()
		f.observer.On("ObserveRecovery", MethodReauth, true).Once()

		at, err := f.recovery.EnsureBaseline(ctx)
		require.NoError(t, err)
		assert.True(t, at)
		assert.Equal(t, 2, f.page.ClickCount("back"))
		assert.Equal(t, []string{appURL}, f.page.Navigations())
	})

	t.Run("no back arrow and zero back clicks go straight to re-authentication", func(t *testing.T) {
		for _, maxBack := range []int{0, 3} {
			t.Run(fmt.Sprintf("max_back_clicks=%d", maxBack), func(t *testing.T) {
				f := newFixture(t, maxBack)
				f.page.Screen("login")
				f.page.Show("login")
				f.auth.On("EnsureAuthenticated", mock.Anything, creds).Return(auth.Result{Status: auth.StatusOK}).Once()
				if maxBack > 0 {
					f.observer.On("ObserveRecovery", MethodBack, false).Once()
				}
				f.observer.On("ObserveRecovery", MethodReauth, true).Once()

				at, err := f.recovery.EnsureBaseline(ctx)
				require.NoError(t, err)
				assert.True(t, at)
			})
		}
	})

	t.Run("failed sign-in still tries the app url and reports false", func(t *testing.T) {
		f := newFixture(t, 0)
		f.page.Screen("blocked")
		f.page.Show("blocked")
		f.page.OnNavigate = nil
		f.auth.On("EnsureAuthenticated", mock.Anything, creds).
			Return(auth.Result{Status: auth.StatusFailed, Reason: auth.ReasonNotConfirmed, Err: browser.ErrTimedOut}).Once()
		f.observer.On("ObserveRecovery", MethodReauth, false).Once()

		at, err := f.recovery.EnsureBaseline(ctx)
		require.NoError(t, err)
		assert.False(t, at)
		assert.Equal(t, []string{appURL}, f.page.Navigations())
	})

	t.Run("session lost during sign-in is an error", func(t *testing.T) {
		f := newFixture(t, 0)
		f.page.Show("blank")
		f.auth.On("EnsureAuthenticated", mock.Anything, creds).
			Return(auth.Result{Status: auth.StatusFailed, Reason: auth.ReasonSessionLost, Err: browser.ErrSessionLost}).Once()

		at, err := f.recovery.EnsureBaseline(ctx)
		assert.False(t, at)
		assert.ErrorIs(t, err, browser.ErrSessionLost)
		assert.Empty(t, f.page.Navigations())
	})

	t.Run("session lost before anything else is an error", func(t *testing.T) {
		f := newFixture(t, 3)
		f.page.LoseSession()

		at, err := f.recovery.EnsureBaseline(ctx)
		assert.False(t, at)
		assert.ErrorIs(t, err, browser.ErrSessionLost)
	})
}
