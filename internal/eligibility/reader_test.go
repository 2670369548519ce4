package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/fleetpm/internal/browser/browsertest"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
)

func property(name, value string) *browsertest.Node {
	return &browsertest.Node{Fields: map[string]string{fieldName: name, fieldValue: value}}
}

func newTestReader(t *testing.T, page *browsertest.Page) (*Reader, *browsertest.Clock) {
	t.Helper()
	clock := browsertest.NewClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	resolver := locator.NewResolver(page, clock, locator.Options{PerCandidate: time.Second, Interval: 250 * time.Millisecond}, zaptest.NewLogger(t))
	return NewReader(resolver, 5*time.Second, zaptest.NewLogger(t)), clock
}

func TestReaderRead(t *testing.T) {
	ctx := context.Background()

	t.Run("AllFields", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Screen("vehicle").Add(Properties.Candidates[0],
			property("MVA", "51009066"),
			property("Lighthouse", "Rentable"),
			property("Wizard Odometer", "80,000 mi"),
			property("Next PM Mileage", "84,500"),
			property("PM Interval", "4000"),
		)
		page.Show("vehicle")
		r, _ := newTestReader(t, page)

		snap, err := r.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Rentable", snap.Lighthouse)
		assert.True(t, snap.Rentable)
		assert.Equal(t, 80000, snap.Odometer.Value)
		assert.Equal(t, 84500, snap.NextService.Value)
		assert.Equal(t, 4000, snap.ServiceInterval.Value)
		assert.Equal(t, 4500, snap.BufferMiles().Value)
		assert.True(t, Evaluate(snap, 3000).Eligible)
	})

	t.Run("UnreadableFieldsStayUnknown", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Screen("vehicle").Add(Properties.Candidates[1],
			property("Lighthouse Status", "PM Hard Hold"),
			property("Wizard Odometer", "--"),
		)
		page.Show("vehicle")
		r, _ := newTestReader(t, page)

		snap, err := r.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "PM Hard Hold", snap.Lighthouse)
		assert.False(t, snap.Rentable)
		assert.False(t, snap.Odometer.Known)
		assert.False(t, snap.NextService.Known)
		assert.False(t, snap.ServiceInterval.Known)
		assert.False(t, snap.BufferMiles().Known)
	})

	t.Run("PanelNeverRenders", func(t *testing.T) {
		page := browsertest.NewPage()
		r, clock := newTestReader(t, page)
		start := clock.Now()

		snap, err := r.Read(ctx)
		require.NoError(t, err)
		assert.False(t, snap.Odometer.Known)
		assert.Empty(t, snap.Lighthouse)
		assert.Equal(t, 5*time.Second, clock.Elapsed(start))
	})

	t.Run("DriverFault", func(t *testing.T) {
		page := browsertest.NewPage()
		page.FindErr = errors.New("devtools disconnected")
		r, _ := newTestReader(t, page)

		_, err := r.Read(ctx)
		assert.Error(t, err)
	})
}
