package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/fleetpm/internal/browser/browsertest"
)

var epoch = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func TestUntil(t *testing.T) {
	t.Run("satisfied immediately does not sleep", func(t *testing.T) {
		clock := browsertest.NewClock(epoch)
		v, status, err := Until(context.Background(), clock, Options{Timeout: 5 * time.Second, Interval: time.Second},
			func(ctx context.Context) (string, bool, error) { return "ready", true, nil })

		require.NoError(t, err)
		assert.Equal(t, Satisfied, status)
		assert.Equal(t, "ready", v)
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("observed within one interval of becoming true", func(t *testing.T) {
		for _, becomesTrue := range []time.Duration{300 * time.Millisecond, 1 * time.Second, 2300 * time.Millisecond} {
			clock := browsertest.NewClock(epoch)
			interval := 500 * time.Millisecond
			_, status, err := Until(context.Background(), clock, Options{Timeout: 10 * time.Second, Interval: interval},
				func(ctx context.Context) (bool, bool, error) {
					return true, clock.Elapsed(epoch) >= becomesTrue, nil
				})

			require.NoError(t, err)
			assert.Equal(t, Satisfied, status)
			assert.LessOrEqual(t, clock.Elapsed(epoch), becomesTrue+interval)
		}
	})

	t.Run("never satisfied times out no earlier than the timeout", func(t *testing.T) {
		clock := browsertest.NewClock(epoch)
		probes := 0
		_, status, err := Until(context.Background(), clock, Options{Timeout: 2 * time.Second, Interval: 300 * time.Millisecond},
			func(ctx context.Context) (int, bool, error) { probes++; return probes, false, nil })

		require.NoError(t, err, "an ordinary non-match is not an error")
		assert.Equal(t, TimedOut, status)
		assert.GreaterOrEqual(t, clock.Elapsed(epoch), 2*time.Second)
		assert.Equal(t, 2*time.Second, clock.Elapsed(epoch), "the last sleep is clipped to the deadline")
		assert.Equal(t, 8, probes, "probe at 0, 0.3 ... 1.8 and once more at the deadline")
	})

	t.Run("floor delays the first probe", func(t *testing.T) {
		clock := browsertest.NewClock(epoch)
		var firstProbe time.Duration = -1
		_, status, err := Until(context.Background(), clock, Options{Timeout: time.Second, Interval: 100 * time.Millisecond, Floor: 750 * time.Millisecond},
			func(ctx context.Context) (struct{}, bool, error) {
				if firstProbe < 0 {
					firstProbe = clock.Elapsed(epoch)
				}
				return struct{}{}, true, nil
			})

		require.NoError(t, err)
		assert.Equal(t, Satisfied, status)
		assert.Equal(t, 750*time.Millisecond, firstProbe)
	})

	t.Run("zero timeout probes exactly once", func(t *testing.T) {
		clock := browsertest.NewClock(epoch)
		probes := 0
		_, status, err := Until(context.Background(), clock, Options{},
			func(ctx context.Context) (int, bool, error) { probes++; return 0, false, nil })

		require.NoError(t, err)
		assert.Equal(t, TimedOut, status)
		assert.Equal(t, 1, probes)
	})

	t.Run("probe faults propagate", func(t *testing.T) {
		clock := browsertest.NewClock(epoch)
		boom := errors.New("cdp: target crashed")
		_, _, err := Until(context.Background(), clock, Options{Timeout: time.Second},
			func(ctx context.Context) (int, bool, error) { return 0, false, boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled context stops the wait", func(t *testing.T) {
		clock := browsertest.NewClock(epoch)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, status, err := Until(ctx, clock, Options{Timeout: time.Second},
			func(ctx context.Context) (int, bool, error) { return 0, true, nil })
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, TimedOut, status)
	})
}

func TestFor(t *testing.T) {
	clock := browsertest.NewClock(epoch)
	calls := 0
	status, err := For(context.Background(), clock, Options{Timeout: time.Second, Interval: 100 * time.Millisecond},
		func(ctx context.Context) (bool, error) { calls++; return calls == 3, nil })

	require.NoError(t, err)
	assert.Equal(t, Satisfied, status)
	assert.Equal(t, 200*time.Millisecond, clock.Elapsed(epoch))
}

func TestSystemClockSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := SystemClock().Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
