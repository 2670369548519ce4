package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/fleetpm/api/schemas"
)

func snapshot(rentable bool, odometer, next, interval schemas.Miles) schemas.VehicleStatusSnapshot {
	return schemas.VehicleStatusSnapshot{
		Rentable:        rentable,
		Odometer:        odometer,
		NextService:     next,
		ServiceInterval: interval,
	}
}

func TestEvaluate(t *testing.T) {
	known := schemas.KnownMiles
	unknown := schemas.UnknownMiles()

	tests := []struct {
		name     string
		snap     schemas.VehicleStatusSnapshot
		eligible bool
		reason   string
	}{
		{"buffer above interval", snapshot(true, known(80000), known(84500), known(4000)), true, ReasonWithinThreshold},
		{"buffer equal to interval", snapshot(true, known(80000), known(84000), known(4000)), true, ReasonWithinThreshold},
		{"buffer below interval", snapshot(true, known(80000), known(83000), known(4000)), false, ReasonBelowThreshold},
		{"default threshold when interval unknown", snapshot(true, known(80000), known(82999), unknown), false, ReasonBelowThreshold},
		{"default threshold satisfied", snapshot(true, known(80000), known(83000), unknown), true, ReasonWithinThreshold},
		{"unknown odometer is not below threshold", snapshot(true, unknown, known(84500), known(4000)), true, ReasonBufferUnknown},
		{"unknown next service", snapshot(true, known(80000), unknown, known(4000)), true, ReasonBufferUnknown},
		{"overdue vehicle", snapshot(true, known(90000), known(84500), known(4000)), false, ReasonBelowThreshold},
		{"not rentable", snapshot(false, known(80000), known(84500), known(4000)), false, ReasonNotRentable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.snap, 3000)
			assert.Equal(t, tt.eligible, d.Eligible)
			assert.Contains(t, d.Reason, tt.reason)
		})
	}
}

func TestEvaluateProperties(t *testing.T) {
	// Rentable with a known buffer at or above the threshold is always eligible.
	for _, interval := range []int{1000, 3000, 4000, 7500} {
		for _, extra := range []int{0, 1, 250, 10000} {
			s := snapshot(true, schemas.KnownMiles(50000), schemas.KnownMiles(50000+interval+extra), schemas.KnownMiles(interval))
			assert.True(t, Evaluate(s, 3000).Eligible, "interval=%d extra=%d", interval, extra)
		}
	}

	// Not rentable is never eligible, whatever the buffer.
	for _, buffer := range []int{-5000, 0, 3000, 100000} {
		s := snapshot(false, schemas.KnownMiles(50000), schemas.KnownMiles(50000+buffer), schemas.UnknownMiles())
		assert.False(t, Evaluate(s, 3000).Eligible, "buffer=%d", buffer)
	}
}

func TestNotRentableReasonNamesStatus(t *testing.T) {
	s := snapshot(false, schemas.UnknownMiles(), schemas.UnknownMiles(), schemas.UnknownMiles())
	s.Lighthouse = "PM Hard Hold"
	d := Evaluate(s, 3000)
	assert.Equal(t, `not_rentable: lighthouse="PM Hard Hold"`, d.Reason)
}

func TestEffectiveThreshold(t *testing.T) {
	s := snapshot(true, schemas.UnknownMiles(), schemas.UnknownMiles(), schemas.KnownMiles(4000))
	assert.Equal(t, 4000, EffectiveThreshold(s, 3000))
	s.ServiceInterval = schemas.UnknownMiles()
	assert.Equal(t, 3000, EffectiveThreshold(s, 3000))
}
