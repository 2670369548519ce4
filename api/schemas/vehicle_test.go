package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMiles(t *testing.T) {
	tests := []struct {
		in   string
		want Miles
	}{
		{"12,345 mi", KnownMiles(12345)},
		{" 3000 ", KnownMiles(3000)},
		{"0", KnownMiles(0)},
		{"", UnknownMiles()},
		{"N/A", UnknownMiles()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMiles(tt.in))
		})
	}
}

func TestBufferMiles(t *testing.T) {
	snap := VehicleStatusSnapshot{Odometer: KnownMiles(40000), NextService: KnownMiles(43500)}
	assert.Equal(t, KnownMiles(3500), snap.BufferMiles())

	snap.NextService = UnknownMiles()
	assert.False(t, snap.BufferMiles().Known, "unknown inputs never default to zero")

	snap = VehicleStatusSnapshot{Odometer: KnownMiles(45000), NextService: KnownMiles(43500)}
	assert.Equal(t, KnownMiles(-1500), snap.BufferMiles(), "overdue vehicles have a negative buffer")
}

func TestIsRentableStatus(t *testing.T) {
	assert.True(t, IsRentableStatus("Rentable"))
	assert.True(t, IsRentableStatus("  rentable "))
	assert.False(t, IsRentableStatus("Not Rentable"))
	assert.False(t, IsRentableStatus("PM Hard Hold"))
	assert.False(t, IsRentableStatus(""))
}

func TestTiles(t *testing.T) {
	assert.Equal(t, TileOpen, ParseTileState("Open"))
	assert.Equal(t, TileComplete, ParseTileState(" complete "))
	assert.Equal(t, TileUnknown, ParseTileState("Pending review"))

	assert.True(t, WorkItemTile{Type: "PM"}.IsPM())
	assert.True(t, WorkItemTile{Type: "Work Item", Complaint: "PM Hard Hold - PM"}.IsPM())
	assert.False(t, WorkItemTile{Type: "Glass"}.IsPM())
	assert.False(t, WorkItemTile{Type: "RPM sensor"}.IsPM())

	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	recent := WorkItemTile{CreatedAt: now.Add(-10 * 24 * time.Hour), CreatedKnown: true}
	old := WorkItemTile{CreatedAt: now.Add(-45 * 24 * time.Hour), CreatedKnown: true}
	unknown := WorkItemTile{}
	window := 30 * 24 * time.Hour
	assert.True(t, recent.CreatedWithin(now, window))
	assert.False(t, old.CreatedWithin(now, window))
	assert.False(t, unknown.CreatedWithin(now, window))
}

func TestParseCreatedAt(t *testing.T) {
	ts, ok := ParseCreatedAt("Created At: 06/20/2025, 9:15 AM")
	require.True(t, ok)
	assert.Equal(t, 2025, ts.Year())
	assert.Equal(t, time.June, ts.Month())
	assert.Equal(t, 20, ts.Day())
	assert.Equal(t, 9, ts.Hour())

	ts, ok = ParseCreatedAt("2025-06-01")
	require.True(t, ok)
	assert.Equal(t, 1, ts.Day())

	_, ok = ParseCreatedAt("yesterday")
	assert.False(t, ok)
	_, ok = ParseCreatedAt("")
	assert.False(t, ok)
}

func TestOutcomeConstructors(t *testing.T) {
	o := FailedOutcome("12345678", "opcode")
	assert.True(t, o.IsFailure())
	assert.Equal(t, "opcode", o.Reason)
	assert.False(t, NewOutcome("12345678", StatusCreated).IsFailure())
}

func TestContainsToken(t *testing.T) {
	assert.True(t, ContainsToken("PM Hard Hold", "PM"))
	assert.True(t, ContainsToken("pm", "PM"))
	assert.True(t, ContainsToken("Hold - PM", "pm"))
	assert.False(t, ContainsToken("RPM check", "PM"))
	assert.False(t, ContainsToken("Rentable", "PM"))
	assert.False(t, ContainsToken("PM", ""))
}
