package schemas

import (
	"strconv"
	"strings"
)

// VehicleRecord identifies one vehicle in the run by its 8-digit MVA.
type VehicleRecord struct {
	ID string `json:"id"`
}

// Miles is a mileage reading that may not have been readable from the page.
// An unknown reading is never treated as zero.
type Miles struct {
	Value int  `json:"value"`
	Known bool `json:"known"`
}

// KnownMiles wraps a value that was read successfully.
func KnownMiles(v int) Miles { return Miles{Value: v, Known: true} }

// UnknownMiles is the zero Miles, spelled out for readability at call sites.
func UnknownMiles() Miles { return Miles{} }

// ParseMiles keeps only the digits of s. No digits yields an unknown reading.
func ParseMiles(s string) Miles {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return UnknownMiles()
	}
	v, err := strconv.Atoi(b.String())
	if err != nil {
		return UnknownMiles()
	}
	return KnownMiles(v)
}

func (m Miles) String() string {
	if !m.Known {
		return "unknown"
	}
	return strconv.Itoa(m.Value)
}

// VehicleStatusSnapshot is read fresh for each vehicle from the properties panel.
type VehicleStatusSnapshot struct {
	// Lighthouse is the raw availability status text ("Rentable", "PM", "PM Hard Hold", ...).
	Lighthouse      string `json:"lighthouse"`
	Rentable        bool   `json:"rentable"`
	Odometer        Miles  `json:"odometer"`
	NextService     Miles  `json:"next_service"`
	ServiceInterval Miles  `json:"service_interval"`
}

// IsRentableStatus reports whether a Lighthouse status marks the vehicle rentable.
func IsRentableStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if strings.Contains(s, "not rentable") || strings.Contains(s, "non-rentable") || strings.Contains(s, "unrentable") {
		return false
	}
	return strings.Contains(s, "rentable")
}

// BufferMiles is NextService minus Odometer, unknown unless both are known.
func (s VehicleStatusSnapshot) BufferMiles() Miles {
	if !s.Odometer.Known || !s.NextService.Known {
		return UnknownMiles()
	}
	return KnownMiles(s.NextService.Value - s.Odometer.Value)
}
