// Package eligibility decides whether a vehicle is physically due for PM
// paperwork (Gate 1) from the vehicle properties panel.
package eligibility

import (
	"fmt"

	"github.com/xkilldash9x/fleetpm/api/schemas"
)

// Gate 1 failure reasons.
const (
	ReasonNotRentable     = "not_rentable"
	ReasonBelowThreshold  = "buffer_below_threshold"
	ReasonBufferUnknown   = "buffer_unknown"
	ReasonWithinThreshold = "buffer_within_threshold"
)

// EffectiveThreshold is the vehicle's own service interval when known,
// otherwise thresholdDefault.
func EffectiveThreshold(s schemas.VehicleStatusSnapshot, thresholdDefault int) int {
	if s.ServiceInterval.Known {
		return s.ServiceInterval.Value
	}
	return thresholdDefault
}

// Evaluate applies Gate 1. A vehicle is not actionable when it is not
// rentable, or when its buffer is known and below the effective threshold.
// An unknown buffer never fails the gate on its own.
//
// The decision is advisory: callers log a failure and still run Gate 2.
func Evaluate(s schemas.VehicleStatusSnapshot, thresholdDefault int) schemas.GateDecision {
	if !s.Rentable {
		reason := ReasonNotRentable
		if s.Lighthouse != "" {
			reason = fmt.Sprintf("%s: lighthouse=%q", ReasonNotRentable, s.Lighthouse)
		}
		return schemas.GateDecision{Eligible: false, Reason: reason}
	}

	threshold := EffectiveThreshold(s, thresholdDefault)
	buffer := s.BufferMiles()
	if !buffer.Known {
		return schemas.GateDecision{Eligible: true, Reason: ReasonBufferUnknown}
	}
	if buffer.Value < threshold {
		return schemas.GateDecision{
			Eligible: false,
			Reason:   fmt.Sprintf("%s: buffer=%d threshold=%d", ReasonBelowThreshold, buffer.Value, threshold),
		}
	}
	return schemas.GateDecision{
		Eligible: true,
		Reason:   fmt.Sprintf("%s: buffer=%d threshold=%d", ReasonWithinThreshold, buffer.Value, threshold),
	}
}
