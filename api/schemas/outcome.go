package schemas

import "time"

// OutcomeStatus is the terminal classification of one vehicle.
type OutcomeStatus string

const (
	StatusCompleted          OutcomeStatus = "completed"
	StatusVerifiedRecent     OutcomeStatus = "verified_recent"
	StatusCreated            OutcomeStatus = "created"
	StatusSkippedRentable    OutcomeStatus = "skipped_rentable"
	StatusSkippedNoComplaint OutcomeStatus = "skipped_no_complaint"
	StatusSkippedCDKRequired OutcomeStatus = "skipped_cdk_required"
	StatusFailed             OutcomeStatus = "failed"
)

// Failure reasons that are not step names.
const (
	ReasonUnexpectedScreen = "unexpected_screen"
	ReasonVehicleLookup    = "vehicle_lookup"
	ReasonSessionLost      = "session_lost"
)

// GateDecision is the result of the mileage/rentable pre-check.
type GateDecision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Outcome is produced exactly once per vehicle per run and is never retried.
type Outcome struct {
	VehicleID string                 `json:"vehicle_id"`
	Status    OutcomeStatus          `json:"status"`
	Reason    string                 `json:"reason,omitempty"`
	Gate      *GateDecision          `json:"gate,omitempty"`
	Snapshot  *VehicleStatusSnapshot `json:"snapshot,omitempty"`
	// Artifacts lists the screenshot and page source saved on failure.
	Artifacts []string      `json:"artifacts,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// NewOutcome builds a non-failure outcome.
func NewOutcome(vehicleID string, status OutcomeStatus) Outcome {
	return Outcome{VehicleID: vehicleID, Status: status}
}

// FailedOutcome builds a failed outcome carrying the step name or cause.
func FailedOutcome(vehicleID, reason string) Outcome {
	return Outcome{VehicleID: vehicleID, Status: StatusFailed, Reason: reason}
}

// IsFailure reports whether the outcome is failed.
func (o Outcome) IsFailure() bool { return o.Status == StatusFailed }
