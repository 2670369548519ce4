package results

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/fleetpm/api/schemas"
)

// Summary aggregates the outcomes of one run.
type Summary struct {
	RunID    string                        `json:"run_id"`
	Started  time.Time                     `json:"started_at"`
	Finished time.Time                     `json:"finished_at"`
	Total    int                           `json:"total"`
	ByStatus map[schemas.OutcomeStatus]int `json:"by_status"`
	// Failures counts failed outcomes by reason.
	Failures map[string]int `json:"failures,omitempty"`
	// Remaining is the number of vehicles not reached because the run stopped.
	Remaining int    `json:"remaining"`
	Halted    string `json:"halted,omitempty"`
}

// NewSummary starts an empty summary.
func NewSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:    runID,
		Started:  started,
		ByStatus: map[schemas.OutcomeStatus]int{},
		Failures: map[string]int{},
	}
}

// Add counts one outcome.
func (s *Summary) Add(o schemas.Outcome) {
	s.Total++
	s.ByStatus[o.Status]++
	if o.IsFailure() {
		s.Failures[o.Reason]++
	}
}

// Count returns the number of outcomes with status.
func (s *Summary) Count(status schemas.OutcomeStatus) int { return s.ByStatus[status] }

// String renders a one-line digest like "3 vehicles: completed=1 created=2".
func (s *Summary) String() string {
	parts := make([]string, 0, len(s.ByStatus))
	for status, n := range s.ByStatus {
		parts = append(parts, fmt.Sprintf("%s=%d", status, n))
	}
	sort.Strings(parts)
	line := fmt.Sprintf("%d vehicles", s.Total)
	if len(parts) > 0 {
		line += ": " + strings.Join(parts, " ")
	}
	if s.Halted != "" {
		line += fmt.Sprintf(" (halted: %s, %d not processed)", s.Halted, s.Remaining)
	}
	return line
}

// WriteSummary writes s as indented JSON next to the run's results file.
func WriteSummary(dir string, s *Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run summary: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("fleetpm-%s.summary.json", s.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write run summary: %w", err)
	}
	return path, nil
}
