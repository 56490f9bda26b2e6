package schemas

import (
	"fmt"
	"time"
)

// RunSummary aggregates the delivery outcomes of one invocation.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Job        string            `json:"job"`
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Outcomes   []DeliveryOutcome `json:"outcomes"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	// Err holds the abort-level error, if the run never reached delivery.
	Err error `json:"-"`
}

// Record appends an outcome and updates the counters.
func (s *RunSummary) Record(o DeliveryOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Total++
	if o.Success {
		s.Succeeded++
	}
}

// Complete reports whether every attempted delivery succeeded and the run
// was not aborted.
func (s *RunSummary) Complete() bool {
	return s.Err == nil && s.Succeeded == s.Total
}

// Status is the coarse state persisted in run history.
func (s *RunSummary) Status() string {
	switch {
	case s.Err != nil:
		return "aborted"
	case s.Total > 0 && s.Succeeded == s.Total:
		return "delivered"
	case s.Succeeded > 0:
		return "partial"
	default:
		return "failed"
	}
}

func (s *RunSummary) String() string {
	return fmt.Sprintf("%d/%d", s.Succeeded, s.Total)
}
