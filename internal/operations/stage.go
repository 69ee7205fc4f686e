package operations

import (
	"math"
	"time"
)

// Step describes one step of a linear operation.
// Weight is proportional to the step's expected share of the total duration.
type Step struct {
	ID              string        `json:"id"`
	Label           string        `json:"label"`
	Weight          float64       `json:"weight"`
	DefaultDuration time.Duration `json:"default_duration,omitempty"`
}

// StepStatus represents the current status of a Step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
)

// StepState represents the runtime state of a Step
type StepState struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Weight    float64    `json:"weight"`
	Status    StepStatus `json:"status"`
	Progress  float64    `json:"progress"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewStepState creates a pending step state
func NewStepState(step Step) *StepState {
	return &StepState{
		ID:     step.ID,
		Label:  step.Label,
		Weight: step.Weight,
		Status: StepStatusPending,
	}
}

// activate moves a pending step to active
func (s *StepState) activate(now time.Time) {
	s.StartedAt = &now
	s.Status = StepStatusActive
	s.Progress = 0
}

// complete moves an active step to completed
func (s *StepState) complete(now time.Time) {
	s.EndedAt = &now
	s.Status = StepStatusCompleted
	s.Progress = 100
}

// advance raises the step progress; lower values are ignored
func (s *StepState) advance(progress float64) {
	if progress > s.Progress {
		s.Progress = progress
	}
}

// Duration returns how long the step has been (or was) active
func (s *StepState) Duration(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	if s.EndedAt != nil {
		return s.EndedAt.Sub(*s.StartedAt)
	}
	return now.Sub(*s.StartedAt)
}

// clone returns a copy that shares no pointers with s
func (s *StepState) clone() StepState {
	c := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return c
}

// clampProgress bounds a progress value to [0,100]
func clampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
