package operations

import (
	"time"
)

// OperationStatus represents the overall operation status enum
type OperationStatus string

const (
	OperationStatusIdle      OperationStatus = "idle"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusStopped   OperationStatus = "stopped"
)

// IsTerminal reports whether the status only changes through a new Start
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusStopped
}

// Operation represents the complete state of one long-running task instance
type Operation struct {
	ID        string
	Status    OperationStatus
	Steps     []Step
	States    map[string]*StepState
	StartedAt time.Time
	EndedAt   *time.Time

	// index into Steps of the active step, -1 when none is active
	active int
}

// newOperation creates a running operation with the first step active
func newOperation(id string, steps []Step, now time.Time) *Operation {
	op := &Operation{
		ID:        id,
		Status:    OperationStatusRunning,
		Steps:     append([]Step(nil), steps...),
		States:    make(map[string]*StepState, len(steps)),
		StartedAt: now,
		active:    0,
	}
	for _, step := range op.Steps {
		op.States[step.ID] = NewStepState(step)
	}
	op.States[op.Steps[0].ID].activate(now)
	return op
}

// activeState returns the active step state, or nil
func (o *Operation) activeState() *StepState {
	if o.active < 0 || o.active >= len(o.Steps) {
		return nil
	}
	return o.States[o.Steps[o.active].ID]
}

// activeID returns the id of the active step, or ""
func (o *Operation) activeID() string {
	if st := o.activeState(); st != nil {
		return st.ID
	}
	return ""
}

// totalWeight returns the sum of all step weights
func (o *Operation) totalWeight() float64 {
	var total float64
	for _, step := range o.Steps {
		total += step.Weight
	}
	return total
}

// weightedProgress returns Σ(progress_i * weight_i) / Σ(weight_i) unrounded
func (o *Operation) weightedProgress() float64 {
	total := o.totalWeight()
	if total <= 0 {
		return 0
	}
	var sum float64
	for _, step := range o.Steps {
		sum += o.States[step.ID].Progress * step.Weight
	}
	return sum / total
}

// finish moves the operation into a terminal status
func (o *Operation) finish(status OperationStatus, now time.Time) {
	o.Status = status
	o.EndedAt = &now
	if status == OperationStatusCompleted {
		o.active = -1
	}
}
