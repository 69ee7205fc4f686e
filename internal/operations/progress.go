package operations

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidsync/pkg/contracts/events"
)

// DefaultWeightUnit is the duration one unit of step weight stands for when
// a step has no explicit default duration.
const DefaultWeightUnit = time.Second

// ProgressTracker tracks progress for one long-running, multi-step operation.
// It is a synchronous state machine with no I/O; the mutex only makes it
// safe to read from a different goroutine than the one feeding it updates.
type ProgressTracker struct {
	mu         sync.Mutex
	op         *Operation
	lastID     string
	weightUnit time.Duration
	now        func() time.Time
}

// TrackerOption configures a ProgressTracker
type TrackerOption func(*ProgressTracker)

// WithClock sets the time source used for step timestamps
func WithClock(now func() time.Time) TrackerOption {
	return func(p *ProgressTracker) {
		p.now = now
	}
}

// WithWeightUnit sets the duration one unit of weight represents
func WithWeightUnit(unit time.Duration) TrackerOption {
	return func(p *ProgressTracker) {
		if unit > 0 {
			p.weightUnit = unit
		}
	}
}

// NewProgressTracker creates an idle progress tracker
func NewProgressTracker(opts ...TrackerOption) *ProgressTracker {
	p := &ProgressTracker{
		weightUnit: DefaultWeightUnit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins tracking a new operation. An empty id is replaced by a
// generated one. Starting while an operation is running is rejected.
func (p *ProgressTracker) Start(id string, steps []Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.op != nil && p.op.Status == OperationStatusRunning {
		return NewInvalidOperationError(fmt.Sprintf("operation %s is already running", p.op.ID))
	}
	if err := validateSteps(steps); err != nil {
		return err
	}
	if id == "" {
		id = uuid.New().String()
	}

	p.op = newOperation(id, steps, p.now())
	p.lastID = id
	return nil
}

// UpdateStepProgress records progress for the active step. Values are
// clamped to [0,100]; reaching 100 completes the step.
func (p *ProgressTracker) UpdateStepProgress(stepID string, progress float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.activeStepLocked(stepID)
	if err != nil {
		return err
	}

	progress = clampProgress(progress)
	st.advance(progress)
	if progress >= 100 {
		p.completeActiveLocked()
	}
	return nil
}

// CompleteStep marks the active step completed and activates the next one,
// or completes the operation after the last step.
func (p *ProgressTracker) CompleteStep(stepID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.activeStepLocked(stepID); err != nil {
		return err
	}
	p.completeActiveLocked()
	return nil
}

// Stop forcibly stops the running operation. Stopping an operation that is
// not running is a no-op.
func (p *ProgressTracker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.op == nil || p.op.Status != OperationStatusRunning {
		return
	}
	p.op.finish(OperationStatusStopped, p.now())
}

// OverallProgress returns the weight-normalized progress rounded to the nearest percent
func (p *ProgressTracker) OverallProgress() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.op == nil {
		return 0
	}
	return int(math.Round(p.op.weightedProgress()))
}

// EstimatedRemaining projects the time left from default step durations:
// the unfinished fraction of the active step plus every step after it.
// ok is false unless an operation is running.
func (p *ProgressTracker) EstimatedRemaining() (remaining time.Duration, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.estimateLocked()
}

// Status returns the status of the current operation
func (p *ProgressTracker) Status() OperationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.op == nil {
		return OperationStatusIdle
	}
	return p.op.Status
}

// OperationID returns the id of the current (or last) operation
func (p *ProgressTracker) OperationID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastID
}

// ActiveStep returns the id of the active step
func (p *ProgressTracker) ActiveStep() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.op == nil || p.op.Status != OperationStatusRunning {
		return "", false
	}
	id := p.op.activeID()
	return id, id != ""
}

// StepState returns a copy of the state of stepID
func (p *ProgressTracker) StepState(stepID string) (StepState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.op == nil {
		return StepState{}, false
	}
	st, ok := p.op.States[stepID]
	if !ok {
		return StepState{}, false
	}
	return st.clone(), true
}

// Snapshot returns the serializable state of the current operation
func (p *ProgressTracker) Snapshot() events.OperationSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.op == nil {
		return events.OperationSnapshot{
			Status: string(OperationStatusIdle),
			Steps:  []events.StepSnapshot{},
		}
	}

	op := p.op
	startedAt := op.StartedAt
	snap := events.OperationSnapshot{
		OperationID: op.ID,
		Status:      string(op.Status),
		Progress:    int(math.Round(op.weightedProgress())),
		StartedAt:   &startedAt,
		Steps:       make([]events.StepSnapshot, 0, len(op.Steps)),
	}
	if op.Status == OperationStatusRunning {
		snap.CurrentStep = op.activeID()
	}
	if op.EndedAt != nil && op.Status == OperationStatusCompleted {
		endedAt := *op.EndedAt
		snap.CompletedAt = &endedAt
	}
	if remaining, ok := p.estimateLocked(); ok {
		ms := remaining.Milliseconds()
		snap.EstimatedRemaining = &ms
	}
	for _, step := range op.Steps {
		st := op.States[step.ID].clone()
		snap.Steps = append(snap.Steps, events.StepSnapshot{
			ID:        st.ID,
			Label:     st.Label,
			Weight:    st.Weight,
			Status:    string(st.Status),
			Progress:  st.Progress,
			StartedAt: st.StartedAt,
			EndedAt:   st.EndedAt,
		})
	}
	return snap
}

// activeStepLocked returns the active step state if stepID is the active step
func (p *ProgressTracker) activeStepLocked(stepID string) (*StepState, error) {
	if p.op == nil {
		return nil, NewInvalidOperationError("no operation has been started")
	}
	if p.op.Status != OperationStatusRunning {
		return nil, NewInvalidOperationError(fmt.Sprintf("operation %s is %s", p.op.ID, p.op.Status))
	}
	active := p.op.activeState()
	if active == nil || active.ID != stepID {
		return nil, NewOutOfSequenceError(stepID, p.op.activeID())
	}
	return active, nil
}

// completeActiveLocked completes the active step and advances the cursor
func (p *ProgressTracker) completeActiveLocked() {
	now := p.now()
	op := p.op
	op.activeState().complete(now)

	op.active++
	if op.active >= len(op.Steps) {
		op.finish(OperationStatusCompleted, now)
		return
	}
	op.activeState().activate(now)
}

func (p *ProgressTracker) estimateLocked() (time.Duration, bool) {
	if p.op == nil || p.op.Status != OperationStatusRunning {
		return 0, false
	}
	op := p.op
	active := op.activeState()
	if active == nil {
		return 0, false
	}

	current := op.Steps[op.active]
	remaining := time.Duration((1 - active.Progress/100) * float64(p.defaultDuration(current)))
	for _, step := range op.Steps[op.active+1:] {
		remaining += p.defaultDuration(step)
	}
	return remaining, true
}

// defaultDuration returns the step's default duration, derived from its
// weight when not set explicitly
func (p *ProgressTracker) defaultDuration(step Step) time.Duration {
	if step.DefaultDuration > 0 {
		return step.DefaultDuration
	}
	return time.Duration(step.Weight * float64(p.weightUnit))
}

// validateSteps checks a step list before an operation starts
func validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return NewInvalidOperationError("an operation needs at least one step")
	}
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if step.ID == "" {
			return NewInvalidOperationError("step id must not be empty")
		}
		if _, dup := seen[step.ID]; dup {
			return NewInvalidOperationError(fmt.Sprintf("duplicate step id %q", step.ID))
		}
		seen[step.ID] = struct{}{}
		if !(step.Weight > 0) || math.IsInf(step.Weight, 0) {
			return NewInvalidOperationError(fmt.Sprintf("step %q must have a positive weight", step.ID))
		}
	}
	return nil
}
