package widgets

import (
	"errors"
	"fmt"
	"log/slog"

	"vidsync/internal/operations"
	"vidsync/internal/realtime"
	"vidsync/pkg/contracts/events"
)

// NotificationLevel is the severity of a toast
type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a user-facing toast raised by the live preview
type Notification struct {
	Level       NotificationLevel `json:"level"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	OperationID string            `json:"operation_id,omitempty"`
}

// Notifier shows toasts to the user
type Notifier interface {
	Notify(n Notification)
}

// PreviewView is the live preview state
type PreviewView struct {
	events.OperationSnapshot
	ETA        string    `json:"eta,omitempty"`
	Connection Indicator `json:"connection"`
}

// LivePreview follows a generation job through its own ProgressTracker
type LivePreview struct {
	base

	jobID    string
	tracker  *operations.ProgressTracker
	notifier Notifier
	seen     bool
}

// NewLivePreview creates a preview. An empty jobID follows whatever job
// the server reports; notifier may be nil.
func NewLivePreview(source Source, jobID string, notifier Notifier, logger *slog.Logger, opts ...operations.TrackerOption) *LivePreview {
	p := &LivePreview{
		jobID:    jobID,
		tracker:  operations.NewProgressTracker(opts...),
		notifier: notifier,
	}
	p.init(events.TopicPreview, source, logger)
	return p
}

// Start subscribes to the preview topic
func (p *LivePreview) Start() error {
	topic := realtime.Topic{Name: events.TopicPreview}
	if p.jobID != "" {
		topic.Params = map[string]interface{}{"job_id": p.jobID}
	}
	return p.start(topic, p.apply)
}

// Tracker exposes the underlying progress tracker
func (p *LivePreview) Tracker() *operations.ProgressTracker {
	return p.tracker
}

// Snapshot returns the preview state; ok is false until the first event
func (p *LivePreview) Snapshot() (view PreviewView, ok bool) {
	p.mu.RLock()
	seen, indicator := p.seen, p.indicator
	p.mu.RUnlock()
	if !seen {
		return PreviewView{}, false
	}

	view = PreviewView{
		OperationSnapshot: p.tracker.Snapshot(),
		Connection:        indicator,
	}
	if remaining, running := p.tracker.EstimatedRemaining(); running {
		view.ETA = operations.FormatETA(remaining)
	}
	return view, true
}

// apply routes a progress event into the tracker. The polling fallback
// re-delivers the latest event every cycle, so repeats of an event that
// was already applied are accepted silently.
func (p *LivePreview) apply(env events.Envelope) error {
	var ev events.ProgressEvent
	if err := env.Decode(&ev); err != nil {
		return fmt.Errorf("decode progress event: %w", err)
	}
	if p.jobID != "" && ev.OperationID != "" && ev.OperationID != p.jobID {
		return nil
	}

	before := p.tracker.Status()

	var err error
	switch ev.Action {
	case events.ProgressActionStart:
		err = p.startOperation(ev)
	case events.ProgressActionStepProgress:
		if p.isStale(ev) {
			return nil
		}
		err = p.tracker.UpdateStepProgress(ev.StepID, ev.Progress)
	case events.ProgressActionStepComplete:
		if p.isStale(ev) {
			return nil
		}
		err = p.tracker.CompleteStep(ev.StepID)
	case events.ProgressActionStop:
		if p.tracker.OperationID() != ev.OperationID && ev.OperationID != "" {
			return nil
		}
		wasRunning := p.tracker.Status() == operations.OperationStatusRunning
		p.tracker.Stop()
		if wasRunning {
			p.notify(NotificationWarning, "Generation stopped", stopMessage(ev), ev.OperationID)
		}
	default:
		return fmt.Errorf("unknown progress action %q", ev.Action)
	}

	p.mu.Lock()
	p.seen = true
	p.mu.Unlock()

	if err != nil {
		if errors.Is(err, operations.ErrOutOfSequence) {
			p.notify(NotificationError, "Progress out of sequence", err.Error(), ev.OperationID)
		}
		return err
	}

	// only the transition into completed is announced
	if before != operations.OperationStatusCompleted && p.tracker.Status() == operations.OperationStatusCompleted {
		p.notify(NotificationSuccess, "Generation complete",
			fmt.Sprintf("Operation %s finished", p.tracker.OperationID()), p.tracker.OperationID())
	}
	return nil
}

// startOperation begins tracking ev. A start for the operation already
// tracked, or an anonymous start while one runs, is a repeat; a start for
// another operation supersedes it.
func (p *LivePreview) startOperation(ev events.ProgressEvent) error {
	if ev.OperationID != "" && ev.OperationID == p.tracker.OperationID() {
		return nil
	}
	if ev.OperationID == "" && p.tracker.Status() == operations.OperationStatusRunning {
		return nil
	}
	if p.tracker.Status() == operations.OperationStatusRunning {
		p.logger.Info("Superseding running operation",
			slog.String("previous", p.tracker.OperationID()),
			slog.String("next", ev.OperationID))
		p.tracker.Stop()
	}

	steps := operations.DefaultVideoSteps()
	if len(ev.Steps) > 0 {
		steps = operations.StepsFromDefinitions(ev.Steps)
	}
	return p.tracker.Start(ev.OperationID, steps)
}

// isStale reports an event for another operation, or for a step that has
// already completed
func (p *LivePreview) isStale(ev events.ProgressEvent) bool {
	if ev.OperationID != "" && ev.OperationID != p.tracker.OperationID() {
		return true
	}
	if p.tracker.Status() != operations.OperationStatusRunning {
		return p.tracker.Status().IsTerminal()
	}
	st, ok := p.tracker.StepState(ev.StepID)
	return ok && st.Status == operations.StepStatusCompleted
}

func (p *LivePreview) notify(level NotificationLevel, title, message, operationID string) {
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(Notification{
		Level:       level,
		Title:       title,
		Message:     message,
		OperationID: operationID,
	})
}

func stopMessage(ev events.ProgressEvent) string {
	if ev.Message != "" {
		return ev.Message
	}
	return fmt.Sprintf("Operation %s was stopped", ev.OperationID)
}
