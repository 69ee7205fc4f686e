package widgets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsync/internal/operations"
	"vidsync/internal/realtime"
	"vidsync/pkg/contracts/events"
)

func twoSteps() []events.StepDefinition {
	return []events.StepDefinition{
		{ID: "a", Label: "A", Weight: 1, DefaultDurationMs: 10000},
		{ID: "b", Label: "B", Weight: 3, DefaultDurationMs: 30000},
	}
}

func newTestPreview(t *testing.T, jobID string) (*LivePreview, *fakeSource, *recordingNotifier) {
	t.Helper()
	src := newFakeSource()
	notifier := &recordingNotifier{}
	p := NewLivePreview(src, jobID, notifier, nil)
	require.NoError(t, p.Start())
	return p, src, notifier
}

func TestLivePreviewSubscription(t *testing.T) {
	_, src, _ := newTestPreview(t, "job-1")
	assert.Equal(t, realtime.Topic{Name: "preview", Params: map[string]interface{}{"job_id": "job-1"}}, src.subscribed[0])

	_, src, _ = newTestPreview(t, "")
	assert.Equal(t, realtime.Topic{Name: "preview"}, src.subscribed[0])
}

func TestLivePreviewLifecycle(t *testing.T) {
	p, src, notifier := newTestPreview(t, "job-1")

	_, ok := p.Snapshot()
	assert.False(t, ok)

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-1", Steps: twoSteps()})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepComplete, OperationID: "job-1", StepID: "a"})

	view, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "job-1", view.OperationID)
	assert.Equal(t, 25, view.Progress)
	assert.Equal(t, "b", view.CurrentStep)
	assert.Equal(t, "30 seconds", view.ETA)

	// repeats from the polling fallback are harmless
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-1", Steps: twoSteps()})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepComplete, OperationID: "job-1", StepID: "a"})
	assert.Equal(t, 25, p.Tracker().OverallProgress())

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepProgress, OperationID: "job-1", StepID: "b", Progress: 100})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepProgress, OperationID: "job-1", StepID: "b", Progress: 100})

	view, _ = p.Snapshot()
	assert.Equal(t, 100, view.Progress)
	assert.Equal(t, string(operations.OperationStatusCompleted), view.Status)
	assert.Empty(t, view.ETA)
	assert.Equal(t, []NotificationLevel{NotificationSuccess}, notifier.levels())

	// the latest start and completion keep arriving after the job finished
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-1", Steps: twoSteps()})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-1", Steps: twoSteps()})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepComplete, OperationID: "job-1", StepID: "b"})

	view, _ = p.Snapshot()
	assert.Equal(t, string(operations.OperationStatusCompleted), view.Status)
	assert.Equal(t, []NotificationLevel{NotificationSuccess}, notifier.levels())
	assert.Equal(t, int64(0), p.Status().Rejected)
}

func TestLivePreviewOutOfSequence(t *testing.T) {
	p, src, notifier := newTestPreview(t, "")

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-2", Steps: twoSteps()})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepProgress, OperationID: "job-2", StepID: "a", Progress: 40})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepProgress, OperationID: "job-2", StepID: "b", Progress: 50})

	st, ok := p.Tracker().StepState("a")
	require.True(t, ok)
	assert.Equal(t, 40.0, st.Progress)
	assert.Equal(t, 10, p.Tracker().OverallProgress())
	assert.Equal(t, []NotificationLevel{NotificationError}, notifier.levels())
	assert.Equal(t, int64(1), p.Status().Rejected)
}

func TestLivePreviewStopAndSupersede(t *testing.T) {
	p, src, notifier := newTestPreview(t, "")

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-3"})
	active, ok := p.Tracker().ActiveStep()
	require.True(t, ok)
	assert.Equal(t, operations.StepIDScript, active, "jobs without steps use the default video steps")

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStop, OperationID: "job-3", Message: "cancelled by user"})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStop, OperationID: "job-3"})
	assert.Equal(t, operations.OperationStatusStopped, p.Tracker().Status())
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "cancelled by user", notifier.notes[0].Message)

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-4", Steps: twoSteps()})
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-5", Steps: twoSteps()})
	assert.Equal(t, "job-5", p.Tracker().OperationID())
	assert.Equal(t, operations.OperationStatusRunning, p.Tracker().Status())

	// late events for the superseded job are ignored
	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStepComplete, OperationID: "job-4", StepID: "a"})
	active, _ = p.Tracker().ActiveStep()
	assert.Equal(t, "a", active)
	assert.Equal(t, int64(0), p.Status().Rejected)
}

func TestLivePreviewFiltersOtherJobs(t *testing.T) {
	p, src, _ := newTestPreview(t, "job-1")

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-9", Steps: twoSteps()})
	assert.Equal(t, operations.OperationStatusIdle, p.Tracker().Status())
}

func TestLivePreviewRejectsUnknownAction(t *testing.T) {
	p, src, notifier := newTestPreview(t, "")

	src.push(t, "preview", events.ProgressEvent{Action: "rewind", OperationID: "job-1"})
	src.pushRaw("preview", []byte(`"not an object"`))

	assert.Equal(t, int64(2), p.Status().Rejected)
	assert.Empty(t, notifier.levels())
}

func TestLivePreviewEstimatedTimestamps(t *testing.T) {
	src := newFakeSource()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	p := NewLivePreview(src, "", nil, nil, operations.WithClock(func() time.Time { return now }))
	require.NoError(t, p.Start())

	src.push(t, "preview", events.ProgressEvent{Action: events.ProgressActionStart, OperationID: "job-1", Steps: twoSteps()})

	view, ok := p.Snapshot()
	require.True(t, ok)
	require.NotNil(t, view.StartedAt)
	assert.Equal(t, now, *view.StartedAt)
	require.NotNil(t, view.EstimatedRemaining)
	assert.Equal(t, int64(40000), *view.EstimatedRemaining)
	assert.Equal(t, "40 seconds", view.ETA)
}
