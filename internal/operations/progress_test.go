package operations

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNow returns a controllable time source
type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time { return f.t }

func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestTracker() (*ProgressTracker, *fakeNow) {
	clock := &fakeNow{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewProgressTracker(WithClock(clock.now)), clock
}

func twoSteps() []Step {
	return []Step{
		{ID: "a", Label: "A", Weight: 1},
		{ID: "b", Label: "B", Weight: 3},
	}
}

func TestProgressTrackerWeightedProgress(t *testing.T) {
	tracker, _ := newTestTracker()
	require.NoError(t, tracker.Start("op-1", twoSteps()))

	assert.Equal(t, 0, tracker.OverallProgress())
	active, ok := tracker.ActiveStep()
	require.True(t, ok)
	assert.Equal(t, "a", active)

	require.NoError(t, tracker.UpdateStepProgress("a", 100))
	require.NoError(t, tracker.UpdateStepProgress("b", 0))
	assert.Equal(t, 25, tracker.OverallProgress())

	require.NoError(t, tracker.UpdateStepProgress("b", 100))
	assert.Equal(t, 100, tracker.OverallProgress())
	assert.Equal(t, OperationStatusCompleted, tracker.Status())

	snap := tracker.Snapshot()
	assert.Equal(t, "completed", snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Empty(t, snap.CurrentStep)
	assert.NotNil(t, snap.CompletedAt)
	assert.Nil(t, snap.EstimatedRemaining)
	for _, step := range snap.Steps {
		assert.Equal(t, "completed", step.Status)
	}
}

func TestProgressTrackerOutOfSequence(t *testing.T) {
	tracker, _ := newTestTracker()
	require.NoError(t, tracker.Start("op-1", twoSteps()))
	require.NoError(t, tracker.UpdateStepProgress("a", 40))

	before := tracker.Snapshot()

	tests := []struct {
		name   string
		update func() error
	}{
		{"progress for pending step", func() error { return tracker.UpdateStepProgress("b", 50) }},
		{"complete pending step", func() error { return tracker.CompleteStep("b") }},
		{"unknown step", func() error { return tracker.UpdateStepProgress("zzz", 10) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOutOfSequence))
			assert.Equal(t, ErrorTypeOutOfSequence, GetErrorType(err))
			assert.Equal(t, before, tracker.Snapshot())
		})
	}
}

func TestProgressTrackerCompletedStepRejectsUpdates(t *testing.T) {
	tracker, _ := newTestTracker()
	require.NoError(t, tracker.Start("op-1", twoSteps()))
	require.NoError(t, tracker.CompleteStep("a"))

	err := tracker.UpdateStepProgress("a", 50)
	assert.True(t, errors.Is(err, ErrOutOfSequence))

	st, ok := tracker.StepState("a")
	require.True(t, ok)
	assert.Equal(t, StepStatusCompleted, st.Status)
	assert.Equal(t, 100.0, st.Progress)
}

func TestProgressTrackerClampsAndIgnoresDecreases(t *testing.T) {
	tracker, _ := newTestTracker()
	require.NoError(t, tracker.Start("op-1", []Step{
		{ID: "a", Label: "A", Weight: 1},
		{ID: "b", Label: "B", Weight: 1},
	}))

	require.NoError(t, tracker.UpdateStepProgress("a", -20))
	st, _ := tracker.StepState("a")
	assert.Equal(t, 0.0, st.Progress)

	require.NoError(t, tracker.UpdateStepProgress("a", 60))
	require.NoError(t, tracker.UpdateStepProgress("a", 30))
	st, _ = tracker.StepState("a")
	assert.Equal(t, 60.0, st.Progress)
	assert.Equal(t, StepStatusActive, st.Status)

	require.NoError(t, tracker.UpdateStepProgress("a", 250))
	st, _ = tracker.StepState("a")
	assert.Equal(t, StepStatusCompleted, st.Status)
	active, _ := tracker.ActiveStep()
	assert.Equal(t, "b", active)
}

func TestProgressTrackerAllStepsComplete(t *testing.T) {
	tracker, _ := newTestTracker()
	steps := DefaultVideoSteps()
	require.NoError(t, tracker.Start("", steps))
	assert.NotEmpty(t, tracker.OperationID())

	last := -1
	for _, step := range steps {
		for _, p := range []float64{10, 50, 100} {
			require.NoError(t, tracker.UpdateStepProgress(step.ID, p))
			progress := tracker.OverallProgress()
			assert.GreaterOrEqual(t, progress, last)
			last = progress
		}
	}

	assert.Equal(t, 100, tracker.OverallProgress())
	assert.Equal(t, OperationStatusCompleted, tracker.Status())
	_, ok := tracker.ActiveStep()
	assert.False(t, ok)
}

func TestProgressTrackerStopAndRestart(t *testing.T) {
	tracker, _ := newTestTracker()
	require.NoError(t, tracker.Start("op-1", twoSteps()))
	require.NoError(t, tracker.UpdateStepProgress("a", 50))

	tracker.Stop()
	assert.Equal(t, OperationStatusStopped, tracker.Status())

	err := tracker.UpdateStepProgress("a", 60)
	assert.True(t, errors.Is(err, ErrInvalidOperation))
	err = tracker.CompleteStep("a")
	assert.True(t, errors.Is(err, ErrInvalidOperation))
	_, ok := tracker.EstimatedRemaining()
	assert.False(t, ok)

	// stopping twice is harmless
	tracker.Stop()

	require.NoError(t, tracker.Start("op-2", twoSteps()))
	assert.Equal(t, OperationStatusRunning, tracker.Status())
	assert.Equal(t, "op-2", tracker.OperationID())
	assert.Equal(t, 0, tracker.OverallProgress())
}

func TestProgressTrackerInvalidStart(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"no steps", nil},
		{"zero weight", []Step{{ID: "a", Weight: 0}}},
		{"negative weight", []Step{{ID: "a", Weight: -1}}},
		{"duplicate id", []Step{{ID: "a", Weight: 1}, {ID: "a", Weight: 2}}},
		{"empty id", []Step{{ID: "", Weight: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, _ := newTestTracker()
			err := tracker.Start("op", tt.steps)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidOperation))
			assert.Equal(t, OperationStatusIdle, tracker.Status())
		})
	}
}

func TestProgressTrackerStartWhileRunning(t *testing.T) {
	tracker, _ := newTestTracker()
	require.NoError(t, tracker.Start("op-1", twoSteps()))

	err := tracker.Start("op-2", twoSteps())
	assert.True(t, errors.Is(err, ErrInvalidOperation))
	assert.Equal(t, "op-1", tracker.OperationID())
}

func TestProgressTrackerBeforeStart(t *testing.T) {
	tracker, _ := newTestTracker()

	err := tracker.UpdateStepProgress("a", 10)
	assert.True(t, errors.Is(err, ErrInvalidOperation))
	assert.Equal(t, 0, tracker.OverallProgress())

	snap := tracker.Snapshot()
	assert.Equal(t, "idle", snap.Status)
	assert.Empty(t, snap.Steps)
}

func TestProgressTrackerEstimatedRemaining(t *testing.T) {
	tracker, _ := newTestTracker()
	require.NoError(t, tracker.Start("op-1", []Step{
		{ID: "a", Label: "A", Weight: 1, DefaultDuration: 10 * time.Second},
		{ID: "b", Label: "B", Weight: 3},
		{ID: "c", Label: "C", Weight: 1, DefaultDuration: 20 * time.Second},
	}))

	remaining, ok := tracker.EstimatedRemaining()
	require.True(t, ok)
	assert.Equal(t, 33*time.Second, remaining)

	require.NoError(t, tracker.UpdateStepProgress("a", 50))
	remaining, _ = tracker.EstimatedRemaining()
	assert.Equal(t, 28*time.Second, remaining)

	require.NoError(t, tracker.CompleteStep("a"))
	remaining, _ = tracker.EstimatedRemaining()
	assert.Equal(t, 23*time.Second, remaining)

	snap := tracker.Snapshot()
	require.NotNil(t, snap.EstimatedRemaining)
	assert.Equal(t, int64(23000), *snap.EstimatedRemaining)
}

func TestProgressTrackerWeightUnit(t *testing.T) {
	tracker := NewProgressTracker(WithWeightUnit(time.Minute))
	require.NoError(t, tracker.Start("op-1", twoSteps()))

	remaining, ok := tracker.EstimatedRemaining()
	require.True(t, ok)
	assert.Equal(t, 4*time.Minute, remaining)
}

func TestProgressTrackerStepTimestamps(t *testing.T) {
	tracker, clock := newTestTracker()
	require.NoError(t, tracker.Start("op-1", twoSteps()))

	clock.advance(5 * time.Second)
	require.NoError(t, tracker.CompleteStep("a"))

	a, _ := tracker.StepState("a")
	require.NotNil(t, a.StartedAt)
	require.NotNil(t, a.EndedAt)
	assert.Equal(t, 5*time.Second, a.Duration(clock.t))

	b, _ := tracker.StepState("b")
	require.NotNil(t, b.StartedAt)
	assert.Nil(t, b.EndedAt)
	assert.Equal(t, StepStatusActive, b.Status)
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "less than a second"},
		{45 * time.Second, "45 seconds"},
		{90 * time.Second, "1.5 minutes"},
		{3 * time.Hour, "3.0 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatETA(tt.in))
		})
	}
}
