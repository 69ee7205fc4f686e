// Package operations tracks the progress of one long-running, linear,
// multi-step operation such as a video generation job.
//
// A ProgressTracker is fed step events and exposes:
//
//   - overall progress as a weight-normalized percentage
//   - the active step and the state of every step
//   - an estimate of the remaining time from default step durations
//
// Steps run strictly in order. Updates for any step other than the active
// one are rejected with an out-of-sequence error and leave the state as it was.
//
// Example usage:
//
//	tracker := operations.NewProgressTracker()
//	_ = tracker.Start("job-42", []operations.Step{
//		{ID: "a", Label: "A", Weight: 1},
//		{ID: "b", Label: "B", Weight: 3},
//	})
//	_ = tracker.UpdateStepProgress("a", 100) // a completed, b active
//	_ = tracker.UpdateStepProgress("b", 0)
//	tracker.OverallProgress() // 25
package operations
