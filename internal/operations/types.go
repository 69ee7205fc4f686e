package operations

import (
	"fmt"
	"time"

	"vidsync/pkg/contracts/events"
)

// Video generation step identifiers
const (
	StepIDScript = "script"
	StepIDVoice  = "voice"
	StepIDScenes = "scenes"
	StepIDRender = "render"
	StepIDEncode = "encode"
)

// Video generation step labels
const (
	StepLabelScript = "Writing script"
	StepLabelVoice  = "Synthesizing voice"
	StepLabelScenes = "Generating scenes"
	StepLabelRender = "Rendering"
	StepLabelEncode = "Encoding"
)

// DefaultVideoSteps returns the step list used when a job announces none
func DefaultVideoSteps() []Step {
	return []Step{
		{ID: StepIDScript, Label: StepLabelScript, Weight: 1, DefaultDuration: 10 * time.Second},
		{ID: StepIDVoice, Label: StepLabelVoice, Weight: 2, DefaultDuration: 20 * time.Second},
		{ID: StepIDScenes, Label: StepLabelScenes, Weight: 4, DefaultDuration: 60 * time.Second},
		{ID: StepIDRender, Label: StepLabelRender, Weight: 6, DefaultDuration: 90 * time.Second},
		{ID: StepIDEncode, Label: StepLabelEncode, Weight: 1, DefaultDuration: 15 * time.Second},
	}
}

// StepsFromDefinitions converts server step definitions into tracker steps
func StepsFromDefinitions(defs []events.StepDefinition) []Step {
	steps := make([]Step, 0, len(defs))
	for _, def := range defs {
		label := def.Label
		if label == "" {
			label = def.ID
		}
		steps = append(steps, Step{
			ID:              def.ID,
			Label:           label,
			Weight:          def.Weight,
			DefaultDuration: time.Duration(def.DefaultDurationMs) * time.Millisecond,
		})
	}
	return steps
}

// FormatETA renders a remaining duration for display
func FormatETA(remaining time.Duration) string {
	switch {
	case remaining <= 0:
		return "less than a second"
	case remaining < time.Minute:
		return fmt.Sprintf("%.0f seconds", remaining.Seconds())
	case remaining < time.Hour:
		return fmt.Sprintf("%.1f minutes", remaining.Minutes())
	default:
		return fmt.Sprintf("%.1f hours", remaining.Hours())
	}
}
