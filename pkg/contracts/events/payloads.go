package events

import (
	"time"
)

// Well-known topic names
const (
	TopicDashboard = "dashboard"
	TopicWorkers   = "workers"
	TopicPreview   = "preview"
)

// DashboardPayload is the data of a dashboard update
type DashboardPayload struct {
	Days        int                `json:"days"`
	Totals      map[string]float64 `json:"totals,omitempty"`
	Series      []Series           `json:"series"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Series is a finished numeric series ready for a chart
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Point is a single labelled value in a series
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// WorkerState is the reported state of a render worker
type WorkerState string

const (
	WorkerStateIdle    WorkerState = "idle"
	WorkerStateBusy    WorkerState = "busy"
	WorkerStateOffline WorkerState = "offline"
)

// WorkerStatus describes one render worker
type WorkerStatus struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	State      WorkerState `json:"state"`
	CurrentJob string      `json:"current_job,omitempty"`
	QueueDepth int         `json:"queue_depth"`
	GPUPercent float64     `json:"gpu_percent"`
	LastSeen   time.Time   `json:"last_seen"`
}

// WorkersPayload is the data of a workers update
type WorkersPayload struct {
	Workers []WorkerStatus `json:"workers"`
}

// ProgressAction identifies what a preview progress event does
type ProgressAction string

const (
	ProgressActionStart        ProgressAction = "start"
	ProgressActionStepProgress ProgressAction = "step_progress"
	ProgressActionStepComplete ProgressAction = "step_complete"
	ProgressActionStop         ProgressAction = "stop"
)

// StepDefinition describes one step of a generation job as announced by the server
type StepDefinition struct {
	ID                string  `json:"id"`
	Label             string  `json:"label"`
	Weight            float64 `json:"weight"`
	DefaultDurationMs int64   `json:"default_duration_ms,omitempty"`
}

// ProgressEvent is the data of a preview update
type ProgressEvent struct {
	Action      ProgressAction   `json:"action"`
	OperationID string           `json:"operation_id"`
	StepID      string           `json:"step_id,omitempty"`
	Progress    float64          `json:"progress,omitempty"`
	Steps       []StepDefinition `json:"steps,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// OperationSnapshot is the complete state of a tracked operation at a point in time
type OperationSnapshot struct {
	OperationID        string         `json:"operation_id"`
	Status             string         `json:"status"`   // idle|running|completed|stopped
	Progress           int            `json:"progress"` // 0-100
	CurrentStep        string         `json:"current_step,omitempty"`
	Steps              []StepSnapshot `json:"steps"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	EstimatedRemaining *int64         `json:"estimated_remaining_ms,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Weight    float64    `json:"weight"`
	Status    string     `json:"status"` // pending|active|completed
	Progress  float64    `json:"progress"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
