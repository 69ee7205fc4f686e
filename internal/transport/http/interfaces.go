package http

import (
	"vidsync/internal/realtime"
	"vidsync/internal/widgets"
	"vidsync/pkg/contracts/events"
)

// ConnectionReader exposes the realtime connection state
type ConnectionReader interface {
	Snapshot() realtime.ConnectionSnapshot
}

// DashboardWidget is the analytics dashboard as the API sees it
type DashboardWidget interface {
	Snapshot() (widgets.DashboardView, bool)
	SetDays(days int) error
	Days() int
	Status() widgets.Status
}

// WorkersWidget is the worker monitor as the API sees it
type WorkersWidget interface {
	Workers() ([]events.WorkerStatus, bool)
	Summary() widgets.WorkerSummary
	Status() widgets.Status
}

// PreviewWidget is the live preview as the API sees it
type PreviewWidget interface {
	Snapshot() (widgets.PreviewView, bool)
	Status() widgets.Status
}
