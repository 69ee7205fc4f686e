package widgets

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"vidsync/internal/realtime"
	"vidsync/pkg/contracts/events"
)

var errWorkerWithoutID = errors.New("worker without id in update")

// WorkerSummary counts workers per state
type WorkerSummary struct {
	Total      int       `json:"total"`
	Idle       int       `json:"idle"`
	Busy       int       `json:"busy"`
	Offline    int       `json:"offline"`
	QueueDepth int       `json:"queue_depth"`
	Connection Indicator `json:"connection"`
}

// WorkerMonitor keeps the latest status of every render worker
type WorkerMonitor struct {
	base

	workers map[string]events.WorkerStatus
	seen    bool
}

// NewWorkerMonitor creates a monitor for the workers topic
func NewWorkerMonitor(source Source, logger *slog.Logger) *WorkerMonitor {
	w := &WorkerMonitor{
		workers: make(map[string]events.WorkerStatus),
	}
	w.init(events.TopicWorkers, source, logger)
	return w
}

// Start subscribes to the workers topic
func (w *WorkerMonitor) Start() error {
	return w.start(realtime.Topic{Name: events.TopicWorkers}, w.apply)
}

// Workers returns the known workers ordered by id; ok is false until the
// first update
func (w *WorkerMonitor) Workers() (workers []events.WorkerStatus, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.seen {
		return nil, false
	}
	workers = make([]events.WorkerStatus, 0, len(w.workers))
	for _, ws := range w.workers {
		workers = append(workers, ws)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers, true
}

// Worker returns one worker by id
func (w *WorkerMonitor) Worker(id string) (events.WorkerStatus, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ws, ok := w.workers[id]
	return ws, ok
}

// Summary counts the known workers per state
func (w *WorkerMonitor) Summary() WorkerSummary {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := WorkerSummary{Total: len(w.workers), Connection: w.indicator}
	for _, ws := range w.workers {
		switch ws.State {
		case events.WorkerStateBusy:
			s.Busy++
		case events.WorkerStateOffline:
			s.Offline++
		default:
			s.Idle++
		}
		s.QueueDepth += ws.QueueDepth
	}
	return s
}

// apply replaces the worker list; an update is the full current list
func (w *WorkerMonitor) apply(env events.Envelope) error {
	var payload events.WorkersPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("decode workers payload: %w", err)
	}

	next := make(map[string]events.WorkerStatus, len(payload.Workers))
	for _, ws := range payload.Workers {
		if ws.ID == "" {
			return errWorkerWithoutID
		}
		next[ws.ID] = ws
	}

	w.mu.Lock()
	w.workers = next
	w.seen = true
	w.mu.Unlock()
	return nil
}
