package widgets

import (
	"fmt"
	"log/slog"
	"time"

	"vidsync/internal/realtime"
	"vidsync/pkg/contracts/events"
)

// DefaultDashboardDays is the analytics window requested when none is set
const DefaultDashboardDays = 30

// ChartRenderer draws finished numeric series
type ChartRenderer interface {
	RenderSeries(series []events.Series) error
}

// DashboardView is the latest analytics snapshot
type DashboardView struct {
	Days        int                `json:"days"`
	Totals      map[string]float64 `json:"totals,omitempty"`
	Series      []events.Series    `json:"series"`
	GeneratedAt time.Time          `json:"generated_at"`
	ReceivedAt  time.Time          `json:"received_at"`
	Connection  Indicator          `json:"connection"`
}

// AnalyticsDashboard keeps the latest dashboard snapshot for a day window
type AnalyticsDashboard struct {
	base

	renderer ChartRenderer
	days     int
	latest   *DashboardView
}

// NewAnalyticsDashboard creates a dashboard over the last days days.
// renderer may be nil.
func NewAnalyticsDashboard(source Source, days int, renderer ChartRenderer, logger *slog.Logger) *AnalyticsDashboard {
	if days <= 0 {
		days = DefaultDashboardDays
	}
	d := &AnalyticsDashboard{
		renderer: renderer,
		days:     days,
	}
	d.init(events.TopicDashboard, source, logger)
	return d
}

// Start subscribes to the dashboard topic
func (d *AnalyticsDashboard) Start() error {
	return d.start(d.topicFor(d.Days()), d.apply)
}

// Days returns the requested window
func (d *AnalyticsDashboard) Days() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.days
}

// SetDays changes the window. A running dashboard resubscribes with the
// new parameter; the current snapshot stays until a new one arrives.
func (d *AnalyticsDashboard) SetDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}
	d.mu.Lock()
	d.days = days
	d.mu.Unlock()
	return d.resubscribe(d.topicFor(days))
}

// Snapshot returns the latest view; ok is false until the first update
func (d *AnalyticsDashboard) Snapshot() (view DashboardView, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.latest == nil {
		return DashboardView{}, false
	}
	view = *d.latest
	view.Connection = d.indicator
	return view, true
}

func (d *AnalyticsDashboard) topicFor(days int) realtime.Topic {
	return realtime.Topic{
		Name:   events.TopicDashboard,
		Params: map[string]interface{}{"days": days},
	}
}

// apply replaces the whole snapshot, so a repeated payload leaves the
// view unchanged
func (d *AnalyticsDashboard) apply(env events.Envelope) error {
	var payload events.DashboardPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("decode dashboard payload: %w", err)
	}
	if payload.Days == 0 {
		payload.Days = d.Days()
	}

	view := &DashboardView{
		Days:        payload.Days,
		Totals:      payload.Totals,
		Series:      payload.Series,
		GeneratedAt: payload.GeneratedAt,
		ReceivedAt:  d.now(),
	}
	if view.Series == nil {
		view.Series = []events.Series{}
	}

	d.mu.Lock()
	d.latest = view
	d.mu.Unlock()

	if d.renderer != nil {
		if err := d.renderer.RenderSeries(view.Series); err != nil {
			d.logger.Warn("Chart render failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
