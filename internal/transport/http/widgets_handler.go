package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "vidsync/internal/errors"
	"vidsync/internal/widgets"
	"vidsync/pkg/contracts/events"
)

var validate = validator.New()

// DashboardWindowRequest changes the analytics window
type DashboardWindowRequest struct {
	Days int `json:"days" validate:"required,min=1,max=365"`
}

// Bind implements render.Binder
func (req *DashboardWindowRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// WorkersResponse is the worker monitor body
type WorkersResponse struct {
	Workers []events.WorkerStatus `json:"workers"`
	Summary widgets.WorkerSummary `json:"summary"`
}

// WidgetsHandler serves the latest widget state. A nil widget is disabled
// and answers 404.
type WidgetsHandler struct {
	dashboard DashboardWidget
	workers   WorkersWidget
	preview   PreviewWidget
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewWidgetsHandler creates a new widgets handler
func NewWidgetsHandler(dashboard DashboardWidget, workers WorkersWidget, preview PreviewWidget, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *WidgetsHandler {
	return &WidgetsHandler{
		dashboard: dashboard,
		workers:   workers,
		preview:   preview,
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "widgets")),
	}
}

// Routes returns the widget routes
func (h *WidgetsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListWidgets)
	r.Get("/dashboard", h.GetDashboard)
	r.Put("/dashboard/window", h.SetDashboardWindow)
	r.Get("/workers", h.GetWorkers)
	r.Get("/preview", h.GetPreview)
	return r
}

// ListWidgets renders the status of every enabled widget
func (h *WidgetsHandler) ListWidgets(w http.ResponseWriter, r *http.Request) {
	statuses := make([]widgets.Status, 0, 3)
	if h.dashboard != nil {
		statuses = append(statuses, h.dashboard.Status())
	}
	if h.workers != nil {
		statuses = append(statuses, h.workers.Status())
	}
	if h.preview != nil {
		statuses = append(statuses, h.preview.Status())
	}
	render.JSON(w, r, statuses)
}

// GetDashboard handles GET /api/widgets/dashboard
func (h *WidgetsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	if h.dashboard == nil {
		h.errors.HandleError(w, r, apierrors.NotFoundError("dashboard widget"))
		return
	}
	view, ok := h.dashboard.Snapshot()
	if !ok {
		h.errors.HandleError(w, r, apierrors.NoDataError("dashboard"))
		return
	}
	render.JSON(w, r, view)
}

// SetDashboardWindow handles PUT /api/widgets/dashboard/window
func (h *WidgetsHandler) SetDashboardWindow(w http.ResponseWriter, r *http.Request) {
	if h.dashboard == nil {
		h.errors.HandleError(w, r, apierrors.NotFoundError("dashboard widget"))
		return
	}

	var req DashboardWindowRequest
	if err := render.Bind(r, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidParameterError("days", err))
		return
	}
	if err := h.dashboard.SetDays(req.Days); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Dashboard window changed", slog.Int("days", req.Days))
	render.JSON(w, r, map[string]int{"days": h.dashboard.Days()})
}

// GetWorkers handles GET /api/widgets/workers
func (h *WidgetsHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	if h.workers == nil {
		h.errors.HandleError(w, r, apierrors.NotFoundError("workers widget"))
		return
	}
	list, ok := h.workers.Workers()
	if !ok {
		h.errors.HandleError(w, r, apierrors.NoDataError("workers"))
		return
	}
	render.JSON(w, r, WorkersResponse{Workers: list, Summary: h.workers.Summary()})
}

// GetPreview handles GET /api/widgets/preview
func (h *WidgetsHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	if h.preview == nil {
		h.errors.HandleError(w, r, apierrors.NotFoundError("preview widget"))
		return
	}
	view, ok := h.preview.Snapshot()
	if !ok {
		h.errors.HandleError(w, r, apierrors.NoDataError("preview"))
		return
	}
	render.JSON(w, r, view)
}
