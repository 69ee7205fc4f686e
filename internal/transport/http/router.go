package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "vidsync/internal/errors"
	"vidsync/internal/middleware"
)

// RouterDeps collects what the status API serves. Nil widgets are
// disabled; a nil Metrics handler leaves /metrics unrouted.
type RouterDeps struct {
	Version    string
	Connection ConnectionReader
	Dashboard  DashboardWidget
	Workers    WorkersWidget
	Preview    PreviewWidget
	Metrics    http.Handler

	OTel        *middleware.OTelMiddleware
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

// NewRouter builds the status API router
func NewRouter(deps RouterDeps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger, false)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(errorHandler.Middleware)
	if deps.OTel != nil {
		r.Use(deps.OTel.Handler)
	}
	r.Use(middleware.StructuredLogger(logger))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	health := NewHealthHandler(deps.Connection, deps.Version, logger)
	widgetsHandler := NewWidgetsHandler(deps.Dashboard, deps.Workers, deps.Preview, errorHandler, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", health.HealthCheck)
		if deps.Connection != nil {
			r.Get("/connection", NewConnectionHandler(deps.Connection).GetConnection)
		}
		r.Mount("/widgets", widgetsHandler.Routes())
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}
