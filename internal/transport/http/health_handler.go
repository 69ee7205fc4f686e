package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"vidsync/internal/widgets"
)

// HealthResponse is the liveness body
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Connection widgets.Indicator `json:"connection"`
}

// HealthHandler handles GET /api/health
type HealthHandler struct {
	connection ConnectionReader
	version    string
	startedAt  time.Time
	logger     *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connection ConnectionReader, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		connection: connection,
		version:    version,
		startedAt:  time.Now(),
		logger:     logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck reports liveness. The process is alive even while the
// connection is down, so the status code is always 200.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    h.version,
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Connection: widgets.IndicatorOffline,
	}
	if h.connection != nil {
		resp.Connection = widgets.IndicatorFor(h.connection.Snapshot().State)
	}
	render.JSON(w, r, resp)
}

// ConnectionHandler handles GET /api/connection
type ConnectionHandler struct {
	connection ConnectionReader
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(connection ConnectionReader) *ConnectionHandler {
	return &ConnectionHandler{connection: connection}
}

// GetConnection renders the connection snapshot
func (h *ConnectionHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.connection.Snapshot())
}
