package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"cskeys/internal/keyservice"
)

// HealthHandler exposes liveness and readiness endpoints
type HealthHandler struct {
	service KeyService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service KeyService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Routes returns a chi router for health endpoints
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Health)
	r.Get("/live", h.Liveness)
	r.Get("/ready", h.Readiness)
	return r
}

// Health handles GET /api/health with full component detail
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	result := h.service.HealthCheck(r.Context())

	status := http.StatusOK
	if result.Status == keyservice.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, result)
}

// Liveness handles GET /api/health/live. Always OK while the process runs.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "alive"})
}

// Readiness handles GET /api/health/ready. Ready means the remote
// ledger is reachable, since every issuance needs it.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	result := h.service.HealthCheck(r.Context())

	if result.Status == keyservice.HealthStatusUnhealthy {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "not ready"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}
