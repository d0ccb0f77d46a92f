package http

import (
	"net/http"
)

// MetricsHandler serves the Prometheus scrape endpoint produced by the
// OpenTelemetry metrics pipeline.
type MetricsHandler struct {
	prometheus http.Handler
}

// NewMetricsHandler creates a metrics handler around a Prometheus
// exporter handler. A nil handler yields 404s, so metrics can be
// disabled without branching in the router.
func NewMetricsHandler(prometheus http.Handler) *MetricsHandler {
	return &MetricsHandler{prometheus: prometheus}
}

// ServeHTTP implements http.Handler
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		http.NotFound(w, r)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}
