package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cskeys/internal/keyservice"
)

func newHealthServer(t *testing.T, service KeyService) *httptest.Server {
	t.Helper()
	handler := NewHealthHandler(service, testLogger())
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server
}

func healthResult(status keyservice.HealthStatus) *keyservice.HealthResult {
	return &keyservice.HealthResult{
		Status:    status,
		Timestamp: time.Now(),
		Components: map[string]*keyservice.ComponentHealth{
			"remote_store": {Status: status, Message: "remote ledger"},
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		status     keyservice.HealthStatus
		wantStatus int
	}{
		{keyservice.HealthStatusHealthy, http.StatusOK},
		{keyservice.HealthStatusDegraded, http.StatusOK},
		{keyservice.HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			server := newHealthServer(t, &mockKeyService{health: healthResult(tt.status)})

			resp, err := http.Get(server.URL + "/")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body keyservice.HealthResult
			decodeBody(t, resp, &body)
			assert.Equal(t, tt.status, body.Status)
			assert.Contains(t, body.Components, "remote_store")
		})
	}
}

func TestLivenessEndpoint(t *testing.T) {
	// Liveness never consults the service
	server := newHealthServer(t, &mockKeyService{})

	resp, err := http.Get(server.URL + "/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "alive", body["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		server := newHealthServer(t, &mockKeyService{health: healthResult(keyservice.HealthStatusHealthy)})

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not ready", func(t *testing.T) {
		server := newHealthServer(t, &mockKeyService{health: healthResult(keyservice.HealthStatusUnhealthy)})

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body map[string]string
		decodeBody(t, resp, &body)
		assert.Equal(t, "not ready", body["status"])
	})
}
