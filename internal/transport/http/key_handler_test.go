package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "cskeys/internal/errors"
	"cskeys/internal/keyservice"
	"cskeys/internal/localstore"
	"cskeys/internal/sheetstore"
)

// mockKeyService is a scriptable KeyService.
type mockKeyService struct {
	generateResult keyservice.GenerateResult
	validateResult keyservice.ValidationResult
	consumeResult  keyservice.ConsumeResult
	stats          *keyservice.KeyStats
	statsErr       error
	legacyStats    *keyservice.KeyStats
	list           *sheetstore.ListResult
	listErr        error
	audit          []localstore.AuditRecord
	health         *keyservice.HealthResult

	validatedKeys []string
	consumedKeys  []string
}

func (m *mockKeyService) GenerateFreeKey(context.Context) keyservice.GenerateResult {
	return m.generateResult
}

func (m *mockKeyService) GeneratePaidKey(context.Context) keyservice.GenerateResult {
	return m.generateResult
}

func (m *mockKeyService) GenerateLegacyKey(context.Context) keyservice.GenerateResult {
	return m.generateResult
}

func (m *mockKeyService) ValidateKey(_ context.Context, code string) keyservice.ValidationResult {
	m.validatedKeys = append(m.validatedKeys, code)
	return m.validateResult
}

func (m *mockKeyService) ValidateLegacyKey(_ context.Context, code string) keyservice.ValidationResult {
	m.validatedKeys = append(m.validatedKeys, code)
	return m.validateResult
}

func (m *mockKeyService) ConsumeKey(_ context.Context, code string) keyservice.ConsumeResult {
	m.consumedKeys = append(m.consumedKeys, code)
	return m.consumeResult
}

func (m *mockKeyService) ConsumeLegacyKey(_ context.Context, code string) keyservice.ConsumeResult {
	m.consumedKeys = append(m.consumedKeys, code)
	return m.consumeResult
}

func (m *mockKeyService) KeyStats(context.Context) (*keyservice.KeyStats, error) {
	return m.stats, m.statsErr
}

func (m *mockKeyService) LegacyKeyStats() *keyservice.KeyStats { return m.legacyStats }

func (m *mockKeyService) ListKeys(context.Context) (*sheetstore.ListResult, error) {
	return m.list, m.listErr
}

func (m *mockKeyService) AuditLog() []localstore.AuditRecord { return m.audit }

func (m *mockKeyService) HealthCheck(context.Context) *keyservice.HealthResult { return m.health }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, service KeyService) *httptest.Server {
	t.Helper()
	handler := NewKeyHandler(service, testLogger())
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGenerateEndpoints(t *testing.T) {
	service := &mockKeyService{generateResult: keyservice.GenerateResult{
		Success:    true,
		Key:        "CS-FREE-20240115-ABCD1234",
		Type:       "FREE",
		UsageBonus: 20,
		Message:    "FREE金鑰生成成功",
	}}
	server := newTestServer(t, service)

	for _, path := range []string{"/generate/free", "/generate/paid", "/legacy/generate"} {
		t.Run(path, func(t *testing.T) {
			resp := postJSON(t, server.URL+path, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var body GenerateResponse
			decodeBody(t, resp, &body)
			assert.True(t, body.Success)
			assert.Equal(t, "CS-FREE-20240115-ABCD1234", body.Key)
			assert.False(t, body.Timestamp.IsZero())
		})
	}
}

func TestGenerateQuotaExceededStatus(t *testing.T) {
	service := &mockKeyService{generateResult: keyservice.GenerateResult{
		Success:       false,
		Error:         "今日金鑰生成次數已達上限",
		FailureReason: keyservice.FailureQuotaExceeded,
	}}
	server := newTestServer(t, service)

	resp := postJSON(t, server.URL+"/generate/free", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body GenerateResponse
	decodeBody(t, resp, &body)
	assert.False(t, body.Success)
	assert.Equal(t, "今日金鑰生成次數已達上限", body.Error)
}

func TestGenerateFailureStatuses(t *testing.T) {
	tests := []struct {
		reason keyservice.FailureReason
		status int
	}{
		{keyservice.FailureQuotaExceeded, http.StatusTooManyRequests},
		{keyservice.FailureTransportError, http.StatusBadGateway},
		{keyservice.FailurePersistError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			service := &mockKeyService{generateResult: keyservice.GenerateResult{
				Success:       false,
				Error:         "金鑰生成失敗",
				FailureReason: tt.reason,
			}}
			server := newTestServer(t, service)

			resp := postJSON(t, server.URL+"/generate/free", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	service := &mockKeyService{validateResult: keyservice.ValidationResult{
		Valid:      true,
		Reason:     "金鑰有效",
		UsageBonus: 20,
		KeyType:    "FREE",
	}}
	server := newTestServer(t, service)

	resp := postJSON(t, server.URL+"/validate", KeyRequest{Key: "CS-FREE-20240115-ABCD1234"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body ValidateResponse
	decodeBody(t, resp, &body)
	assert.True(t, body.Valid)
	assert.Equal(t, "金鑰有效", body.Reason)
	assert.Equal(t, []string{"CS-FREE-20240115-ABCD1234"}, service.validatedKeys)
}

func TestValidateEndpointInvalidKeyStillOK(t *testing.T) {
	// Rejection is a decision, not an HTTP error
	service := &mockKeyService{validateResult: keyservice.ValidationResult{
		Valid:  false,
		Reason: "金鑰不存在",
	}}
	server := newTestServer(t, service)

	resp := postJSON(t, server.URL+"/validate", KeyRequest{Key: "CS-FREE-20240115-ABCD1234"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body ValidateResponse
	decodeBody(t, resp, &body)
	assert.False(t, body.Valid)
	assert.Equal(t, "金鑰不存在", body.Reason)
}

func TestValidateEndpointBadRequest(t *testing.T) {
	service := &mockKeyService{}
	server := newTestServer(t, service)

	t.Run("missing key", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/validate", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body apierrors.ErrorResponse
		decodeBody(t, resp, &body)
		assert.False(t, body.Success)
	})

	t.Run("key too short", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/validate", KeyRequest{Key: "short"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/validate", "application/json",
			bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	assert.Empty(t, service.validatedKeys, "rejected requests never reach the service")
}

func TestConsumeEndpoint(t *testing.T) {
	service := &mockKeyService{consumeResult: keyservice.ConsumeResult{
		Success:     true,
		Message:     "金鑰有效",
		Fingerprint: "fedcba9876543210fedcba9876543210",
	}}
	server := newTestServer(t, service)

	resp := postJSON(t, server.URL+"/consume", KeyRequest{Key: "CS-FREE-20240115-ABCD1234"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body ConsumeResponse
	decodeBody(t, resp, &body)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Fingerprint)
}

func TestConsumeEndpointConflict(t *testing.T) {
	service := &mockKeyService{consumeResult: keyservice.ConsumeResult{
		Success: false,
		Message: "金鑰已被使用",
	}}
	server := newTestServer(t, service)

	resp := postJSON(t, server.URL+"/consume", KeyRequest{Key: "CS-FREE-20240115-ABCD1234"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body ConsumeResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "金鑰已被使用", body.Message)
}

func TestLegacyEndpointsShareValidation(t *testing.T) {
	service := &mockKeyService{
		validateResult: keyservice.ValidationResult{Valid: true, Reason: "金鑰有效"},
		consumeResult:  keyservice.ConsumeResult{Success: true, Message: "金鑰有效"},
	}
	server := newTestServer(t, service)

	resp := postJSON(t, server.URL+"/legacy/validate", KeyRequest{Key: "CS-AB12-CD34-EF56"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, server.URL+"/legacy/consume", KeyRequest{Key: "CS-AB12-CD34-EF56"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"CS-AB12-CD34-EF56", "CS-AB12-CD34-EF56"}, service.validatedKeys)
	assert.Equal(t, []string{"CS-AB12-CD34-EF56"}, service.consumedKeys)
}

func TestStatsEndpoint(t *testing.T) {
	service := &mockKeyService{stats: &keyservice.KeyStats{
		TotalGenerated: 10,
		TotalUsed:      4,
		TotalExpired:   1,
		Remaining:      5,
	}}
	server := newTestServer(t, service)

	resp, err := http.Get(server.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats keyservice.KeyStats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 10, stats.TotalGenerated)
	assert.Equal(t, 5, stats.Remaining)
}

func TestStatsEndpointRemoteDown(t *testing.T) {
	service := &mockKeyService{statsErr: errors.New("ledger unreachable")}
	server := newTestServer(t, service)

	resp, err := http.Get(server.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestLegacyStatsEndpoint(t *testing.T) {
	service := &mockKeyService{legacyStats: &keyservice.KeyStats{TotalGenerated: 2, Remaining: 2}}
	server := newTestServer(t, service)

	resp, err := http.Get(server.URL + "/stats/legacy")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats keyservice.KeyStats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 2, stats.TotalGenerated)
}

func TestListEndpoint(t *testing.T) {
	service := &mockKeyService{list: &sheetstore.ListResult{
		Success: true,
		Total:   1,
		Keys:    []sheetstore.KeyRecord{{Code: "CS-FREE-20240115-ABCD1234", Type: "FREE"}},
	}}
	server := newTestServer(t, service)

	resp, err := http.Get(server.URL + "/list")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body sheetstore.ListResult
	decodeBody(t, resp, &body)
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Keys, 1)
	assert.Equal(t, "CS-FREE-20240115-ABCD1234", body.Keys[0].Code)
}

func TestListEndpointRemoteDown(t *testing.T) {
	service := &mockKeyService{listErr: errors.New("ledger unreachable")}
	server := newTestServer(t, service)

	resp, err := http.Get(server.URL + "/list")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAuditEndpoint(t *testing.T) {
	service := &mockKeyService{audit: []localstore.AuditRecord{
		{Code: "CS-FREE-20240115-ABCD1234", Type: "FREE"},
	}}
	server := newTestServer(t, service)

	resp, err := http.Get(server.URL + "/audit")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Records []localstore.AuditRecord `json:"records"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "CS-FREE-20240115-ABCD1234", body.Records[0].Code)
}
