package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/airshedlab/airward/internal/adapter/http"
	"github.com/airshedlab/airward/internal/domain"
	"github.com/airshedlab/airward/internal/scheduler"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStatus struct {
	report scheduler.StatusReport
}

func (m *mockStatus) Status() scheduler.StatusReport { return m.report }

func newTestServer(readyErr error, report scheduler.StatusReport) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockStatus{report: report}, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, scheduler.StatusReport{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, scheduler.StatusReport{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("no governance cycle has completed yet"), scheduler.StatusReport{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no governance cycle has completed yet", body["error"])
}

func TestStatusEndpoint(t *testing.T) {
	report := scheduler.StatusReport{
		State:       scheduler.StateOperational,
		LastCycleAt: time.Date(2025, 11, 3, 6, 0, 0, 0, time.UTC),
		Agents: []scheduler.AgentStatus{
			{Name: "ingestion", Available: true},
		},
		Correlation: []domain.CorrelationResult{
			{Region: "Punjab", FireCount: 280, HighContribution: true},
		},
	}
	srv := newTestServer(nil, report)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body scheduler.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, scheduler.StateOperational, body.State)
	require.Len(t, body.Agents, 1)
	assert.True(t, body.Agents[0].Available)
	require.Len(t, body.Correlation, 1)
	assert.Equal(t, "Punjab", body.Correlation[0].Region)
	assert.Equal(t, 280, body.Correlation[0].FireCount)
	assert.True(t, body.Correlation[0].HighContribution)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, scheduler.StatusReport{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
