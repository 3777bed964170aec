package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/config"
	"github.com/agriveille/prefecture-crawler/internal/storage/memory"
)

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyzReflectsStore(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestRequestIDHeaderSet(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}

func TestAPIKeyMiddleware(t *testing.T) {
	docs := memory.NewDocumentStore()
	runs := memory.NewRunStore()
	srv := NewServer(docs, runs, config.APIConfig{
		Addr:    ":0",
		Timeout: 5 * time.Second,
		Auth:    config.AuthConfig{Enabled: true, APIKey: "sekrit"},
	}, zap.NewNop())

	rec := doRequest(srv, http.MethodGet, "/v1/documents")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/v1/documents?api_key=sekrit")
	require.Equal(t, http.StatusOK, rec.Code)
}
