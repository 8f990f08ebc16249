package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-zx/xuwei-data/internal/api"
	"github.com/peter-zx/xuwei-data/internal/config"
	"github.com/peter-zx/xuwei-data/internal/metrics"
	"github.com/peter-zx/xuwei-data/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.DevMode = true

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := service.New(service.WithMetrics(m))
	t.Cleanup(func() { _ = svc.Close() })

	return NewServer(cfg, api.NewHandler(svc), WithMetrics(m, reg))
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	assert.Equal(t, ":8080", s.Addr())

	w := serve(s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(s, http.MethodOptions, "/api/upload")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Server.DevMode = true
	svc := service.New()
	t.Cleanup(func() { _ = svc.Close() })

	s := NewServer(cfg, api.NewHandler(svc), WithHealthCheck(func(context.Context) error {
		return errors.New("database is locked")
	}))
	w := serve(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database is locked")

	// 未启用指标时没有 /metrics
	w = serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	serve(s, http.MethodGet, "/api/status")
	serve(s, http.MethodGet, "/nope")

	w := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `route="/api/status"`), body)
	assert.Contains(t, body, `route="unmatched"`)
}
