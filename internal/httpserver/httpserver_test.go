package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/discord-file-vault/internal/metrics"
)

func newTestServer(keyManagerHealth, resumeIndexHealth ReadinessCheck) *Server {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(":0", m, log, keyManagerHealth, resumeIndexHealth)
}

func TestReadyzOKWhenAllChecksPass(t *testing.T) {
	srv := newTestServer(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return nil },
	)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzFailsWhenKeyManagerUnhealthy(t *testing.T) {
	srv := newTestServer(
		func(ctx context.Context) error { return errors.New("kms unreachable") },
		nil,
	)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthzAlwaysOK(t *testing.T) {
	srv := newTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := newTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
