// Package httpserver is the ambient Health/Metrics Server (C14): a small
// gorilla/mux surface exposing /healthz, /readyz, and /metrics. It is
// deliberately NOT the upload/download/list front end — that API is
// external to this repo (§4 C14 note) — so every route here is read-only
// operational surface.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/metrics"
	"github.com/kenneth/discord-file-vault/internal/middleware"
)

// ReadinessCheck is a lightweight probe run on every /readyz call. A nil
// error means ready.
type ReadinessCheck func(ctx context.Context) error

// Server wraps an http.Server serving the ambient operational surface.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// New builds a Server bound to addr. keyManagerHealth and resumeIndexHealth
// are consulted by /readyz; either may be nil to skip that check (e.g. no
// resume index configured).
func New(addr string, m *metrics.Metrics, log *logrus.Logger, keyManagerHealth, resumeIndexHealth ReadinessCheck) *Server {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	router.HandleFunc("/livez", metrics.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", readinessHandler(keyManagerHealth, resumeIndexHealth)).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	handler := middleware.RecoveryMiddleware(log)(middleware.LoggingMiddleware(log)(router))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// readinessHandler composes the KeyManager and Resume Index health checks
// into a single /readyz probe. Either check may be nil.
func readinessHandler(keyManagerHealth, resumeIndexHealth ReadinessCheck) http.HandlerFunc {
	combined := func(ctx context.Context) error {
		if keyManagerHealth != nil {
			if err := keyManagerHealth(ctx); err != nil {
				return err
			}
		}
		if resumeIndexHealth != nil {
			if err := resumeIndexHealth(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return metrics.ReadinessHandler(combined)
}

// ListenAndServe blocks serving HTTP until ctx is canceled, then gracefully
// shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down http server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
