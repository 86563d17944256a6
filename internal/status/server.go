// Package status exposes the HTTP interface for observing a running
// mirror: health, crawl progress, and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
	"github.com/waymirror/waymirror/internal/metrics"
)

// Reporter supplies the live run state shown on /status. The scheduler
// implements it.
type Reporter interface {
	State() archive.RunState
	Snapshot() archive.Summary
}

// Server wires HTTP handlers to the running crawl.
type Server struct {
	router   chi.Router
	reporter Reporter
	run      archive.Run
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(reporter Reporter, run archive.Run, logger *zap.Logger) *Server {
	s := &Server{
		reporter: reporter,
		run:      run,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the status server until ctx is canceled, then shuts it
// down gracefully. A listen failure is returned; a clean shutdown is not.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("status server shutdown error", zap.Error(err))
	}
	return nil
}

type statusResponse struct {
	RunID     string          `json:"run_id"`
	RootURL   string          `json:"root_url"`
	State     string          `json:"state"`
	StartedAt time.Time       `json:"started_at"`
	Summary   archive.Summary `json:"summary"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		RunID:     s.run.ID,
		RootURL:   s.run.RootURL,
		State:     string(s.reporter.State()),
		StartedAt: s.run.StartedAt,
		Summary:   s.reporter.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic", zap.Any("panic", rec))
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
