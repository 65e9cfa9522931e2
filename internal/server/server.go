// Package server exposes the job ledger over a read-only HTTP API. It
// is an operator surface: dispatches are driven by the CLI, never
// through HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/stardis/internal/store"
	"github.com/me/stardis/pkg/model"
)

// Server is the stardis status API server.
type Server struct {
	router    chi.Router
	store     store.Store
	logger    *slog.Logger
	startTime time.Time
}

// New creates a Server over the given ledger.
func New(st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		store:     st,
		logger:    logger.With("component", "server"),
		startTime: time.Now().UTC(),
	}

	r := chi.NewRouter()
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("status API listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Truncate(time.Second).String(),
		"started": s.startTime,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context(), 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	respondOK(w, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "get job failed")
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondOK(w, job)
}
