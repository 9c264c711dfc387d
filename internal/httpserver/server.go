// Package httpserver exposes health, scrape status and store listings over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"contesthub/internal/orchestrator"
	"contesthub/internal/queue"
	"contesthub/internal/storage"
)

// StatusReporter returns the most recent scrape cycle, if one ran.
type StatusReporter interface {
	LastReport() (orchestrator.CycleReport, bool)
}

// FailedJobLister lists retained failed jobs.
type FailedJobLister interface {
	Failed(ctx context.Context, name string) ([]queue.Job, error)
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	Logger    logrus.FieldLogger
	StartTime time.Time
	Contests  storage.ContestRepository
	Status    StatusReporter
	Jobs      FailedJobLister
	// JobName is the queue whose failed jobs /jobs/failed reports.
	JobName string
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http *http.Server
	log  logrus.FieldLogger
}

// NewRouter builds the chi router with middlewares and routes.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(accessLog(d.Logger))

	r.Get("/healthz", healthz(d))
	r.Get("/status", status(d))
	r.Get("/jobs/failed", failedJobs(d))
	r.Get("/contests", listContests(d))
	return r
}

// New builds the HTTP server listening on addr.
func New(addr string, d Deps) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return &Server{
		http: s,
		log:  d.Logger.WithField("component", "httpserver"),
	}
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("HTTP server shutting down...")
	return s.http.Shutdown(ctx)
}
