// Package web exposes the calendar sessions over HTTP.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"klinikcal/internal/calendar"
	appLog "klinikcal/internal/log"
	"klinikcal/internal/metrics"
	"klinikcal/internal/slot"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Sessions *calendar.Sessions
	Catalog  calendar.Catalog
	Grid     slot.Grid
	Metrics  *metrics.CalendarMetrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer    prometheus.Gatherer
	JWTSecret   string
	CORSOrigins []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server provides the HTTP API of the calendar.
type Server struct {
	deps   Deps
	router chi.Router
}

func NewServer(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Grid.Location == nil {
		deps.Grid.Location = time.UTC
	}
	s := &Server{deps: deps, router: chi.NewRouter()}
	s.registerRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(requestID)
	r.Use(requestLogger(s.deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.deps.CORSOrigins))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(Identity(s.deps.JWTSecret))

		r.Get("/week", s.handleWeek)
		r.Get("/week.ics", s.handleWeekICS)
		r.Get("/week/cell", s.handleCell)
		r.Post("/week/selection", s.handleSelection)
		r.Get("/services", s.handleServices)

		r.Post("/appointments", s.handleCreate)
		r.Put("/appointments/{id}", s.handleUpdate)
		r.Get("/appointments/{id}/delete-scope", s.handleDeleteScope)
		r.Delete("/appointments/{id}", s.handleDelete)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server", "timeout", shutdownTimeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
