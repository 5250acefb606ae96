package metric

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wmo-im/wis2node/errors"
)

// HealthChecker reports whether the process is healthy. The dispatcher and
// broker client both satisfy this through small adapter funcs.
type HealthChecker func() bool

// Server exposes /metrics and /healthz over HTTP
type Server struct {
	addr     string
	registry *Registry
	checks   map[string]HealthChecker
	server   *http.Server
	mu       sync.Mutex
}

// NewServer creates a metrics server listening on addr
func NewServer(addr string, registry *Registry) *Server {
	if addr == "" {
		addr = ":9090"
	}
	return &Server{
		addr:     addr,
		registry: registry,
		checks:   make(map[string]HealthChecker),
	}
}

// AddHealthCheck registers a named health check evaluated on /healthz
func (s *Server) AddHealthCheck(name string, check HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Router builds the chi router serving metrics and health
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		for name, check := range s.checks {
			if !check() {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "unhealthy: %s\n", name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return r
}

// Start runs the HTTP server until it fails or is shut down. Blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "start metrics server")
	}
	if s.registry == nil {
		s.mu.Unlock()
		return errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Server", "Start", "start metrics server")
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("listen on %s", s.addr))
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
