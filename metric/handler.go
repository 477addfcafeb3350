package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/sensorstream/errors"
)

// HealthFunc reports whether the pipeline is currently healthy.
type HealthFunc func() bool

// Server exposes Prometheus metrics and a liveness endpoint over HTTP.
type Server struct {
	port     int
	path     string
	registry *Registry
	healthFn HealthFunc
	logger   *slog.Logger

	server *http.Server
	mu     sync.Mutex // protects server field
}

// NewServer creates a new metrics server with the provided registry.
// healthFn may be nil, in which case /healthz always reports healthy.
func NewServer(port int, path string, registry *Registry, healthFn HealthFunc, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		healthFn: healthFn,
		logger:   logger.With("component", "metrics_server"),
	}
}

// Start starts the metrics HTTP server in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "MetricServer", "Start", "starting")
	}
	if s.registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "MetricServer", "Start", "metrics registry not provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The listener failing here (port conflict, bind error) leaves
			// the process without /metrics and /healthz.
			s.logger.Error("metrics server failed", "addr", srv.Addr, "error", err)
		}
	}(s.server)

	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "MetricServer", "Stop", "shutdown")
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	healthy := true
	if s.healthFn != nil {
		healthy = s.healthFn()
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
