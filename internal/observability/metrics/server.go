// Package metrics provides Prometheus metrics for the secret-replication daemon.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vaultsync/vaultsync/internal/health"
)

// ServerConfig holds configuration for the metrics server.
type ServerConfig struct {
	// Port is the port to listen on.
	Port int

	// Path is the path to serve metrics on.
	Path string

	// ReadTimeout is the read timeout for the server.
	ReadTimeout time.Duration

	// WriteTimeout is the write timeout for the server.
	WriteTimeout time.Duration

	// EnableRuntimeMetrics enables Go runtime metrics collection.
	EnableRuntimeMetrics bool

	// EnableProcessMetrics enables process metrics collection.
	EnableProcessMetrics bool

	// Registry is the registry the /metrics handler registers its own
	// promhttp instrumentation with. If nil, uses the default registry.
	// The metrics served on /metrics are always gathered from the default
	// gatherer.
	Registry *prometheus.Registry
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:                 9091,
		Path:                 "/metrics",
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         10 * time.Second,
		EnableRuntimeMetrics: true,
		EnableProcessMetrics: true,
	}
}

// Server is a Prometheus metrics server.
type Server struct {
	config        *ServerConfig
	server        *http.Server
	logger        *zap.Logger
	collector     *DaemonCollector
	runtime       *RuntimeCollector
	registry      *prometheus.Registry
	stopCh        chan struct{}
	collectTicker *time.Ticker
	stopOnce      sync.Once
	probeHandler  *health.ProbeHandler
}

// NewServer creates a new metrics server.
func NewServer(config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := config.Registry
	if registry == nil {
		if reg, ok := prometheus.DefaultRegisterer.(*prometheus.Registry); ok {
			registry = reg
		} else {
			// Create a new registry if default is not available
			registry = prometheus.NewRegistry()
		}
	}

	return &Server{
		config:   config,
		logger:   logger,
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

// WithDaemonCollector sets the daemon collector.
func (s *Server) WithDaemonCollector(collector *DaemonCollector) *Server {
	s.collector = collector
	return s
}

// WithRuntimeCollector sets the runtime collector.
func (s *Server) WithRuntimeCollector(collector *RuntimeCollector) *Server {
	s.runtime = collector
	return s
}

// WithProbeHandler attaches a health.ProbeHandler whose checks are served
// from this server's /health, /healthz, /livez, /readyz, and /ready
// routes, in place of the bare liveness stubs below. Checks may be
// registered on the handler both before and after Start, since the
// handler reads its check list under a lock on every request.
func (s *Server) WithProbeHandler(h *health.ProbeHandler) *Server {
	s.probeHandler = h
	return s
}

// Start starts the metrics server.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Create handler options
	handlerOpts := promhttp.HandlerOpts{
		ErrorLog:            &zapErrorLogger{logger: s.logger},
		ErrorHandling:       promhttp.ContinueOnError,
		Registry:            s.registry,
		DisableCompression:  false,
		MaxRequestsInFlight: 10,
		Timeout:             s.config.WriteTimeout,
		EnableOpenMetrics:   true,
	}

	// Register metrics handler
	mux.Handle(s.config.Path, promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		handlerOpts,
	))

	if s.probeHandler != nil {
		s.probeHandler.RegisterRoutes(mux)
	} else {
		// Register a bare liveness stub for the metrics server itself.
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("OK")); err != nil {
				s.logger.Debug("failed to write health response", zap.Error(err))
			}
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Ready")); err != nil {
				s.logger.Debug("failed to write ready response", zap.Error(err))
			}
		})
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	// Start periodic collection if collectors are set
	if s.collector != nil || s.runtime != nil {
		s.collectTicker = time.NewTicker(10 * time.Second)
		go s.collectLoop()
	}

	s.logger.Info("starting metrics server",
		zap.Int("port", s.config.Port),
		zap.String("path", s.config.Path),
	)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping metrics server")

	var stopErr error
	s.stopOnce.Do(func() {
		// Stop collection ticker
		if s.collectTicker != nil {
			s.collectTicker.Stop()
		}

		// Signal stop
		close(s.stopCh)

		// Shutdown server
		if s.server != nil {
			stopErr = s.server.Shutdown(ctx)
		}
	})

	return stopErr
}

// collectLoop periodically collects metrics.
func (s *Server) collectLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.collectTicker.C:
			if s.collector != nil {
				s.collector.Collect()
			}
			if s.runtime != nil {
				s.runtime.Collect()
			}
		}
	}
}

// GetHandler returns the Prometheus HTTP handler.
func (s *Server) GetHandler() http.Handler {
	return promhttp.Handler()
}

// GetHandlerFor returns a Prometheus HTTP handler for a specific gatherer.
func (s *Server) GetHandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:            &zapErrorLogger{logger: s.logger},
		ErrorHandling:       promhttp.ContinueOnError,
		DisableCompression:  false,
		MaxRequestsInFlight: 10,
		EnableOpenMetrics:   true,
	})
}

// zapErrorLogger adapts zap.Logger to promhttp.Logger interface.
type zapErrorLogger struct {
	logger *zap.Logger
}

// Println implements promhttp.Logger.
func (l *zapErrorLogger) Println(v ...interface{}) {
	l.logger.Error(fmt.Sprint(v...))
}
