// Package observability provides comprehensive observability for the
// secret-replication daemon. It includes metrics, tracing, and logging
// functionality.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vaultsync/vaultsync/internal/health"
	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/observability/metrics"
	"github.com/vaultsync/vaultsync/internal/observability/tracing"
)

// Config holds configuration for observability.
type Config struct {
	// Service information
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Logging configuration
	LogLevel         logging.Level
	LogFormat        logging.Format
	LogOutput        string
	AccessLogEnabled bool

	// Tracing configuration
	TracingEnabled    bool
	TracingExporter   tracing.ExporterType
	OTLPEndpoint      string
	TracingSampleRate float64
	TracingInsecure   bool
	TracingHeaders    map[string]string

	// Metrics configuration
	MetricsEnabled bool
	MetricsPort    int
	MetricsPath    string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:       "vaultsync",
		ServiceVersion:    "1.0.0",
		Environment:       "development",
		LogLevel:          logging.LevelInfo,
		LogFormat:         logging.FormatJSON,
		LogOutput:         "stdout",
		AccessLogEnabled:  true,
		TracingEnabled:    false,
		TracingExporter:   tracing.ExporterOTLPGRPC,
		OTLPEndpoint:      "localhost:4317",
		TracingSampleRate: 1.0,
		TracingInsecure:   true,
		MetricsEnabled:    true,
		MetricsPort:       9091,
		MetricsPath:       "/metrics",
	}
}

// Observability manages all observability components.
type Observability struct {
	config           *Config
	logger           *logging.Logger
	tracingProvider  *tracing.Provider
	metricsServer    *metrics.Server
	collector        *metrics.DaemonCollector
	runtimeCollector *metrics.RuntimeCollector
	metricsErrCh     chan error    // Channel to capture metrics server startup errors
	metricsReady     chan struct{} // Channel to signal metrics server is ready
	healthChecker    *health.ProbeHandler
}

// New creates a new Observability instance.
func New(config *Config) (*Observability, error) {
	if config == nil {
		config = DefaultConfig()
	}

	return &Observability{
		config: config,
	}, nil
}

// Start initializes and starts all observability components.
func (o *Observability) Start(ctx context.Context) error {
	// Initialize logging
	if err := o.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	o.logger.Info("initializing observability",
		logging.Service(o.config.ServiceName),
		logging.Version(o.config.ServiceVersion),
		logging.Environment(o.config.Environment),
	)

	// Initialize tracing
	if o.config.TracingEnabled {
		if err := o.initTracing(ctx); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	// Initialize metrics
	if o.config.MetricsEnabled {
		if err := o.initMetrics(ctx); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	// Setup propagators
	tracing.SetupPropagators(&tracing.PropagatorConfig{
		Types:         []tracing.PropagatorType{tracing.PropagatorW3C},
		EnableBaggage: true,
	})

	o.logger.Info("observability initialized successfully")
	return nil
}

// Stop shuts down all observability components.
func (o *Observability) Stop(ctx context.Context) error {
	o.logger.Info("stopping observability")

	var errs []error

	// Stop metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}

	// Stop tracing provider
	if o.tracingProvider != nil {
		if err := o.tracingProvider.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop tracing provider: %w", err))
		}
	}

	// Sync logger
	if o.logger != nil {
		if err := o.logger.Sync(); err != nil {
			// Ignore sync errors for stdout/stderr
			if o.config.LogOutput != "stdout" && o.config.LogOutput != "stderr" {
				errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		// Use errors.Join for proper error wrapping (Go 1.20+)
		return errors.Join(errs...)
	}

	return nil
}

// initLogging initializes the logging component.
func (o *Observability) initLogging() error {
	logConfig := &logging.Config{
		Level:       o.config.LogLevel,
		Format:      o.config.LogFormat,
		Output:      o.config.LogOutput,
		Development: o.config.Environment == "development",
		InitialFields: map[string]interface{}{
			"service":     o.config.ServiceName,
			"version":     o.config.ServiceVersion,
			"environment": o.config.Environment,
		},
	}

	logger, err := logging.NewLogger(logConfig)
	if err != nil {
		return err
	}

	o.logger = logger
	logging.SetGlobalLogger(logger)

	return nil
}

// initTracing initializes the tracing component.
func (o *Observability) initTracing(ctx context.Context) error {
	tracingConfig := &tracing.Config{
		ServiceName:    o.config.ServiceName,
		ServiceVersion: o.config.ServiceVersion,
		Environment:    o.config.Environment,
		ExporterType:   o.config.TracingExporter,
		Endpoint:       o.config.OTLPEndpoint,
		Insecure:       o.config.TracingInsecure,
		Headers:        o.config.TracingHeaders,
		SampleRate:     o.config.TracingSampleRate,
		BatchTimeout:   5 * time.Second,
	}

	provider, err := tracing.NewProvider(tracingConfig, o.logger.Logger)
	if err != nil {
		return err
	}

	if err := provider.Start(ctx); err != nil {
		return err
	}

	o.tracingProvider = provider
	return nil
}

// initMetrics initializes the metrics component.
func (o *Observability) initMetrics(ctx context.Context) error {
	// Create collectors
	o.collector = metrics.NewDaemonCollector(o.config.ServiceName, o.config.ServiceVersion)
	o.runtimeCollector = metrics.NewRuntimeCollector()

	// Create metrics server
	serverConfig := &metrics.ServerConfig{
		Port:                 o.config.MetricsPort,
		Path:                 o.config.MetricsPath,
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         10 * time.Second,
		EnableRuntimeMetrics: true,
		EnableProcessMetrics: true,
	}

	o.healthChecker = health.NewProbeHandler(o.logger.Logger)

	o.metricsServer = metrics.NewServer(serverConfig, o.logger.Logger).
		WithDaemonCollector(o.collector).
		WithRuntimeCollector(o.runtimeCollector).
		WithProbeHandler(o.healthChecker)

	// Initialize error and ready channels
	o.metricsErrCh = make(chan error, 1)
	o.metricsReady = make(chan struct{})

	// Start metrics server in background
	go func() {
		// Signal ready after a short delay to allow server to start
		go func() {
			// Give the server a moment to start listening
			time.Sleep(100 * time.Millisecond)
			close(o.metricsReady)
		}()

		if err := o.metricsServer.Start(ctx); err != nil {
			o.logger.Error("metrics server error", zap.Error(err))
			select {
			case o.metricsErrCh <- err:
			default:
				// Channel full, error already reported
			}
		}
	}()

	// Wait for server to be ready or error with timeout
	select {
	case <-o.metricsReady:
		o.logger.Info("metrics server started successfully", zap.Int("port", o.config.MetricsPort))
		return nil
	case err := <-o.metricsErrCh:
		return fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("metrics server startup timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logger returns the logger.
func (o *Observability) Logger() *logging.Logger {
	return o.logger
}

// TracingProvider returns the tracing provider.
func (o *Observability) TracingProvider() *tracing.Provider {
	return o.tracingProvider
}

// HealthChecker returns the probe handler backing this Observability's
// /health, /healthz, /livez, and /readyz routes. It is nil until Start has
// run with metrics enabled. Callers register additional checks on it
// (e.g. per-Vault-client liveness) once their dependencies exist.
func (o *Observability) HealthChecker() *health.ProbeHandler {
	return o.healthChecker
}

// MetricsServer returns the metrics server.
func (o *Observability) MetricsServer() *metrics.Server {
	return o.metricsServer
}

// DaemonCollector returns the daemon collector.
func (o *Observability) DaemonCollector() *metrics.DaemonCollector {
	return o.collector
}

// RuntimeCollector returns the runtime collector.
func (o *Observability) RuntimeCollector() *metrics.RuntimeCollector {
	return o.runtimeCollector
}

// RecordVaultRequest records a request issued against a Vault backend.
func (o *Observability) RecordVaultRequest(backend, operation, status string, duration float64) {
	metrics.RecordVaultRequest(backend, operation, status, duration)
}

// RecordSyncTask records the outcome and duration of a processed sync task.
func (o *Observability) RecordSyncTask(pipeline, result string, duration float64) {
	metrics.RecordSyncTask(pipeline, result, duration)
}

// RecordAuditConnection records an accepted audit-stream connection.
func (o *Observability) RecordAuditConnection(pipeline string) {
	metrics.RecordAuditConnection(pipeline)
}

// RecordAuditRecord records the processing outcome of one audit log line.
func (o *Observability) RecordAuditRecord(pipeline, result string) {
	metrics.RecordAuditRecord(pipeline, result)
}

// SetAuditConnectionsActive sets the number of currently open audit-stream
// connections for a pipeline.
func (o *Observability) SetAuditConnectionsActive(pipeline string, count int) {
	metrics.SetAuditConnectionsActive(pipeline, count)
}

// SetSyncQueueDepth sets the current depth of a pipeline's sync work queue.
func (o *Observability) SetSyncQueueDepth(pipeline string, depth int) {
	metrics.SetSyncQueueDepth(pipeline, depth)
}

// RecordWalkerSecretsEmitted records the number of SyncTasks a full-sync
// walk emitted.
func (o *Observability) RecordWalkerSecretsEmitted(pipeline string, count int) {
	metrics.RecordWalkerSecretsEmitted(pipeline, count)
}

// RecordWalkerRun records the outcome and duration of a full-sync walk.
func (o *Observability) RecordWalkerRun(pipeline, result string, duration float64) {
	metrics.RecordWalkerRun(pipeline, result, duration)
}

// RecordAuthRequest records an authentication or token-renewal attempt.
func (o *Observability) RecordAuthRequest(backend, authType, result string, duration float64) {
	metrics.RecordAuthRequest(backend, authType, result, duration)
}

// IsMetricsServerHealthy checks if the metrics server is healthy.
// Returns true if the server is running and accepting connections.
func (o *Observability) IsMetricsServerHealthy() bool {
	if o.metricsServer == nil {
		return false
	}

	// Check if there's an error in the error channel (non-blocking)
	select {
	case err := <-o.metricsErrCh:
		// Put the error back for other readers
		select {
		case o.metricsErrCh <- err:
		default:
		}
		return false
	default:
		// No error, server is healthy
		return true
	}
}

// GetMetricsServerError returns any error from the metrics server startup.
// Returns nil if no error occurred.
func (o *Observability) GetMetricsServerError() error {
	select {
	case err := <-o.metricsErrCh:
		// Put the error back for other readers
		select {
		case o.metricsErrCh <- err:
		default:
		}
		return err
	default:
		return nil
	}
}
