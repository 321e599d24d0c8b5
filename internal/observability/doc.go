// Package observability provides logging, metrics, and tracing
// functionality for the secret-replication daemon.
//
// This package implements the three pillars of observability:
// structured logging via zap, Prometheus metrics collection, and
// distributed tracing via OpenTelemetry with OTLP export, wired
// together by the top-level Observability type.
//
// # Setup
//
//	obs, err := observability.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := obs.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Stop(ctx)
//
// # Logging
//
// obs.Logger() returns a *logging.Logger for structured logging:
//
//	obs.Logger().Info("sync task complete",
//	    logging.String("pipeline", pipeline.ID),
//	    logging.Backend(backend),
//	)
//
// # Metrics
//
// Prometheus metrics for Vault requests, sync tasks, audit events, and
// full-sync walker runs, served over obs.MetricsServer():
//
//	obs.RecordVaultRequest(backend, "read", "ok", elapsed.Seconds())
//	obs.RecordSyncTask(pipeline.ID, "success", elapsed.Seconds())
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP gRPC export, wrapping
// outbound Vault calls and sync-task processing in spans:
//
//	ctx, span := tracing.StartClientSpan(ctx, "vault.read", tracing.BackendAttr(backend))
//	defer span.End()
package observability
