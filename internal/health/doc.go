// Package health provides health check and readiness probe endpoints
// for the secret-replication daemon.
//
// This package implements Kubernetes-compatible health and readiness
// endpoints with extensible check registration and detailed status
// reporting, so the daemon can be probed the same way regardless of
// which Vault clusters or pipelines it is currently syncing.
//
// # Features
//
//   - Liveness probe endpoint (/healthz)
//   - Readiness probe endpoint (/readyz)
//   - Extensible health check registration
//   - Detailed status reporting (/health) with per-check results and uptime
//
// # Usage
//
// Create a probe handler and register checks against it, then mount its
// routes on an HTTP mux (the metrics server does this automatically via
// metrics.Server.WithProbeHandler):
//
//	handler := health.NewProbeHandler(logger)
//	handler.AddCheck(health.NewCachedHealthCheck(
//	    health.NewDependencyCheck("vault-src", health.DependencyTypeCustom, srcClient.Ping),
//	    5*time.Second,
//	))
//	handler.RegisterRoutes(mux)
package health
