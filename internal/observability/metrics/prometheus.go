// Package metrics provides Prometheus metrics for the secret-replication daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the metrics namespace for all daemon metrics.
	Namespace = "vaultsync"

	// Subsystem names for different components.
	SubsystemVault  = "vault"
	SubsystemSync   = "sync"
	SubsystemAudit  = "audit"
	SubsystemWalker = "walker"
	SubsystemAuth   = "auth"
)

var (
	// Vault Client Metrics

	// VaultRequestsTotal counts total requests issued against a Vault backend.
	VaultRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemVault,
			Name:      "requests_total",
			Help:      "Total number of requests issued to a Vault backend",
		},
		[]string{"backend", "operation", "status"},
	)

	// VaultRequestDuration measures Vault request duration.
	VaultRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemVault,
			Name:      "request_duration_seconds",
			Help:      "Vault request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "operation"},
	)

	// VaultHealthStatus tracks whether a Vault backend last responded healthy.
	VaultHealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemVault,
			Name:      "health_status",
			Help:      "Vault backend health status (1=healthy, 0=unhealthy)",
		},
		[]string{"backend"},
	)

	// VaultTokenTTLSeconds tracks the remaining TTL of a backend's current token.
	VaultTokenTTLSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemVault,
			Name:      "token_ttl_seconds",
			Help:      "Remaining TTL of the current token, in seconds",
		},
		[]string{"backend"},
	)

	// Sync Worker Metrics

	// SyncTasksTotal counts sync tasks processed, by outcome.
	SyncTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "tasks_total",
			Help:      "Total number of sync tasks processed",
		},
		[]string{"pipeline", "result"},
	)

	// SyncTaskDuration measures the time to process a sync task end to end.
	SyncTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "task_duration_seconds",
			Help:      "Sync task processing duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"pipeline"},
	)

	// SyncQueueDepth tracks the current depth of a pipeline's work queue.
	SyncQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "queue_depth",
			Help:      "Current number of queued sync tasks",
		},
		[]string{"pipeline"},
	)

	// SyncQueueDroppedTotal counts tasks dropped because the queue was full.
	SyncQueueDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "queue_dropped_total",
			Help:      "Total number of sync tasks dropped due to a full queue",
		},
		[]string{"pipeline"},
	)

	// Audit Listener Metrics

	// AuditConnectionsTotal counts accepted audit-stream connections.
	AuditConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAudit,
			Name:      "connections_total",
			Help:      "Total number of audit-stream connections accepted",
		},
		[]string{"pipeline"},
	)

	// AuditConnectionsActive tracks currently open audit-stream connections.
	AuditConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAudit,
			Name:      "connections_active",
			Help:      "Current number of open audit-stream connections",
		},
		[]string{"pipeline"},
	)

	// AuditRecordsTotal counts audit records by the outcome of parsing/dispatch.
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAudit,
			Name:      "records_total",
			Help:      "Total number of audit log lines processed",
		},
		[]string{"pipeline", "result"},
	)

	// Full-Sync Walker Metrics

	// WalkerRunsTotal counts completed full-sync walks.
	WalkerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemWalker,
			Name:      "runs_total",
			Help:      "Total number of completed full-sync walks",
		},
		[]string{"pipeline", "result"},
	)

	// WalkerRunDuration measures the time to complete a full-sync walk.
	WalkerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemWalker,
			Name:      "run_duration_seconds",
			Help:      "Full-sync walk duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"pipeline"},
	)

	// WalkerSecretsEmitted counts secrets enqueued by a walk.
	WalkerSecretsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemWalker,
			Name:      "secrets_emitted_total",
			Help:      "Total number of secrets enqueued by full-sync walks",
		},
		[]string{"pipeline"},
	)

	// Authentication Metrics

	// AuthRequestsTotal counts authentication/renewal attempts.
	AuthRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAuth,
			Name:      "requests_total",
			Help:      "Total number of authentication and token renewal attempts",
		},
		[]string{"backend", "type", "result"},
	)

	// AuthDuration measures authentication/renewal duration.
	AuthDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAuth,
			Name:      "duration_seconds",
			Help:      "Authentication and token renewal duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend", "type"},
	)
)

// RecordVaultRequest records a Vault request metric.
func RecordVaultRequest(backend, operation, status string, duration float64) {
	VaultRequestsTotal.WithLabelValues(backend, operation, status).Inc()
	VaultRequestDuration.WithLabelValues(backend, operation).Observe(duration)
}

// SetVaultHealthStatus sets a Vault backend's health status.
func SetVaultHealthStatus(backend string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	VaultHealthStatus.WithLabelValues(backend).Set(value)
}

// SetVaultTokenTTL sets a Vault backend's current token TTL, in seconds.
func SetVaultTokenTTL(backend string, ttlSeconds float64) {
	VaultTokenTTLSeconds.WithLabelValues(backend).Set(ttlSeconds)
}

// RecordSyncTask records the outcome and duration of a processed sync task.
func RecordSyncTask(pipeline, result string, duration float64) {
	SyncTasksTotal.WithLabelValues(pipeline, result).Inc()
	SyncTaskDuration.WithLabelValues(pipeline).Observe(duration)
}

// SetSyncQueueDepth sets the current depth of a pipeline's work queue.
func SetSyncQueueDepth(pipeline string, depth int) {
	SyncQueueDepth.WithLabelValues(pipeline).Set(float64(depth))
}

// RecordSyncQueueDropped records a task dropped due to a full queue.
func RecordSyncQueueDropped(pipeline string) {
	SyncQueueDroppedTotal.WithLabelValues(pipeline).Inc()
}

// RecordAuditConnection records an accepted audit-stream connection.
func RecordAuditConnection(pipeline string) {
	AuditConnectionsTotal.WithLabelValues(pipeline).Inc()
}

// SetAuditConnectionsActive sets the number of open audit-stream connections.
func SetAuditConnectionsActive(pipeline string, count int) {
	AuditConnectionsActive.WithLabelValues(pipeline).Set(float64(count))
}

// RecordAuditRecord records the processing outcome of one audit log line.
func RecordAuditRecord(pipeline, result string) {
	AuditRecordsTotal.WithLabelValues(pipeline, result).Inc()
}

// RecordWalkerRun records the outcome and duration of a full-sync walk.
func RecordWalkerRun(pipeline, result string, duration float64) {
	WalkerRunsTotal.WithLabelValues(pipeline, result).Inc()
	WalkerRunDuration.WithLabelValues(pipeline).Observe(duration)
}

// RecordWalkerSecretsEmitted records secrets enqueued by a full-sync walk.
func RecordWalkerSecretsEmitted(pipeline string, count int) {
	WalkerSecretsEmitted.WithLabelValues(pipeline).Add(float64(count))
}

// RecordAuthRequest records an authentication or token-renewal attempt.
func RecordAuthRequest(backend, authType, result string, duration float64) {
	AuthRequestsTotal.WithLabelValues(backend, authType, result).Inc()
	AuthDuration.WithLabelValues(backend, authType).Observe(duration)
}
