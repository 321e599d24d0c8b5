// Package health provides health check and readiness probe endpoints.
package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics holds Prometheus metrics for health checks.
type HealthMetrics struct {
	checksTotal      *prometheus.CounterVec
	checkStatus      *prometheus.GaugeVec
	dependencyStatus *prometheus.GaugeVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the singleton health metrics instance.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = &HealthMetrics{
			checksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "vaultsync",
					Subsystem: "health",
					Name:      "checks_total",
					Help: "Total number of " +
						"health checks performed",
				},
				[]string{"check"},
			),
			checkStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "vaultsync",
					Subsystem: "health",
					Name:      "check_status",
					Help: "Current health check " +
						"status (1=healthy, 0=unhealthy)",
				},
				[]string{"check"},
			),
			dependencyStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "vaultsync",
					Subsystem: "health",
					Name:      "dependency_status",
					Help: "Current dependency health " +
						"status (1=healthy, 0=unhealthy)",
				},
				[]string{"dependency", "type"},
			),
		}
	})
	return healthMetricsInstance
}

// RecordHealthCheck records the outcome of a named health check (a run
// count and the current status) against the singleton health metrics
// instance. The durationSeconds argument is not recorded.
func RecordHealthCheck(name string, healthy bool, durationSeconds float64) {
	m := GetHealthMetrics()
	m.checksTotal.WithLabelValues(name).Inc()
	status := 0.0
	if healthy {
		status = 1.0
	}
	m.checkStatus.WithLabelValues(name).Set(status)
	_ = durationSeconds
}

// SetDependencyHealthStatus records the current health of a named
// dependency, keyed by its DependencyType, against the singleton
// health metrics instance.
func SetDependencyHealthStatus(name, depType string, healthy bool) {
	m := GetHealthMetrics()
	status := 0.0
	if healthy {
		status = 1.0
	}
	m.dependencyStatus.WithLabelValues(name, depType).Set(status)
}

// MustRegister registers all health metric collectors with the given
// Prometheus registry. promauto already registers them with the default
// global registry, which is the one the metrics server's /metrics
// endpoint gathers from; MustRegister is only needed to expose them
// through a separate registry.
func (m *HealthMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.checksTotal,
		m.checkStatus,
		m.dependencyStatus,
	)
}

// Init pre-initializes common label combinations with zero values so
// that metrics appear in /metrics output immediately after startup.
// Prometheus *Vec types only emit metric lines after WithLabelValues()
// is called at least once. This method is idempotent and safe to call
// multiple times.
func (m *HealthMetrics) Init() {
	for _, checkType := range []string{"liveness", "readiness"} {
		m.checksTotal.WithLabelValues(checkType)
	}
	for _, check := range []string{"overall", "backend"} {
		m.checkStatus.WithLabelValues(check)
	}
}
