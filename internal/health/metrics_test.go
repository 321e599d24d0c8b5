package health

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHealthMetrics_Singleton(t *testing.T) {
	assert.Same(t, GetHealthMetrics(), GetHealthMetrics())
}

func TestRecordHealthCheck(t *testing.T) {
	m := GetHealthMetrics()

	RecordHealthCheck("metrics-test-healthy", true, 0.01)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("metrics-test-healthy")), 0)

	RecordHealthCheck("metrics-test-unhealthy", false, 0.01)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("metrics-test-unhealthy")), 0)
}

func TestSetDependencyHealthStatus(t *testing.T) {
	m := GetHealthMetrics()

	SetDependencyHealthStatus("metrics-test-dep", "custom", true)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.dependencyStatus.WithLabelValues("metrics-test-dep", "custom")), 0)

	SetDependencyHealthStatus("metrics-test-dep", "custom", false)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.dependencyStatus.WithLabelValues("metrics-test-dep", "custom")), 0)
}

func TestHealthMetrics_MustRegister(t *testing.T) {
	m := GetHealthMetrics()
	registry := prometheus.NewRegistry()
	require.NotPanics(t, func() { m.MustRegister(registry) })

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["vaultsync_health_checks_total"])
	assert.True(t, names["vaultsync_health_check_status"])
	assert.True(t, names["vaultsync_health_dependency_status"])
}

func TestHealthMetrics_Init(t *testing.T) {
	m := GetHealthMetrics()
	assert.NotPanics(t, func() { m.Init() })
	assert.NotPanics(t, func() { m.Init() }, "Init is idempotent")

	assert.InDelta(t, 0.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("liveness")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("overall")), 0)
}
