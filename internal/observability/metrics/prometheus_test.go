// Package metrics provides Prometheus metrics for the secret-replication daemon.
package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordVaultRequest(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		operation string
		status    string
		duration  float64
	}{
		{"successful read", "src", "kv_read", "ok", 0.010},
		{"not found", "src", "kv_read", "not_found", 0.005},
		{"permission denied", "dst", "kv_write", "error", 0.020},
		{"list secrets", "src", "list", "ok", 0.050},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordVaultRequest(tt.backend, tt.operation, tt.status, tt.duration)
			})
		})
	}
}

func TestSetVaultHealthStatus(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		healthy bool
	}{
		{"healthy source", "src", true},
		{"unhealthy destination", "dst", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				SetVaultHealthStatus(tt.backend, tt.healthy)
			})
		})
	}
}

func TestSetVaultTokenTTL(t *testing.T) {
	tests := []struct {
		name       string
		backend    string
		ttlSeconds float64
	}{
		{"fresh token", "src", 3600},
		{"near expiry", "dst", 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				SetVaultTokenTTL(tt.backend, tt.ttlSeconds)
			})
		})
	}
}

func TestRecordSyncTask(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		result   string
		duration float64
	}{
		{"written", "src-to-dst", "written", 0.015},
		{"skipped", "src-to-dst", "skipped", 0.002},
		{"dropped", "src-to-dst", "dropped", 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordSyncTask(tt.pipeline, tt.result, tt.duration)
			})
		})
	}
}

func TestSetSyncQueueDepth(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		depth    int
	}{
		{"empty queue", "src-to-dst", 0},
		{"backed up queue", "src-to-dst", 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				SetSyncQueueDepth(tt.pipeline, tt.depth)
			})
		})
	}
}

func TestRecordSyncQueueDropped(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSyncQueueDropped("src-to-dst")
	})
}

func TestRecordAuditConnection(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordAuditConnection("src-to-dst")
	})
}

func TestSetAuditConnectionsActive(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		count    int
	}{
		{"no listeners", "src-to-dst", 0},
		{"single listener", "src-to-dst", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				SetAuditConnectionsActive(tt.pipeline, tt.count)
			})
		})
	}
}

func TestRecordAuditRecord(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		result   string
	}{
		{"dispatched", "src-to-dst", "dispatched"},
		{"parse error", "src-to-dst", "parse_error"},
		{"ignored operation", "src-to-dst", "ignored"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordAuditRecord(tt.pipeline, tt.result)
			})
		})
	}
}

func TestRecordWalkerRun(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		result   string
		duration float64
	}{
		{"completed", "src-to-dst", "completed", 12.5},
		{"failed", "src-to-dst", "failed", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordWalkerRun(tt.pipeline, tt.result, tt.duration)
			})
		})
	}
}

func TestRecordWalkerSecretsEmitted(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordWalkerSecretsEmitted("src-to-dst", 128)
	})
}

func TestRecordAuthRequest(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		authType string
		result   string
		duration float64
	}{
		{"approle login", "src", "approle", "success", 0.050},
		{"token renewal", "dst", "token_renew", "success", 0.010},
		{"failed login", "src", "approle", "failure", 0.015},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordAuthRequest(tt.backend, tt.authType, tt.result, tt.duration)
			})
		})
	}
}

func TestMetricsConstants(t *testing.T) {
	assert.Equal(t, "vaultsync", Namespace)
	assert.Equal(t, "vault", SubsystemVault)
	assert.Equal(t, "sync", SubsystemSync)
	assert.Equal(t, "audit", SubsystemAudit)
	assert.Equal(t, "walker", SubsystemWalker)
	assert.Equal(t, "auth", SubsystemAuth)
}

func TestMetricsVariablesInitialized(t *testing.T) {
	assert.NotNil(t, VaultRequestsTotal)
	assert.NotNil(t, VaultRequestDuration)
	assert.NotNil(t, VaultHealthStatus)
	assert.NotNil(t, VaultTokenTTLSeconds)
	assert.NotNil(t, SyncTasksTotal)
	assert.NotNil(t, SyncTaskDuration)
	assert.NotNil(t, SyncQueueDepth)
	assert.NotNil(t, SyncQueueDroppedTotal)
	assert.NotNil(t, AuditConnectionsTotal)
	assert.NotNil(t, AuditConnectionsActive)
	assert.NotNil(t, AuditRecordsTotal)
	assert.NotNil(t, WalkerRunsTotal)
	assert.NotNil(t, WalkerRunDuration)
	assert.NotNil(t, WalkerSecretsEmitted)
	assert.NotNil(t, AuthRequestsTotal)
	assert.NotNil(t, AuthDuration)
}

func TestConcurrentMetricRecording(t *testing.T) {
	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			RecordVaultRequest("src", "kv_read", "ok", 0.01)
			SetVaultHealthStatus("src", true)
			SetVaultTokenTTL("src", 3600)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			RecordSyncTask("src-to-dst", "written", 0.01)
			SetSyncQueueDepth("src-to-dst", i)
			RecordSyncQueueDropped("src-to-dst")
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			RecordAuditConnection("src-to-dst")
			SetAuditConnectionsActive("src-to-dst", i%4)
			RecordAuditRecord("src-to-dst", "dispatched")
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			RecordWalkerRun("src-to-dst", "completed", 1.0)
			RecordWalkerSecretsEmitted("src-to-dst", 1)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			RecordAuthRequest("src", "approle", "success", 0.01)
		}
		done <- true
	}()

	for i := 0; i < 5; i++ {
		<-done
	}
}
