package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultProbeHandlerConfig(t *testing.T) {
	cfg := DefaultProbeHandlerConfig()
	assert.Equal(t, DefaultReadinessProbeTimeout, cfg.ReadinessProbeTimeout)
	assert.Equal(t, DefaultLivenessProbeTimeout, cfg.LivenessProbeTimeout)
}

func TestNewProbeHandler(t *testing.T) {
	h := NewProbeHandler(zap.NewNop())
	assert.Empty(t, h.checks)
	assert.Equal(t, DefaultProbeHandlerConfig(), h.GetConfig())
}

func TestProbeHandler_SetConfig(t *testing.T) {
	h := NewProbeHandler(zap.NewNop())

	h.SetConfig(&ProbeHandlerConfig{ReadinessProbeTimeout: time.Second, LivenessProbeTimeout: 2 * time.Second})
	assert.Equal(t, time.Second, h.GetConfig().ReadinessProbeTimeout)

	h.SetConfig(nil)
	assert.Equal(t, time.Second, h.GetConfig().ReadinessProbeTimeout, "nil config is ignored")
}

func TestProbeHandler_getTimeouts(t *testing.T) {
	t.Run("configured values", func(t *testing.T) {
		h := NewProbeHandlerWithConfig(zap.NewNop(), &ProbeHandlerConfig{
			ReadinessProbeTimeout: 3 * time.Second,
			LivenessProbeTimeout:  7 * time.Second,
		})
		assert.Equal(t, 3*time.Second, h.getReadinessTimeout())
		assert.Equal(t, 7*time.Second, h.getLivenessTimeout())
	})

	t.Run("zero-value config falls back to defaults", func(t *testing.T) {
		h := NewProbeHandlerWithConfig(zap.NewNop(), &ProbeHandlerConfig{})
		assert.Equal(t, DefaultReadinessProbeTimeout, h.getReadinessTimeout())
		assert.Equal(t, DefaultLivenessProbeTimeout, h.getLivenessTimeout())
	})
}

func TestProbeHandler_AddRemoveCheck(t *testing.T) {
	h := NewProbeHandler(zap.NewNop())

	h.AddCheck(NewHealthCheckFunc("vault-src", func(context.Context) error { return nil }))
	h.AddCheck(NewHealthCheckFunc("vault-dst", func(context.Context) error { return nil }))
	assert.Len(t, h.checks, 2)

	h.RemoveCheck("vault-src")
	require.Len(t, h.checks, 1)
	assert.Equal(t, "vault-dst", h.checks[0].Name())

	h.RemoveCheck("does-not-exist")
	assert.Len(t, h.checks, 1)
}

func TestProbeHandler_runChecks(t *testing.T) {
	t.Run("no checks registered", func(t *testing.T) {
		h := NewProbeHandler(zap.NewNop())
		status := h.runChecks(context.Background())
		assert.Equal(t, "ok", status.Status)
		assert.Empty(t, status.Checks)
	})

	t.Run("all checks pass", func(t *testing.T) {
		h := NewProbeHandler(zap.NewNop())
		h.AddCheck(NewHealthCheckFunc("vault-src", func(context.Context) error { return nil }))
		h.AddCheck(NewHealthCheckFunc("vault-dst", func(context.Context) error { return nil }))

		status := h.runChecks(context.Background())
		assert.Equal(t, "ok", status.Status)
		require.Len(t, status.Checks, 2)
		assert.Equal(t, "ok", status.Checks["vault-src"].Status)
	})

	t.Run("one check fails", func(t *testing.T) {
		h := NewProbeHandler(zap.NewNop())
		h.AddCheck(NewHealthCheckFunc("vault-src", func(context.Context) error { return nil }))
		h.AddCheck(NewHealthCheckFunc("vault-dst", func(context.Context) error {
			return errors.New("connection refused")
		}))

		status := h.runChecks(context.Background())
		assert.Equal(t, "error", status.Status)
		assert.Equal(t, "ok", status.Checks["vault-src"].Status)
		assert.Equal(t, "error", status.Checks["vault-dst"].Status)
		assert.Equal(t, "connection refused", status.Checks["vault-dst"].Error)
	})
}

func TestProbeHandler_HTTPHandler(t *testing.T) {
	t.Run("all checks pass returns 200", func(t *testing.T) {
		h := NewProbeHandler(zap.NewNop())
		h.AddCheck(NewHealthCheckFunc("vault-src", func(context.Context) error { return nil }))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h.HTTPHandler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "ok", status.Status)
		assert.NotEmpty(t, status.Uptime)
	})

	t.Run("failing check returns 503", func(t *testing.T) {
		h := NewProbeHandler(zap.NewNop())
		h.AddCheck(NewHealthCheckFunc("vault-dst", func(context.Context) error {
			return errors.New("unreachable")
		}))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h.HTTPHandler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestProbeHandler_LivenessHTTPHandler(t *testing.T) {
	h := NewProbeHandler(zap.NewNop())
	h.AddCheck(NewHealthCheckFunc("vault-dst", func(context.Context) error {
		return errors.New("liveness never runs checks")
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.LivenessHTTPHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestProbeHandler_ReadinessHTTPHandler(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		h := NewProbeHandler(zap.NewNop())
		h.AddCheck(NewHealthCheckFunc("vault-src", func(context.Context) error { return nil }))

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		h.ReadinessHTTPHandler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		h := NewProbeHandler(zap.NewNop())
		h.AddCheck(NewHealthCheckFunc("vault-src", func(context.Context) error {
			return errors.New("not yet synced")
		}))

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		h.ReadinessHTTPHandler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestProbeHandler_RegisterRoutes(t *testing.T) {
	h := NewProbeHandler(zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	for _, path := range []string{"/health", "/healthz", "/livez", "/readyz", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestHealthCheckFunc(t *testing.T) {
	check := NewHealthCheckFunc("vault-src", func(context.Context) error { return errors.New("boom") })
	assert.Equal(t, "vault-src", check.Name())
	assert.EqualError(t, check.Check(context.Background()), "boom")
}
