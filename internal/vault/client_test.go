package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/pathmodel"
	"github.com/vaultsync/vaultsync/internal/util"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.NewLogger(logging.DefaultConfig())
	require.NoError(t, err)
	return l
}

func TestSecret_Equal(t *testing.T) {
	t.Run("equal maps", func(t *testing.T) {
		a := Secret{"user": "alice", "pass": "s3cr3t"}
		b := Secret{"user": "alice", "pass": "s3cr3t"}
		assert.True(t, a.Equal(b))
	})

	t.Run("different values", func(t *testing.T) {
		a := Secret{"user": "alice"}
		b := Secret{"user": "bob"}
		assert.False(t, a.Equal(b))
	})

	t.Run("different field sets", func(t *testing.T) {
		a := Secret{"user": "alice"}
		b := Secret{"user": "alice", "pass": "s3cr3t"}
		assert.False(t, a.Equal(b))
	})

	t.Run("both empty", func(t *testing.T) {
		assert.True(t, Secret{}.Equal(Secret{}))
	})
}

func TestEndpointConfig_String_MasksCredentials(t *testing.T) {
	cfg := &EndpointConfig{
		Address:  "https://vault.example.com",
		Backend:  "secret",
		Token:    "s.verysecrettoken",
		RoleID:   "role-id-value",
		SecretID: "secret-id-value",
	}
	s := cfg.String()
	assert.NotContains(t, s, "verysecrettoken")
	assert.NotContains(t, s, "role-id-value")
	assert.NotContains(t, s, "secret-id-value")
	assert.Contains(t, s, "***")
	assert.Contains(t, s, "vault.example.com")
}

func TestNew(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := New(nil, testLogger(t), nil)
		require.Error(t, err)
	})

	t.Run("valid token config", func(t *testing.T) {
		cfg := &EndpointConfig{
			Address:    "http://127.0.0.1:8200",
			Backend:    "secret",
			Version:    KVVersion2,
			AuthMethod: AuthMethodToken,
			Token:      "t",
		}
		c, err := New(cfg, testLogger(t), nil)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, cfg, c.cfg)
	})

	t.Run("invalid auth method", func(t *testing.T) {
		cfg := &EndpointConfig{
			Address:    "http://127.0.0.1:8200",
			Backend:    "secret",
			AuthMethod: AuthMethod("kubernetes"),
		}
		_, err := New(cfg, testLogger(t), nil)
		require.Error(t, err)
	})
}

func TestRenewalMargin(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{"short ttl floors to minimum", 60 * time.Second, minRenewalSafetyMargin},
		{"long ttl uses fraction", 1000 * time.Second, 100 * time.Second},
		{"zero ttl floors to minimum", 0, minRenewalSafetyMargin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renewalMargin(tt.ttl))
		})
	}
}

func TestClient_DataURL_ListURL(t *testing.T) {
	t.Run("kv v2", func(t *testing.T) {
		c := &Client{cfg: &EndpointConfig{Backend: "secret", Version: KVVersion2}}
		p := pathmodel.LogicalPath{"team", "key"}
		assert.Equal(t, "secret/data/team/key", c.dataURL(p))
		assert.Equal(t, "secret/metadata/team/key", c.listURL(p))
	})

	t.Run("kv v1", func(t *testing.T) {
		c := &Client{cfg: &EndpointConfig{Backend: "secret", Version: KVVersion1}}
		p := pathmodel.LogicalPath{"team", "key"}
		assert.Equal(t, "secret/team/key", c.dataURL(p))
		assert.Equal(t, "secret/team/key", c.listURL(p))
	})
}

func TestClassifyError(t *testing.T) {
	t.Run("non-response error is transient", func(t *testing.T) {
		err := classifyError(errors.New("boom"))
		var transient *util.TransientError
		assert.ErrorAs(t, err, &transient)
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		err := classifyError(&vaultapi.ResponseError{StatusCode: http.StatusNotFound})
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("500 is transient", func(t *testing.T) {
		err := classifyError(&vaultapi.ResponseError{StatusCode: http.StatusInternalServerError})
		var transient *util.TransientError
		assert.ErrorAs(t, err, &transient)
	})

	t.Run("429 is transient", func(t *testing.T) {
		err := classifyError(&vaultapi.ResponseError{StatusCode: http.StatusTooManyRequests})
		var transient *util.TransientError
		assert.ErrorAs(t, err, &transient)
	})

	t.Run("403 is permanent", func(t *testing.T) {
		err := classifyError(&vaultapi.ResponseError{StatusCode: http.StatusForbidden})
		var permanent *util.PermanentError
		require.ErrorAs(t, err, &permanent)
		assert.Equal(t, http.StatusForbidden, permanent.StatusCode)
	})
}

func TestClient_RenewalLoop_StartAndClose(t *testing.T) {
	cfg := &EndpointConfig{
		Address:    "http://127.0.0.1:8200",
		Backend:    "secret",
		Version:    KVVersion2,
		AuthMethod: AuthMethodToken,
		Token:      "t",
	}
	c, err := New(cfg, testLogger(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c.StartRenewalLoop(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-c.stoppedCh:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestClient_MaybeRenew_NoState(t *testing.T) {
	cfg := &EndpointConfig{
		Address:    "http://127.0.0.1:8200",
		Backend:    "secret",
		Version:    KVVersion2,
		AuthMethod: AuthMethodToken,
		Token:      "t",
	}
	c, err := New(cfg, testLogger(t), nil)
	require.NoError(t, err)

	c.maybeRenew(context.Background())
}

func newTestClient(t *testing.T, srv *httptest.Server, version EngineVersion) *Client {
	t.Helper()
	cfg := &EndpointConfig{
		Address:    srv.URL,
		Backend:    "secret",
		Version:    version,
		AuthMethod: AuthMethodToken,
		Token:      "t",
	}
	c, err := New(cfg, testLogger(t), nil)
	require.NoError(t, err)
	return c
}

func TestClient_List(t *testing.T) {
	t.Run("kv v2 returns children", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"keys": []interface{}{"db", "app/"}},
			})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		children, err := c.List(context.Background(), pathmodel.LogicalPath{"team"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"db", "app/"}, children)
	})

	t.Run("missing path returns empty list, not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": []string{}})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		children, err := c.List(context.Background(), pathmodel.LogicalPath{"team"})
		require.NoError(t, err)
		assert.Empty(t, children)
	})
}

func TestClient_Read(t *testing.T) {
	t.Run("kv v2 unwraps the data envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{
					"data":     map[string]interface{}{"username": "svc", "password": "hunter2"},
					"metadata": map[string]interface{}{"version": float64(3)},
				},
			})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		secret, err := c.Read(context.Background(), pathmodel.LogicalPath{"team", "db"})
		require.NoError(t, err)
		assert.Equal(t, Secret{"username": "svc", "password": "hunter2"}, secret)
	})

	t.Run("kv v1 reads data directly", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"token": "abc123"},
			})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion1)
		secret, err := c.Read(context.Background(), pathmodel.LogicalPath{"team", "db"})
		require.NoError(t, err)
		assert.Equal(t, Secret{"token": "abc123"}, secret)
	})

	t.Run("missing secret maps to ErrNotFound", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": []string{}})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		_, err := c.Read(context.Background(), pathmodel.LogicalPath{"team", "db"})
		require.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("soft-deleted kv v2 version has no data field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{
					"data":     nil,
					"metadata": map[string]interface{}{"deletion_time": "2024-01-01T00:00:00Z"},
				},
			})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		_, err := c.Read(context.Background(), pathmodel.LogicalPath{"team", "db"})
		require.ErrorIs(t, err, util.ErrNotFound)
	})
}

func TestClient_Write(t *testing.T) {
	t.Run("kv v2 wraps the payload in a data envelope", func(t *testing.T) {
		var gotBody map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"version": float64(1)}})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		err := c.Write(context.Background(), pathmodel.LogicalPath{"team", "db"}, Secret{"password": "hunter2"})
		require.NoError(t, err)

		inner, ok := gotBody["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "hunter2", inner["password"])
	})

	t.Run("kv v1 writes the payload directly", func(t *testing.T) {
		var gotBody map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion1)
		err := c.Write(context.Background(), pathmodel.LogicalPath{"team", "db"}, Secret{"token": "abc123"})
		require.NoError(t, err)
		assert.Equal(t, "abc123", gotBody["token"])
	})

	t.Run("server error is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": []string{"boom"}})
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		err := c.Write(context.Background(), pathmodel.LogicalPath{"team", "db"}, Secret{"k": "v"})
		require.Error(t, err)
		var transient *util.TransientError
		assert.ErrorAs(t, err, &transient)
	})
}

func TestClient_ExecuteLogical_RenewThenRetryOnAuthError(t *testing.T) {
	t.Run("aged token renews and retries once, then succeeds", func(t *testing.T) {
		var reads int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/v1/auth/token/lookup-self":
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{"ttl": float64(3600), "renewable": false},
				})
			case r.URL.Path == "/v1/secret/data/team/db":
				if atomic.AddInt32(&reads, 1) == 1 {
					w.WriteHeader(http.StatusForbidden)
					_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": []string{"permission denied"}})
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{"data": map[string]interface{}{"token": "abc123"}},
				})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		// No prior Login, so the token is not "freshly logged in" and the
		// 403 is treated as aged rather than permanent.
		secret, err := c.Read(context.Background(), pathmodel.LogicalPath{"team", "db"})
		require.NoError(t, err)
		assert.Equal(t, Secret{"token": "abc123"}, secret)
		assert.EqualValues(t, 2, atomic.LoadInt32(&reads))
	})

	t.Run("auth error persists after renew, falls back to permanent error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/v1/auth/token/lookup-self":
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{"ttl": float64(3600), "renewable": false},
				})
			default:
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": []string{"permission denied"}})
			}
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		_, err := c.Read(context.Background(), pathmodel.LogicalPath{"team", "db"})
		require.Error(t, err)
		var permanent *util.PermanentError
		require.ErrorAs(t, err, &permanent)
		assert.Equal(t, http.StatusForbidden, permanent.StatusCode)
	})

	t.Run("freshly logged in token treats auth error as permanent, no retry", func(t *testing.T) {
		var reads int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/v1/auth/token/lookup-self":
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"data": map[string]interface{}{"ttl": float64(3600), "renewable": false},
				})
			case r.URL.Path == "/v1/secret/data/team/db":
				atomic.AddInt32(&reads, 1)
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": []string{"permission denied"}})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		c := newTestClient(t, srv, KVVersion2)
		require.NoError(t, c.Login(context.Background()))

		_, err := c.Read(context.Background(), pathmodel.LogicalPath{"team", "db"})
		require.Error(t, err)
		var permanent *util.PermanentError
		require.ErrorAs(t, err, &permanent)
		assert.EqualValues(t, 1, atomic.LoadInt32(&reads))
	})
}

func TestClient_Ping(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"ttl": float64(3600), "renewable": false},
			})
		}))
		defer srv.Close()

		cfg := &EndpointConfig{
			Address:    srv.URL,
			Backend:    "secret",
			Version:    KVVersion2,
			AuthMethod: AuthMethodToken,
			Token:      "t",
		}
		c, err := New(cfg, testLogger(t), nil)
		require.NoError(t, err)

		require.NoError(t, c.Ping(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		cfg := &EndpointConfig{
			Address:    "http://127.0.0.1:1",
			Backend:    "secret",
			Version:    KVVersion2,
			AuthMethod: AuthMethodToken,
			Token:      "t",
		}
		c, err := New(cfg, testLogger(t), nil)
		require.NoError(t, err)

		err = c.Ping(context.Background())
		require.Error(t, err)
		var transient *util.TransientError
		assert.ErrorAs(t, err, &transient)
	})
}
