// Package vault implements the replication daemon's Vault client: login,
// token renewal, and KV v1/v2 list/read/write against a single backend on a
// single Vault (or OpenBao) endpoint.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vaultsync/vaultsync/internal/observability"
	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/observability/tracing"
	"github.com/vaultsync/vaultsync/internal/pathmodel"
	"github.com/vaultsync/vaultsync/internal/retry"
	"github.com/vaultsync/vaultsync/internal/util"
)

// Default timing constants.
const (
	// DefaultRequestTimeout bounds a single Vault HTTP call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultLoginTimeout bounds a login/renew attempt.
	DefaultLoginTimeout = 15 * time.Second

	// minRenewalSafetyMargin is the floor on how early renewal runs
	// before token expiry, regardless of how short the TTL is.
	minRenewalSafetyMargin = 30 * time.Second

	// renewalSafetyFraction is the fraction of the TTL reserved as a
	// safety margin before expiry.
	renewalSafetyFraction = 0.1

	// minRenewalCheckInterval is the floor on how often the renewal loop
	// wakes to check whether renewal is due.
	minRenewalCheckInterval = 10 * time.Second

	// freshLoginWindow bounds how long a token counts as "freshly issued".
	// A 401/403 against a token logged in within this window means the
	// credentials themselves are rejected, not that the token aged out;
	// retrying after a renew would just fail the same way. Outside the
	// window, a 401/403 is treated as an aged/revoked token and gets one
	// immediate renew-then-retry before falling back to a permanent error.
	freshLoginWindow = 30 * time.Second
)

// Secret is an unordered set of string fields, the unit of data this daemon
// replicates. Only string-valued fields are preserved; non-string values
// read back from Vault are dropped.
type Secret map[string]string

// Equal reports whether s and other hold exactly the same fields and values.
// The syncer uses this to skip a write when the destination already matches
// the source, avoiding a redundant version bump on a KV v2 backend.
func (s Secret) Equal(other Secret) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// clientState is the renewable snapshot of a Client's authentication state.
// It is replaced atomically by login/renew, never mutated in place, so
// concurrent readers never observe a half-updated token.
type clientState struct {
	token      string
	expiry     time.Time
	renewable  bool
	loggedInAt time.Time
}

// Client is a Vault client bound to one endpoint: one address, one
// namespace, one KV backend and engine version, and one set of
// credentials.
type Client struct {
	cfg    *EndpointConfig
	api    *vaultapi.Client
	auth   AuthMethodHandler
	logger *logging.Logger
	obs    *observability.Observability

	state atomic.Pointer[clientState]

	mu        sync.Mutex
	closed    bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New creates a Client for the given endpoint configuration. It does not
// log in; call Login before issuing any KV request.
func New(cfg *EndpointConfig, logger *logging.Logger, obs *observability.Observability) (*Client, error) {
	if cfg == nil {
		return nil, util.NewConfigError("", "endpoint configuration is nil")
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("url", "failed to construct vault client", err)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	authHandler, err := NewAuthMethodHandler(cfg)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("auth", "failed to build auth method", err)
	}

	return &Client{
		cfg:       cfg,
		api:       api,
		auth:      authHandler,
		logger:    logger.With(logging.Backend(cfg.Backend)),
		obs:       obs,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Login authenticates against Vault and stores the resulting token state.
func (c *Client) Login(ctx context.Context) error {
	loginCtx, cancel := util.NewTimeoutContext(ctx, DefaultLoginTimeout)
	defer cancel()

	start := time.Now()
	secret, err := c.auth.Authenticate(loginCtx, c.api)
	duration := time.Since(start)

	if err != nil {
		c.recordAuth(c.auth.Name(), "error", duration)
		return util.NewAuthError(c.cfg.Backend, "login failed", err)
	}
	if secret == nil || secret.Auth == nil {
		c.recordAuth(c.auth.Name(), "error", duration)
		return util.NewAuthError(c.cfg.Backend, "login returned no auth data", nil)
	}

	c.storeAuth(secret.Auth)
	c.recordAuth(c.auth.Name(), "success", duration)
	c.logger.Info("authenticated",
		logging.String("method", c.auth.Name()),
		logging.Duration("duration", duration),
	)
	return nil
}

// Renew renews the current token if it is renewable, or re-authenticates
// otherwise.
func (c *Client) Renew(ctx context.Context) error {
	st := c.state.Load()
	if st == nil || !st.renewable {
		return c.Login(ctx)
	}

	renewCtx, cancel := util.NewTimeoutContext(ctx, DefaultLoginTimeout)
	defer cancel()

	start := time.Now()
	secret, err := c.api.Auth().Token().RenewSelfWithContext(renewCtx, 0)
	duration := time.Since(start)

	if err != nil {
		c.recordAuth("renew", "error", duration)
		return util.NewAuthError(c.cfg.Backend, "token renewal failed", err)
	}
	if secret == nil || secret.Auth == nil {
		c.recordAuth("renew", "error", duration)
		return util.NewAuthError(c.cfg.Backend, "renewal returned no auth data", nil)
	}

	c.storeAuth(secret.Auth)
	c.recordAuth("renew", "success", duration)
	c.logger.Debug("token renewed", logging.Duration("duration", duration))
	return nil
}

// StartRenewalLoop runs Renew in the background at a cadence derived from
// the token TTL, until ctx is cancelled or Close is called.
func (c *Client) StartRenewalLoop(ctx context.Context) {
	go c.renewalLoop(ctx)
}

func (c *Client) renewalLoop(ctx context.Context) {
	defer close(c.stoppedCh)

	ticker := time.NewTicker(minRenewalCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.maybeRenew(ctx)
		}
	}
}

func (c *Client) maybeRenew(ctx context.Context) {
	st := c.state.Load()
	if st == nil || st.expiry.IsZero() {
		return
	}

	ttl := time.Until(st.expiry)
	margin := renewalMargin(ttl)
	if ttl > margin {
		return
	}

	renewCtx, cancel := util.NewTimeoutContext(ctx, DefaultLoginTimeout)
	defer cancel()

	cfg := &retry.Config{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}
	err := retry.Do(renewCtx, cfg, func() error {
		return c.Renew(renewCtx)
	}, &retry.Options{
		ShouldRetry: func(error) bool { return true },
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Warn("retrying token renewal",
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.Err(err),
			)
		},
	})
	if err != nil {
		c.logger.Error("token renewal exhausted retries", logging.Err(err))
	}
}

// renewalMargin computes the safety margin before expiry at which renewal
// should run, given the token's remaining time-to-live.
func renewalMargin(ttl time.Duration) time.Duration {
	margin := time.Duration(float64(ttl) * renewalSafetyFraction)
	if margin < minRenewalSafetyMargin {
		return minRenewalSafetyMargin
	}
	return margin
}

func (c *Client) storeAuth(auth *vaultapi.SecretAuth) {
	c.api.SetToken(auth.ClientToken)
	st := &clientState{
		token:      auth.ClientToken,
		renewable:  auth.Renewable,
		loggedInAt: time.Now(),
	}
	if auth.LeaseDuration > 0 {
		st.expiry = time.Now().Add(time.Duration(auth.LeaseDuration) * time.Second)
	}
	c.state.Store(st)
}

func (c *Client) recordAuth(method, result string, duration time.Duration) {
	if c.obs != nil {
		c.obs.RecordAuthRequest(c.cfg.Backend, method, result, duration.Seconds())
	}
}

func (c *Client) recordRequest(operation, result string, duration time.Duration) {
	if c.obs != nil {
		c.obs.RecordVaultRequest(c.cfg.Backend, operation, result, duration.Seconds())
	}
}

// List returns the immediate children of path. A trailing slash on a child
// denotes a directory (see pathmodel.IsDirectory). A missing path yields an
// empty list, not an error.
func (c *Client) List(ctx context.Context, path pathmodel.LogicalPath) (_ []string, err error) {
	url := c.listURL(path)

	ctx, span := tracing.StartClientSpan(ctx, "vault.list",
		tracing.BackendAttr(c.cfg.Backend), tracing.RouteAttr(url))
	defer func() {
		if err != nil {
			tracing.SetSpanError(span, err)
		} else {
			tracing.SetSpanOK(span)
		}
		span.End()
	}()

	start := time.Now()
	secret, err := c.executeLogical(ctx, func(reqCtx context.Context) (*vaultapi.Secret, error) {
		return c.api.Logical().ListWithContext(reqCtx, url)
	})
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			c.recordRequest("list", "success", duration)
			return []string{}, nil
		}
		c.recordRequest("list", "error", duration)
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		c.recordRequest("list", "success", duration)
		return []string{}, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	children := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			children = append(children, s)
		}
	}

	c.recordRequest("list", "success", duration)
	return children, nil
}

// Read reads the current version of the secret at path. A missing secret
// returns util.ErrNotFound wrapped, never a zero Secret.
func (c *Client) Read(ctx context.Context, path pathmodel.LogicalPath) (_ Secret, err error) {
	url := c.dataURL(path)

	ctx, span := tracing.StartClientSpan(ctx, "vault.read",
		tracing.BackendAttr(c.cfg.Backend), tracing.RouteAttr(url))
	defer func() {
		if err != nil {
			tracing.SetSpanError(span, err)
		} else {
			tracing.SetSpanOK(span)
		}
		span.End()
	}()

	start := time.Now()
	secret, err := c.executeLogical(ctx, func(reqCtx context.Context) (*vaultapi.Secret, error) {
		return c.api.Logical().ReadWithContext(reqCtx, url)
	})
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			c.recordRequest("read", "not_found", duration)
		} else {
			c.recordRequest("read", "error", duration)
		}
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		c.recordRequest("read", "not_found", duration)
		return nil, fmt.Errorf("%s: %w", url, util.ErrNotFound)
	}

	data := secret.Data
	if c.cfg.Version == KVVersion2 {
		inner, ok := secret.Data["data"]
		if !ok || inner == nil {
			c.recordRequest("read", "not_found", duration)
			return nil, fmt.Errorf("%s: %w", url, util.ErrNotFound)
		}
		data, ok = inner.(map[string]interface{})
		if !ok {
			c.recordRequest("read", "not_found", duration)
			return nil, fmt.Errorf("%s: %w", url, util.ErrNotFound)
		}
	}

	result := make(Secret, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}

	c.recordRequest("read", "success", duration)
	return result, nil
}

// Write writes secret as the new current version at path.
func (c *Client) Write(ctx context.Context, path pathmodel.LogicalPath, secret Secret) (err error) {
	url := c.dataURL(path)

	ctx, span := tracing.StartClientSpan(ctx, "vault.write",
		tracing.BackendAttr(c.cfg.Backend), tracing.RouteAttr(url))
	defer func() {
		if err != nil {
			tracing.SetSpanError(span, err)
		} else {
			tracing.SetSpanOK(span)
		}
		span.End()
	}()

	payload := make(map[string]interface{}, len(secret))
	for k, v := range secret {
		payload[k] = v
	}
	if c.cfg.Version == KVVersion2 {
		payload = map[string]interface{}{"data": payload}
	}

	start := time.Now()
	_, err = c.executeLogical(ctx, func(reqCtx context.Context) (*vaultapi.Secret, error) {
		return c.api.Logical().WriteWithContext(reqCtx, url, payload)
	})
	duration := time.Since(start)

	if err != nil {
		c.recordRequest("write", "error", duration)
		return err
	}

	c.recordRequest("write", "success", duration)
	return nil
}

func (c *Client) dataURL(path pathmodel.LogicalPath) string {
	if c.cfg.Version == KVVersion2 {
		return pathmodel.KVv2DataURL(c.cfg.Backend, path)
	}
	return pathmodel.KVv1URL(c.cfg.Backend, path)
}

func (c *Client) listURL(path pathmodel.LogicalPath) string {
	if c.cfg.Version == KVVersion2 {
		return pathmodel.KVv2MetadataURL(c.cfg.Backend, path)
	}
	return pathmodel.KVv1URL(c.cfg.Backend, path)
}

// executeLogical issues a single logical-backend call with a request
// deadline, classifying the result into util's error taxonomy. A 401/403
// against a token that is not freshly logged in is treated as an aged or
// revoked token rather than a permanent rejection: executeLogical renews
// once and retries fn exactly once before giving up.
func (c *Client) executeLogical(
	ctx context.Context,
	fn func(context.Context) (*vaultapi.Secret, error),
) (*vaultapi.Secret, error) {
	secret, err := c.callWithDeadline(ctx, fn)
	if err == nil {
		return secret, nil
	}

	if isAuthError(err) && !c.isFreshlyLoggedIn() {
		if renewErr := c.Renew(ctx); renewErr == nil {
			if secret, err = c.callWithDeadline(ctx, fn); err == nil {
				return secret, nil
			}
		}
	}

	return nil, classifyError(err)
}

func (c *Client) callWithDeadline(
	ctx context.Context,
	fn func(context.Context) (*vaultapi.Secret, error),
) (*vaultapi.Secret, error) {
	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := util.NewTimeoutContext(ctx, timeout)
	defer cancel()
	return fn(reqCtx)
}

// isFreshlyLoggedIn reports whether the current token was obtained within
// freshLoginWindow. A 401/403 against a freshly issued token means the
// credentials themselves are being rejected, so retrying after a renew
// would only repeat the same failure.
func (c *Client) isFreshlyLoggedIn() bool {
	st := c.state.Load()
	if st == nil {
		return false
	}
	return time.Since(st.loggedInAt) < freshLoginWindow
}

// isAuthError reports whether err is a 401 or 403 response from Vault.
func isAuthError(err error) bool {
	var respErr *vaultapi.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	return respErr.StatusCode == 401 || respErr.StatusCode == 403
}

// classifyError maps a vault/api error into util's error taxonomy based on
// the HTTP status code it carries, if any.
func classifyError(err error) error {
	var respErr *vaultapi.ResponseError
	if !errors.As(err, &respErr) {
		return util.NewTransientError("vault request", "request failed", err)
	}

	switch {
	case respErr.StatusCode == 404:
		return fmt.Errorf("%w", util.ErrNotFound)
	case respErr.StatusCode >= 500, respErr.StatusCode == 429:
		return util.NewTransientError("vault request", "server error", err)
	case respErr.StatusCode >= 400:
		return util.NewPermanentError("vault request", respErr.StatusCode, err.Error())
	default:
		return util.NewTransientError("vault request", "request failed", err)
	}
}

// Backend returns the KV mount point this client is bound to.
func (c *Client) Backend() string { return c.cfg.Backend }

// Addr returns the Vault address this client is bound to.
func (c *Client) Addr() string { return c.cfg.Address }

// Version returns the KV engine version this client is bound to.
func (c *Client) Version() EngineVersion { return c.cfg.Version }

// Ping checks that the client can still reach and authenticate against
// Vault, by running a token self-lookup (the call token-auth Login makes). It is cheap
// enough to call from a health check on every scrape.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Auth().Token().LookupSelfWithContext(ctx)
	if err != nil {
		return util.NewTransientError("vault ping", "token self-lookup failed", err)
	}
	return nil
}

// AuditDeviceExists reports whether an audit device named name is enabled on
// this client's Vault cluster. The audit listener only receives events
// because some audit device writes them; a misconfigured or missing device
// name means the listener will sit idle without ever erroring, so callers
// use this as a startup sanity check against that silent failure mode.
func (c *Client) AuditDeviceExists(ctx context.Context, name string) (bool, error) {
	devices, err := c.api.Sys().ListAuditWithContext(ctx)
	if err != nil {
		return false, util.NewTransientError("vault audit device check", "listing audit devices failed", err)
	}
	_, ok := devices[name+"/"]
	return ok, nil
}

// Close stops the renewal loop and waits briefly for it to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	select {
	case <-c.stoppedCh:
	case <-time.After(5 * time.Second):
		c.logger.Warn("timeout waiting for renewal loop to stop")
	}
	return nil
}
