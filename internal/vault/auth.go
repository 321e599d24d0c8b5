package vault

import (
	"context"
	"encoding/json"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
)

// DefaultAppRoleMountPath is the default mount path for AppRole auth.
const DefaultAppRoleMountPath = "approle"

// AuthMethodHandler authenticates against a Vault endpoint and returns the
// resulting auth secret (client token, lease duration, renewable flag).
type AuthMethodHandler interface {
	// Authenticate logs in and returns the auth secret.
	Authenticate(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error)

	// Name identifies the auth method for logging.
	Name() string
}

// NewAuthMethodHandler builds the AuthMethodHandler described by cfg.
func NewAuthMethodHandler(cfg *EndpointConfig) (AuthMethodHandler, error) {
	switch cfg.AuthMethod {
	case AuthMethodToken:
		return &tokenAuth{token: cfg.Token}, nil
	case AuthMethodAppRole:
		return &appRoleAuth{
			roleID:    cfg.RoleID,
			secretID:  cfg.SecretID,
			mountPath: cfg.AppRoleMountPath,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// tokenAuth authenticates with a pre-issued Vault token.
type tokenAuth struct {
	token string
}

// Authenticate implements AuthMethodHandler.
func (a *tokenAuth) Authenticate(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error) {
	client.SetToken(a.token)

	lookup, err := client.Auth().Token().LookupSelfWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}

	secret := &vaultapi.Secret{
		Auth: &vaultapi.SecretAuth{
			ClientToken: a.token,
			Renewable:   false,
		},
	}

	if lookup != nil && lookup.Data != nil {
		switch ttl := lookup.Data["ttl"].(type) {
		case float64:
			secret.Auth.LeaseDuration = int(ttl)
		case json.Number:
			if v, err := ttl.Int64(); err == nil {
				secret.Auth.LeaseDuration = int(v)
			}
		}
		if renewable, ok := lookup.Data["renewable"].(bool); ok {
			secret.Auth.Renewable = renewable
		}
	}

	return secret, nil
}

// Name implements AuthMethodHandler.
func (a *tokenAuth) Name() string { return "token" }

// appRoleAuth authenticates by exchanging a role_id/secret_id pair for a
// token.
type appRoleAuth struct {
	roleID    string
	secretID  string
	mountPath string
}

// Authenticate implements AuthMethodHandler.
func (a *appRoleAuth) Authenticate(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error) {
	path := fmt.Sprintf("auth/%s/login", a.mountPath)
	data := map[string]interface{}{
		"role_id":   a.roleID,
		"secret_id": a.secretID,
	}

	secret, err := client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return nil, fmt.Errorf("approle login failed: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return nil, fmt.Errorf("approle login returned no auth data")
	}

	return secret, nil
}

// Name implements AuthMethodHandler.
func (a *appRoleAuth) Name() string { return "approle" }
