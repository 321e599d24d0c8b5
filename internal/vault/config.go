package vault

import (
	"fmt"
	"time"

	"github.com/vaultsync/vaultsync/internal/util"
)

// AuthMethod specifies the Vault authentication method used to obtain a
// client token for an Endpoint.
type AuthMethod string

// Authentication method constants.
const (
	// AuthMethodToken authenticates directly with a pre-issued token.
	AuthMethodToken AuthMethod = "token"

	// AuthMethodAppRole authenticates by exchanging a role_id/secret_id
	// pair for a short-lived token.
	AuthMethodAppRole AuthMethod = "approle"
)

// IsValid reports whether the auth method is one this daemon supports.
func (m AuthMethod) IsValid() bool {
	switch m {
	case AuthMethodToken, AuthMethodAppRole:
		return true
	default:
		return false
	}
}

// EngineVersion identifies the KV secrets engine version of a backend.
type EngineVersion int

// Supported KV engine versions.
const (
	KVVersion1 EngineVersion = 1
	KVVersion2 EngineVersion = 2
)

// IsValid reports whether the version is a supported KV engine version.
func (v EngineVersion) IsValid() bool {
	return v == KVVersion1 || v == KVVersion2
}

// EndpointConfig describes one Vault (or OpenBao) endpoint this daemon
// authenticates against: its address, namespace, KV backend, engine
// version, and credentials.
type EndpointConfig struct {
	// Address is the Vault server address, e.g. "https://vault.example.com".
	Address string `yaml:"url"`

	// Namespace is the Vault Enterprise namespace, if any.
	Namespace string `yaml:"namespace,omitempty"`

	// Backend is the KV mount point.
	Backend string `yaml:"backend"`

	// Version is the KV engine version of Backend. Defaults to 2.
	Version EngineVersion `yaml:"version,omitempty"`

	// AuthMethod selects how to obtain a token.
	AuthMethod AuthMethod `yaml:"-"`

	// Token is used when AuthMethod is AuthMethodToken.
	Token string `yaml:"token,omitempty"`

	// RoleID and SecretID are used when AuthMethod is AuthMethodAppRole.
	RoleID   string `yaml:"role_id,omitempty"`
	SecretID string `yaml:"secret_id,omitempty"`

	// AppRoleMountPath is the mount path of the AppRole auth method.
	// Defaults to "approle".
	AppRoleMountPath string `yaml:"approle_mount_path,omitempty"`

	// RequestTimeout bounds every HTTP call made against this endpoint.
	// Defaults to 30s.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// String implements fmt.Stringer, masking Token, RoleID, and SecretID so a
// struct logged with %v or %+v never prints live credentials.
func (c *EndpointConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return fmt.Sprintf(
		"EndpointConfig{Address:%q Namespace:%q Backend:%q Version:%d AuthMethod:%q Token:%q RoleID:%q SecretID:%q AppRoleMountPath:%q RequestTimeout:%s}",
		c.Address, c.Namespace, c.Backend, c.Version, c.AuthMethod,
		mask(c.Token), mask(c.RoleID), mask(c.SecretID),
		c.AppRoleMountPath, c.RequestTimeout,
	)
}

// ResolveAuthMethod infers the auth method from which credential fields are
// populated: a token takes precedence, otherwise a role_id/secret_id pair
// is required.
func (c *EndpointConfig) ResolveAuthMethod() AuthMethod {
	if c.Token != "" {
		return AuthMethodToken
	}
	if c.RoleID != "" || c.SecretID != "" {
		return AuthMethodAppRole
	}
	return ""
}

// Validate validates the endpoint configuration, returning a *util.ConfigError
// describing the first problem found.
func (c *EndpointConfig) Validate(field string) error {
	if c.Address == "" {
		return util.NewConfigError(field+".url", "vault address is required")
	}
	if c.Backend == "" {
		return util.NewConfigError(field+".backend", "backend is required")
	}
	if c.Version == 0 {
		c.Version = KVVersion2
	}
	if !c.Version.IsValid() {
		return util.NewConfigError(field+".version", "version must be 1 or 2")
	}

	method := c.ResolveAuthMethod()
	if method == "" {
		return util.NewConfigError(field, "either token or role_id/secret_id must be set")
	}
	c.AuthMethod = method

	if method == AuthMethodAppRole {
		if c.RoleID == "" {
			return util.NewConfigError(field+".role_id", "role_id is required for approle authentication")
		}
		if c.SecretID == "" {
			return util.NewConfigError(field+".secret_id", "secret_id is required for approle authentication")
		}
		if c.AppRoleMountPath == "" {
			c.AppRoleMountPath = DefaultAppRoleMountPath
		}
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	return nil
}

// Clone returns a deep copy of the endpoint configuration.
func (c *EndpointConfig) Clone() *EndpointConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
