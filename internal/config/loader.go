package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in a config
// file, substituted before YAML parsing.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Loader reads and parses a DaemonConfig from a file or reader.
type Loader struct{}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadConfig loads and validates a DaemonConfig from a file path, applying
// the environment variable overlay afterward.
func LoadConfig(path string) (*DaemonConfig, error) {
	loader := NewLoader()
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	ApplyEnvOverlay(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a DaemonConfig from a file path, without applying
// the environment overlay or validating it.
func (l *Loader) Load(path string) (*DaemonConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path is validated via filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return l.parseConfig(data)
}

// LoadFromReader reads and parses a DaemonConfig from an io.Reader.
func (l *Loader) LoadFromReader(r io.Reader) (*DaemonConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return l.parseConfig(data)
}

func (l *Loader) parseConfig(data []byte) (*DaemonConfig, error) {
	content := substituteEnvVars(string(data))

	var cfg DaemonConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values before YAML parsing.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// Credential environment variables, per SPEC_FULL.md §6. These take
// precedence over whatever is in the YAML file, so credentials need never
// be committed alongside it.
const (
	envSrcToken    = "VAULT_SYNC_SRC_TOKEN"
	envSrcRoleID   = "VAULT_SYNC_SRC_ROLE_ID"
	envSrcSecretID = "VAULT_SYNC_SRC_SECRET_ID"
	envDstToken    = "VAULT_SYNC_DST_TOKEN"
	envDstRoleID   = "VAULT_SYNC_DST_ROLE_ID"
	envDstSecretID = "VAULT_SYNC_DST_SECRET_ID"
)

// ApplyEnvOverlay overlays credential environment variables onto the
// config's source and destination endpoints, taking precedence over
// whatever value was set in the YAML file.
func ApplyEnvOverlay(cfg *DaemonConfig) {
	if cfg == nil {
		return
	}
	overlayEndpoint(cfg.Src, envSrcToken, envSrcRoleID, envSrcSecretID)
	overlayEndpoint(cfg.Dst, envDstToken, envDstRoleID, envDstSecretID)
}

func overlayEndpoint(ep *EndpointSpec, tokenVar, roleVar, secretVar string) {
	if ep == nil {
		return
	}
	if v := os.Getenv(tokenVar); v != "" {
		ep.Token = v
	}
	if v := os.Getenv(roleVar); v != "" {
		ep.RoleID = v
	}
	if v := os.Getenv(secretVar); v != "" {
		ep.SecretID = v
	}
}
