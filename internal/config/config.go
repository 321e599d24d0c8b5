package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/vaultsync/vaultsync/internal/pathmodel"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// Defaults applied to any field left unset after loading.
const (
	DefaultFullSyncInterval = 5 * time.Minute
	DefaultWorkerPoolSize   = 4
	DefaultMetricsPort      = 9090
	DefaultLogLevel         = "info"
)

// DaemonConfig is the top-level configuration for the replication daemon,
// all under the root per SPEC_FULL.md §6: ambient process settings plus one
// source-to-destination replication definition. Src/Dst each list a single
// backend or multiple backends for N↔N fan-out pairing (§9), which is the
// only way this daemon expresses more than one concurrent pipeline — there
// is no top-level list of pipeline blocks.
type DaemonConfig struct {
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty"`

	// MetricsPort is the port the Prometheus /metrics endpoint binds to.
	MetricsPort int `yaml:"metrics_port,omitempty"`

	// WorkerPoolSize is the sync worker pool size, shared by every
	// backend pair this config resolves into.
	WorkerPoolSize int `yaml:"worker_pool_size,omitempty"`

	// ID identifies this daemon instance, used in logs, metrics labels,
	// and as the expected audit device name on the source Vault cluster.
	ID string `yaml:"id"`

	// FullSyncInterval is how often the full-sync walker re-reconciles
	// the entire source tree. Defaults to 5m.
	FullSyncInterval Duration `yaml:"full_sync_interval,omitempty"`

	// Bind is the address the audit listener binds to, e.g.
	// "127.0.0.1:9523". Empty disables real-time replication; only the
	// full-sync walker runs.
	Bind string `yaml:"bind,omitempty"`

	Src *EndpointSpec `yaml:"src"`
	Dst *EndpointSpec `yaml:"dst"`
}

// EndpointSpec describes one side (source or destination) of a pipeline as
// written in YAML: a Vault endpoint, the logical prefix rooted at that
// endpoint, and either a single backend or a list of backends for
// multi-backend fan-out pairing.
type EndpointSpec struct {
	Address   string `yaml:"url"`
	Namespace string `yaml:"namespace,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`

	Backend  string   `yaml:"backend,omitempty"`
	Backends []string `yaml:"backends,omitempty"`

	Version vault.EngineVersion `yaml:"version,omitempty"`

	Token            string `yaml:"token,omitempty"`
	RoleID           string `yaml:"role_id,omitempty"`
	SecretID         string `yaml:"secret_id,omitempty"`
	AppRoleMountPath string `yaml:"approle_mount_path,omitempty"`

	RequestTimeout Duration `yaml:"request_timeout,omitempty"`
}

// String implements fmt.Stringer, masking Token, RoleID, and SecretID so a
// struct logged with %v or %+v never prints live credentials. Grounded on
// the original daemon's config sanitize() serializer, which does the same
// for its on-disk config dump.
func (e *EndpointSpec) String() string {
	if e == nil {
		return "<nil>"
	}
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return fmt.Sprintf(
		"EndpointSpec{Address:%q Namespace:%q Prefix:%q Backend:%q Backends:%v Version:%d Token:%q RoleID:%q SecretID:%q AppRoleMountPath:%q RequestTimeout:%v}",
		e.Address, e.Namespace, e.Prefix, e.Backend, e.Backends, e.Version,
		mask(e.Token), mask(e.RoleID), mask(e.SecretID),
		e.AppRoleMountPath, e.RequestTimeout,
	)
}

// backendList returns the spec's backends as one ordered list: Backend as a
// one-element list when it is set, otherwise Backends. When both are set,
// Backends is ignored.
func (e *EndpointSpec) backendList() []string {
	if e.Backend != "" {
		return []string{e.Backend}
	}
	return e.Backends
}

// toEndpointConfig builds the vault.EndpointConfig for one backend of this
// spec.
func (e *EndpointSpec) toEndpointConfig(backend string) *vault.EndpointConfig {
	return &vault.EndpointConfig{
		Address:          e.Address,
		Namespace:        e.Namespace,
		Backend:          backend,
		Version:          e.Version,
		Token:            e.Token,
		RoleID:           e.RoleID,
		SecretID:         e.SecretID,
		AppRoleMountPath: e.AppRoleMountPath,
		RequestTimeout:   e.RequestTimeout.Duration(),
	}
}

// ResolvedPipeline is one fully-expanded (src_backend, dst_backend) pair
// ready to hand to the supervisor: no lists, no YAML tags, every field
// defaulted and validated.
type ResolvedPipeline struct {
	// ID identifies this pipeline; for multi-backend fan-out it carries
	// the "-%d" suffix distinguishing each backend pair.
	ID string

	// DaemonID is the daemon-level ID (DaemonConfig.ID), never suffixed.
	// Vault audit devices are cluster-wide, not per-backend-pair, so this
	// is the name checkAuditDevices expects to find on the source cluster
	// regardless of how many backend pairs fan out from it.
	DaemonID string

	FullSyncInterval time.Duration
	Bind             string
	WorkerPoolSize   int

	SrcEndpoint *vault.EndpointConfig
	DstEndpoint *vault.EndpointConfig
	SrcPrefix   pathmodel.LogicalPath
	DstPrefix   pathmodel.LogicalPath
}

// applyDefaults fills in zero-valued daemon-level fields with their
// defaults. It must run after Validate has confirmed the required fields
// are present.
func (c *DaemonConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = DefaultMetricsPort
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = DefaultWorkerPoolSize
	}
}

// DefaultConfig returns a DaemonConfig with every ambient setting at its
// default and no src/dst configured.
func DefaultConfig() *DaemonConfig {
	cfg := &DaemonConfig{}
	cfg.applyDefaults()
	return cfg
}

// Validate checks the daemon configuration and fills in defaults, returning
// a ValidationErrors aggregating every problem found.
func (c *DaemonConfig) Validate() error {
	v := NewValidator()

	if c == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	if c.ID == "" {
		v.addError("id", "id is required")
	}

	if c.Src == nil {
		v.addError("src", "src endpoint is required")
	}
	if c.Dst == nil {
		v.addError("dst", "dst endpoint is required")
	}
	if c.Src != nil && c.Dst != nil {
		v.validateEndpointPair(c.Src, c.Dst)
	}

	if c.Bind != "" && !strings.Contains(c.Bind, ":") {
		v.addError("bind", "bind must be a host:port address")
	}

	if v.errors.HasErrors() {
		return v.errors
	}

	c.applyDefaults()
	return nil
}

// validateEndpointPair checks that src and dst list a compatible number of
// backends (1↔1 or N↔N) and that each resulting vault.EndpointConfig is
// individually valid.
func (v *Validator) validateEndpointPair(src, dst *EndpointSpec) {
	srcBackends := src.backendList()
	dstBackends := dst.backendList()

	if len(srcBackends) == 0 {
		v.addError("src.backend", "backend or backends is required")
	}
	if len(dstBackends) == 0 {
		v.addError("dst.backend", "backend or backends is required")
	}
	if len(srcBackends) == 0 || len(dstBackends) == 0 {
		return
	}
	if len(srcBackends) != len(dstBackends) {
		v.addError("", fmt.Sprintf(
			"src lists %d backend(s) but dst lists %d; only 1→1 and N↔N pairings are supported",
			len(srcBackends), len(dstBackends)))
		return
	}

	for i, backend := range srcBackends {
		ep := src.toEndpointConfig(backend)
		if err := ep.Validate(fmt.Sprintf("src[%d]", i)); err != nil {
			v.addError(fmt.Sprintf("src[%d]", i), err.Error())
		}
	}
	for i, backend := range dstBackends {
		ep := dst.toEndpointConfig(backend)
		if err := ep.Validate(fmt.Sprintf("dst[%d]", i)); err != nil {
			v.addError(fmt.Sprintf("dst[%d]", i), err.Error())
		}
	}
}

// Resolve expands this config's Src/Dst backend lists into its
// ResolvedPipeline list, pairing the i-th src backend with the i-th dst
// backend. Validate must be called (and return nil) first; Resolve does not
// re-validate.
func (c *DaemonConfig) Resolve() []ResolvedPipeline {
	var resolved []ResolvedPipeline

	workerPoolSize := c.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = DefaultWorkerPoolSize
	}
	fullSyncInterval := c.FullSyncInterval.Duration()
	if fullSyncInterval <= 0 {
		fullSyncInterval = DefaultFullSyncInterval
	}

	srcBackends := c.Src.backendList()
	dstBackends := c.Dst.backendList()

	for j, srcBackend := range srcBackends {
		dstBackend := dstBackends[j]

		id := c.ID
		if len(srcBackends) > 1 {
			id = fmt.Sprintf("%s-%d", c.ID, j)
		}

		srcEndpoint := c.Src.toEndpointConfig(srcBackend)
		dstEndpoint := c.Dst.toEndpointConfig(dstBackend)
		// Validate has already confirmed these are well-formed; calling
		// it again here just fills in the defaults (version, timeout,
		// resolved auth method) on the copy the supervisor will use.
		_ = srcEndpoint.Validate("")
		_ = dstEndpoint.Validate("")

		resolved = append(resolved, ResolvedPipeline{
			ID:               id,
			DaemonID:         c.ID,
			FullSyncInterval: fullSyncInterval,
			Bind:             c.Bind,
			WorkerPoolSize:   workerPoolSize,
			SrcEndpoint:      srcEndpoint,
			DstEndpoint:      dstEndpoint,
			SrcPrefix:        pathmodel.Parse(c.Src.Prefix),
			DstPrefix:        pathmodel.Parse(c.Dst.Prefix),
		})
	}

	return resolved
}
