// Package supervisor wires configuration into running pipelines: it builds
// the Vault clients and Pipeline runtime state described by a resolved
// configuration, starts their audit listeners, walkers, and worker pools,
// and owns the process's graceful shutdown sequence.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaultsync/vaultsync/internal/audit"
	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/health"
	"github.com/vaultsync/vaultsync/internal/observability"
	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/pipeline"
	"github.com/vaultsync/vaultsync/internal/syncer"
	"github.com/vaultsync/vaultsync/internal/vault"
	"github.com/vaultsync/vaultsync/internal/walker"
)

// ShutdownGrace bounds how long Run waits for in-flight sync tasks to drain
// after cancellation before returning anyway.
const ShutdownGrace = 30 * time.Second

// Options configures a Supervisor's run mode.
type Options struct {
	// DryRun disables all destination writes; see syncer.Pool.
	DryRun bool

	// Once runs a single full-sync walk per pipeline to completion, then
	// returns instead of starting audit listeners or running forever.
	Once bool
}

// Supervisor owns every pipeline's Vault clients, audit listener, walker,
// and worker pool for the lifetime of one daemon process.
type Supervisor struct {
	logger *logging.Logger
	obs    *observability.Observability
	opts   Options

	clients   map[string]*vault.Client
	pipelines []*pipeline.Pipeline
	listeners []*audit.Listener
	walkers   []*walker.Walker
	pools     []*syncer.Pool

	bindGroups map[string][]*pipeline.Pipeline
}

// New builds a Supervisor from resolved pipelines. It does not start
// anything; call Run.
func New(resolved []config.ResolvedPipeline, obs *observability.Observability, opts Options) (*Supervisor, error) {
	if len(resolved) == 0 {
		return nil, fmt.Errorf("supervisor: no pipelines to run")
	}

	s := &Supervisor{
		logger:     obs.Logger().With(logging.Component("supervisor")),
		obs:        obs,
		opts:       opts,
		clients:    make(map[string]*vault.Client),
		bindGroups: make(map[string][]*pipeline.Pipeline),
	}

	for _, rp := range resolved {
		srcClient, err := s.clientFor(rp.SrcEndpoint)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: source client: %w", rp.ID, err)
		}
		dstClient, err := s.clientFor(rp.DstEndpoint)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: destination client: %w", rp.ID, err)
		}

		p := pipeline.New(rp.ID, rp.DaemonID, srcClient, dstClient, rp.SrcPrefix, rp.DstPrefix,
			rp.FullSyncInterval, rp.Bind, rp.WorkerPoolSize)
		s.pipelines = append(s.pipelines, p)

		if p.Bind != "" {
			s.bindGroups[p.Bind] = append(s.bindGroups[p.Bind], p)
		}
	}

	s.registerHealthChecks()

	return s, nil
}

// clientFor returns the Client for cfg, creating and caching it the first
// time a given endpoint identity is seen. Pipelines that share an endpoint
// (same address, namespace, backend, and credentials) share one Client, one
// login, and one renewal task.
func (s *Supervisor) clientFor(cfg *vault.EndpointConfig) (*vault.Client, error) {
	key := clientKey(cfg)
	if c, ok := s.clients[key]; ok {
		return c, nil
	}

	c, err := vault.New(cfg, s.logger, s.obs)
	if err != nil {
		return nil, err
	}
	s.clients[key] = c
	return c, nil
}

// vaultHealthCheckTimeout bounds how long a single Vault client's liveness
// check may block before it counts as unhealthy, so one wedged endpoint
// can't stall the whole readiness probe.
const vaultHealthCheckTimeout = 5 * time.Second

// registerHealthChecks combines a liveness check per distinct Vault client
// into one composite readiness check, cached so a flood of /readyz polls
// doesn't hammer Vault. The daemon is only ready once every client it
// depends on is reachable, so one combined check (rather than one
// independently-reported check per client) is the correct shape for this
// process's readiness probe.
func (s *Supervisor) registerHealthChecks() {
	checker := s.obs.HealthChecker()
	if checker == nil || len(s.clients) == 0 {
		return
	}

	composite := health.NewCompositeHealthCheck("vault-clients")
	for _, c := range s.clients {
		client := c
		name := fmt.Sprintf("vault:%s:%s", client.Backend(), client.Addr())
		dep := health.NewDependencyCheck(name, health.DependencyTypeCustom, client.Ping)
		composite.AddCheck(health.NewTimeoutHealthCheck(dep, vaultHealthCheckTimeout))
	}

	checker.AddCheck(health.NewCachedHealthCheck(composite, 5*time.Second))
}

func clientKey(cfg *vault.EndpointConfig) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", cfg.Address, cfg.Namespace, cfg.Backend,
		cfg.AuthMethod, cfg.Token, cfg.RoleID)
}

// Run starts every distinct client's login and renewal loop, starts each
// pipeline's audit listener (if bound), walker, and worker pool, then
// blocks until ctx is cancelled (or, in --once mode, until every pipeline's
// one-shot walk completes) and performs a graceful shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.loginAll(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, c := range s.clients {
		c.StartRenewalLoop(runCtx)
	}

	s.checkAuditDevices(runCtx)

	if s.opts.Once {
		return s.runOnce(runCtx)
	}
	return s.runForever(ctx, runCtx, cancel)
}

// checkAuditDevices warns, once per distinct (source client, daemon ID)
// pair among bound pipelines, when the source cluster has no audit device
// named after the owning daemon's ID. Audit devices are cluster-wide, not
// per-backend-pair, so a multi-backend fan-out config that resolves into
// several pipelines sharing one source client and one DaemonID must only
// be checked once against that shared name — checking per pipeline ID
// would look for "id-0", "id-1", ... and never find the real device named
// "id". A missing device doesn't fail startup: the full-sync walker still
// runs, and real-time replication just sits idle without anything visibly
// wrong, so this surfaces the likely cause up front instead of leaving it
// silent.
func (s *Supervisor) checkAuditDevices(ctx context.Context) {
	type key struct {
		client *vault.Client
		id     string
	}
	checked := make(map[key]bool)

	for _, p := range s.pipelines {
		if p.Bind == "" {
			continue
		}
		k := key{client: p.SrcClient, id: p.DaemonID}
		if checked[k] {
			continue
		}
		checked[k] = true

		exists, err := p.SrcClient.AuditDeviceExists(ctx, p.DaemonID)
		if err != nil {
			s.logger.Warn("could not verify audit device on source cluster",
				logging.String("id", p.DaemonID), logging.Err(err))
			continue
		}
		if !exists {
			s.logger.Warn("no audit device named after this daemon's id found on source cluster; real-time replication will stay idle until one is enabled",
				logging.String("id", p.DaemonID))
		}
	}
}

func (s *Supervisor) loginAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(s.clients))

	for _, c := range s.clients {
		wg.Add(1)
		go func(c *vault.Client) {
			defer wg.Done()
			if err := c.Login(ctx); err != nil {
				errs <- err
			}
		}(c)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return fmt.Errorf("supervisor: login failed: %w", err)
		}
	}
	return nil
}

// runOnce performs a single full-sync walk per pipeline, draining every
// resulting task before returning. Audit listeners are never started.
func (s *Supervisor) runOnce(ctx context.Context) error {
	var pools []*syncer.Pool
	var poolWg sync.WaitGroup
	poolCtx, cancelPools := context.WithCancel(ctx)
	defer cancelPools()

	for _, p := range s.pipelines {
		pool := syncer.New(p, s.logger, s.obs, s.opts.DryRun)
		pools = append(pools, pool)
		poolWg.Add(1)
		go func() {
			defer poolWg.Done()
			pool.Run(poolCtx)
		}()
	}
	s.pools = pools

	var walkWg sync.WaitGroup
	walkErrs := make(chan error, len(s.pipelines))
	for _, p := range s.pipelines {
		w := walker.New(p, s.logger, s.obs)
		s.walkers = append(s.walkers, w)
		walkWg.Add(1)
		go func(p *pipeline.Pipeline, w *walker.Walker) {
			defer walkWg.Done()
			if err := w.Run(ctx); err != nil {
				walkErrs <- err
			}
		}(p, w)
	}
	walkWg.Wait()
	close(walkErrs)

	s.drainQueues()
	cancelPools()
	poolWg.Wait()

	for err := range walkErrs {
		if err != nil {
			return err
		}
	}
	return nil
}

// drainQueues waits for every pipeline's queue to empty, giving the
// just-started worker pools a chance to finish the walk's tasks before
// --once shuts them down.
func (s *Supervisor) drainQueues() {
	deadline := time.Now().Add(ShutdownGrace)
	for _, p := range s.pipelines {
		for len(p.Queue) > 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// runForever starts audit listeners, walkers on their periodic ticker, and
// worker pools, then blocks until ctx is cancelled and performs a graceful
// shutdown: stop accepting audit connections, cancel the pipelines'
// context, and wait up to ShutdownGrace for workers to drain.
func (s *Supervisor) runForever(ctx, runCtx context.Context, cancel context.CancelFunc) error {
	var wg sync.WaitGroup

	for bind, pipelines := range s.bindGroups {
		l := audit.New(bind, pipelines, s.logger, s.obs)
		s.listeners = append(s.listeners, l)
		wg.Add(1)
		go func(l *audit.Listener) {
			defer wg.Done()
			if err := l.Serve(runCtx); err != nil {
				s.logger.Warn("audit listener stopped with error", logging.Err(err))
			}
		}(l)
	}

	for _, p := range s.pipelines {
		w := walker.New(p, s.logger, s.obs)
		s.walkers = append(s.walkers, w)
		wg.Add(1)
		go func(w *walker.Walker) {
			defer wg.Done()
			w.RunPeriodically(runCtx)
		}(w)

		pool := syncer.New(p, s.logger, s.obs, s.opts.DryRun)
		s.pools = append(s.pools, pool)
		wg.Add(1)
		go func(pool *syncer.Pool) {
			defer wg.Done()
			pool.Run(runCtx)
		}(pool)
	}

	<-ctx.Done()
	s.logger.Info("shutdown signal received, draining pipelines")

	for _, l := range s.listeners {
		if err := l.Close(); err != nil {
			s.logger.Warn("error closing audit listener", logging.Err(err))
		}
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		s.logger.Warn("shutdown grace period elapsed with workers still draining")
	}

	for _, c := range s.clients {
		if err := c.Close(); err != nil {
			s.logger.Warn("error closing vault client", logging.Err(err))
		}
	}

	return nil
}
