// Package main is the entry point for the Vault secret-replication daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/observability"
	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/supervisor"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Exit codes, per SPEC_FULL.md §6. exitReloadRequested signals a process
// manager (systemd, a Kubernetes restartPolicy) that the daemon stopped
// because its config file changed on disk, not because of an error — the
// expectation is that the manager restarts it, which picks up a fresh
// config.LoadConfig/Resolve instead of hot-swapping live Vault client and
// audit listener state in place.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitStartupError    = 2
	exitShutdownError   = 3
	exitReloadRequested = 4
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	dryRun      bool
	once        bool
	showVersion bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return exitOK
	}

	if flags.configPath == "" {
		fmt.Fprintln(os.Stderr, "vaultsync: --config is required")
		return exitConfigError
	}

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaultsync: loading configuration: %v\n", err)
		return exitConfigError
	}

	obs, err := initObservability(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaultsync: initializing observability: %v\n", err)
		return exitStartupError
	}
	logger := obs.Logger()
	defer func() { _ = logger.Sync() }()

	resolved := cfg.Resolve()
	logger.Info("starting vaultsync",
		logging.Service("vaultsync"),
		logging.Version(version),
		logging.String("git_commit", gitCommit),
		logging.String("build_time", buildTime),
		logging.String("id", cfg.ID),
		logging.Int("pipelines", len(resolved)),
		logging.String("dry_run", strconv.FormatBool(flags.dryRun)),
		logging.String("once", strconv.FormatBool(flags.once)),
	)

	sup, err := supervisor.New(resolved, obs, supervisor.Options{DryRun: flags.dryRun, Once: flags.once})
	if err != nil {
		logger.Error("failed to build supervisor", logging.Err(err))
		return exitStartupError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reloadRequested := false
	if !flags.once {
		watcher, werr := startConfigWatcher(flags.configPath, logger, stop, &reloadRequested)
		if werr != nil {
			logger.Warn("could not start config file watcher; hot-reload disabled", logging.Err(werr))
		} else {
			defer func() { _ = watcher.Stop() }()
		}
	}

	runErr := sup.Run(ctx)

	stopCtx := context.Background()
	if err := obs.Stop(stopCtx); err != nil {
		logger.Warn("error stopping observability", logging.Err(err))
	}

	if runErr != nil {
		logger.Error("vaultsync exited with error", logging.Err(runErr))
		return exitShutdownError
	}
	if reloadRequested {
		logger.Info("exiting for a supervisor-driven restart after configuration change")
		return exitReloadRequested
	}
	return exitOK
}

// startConfigWatcher watches configPath for changes and, on the first
// successfully-reloaded (parsed and validated) configuration, flags
// reloadRequested and cancels the run context via stop — the same
// shutdown path a SIGTERM takes. Vault client connections and a bound
// audit listener's socket can't be safely swapped out from under a
// running Supervisor, so a config change triggers a graceful shutdown and
// process exit rather than an in-place pipeline rebuild; a process manager
// restarting the daemon picks up the new configuration from scratch.
func startConfigWatcher(
	configPath string,
	logger *logging.Logger,
	stop context.CancelFunc,
	reloadRequested *bool,
) (*config.Watcher, error) {
	var once sync.Once

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.DaemonConfig) {
		once.Do(func() {
			logger.Info("configuration file changed, stopping for a supervisor-driven restart",
				logging.String("id", newCfg.ID))
			*reloadRequested = true
			stop()
		})
	}, config.WithWatcherLogger(logger), config.WithErrorCallback(func(err error) {
		logger.Warn("config file watcher reported an error", logging.Err(err))
	}))
	if err != nil {
		return nil, err
	}

	if err := watcher.Start(context.Background()); err != nil {
		return nil, err
	}
	return watcher, nil
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("VAULT_SYNC_CONFIG_PATH", ""),
		"Path to configuration file")
	dryRun := flag.Bool("dry-run", false, "Log intended writes without touching the destination")
	once := flag.Bool("once", false, "Run a single full sync per pipeline, then exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		dryRun:      *dryRun,
		once:        *once,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("vaultsync version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initObservability builds and starts the daemon's logging/tracing/metrics
// stack from the loaded configuration.
func initObservability(cfg *config.DaemonConfig) (*observability.Observability, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = "vaultsync"
	obsCfg.ServiceVersion = version
	obsCfg.LogLevel = logging.Level(cfg.LogLevel)
	obsCfg.MetricsPort = cfg.MetricsPort

	obs, err := observability.New(obsCfg)
	if err != nil {
		return nil, err
	}
	if err := obs.Start(context.Background()); err != nil {
		return nil, err
	}
	return obs, nil
}

// getEnvOrDefault returns the named environment variable, or def if unset.
func getEnvOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
