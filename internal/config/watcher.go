package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultsync/vaultsync/internal/observability/logging"
)

// ChangeCallback is called with the newly loaded, validated configuration
// after the watched file changes.
type ChangeCallback func(*DaemonConfig)

// ErrorCallback is called when a reload attempt fails: the file changed but
// the new content didn't parse or didn't validate. The previous
// configuration, and whatever is still running against it, is left alone.
type ErrorCallback func(error)

// Watcher watches a daemon's config file for changes and reports
// successfully-reloaded configuration through a callback. It does not
// reconfigure anything itself — the pipelines this daemon resolves a config
// into own live Vault client connections and an audit listener's bound
// socket, none of which can be safely swapped out from under a running
// Supervisor, so the reload policy (what to do about a change) is the
// caller's decision, not the watcher's.
type Watcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      ChangeCallback
	errorCallback ErrorCallback
	logger        *logging.Logger
	debounceDelay time.Duration

	mu         sync.RWMutex
	lastConfig *DaemonConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
}

// WatcherOption is a functional option for configuring a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long the watcher waits after the last observed
// write before reloading, coalescing the burst of events one file save
// often produces into a single reload.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithWatcherLogger sets the logger the watcher reports reload activity
// through.
func WithWatcherLogger(logger *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the callback invoked when a reload attempt fails.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a Watcher for the config file at path. It does not
// start watching; call Start.
func NewWatcher(path string, callback ChangeCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	w := &Watcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		debounceDelay: 250 * time.Millisecond,
		logger:        logging.L(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads and validates the current config file content, then begins
// watching it for changes in a background goroutine. The initial load's
// result is not delivered through the callback — the caller already has it
// from its own LoadConfig call; Start only needs it to seed GetLastConfig
// so a reload can be compared against something.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	cfg, err := LoadConfig(w.path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastConfig = cfg
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("config watcher: watching %s: %w", dir, err)
	}

	w.logger.Info("watching configuration file for changes", logging.String("path", w.path))

	go w.watch(ctx)

	return nil
}

// Stop stops watching the configuration file and waits for the watch loop
// to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// GetLastConfig returns the most recently, successfully loaded
// configuration.
func (w *Watcher) GetLastConfig() *DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastConfig
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			debounceTimer, debounceCh = w.handleFileEvent(event, debounceTimer, debounceCh)

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.handleWatchError(err)
		}
	}
}

func (w *Watcher) handleFileEvent(
	event fsnotify.Event,
	debounceTimer *time.Timer,
	debounceCh <-chan time.Time,
) (timer *time.Timer, ch <-chan time.Time) {
	if filepath.Clean(event.Name) != w.path {
		return debounceTimer, debounceCh
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return debounceTimer, debounceCh
	}

	w.logger.Debug("config file changed",
		logging.String("path", event.Name),
		logging.String("op", event.Op.String()),
	)

	if debounceTimer != nil {
		debounceTimer.Stop()
	}
	debounceTimer = time.NewTimer(w.debounceDelay)
	return debounceTimer, debounceTimer.C
}

func (w *Watcher) handleWatchError(err error) {
	w.logger.Warn("config watcher error", logging.Err(err))
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

func (w *Watcher) reload() {
	w.logger.Info("configuration file changed, reloading", logging.String("path", w.path))

	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Warn("failed to reload configuration, keeping previous", logging.Err(err))
		if w.errorCallback != nil {
			w.errorCallback(err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		w.logger.Warn("reloaded configuration failed validation, keeping previous", logging.Err(err))
		if w.errorCallback != nil {
			w.errorCallback(err)
		}
		return
	}

	w.mu.Lock()
	w.lastConfig = cfg
	w.mu.Unlock()

	w.logger.Info("configuration reloaded successfully", logging.String("id", cfg.ID))

	if w.callback != nil {
		w.callback(cfg)
	}
}
