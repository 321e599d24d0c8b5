// Package walker implements the full-sync walker: a depth-first
// traversal of a pipeline's source prefix that emits a SyncTask for every
// leaf secret found (each child directory is walked completely as soon as
// it is listed, not level by level), re-reconciling the destination against the source on
// a fixed interval (or once, for --once runs).
package walker

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/vaultsync/vaultsync/internal/observability"
	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/pathmodel"
	"github.com/vaultsync/vaultsync/internal/pipeline"
	"github.com/vaultsync/vaultsync/internal/retry"
)

// subtreeRetry bounds how hard the walker tries to list a directory before
// giving up on that subtree and moving on; a later run will retry it.
var subtreeRetry = &retry.Config{
	MaxRetries:     4,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	JitterFactor:   retry.DefaultJitterFactor,
}

// listRPS bounds how fast the walker issues LIST calls against the source
// Vault cluster, so a large subtree doesn't saturate it during a full sync.
const listRPS = 50

// Walker performs full-sync walks of one pipeline's source prefix.
type Walker struct {
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
	obs      *observability.Observability
	limiter  *rate.Limiter
}

// New creates a Walker for p.
func New(p *pipeline.Pipeline, logger *logging.Logger, obs *observability.Observability) *Walker {
	return &Walker{
		pipeline: p,
		logger:   logger.With(logging.Component("walker"), logging.String("pipeline", p.ID)),
		obs:      obs,
		limiter:  rate.NewLimiter(rate.Limit(listRPS), listRPS),
	}
}

// Run performs one complete full-sync walk, enqueuing a SyncTask for every
// leaf secret under the pipeline's source prefix. It returns when the walk
// completes or ctx is cancelled.
func (w *Walker) Run(ctx context.Context) error {
	start := time.Now()
	emitted := 0

	err := w.walk(ctx, w.pipeline.SrcPrefix, &emitted)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}
	if w.obs != nil {
		w.obs.RecordWalkerRun(w.pipeline.ID, result, duration.Seconds())
		w.obs.RecordWalkerSecretsEmitted(w.pipeline.ID, emitted)
	}

	w.logger.Info("full-sync walk complete",
		logging.Int("secrets_emitted", emitted),
		logging.Duration("duration", duration),
		logging.Err(err),
	)
	return err
}

// RunPeriodically runs Run immediately, then again every FullSyncInterval,
// until ctx is cancelled.
func (w *Walker) RunPeriodically(ctx context.Context) {
	if err := w.Run(ctx); err != nil {
		w.logger.Warn("full-sync walk finished with errors", logging.Err(err))
	}

	ticker := time.NewTicker(w.pipeline.FullSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				w.logger.Warn("full-sync walk finished with errors", logging.Err(err))
			}
		}
	}
}

// walk recursively lists dir, recursing into child directories and
// emitting a SyncTask for each leaf. A subtree whose listing fails after
// retrying is skipped and logged; the walk continues with its siblings.
func (w *Walker) walk(ctx context.Context, dir pathmodel.LogicalPath, emitted *int) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var children []string
	err := retry.Do(ctx, subtreeRetry, func() error {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		var listErr error
		children, listErr = w.pipeline.SrcClient.List(ctx, dir)
		return listErr
	}, &retry.Options{
		ShouldRetry: func(error) bool { return true },
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			w.logger.Debug("retrying list",
				logging.String("dir", dir.String()),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.Err(err),
			)
		},
	})
	if err != nil {
		w.logger.Warn("skipping subtree after exhausting retries",
			logging.String("dir", dir.String()),
			logging.Err(err),
		)
		return nil
	}

	for _, child := range children {
		if pathmodel.IsDirectory(child) {
			childDir := dir.Child(pathmodel.TrimDirectorySuffix(child))
			if err := w.walk(ctx, childDir, emitted); err != nil {
				return err
			}
			continue
		}

		leaf := dir.Child(child)
		if !w.pipeline.Enqueue(ctx, pipeline.SyncTask{SrcPath: leaf}) {
			return ctx.Err()
		}
		*emitted++
	}

	return nil
}
