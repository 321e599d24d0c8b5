// Package syncer implements the sync worker pool: the consumers that drain
// a pipeline's SyncTask queue, reading the current value from the source
// backend and writing it to the destination backend under the translated
// path.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaultsync/vaultsync/internal/observability"
	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/observability/tracing"
	"github.com/vaultsync/vaultsync/internal/pipeline"
	"github.com/vaultsync/vaultsync/internal/retry"
	"github.com/vaultsync/vaultsync/internal/util"
)

// writeRetry bounds how hard a worker tries to write to the destination
// before logging and dropping the task; a later full sync or audit event
// will reconcile it. ~5 attempts capped around a minute total, per
// SPEC_FULL.md's stated budget.
var writeRetry = &retry.Config{
	MaxRetries:     5,
	InitialBackoff: time.Second,
	MaxBackoff:     20 * time.Second,
	JitterFactor:   retry.DefaultJitterFactor,
}

// Pool is a fixed-size pool of workers draining one pipeline's queue.
type Pool struct {
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
	obs      *observability.Observability
	dryRun   bool
}

// New creates a worker pool for p. When dryRun is true, workers log the
// write they would perform and never call DstClient.Write.
func New(p *pipeline.Pipeline, logger *logging.Logger, obs *observability.Observability, dryRun bool) *Pool {
	return &Pool{
		pipeline: p,
		logger:   logger.With(logging.Component("syncer"), logging.String("pipeline", p.ID)),
		obs:      obs,
		dryRun:   dryRun,
	}
}

// Run starts the pool's workers and blocks until ctx is cancelled and every
// worker has drained its current task.
func (pl *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < pl.pipeline.WorkerPoolSize; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pl.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (pl *Pool) worker(ctx context.Context, id int) {
	logger := pl.logger.With(logging.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-pl.pipeline.Queue:
			if !ok {
				return
			}
			if pl.obs != nil {
				pl.obs.SetSyncQueueDepth(pl.pipeline.ID, len(pl.pipeline.Queue))
			}
			pl.process(ctx, logger, task)
		}
	}
}

func (pl *Pool) process(ctx context.Context, logger *logging.Logger, task pipeline.SyncTask) {
	ctx, span := tracing.StartInternalSpan(ctx, "syncer.process_task",
		tracing.BackendAttr(pl.pipeline.SrcClient.Backend()),
		tracing.RouteAttr(task.SrcPath.String()),
	)
	defer span.End()

	ctx = util.ContextWithPipeline(ctx, pl.pipeline.ID)
	ctx = util.ContextWithBackend(ctx, pl.pipeline.SrcClient.Backend())
	ctx = util.ContextWithLogicalPath(ctx, task.SrcPath.String())
	ctx = util.ContextWithStartTime(ctx, time.Now())
	result := "success"

	skipped, err := pl.syncOne(ctx, logger, task)
	duration := util.ElapsedTime(ctx)

	switch {
	case err == nil && skipped:
		result = "skipped_unchanged"
		tracing.SetSpanOK(span)
	case err == nil:
		tracing.SetSpanOK(span)
	case errors.Is(err, util.ErrNotFound):
		result = "dropped_not_found"
		tracing.SetSpanOK(span)
	case errors.Is(err, context.Canceled):
		result = "cancelled"
		tracing.SetSpanOK(span)
	default:
		result = "dropped_error"
		tracing.SetSpanError(span, err)
	}

	if pl.obs != nil {
		pl.obs.RecordSyncTask(pl.pipeline.ID, result, duration.Seconds())
	}

	logger.Info("sync task complete",
		logging.String("logical_path", task.SrcPath.String()),
		logging.String("src_backend", pl.pipeline.SrcClient.Backend()),
		logging.String("dst_backend", pl.pipeline.DstClient.Backend()),
		logging.String("outcome", result),
		logging.Duration("duration", duration),
		logging.TraceID(tracing.TraceIDFromContext(ctx)),
		logging.SpanID(tracing.SpanIDFromContext(ctx)),
	)
}

// syncOne replicates task's secret from source to destination. The bool
// return reports whether the write was skipped because the destination
// already matched the source; process reports it as the
// "skipped_unchanged" result on the per-task sync metric and log line.
// No per-walk count of updated vs. unchanged secrets is kept, since
// workers drain the queue asynchronously.
func (pl *Pool) syncOne(ctx context.Context, logger *logging.Logger, task pipeline.SyncTask) (skipped bool, err error) {
	secret, err := pl.pipeline.SrcClient.Read(ctx, task.SrcPath)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			logger.Debug("source secret no longer present, dropping task",
				logging.String("logical_path", task.SrcPath.String()))
			return false, err
		}
		logger.Warn("read from source failed", logging.Err(err))
		return false, err
	}

	dstPath, ok := pl.pipeline.Translate(task.SrcPath)
	if !ok {
		logger.Warn("task path does not fall under pipeline source prefix, dropping",
			logging.String("logical_path", task.SrcPath.String()))
		return false, nil
	}

	if existing, readErr := pl.pipeline.DstClient.Read(ctx, dstPath); readErr == nil && existing.Equal(secret) {
		logger.Debug("destination already matches source, skipping write",
			logging.String("logical_path", dstPath.String()))
		return true, nil
	}

	if pl.dryRun {
		logger.Info("dry-run: would write secret",
			logging.String("logical_path", dstPath.String()))
		return false, nil
	}

	err = retry.Do(ctx, writeRetry, func() error {
		return pl.pipeline.DstClient.Write(ctx, dstPath, secret)
	}, &retry.Options{
		ShouldRetry: util.IsRetryable,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			logger.Debug("retrying write to destination",
				logging.String("logical_path", dstPath.String()),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.Err(err),
			)
		},
	})
	if err != nil {
		logger.Warn("write to destination failed, dropping task",
			logging.String("logical_path", dstPath.String()),
			logging.ErrorType(fmt.Sprintf("%T", err)),
			logging.Err(err),
		)
	}
	return false, err
}
