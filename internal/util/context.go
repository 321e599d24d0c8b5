package util

import (
	"context"
	"time"
)

// Context keys.
type ctxKey string

const (
	ctxKeyStartTime   ctxKey = "start_time"
	ctxKeyPipeline    ctxKey = "pipeline"
	ctxKeyBackend     ctxKey = "backend"
	ctxKeyLogicalPath ctxKey = "logical_path"
)

// ContextWithStartTime adds a start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the start time from context.
func StartTimeFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(ctxKeyStartTime).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ContextWithPipeline adds a pipeline ID to the context.
func ContextWithPipeline(ctx context.Context, pipeline string) context.Context {
	return context.WithValue(ctx, ctxKeyPipeline, pipeline)
}

// PipelineFromContext extracts the pipeline ID from context.
func PipelineFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPipeline).(string); ok {
		return v
	}
	return ""
}

// ContextWithBackend adds a backend name to the context.
func ContextWithBackend(ctx context.Context, backend string) context.Context {
	return context.WithValue(ctx, ctxKeyBackend, backend)
}

// BackendFromContext extracts the backend name from context.
func BackendFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyBackend).(string); ok {
		return v
	}
	return ""
}

// ContextWithLogicalPath adds the logical secret path being synced to the context.
func ContextWithLogicalPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, ctxKeyLogicalPath, path)
}

// LogicalPathFromContext extracts the logical secret path from context.
func LogicalPathFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyLogicalPath).(string); ok {
		return v
	}
	return ""
}

// NewTimeoutContext creates a context with a timeout.
// Returns the context and a cancel function that should be deferred.
func NewTimeoutContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

// ElapsedTime returns the elapsed time since the start time in context.
func ElapsedTime(ctx context.Context) time.Duration {
	startTime := StartTimeFromContext(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
