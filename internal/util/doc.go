// Package util provides utility functions and types shared across the
// secret-replication daemon.
//
// This package contains context helpers, structured error types, and
// validation functions used by the Vault clients, sync workers, walker,
// audit listener, and supervisor.
//
// # Context Helpers
//
// Context utilities for tagging a sync task's context as it flows
// through the pipeline:
//
//	ctx = util.ContextWithPipeline(ctx, pipeline.ID)
//	ctx = util.ContextWithBackend(ctx, client.Backend())
//	pipelineID := util.PipelineFromContext(ctx)
//
// # Error Types
//
// Structured error types for consistent error handling and retry
// classification:
//
//   - ConfigError: configuration validation errors
//   - AuthError: Vault authentication failures
//   - TransientError / PermanentError: retry classification
//   - Common sentinel errors: ErrNotFound, ErrTimeout, etc.
//
// # Validation
//
// Input validation helpers for URLs, durations, and hostnames:
//
//	err := util.ValidateURL("https://vault.example.com")
//	err := util.ValidateHostname("vault.example.com")
package util
