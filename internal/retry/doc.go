// Package retry provides exponential backoff retry functionality for
// Vault API calls made by the vault client, full-sync walker, and sync
// worker pool.
//
// This package implements configurable retry logic with exponential
// backoff and jitter for resilient communication with Vault.
//
// # Features
//
//   - Configurable maximum retry attempts
//   - Exponential backoff with configurable base and maximum
//   - Jitter factor to prevent thundering herd
//   - Context-aware cancellation support
//   - Customizable ShouldRetry/OnRetry callbacks
//
// # Usage
//
// Execute an operation with retry:
//
//	cfg := retry.DefaultConfig()
//	err := retry.Do(ctx, cfg, func() error {
//	    return callVault(ctx)
//	}, nil)
//
// # Configuration
//
// Customize retry behavior:
//
//	cfg := &retry.Config{
//	    MaxRetries:     5,
//	    InitialBackoff: 200 * time.Millisecond,
//	    MaxBackoff:     10 * time.Second,
//	    JitterFactor:   0.25,
//	}
package retry
