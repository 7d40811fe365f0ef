// Package idempotency deduplicates job submissions through an atomic
// claim-or-detect registration against the shared key-value store.
package idempotency

import (
	"context"
	"time"
)

// ClaimResult reports the outcome of a claim attempt. When IsNew is false
// the caller must short-circuit and return ExistingJobID instead of
// enqueueing a duplicate.
type ClaimResult struct {
	IsNew         bool
	ExistingJobID string
}

// Store registers idempotency keys. Claim must be atomic at the storage
// layer: multiple API instances race on the same key, so a local
// check-then-set is not acceptable.
type Store interface {
	Claim(ctx context.Context, key, jobID string, ttl time.Duration) (ClaimResult, error)
	// Get reads the bound job id without claiming. Returns "" when the
	// key is not registered.
	Get(ctx context.Context, key string) (string, error)
	// Release deletes a claim so a legitimate resubmission can proceed
	// after a terminal failure, instead of waiting out the TTL.
	Release(ctx context.Context, key string) error
}
