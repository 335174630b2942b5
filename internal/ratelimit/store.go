package ratelimit

import (
	"context"
	"time"

	"github.com/tbourn/thread-commands/internal/repo"
)

// WindowStore is the slice of repo.Store the store backend needs.
type WindowStore interface {
	UpsertRateLimitEntry(ctx context.Context, windows []repo.Window, now time.Time) (bool, error)
	DeleteRateLimitsOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
}

// StoreBackend keeps windows in the rate_limits table, so every process
// sharing the database sees the same cooldowns. Atomicity comes from the
// conditional upsert inside one transaction.
type StoreBackend struct {
	store WindowStore
}

// NewStoreBackend wraps s.
func NewStoreBackend(s WindowStore) *StoreBackend { return &StoreBackend{store: s} }

// Admit implements Backend.
func (b *StoreBackend) Admit(ctx context.Context, windows []repo.Window, now time.Time) (bool, error) {
	return b.store.UpsertRateLimitEntry(ctx, windows, now.UTC())
}

// Sweep implements Backend.
func (b *StoreBackend) Sweep(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	return b.store.DeleteRateLimitsOlderThan(ctx, tenantID, cutoff.UTC())
}
