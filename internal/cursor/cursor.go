// Package cursor persists the crawler's shared sweep state: the cursor,
// the single-writer lease, and the acceleration flag.
package cursor

import (
	"context"
	"time"

	"github.com/meridian-im/account-crawler/internal/account"
)

// Store is the contract against the shared cache cluster. All operations
// are idempotent; Set* calls may be retried freely.
type Store interface {
	// GetCursor returns the last persisted cursor, invalid at sweep start.
	GetCursor(ctx context.Context) (account.Cursor, error)
	// SetCursor persists the cursor plus the legacy number checkpoint.
	SetCursor(ctx context.Context, c account.Cursor, lastNumber string) error
	// ClearCursor resets the cursor so the next tick begins a new sweep.
	ClearCursor(ctx context.Context) error

	// TryAcquireLease atomically claims the crawl lease for token with the
	// given TTL. Returns true iff this caller now holds the lease.
	TryAcquireLease(ctx context.Context, token string, ttl time.Duration) (bool, error)
	// RefreshLease extends the TTL iff token still holds the lease.
	RefreshLease(ctx context.Context, token string, ttl time.Duration) (bool, error)
	// ReleaseLease deletes the lease iff token still holds it.
	ReleaseLease(ctx context.Context, token string) error

	IsAccelerated(ctx context.Context) (bool, error)
	SetAccelerated(ctx context.Context, enabled bool) error
}
