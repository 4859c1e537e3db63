package crawler

import (
	"context"
	"errors"

	"github.com/meridian-im/account-crawler/internal/account"
)

// ErrRestartSweep is returned by a listener to abandon the current sweep.
// The engine resets the cursor and starts over on the next tick.
var ErrRestartSweep = errors.New("crawler: listener requested sweep restart")

// Listener is a side-effect processor registered with the engine. Calls
// arrive in registration order, chunks arrive in cursor order, and
// delivery is at-least-once, so implementations must be idempotent
// within a sweep.
type Listener interface {
	// Name labels the listener in logs and metrics.
	Name() string
	// OnCrawlStart fires once before the first chunk of a sweep.
	OnCrawlStart()
	// OnCrawlChunk processes one page of accounts. A plain error is
	// recoverable: the engine logs it and the chain continues.
	// ErrRestartSweep abandons the sweep.
	OnCrawlChunk(ctx context.Context, from account.Cursor, chunk []account.Account) error
	// OnCrawlEnd fires once after the final chunk of a sweep.
	OnCrawlEnd(final account.Cursor)
}
