// Package cleaner implements the aging-based account expiry policy.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-im/account-crawler/internal/account"
	"github.com/meridian-im/account-crawler/internal/crawler"
	"github.com/meridian-im/account-crawler/internal/directory"
	"github.com/meridian-im/account-crawler/internal/metrics"
)

// IsAccountExpired reports whether the account has aged out. An account
// is expired iff a primary device exists and no device at all has been
// seen within the retention window; activity on any device, enabled or
// not, reprieves the whole account. Accounts without a primary device
// are partial states and never expire here. Pure: depends only on the
// snapshot, nowMs, and retention.
func IsAccountExpired(acct account.Account, nowMs int64, retention time.Duration) bool {
	if _, ok := (&acct).PrimaryDevice(); !ok {
		return false
	}
	return nowMs-acct.LastSeenMs() >= retention.Milliseconds()
}

// Cleaner is the crawl listener that deregisters expired accounts:
// push credentials are cleared so delivery stops, the account is
// persisted, and a deregistration is queued for the directory.
type Cleaner struct {
	accounts  account.Manager
	queue     directory.Queue
	clock     crawler.Clock
	retention time.Duration
	// maxUpdatesPerChunk bounds the burst of store writes per chunk.
	// Directory enqueues are cheap and are never capped.
	maxUpdatesPerChunk int
	logger             *zap.Logger
}

// New constructs a Cleaner.
func New(
	accounts account.Manager,
	queue directory.Queue,
	clock crawler.Clock,
	retention time.Duration,
	maxUpdatesPerChunk int,
	logger *zap.Logger,
) *Cleaner {
	return &Cleaner{
		accounts:           accounts,
		queue:              queue,
		clock:              clock,
		retention:          retention,
		maxUpdatesPerChunk: maxUpdatesPerChunk,
		logger:             logger,
	}
}

// Name labels the listener in logs and metrics.
func (c *Cleaner) Name() string { return "account_cleaner" }

// OnCrawlStart is a no-op; expiry carries no sweep state.
func (c *Cleaner) OnCrawlStart() {}

// OnCrawlChunk expires aged accounts in the chunk. Re-running over the
// same chunk is idempotent: credentials already cleared stay cleared and
// directory consumers dedupe on number.
func (c *Cleaner) OnCrawlChunk(ctx context.Context, _ account.Cursor, chunk []account.Account) error {
	nowMs := c.clock.Now().UnixMilli()
	updates := 0
	var errs []error

	for _, acct := range chunk {
		if !IsAccountExpired(acct, nowMs, c.retention) {
			metrics.ObserveInspectedAccount(acct.Enabled())
			continue
		}

		metrics.ObserveExpiredAccount()

		if updates < c.maxUpdatesPerChunk {
			if err := c.expire(ctx, acct); err != nil {
				errs = append(errs, err)
			} else {
				updates++
			}
		}

		// Deregistration is queued even past the update cap; the
		// directory must stop serving the number either way.
		if err := c.queue.Enqueue(ctx, directory.DeleteMessage(acct.UUID, acct.Number)); err != nil {
			errs = append(errs, fmt.Errorf("enqueue deregister for %s: %w", acct.UUID, err))
			continue
		}
		metrics.ObserveDirectoryMessage(string(directory.ActionDelete))
	}

	return errors.Join(errs...)
}

// OnCrawlEnd logs sweep completion.
func (c *Cleaner) OnCrawlEnd(final account.Cursor) {
	c.logger.Debug("account cleaner sweep finished", zap.String("final", final.String()))
}

// expire clears the primary device's push credentials and persists the
// account so no further push delivery is attempted.
func (c *Cleaner) expire(ctx context.Context, acct account.Account) error {
	primary, ok := (&acct).PrimaryDevice()
	if !ok {
		return nil
	}
	primary.Push = nil

	if err := c.accounts.Update(ctx, acct); err != nil {
		return fmt.Errorf("persist expired account %s: %w", acct.UUID, err)
	}
	metrics.ObserveCleanerUpdate()
	c.logger.Info("expired account deregistered",
		zap.String("uuid", acct.UUID.String()),
		zap.Int64("last_seen_ms", acct.LastSeenMs()),
	)
	return nil
}
