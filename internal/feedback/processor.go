// Package feedback retires devices whose push provider reported an
// app uninstall.
package feedback

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

// Processor is a crawl listener that disables devices with aged
// uninstall feedback. Feedback younger than the interval is left alone:
// providers occasionally report uninstalls for apps that come right
// back, so the grace period filters the flappers out.
type Processor struct {
	accounts account.Manager
	queue    directory.Queue
	clock    crawler.Clock
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Processor.
func New(
	accounts account.Manager,
	queue directory.Queue,
	clock crawler.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		accounts: accounts,
		queue:    queue,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Name labels the listener in logs and metrics.
func (p *Processor) Name() string { return "push_feedback" }

// OnCrawlStart is a no-op; feedback processing carries no sweep state.
func (p *Processor) OnCrawlStart() {}

// OnCrawlChunk disables every enabled device whose uninstall feedback
// has aged past the interval, persists touched accounts, and refreshes
// the directory entry. Disabling an already-disabled device is a no-op,
// which keeps redelivery of the same chunk idempotent.
func (p *Processor) OnCrawlChunk(ctx context.Context, _ account.Cursor, chunk []account.Account) error {
	nowMs := p.clock.Now().UnixMilli()
	var errs []error

	for _, acct := range chunk {
		if !p.retireAgedDevices(&acct, nowMs) {
			continue
		}

		if err := p.accounts.Update(ctx, acct); err != nil {
			errs = append(errs, fmt.Errorf("persist account %s: %w", acct.UUID, err))
			continue
		}

		msg := directory.DeleteMessage(acct.UUID, acct.Number)
		if acct.Enabled() {
			msg = directory.AddMessage(acct.UUID, acct.Number)
		}
		if err := p.queue.Enqueue(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("refresh directory for %s: %w", acct.UUID, err))
			continue
		}
		metrics.ObserveDirectoryMessage(string(msg.Action))
	}

	return errors.Join(errs...)
}

// OnCrawlEnd logs sweep completion.
func (p *Processor) OnCrawlEnd(final account.Cursor) {
	p.logger.Debug("push feedback sweep finished", zap.String("final", final.String()))
}

// retireAgedDevices clears credentials on devices with aged feedback and
// reports whether the account changed.
func (p *Processor) retireAgedDevices(acct *account.Account, nowMs int64) bool {
	dirty := false
	for i := range acct.Devices {
		device := &acct.Devices[i]
		if !device.Enabled || device.UninstalledFeedbackMs == 0 {
			continue
		}
		if nowMs-device.UninstalledFeedbackMs < p.interval.Milliseconds() {
			continue
		}

		device.Push = nil
		device.Enabled = false
		dirty = true
		metrics.ObserveFeedbackDeviceDisabled()
		p.logger.Info("device disabled after uninstall feedback",
			zap.String("uuid", acct.UUID.String()),
			zap.Uint64("device", device.ID),
		)
	}
	return dirty
}
