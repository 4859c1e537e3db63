package directory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridian-im/account-crawler/internal/account"
	"github.com/meridian-im/account-crawler/internal/metrics"
)

// Reconciler is a crawl listener that keeps the contact-discovery
// directory converged with the account table: every sweep re-announces
// visible accounts and retracts disabled ones. Consumers are idempotent
// on number, so replays are harmless.
type Reconciler struct {
	queue  Queue
	logger *zap.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(queue Queue, logger *zap.Logger) *Reconciler {
	return &Reconciler{queue: queue, logger: logger}
}

// Name labels the listener in logs and metrics.
func (r *Reconciler) Name() string { return "directory_reconciler" }

// OnCrawlStart is a no-op; reconciliation carries no sweep state.
func (r *Reconciler) OnCrawlStart() {}

// OnCrawlChunk enqueues an add for each visible account and a delete for
// each hidden one. Individual failures don't stop the chunk; the first
// error is reported so the engine counts the listener as failed.
func (r *Reconciler) OnCrawlChunk(ctx context.Context, _ account.Cursor, chunk []account.Account) error {
	var errs []error
	for _, acct := range chunk {
		msg := DeleteMessage(acct.UUID, acct.Number)
		if acct.Enabled() {
			msg = AddMessage(acct.UUID, acct.Number)
		}
		if err := r.queue.Enqueue(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s for %s: %w", msg.Action, acct.UUID, err))
			continue
		}
		metrics.ObserveDirectoryMessage(string(msg.Action))
	}
	return errors.Join(errs...)
}

// OnCrawlEnd logs sweep completion.
func (r *Reconciler) OnCrawlEnd(final account.Cursor) {
	r.logger.Debug("directory reconciliation sweep finished", zap.String("final", final.String()))
}
