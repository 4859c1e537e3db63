// Package crawler implements the account database sweep loop.
package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-im/account-crawler/internal/account"
	"github.com/meridian-im/account-crawler/internal/cursor"
	"github.com/meridian-im/account-crawler/internal/metrics"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Config controls Engine behavior.
type Config struct {
	ChunkSize           int
	ChunkInterval       time.Duration
	AcceleratedInterval time.Duration
	LeaseTTL            time.Duration
	ListenerTimeout     time.Duration
}

// Engine drives one replica's crawl loop. Replicas across the fleet run
// the same loop; the distributed lease in the cursor store guarantees at
// most one of them makes progress at a time.
type Engine struct {
	pager     account.Pager
	cache     cursor.Store
	listeners []Listener
	cfg       Config
	clock     Clock
	logger    *zap.Logger

	// holder identifies this replica in the lease key for its lifetime.
	holder string
	// sweepOpen tracks whether OnCrawlStart fired for the current sweep.
	sweepOpen bool
}

// New constructs an Engine. The listener chain is fixed at construction;
// registration order is dispatch order.
func New(
	pager account.Pager,
	cache cursor.Store,
	listeners []Listener,
	cfg Config,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	if cfg.ListenerTimeout <= 0 {
		cfg.ListenerTimeout = 2 * cfg.ChunkInterval
	}
	return &Engine{
		pager:     pager,
		cache:     cache,
		listeners: listeners,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		holder:    uuid.NewString(),
	}
}

// Run blocks, sweeping the account corpus until the context finishes.
// On shutdown the current chunk is drained and the lease released.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("crawler started", zap.String("holder", e.holder))
	defer e.release()

	for {
		delay := e.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// release gives up the lease on clean shutdown, best effort; if it fails
// the TTL expires it shortly anyway.
func (e *Engine) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cache.ReleaseLease(ctx, e.holder); err != nil {
		e.logger.Warn("lease release failed", zap.Error(err))
	}
	e.logger.Info("crawler stopped")
}

// tick executes one pass of the state machine and returns the delay
// before the next pass.
func (e *Engine) tick(ctx context.Context) time.Duration {
	held, err := e.holdLease(ctx)
	if err != nil {
		metrics.ObserveCrawlError("cache")
		e.logger.Warn("lease operation failed", zap.Error(err))
		return e.cfg.ChunkInterval
	}
	if !held {
		return e.cfg.ChunkInterval
	}

	start := e.clock.Now()

	cur, err := e.cache.GetCursor(ctx)
	if err != nil {
		metrics.ObserveCrawlError("cache")
		e.logger.Warn("cursor read failed", zap.Error(err))
		return e.cfg.ChunkInterval
	}

	if !cur.Valid {
		// The engine clears sweepOpen whenever it resets the cursor
		// itself, so an absent cursor under an open sweep means an
		// operator reset; the aborted sweep's listener state must not
		// leak into the new one.
		if e.sweepOpen {
			e.logger.Info("cursor reset externally, restarting sweep")
			e.sweepOpen = false
		}
		for _, l := range e.listeners {
			l.OnCrawlStart()
		}
		e.sweepOpen = true
	}

	chunk, err := e.pager.GetAllFrom(ctx, cur, e.cfg.ChunkSize)
	if err != nil {
		// Tick aborted: no cursor advance, lease left to its TTL.
		metrics.ObserveCrawlError("pager")
		e.logger.Warn("account page read failed", zap.Error(err), zap.String("cursor", cur.String()))
		return e.cfg.ChunkInterval
	}

	if len(chunk.Accounts) == 0 {
		return e.finishSweep(ctx, cur, start)
	}

	if restart := e.dispatch(ctx, cur, chunk.Accounts); restart {
		e.abandonSweep(ctx)
		metrics.ObserveChunk("abandoned", 0, e.clock.Now().Sub(start))
		return e.cfg.ChunkInterval
	}

	// Confirm ownership before advancing the cursor; a refresh failure
	// means another replica may already be crawling.
	held, err = e.cache.RefreshLease(ctx, e.holder, e.cfg.LeaseTTL)
	if err != nil {
		metrics.ObserveCrawlError("cache")
		e.logger.Warn("lease refresh failed", zap.Error(err))
		return e.cfg.ChunkInterval
	}
	if !held {
		metrics.ObserveCrawlError("lease_lost")
		e.logger.Warn("lease lost mid-chunk", zap.String("cursor", cur.String()))
		e.sweepOpen = false
		return e.cfg.ChunkInterval
	}

	if err := e.cache.SetCursor(ctx, chunk.NextCursor, lastNumber(chunk.Accounts)); err != nil {
		metrics.ObserveCrawlError("cache")
		e.logger.Warn("cursor write failed", zap.Error(err))
		return e.cfg.ChunkInterval
	}

	metrics.ObserveChunk("processed", len(chunk.Accounts), e.clock.Now().Sub(start))
	e.logger.Debug("chunk processed",
		zap.String("from", cur.String()),
		zap.String("next", chunk.NextCursor.String()),
		zap.Int("accounts", len(chunk.Accounts)),
	)
	return e.interval(ctx)
}

// dispatch runs the listener chain over one chunk. Returns true when a
// listener demanded a sweep restart.
func (e *Engine) dispatch(ctx context.Context, from account.Cursor, accounts []account.Account) bool {
	for _, l := range e.listeners {
		lctx, cancel := context.WithTimeout(ctx, e.cfg.ListenerTimeout)
		err := l.OnCrawlChunk(lctx, from, accounts)
		cancel()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrRestartSweep) {
			metrics.ObserveCrawlError("listener_fatal")
			e.logger.Error("listener requested sweep restart",
				zap.String("listener", l.Name()), zap.Error(err))
			return true
		}
		// Recoverable: skip this listener for this chunk, keep the chain going.
		metrics.ObserveListenerFailure(l.Name())
		e.logger.Warn("listener failed on chunk",
			zap.String("listener", l.Name()),
			zap.String("cursor", from.String()),
			zap.Error(err))
	}
	return false
}

// finishSweep closes the current sweep at end-of-table and resets the
// cursor so the next tick begins a fresh one.
func (e *Engine) finishSweep(ctx context.Context, final account.Cursor, start time.Time) time.Duration {
	for _, l := range e.listeners {
		l.OnCrawlEnd(final)
	}
	e.sweepOpen = false

	if err := e.cache.ClearCursor(ctx); err != nil {
		metrics.ObserveCrawlError("cache")
		e.logger.Warn("cursor reset failed", zap.Error(err))
		return e.cfg.ChunkInterval
	}
	if _, err := e.cache.RefreshLease(ctx, e.holder, e.cfg.LeaseTTL); err != nil {
		metrics.ObserveCrawlError("cache")
	}

	metrics.ObserveChunk("sweep_complete", 0, e.clock.Now().Sub(start))
	e.logger.Info("sweep complete", zap.String("final", final.String()))
	return e.interval(ctx)
}

// abandonSweep resets the cursor after a fatal listener error.
func (e *Engine) abandonSweep(ctx context.Context) {
	e.sweepOpen = false
	if err := e.cache.ClearCursor(ctx); err != nil {
		metrics.ObserveCrawlError("cache")
		e.logger.Warn("cursor reset failed after restart request", zap.Error(err))
	}
}

// holdLease refreshes an already-held lease or acquires a free one.
func (e *Engine) holdLease(ctx context.Context) (bool, error) {
	held, err := e.cache.RefreshLease(ctx, e.holder, e.cfg.LeaseTTL)
	if err != nil {
		return false, err
	}
	if held {
		return true, nil
	}
	return e.cache.TryAcquireLease(ctx, e.holder, e.cfg.LeaseTTL)
}

// interval returns the inter-chunk delay, collapsed when accelerated.
func (e *Engine) interval(ctx context.Context) time.Duration {
	accelerated, err := e.cache.IsAccelerated(ctx)
	if err != nil {
		e.logger.Warn("accelerate flag read failed", zap.Error(err))
		return e.cfg.ChunkInterval
	}
	if accelerated {
		return e.cfg.AcceleratedInterval
	}
	return e.cfg.ChunkInterval
}

func lastNumber(accounts []account.Account) string {
	if len(accounts) == 0 {
		return ""
	}
	return accounts[len(accounts)-1].Number
}
