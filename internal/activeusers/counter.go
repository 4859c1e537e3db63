// Package activeusers tallies how recently the user base has been seen.
package activeusers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-im/account-crawler/internal/account"
	"github.com/meridian-im/account-crawler/internal/crawler"
	"github.com/meridian-im/account-crawler/internal/metrics"
)

// Windows reported per sweep, in days.
var windows = []struct {
	name string
	days int64
}{
	{"daily", 1},
	{"weekly", 7},
	{"monthly", 30},
	{"quarterly", 90},
	{"yearly", 365},
}

const (
	platformIOS     = "ios"
	platformAndroid = "android"
	platformOther   = "other"
)

// Counter is a crawl listener that tallies accounts per platform into
// recency windows and publishes the totals as gauges when the sweep
// completes. Tallies live in process memory for the duration of one
// sweep; a mid-sweep failover loses the partial count and the next
// sweep recomputes from scratch.
type Counter struct {
	clock  crawler.Clock
	logger *zap.Logger

	mu      sync.Mutex
	tallies map[string]map[string]int64
}

// New constructs a Counter.
func New(clock crawler.Clock, logger *zap.Logger) *Counter {
	return &Counter{
		clock:   clock,
		logger:  logger,
		tallies: emptyTallies(),
	}
}

// Name labels the listener in logs and metrics.
func (c *Counter) Name() string { return "active_user_counter" }

// OnCrawlStart resets the tallies for the new sweep.
func (c *Counter) OnCrawlStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tallies = emptyTallies()
}

// OnCrawlChunk accumulates the chunk into the sweep tallies.
func (c *Counter) OnCrawlChunk(_ context.Context, _ account.Cursor, chunk []account.Account) error {
	nowMs := c.clock.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, acct := range chunk {
		if !acct.Enabled() {
			continue
		}
		platform := accountPlatform(acct)
		ageMs := nowMs - acct.LastSeenMs()
		for _, w := range windows {
			if ageMs < w.days*24*time.Hour.Milliseconds() {
				c.tallies[platform][w.name]++
			}
		}
	}
	return nil
}

// OnCrawlEnd publishes the completed tallies.
func (c *Counter) OnCrawlEnd(_ account.Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for platform, byWindow := range c.tallies {
		for window, count := range byWindow {
			metrics.SetActiveUsers(platform, window, count)
		}
	}
	c.logger.Info("active user tallies published",
		zap.Int64("ios_daily", c.tallies[platformIOS]["daily"]),
		zap.Int64("android_daily", c.tallies[platformAndroid]["daily"]),
	)
}

// Tally exposes a single counter for tests.
func (c *Counter) Tally(platform, window string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tallies[platform][window]
}

func emptyTallies() map[string]map[string]int64 {
	tallies := make(map[string]map[string]int64, 3)
	for _, platform := range []string{platformIOS, platformAndroid, platformOther} {
		byWindow := make(map[string]int64, len(windows))
		for _, w := range windows {
			byWindow[w.name] = 0
		}
		tallies[platform] = byWindow
	}
	return tallies
}

// accountPlatform classifies an account by its primary device's push
// transport.
func accountPlatform(acct account.Account) string {
	primary, ok := acct.PrimaryDevice()
	if !ok || primary.Push == nil {
		return platformOther
	}
	switch {
	case primary.Push.APNID != "":
		return platformIOS
	case primary.Push.GCMID != "":
		return platformAndroid
	default:
		return platformOther
	}
}
