package activeusers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-im/account-crawler/internal/account"
	"github.com/meridian-im/account-crawler/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func seenAccount(lastSeen time.Time, push *account.PushCredentials, enabled bool) account.Account {
	return account.Account{
		UUID:   uuid.New(),
		Number: "+14155550100",
		Devices: []account.Device{{
			ID:         account.PrimaryDeviceID,
			LastSeenMs: lastSeen.UnixMilli(),
			Enabled:    enabled,
			Push:       push,
		}},
	}
}

func TestCounterBucketsByPlatformAndWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	counter := New(&fakeClock{now: now}, zap.NewNop())

	chunk := []account.Account{
		seenAccount(now.Add(-2*time.Hour), &account.PushCredentials{APNID: "apn"}, true),
		seenAccount(now.Add(-3*24*time.Hour), &account.PushCredentials{GCMID: "gcm"}, true),
		seenAccount(now.Add(-45*24*time.Hour), nil, true),
	}

	counter.OnCrawlStart()
	require.NoError(t, counter.OnCrawlChunk(context.Background(), account.Cursor{}, chunk))

	// iOS account seen two hours ago lands in every window.
	require.Equal(t, int64(1), counter.Tally("ios", "daily"))
	require.Equal(t, int64(1), counter.Tally("ios", "yearly"))

	// Android account three days old misses daily but hits weekly.
	require.Equal(t, int64(0), counter.Tally("android", "daily"))
	require.Equal(t, int64(1), counter.Tally("android", "weekly"))

	// Pushless account 45 days old lands in quarterly and beyond.
	require.Equal(t, int64(0), counter.Tally("other", "monthly"))
	require.Equal(t, int64(1), counter.Tally("other", "quarterly"))

	counter.OnCrawlEnd(account.Cursor{})
}

func TestCounterSkipsDisabledAccounts(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	counter := New(&fakeClock{now: now}, zap.NewNop())

	counter.OnCrawlStart()
	chunk := []account.Account{
		seenAccount(now.Add(-time.Hour), &account.PushCredentials{APNID: "apn"}, false),
	}
	require.NoError(t, counter.OnCrawlChunk(context.Background(), account.Cursor{}, chunk))

	require.Equal(t, int64(0), counter.Tally("ios", "daily"))
}

func TestCounterResetsBetweenSweeps(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	counter := New(&fakeClock{now: now}, zap.NewNop())

	counter.OnCrawlStart()
	chunk := []account.Account{
		seenAccount(now.Add(-time.Hour), &account.PushCredentials{APNID: "apn"}, true),
	}
	require.NoError(t, counter.OnCrawlChunk(context.Background(), account.Cursor{}, chunk))
	require.Equal(t, int64(1), counter.Tally("ios", "daily"))
	counter.OnCrawlEnd(account.Cursor{})

	counter.OnCrawlStart()
	require.Equal(t, int64(0), counter.Tally("ios", "daily"))
}
