package directory

import (
	"context"
	"errors"
	"testing"

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

func TestReconcilerAnnouncesVisibleAndRetractsHidden(t *testing.T) {
	t.Parallel()

	queue := NewMemoryQueue()
	reconciler := NewReconciler(queue, zap.NewNop())

	visible := account.Account{
		UUID:    uuid.New(),
		Number:  "+14155550100",
		Devices: []account.Device{{ID: account.PrimaryDeviceID, Enabled: true}},
	}
	hidden := account.Account{
		UUID:    uuid.New(),
		Number:  "+14155550101",
		Devices: []account.Device{{ID: account.PrimaryDeviceID, Enabled: false}},
	}
	orphaned := account.Account{
		UUID:    uuid.New(),
		Number:  "+14155550102",
		Devices: []account.Device{{ID: 2, Enabled: true}},
	}

	reconciler.OnCrawlStart()
	err := reconciler.OnCrawlChunk(context.Background(), account.Cursor{}, []account.Account{visible, hidden, orphaned})
	require.NoError(t, err)
	reconciler.OnCrawlEnd(account.Cursor{})

	msgs := queue.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, Message{Action: ActionAdd, Number: "+14155550100", UUID: visible.UUID.String()}, msgs[0])
	require.Equal(t, Message{Action: ActionDelete, Number: "+14155550101", UUID: hidden.UUID.String()}, msgs[1])
	require.Equal(t, Message{Action: ActionDelete, Number: "+14155550102", UUID: orphaned.UUID.String()}, msgs[2])
}

func TestReconcilerReportsQueueFailure(t *testing.T) {
	t.Parallel()

	queue := NewMemoryQueue()
	queue.FailWith(errors.New("queue unavailable"))
	reconciler := NewReconciler(queue, zap.NewNop())

	acct := account.Account{
		UUID:    uuid.New(),
		Number:  "+14155550100",
		Devices: []account.Device{{ID: account.PrimaryDeviceID, Enabled: true}},
	}

	err := reconciler.OnCrawlChunk(context.Background(), account.Cursor{}, []account.Account{acct})
	require.Error(t, err)
	require.Empty(t, queue.Messages())
}
