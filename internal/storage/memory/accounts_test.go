package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-im/account-crawler/internal/account"
)

func acct(id string, number string) account.Account {
	return account.Account{
		UUID:   uuid.MustParse(id),
		Number: number,
		Devices: []account.Device{{
			ID:      account.PrimaryDeviceID,
			Enabled: true,
		}},
	}
}

func TestGetAllFromPagesInOrder(t *testing.T) {
	t.Parallel()

	store := NewAccountStore()
	store.Seed(
		acct("33333333-3333-3333-3333-333333333333", "+14155550102"),
		acct("11111111-1111-1111-1111-111111111111", "+14155550100"),
		acct("22222222-2222-2222-2222-222222222222", "+14155550101"),
	)

	chunk, err := store.GetAllFrom(context.Background(), account.Cursor{}, 2)
	require.NoError(t, err)
	require.Len(t, chunk.Accounts, 2)
	require.Equal(t, "+14155550100", chunk.Accounts[0].Number)
	require.Equal(t, "+14155550101", chunk.Accounts[1].Number)
	require.True(t, chunk.NextCursor.Valid)

	chunk, err = store.GetAllFrom(context.Background(), chunk.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, chunk.Accounts, 1)
	require.Equal(t, "+14155550102", chunk.Accounts[0].Number)

	// The short page still carries a cursor; only the empty page that
	// follows signals end-of-table.
	require.True(t, chunk.NextCursor.Valid)

	chunk, err = store.GetAllFrom(context.Background(), chunk.NextCursor, 2)
	require.NoError(t, err)
	require.Empty(t, chunk.Accounts)
	require.False(t, chunk.NextCursor.Valid)
}

func TestUpdateReplacesRow(t *testing.T) {
	t.Parallel()

	store := NewAccountStore()
	seeded := acct("11111111-1111-1111-1111-111111111111", "+14155550100")
	store.Seed(seeded)

	seeded.Devices[0].Enabled = false
	require.NoError(t, store.Update(context.Background(), seeded))

	got, ok := store.Get(seeded.UUID)
	require.True(t, ok)
	require.False(t, got.Enabled())
}

func TestUpdateUnknownAccount(t *testing.T) {
	t.Parallel()

	store := NewAccountStore()
	err := store.Update(context.Background(), acct("11111111-1111-1111-1111-111111111111", "+14155550100"))
	require.Error(t, err)
}

func TestChunksAreIsolatedCopies(t *testing.T) {
	t.Parallel()

	store := NewAccountStore()
	seeded := acct("11111111-1111-1111-1111-111111111111", "+14155550100")
	store.Seed(seeded)

	chunk, err := store.GetAllFrom(context.Background(), account.Cursor{}, 1)
	require.NoError(t, err)
	chunk.Accounts[0].Devices[0].Enabled = false

	got, ok := store.Get(seeded.UUID)
	require.True(t, ok)
	require.True(t, got.Enabled())
}
