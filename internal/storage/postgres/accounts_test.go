package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/meridian-im/account-crawler/internal/account"
)

func encodeAccount(t *testing.T, acct account.Account) []byte {
	t.Helper()
	data, err := json.Marshal(acct)
	require.NoError(t, err)
	return data
}

func TestGetAllFromFirstPage(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAccountStoreWithPool(mock)
	require.NoError(t, err)

	first := account.Account{
		UUID:   uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Number: "+14155550100",
		Devices: []account.Device{{
			ID:         account.PrimaryDeviceID,
			LastSeenMs: 1700000000000,
			Enabled:    true,
		}},
	}
	second := account.Account{
		UUID:   uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Number: "+14155550101",
	}

	rows := pgxmock.NewRows([]string{"uuid", "number", "data"}).
		AddRow(first.UUID.String(), first.Number, encodeAccount(t, first)).
		AddRow(second.UUID.String(), second.Number, encodeAccount(t, second))

	mock.ExpectQuery(`SELECT uuid::text, number, data`).
		WithArgs(2).
		WillReturnRows(rows)

	chunk, err := store.GetAllFrom(context.Background(), account.Cursor{}, 2)
	require.NoError(t, err)
	require.Len(t, chunk.Accounts, 2)
	require.Equal(t, first.UUID, chunk.Accounts[0].UUID)
	require.Equal(t, first.Number, chunk.Accounts[0].Number)
	require.True(t, chunk.Accounts[0].Enabled())

	// A full page keeps the sweep going from the last uuid.
	require.True(t, chunk.NextCursor.Valid)
	require.Equal(t, second.UUID, chunk.NextCursor.UUID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllFromAfterCursor(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAccountStoreWithPool(mock)
	require.NoError(t, err)

	after := account.CursorAt(uuid.MustParse("11111111-1111-1111-1111-111111111111"))
	last := account.Account{
		UUID:   uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		Number: "+14155550102",
	}

	rows := pgxmock.NewRows([]string{"uuid", "number", "data"}).
		AddRow(last.UUID.String(), last.Number, encodeAccount(t, last))

	mock.ExpectQuery(`SELECT uuid::text, number, data`).
		WithArgs(after.UUID.String(), 2).
		WillReturnRows(rows)

	chunk, err := store.GetAllFrom(context.Background(), after, 2)
	require.NoError(t, err)
	require.Len(t, chunk.Accounts, 1)

	// Even a short page carries a cursor; the next call returns the
	// empty end-of-table page.
	require.True(t, chunk.NextCursor.Valid)
	require.Equal(t, last.UUID, chunk.NextCursor.UUID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllFromEmptyPageEndsSweep(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAccountStoreWithPool(mock)
	require.NoError(t, err)

	after := account.CursorAt(uuid.MustParse("33333333-3333-3333-3333-333333333333"))

	mock.ExpectQuery(`SELECT uuid::text, number, data`).
		WithArgs(after.UUID.String(), 2).
		WillReturnRows(pgxmock.NewRows([]string{"uuid", "number", "data"}))

	chunk, err := store.GetAllFrom(context.Background(), after, 2)
	require.NoError(t, err)
	require.Empty(t, chunk.Accounts)
	require.False(t, chunk.NextCursor.Valid)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllFromColumnsWinOverBody(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAccountStoreWithPool(mock)
	require.NoError(t, err)

	stale := account.Account{
		UUID:   uuid.MustParse("99999999-9999-9999-9999-999999999999"),
		Number: "+14155550999",
	}
	rowID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	rows := pgxmock.NewRows([]string{"uuid", "number", "data"}).
		AddRow(rowID.String(), "+14155550100", encodeAccount(t, stale))

	mock.ExpectQuery(`SELECT uuid::text, number, data`).
		WithArgs(1).
		WillReturnRows(rows)

	chunk, err := store.GetAllFrom(context.Background(), account.Cursor{}, 1)
	require.NoError(t, err)
	require.Equal(t, rowID, chunk.Accounts[0].UUID)
	require.Equal(t, "+14155550100", chunk.Accounts[0].Number)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllFromQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAccountStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT uuid::text, number, data`).
		WithArgs(10).
		WillReturnError(errors.New("connection reset"))

	_, err = store.GetAllFrom(context.Background(), account.Cursor{}, 10)
	require.ErrorContains(t, err, "query accounts page")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePersistsBody(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAccountStoreWithPool(mock)
	require.NoError(t, err)

	acct := account.Account{
		UUID:   uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Number: "+14155550100",
	}

	mock.ExpectExec(`UPDATE accounts`).
		WithArgs(acct.UUID.String(), acct.Number, encodeAccount(t, acct)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Update(context.Background(), acct))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAccountStoreWithPool(mock)
	require.NoError(t, err)

	acct := account.Account{
		UUID:   uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Number: "+14155550100",
	}

	mock.ExpectExec(`UPDATE accounts`).
		WithArgs(acct.UUID.String(), acct.Number, encodeAccount(t, acct)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Update(context.Background(), acct)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
