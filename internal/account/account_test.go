package account

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPrimaryDevice(t *testing.T) {
	t.Parallel()

	acct := Account{
		UUID:   uuid.New(),
		Number: "+14151111111",
		Devices: []Device{
			{ID: 2, LastSeenMs: 100},
			{ID: PrimaryDeviceID, LastSeenMs: 50, Enabled: true},
		},
	}

	primary, ok := acct.PrimaryDevice()
	require.True(t, ok)
	require.Equal(t, PrimaryDeviceID, primary.ID)

	orphan := Account{Devices: []Device{{ID: 2}}}
	_, ok = orphan.PrimaryDevice()
	require.False(t, ok)
}

func TestLastSeenIsMaxAcrossDevices(t *testing.T) {
	t.Parallel()

	acct := Account{
		Devices: []Device{
			{ID: PrimaryDeviceID, LastSeenMs: 50},
			{ID: 2, LastSeenMs: 700},
			{ID: 3, LastSeenMs: 200},
		},
	}
	require.Equal(t, int64(700), acct.LastSeenMs())

	require.Zero(t, Account{}.LastSeenMs())
}

func TestEnabledFollowsPrimaryDevice(t *testing.T) {
	t.Parallel()

	enabled := Account{Devices: []Device{{ID: PrimaryDeviceID, Enabled: true}, {ID: 2, Enabled: false}}}
	require.True(t, enabled.Enabled())

	disabled := Account{Devices: []Device{{ID: PrimaryDeviceID, Enabled: false}, {ID: 2, Enabled: true}}}
	require.False(t, disabled.Enabled())

	require.False(t, Account{}.Enabled())
}

func TestCursorString(t *testing.T) {
	t.Parallel()

	require.Empty(t, Cursor{}.String())

	id := uuid.New()
	require.Equal(t, id.String(), CursorAt(id).String())
}
