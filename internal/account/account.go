// Package account defines the account model shared across subsystems.
package account

import (
	"github.com/google/uuid"
)

// PrimaryDeviceID is the reserved device id anchoring the account's identity.
const PrimaryDeviceID uint64 = 1

// PushCredentials holds the push transport state for a single device.
type PushCredentials struct {
	GCMID           string `json:"gcmId,omitempty"`
	APNID           string `json:"apnId,omitempty"`
	FetchesMessages bool   `json:"fetchesMessages"`
}

// Device is one registered device on an account.
type Device struct {
	ID                    uint64           `json:"id"`
	LastSeenMs            int64            `json:"lastSeen"`
	Enabled               bool             `json:"enabled"`
	UninstalledFeedbackMs int64            `json:"uninstalledFeedback,omitempty"`
	Push                  *PushCredentials `json:"push,omitempty"`
}

// Account is the slice of account state the crawler and its listeners see.
type Account struct {
	UUID    uuid.UUID `json:"uuid"`
	Number  string    `json:"number"`
	Devices []Device  `json:"devices"`
}

// PrimaryDevice returns the device with the reserved primary id.
// Accounts in partial states may have none.
func (a *Account) PrimaryDevice() (*Device, bool) {
	for i := range a.Devices {
		if a.Devices[i].ID == PrimaryDeviceID {
			return &a.Devices[i], true
		}
	}
	return nil, false
}

// LastSeenMs returns the most recent activity time across all devices.
func (a Account) LastSeenMs() int64 {
	var last int64
	for _, d := range a.Devices {
		if d.LastSeenMs > last {
			last = d.LastSeenMs
		}
	}
	return last
}

// Enabled reports whether the account is visible to the directory:
// the primary device exists and is enabled.
func (a Account) Enabled() bool {
	primary, ok := (&a).PrimaryDevice()
	return ok && primary.Enabled
}
