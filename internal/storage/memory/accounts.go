// Package memory provides storage implementations for local development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/meridian-im/account-crawler/internal/account"
)

// AccountStore is an in-memory accounts table ordered by uuid.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]account.Account
}

// NewAccountStore constructs an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[uuid.UUID]account.Account)}
}

// Seed inserts accounts, replacing existing rows with the same uuid.
func (s *AccountStore) Seed(accounts ...account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range accounts {
		s.accounts[acct.UUID] = cloneAccount(acct)
	}
}

// GetAllFrom returns the next page of accounts after the cursor in uuid
// order, mirroring the Postgres keyset pagination contract.
func (s *AccountStore) GetAllFrom(_ context.Context, after account.Cursor, limit int) (account.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		ordered = append(ordered, acct)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].UUID[:], ordered[j].UUID[:]) < 0
	})

	page := make([]account.Account, 0, limit)
	for _, acct := range ordered {
		if after.Valid && bytes.Compare(acct.UUID[:], after.UUID[:]) <= 0 {
			continue
		}
		page = append(page, cloneAccount(acct))
		if len(page) == limit {
			break
		}
	}

	chunk := account.Chunk{Accounts: page}
	if len(page) > 0 {
		chunk.NextCursor = account.CursorAt(page[len(page)-1].UUID)
	}
	return chunk, nil
}

// Update replaces an existing account row.
func (s *AccountStore) Update(_ context.Context, acct account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.UUID]; !ok {
		return fmt.Errorf("update account %s: not found", acct.UUID)
	}
	s.accounts[acct.UUID] = cloneAccount(acct)
	return nil
}

// Get returns a copy of the stored account for assertions in tests.
func (s *AccountStore) Get(id uuid.UUID) (account.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, false
	}
	return cloneAccount(acct), true
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func cloneAccount(acct account.Account) account.Account {
	cp := acct
	cp.Devices = make([]account.Device, len(acct.Devices))
	copy(cp.Devices, acct.Devices)
	for i := range cp.Devices {
		if cp.Devices[i].Push != nil {
			push := *cp.Devices[i].Push
			cp.Devices[i].Push = &push
		}
	}
	return cp
}
