package cursor

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-im/account-crawler/internal/account"
)

// MemoryStore is an in-process Store for local development and tests.
type MemoryStore struct {
	mu          sync.Mutex
	cursor      account.Cursor
	lastNumber  string
	accelerated bool

	leaseHolder  string
	leaseExpires time.Time

	now func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// GetCursor returns the stored cursor.
func (s *MemoryStore) GetCursor(_ context.Context) (account.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

// SetCursor stores the cursor and the legacy number checkpoint.
func (s *MemoryStore) SetCursor(_ context.Context, c account.Cursor, lastNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = c
	if lastNumber != "" {
		s.lastNumber = lastNumber
	}
	return nil
}

// ClearCursor resets the cursor to the sweep-start sentinel.
func (s *MemoryStore) ClearCursor(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = account.Cursor{}
	s.lastNumber = ""
	return nil
}

// TryAcquireLease claims the lease iff it is absent or expired.
func (s *MemoryStore) TryAcquireLease(_ context.Context, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseHolder != "" && s.now().Before(s.leaseExpires) {
		return false, nil
	}
	s.leaseHolder = token
	s.leaseExpires = s.now().Add(ttl)
	return true, nil
}

// RefreshLease extends the TTL iff token still holds the lease.
func (s *MemoryStore) RefreshLease(_ context.Context, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseHolder != token || s.now().After(s.leaseExpires) {
		return false, nil
	}
	s.leaseExpires = s.now().Add(ttl)
	return true, nil
}

// ReleaseLease deletes the lease iff token still holds it.
func (s *MemoryStore) ReleaseLease(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseHolder == token {
		s.leaseHolder = ""
		s.leaseExpires = time.Time{}
	}
	return nil
}

// IsAccelerated returns the acceleration flag.
func (s *MemoryStore) IsAccelerated(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accelerated, nil
}

// SetAccelerated stores the acceleration flag.
func (s *MemoryStore) SetAccelerated(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accelerated = enabled
	return nil
}

// LastNumber exposes the legacy checkpoint for tests.
func (s *MemoryStore) LastNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastNumber
}
