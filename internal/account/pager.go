package account

import (
	"context"

	"github.com/google/uuid"
)

// Cursor points just past the last processed account, or is invalid at the
// start of a sweep. Ordering follows the account UUID ordering of the store.
type Cursor struct {
	UUID  uuid.UUID
	Valid bool
}

// CursorAt builds a valid cursor referencing the given account id.
func CursorAt(id uuid.UUID) Cursor {
	return Cursor{UUID: id, Valid: true}
}

// String renders the cursor for logs and status endpoints; empty when invalid.
func (c Cursor) String() string {
	if !c.Valid {
		return ""
	}
	return c.UUID.String()
}

// Chunk is one page of accounts plus the cursor for the following page.
// NextCursor points at the last account of the page and is invalid only
// when the page is empty.
type Chunk struct {
	Accounts   []Account
	NextCursor Cursor
}

// Pager walks the account corpus in deterministic UUID order.
// Implementations guarantee no duplicates within a sweep as long as the
// caller threads NextCursor back unchanged. A page may be short; only
// the empty end-of-table page carries an invalid NextCursor.
type Pager interface {
	GetAllFrom(ctx context.Context, after Cursor, limit int) (Chunk, error)
}

// Manager persists mutations made by crawl listeners.
type Manager interface {
	Update(ctx context.Context, acct Account) error
}
