// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-im/account-crawler/internal/account"
)

// AccountStoreConfig controls the Postgres connection pool.
type AccountStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// AccountStore reads and writes the accounts table. The account body is
// a JSON document; uuid and number columns are the authoritative
// identity and the uuid column carries the sweep ordering.
type AccountStore struct {
	pool pgxPool
}

// NewAccountStore creates a Postgres-backed AccountStore using the provided config.
func NewAccountStore(ctx context.Context, cfg AccountStoreConfig) (*AccountStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &AccountStore{pool: pool}, nil
}

// NewAccountStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAccountStoreWithPool(pool pgxPool) (*AccountStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AccountStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *AccountStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity for readiness checks.
func (s *AccountStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// GetAllFrom returns the next page of accounts after the cursor in uuid
// order. Every non-empty page carries a cursor at its last account, so
// the caller learns of end-of-table from the empty page that follows.
func (s *AccountStore) GetAllFrom(ctx context.Context, after account.Cursor, limit int) (account.Chunk, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after.Valid {
		query := `
			SELECT uuid::text, number, data
			FROM accounts
			WHERE uuid > $1
			ORDER BY uuid
			LIMIT $2;
		`
		rows, err = s.pool.Query(ctx, query, after.UUID.String(), limit)
	} else {
		query := `
			SELECT uuid::text, number, data
			FROM accounts
			ORDER BY uuid
			LIMIT $1;
		`
		rows, err = s.pool.Query(ctx, query, limit)
	}
	if err != nil {
		return account.Chunk{}, fmt.Errorf("query accounts page: %w", err)
	}
	defer rows.Close()

	var accounts []account.Account
	for rows.Next() {
		var (
			rawID  string
			number string
			data   []byte
		)
		if err := rows.Scan(&rawID, &number, &data); err != nil {
			return account.Chunk{}, fmt.Errorf("scan account row: %w", err)
		}
		acct, err := decodeAccount(rawID, number, data)
		if err != nil {
			return account.Chunk{}, err
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return account.Chunk{}, fmt.Errorf("iterate accounts page: %w", err)
	}

	chunk := account.Chunk{Accounts: accounts}
	if len(accounts) > 0 {
		chunk.NextCursor = account.CursorAt(accounts[len(accounts)-1].UUID)
	}
	return chunk, nil
}

// Update persists a mutated account body.
func (s *AccountStore) Update(ctx context.Context, acct account.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", acct.UUID, err)
	}

	query := `
		UPDATE accounts
		SET number = $2, data = $3
		WHERE uuid = $1;
	`
	res, err := s.pool.Exec(ctx, query, acct.UUID.String(), acct.Number, data)
	if err != nil {
		return fmt.Errorf("update account %s: %w", acct.UUID, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("update account %s: %w", acct.UUID, ErrNotFound)
	}
	return nil
}

func decodeAccount(rawID, number string, data []byte) (account.Account, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return account.Account{}, fmt.Errorf("parse account uuid %q: %w", rawID, err)
	}
	var acct account.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return account.Account{}, fmt.Errorf("unmarshal account %s: %w", rawID, err)
	}
	// Columns are authoritative over the JSON body.
	acct.UUID = id
	acct.Number = number
	return acct, nil
}
