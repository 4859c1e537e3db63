package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-im/account-crawler/internal/account"
)

// Cache key names shared with dashboards and the legacy fleet; do not rename.
const (
	cursorKey       = "account_database_crawler_cache::last_uuid"
	legacyNumberKey = "account_database_crawler_cache::last_number"
	accelerateKey   = "account_database_crawler_cache::accelerate"
	leaseKey        = "account_database_crawler_cache::lock"
)

const (
	retryAttempts       = 3
	retryInitialBackoff = 50 * time.Millisecond
)

// Compare-and-delete / compare-and-expire scripts for lease safety.
var (
	refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)
)

// RedisStore implements Store against the shared Redis cache cluster.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Ping verifies cache connectivity for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping cache: %w", err)
	}
	return nil
}

// GetCursor returns the last persisted cursor, invalid at sweep start.
func (s *RedisStore) GetCursor(ctx context.Context) (account.Cursor, error) {
	var raw string
	err := withRetry(ctx, func() error {
		var err error
		raw, err = s.client.Get(ctx, cursorKey).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return account.Cursor{}, nil
	}
	if err != nil {
		return account.Cursor{}, fmt.Errorf("get cursor: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return account.Cursor{}, fmt.Errorf("parse cursor %q: %w", raw, err)
	}
	return account.CursorAt(id), nil
}

// SetCursor persists the cursor and, best effort, the legacy number checkpoint.
func (s *RedisStore) SetCursor(ctx context.Context, c account.Cursor, lastNumber string) error {
	if !c.Valid {
		return s.ClearCursor(ctx)
	}
	err := withRetry(ctx, func() error {
		return s.client.Set(ctx, cursorKey, c.UUID.String(), 0).Err()
	})
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	if lastNumber != "" {
		// Legacy checkpoint only feeds dashboards; losing it is harmless.
		_ = s.client.Set(ctx, legacyNumberKey, lastNumber, 0).Err()
	}
	return nil
}

// ClearCursor resets the cursor so the next tick begins a new sweep.
func (s *RedisStore) ClearCursor(ctx context.Context) error {
	err := withRetry(ctx, func() error {
		return s.client.Del(ctx, cursorKey, legacyNumberKey).Err()
	})
	if err != nil {
		return fmt.Errorf("clear cursor: %w", err)
	}
	return nil
}

// TryAcquireLease claims the crawl lease via SET NX PX.
func (s *RedisStore) TryAcquireLease(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := withRetry(ctx, func() error {
		var err error
		acquired, err = s.client.SetNX(ctx, leaseKey, token, ttl).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return acquired, nil
}

// RefreshLease extends the TTL iff token still holds the lease.
func (s *RedisStore) RefreshLease(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	var res any
	err := withRetry(ctx, func() error {
		var err error
		res, err = refreshScript.Run(ctx, s.client, []string{leaseKey}, token, ttl.Milliseconds()).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("refresh lease: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// ReleaseLease deletes the lease iff token still holds it.
func (s *RedisStore) ReleaseLease(ctx context.Context, token string) error {
	err := withRetry(ctx, func() error {
		return releaseScript.Run(ctx, s.client, []string{leaseKey}, token).Err()
	})
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// IsAccelerated reports whether the operator enabled accelerated crawling.
func (s *RedisStore) IsAccelerated(ctx context.Context) (bool, error) {
	var raw string
	err := withRetry(ctx, func() error {
		var err error
		raw, err = s.client.Get(ctx, accelerateKey).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get accelerate flag: %w", err)
	}
	return raw == "true", nil
}

// SetAccelerated writes or clears the acceleration flag.
func (s *RedisStore) SetAccelerated(ctx context.Context, enabled bool) error {
	err := withRetry(ctx, func() error {
		if enabled {
			return s.client.Set(ctx, accelerateKey, "true", 0).Err()
		}
		return s.client.Del(ctx, accelerateKey).Err()
	})
	if err != nil {
		return fmt.Errorf("set accelerate flag: %w", err)
	}
	return nil
}

// withRetry runs fn with bounded exponential backoff. redis.Nil is a
// result, not a failure, and is returned immediately.
func withRetry(ctx context.Context, fn func() error) error {
	backoff := retryInitialBackoff
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
