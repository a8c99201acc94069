// Package distlock provides per-tenant distributed locks with a server-side
// TTL, so a crashed holder can never block a tenant indefinitely.
//
// Redis is the preferred backend (cross-host SET NX with expiry); PostgreSQL
// advisory locks are the fallback when Redis is not configured.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is the interface for a single distributed lock instance.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type Lock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Manager constructs tenant-scoped locks against the best available backend.
type Manager struct {
	redisClient *redis.Client
	db          *sql.DB
}

// NewManager creates a lock manager. If redisClient is non-nil it is used for
// all locks; otherwise locks fall back to PostgreSQL advisory locks on db.
func NewManager(redisClient *redis.Client, db *sql.DB) *Manager {
	return &Manager{redisClient: redisClient, db: db}
}

// TenantLock returns a lock scoped to one tenant and purpose, e.g.
// ("ws_123", "operator") -> key "tenant:ws_123:operator".
func (m *Manager) TenantLock(tenantID, purpose string, ttl time.Duration) Lock {
	key := fmt.Sprintf("tenant:%s:%s", tenantID, purpose)
	if m.redisClient != nil {
		return NewRedisLock(m.redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(m.db, key)
}

// AcquireWithRetry attempts Acquire up to 1+retryAttempts times with no
// backoff between attempts. Lock contention is an expected condition, so a
// false return with nil error means "someone else holds it, move on".
func AcquireWithRetry(ctx context.Context, l Lock, retryAttempts int) (bool, error) {
	var lastErr error
	for i := 0; i <= retryAttempts; i++ {
		ok, err := l.Acquire(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, lastErr
}

// PGAdvisoryLock implements Lock using PostgreSQL advisory locks. The lock is
// session-scoped and automatically released if the DB connection drops,
// providing crash-safety similar to Redis TTL expiration.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
// Uses pg_try_advisory_lock which returns immediately (non-blocking).
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
