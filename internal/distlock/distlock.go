// Package distlock provides TTL-based distributed locks so only one agent
// works a given lead or coordination step at a time. The Redis backend is
// preferred; when Redis is not configured, locks fall back to rows in the
// agent_locks table where an expired lock is silently reclaimable.
package distlock

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is the interface for a single TTL lock over one resource.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type Locker interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still hold it.
	Release(ctx context.Context) error
}

// Factory creates locks over a shared backend. Agents hold one factory and
// mint a fresh lock per resource (per lead, per report run).
type Factory struct {
	redis  *redis.Client
	db     *sql.DB
	holder string
	ttl    time.Duration
}

// NewFactory creates a lock factory. redisClient may be nil, in which case
// all locks use the Postgres backend. holder identifies this process in the
// lock table (worker ID).
func NewFactory(redisClient *redis.Client, db *sql.DB, holder string, ttl time.Duration) *Factory {
	return &Factory{redis: redisClient, db: db, holder: holder, ttl: ttl}
}

// Lock returns a lock for the given resource using the best available backend.
func (f *Factory) Lock(resourceID string) Locker {
	if f.redis != nil {
		return NewRedisLock(f.redis, resourceID, f.holder, f.ttl)
	}
	return NewPGLock(f.db, resourceID, f.holder, f.ttl)
}
