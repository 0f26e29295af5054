package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PGLock implements Locker as a row in the agent_locks table. Acquisition
// is a single INSERT ... ON CONFLICT statement whose update arm only fires
// when the existing lock has expired, so a live lock can never be stolen
// and a crashed holder's lock is reclaimed without any cleanup process.
type PGLock struct {
	db         *sql.DB
	resourceID string
	holder     string
	ttl        time.Duration
}

// NewPGLock creates a Postgres-backed lock for the given resource.
func NewPGLock(db *sql.DB, resourceID, holder string, ttl time.Duration) *PGLock {
	return &PGLock{db: db, resourceID: resourceID, holder: holder, ttl: ttl}
}

// Acquire tries to claim the lock row. Returns true if this holder now owns
// the lock, either because the row was free or its previous lease expired.
func (l *PGLock) Acquire(ctx context.Context) (bool, error) {
	ttlSecs := int(l.ttl.Seconds())
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO agent_locks (resource_id, holder, acquired_at, expires_at)
		 VALUES ($1, $2, now(), now() + make_interval(secs => $3))
		 ON CONFLICT (resource_id) DO UPDATE SET
			holder = $2,
			acquired_at = now(),
			expires_at = now() + make_interval(secs => $3)
		 WHERE agent_locks.expires_at < now()`,
		l.resourceID, l.holder, ttlSecs)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.resourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.resourceID, err)
	}
	return n == 1, nil
}

// Release deletes the lock row only if this holder still owns it. Releasing
// an expired or stolen lock is a no-op.
func (l *PGLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM agent_locks WHERE resource_id = $1 AND holder = $2`,
		l.resourceID, l.holder)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.resourceID, err)
	}
	return nil
}

// Extend pushes out the lease deadline if this holder still owns the lock.
func (l *PGLock) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE agent_locks SET expires_at = now() + make_interval(secs => $3)
		 WHERE resource_id = $1 AND holder = $2 AND expires_at >= now()`,
		l.resourceID, l.holder, int(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.resourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.resourceID, err)
	}
	if n == 0 {
		return fmt.Errorf("extend lock %s: no longer held", l.resourceID)
	}
	return nil
}
