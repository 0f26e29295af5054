package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Release and extend must compare-then-act atomically, otherwise a stale
// holder could delete or re-lease a lock that expired and was re-acquired
// by someone else between the GET and the write.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// RedisLock implements Locker as a SET NX key with a TTL. The key's value
// is an ownership token of the form "<holder>:<nonce>": the holder part
// mirrors what the Postgres backend records in agent_locks, so a stuck lock
// can be traced to its process with a plain GET, and the random nonce keeps
// tokens unique across lock instances within one process.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a Redis-backed lock for the given resource, owned by
// holder (worker ID).
func NewRedisLock(client *redis.Client, resourceID, holder string, ttl time.Duration) *RedisLock {
	nonce := make([]byte, 8)
	rand.Read(nonce)
	return &RedisLock{
		client: client,
		key:    "lock:" + resourceID,
		token:  fmt.Sprintf("%s:%s", holder, hex.EncodeToString(nonce)),
		ttl:    ttl,
	}
}

// Acquire tries to acquire the lock. Returns true if successful.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release releases the lock only if we still own it.
func (l *RedisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// Extend extends the lock TTL for long-running handshake sequences
// (connection check, invitation, message) that may outlast the default TTL.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	_, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	return nil
}
