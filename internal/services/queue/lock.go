package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed holder can block a session.
const DefaultLockTTL = 30 * time.Second

// Deletes the key only if the caller still holds it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// SessionLock serializes turns on one session across API replicas and
// workers.
type SessionLock struct {
	client *Client
	ttl    time.Duration
}

func NewSessionLock(client *Client, ttl time.Duration) *SessionLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &SessionLock{client: client, ttl: ttl}
}

func lockKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-lock:%s", sessionID.String())
}

// Acquire reports whether holder now owns the session's lock.
func (l *SessionLock) Acquire(ctx context.Context, sessionID uuid.UUID, holder string) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, lockKey(sessionID), holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock if holder still owns it.
func (l *SessionLock) Release(ctx context.Context, sessionID uuid.UUID, holder string) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey(sessionID)}, holder).Err(); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}
