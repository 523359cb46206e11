package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL is how long an idle API session is kept.
const DefaultSessionTTL = 24 * time.Hour

// RedisStorage implements Store on Redis. Save slots are kept at
// save:<owner>:<slot> with a sorted-set index saves:<owner> scored by save
// time; live sessions are kept at session:<id> with a TTL.
type RedisStorage struct {
	client     *redis.Client
	logger     *slog.Logger
	maxSlots   int
	sessionTTL time.Duration
}

var _ Store = (*RedisStorage)(nil)

type Option func(*RedisStorage)

// WithMaxSlots sets the per-owner slot cap.
func WithMaxSlots(n int) Option {
	return func(r *RedisStorage) {
		if n > 0 {
			r.maxSlots = n
		}
	}
}

// WithSessionTTL sets the expiry of live sessions.
func WithSessionTTL(ttl time.Duration) Option {
	return func(r *RedisStorage) {
		if ttl > 0 {
			r.sessionTTL = ttl
		}
	}
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(redisURL string, logger *slog.Logger, opts ...Option) *RedisStorage {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	return NewRedisStorageFromClient(rdb, logger, opts...)
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, logger *slog.Logger, opts ...Option) *RedisStorage {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RedisStorage{
		client:     client,
		logger:     logger,
		maxSlots:   DefaultMaxSlots,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client exposes the underlying client for Pub/Sub.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := range maxRetries {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}
