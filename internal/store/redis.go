package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const unreadCacheTTL = 5 * time.Minute

// RedisStore handles Redis operations: the pub/sub transport client and a
// short-lived cache for per-room unread counts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the pub/sub publisher.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// unreadKey returns the cache key for a recipient's unread count in a room.
func unreadKey(recipientID, roomID string) string {
	return fmt.Sprintf("unread:%s:%s", recipientID, roomID)
}

// CacheUnreadCount stores a computed unread count with a TTL.
func (s *RedisStore) CacheUnreadCount(ctx context.Context, recipientID, roomID string, count int) error {
	return s.client.Set(ctx, unreadKey(recipientID, roomID), count, unreadCacheTTL).Err()
}

// CachedUnreadCount returns the cached unread count, if present.
func (s *RedisStore) CachedUnreadCount(ctx context.Context, recipientID, roomID string) (int, bool) {
	count, err := s.client.Get(ctx, unreadKey(recipientID, roomID)).Int()
	if err != nil {
		return 0, false
	}
	return count, true
}

// InvalidateUnreadCount drops the cached count after a notification or
// read-state change.
func (s *RedisStore) InvalidateUnreadCount(ctx context.Context, recipientID, roomID string) {
	s.client.Del(ctx, unreadKey(recipientID, roomID))
}
